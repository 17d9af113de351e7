package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/simracing-tools/laptrack/pkg/backend"
	"github.com/simracing-tools/laptrack/pkg/gamedata"
	"github.com/simracing-tools/laptrack/pkg/runner"
	"github.com/simracing-tools/laptrack/pkg/session"
	"github.com/simracing-tools/laptrack/pkg/telemetry"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record lap times from the sim",
	Long: `Watch the local sim telemetry API, validate the running session against
the leaderboard configuration, and submit new personal bests.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}

	if cfg.Client.Token == "" {
		return fmt.Errorf("client token is required, log in first")
	}

	pollInterval, err := cfg.Client.PollIntervalDuration()
	if err != nil {
		return err
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Shutting down")
		cancel()
	}()

	api := backend.NewClient(log, cfg.Client.BackendURL)

	// The backend refuses submissions from mismatched clients, so fail
	// up front instead of at the first lap.
	remote, err := api.GetVersion(ctx)
	if err != nil {
		return fmt.Errorf("checking backend version: %w", err)
	}

	if remote != version {
		return fmt.Errorf(
			"version mismatch: client %s, backend %s", version, remote,
		)
	}

	name, err := api.GetUsername(ctx, cfg.Client.Token)
	if err != nil {
		return fmt.Errorf("resolving user: %w", err)
	}

	log.WithField("driver", name).Info("Logged in")

	models, err := api.GetCarModels(ctx)
	if err != nil {
		return fmt.Errorf("fetching car models: %w", err)
	}

	cars := gamedata.NewCarRegistry(models)
	sim := telemetry.NewClient(log, cfg.Client.SimURL)

	if cfg.Client.ApplySession {
		if err := applySessionSettings(ctx, sim, api); err != nil {
			log.WithError(err).Warn("Failed to apply session settings")
		}
	}

	r := runner.New(log, sim, api, cars, cfg.Client.Token, pollInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.Run(gctx)
	})

	g.Go(func() error {
		consumeEvents(gctx, r.Events())

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running recorder: %w", err)
	}

	return nil
}

// applySessionSettings reconfigures the loaded session to match the
// leaderboard requirements for the current track.
func applySessionSettings(
	ctx context.Context, sim telemetry.Client, api backend.Client,
) error {
	state, err := sim.GetSessionState(ctx)
	if err != nil {
		return fmt.Errorf("reading session state: %w", err)
	}

	track := state.Track()
	if track == "" {
		return fmt.Errorf("no session loaded")
	}

	lb, err := api.GetLeaderboardConfig(ctx, track)
	if err != nil {
		return fmt.Errorf("fetching leaderboard config for %q: %w", track, err)
	}

	if err := sim.ApplySessionSettings(ctx, lb.Weather, lb.TimeOfDay); err != nil {
		return fmt.Errorf("applying session settings: %w", err)
	}

	log.WithField("track", track).Info("Session settings applied")

	return nil
}

// consumeEvents is the single dispatch point for validator, recorder,
// and runner notifications.
func consumeEvents(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			entry := log.WithField("event", e.Kind.String())

			switch e.Kind {
			case session.EventWarning:
				entry.Warn(e.Message)
			case session.EventLapRecorded:
				entry.WithField("lap_time", e.Lap).Info("New personal best submitted")
			case session.EventBlacklisted:
				entry.Error(e.Message)
			default:
				entry.Info(e.Message)
			}
		}
	}
}
