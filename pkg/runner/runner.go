// Package runner drives the client's session lifecycle: wait for the
// sim, wait for a session, validate it, then record laps until the
// session ends or the sim goes away.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/simracing-tools/laptrack/pkg/backend"
	"github.com/simracing-tools/laptrack/pkg/gamedata"
	"github.com/simracing-tools/laptrack/pkg/session"
	"github.com/simracing-tools/laptrack/pkg/telemetry"
	"github.com/sirupsen/logrus"
)

// State names the runner's position in the session lifecycle.
type State int

const (
	// StateWaitingForSim polls until the sim process answers.
	StateWaitingForSim State = iota

	// StateWaitingForSession polls until the driver climbs into a car.
	StateWaitingForSession

	// StateValidating checks the session against its leaderboard.
	StateValidating

	// StateRecording watches for improving laps.
	StateRecording

	// StateWaitingForSessionEnd parks after a rejected session until
	// the driver leaves it.
	StateWaitingForSessionEnd
)

func (s State) String() string {
	switch s {
	case StateWaitingForSim:
		return "waiting_for_sim"
	case StateWaitingForSession:
		return "waiting_for_session"
	case StateValidating:
		return "validating"
	case StateRecording:
		return "recording"
	case StateWaitingForSessionEnd:
		return "waiting_for_session_end"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Runner is the single driving loop behind the record command. All
// validator and recorder notifications funnel through one events
// channel so the caller dispatches from a single point.
type Runner struct {
	log          logrus.FieldLogger
	sim          telemetry.Client
	api          backend.Client
	validator    *session.Validator
	recorder     *session.Recorder
	pollInterval time.Duration
	events       chan session.Event
}

// New creates a runner recording laps with token.
func New(
	log logrus.FieldLogger,
	sim telemetry.Client,
	api backend.Client,
	cars gamedata.CarRegistry,
	token string,
	pollInterval time.Duration,
) *Runner {
	events := make(chan session.Event, 16)

	return &Runner{
		log:          log.WithField("component", "runner"),
		sim:          sim,
		api:          api,
		validator:    session.NewValidator(log, sim, api, cars, pollInterval, events),
		recorder:     session.NewRecorder(log, sim, api, token, pollInterval, events),
		pollInterval: pollInterval,
		events:       events,
	}
}

// Events returns the channel carrying status updates from the whole
// lifecycle. Consume it for the duration of Run.
func (r *Runner) Events() <-chan session.Event {
	return r.events
}

func (r *Runner) emit(ctx context.Context, e session.Event) {
	select {
	case r.events <- e:
	case <-ctx.Done():
	}
}

func (r *Runner) sleep(ctx context.Context) error {
	select {
	case <-time.After(r.pollInterval):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the lifecycle loop until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	state := StateWaitingForSim

	var validated *session.Result

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			next State
			err  error
		)

		switch state {
		case StateWaitingForSim:
			next, err = r.waitForSim(ctx)
		case StateWaitingForSession:
			next, err = r.waitForSession(ctx)
		case StateValidating:
			validated, next, err = r.validate(ctx)
		case StateRecording:
			next, err = r.record(ctx, validated)
		case StateWaitingForSessionEnd:
			next, err = r.waitForSessionEnd(ctx)
		}

		if err != nil {
			return err
		}

		if next != state {
			r.log.WithFields(logrus.Fields{
				"from": state.String(),
				"to":   next.String(),
			}).Debug("State transition")
		}

		state = next
	}
}

func (r *Runner) waitForSim(ctx context.Context) (State, error) {
	if r.sim.ProbeConnection(ctx) {
		r.log.Info("Sim connected")
		r.emit(ctx, session.Event{
			Kind:    session.EventStatus,
			Message: "Sim connected. Waiting for session...",
		})

		return StateWaitingForSession, nil
	}

	if err := r.sleep(ctx); err != nil {
		return 0, err
	}

	return StateWaitingForSim, nil
}

func (r *Runner) waitForSession(ctx context.Context) (State, error) {
	info, err := r.sim.GetSessionInfo(ctx)
	if err != nil {
		if errors.Is(err, telemetry.ErrDisconnected) {
			r.log.Warn("Sim disconnected")
			r.emit(ctx, session.Event{Kind: session.EventStatus, Message: "Waiting for sim..."})

			return StateWaitingForSim, nil
		}

		if err := r.sleep(ctx); err != nil {
			return 0, err
		}

		return StateWaitingForSession, nil
	}

	if info.InControlOfVehicle {
		r.log.Info("Session started")
		r.emit(ctx, session.Event{Kind: session.EventStatus, Message: "Session started!"})

		return StateValidating, nil
	}

	if err := r.sleep(ctx); err != nil {
		return 0, err
	}

	return StateWaitingForSession, nil
}

func (r *Runner) validate(ctx context.Context) (*session.Result, State, error) {
	res, err := r.validator.Validate(ctx)
	if err != nil {
		return nil, 0, err
	}

	if !res.Valid {
		r.log.WithField("reason", res.Reason.String()).Info("Session rejected")
		r.emit(ctx, session.Event{Kind: session.EventWarning, Message: res.Message})

		return nil, StateWaitingForSessionEnd, nil
	}

	r.emit(ctx, session.Event{Kind: session.EventStatus, Message: "Ready to record!"})

	return res, StateRecording, nil
}

func (r *Runner) record(ctx context.Context, validated *session.Result) (State, error) {
	if validated == nil || validated.Config == nil {
		// Should not happen, restart the lifecycle.
		return StateWaitingForSim, nil
	}

	outcome, err := r.recorder.Run(
		ctx, validated.Track, validated.Car, validated.Config.FixedSetup,
	)
	if err != nil {
		return 0, err
	}

	switch outcome {
	case session.OutcomeDisconnected:
		return StateWaitingForSim, nil
	case session.OutcomeBlacklisted:
		return StateWaitingForSessionEnd, nil
	default:
		return StateWaitingForSession, nil
	}
}

func (r *Runner) waitForSessionEnd(ctx context.Context) (State, error) {
	info, err := r.sim.GetSessionInfo(ctx)
	if err != nil {
		if errors.Is(err, telemetry.ErrDisconnected) {
			r.emit(ctx, session.Event{Kind: session.EventStatus, Message: "Waiting for sim..."})

			return StateWaitingForSim, nil
		}

		if err := r.sleep(ctx); err != nil {
			return 0, err
		}

		return StateWaitingForSessionEnd, nil
	}

	if !info.InControlOfVehicle {
		r.log.Info("Session ended")
		r.emit(ctx, session.Event{
			Kind:    session.EventStatus,
			Message: "Session ended. Waiting for new session...",
		})

		return StateWaitingForSession, nil
	}

	if err := r.sleep(ctx); err != nil {
		return 0, err
	}

	return StateWaitingForSessionEnd, nil
}
