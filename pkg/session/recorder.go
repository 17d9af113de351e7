package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/simracing-tools/laptrack/pkg/backend"
	"github.com/simracing-tools/laptrack/pkg/gamedata"
	"github.com/simracing-tools/laptrack/pkg/telemetry"
	"github.com/sirupsen/logrus"
)

// minPlausibleLap filters out telemetry glitches reported as
// sub-10-second laps.
const minPlausibleLap = 10.0

// defaultSetupName identifies the sim's baseline setup. Matching on the
// name is a coarse check but stops naive custom-setup submissions.
const defaultSetupName = "Balanced"

// Outcome reports why a recording run finished.
type Outcome int

const (
	// OutcomeSessionEnded means the driver left the session normally.
	OutcomeSessionEnded Outcome = iota

	// OutcomeDisconnected means the sim went away mid session.
	OutcomeDisconnected

	// OutcomeBlacklisted means the API refused the driver's submission.
	OutcomeBlacklisted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSessionEnded:
		return "session_ended"
	case OutcomeDisconnected:
		return "disconnected"
	case OutcomeBlacklisted:
		return "blacklisted"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Recorder polls standings for strictly improving laps and submits
// each new session best to the leaderboard API.
type Recorder struct {
	log          logrus.FieldLogger
	sim          telemetry.Client
	api          backend.Client
	token        string
	pollInterval time.Duration
	events       chan<- Event

	fastestLap float64
}

// NewRecorder creates a lap recorder submitting with token.
func NewRecorder(
	log logrus.FieldLogger,
	sim telemetry.Client,
	api backend.Client,
	token string,
	pollInterval time.Duration,
	events chan<- Event,
) *Recorder {
	return &Recorder{
		log:          log.WithField("component", "recorder"),
		sim:          sim,
		api:          api,
		token:        token,
		pollInterval: pollInterval,
		events:       events,
	}
}

func (r *Recorder) emit(ctx context.Context, e Event) {
	select {
	case r.events <- e:
	case <-ctx.Done():
	}
}

func (r *Recorder) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run records laps on track until the session ends, the sim
// disconnects, or the driver is blacklisted. The session best resets on
// every call. It returns an error only when ctx is cancelled.
func (r *Recorder) Run(ctx context.Context, track string, car gamedata.CarModel, fixedSetup bool) (Outcome, error) {
	r.log.WithFields(logrus.Fields{
		"track":       track,
		"car":         car.Name,
		"fixed_setup": fixedSetup,
	}).Info("Starting recording loop")

	r.fastestLap = 0
	onFixed := true

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		if fixedSetup {
			proceed, err := r.checkSetup(ctx, &onFixed)
			if err != nil {
				return 0, err
			}

			if !proceed {
				if err := r.sleep(ctx, r.pollInterval); err != nil {
					return 0, err
				}

				continue
			}
		}

		info, err := r.sim.GetSessionInfo(ctx)
		if err != nil {
			if outcome, done := r.handleReadError(ctx, err); done {
				return outcome, nil
			}

			if err := r.sleep(ctx, r.pollInterval); err != nil {
				return 0, err
			}

			continue
		}

		if !info.InControlOfVehicle {
			r.log.Info("Session ended during recording")
			r.emit(ctx, Event{Kind: EventSessionEnded, Message: "Session ended. Waiting for new session..."})

			return OutcomeSessionEnded, nil
		}

		standings, err := r.sim.GetStandings(ctx)
		if err != nil {
			if outcome, done := r.handleReadError(ctx, err); done {
				return outcome, nil
			}

			if err := r.sleep(ctx, r.pollInterval); err != nil {
				return 0, err
			}

			continue
		}

		entry := standings[0]

		if !r.isPlausible(entry) {
			if err := r.sleep(ctx, r.pollInterval); err != nil {
				return 0, err
			}

			continue
		}

		// The first valid sample is the session baseline. It may carry a
		// lap set before recording started, so it is never submitted.
		if r.fastestLap == 0 {
			r.fastestLap = entry.BestLapTime

			if err := r.sleep(ctx, r.pollInterval); err != nil {
				return 0, err
			}

			continue
		}

		if entry.BestLapTime >= r.fastestLap {
			if err := r.sleep(ctx, r.pollInterval); err != nil {
				return 0, err
			}

			continue
		}

		r.fastestLap = entry.BestLapTime

		r.log.WithFields(logrus.Fields{
			"lap":     entry.BestLapTime,
			"sector1": entry.BestLapSectorTime1,
			"sector2": entry.BestLapSectorTime2,
		}).Info("New session best")

		r.emit(ctx, Event{
			Kind:    EventLapRecorded,
			Lap:     entry.BestLapTime,
			Message: fmt.Sprintf("Recorded: %.3fs\nWaiting for next lap...", entry.BestLapTime),
		})

		if outcome, done := r.submit(ctx, track, car, entry); done {
			return outcome, nil
		}

		// Longer cooldown so the same lap's residual telemetry does not
		// re-trigger.
		if err := r.sleep(ctx, r.pollInterval*5); err != nil {
			return 0, err
		}
	}
}

// checkSetup enforces the fixed setup requirement. Warnings fire only
// on transitions. It reports whether recording may proceed this tick.
func (r *Recorder) checkSetup(ctx context.Context, onFixed *bool) (bool, error) {
	setup, err := r.sim.GetActiveSetupName(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		r.emit(ctx, Event{Kind: EventWarning, Message: "Error reading setup. Trying again..."})

		return false, nil
	}

	balanced := strings.Contains(setup, defaultSetupName)

	if !balanced {
		if *onFixed {
			*onFixed = false

			r.emit(ctx, Event{
				Kind:    EventWarning,
				Message: "Fixed setup required! Please switch to the default setup to record.",
			})
		}

		return false, nil
	}

	if !*onFixed {
		*onFixed = true

		r.emit(ctx, Event{
			Kind:    EventWarning,
			Message: "Thank you for switching to the default setup! Resuming recording.",
		})
	}

	return true, nil
}

// handleReadError maps a telemetry failure to a terminal outcome, or
// reports that the loop should retry.
func (r *Recorder) handleReadError(ctx context.Context, err error) (Outcome, bool) {
	if errors.Is(err, telemetry.ErrDisconnected) {
		r.log.Warn("Sim disconnected during recording")
		r.emit(ctx, Event{Kind: EventDisconnected, Message: "Waiting for sim..."})

		return OutcomeDisconnected, true
	}

	return 0, false
}

// isPlausible reports whether entry carries a believable lap with
// complete sector boundaries.
func (r *Recorder) isPlausible(entry telemetry.StandingsEntry) bool {
	if entry.BestLapTime < minPlausibleLap {
		return false
	}

	return entry.BestLapSectorTime1 != 0 && entry.BestLapSectorTime2 != 0
}

// submit pushes the new best to the API. A rejection is terminal, any
// other failure is logged and the loop continues.
func (r *Recorder) submit(ctx context.Context, track string, car gamedata.CarModel, entry telemetry.StandingsEntry) (Outcome, bool) {
	driver := entry.DriverName
	if driver == "" {
		driver = "Unknown"
	}

	err := r.api.SubmitLapTime(ctx, r.token, track, backend.Submission{
		TimeData: backend.LapTime{
			Lap:     entry.BestLapTime,
			Sector1: entry.BestLapSectorTime1,
			Sector2: entry.BestLapSectorTime2,
		},
		Car:        car.Name,
		Class:      entry.CarClass,
		DriverName: driver,
	})

	if errors.Is(err, backend.ErrRejected) {
		r.log.Error("Submission rejected, driver blacklisted")
		r.emit(ctx, Event{
			Kind:    EventBlacklisted,
			Message: "Submission failed. Blacklisted. Waiting for session end...",
		})

		return OutcomeBlacklisted, true
	}

	if err != nil {
		r.log.WithError(err).Error("Submission failed")
	}

	return 0, false
}
