package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/simracing-tools/laptrack/pkg/backend"
	"github.com/simracing-tools/laptrack/pkg/gamedata"
	"github.com/simracing-tools/laptrack/pkg/telemetry"
	"github.com/sirupsen/logrus"
)

// standingsAttempts is how many times the validator polls for standings
// before giving up on a freshly loaded session.
const standingsAttempts = 10

// FailReason identifies which validation check rejected the session.
type FailReason int

const (
	FailNone FailReason = iota
	FailStandings
	FailMultipleDrivers
	FailSessionState
	FailUnknownCar
	FailNotPractice
	FailNoLeaderboard
	FailWrongClass
	FailWeather
	FailGrip
)

func (r FailReason) String() string {
	switch r {
	case FailNone:
		return "none"
	case FailStandings:
		return "standings"
	case FailMultipleDrivers:
		return "multiple_drivers"
	case FailSessionState:
		return "session_state"
	case FailUnknownCar:
		return "unknown_car"
	case FailNotPractice:
		return "not_practice"
	case FailNoLeaderboard:
		return "no_leaderboard"
	case FailWrongClass:
		return "wrong_class"
	case FailWeather:
		return "weather"
	case FailGrip:
		return "grip"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Result is the outcome of one validation pass. On success Config, Car
// and Track describe the validated session; on failure Reason and
// Message explain the rejection.
type Result struct {
	Valid   bool
	Reason  FailReason
	Message string

	Config *backend.LeaderboardConfig
	Car    gamedata.CarModel
	Track  string
}

// Validator checks a loaded session against its track's leaderboard
// requirements. Checks run in a fixed order and the first failure wins.
type Validator struct {
	log          logrus.FieldLogger
	sim          telemetry.Client
	api          backend.Client
	cars         gamedata.CarRegistry
	pollInterval time.Duration
	events       chan<- Event
}

// NewValidator creates a session validator. Progress and rejection
// notifications are sent on events.
func NewValidator(
	log logrus.FieldLogger,
	sim telemetry.Client,
	api backend.Client,
	cars gamedata.CarRegistry,
	pollInterval time.Duration,
	events chan<- Event,
) *Validator {
	return &Validator{
		log:          log.WithField("component", "validator"),
		sim:          sim,
		api:          api,
		cars:         cars,
		pollInterval: pollInterval,
		events:       events,
	}
}

func (v *Validator) emit(ctx context.Context, e Event) {
	select {
	case v.events <- e:
	case <-ctx.Done():
	}
}

func fail(reason FailReason, message string) *Result {
	return &Result{Reason: reason, Message: message}
}

// Validate runs the full check sequence against the currently loaded
// session. It returns an error only when ctx is cancelled.
func (v *Validator) Validate(ctx context.Context) (*Result, error) {
	v.log.Info("Validating session conditions")

	standings, err := v.awaitStandings(ctx)
	if err != nil {
		return nil, err
	}

	if standings == nil {
		return fail(FailStandings, "Failed to load standings. Waiting for session end..."), nil
	}

	if len(standings) > 1 {
		return fail(FailMultipleDrivers, "Multiple drivers detected. Only one driver allowed."), nil
	}

	state, err := v.sim.GetSessionState(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return fail(FailSessionState, "Error reading session state. Waiting for session end..."), nil
	}

	sig, err := state.CarSignature()
	if err != nil {
		return fail(FailSessionState, "Error reading session state. Waiting for session end..."), nil
	}

	car, err := v.cars.Get(sig)
	if err != nil {
		return fail(FailUnknownCar, fmt.Sprintf(
			"Unknown car (sig: %s). Waiting for session end...", gamedata.ShortSig(sig),
		)), nil
	}

	if state.State.GameSession != "PRACTICE1" {
		return fail(FailNotPractice, "Not in practice. Waiting for session end..."), nil
	}

	track := state.Track()

	cfg, err := v.api.GetLeaderboardConfig(ctx, track)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return fail(FailNoLeaderboard, "No leaderboard for this track. Waiting for session end..."), nil
	}

	if res := v.checkClass(standings[0].CarClass, cfg.Classes); res != nil {
		return res, nil
	}

	if res, err := v.checkWeather(ctx, cfg.Weather); err != nil || res != nil {
		return res, err
	}

	if res, err := v.checkGrip(ctx, cfg.Weather.GripLevel); err != nil || res != nil {
		return res, err
	}

	v.log.WithField("track", track).Info("All conditions met, session valid")

	return &Result{Valid: true, Config: cfg, Car: car, Track: track}, nil
}

// awaitStandings polls for standings while the session finishes
// loading. A nil slice with nil error means the session never produced
// standings within the attempt budget.
func (v *Validator) awaitStandings(ctx context.Context) ([]telemetry.StandingsEntry, error) {
	for attempt := 1; attempt <= standingsAttempts; attempt++ {
		standings, err := v.sim.GetStandings(ctx)
		if err == nil && len(standings) > 0 {
			return standings, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		v.emit(ctx, Event{
			Kind:    EventStatus,
			Message: fmt.Sprintf("Loading... (%d/%d)", attempt, standingsAttempts),
		})

		select {
		case <-time.After(v.pollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, nil
}

func (v *Validator) checkClass(carClass string, allowed []int) *Result {
	code, known := gamedata.ClassCode(carClass)

	permitted := false

	if known {
		for _, c := range allowed {
			if int(code) == c {
				permitted = true

				break
			}
		}
	}

	if !permitted {
		names := make([]string, 0, len(allowed))
		for _, c := range allowed {
			names = append(names, gamedata.CarClass(c).String())
		}

		return fail(FailWrongClass, fmt.Sprintf(
			"Wrong class! Yours: %s\nAllowed: %s", carClass, strings.Join(names, ", "),
		))
	}

	return nil
}

func (v *Validator) checkWeather(ctx context.Context, required gamedata.RequiredWeather) (*Result, error) {
	slots, err := v.sim.GetWeatherSlots(ctx)
	if err != nil || len(slots) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return fail(FailWeather, "Error reading weather. Waiting for session end..."), nil
	}

	matches, badIdx := gamedata.WeatherMatches(slots, required)
	if !matches {
		bad := slots[badIdx]

		return fail(FailWeather, fmt.Sprintf(
			"Weather incorrect!\nRequired: %s, %g°C, %g%%\nSlot %d: %s, %g°C, %g%%",
			gamedata.WeatherCondition(required.Condition), required.Temperature, required.Rain,
			badIdx+1,
			gamedata.WeatherCondition(bad.Condition), bad.Temperature, bad.Rain,
		)), nil
	}

	return nil, nil
}

func (v *Validator) checkGrip(ctx context.Context, required int) (*Result, error) {
	grip, err := v.sim.GetGripLevel(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return fail(FailGrip, "Error reading grip level. Waiting for session end..."), nil
	}

	if grip != required {
		return fail(FailGrip, fmt.Sprintf(
			"Grip level incorrect!\nRequired: %s\nCurrent: %s",
			gamedata.GripLevel(required), gamedata.GripLevel(grip),
		)), nil
	}

	return nil, nil
}
