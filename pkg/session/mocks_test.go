package session

import (
	"context"

	"github.com/simracing-tools/laptrack/pkg/backend"
	"github.com/simracing-tools/laptrack/pkg/gamedata"
	"github.com/simracing-tools/laptrack/pkg/telemetry"
)

// simStep scripts one polling iteration of the fake sim.
type simStep struct {
	inControl    bool
	infoErr      error
	entries      []telemetry.StandingsEntry
	standingsErr error
	setup        string
	setupErr     error
}

type fakeSim struct {
	steps []simStep
	idx   int

	state    *telemetry.SessionState
	stateErr error
	slots    []gamedata.WeatherSlot
	slotsErr error
	grip     int
	gripErr  error

	// setups is consumed one per GetActiveSetupName call, the last
	// entry repeating. Empty falls back to the current step's setup.
	setups   []string
	setupIdx int
}

var _ telemetry.Client = (*fakeSim)(nil)

func (f *fakeSim) current() simStep {
	if f.idx >= len(f.steps) {
		return f.steps[len(f.steps)-1]
	}

	return f.steps[f.idx]
}

func (f *fakeSim) ProbeConnection(context.Context) bool { return true }

func (f *fakeSim) GetSessionState(context.Context) (*telemetry.SessionState, error) {
	return f.state, f.stateErr
}

func (f *fakeSim) GetSessionInfo(context.Context) (*telemetry.SessionInfo, error) {
	step := f.current()
	if step.infoErr != nil {
		return nil, step.infoErr
	}

	return &telemetry.SessionInfo{InControlOfVehicle: step.inControl}, nil
}

func (f *fakeSim) GetStandings(context.Context) ([]telemetry.StandingsEntry, error) {
	step := f.current()
	f.idx++

	if step.standingsErr != nil {
		return nil, step.standingsErr
	}

	return step.entries, nil
}

func (f *fakeSim) GetWeatherSlots(context.Context) ([]gamedata.WeatherSlot, error) {
	return f.slots, f.slotsErr
}

func (f *fakeSim) GetGripLevel(context.Context) (int, error) {
	return f.grip, f.gripErr
}

func (f *fakeSim) GetActiveSetupName(context.Context) (string, error) {
	if len(f.setups) > 0 {
		idx := f.setupIdx
		if idx >= len(f.setups) {
			idx = len(f.setups) - 1
		}

		f.setupIdx++

		return f.setups[idx], nil
	}

	step := f.current()

	return step.setup, step.setupErr
}

func (f *fakeSim) ApplySessionSettings(context.Context, gamedata.RequiredWeather, int) error {
	return nil
}

type fakeAPI struct {
	cfg    *backend.LeaderboardConfig
	cfgErr error

	submissions []backend.Submission
	submitErrs  []error
}

var _ backend.Client = (*fakeAPI)(nil)

func (f *fakeAPI) GetVersion(context.Context) (string, error) { return "test", nil }

func (f *fakeAPI) GetCarModels(context.Context) (map[string]gamedata.CarModel, error) {
	return nil, nil
}

func (f *fakeAPI) GetLeaderboardConfig(context.Context, string) (*backend.LeaderboardConfig, error) {
	return f.cfg, f.cfgErr
}

func (f *fakeAPI) SubmitLapTime(_ context.Context, _, _ string, sub backend.Submission) error {
	f.submissions = append(f.submissions, sub)

	if len(f.submitErrs) >= len(f.submissions) {
		return f.submitErrs[len(f.submissions)-1]
	}

	return nil
}

func (f *fakeAPI) GetUsername(context.Context, string) (string, error) { return "tester", nil }

func (f *fakeAPI) Logout(context.Context, string) error { return nil }

func (f *fakeAPI) DiscordAuthURL(context.Context, string) (string, error) { return "", nil }
