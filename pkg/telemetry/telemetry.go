// Package telemetry wraps the sim's local REST API. Transport failures
// never escape as raw errors: every operation translates them into the
// disconnected/unavailable sentinels the session loops dispatch on.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/simracing-tools/laptrack/pkg/gamedata"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds every round-trip to the sim.
const DefaultTimeout = 5 * time.Second

var (
	// ErrDisconnected indicates the sim process is not reachable or the
	// queried endpoint is gone (connection refused or HTTP 404).
	ErrDisconnected = errors.New("sim disconnected")

	// ErrUnavailable indicates a transient read failure worth retrying.
	ErrUnavailable = errors.New("telemetry unavailable")

	// ErrNoData indicates the sim answered but has no data yet, distinct
	// from a disconnect.
	ErrNoData = errors.New("no telemetry data")
)

// Client exposes the subset of the sim API the recorder needs.
type Client interface {
	// ProbeConnection reports whether the sim process is reachable.
	ProbeConnection(ctx context.Context) bool

	// GetSessionState returns the navigation/loading state.
	GetSessionState(ctx context.Context) (*SessionState, error)

	// GetSessionInfo returns the in-game state flags.
	GetSessionInfo(ctx context.Context) (*SessionInfo, error)

	// GetStandings returns the current standings. An empty standings
	// payload is reported as ErrDisconnected, matching the sim's
	// behaviour of emptying the list when no session is loaded.
	GetStandings(ctx context.Context) ([]StandingsEntry, error)

	// GetWeatherSlots returns the practice forecast slots in
	// reverse session order.
	GetWeatherSlots(ctx context.Context) ([]gamedata.WeatherSlot, error)

	// GetGripLevel returns the practice real-road starting grip code.
	GetGripLevel(ctx context.Context) (int, error)

	// GetActiveSetupName returns the name of the garage setup in use.
	GetActiveSetupName(ctx context.Context) (string, error)

	// ApplySessionSettings forces a practice-only session matching the
	// required conditions. A non-nil error carries a user-presentable
	// message naming the first setting that could not be applied.
	ApplySessionSettings(ctx context.Context, required gamedata.RequiredWeather, timeOfDay int) error
}

// SessionInfo is the in-game state subset the loops dispatch on.
type SessionInfo struct {
	InControlOfVehicle bool `json:"inControlOfVehicle"`
}

// StandingsEntry is one driver's row in the standings payload.
type StandingsEntry struct {
	DriverName         string  `json:"driverName"`
	CarClass           string  `json:"carClass"`
	BestLapTime        float64 `json:"bestLapTime"`
	BestLapSectorTime1 float64 `json:"bestLapSectorTime1"`
	BestLapSectorTime2 float64 `json:"bestLapSectorTime2"`
}

// SessionState is the navigation state around session loading.
type SessionState struct {
	LoadingStatus LoadingStatus `json:"loadingStatus"`
	State         GameState     `json:"state"`
}

// LoadingStatus describes what the sim has loaded.
type LoadingStatus struct {
	LoadingData string    `json:"loadingData"`
	Track       TrackInfo `json:"track"`
}

// TrackInfo identifies the loaded circuit.
type TrackInfo struct {
	SceneDesc string `json:"sceneDesc"`
}

// GameState carries the active session slot.
type GameState struct {
	GameSession string `json:"gameSession"`
}

// CarSignature extracts the selected car's loadout signature from the
// loading data blob.
func (s *SessionState) CarSignature() (string, error) {
	var payload struct {
		SelectedCar struct {
			Sig string `json:"sig"`
		} `json:"selectedCar"`
	}

	if err := json.Unmarshal([]byte(s.LoadingStatus.LoadingData), &payload); err != nil {
		return "", fmt.Errorf("parsing loading data: %w", err)
	}

	return payload.SelectedCar.Sig, nil
}

// Track returns the loaded track identifier.
func (s *SessionState) Track() string {
	return s.LoadingStatus.Track.SceneDesc
}

// NewClient creates a telemetry client for the sim API at baseURL.
func NewClient(log logrus.FieldLogger, baseURL string) Client {
	return &client{
		log:     log.WithField("component", "telemetry"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

type client struct {
	log     logrus.FieldLogger
	baseURL string
	http    *http.Client
}

// Ensure interface compliance.
var _ Client = (*client)(nil)

// get performs a GET against the sim API and decodes the response into v.
func (c *client) get(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+"/"+endpoint, nil,
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ErrDisconnected
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return ErrUnavailable
		}

		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrDisconnected
	default:
		return ErrUnavailable
	}
}

// post performs a POST against the sim API and decodes the response into v.
func (c *client) post(ctx context.Context, endpoint, contentType string, body []byte, v any) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return ErrDisconnected
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if v != nil {
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return ErrUnavailable
			}
		}

		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrDisconnected
	default:
		return ErrUnavailable
	}
}

// ProbeConnection reports whether the sim API answers at all.
func (c *client) ProbeConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+"/swagger-schema.json", nil,
	)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

func (c *client) GetSessionState(ctx context.Context) (*SessionState, error) {
	var state SessionState
	if err := c.get(ctx, "navigation/state", &state); err != nil {
		return nil, err
	}

	return &state, nil
}

func (c *client) GetSessionInfo(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.get(ctx, "rest/sessions/GetGameState", &info); err != nil {
		return nil, err
	}

	return &info, nil
}

func (c *client) GetStandings(ctx context.Context) ([]StandingsEntry, error) {
	var entries []StandingsEntry
	if err := c.get(ctx, "rest/watch/standings", &entries); err != nil {
		return nil, err
	}

	// The sim empties the list when no session is loaded.
	if len(entries) == 0 {
		return nil, ErrDisconnected
	}

	return entries, nil
}

// settingValue is the sim's envelope around a single setting.
type settingValue struct {
	CurrentValue float64 `json:"currentValue"`
}

// weatherNode is one forecast node's settings.
type weatherNode map[string]settingValue

// weatherNodeOrder lists the practice forecast nodes in session order.
var weatherNodeOrder = []string{"START", "NODE_25", "NODE_50", "NODE_75", "FINISH"}

func (c *client) GetWeatherSlots(ctx context.Context) ([]gamedata.WeatherSlot, error) {
	var payload map[string]map[string]weatherNode
	if err := c.get(ctx, "rest/sessions/weather", &payload); err != nil {
		return nil, err
	}

	practice, ok := payload["PRACTICE"]
	if !ok {
		return nil, ErrUnavailable
	}

	slots := make([]gamedata.WeatherSlot, 0, len(weatherNodeOrder))

	// Walk nodes back to front so the last forecast slot is checked first.
	for i := len(weatherNodeOrder) - 1; i >= 0; i-- {
		node, ok := practice[weatherNodeOrder[i]]
		if !ok {
			continue
		}

		slots = append(slots, gamedata.WeatherSlot{
			Condition:   int(node["WNV_SKY"].CurrentValue),
			Temperature: node["WNV_TEMPERATURE"].CurrentValue,
			Rain:        node["WNV_RAIN_CHANCE"].CurrentValue,
		})
	}

	return slots, nil
}

// gripSetting is the practice real-road starting grip session setting.
const gripSetting = "SESSSET_pract1_realroad_init"

func (c *client) GetGripLevel(ctx context.Context) (int, error) {
	settings, err := c.getSessionSettings(ctx)
	if err != nil {
		return 0, err
	}

	grip, ok := settings[gripSetting]
	if !ok {
		return 0, ErrUnavailable
	}

	return int(grip.CurrentValue), nil
}

func (c *client) getSessionSettings(ctx context.Context) (map[string]settingValue, error) {
	var settings map[string]settingValue
	if err := c.get(ctx, "rest/sessions", &settings); err != nil {
		return nil, err
	}

	return settings, nil
}

func (c *client) GetActiveSetupName(ctx context.Context) (string, error) {
	var summary struct {
		ActiveSetup string `json:"activeSetup"`
	}

	if err := c.get(ctx, "rest/garage/summary", &summary); err != nil {
		return "", err
	}

	return summary.ActiveSetup, nil
}
