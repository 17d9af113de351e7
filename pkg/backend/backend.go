// Package backend is the HTTP client for the leaderboard API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/simracing-tools/laptrack/pkg/gamedata"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every backend round-trip.
const DefaultTimeout = 5 * time.Second

var (
	// ErrRejected indicates the API refused the request (HTTP 403 or
	// 404). Callers treat it as terminal for the current attempt.
	ErrRejected = errors.New("request rejected")

	// ErrUnavailable indicates the API could not be reached or answered
	// with an unexpected status.
	ErrUnavailable = errors.New("backend unavailable")
)

// LapTime is the recorded time payload for a submission.
type LapTime struct {
	Lap     float64 `json:"lap"`
	Sector1 float64 `json:"sector1"`
	Sector2 float64 `json:"sector2"`
}

// Submission is a complete lap time submission.
type Submission struct {
	TimeData   LapTime `json:"time_data"`
	Car        string  `json:"car"`
	Class      string  `json:"class"`
	DriverName string  `json:"driver_name"`
}

// LeaderboardConfig is the per-track configuration the validator
// checks a session against.
type LeaderboardConfig struct {
	Track          string                   `json:"track"`
	DiscordChannel int64                    `json:"discord_channel"`
	Weather        gamedata.RequiredWeather `json:"weather"`
	Classes        []int                    `json:"classes"`
	TimeOfDay      int                      `json:"time_of_day"`
	FixedSetup     bool                     `json:"fixed_setup"`
}

// Client talks to the leaderboard API.
type Client interface {
	// GetVersion returns the API's advertised version string.
	GetVersion(ctx context.Context) (string, error)

	// GetCarModels returns the signature to car model table.
	GetCarModels(ctx context.Context) (map[string]gamedata.CarModel, error)

	// GetLeaderboardConfig returns the config for track, or ErrRejected
	// when no leaderboard exists for it.
	GetLeaderboardConfig(ctx context.Context, track string) (*LeaderboardConfig, error)

	// SubmitLapTime submits a lap time for track. Submissions are
	// throttled locally to stay inside the API's submit budget.
	SubmitLapTime(ctx context.Context, token, track string, sub Submission) error

	// GetUsername resolves the display name behind token.
	GetUsername(ctx context.Context, token string) (string, error)

	// Logout invalidates token.
	Logout(ctx context.Context, token string) error

	// DiscordAuthURL returns the OAuth URL to start a login with state.
	DiscordAuthURL(ctx context.Context, state string) (string, error)
}

// NewClient creates a backend client for the API at baseURL.
func NewClient(log logrus.FieldLogger, baseURL string) Client {
	return &client{
		log:     log.WithField("component", "backend"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		// Matches the API's submit window of 10 requests per minute.
		submitLimiter: rate.NewLimiter(rate.Every(6*time.Second), 1),
	}
}

type client struct {
	log           logrus.FieldLogger
	baseURL       string
	http          *http.Client
	submitLimiter *rate.Limiter
}

// Ensure interface compliance.
var _ Client = (*client)(nil)

func (c *client) do(ctx context.Context, method, endpoint, token string, body, v any) error {
	var reader *bytes.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}

		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("endpoint", endpoint).Debug("Backend request failed")

		return ErrUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		if v != nil {
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
		}

		return nil
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		return ErrRejected
	default:
		c.log.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Debug("Unexpected backend status")

		return ErrUnavailable
	}
}

func (c *client) GetVersion(ctx context.Context) (string, error) {
	var result struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "version", "", nil, &result); err != nil {
		return "", err
	}

	return result.Version, nil
}

func (c *client) GetCarModels(ctx context.Context) (map[string]gamedata.CarModel, error) {
	var models map[string]gamedata.CarModel
	if err := c.do(ctx, http.MethodGet, "cars", "", nil, &models); err != nil {
		return nil, err
	}

	return models, nil
}

func (c *client) GetLeaderboardConfig(ctx context.Context, track string) (*LeaderboardConfig, error) {
	var cfg LeaderboardConfig

	endpoint := "leaderboard/" + url.PathEscape(track)
	if err := c.do(ctx, http.MethodGet, endpoint, "", nil, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *client) SubmitLapTime(ctx context.Context, token, track string, sub Submission) error {
	if err := c.submitLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for submit slot: %w", err)
	}

	var result struct {
		Message string `json:"message"`
	}

	endpoint := "leaderboard/" + url.PathEscape(track) + "/submit"
	if err := c.do(ctx, http.MethodPost, endpoint, token, sub, &result); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"track": track,
		"lap":   sub.TimeData.Lap,
	}).Info("Lap time submitted")

	return nil
}

func (c *client) GetUsername(ctx context.Context, token string) (string, error) {
	var result struct {
		Name string `json:"name"`
	}

	if err := c.do(ctx, http.MethodGet, "user", token, nil, &result); err != nil {
		return "", err
	}

	return result.Name, nil
}

func (c *client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "user/logout", token, struct{}{}, nil)
}

func (c *client) DiscordAuthURL(ctx context.Context, state string) (string, error) {
	var result struct {
		URL string `json:"url"`
	}

	endpoint := "discord?state=" + url.QueryEscape(state)
	if err := c.do(ctx, http.MethodGet, endpoint, "", nil, &result); err != nil {
		return "", err
	}

	return result.URL, nil
}
