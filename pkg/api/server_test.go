package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simracing-tools/laptrack/pkg/api/store"
	"github.com/simracing-tools/laptrack/pkg/config"
)

func testAPIConfig() *config.APIConfig {
	return &config.APIConfig{
		Server: config.APIServerConfig{
			Listen: ":0",
			// Disabled by default so handler tests are not throttled.
			RateLimit: config.RateLimitConfig{Enabled: false},
		},
		Auth: config.DiscordAuthConfig{
			ClientID:            "client-id",
			ClientSecret:        "client-secret",
			CallbackURL:         "http://localhost:8000/discord/callback",
			HomeGuildID:         "guild-1",
			ApplicationCallback: "http://localhost:3000/auth",
		},
		Database: config.APIDatabaseConfig{
			Driver: "sqlite",
			SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
		},
		Leaderboards: []config.LeaderboardSeed{
			{
				Track:          "monza",
				DiscordChannel: 42,
				Weather: config.WeatherSeed{
					Condition:   2,
					Temperature: 22.0,
					Rain:        0,
					GripLevel:   3,
				},
				Classes:   []int{0, 1},
				TimeOfDay: 14,
			},
		},
		Cars: map[string]config.CarConfig{
			"deadbeef": {Name: "Ferrari 499P", Class: "Hyper"},
		},
	}
}

// newTestServer builds a server with an in-memory store and seeded
// leaderboards, without binding a listener.
func newTestServer(t *testing.T, cfg *config.APIConfig) (*server, http.Handler) {
	t.Helper()

	log := logrus.New()

	st := store.NewStore(log, &cfg.Database)
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { _ = st.Stop() })

	require.NoError(
		t, st.SeedLeaderboards(context.Background(), cfg.Leaderboards),
	)

	srv := &server{
		log:             log,
		cfg:             cfg,
		version:         "1.2.3",
		store:           st,
		limiter:         newRateLimiter(&cfg.Server.RateLimit),
		oauthClient:     http.DefaultClient,
		discordTokenURL: discordTokenURL,
		discordAPIBase:  discordAPIBase,
		done:            make(chan struct{}),
	}

	return srv, srv.buildRouter()
}

// authToken creates an auth session directly in the store.
func authToken(t *testing.T, srv *server, driverID, name string) string {
	t.Helper()

	token, err := generateToken()
	require.NoError(t, err)

	require.NoError(t, srv.store.CreateAuthSession(
		context.Background(), &store.AuthSession{
			Token:      token,
			DriverID:   driverID,
			DriverName: name,
		},
	))

	return token
}

func doRequest(
	router http.Handler, method, path, token, body string,
) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestHandleVersion(t *testing.T) {
	_, router := newTestServer(t, testAPIConfig())

	rec := doRequest(router, http.MethodGet, "/version", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1.2.3", body["version"])
}

func TestHandleCars(t *testing.T) {
	_, router := newTestServer(t, testAPIConfig())

	rec := doRequest(router, http.MethodGet, "/cars", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]struct {
		Name  string `json:"name"`
		Class string `json:"class"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "deadbeef")
	assert.Equal(t, "Ferrari 499P", body["deadbeef"].Name)
	assert.Equal(t, "Hyper", body["deadbeef"].Class)
}

func TestHandleGetLeaderboard(t *testing.T) {
	_, router := newTestServer(t, testAPIConfig())

	rec := doRequest(router, http.MethodGet, "/leaderboard/monza", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Track          string `json:"track"`
		DiscordChannel int64  `json:"discord_channel"`
		Classes        []int  `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "monza", body.Track)
	assert.Equal(t, int64(42), body.DiscordChannel)
	assert.Equal(t, []int{0, 1}, body.Classes)
}

func TestHandleGetLeaderboard_NotFound(t *testing.T) {
	_, router := newTestServer(t, testAPIConfig())

	rec := doRequest(router, http.MethodGet, "/leaderboard/spa", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Leaderboard not found")
}

func submitBody(lap, s1, s2 float64) string {
	return fmt.Sprintf(
		`{"time_data":{"lap":%g,"sector1":%g,"sector2":%g},"car":"Ferrari 499P","driver_name":"Max","class":"Hyper"}`,
		lap, s1, s2,
	)
}

func TestHandleSubmitTime(t *testing.T) {
	srv, router := newTestServer(t, testAPIConfig())
	token := authToken(t, srv, "driver-1", "Max")

	rec := doRequest(router, http.MethodPost,
		"/leaderboard/monza/submit", token, submitBody(94.5, 30.1, 31.2))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Time submitted successfully")

	// A slower lap is accepted but does not replace the stored best.
	rec = doRequest(router, http.MethodPost,
		"/leaderboard/monza/submit", token, submitBody(96.0, 31.0, 32.0))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/leaderboard/monza/times", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var times []struct {
		DriverName string  `json:"driver_name"`
		Lap        float64 `json:"lap"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &times))
	require.Len(t, times, 1)
	assert.Equal(t, "Max", times[0].DriverName)
	assert.InDelta(t, 94.5, times[0].Lap, 0.001)
}

func TestHandleSubmitTime_MissingAuth(t *testing.T) {
	_, router := newTestServer(t, testAPIConfig())

	rec := doRequest(router, http.MethodPost,
		"/leaderboard/monza/submit", "", submitBody(94.5, 30.1, 31.2))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing Authorization header")
}

func TestHandleSubmitTime_InvalidToken(t *testing.T) {
	_, router := newTestServer(t, testAPIConfig())

	rec := doRequest(router, http.MethodPost,
		"/leaderboard/monza/submit", "bogus", submitBody(94.5, 30.1, 31.2))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid token")
}

func TestHandleSubmitTime_Blacklisted(t *testing.T) {
	srv, router := newTestServer(t, testAPIConfig())
	token := authToken(t, srv, "driver-1", "Max")

	require.NoError(t, srv.store.Blacklist(
		context.Background(), "driver-1", "cutting",
	))

	rec := doRequest(router, http.MethodPost,
		"/leaderboard/monza/submit", token, submitBody(94.5, 30.1, 31.2))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "You are blacklisted")
}

func TestHandleSubmitTime_UnknownTrack(t *testing.T) {
	srv, router := newTestServer(t, testAPIConfig())
	token := authToken(t, srv, "driver-1", "Max")

	rec := doRequest(router, http.MethodPost,
		"/leaderboard/spa/submit", token, submitBody(94.5, 30.1, 31.2))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Leaderboard not found")
}

func TestHandleSubmitTime_Validation(t *testing.T) {
	srv, router := newTestServer(t, testAPIConfig())
	token := authToken(t, srv, "driver-1", "Max")

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "invalid json",
			body:    "{",
			wantMsg: "Invalid JSON body",
		},
		{
			name:    "missing time_data",
			body:    `{"car":"c","driver_name":"d","class":"GT3"}`,
			wantMsg: "time_data is required and must be an object",
		},
		{
			name:    "blank car",
			body:    `{"time_data":{"lap":90,"sector1":30,"sector2":31},"car":"  ","driver_name":"d","class":"GT3"}`,
			wantMsg: "car is required and must be a non-empty string",
		},
		{
			name:    "missing driver name",
			body:    `{"time_data":{"lap":90,"sector1":30,"sector2":31},"car":"c","class":"GT3"}`,
			wantMsg: "driver_name is required and must be a non-empty string",
		},
		{
			name:    "missing class",
			body:    `{"time_data":{"lap":90,"sector1":30,"sector2":31},"car":"c","driver_name":"d"}`,
			wantMsg: "class is required and must be a non-empty string",
		},
		{
			name:    "missing lap",
			body:    `{"time_data":{"sector1":30,"sector2":31},"car":"c","driver_name":"d","class":"GT3"}`,
			wantMsg: "time_data.lap is required",
		},
		{
			name:    "missing sector1",
			body:    `{"time_data":{"lap":90,"sector2":31},"car":"c","driver_name":"d","class":"GT3"}`,
			wantMsg: "time_data.sector1 is required",
		},
		{
			name:    "missing sector2",
			body:    `{"time_data":{"lap":90,"sector1":30},"car":"c","driver_name":"d","class":"GT3"}`,
			wantMsg: "time_data.sector2 is required",
		},
		{
			name:    "zero lap",
			body:    `{"time_data":{"lap":0,"sector1":30,"sector2":31},"car":"c","driver_name":"d","class":"GT3"}`,
			wantMsg: "lap_time must be greater than 0",
		},
		{
			name:    "zero sector1",
			body:    `{"time_data":{"lap":90,"sector1":0,"sector2":31},"car":"c","driver_name":"d","class":"GT3"}`,
			wantMsg: "sector1 must be -1 or greater than 0",
		},
		{
			name:    "negative sector2",
			body:    `{"time_data":{"lap":90,"sector1":30,"sector2":-2},"car":"c","driver_name":"d","class":"GT3"}`,
			wantMsg: "sector2 must be -1 or greater than 0",
		},
		{
			name: "driver name too long",
			body: `{"time_data":{"lap":90,"sector1":30,"sector2":31},"car":"c","driver_name":"` +
				strings.Repeat("x", 101) + `","class":"GT3"}`,
			wantMsg: "driver_name must not exceed 100 characters",
		},
		{
			name: "class too long",
			body: `{"time_data":{"lap":90,"sector1":30,"sector2":31},"car":"c","driver_name":"d","class":"` +
				strings.Repeat("x", 51) + `"}`,
			wantMsg: "class must not exceed 50 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost,
				"/leaderboard/monza/submit", token, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

func TestHandleSubmitTime_MissingSectorsAccepted(t *testing.T) {
	srv, router := newTestServer(t, testAPIConfig())
	token := authToken(t, srv, "driver-1", "Max")

	rec := doRequest(router, http.MethodPost,
		"/leaderboard/monza/submit", token, submitBody(94.5, -1, -1))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleUser(t *testing.T) {
	srv, router := newTestServer(t, testAPIConfig())
	token := authToken(t, srv, "driver-1", "Max")

	rec := doRequest(router, http.MethodGet, "/user", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Max", body["name"])
}

func TestHandleLogout(t *testing.T) {
	srv, router := newTestServer(t, testAPIConfig())
	token := authToken(t, srv, "driver-1", "Max")

	rec := doRequest(router, http.MethodPost, "/user/logout", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Logged out successfully")

	// The token is gone.
	rec = doRequest(router, http.MethodGet, "/user", token, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testAPIConfig()
	cfg.Server.RateLimit = *testRateLimitConfig()
	cfg.Server.RateLimit.Submit = config.RateLimitBudget{
		MaxRequests: 2, WindowSeconds: 60,
	}

	srv, router := newTestServer(t, cfg)
	token := authToken(t, srv, "driver-1", "Max")

	for i := 0; i < 2; i++ {
		rec := doRequest(router, http.MethodPost,
			"/leaderboard/monza/submit", token, submitBody(94.5, 30, 31))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(router, http.MethodPost,
		"/leaderboard/monza/submit", token, submitBody(94.0, 30, 31))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body rateLimitedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body.Error)
	assert.Greater(t, body.RetryAfter, 0)
}

func TestRateLimitMiddleware_UnmappedRouteBypasses(t *testing.T) {
	cfg := testAPIConfig()
	cfg.Server.RateLimit = *testRateLimitConfig()
	cfg.Server.RateLimit.General = config.RateLimitBudget{
		MaxRequests: 1, WindowSeconds: 60,
	}

	_, router := newTestServer(t, cfg)

	for i := 0; i < 5; i++ {
		rec := doRequest(router, http.MethodGet, "/version", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestHandleDiscordAuth(t *testing.T) {
	_, router := newTestServer(t, testAPIConfig())

	rec := doRequest(router, http.MethodGet, "/discord?state=xyz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	parsed, err := url.Parse(body["url"])
	require.NoError(t, err)
	assert.Equal(t, "discord.com", parsed.Host)
	assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
	assert.Equal(t, "code", parsed.Query().Get("response_type"))
	assert.Equal(t, "identify guilds", parsed.Query().Get("scope"))
	assert.Equal(t, "xyz", parsed.Query().Get("state"))
}

func TestHandleDiscordCallback_MissingCode(t *testing.T) {
	_, router := newTestServer(t, testAPIConfig())

	rec := doRequest(router, http.MethodGet, "/discord/callback", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing code parameter")
}

// fakeDiscord serves the token exchange and user endpoints.
func fakeDiscord(t *testing.T, guildID string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "client-id", user)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.FormValue("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-123", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"discord-1","username":"Max"}`))
	})
	mux.HandleFunc("/users/@me/guilds", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"` + guildID + `"}]`))
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return ts
}

func TestHandleDiscordCallback(t *testing.T) {
	srv, router := newTestServer(t, testAPIConfig())

	ts := fakeDiscord(t, "guild-1")
	srv.discordTokenURL = ts.URL + "/oauth2/token"
	srv.discordAPIBase = ts.URL

	rec := doRequest(router, http.MethodGet,
		"/discord/callback?code=abc&state=xyz", "", "")
	require.Equal(t, http.StatusFound, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", redirect.Query().Get("state"))
	assert.Equal(t, "Max", redirect.Query().Get("name"))

	// The redirected token resolves to a live session.
	token := redirect.Query().Get("code")
	require.NotEmpty(t, token)

	userRec := doRequest(router, http.MethodGet, "/user", token, "")
	require.Equal(t, http.StatusOK, userRec.Code)
	assert.Contains(t, userRec.Body.String(), "Max")
}

func TestHandleDiscordCallback_NotAMember(t *testing.T) {
	srv, router := newTestServer(t, testAPIConfig())

	ts := fakeDiscord(t, "other-guild")
	srv.discordTokenURL = ts.URL + "/oauth2/token"
	srv.discordAPIBase = ts.URL

	rec := doRequest(router, http.MethodGet,
		"/discord/callback?code=abc", "", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "You must be a member of the Discord server")
}
