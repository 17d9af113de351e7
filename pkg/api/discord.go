package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/simracing-tools/laptrack/pkg/api/store"
)

const (
	discordAuthorizeURL = "https://discord.com/oauth2/authorize"
	discordTokenURL     = "https://discord.com/api/v10/oauth2/token"
	discordAPIBase      = "https://discord.com/api/v10"

	discordTimeout = 10 * time.Second
)

type discordTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type discordGuild struct {
	ID string `json:"id"`
}

func (s *server) handleDiscordAuth(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = "default"
	}

	q := url.Values{}
	q.Set("client_id", s.cfg.Auth.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", s.cfg.Auth.CallbackURL)
	q.Set("scope", "identify guilds")
	q.Set("state", state)

	writeJSON(w, http.StatusOK, map[string]string{
		"url": discordAuthorizeURL + "?" + q.Encode(),
	})
}

func (s *server) handleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")

	state := r.URL.Query().Get("state")
	if state == "" {
		state = "default"
	}

	if code == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"Missing code parameter"})

		return
	}

	accessToken, err := s.exchangeCode(r.Context(), code)
	if err != nil {
		s.log.WithError(err).Warn("Discord code exchange failed")
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"Token exchange failed"})

		return
	}

	user, guilds, err := s.fetchDiscordUser(r.Context(), accessToken)
	if err != nil {
		s.log.WithError(err).Error("Failed to fetch Discord user")
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	member := false

	for _, g := range guilds {
		if g.ID == s.cfg.Auth.HomeGuildID {
			member = true

			break
		}
	}

	if !member {
		writeJSON(w, http.StatusForbidden,
			errorResponse{"You must be a member of the Discord server"})

		return
	}

	token, err := generateToken()
	if err != nil {
		s.log.WithError(err).Error("Failed to generate session token")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"Internal server error"})

		return
	}

	session := &store.AuthSession{
		Token:      token,
		DriverID:   user.ID,
		DriverName: user.Username,
	}
	if err := s.store.CreateAuthSession(r.Context(), session); err != nil {
		s.log.WithError(err).Error("Failed to create auth session")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"Internal server error"})

		return
	}

	s.log.WithField("driver", user.Username).Info("User authenticated")

	redirect := fmt.Sprintf("%s?state=%s&code=%s&name=%s",
		s.cfg.Auth.ApplicationCallback,
		url.QueryEscape(state),
		url.QueryEscape(token),
		url.QueryEscape(user.Username))
	http.Redirect(w, r, redirect, http.StatusFound)
}

// exchangeCode trades an OAuth authorization code for an access token.
func (s *server) exchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", s.cfg.Auth.CallbackURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.discordTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.Auth.ClientID, s.cfg.Auth.ClientSecret)

	resp, err := s.oauthClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchanging code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tok discordTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	return tok.AccessToken, nil
}

// fetchDiscordUser loads the authenticated user's identity and guild
// memberships.
func (s *server) fetchDiscordUser(
	ctx context.Context, accessToken string,
) (*discordUser, []discordGuild, error) {
	var user discordUser
	if err := s.discordGet(ctx, accessToken, "/users/@me", &user); err != nil {
		return nil, nil, fmt.Errorf("fetching user: %w", err)
	}

	var guilds []discordGuild
	if err := s.discordGet(ctx, accessToken, "/users/@me/guilds", &guilds); err != nil {
		return nil, nil, fmt.Errorf("fetching guilds: %w", err)
	}

	return &user, guilds, nil
}

func (s *server) discordGet(
	ctx context.Context, accessToken, path string, out any,
) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.discordAPIBase+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.oauthClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// generateToken returns a URL-safe random session token.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
