package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/simracing-tools/laptrack/pkg/api/store"
	"github.com/simracing-tools/laptrack/pkg/gamedata"
)

type errorResponse struct {
	Error string `json:"error"`
}

type rateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *server) handleCars(w http.ResponseWriter, _ *http.Request) {
	models := make(map[string]gamedata.CarModel, len(s.cfg.Cars))
	for sig, car := range s.cfg.Cars {
		models[sig] = gamedata.CarModel{Name: car.Name, Class: car.Class}
	}

	writeJSON(w, http.StatusOK, models)
}

func (s *server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	track := chi.URLParam(r, "track")

	lb, err := s.store.GetLeaderboard(r.Context(), track)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"Leaderboard not found"})

			return
		}

		s.log.WithError(err).Error("Failed to load leaderboard")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"Internal server error"})

		return
	}

	writeJSON(w, http.StatusOK, lb)
}

func (s *server) handleTopTimes(w http.ResponseWriter, r *http.Request) {
	track := chi.URLParam(r, "track")

	if _, err := s.store.GetLeaderboard(r.Context(), track); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"Leaderboard not found"})

			return
		}

		s.log.WithError(err).Error("Failed to load leaderboard")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"Internal server error"})

		return
	}

	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"limit must be a non-negative integer"})

			return
		}

		limit = parsed
	}

	times, err := s.store.TopTimes(r.Context(), track, limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to load lap times")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"Internal server error"})

		return
	}

	writeJSON(w, http.StatusOK, times)
}

type submitTimeData struct {
	Lap     *float64 `json:"lap"`
	Sector1 *float64 `json:"sector1"`
	Sector2 *float64 `json:"sector2"`
}

type submitRequest struct {
	TimeData   *submitTimeData `json:"time_data"`
	Car        string          `json:"car"`
	DriverName string          `json:"driver_name"`
	Class      string          `json:"class"`
}

// validate checks the submission payload and returns the first error
// message, or "" when the payload is acceptable.
func (req *submitRequest) validate() string {
	switch {
	case req.TimeData == nil:
		return "time_data is required and must be an object"
	case strings.TrimSpace(req.Car) == "":
		return "car is required and must be a non-empty string"
	case strings.TrimSpace(req.DriverName) == "":
		return "driver_name is required and must be a non-empty string"
	case strings.TrimSpace(req.Class) == "":
		return "class is required and must be a non-empty string"
	case req.TimeData.Lap == nil:
		return "time_data.lap is required"
	case req.TimeData.Sector1 == nil:
		return "time_data.sector1 is required"
	case req.TimeData.Sector2 == nil:
		return "time_data.sector2 is required"
	case *req.TimeData.Lap <= 0:
		return "lap_time must be greater than 0"
	case *req.TimeData.Sector1 != -1 && *req.TimeData.Sector1 <= 0:
		return "sector1 must be -1 or greater than 0"
	case *req.TimeData.Sector2 != -1 && *req.TimeData.Sector2 <= 0:
		return "sector2 must be -1 or greater than 0"
	case len(req.DriverName) > 100:
		return "driver_name must not exceed 100 characters"
	case len(req.Car) > 100:
		return "car must not exceed 100 characters"
	case len(req.Class) > 50:
		return "class must not exceed 50 characters"
	}

	return ""
}

func (s *server) handleSubmitTime(w http.ResponseWriter, r *http.Request) {
	track := chi.URLParam(r, "track")
	session := sessionFromContext(r.Context())

	blacklisted, err := s.store.IsBlacklisted(r.Context(), session.DriverID)
	if err != nil {
		s.log.WithError(err).Error("Blacklist lookup failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"Internal server error"})

		return
	}

	if blacklisted {
		writeJSON(w, http.StatusForbidden, errorResponse{"You are blacklisted"})

		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"Invalid JSON body"})

		return
	}

	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{msg})

		return
	}

	if _, err := s.store.GetLeaderboard(r.Context(), track); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"Leaderboard not found"})

			return
		}

		s.log.WithError(err).Error("Failed to load leaderboard")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"Internal server error"})

		return
	}

	lap := &store.LapTime{
		Track:      track,
		DriverID:   session.DriverID,
		DriverName: strings.TrimSpace(req.DriverName),
		Car:        strings.TrimSpace(req.Car),
		CarClass:   strings.TrimSpace(req.Class),
		LapTime:    *req.TimeData.Lap,
		Sector1:    *req.TimeData.Sector1,
		Sector2:    *req.TimeData.Sector2,
	}

	improved, err := s.store.SubmitLapTime(r.Context(), lap)
	if err != nil {
		s.log.WithError(err).Error("Failed to store lap time")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"Internal server error"})

		return
	}

	s.log.WithField("driver", lap.DriverName).
		WithField("track", track).
		WithField("lap_time", lap.LapTime).
		WithField("improved", improved).
		Info("Lap time submitted")

	writeJSON(w, http.StatusOK,
		map[string]string{"message": "Time submitted successfully"})
}

func (s *server) handleUser(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	writeJSON(w, http.StatusOK, map[string]string{"name": session.DriverName})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if err := s.store.DeleteAuthSession(r.Context(), token); err != nil {
		s.log.WithError(err).Error("Failed to delete auth session")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"Internal server error"})

		return
	}

	s.log.WithField("driver", session.DriverName).Info("User logged out")
	writeJSON(w, http.StatusOK,
		map[string]string{"message": "Logged out successfully"})
}
