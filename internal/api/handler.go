// Package api provides HTTP handlers for the coach API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/bateson-coach/internal/chart"
	"github.com/ashureev/bateson-coach/internal/coach"
	"github.com/ashureev/bateson-coach/internal/domain"
	"github.com/ashureev/bateson-coach/internal/identity"
	"github.com/ashureev/bateson-coach/internal/middleware"
	"github.com/ashureev/bateson-coach/internal/sentiment"
	"github.com/ashureev/bateson-coach/internal/session"
	"github.com/ashureev/bateson-coach/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

var errMissingSession = errors.New("missing session")

// Handler provides common handler utilities.
type Handler struct {
	coach     *coach.Coach
	sessions  *session.Registry
	simulator *coach.Simulator
	chart     *chart.Renderer
	journal   store.Journal
	limiter   *middleware.RateLimiter
	model     string
}

// Deps are the collaborators shared by the handlers.
type Deps struct {
	Coach     *coach.Coach
	Sessions  *session.Registry
	Simulator *coach.Simulator
	Chart     *chart.Renderer
	Journal   store.Journal
	Limiter   *middleware.RateLimiter
	Model     string
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(d Deps) *Handler {
	return &Handler{
		coach:     d.Coach,
		sessions:  d.Sessions,
		simulator: d.Simulator,
		chart:     d.Chart,
		journal:   d.Journal,
		limiter:   d.Limiter,
		model:     d.Model,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// currentSession returns the caller's session, creating it on first use.
func (h *Handler) currentSession(r *http.Request) (*domain.Session, error) {
	id := identity.SessionIDFromContext(r.Context())
	if id == "" {
		return nil, errMissingSession
	}
	return h.sessions.GetOrCreate(id), nil
}

// turnErrorStatus maps a turn error to an HTTP status.
func turnErrorStatus(err error) int {
	switch {
	case errors.Is(err, coach.ErrEmptyUtterance), errors.Is(err, sentiment.ErrInvalidPolarity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
