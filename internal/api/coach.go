package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/bateson-coach/internal/coach"
	"github.com/ashureev/bateson-coach/internal/identity"
	"github.com/ashureev/bateson-coach/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// CoachHandler handles the coaching endpoints.
type CoachHandler struct {
	*Handler
}

// NewCoachHandler creates a new coach handler.
func NewCoachHandler(base *Handler) *CoachHandler {
	return &CoachHandler{Handler: base}
}

// RegisterRoutes registers coach routes.
func (h *CoachHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/stats", h.Stats)
		r.Route("/coach", func(r chi.Router) {
			r.With(h.limitTurns).Post("/turn", h.Turn)
			r.Get("/transcript", h.Transcript)
			r.Get("/progress", h.Progress)
			r.Get("/progress.png", h.ProgressChart)
			r.Get("/recommendation", h.Recommendation)
			r.Post("/reset", h.Reset)
			r.Get("/simulation", h.Scenario)
			r.Post("/simulation/feedback", h.Feedback)
		})
	})
}

// limitTurns applies the per-session turn rate limit, if one is configured.
func (h *CoachHandler) limitTurns(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return middleware.RateLimit(h.limiter, func(r *http.Request) string {
		return identity.SessionIDFromContext(r.Context())
	})(next)
}

// GetConfig returns the deck copy, the built-in deck names and the dialogue
// model for the frontend.
func (h *CoachHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"deck":  h.coach.Deck(),
		"decks": coach.BuiltinDecks(),
		"model": h.model,
	})
}

type turnRequest struct {
	Message string `json:"message"`
}

// Turn processes one user utterance.
func (h *CoachHandler) Turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.currentSession(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.coach.Turn(r.Context(), sess, req.Message)
	if err != nil {
		status := turnErrorStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("Coach turn failed", "error", err, "session_id", sess.ID)
		}
		Error(w, status, err.Error())
		return
	}

	JSON(w, http.StatusOK, res)
}

// Transcript returns the session transcript, newest first without the system
// prompt unless order=chronological is requested.
func (h *CoachHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	sess, err := h.currentSession(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := sess.Snapshot()
	switch order := r.URL.Query().Get("order"); order {
	case "", "newest":
		JSON(w, http.StatusOK, map[string]interface{}{
			"session_id": snap.ID,
			"messages":   snap.DisplayOrder(),
		})
	case "chronological":
		JSON(w, http.StatusOK, map[string]interface{}{
			"session_id": snap.ID,
			"messages":   snap.Transcript,
		})
	default:
		Error(w, http.StatusBadRequest, "unknown order "+order)
	}
}

// Progress returns the stage counters.
func (h *CoachHandler) Progress(w http.ResponseWriter, r *http.Request) {
	sess, err := h.currentSession(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := sess.Snapshot()
	JSON(w, http.StatusOK, map[string]interface{}{
		"progress": snap.Progress,
		"total":    snap.Progress.Total(),
	})
}

// ProgressChart renders the stage counters as a PNG bar chart.
func (h *CoachHandler) ProgressChart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.currentSession(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	img, err := h.chart.Render(sess.Snapshot().Progress)
	if err != nil {
		slog.Error("Failed to render progress chart", "error", err, "session_id", sess.ID)
		Error(w, http.StatusInternalServerError, "failed to render chart")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img); err != nil {
		slog.Debug("Failed to write chart", "error", err)
	}
}

// Recommendation returns the resource picked from the stage counters.
func (h *CoachHandler) Recommendation(w http.ResponseWriter, r *http.Request) {
	sess, err := h.currentSession(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	JSON(w, http.StatusOK, coach.RecommendFor(h.coach.Deck(), sess.Snapshot().Progress))
}

// Reset discards the caller's session.
func (h *CoachHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := identity.SessionIDFromContext(r.Context())
	if id == "" {
		Error(w, http.StatusBadRequest, errMissingSession.Error())
		return
	}

	existed := h.sessions.Reset(id)
	slog.Info("Coach session reset", "session_id", id, "existed", existed)
	JSON(w, http.StatusOK, map[string]interface{}{
		"status": "reset",
	})
}

// Scenario returns a random practice scenario.
func (h *CoachHandler) Scenario(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"scenario": h.simulator.Scenario(),
	})
}

type feedbackRequest struct {
	Action string `json:"action"`
}

// Feedback returns the coach feedback for a proposed action.
func (h *CoachHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	fb, ok := h.simulator.Feedback(req.Action)
	if !ok {
		Error(w, http.StatusBadRequest, "action is empty")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"feedback": fb})
}

// Stats returns journal aggregates. since is an optional lookback duration.
func (h *CoachHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		Error(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			Error(w, http.StatusBadRequest, "since must be a positive duration")
			return
		}
		since = time.Now().Add(-d)
	}

	totals, err := h.journal.StageTotals(r.Context(), since)
	if err != nil {
		slog.Error("Failed to load stage totals", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"totals":        totals,
		"live_sessions": h.sessions.Len(),
	})
}
