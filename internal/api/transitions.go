package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drowningchild/dpmcore/internal/dpm"
)

// Transition history paging.
const (
	defaultTransitionLimit = 50
	maxTransitionLimit     = 1000
)

// transitionRequest is the body of POST /transitions and of the MQTT
// transition command.
type transitionRequest struct {
	Event string `json:"event"`

	// SleepMS overrides the configured sleep duration when set.
	SleepMS *int `json:"sleep_ms,omitempty"`
}

// sleepFor returns the sleep callback run between the suspend and resume
// halves of a transition.
func (s *Server) sleepFor(req transitionRequest) func(context.Context) error {
	d := s.sleepDuration
	if req.SleepMS != nil {
		d = time.Duration(*req.SleepMS) * time.Millisecond
	}
	if d <= 0 {
		return nil
	}
	return func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runTransition parses the request and drives one transition. The request
// context is detached so a disconnecting client cannot abort the sweep.
func (s *Server) runTransition(ctx context.Context, req transitionRequest) (*dpm.Transition, error) {
	msg, err := dpm.ParseEvent(req.Event)
	if err != nil {
		return nil, err
	}
	if req.SleepMS != nil && *req.SleepMS < 0 {
		return nil, errors.New("sleep_ms must not be negative")
	}
	return s.manager.Enter(context.WithoutCancel(ctx), msg, s.sleepFor(req))
}

// handleCreateTransition runs a transition synchronously and returns its
// record.
func (s *Server) handleCreateTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "event is required")
		return
	}

	tr, err := s.runTransition(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, tr)
	case errors.Is(err, dpm.ErrInProgress):
		writeError(w, http.StatusConflict, ErrCodeBusy, "a transition is already in progress")
	case tr == nil:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		writeJSON(w, http.StatusInternalServerError, tr)
	}
}

// handleListTransitions returns recent transitions, newest first.
func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultTransitionLimit, maxTransitionLimit)
	if !ok {
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"transitions": []dpm.Transition{}, "count": 0})
		return
	}

	list, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list transitions", "error", err)
		writeInternalError(w, "failed to list transitions")
		return
	}
	if list == nil {
		list = []dpm.Transition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transitions": list,
		"count":       len(list),
	})
}

// handleGetTransition returns a single transition by ID.
func (s *Server) handleGetTransition(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "transition not found")
		return
	}
	tr, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, dpm.ErrTransitionNotFound) {
		writeNotFound(w, "transition not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get transition", "error", err)
		writeInternalError(w, "failed to get transition")
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// parseLimit reads the optional limit query parameter. It writes a 400 and
// returns false when the value is not a positive integer.
func parseLimit(w http.ResponseWriter, r *http.Request, defLimit, maxLimit int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeBadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}
