package api

import (
	"errors"
	"net/http"

	"github.com/drowningchild/dpmcore/internal/dvfs"
)

// DVFS history paging.
const (
	defaultStepLimit = 100
	maxStepLimit     = 1000
)

type dvfsControlRequest struct {
	Value *int `json:"value"`
}

type dvfsVoltagesRequest struct {
	Voltages []int `json:"voltages"`
}

// requireGovernor writes a 404 and returns false when DVFS is disabled.
func (s *Server) requireGovernor(w http.ResponseWriter) bool {
	if s.governor == nil {
		writeError(w, http.StatusNotFound, ErrCodeDVFSDisabled, "dvfs governor not enabled")
		return false
	}
	return true
}

// handleGetDVFS returns the governor snapshot.
func (s *Server) handleGetDVFS(w http.ResponseWriter, _ *http.Request) {
	if !s.requireGovernor(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.governor.Snapshot())
}

// handleDVFSHistory returns recent step changes, newest first.
func (s *Server) handleDVFSHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultStepLimit, maxStepLimit)
	if !ok {
		return
	}
	if s.steps == nil {
		writeJSON(w, http.StatusOK, map[string]any{"changes": []dvfs.Change{}, "count": 0})
		return
	}
	changes, err := s.steps.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list dvfs steps", "error", err)
		writeInternalError(w, "failed to list dvfs steps")
		return
	}
	if changes == nil {
		changes = []dvfs.Change{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changes": changes,
		"count":   len(changes),
	})
}

// handleSetDVFSControl pins a step, or returns to automatic control with 0.
func (s *Server) handleSetDVFSControl(w http.ResponseWriter, r *http.Request) {
	if !s.requireGovernor(w) {
		return
	}
	var req dvfsControlRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "value is required")
		return
	}
	if err := s.governor.SetControl(*req.Value); err != nil {
		s.writeDVFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.governor.Snapshot())
}

// handleSetDVFSVoltages replaces the step voltages.
func (s *Server) handleSetDVFSVoltages(w http.ResponseWriter, r *http.Request) {
	if !s.requireGovernor(w) {
		return
	}
	var req dvfsVoltagesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.governor.SetVoltages(req.Voltages); err != nil {
		s.writeDVFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.governor.Snapshot())
}

func (s *Server) writeDVFSError(w http.ResponseWriter, err error) {
	if errors.Is(err, dvfs.ErrInvalidControl) || errors.Is(err, dvfs.ErrInvalidVoltageCount) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	s.logger.Error("dvfs update failed", "error", err)
	writeInternalError(w, "dvfs update failed")
}
