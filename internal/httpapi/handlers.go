package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/scalepilot/scalepilot/internal/advisory"
	"github.com/scalepilot/scalepilot/internal/engine"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScore runs the engine over caller-supplied snapshots and
// profiles and returns one recommendation per audience.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var in engine.RunInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if in.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if len(in.Audiences) == 0 {
		writeError(w, http.StatusBadRequest, "at least one audience is required")
		return
	}

	result, err := s.eng.Run(r.Context(), in)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", in.AccountID).Msg("scoring run failed")
		writeError(w, http.StatusInternalServerError, "scoring run failed")
		return
	}

	if s.advisor != nil {
		advisory.Annotate(r.Context(), s.advisor, s.log, result)
	}
	if s.history != nil {
		if err := s.history.SaveRun(r.Context(), in.AccountID, result.Recommendations); err != nil {
			// History is best-effort; the run result is still authoritative.
			s.log.Warn().Err(err).Str("account_id", in.AccountID).Msg("failed to persist run")
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "recommendation history is not configured")
		return
	}
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	recs, err := s.history.ListByAccount(r.Context(), accountID, limit)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleSettings returns the effective engine configuration for the
// deployment, so operators can confirm what thresholds a run used.
func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engCfg)
}
