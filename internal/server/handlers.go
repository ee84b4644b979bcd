package server

import (
	"encoding/json"
	"net/http"

	"github.com/scrutineering/scrutineer/internal/analysis"
	"github.com/scrutineering/scrutineer/internal/ballot"
	"github.com/scrutineering/scrutineer/internal/metrics"
	apperrors "github.com/scrutineering/scrutineer/internal/pkg/errors"
)

// AnalysisHandler provides HTTP handlers for ballot analysis.
type AnalysisHandler struct {
	svc       *analysis.Service
	collector *metrics.Collector
}

// NewAnalysisHandler creates a new analysis handler. The collector may
// be nil when metrics are disabled.
func NewAnalysisHandler(svc *analysis.Service, collector *metrics.Collector) *AnalysisHandler {
	return &AnalysisHandler{
		svc:       svc,
		collector: collector,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleAnalyze handles POST /v1/analyses.
func (h *AnalysisHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var sheet ballot.Scoresheet
	if err := json.NewDecoder(r.Body).Decode(&sheet); err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError("invalid request body: "+err.Error()))
		return
	}

	result, err := h.svc.Analyze(r.Context(), &sheet)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// HandleSystems handles GET /v1/systems.
func (h *AnalysisHandler) HandleSystems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"systems": h.svc.Registry().Describe(),
	})
}

// HandleStats handles GET /v1/stats.
func (h *AnalysisHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		apperrors.WriteError(w, apperrors.ServiceUnavailableError("metrics"))
		return
	}

	writeJSON(w, http.StatusOK, h.collector.Collect())
}
