/*
handlers.go - HTTP handlers for the trial database

PURPOSE:
  Read-only access to a loaded trial database. Loading happens in the CLI;
  the HTTP process shares no state with it beyond the database itself.

ENDPOINTS:
  GET /                                            Greeting (text/plain)
  GET /api/summary                                 Row counts per relation
  GET /api/projects/{project}/subjects/{subject}   Subject details
  GET /api/samples/{id}                            Sample + cell counts
  GET /api/samples/{id}/frequencies                Population frequencies
  GET /metrics                                     Prometheus exposition

ERROR HANDLING:
  - 404: Row not found (trial.ErrNotFound)
  - 500: Anything else

SEE ALSO:
  - dto.go: Response shapes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/warp/trialdb/logging"
	"github.com/warp/trialdb/metrics"
	"github.com/warp/trialdb/trial"
)

// Greeting is the body served at the root path.
const Greeting = "Hello, World!"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    trial.Reader
	Log      *logging.Logger
	Registry *prometheus.Registry
}

// NewHandler creates a handler reading from store. A nil log discards.
func NewHandler(store trial.Reader, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		Store:    store,
		Log:      log,
		Registry: metrics.NewRegistry(store, log),
	}
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// Hello serves the static greeting.
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(Greeting))
}

// GetSummary returns the number of rows in each relation.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.Counts(r.Context())
	if err != nil {
		h.fail(w, r, "failed to count rows", err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryDTO{Counts: counts})
}

// GetSubject returns one subject by project and subject id.
func (h *Handler) GetSubject(w http.ResponseWriter, r *http.Request) {
	key := trial.SubjectKey{
		ProjectID: chi.URLParam(r, "project"),
		SubjectID: chi.URLParam(r, "subject"),
	}
	subj, err := h.Store.GetSubject(r.Context(), key)
	if err != nil {
		h.fail(w, r, "subject not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubjectDTO(subj))
}

// GetSample returns one sample with its cell counts.
func (h *Handler) GetSample(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sample, err := h.Store.GetSample(r.Context(), id)
	if err != nil {
		h.fail(w, r, "sample not found", err)
		return
	}
	count, err := h.Store.GetCellCount(r.Context(), id)
	if err != nil && !errors.Is(err, trial.ErrNotFound) {
		h.fail(w, r, "failed to get cell count", err)
		return
	}
	writeJSON(w, http.StatusOK, toSampleDTO(sample, count))
}

// GetSampleFrequencies returns each population's share of the sample total.
func (h *Handler) GetSampleFrequencies(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	count, err := h.Store.GetCellCount(r.Context(), id)
	if err != nil {
		h.fail(w, r, "cell count not found", err)
		return
	}
	writeJSON(w, http.StatusOK, FrequenciesDTO{
		SampleID:    count.SampleID,
		TotalCount:  count.Total(),
		Populations: trial.Frequencies(*count),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// fail maps err to a status. Not-found messages are passed through; other
// errors are logged and reported without details.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	if errors.Is(err, trial.ErrNotFound) {
		writeError(w, http.StatusNotFound, message, err)
		return
	}
	h.Log.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error", nil)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
