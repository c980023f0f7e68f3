// Package webui serves the dashboard's HTTP surface.
// This file contains the request/response endpoints: current data and
// simulated updates.
package webui

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"realtime_dashboard/dashboard"
	"realtime_dashboard/metrics"
)

// maxSimulateBody bounds the simulate-update request body.
const maxSimulateBody = 4 << 10

// DataResponse is the body of GET /data.
type DataResponse struct {
	Data        dashboard.Snapshot `json:"data"`
	LastUpdated *string            `json:"lastUpdated"`
}

// SimulateRequest is the body of POST /simulate-update. Type is the field
// name the original admin panel sends.
type SimulateRequest struct {
	Category string `json:"category"`
	Type     string `json:"type"`
}

// SimulateResponse is the body of POST /simulate-update.
type SimulateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// DataAPI serves the plain data endpoint and the simulate-update endpoint.
//
// Both are stateless over the repository; the data endpoint is what the
// subscription client polls after it gives up on the stream.
type DataAPI struct {
	repo      *dashboard.Repository
	writer    *dashboard.Writer
	collector *metrics.Collector
	guard     func(http.Handler) http.Handler
	logger    *zap.Logger
}

// NewDataAPI creates a DataAPI. guard wraps the simulate endpoint and may
// be nil.
func NewDataAPI(
	repo *dashboard.Repository,
	writer *dashboard.Writer,
	collector *metrics.Collector,
	guard func(http.Handler) http.Handler,
	logger *zap.Logger,
) *DataAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &DataAPI{
		repo:      repo,
		writer:    writer,
		collector: collector,
		guard:     guard,
		logger:    logger,
	}
}

// RegisterRoutes registers the API routes on mux.
func (api *DataAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/data", api.HandleData)
	mux.HandleFunc("/api/data", api.HandleData)

	var simulate http.Handler = http.HandlerFunc(api.HandleSimulate)
	if api.guard != nil {
		simulate = api.guard(simulate)
	}
	mux.Handle("/simulate-update", simulate)
	mux.Handle("/api/simulate-update", simulate)
}

// HandleData handles GET /data?category=<category>.
// Returns the current snapshot (or its default) and the global timestamp,
// which is null until something has been written.
func (api *DataAPI) HandleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	category, err := dashboard.ParseCategory(categoryParam(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid data type")
		return
	}

	ctx := r.Context()
	snapshot, err := api.repo.Snapshot(ctx, category)
	if err != nil {
		api.storeFailure(w, "failed to read snapshot", category, err)
		return
	}

	rec, found, err := api.repo.LastUpdated(ctx)
	if err != nil {
		api.storeFailure(w, "failed to read last updated", category, err)
		return
	}

	resp := DataResponse{Data: snapshot}
	if found {
		resp.LastUpdated = &rec.Value
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (api *DataAPI) storeFailure(w http.ResponseWriter, msg string, category dashboard.Category, err error) {
	api.collector.StoreError("get")
	api.logger.Error(msg, zap.String("category", category.String()), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Failed to fetch data")
}

// HandleSimulate handles POST /simulate-update with body {"category": ...}.
func (api *DataAPI) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SimulateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSimulateBody))
	if err := dec.Decode(&req); err != nil {
		api.collector.SimulationRecorded("unknown", metrics.OutcomeRejected)
		writeJSON(w, http.StatusBadRequest, SimulateResponse{Message: "Invalid request body"})
		return
	}

	name := req.Category
	if name == "" {
		name = req.Type
	}
	category, err := dashboard.ParseCategory(name)
	if err != nil {
		api.collector.SimulationRecorded("unknown", metrics.OutcomeRejected)
		writeJSON(w, http.StatusBadRequest, SimulateResponse{Message: "Invalid update type"})
		return
	}

	if _, err := api.writer.Simulate(r.Context(), category); err != nil {
		api.collector.SimulationRecorded(category.String(), metrics.OutcomeFailed)
		api.collector.StoreError("set")
		api.logger.Error("simulated update failed",
			zap.String("category", category.String()),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, SimulateResponse{Message: "Failed to simulate update"})
		return
	}

	api.collector.SimulationRecorded(category.String(), metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, SimulateResponse{
		Success: true,
		Message: dashboard.UpdateMessage(category),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already out; nothing useful to do on failure.
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
