// Package handlers provides HTTP handlers for measurement operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/mpmeasure/internal/modules/measurement"
	"github.com/aristath/mpmeasure/internal/samplestore"
)

const maxBodyBytes = 32 << 20

// RunStore persists sample runs.
type RunStore interface {
	Save(ctx context.Context, run samplestore.Run, payload *samplestore.Payload) (samplestore.Run, error)
	Get(ctx context.Context, id string) (*samplestore.Run, *samplestore.Payload, error)
	List(ctx context.Context, limit int) ([]samplestore.Run, error)
	MarkArchived(ctx context.Context, id string) error
}

// RunArchive uploads encoded run payloads.
type RunArchive interface {
	Put(ctx context.Context, id string, payload []byte) (string, error)
}

// Handler handles measurement HTTP requests
type Handler struct {
	service *measurement.Service
	store   RunStore
	archive RunArchive
	log     zerolog.Logger
}

// NewHandler creates a new measurement handler. store and archive may be
// nil, which disables storing and archiving runs.
func NewHandler(service *measurement.Service, store RunStore, archive RunArchive, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		store:   store,
		archive: archive,
		log:     log.With().Str("handler", "measurement").Logger(),
	}
}

// HandleGetCatalog handles GET /api/measurement/catalog
func (h *Handler) HandleGetCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := h.service.Catalog()
	entries := make([]map[string]interface{}, 0, catalog.Count())
	for _, name := range catalog.Names() {
		e := catalog.Get(name)
		entries = append(entries, map[string]interface{}{
			"name":        e.Name,
			"description": e.Description,
			"min_dim":     e.MinDim,
		})
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"povms": entries,
		"count": len(entries),
	}, nil)
}

// HandlePMF handles POST /api/measurement/pmf
func (h *Handler) HandlePMF(w http.ResponseWriter, r *http.Request) {
	var req measurement.PMFRequest
	if !h.decode(w, r, &req) {
		return
	}
	members, err := h.service.PMF(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{"members": members}, nil)
}

// HandleSample handles POST /api/measurement/sample
func (h *Handler) HandleSample(w http.ResponseWriter, r *http.Request) {
	var req measurement.SampleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Counts == nil && req.Samples <= 0 {
		http.Error(w, "samples must be positive", http.StatusBadRequest)
		return
	}
	if (req.Store || req.Archive) && h.store == nil {
		http.Error(w, "Run storage is disabled", http.StatusBadRequest)
		return
	}
	if req.Archive && h.archive == nil {
		http.Error(w, "Run archive is disabled", http.StatusBadRequest)
		return
	}
	if req.Store || req.Archive {
		req.Pack = true
	}

	res, err := h.service.Sample(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	meta := map[string]interface{}{}
	if req.Store || req.Archive {
		run, key, err := h.persist(r.Context(), req, res)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to persist run")
			http.Error(w, "Failed to persist run", http.StatusInternalServerError)
			return
		}
		meta["run_id"] = run.ID
		if key != "" {
			meta["archive_key"] = key
		}
	}
	h.writeData(w, http.StatusOK, res, meta)
}

func (h *Handler) persist(ctx context.Context, req measurement.SampleRequest, res *measurement.SampleResult) (samplestore.Run, string, error) {
	payload := &samplestore.Payload{Dims: res.Dims, Packed: res.Packed, Seed: req.Seed}
	run, err := h.store.Save(ctx, samplestore.Run{
		POVM:      req.POVM.Name,
		StateMode: string(res.StateMode),
		Method:    string(res.Method),
		Members:   len(res.Dims),
		Samples:   totalSamples(req),
	}, payload)
	if err != nil {
		return samplestore.Run{}, "", err
	}
	if !req.Archive {
		return run, "", nil
	}

	blob, err := payload.Encode()
	if err != nil {
		return run, "", err
	}
	key, err := h.archive.Put(ctx, run.ID, blob)
	if err != nil {
		return run, "", err
	}
	if err := h.store.MarkArchived(ctx, run.ID); err != nil {
		return run, "", err
	}
	return run, key, nil
}

// totalSamples is the number of samples a request draws per member, or
// across all members when it gives explicit counts.
func totalSamples(req measurement.SampleRequest) int {
	if req.Counts == nil {
		return req.Samples
	}
	total := 0
	for _, n := range req.Counts {
		total += n
	}
	return total
}

// HandleEstimate handles POST /api/measurement/estimate
func (h *Handler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	var req measurement.EstimateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Samples <= 0 {
		http.Error(w, "samples must be positive", http.StatusBadRequest)
		return
	}
	res, err := h.service.Estimate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, res, nil)
}

// HandleListRuns handles GET /api/measurement/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "Run storage is disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	runs, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	}, nil)
}

// HandleGetRun handles GET /api/measurement/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	if h.store == nil {
		http.Error(w, "Run storage is disabled", http.StatusNotFound)
		return
	}
	run, payload, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"run":     run,
		"payload": payload,
	}, nil)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, measurement.ErrDimensionMismatch), errors.Is(err, measurement.ErrUnsupportedMode):
		return http.StatusBadRequest
	case errors.Is(err, measurement.ErrToleranceExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, samplestore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}, meta map[string]interface{}) {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["timestamp"] = time.Now().Format(time.RFC3339)
	h.writeJSON(w, status, map[string]interface{}{
		"data":     data,
		"metadata": meta,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
