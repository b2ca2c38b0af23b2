package httpapi

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/ingestion"
)

type timeframe struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

func timeframeOf(r domain.DateRange) timeframe {
	return timeframe{
		StartDate: r.Start.Format(domain.DateLayout),
		EndDate:   r.End.Format(domain.DateLayout),
	}
}

type attributionResponse struct {
	Timeframe timeframe `json:"timeframe"`
	*domain.AttributionReport
}

type journeyResponse struct {
	Timeframe  timeframe `json:"timeframe"`
	CustomerID string    `json:"customerId,omitempty"`
	*domain.JourneyReport
}

type pathsResponse struct {
	Timeframe timeframe               `json:"timeframe"`
	Paths     []domain.ConversionPath `json:"paths"`
}

type ingestResponse struct {
	TouchpointID  string   `json:"touchpointId,omitempty"`
	TouchpointIDs []string `json:"touchpointIds,omitempty"`
}

type initializeResponse struct {
	TenantID string `json:"tenantId"`
	Created  bool   `json:"created"`
}

func (s *Server) handleAttribution(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseRange(q)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	cfg, err := parseModelConfig(q, "")
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	rep, err := s.analytics.AttributionReport(r.Context(), TenantFrom(r.Context()), rng, cfg)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, attributionResponse{Timeframe: timeframeOf(rng), AttributionReport: rep})
}

func (s *Server) handleJourney(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseRange(q)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	cfg, err := parseModelConfig(q, domain.ModelLinear)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	rep, err := s.analytics.JourneyReport(r.Context(), TenantFrom(r.Context()), rng, cfg)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, journeyResponse{Timeframe: timeframeOf(rng), JourneyReport: rep})
}

func (s *Server) handleCustomerJourney(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseRange(q)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	cfg, err := parseModelConfig(q, domain.ModelLinear)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	customerID := chi.URLParam(r, "customerID")

	rep, err := s.analytics.CustomerJourneys(r.Context(), TenantFrom(r.Context()), customerID, rng, cfg)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, journeyResponse{Timeframe: timeframeOf(rng), CustomerID: customerID, JourneyReport: rep})
}

func (s *Server) handlePaths(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseRange(q)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	cfg, err := parseModelConfig(q, domain.ModelLinear)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	limit, err := parseLimit(q)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	paths, err := s.analytics.ConversionPaths(r.Context(), TenantFrom(r.Context()), rng, cfg, limit)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pathsResponse{Timeframe: timeframeOf(rng), Paths: paths})
}

// handleTouchpoint ingests one touchpoint object or an array of them.
// The tenant always comes from authentication, never from the body.
func (s *Server) handleTouchpoint(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, "payload too large", err.Error(), nil)
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, "invalid body", err.Error(), nil)
		return
	}

	tenant := TenantFrom(r.Context())
	items, err := ingestion.DecodePayload(body, tenant)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}
	for i := range items {
		items[i].TenantID = tenant
	}

	if len(bytes.TrimSpace(body)) > 0 && bytes.TrimSpace(body)[0] != '[' {
		id, err := s.ingestor.Ingest(r.Context(), tenant, items[0])
		if err != nil {
			writeError(w, r, s.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, ingestResponse{TouchpointID: id})
		return
	}

	if len(items) == 0 {
		WriteProblem(w, r, http.StatusBadRequest, "empty batch", "at least one touchpoint is required", nil)
		return
	}
	if len(items) > s.maxBatch {
		WriteProblem(w, r, http.StatusRequestEntityTooLarge, "batch too large", "too many touchpoints in one request", nil)
		return
	}
	ids, err := s.ingestor.IngestBatch(r.Context(), tenant, items)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{TouchpointIDs: ids})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFrom(r.Context())
	created, err := s.analytics.Initialize(r.Context(), tenant)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, initializeResponse{TenantID: tenant, Created: created})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			WriteProblem(w, r, http.StatusServiceUnavailable, "not ready", "dependencies not reachable", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
