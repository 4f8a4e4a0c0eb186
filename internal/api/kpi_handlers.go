package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/storage"
)

// kpiFiltersFromQuery parses the shared KPI query parameters. Time bounds use
// RFC 3339; a malformed bound is a client error.
func kpiFiltersFromQuery(r *http.Request) (storage.KPIFilters, error) {
	var filters storage.KPIFilters
	q := r.URL.Query()

	if gatewayID := q.Get("gateway_id"); gatewayID != "" {
		filters.GatewayID = &gatewayID
	}
	if deviceID := q.Get("device_id"); deviceID != "" {
		filters.DeviceID = &deviceID
	}
	if start := q.Get("start"); start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return filters, errors.New("invalid start time")
		}
		filters.StartTime = &t
	}
	if end := q.Get("end"); end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return filters, errors.New("invalid end time")
		}
		filters.EndTime = &t
	}
	return filters, nil
}

func paginationFromQuery(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// HandleListEndDeviceKPIs lists per-device KPI rows
func (s *RESTServer) HandleListEndDeviceKPIs(w http.ResponseWriter, r *http.Request) {
	filters, err := kpiFiltersFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset := paginationFromQuery(r)

	kpis, total, err := s.store.ListEndDeviceKPIs(r.Context(), filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"kpis":  kpis,
		"total": total,
	})
}

// HandleListGatewayKPIs lists per-gateway KPI rows
func (s *RESTServer) HandleListGatewayKPIs(w http.ResponseWriter, r *http.Request) {
	filters, err := kpiFiltersFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset := paginationFromQuery(r)

	kpis, total, err := s.store.ListGatewayKPIs(r.Context(), filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"kpis":  kpis,
		"total": total,
	})
}

// ========== Monitored gateway handlers ==========

// HandleListMonitoredGateways lists the gateways being monitored
func (s *RESTServer) HandleListMonitoredGateways(w http.ResponseWriter, r *http.Request) {
	gateways, err := s.store.ListMonitoredGateways(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"gateways": gateways,
		"total":    len(gateways),
	})
}

// HandleAddMonitoredGateway starts monitoring a gateway
func (s *RESTServer) HandleAddMonitoredGateway(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GatewayID string `json:"gateway_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GatewayID == "" {
		s.respondError(w, http.StatusBadRequest, "gateway_id is required")
		return
	}

	if err := s.store.AddMonitoredGateway(r.Context(), req.GatewayID); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]string{
		"gateway_id": req.GatewayID,
	})
}

// HandleRemoveMonitoredGateway stops monitoring a gateway
func (s *RESTServer) HandleRemoveMonitoredGateway(w http.ResponseWriter, r *http.Request) {
	gatewayID := chi.URLParam(r, "gateway_id")
	if gatewayID == "" {
		s.respondError(w, http.StatusBadRequest, "gateway_id is required")
		return
	}

	if err := s.store.RemoveMonitoredGateway(r.Context(), gatewayID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "gateway is not monitored")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
