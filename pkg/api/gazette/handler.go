// Package gazette exposes the core pipeline to HTTP consumers (the chat UI
// and protocol wrappers living outside this repo).
package gazette

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"bundesanzeiger_insight/pkg/core/service"
)

// Handler adapts the core service to plain JSON endpoints.
type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

// NewHandler creates an HTTP handler around the core service.
func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{svc: svc, log: log}
}

// HandleSearch serves GET /api/search?company_name=...
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	companyName := r.URL.Query().Get("company_name")
	if companyName == "" {
		http.Error(w, "company_name is required", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Search(r.Context(), companyName)
	if err != nil {
		h.log.Errorf("search failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, result)
}

// HandleAnalyze serves GET /api/analyze?company_name=...&report_selector=...&refresh=true
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	companyName := r.URL.Query().Get("company_name")
	if companyName == "" {
		http.Error(w, "company_name is required", http.StatusBadRequest)
		return
	}
	selector := r.URL.Query().Get("report_selector")
	refresh := r.URL.Query().Get("refresh") == "true"

	result, err := h.svc.Analyze(r.Context(), companyName, selector, refresh)
	if err != nil {
		h.log.Errorf("analyze failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, result)
}

// HandleTimeline serves GET /api/timeline?company_name=...&max_reports=10&selection=...
func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	companyName := r.URL.Query().Get("company_name")
	if companyName == "" {
		http.Error(w, "company_name is required", http.StatusBadRequest)
		return
	}
	maxReports := 10
	if raw := r.URL.Query().Get("max_reports"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "max_reports must be a positive integer", http.StatusBadRequest)
			return
		}
		maxReports = n
	}

	result, err := h.svc.Timeline(r.Context(), companyName, maxReports, r.URL.Query().Get("selection"))
	if err != nil {
		h.log.Errorf("timeline failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
