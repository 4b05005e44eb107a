package handlers

import (
	"net/http"

	"cloudscale/internal/alerts"
	"cloudscale/internal/logger"
	"cloudscale/internal/metrics"
	"cloudscale/internal/models"
)

// historyPreview is how many alerts the history view shows before it is expanded.
const historyPreview = 5

// LatestFunc returns the last sample the monitor saw, or false before the first poll.
type LatestFunc func() (*models.Metrics, bool)

// AlertsHandler serves the dashboard's alert views and actions.
type AlertsHandler struct {
	history *alerts.History
	latest  LatestFunc
	// onChange runs after a successful dismiss or acknowledge
	onChange func()
}

// AlertsConfig holds the dependencies of AlertsHandler.
type AlertsConfig struct {
	History  *alerts.History
	Latest   LatestFunc
	OnChange func()
}

// NewAlertsHandler creates the alert handlers.
func NewAlertsHandler(cfg AlertsConfig) *AlertsHandler {
	latest := cfg.Latest
	if latest == nil {
		latest = func() (*models.Metrics, bool) { return nil, false }
	}
	onChange := cfg.OnChange
	if onChange == nil {
		onChange = func() {}
	}
	return &AlertsHandler{history: cfg.History, latest: latest, onChange: onChange}
}

// ActiveResponse lists the alerts still waiting for the operator.
type ActiveResponse struct {
	Alerts []models.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

// HistoryResponse is one view of the history. Total is the full history length.
type HistoryResponse struct {
	Alerts []models.Alert `json:"alerts"`
	Total  int            `json:"total"`
}

// Register mounts the alert and monitoring routes on mux.
func (h *AlertsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/alerts/active", h.Active)
	mux.HandleFunc("GET /api/v1/alerts/history", h.History)
	mux.HandleFunc("DELETE /api/v1/alerts/{id}", h.Dismiss)
	mux.HandleFunc("POST /api/v1/alerts/{id}/ack", h.Acknowledge)
	mux.HandleFunc("GET /api/v1/monitoring/latest", h.Latest)
}

// Active returns the unacknowledged alerts, newest first.
func (h *AlertsHandler) Active(w http.ResponseWriter, r *http.Request) {
	active := h.history.Unacknowledged()
	writeJSON(w, http.StatusOK, ActiveResponse{Alerts: active, Count: len(active)})
}

// History returns the newest few alerts, or all of them with ?all=true.
func (h *AlertsHandler) History(w http.ResponseWriter, r *http.Request) {
	var list []models.Alert
	if r.URL.Query().Get("all") == "true" {
		list = h.history.All()
	} else {
		list = h.history.Recent(historyPreview)
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Alerts: list, Total: h.history.Len()})
}

// Dismiss removes an alert from the history.
func (h *AlertsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "dismiss", h.history.Dismiss)
}

// Acknowledge marks an alert as seen and keeps it in the history.
func (h *AlertsHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "acknowledge", h.history.Acknowledge)
}

func (h *AlertsHandler) act(w http.ResponseWriter, r *http.Request, action string, apply func(string) bool) {
	id := r.PathValue("id")
	if !apply(id) {
		metrics.AlertActionsTotal.WithLabelValues(action, "not_found").Inc()
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	metrics.AlertActionsTotal.WithLabelValues(action, "ok").Inc()
	metrics.AlertHistorySize.Set(float64(h.history.Len()))

	log := logger.WithComponent("alerts_api")
	log.Info().Str("alert_id", id).Str("action", action).Msg("alert updated")

	h.onChange()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

// Latest returns the last metrics sample polled by the monitor.
func (h *AlertsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	m, ok := h.latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no metrics sample yet")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
