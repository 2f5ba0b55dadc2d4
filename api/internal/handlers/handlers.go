package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"traffic-guard/api/internal/storage"
	"traffic-guard/internal/model"
	"traffic-guard/internal/pipeline"
	"traffic-guard/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	store     *storage.Storage
	db        *store.Store
	pipelines map[model.Category]*pipeline.Pipeline
	logger    *logrus.Logger
	upgrader  websocket.Upgrader
}

func NewHandlers(st *storage.Storage, db *store.Store, pipelines map[model.Category]*pipeline.Pipeline, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:     st,
		db:        db,
		pipelines: pipelines,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow all origins for development
				origin := r.Header.Get("Origin")
				logger.Debugf("WebSocket origin check: %s", origin)
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Records handlers
func (h *Handlers) GetRecords(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 25
	}
	if limit > 100 {
		limit = 100
	}

	category := r.URL.Query().Get("category")
	attacksOnly := r.URL.Query().Get("attacks") == "true"

	records, total := h.store.GetRecords(page, limit, category, attacksOnly)

	response := map[string]interface{}{
		"items": records,
		"total": total,
		"page":  page,
		"limit": limit,
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	rec := h.store.GetRecordByID(id)
	if rec == nil {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) GetScoreSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetScoreSummaries())
}

// GetStats reports the live detection stats of every running pipeline.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]pipeline.Stats, len(h.pipelines))
	for category, p := range h.pipelines {
		stats[category.String()] = p.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

// Predict scores a manually entered feature record through the category's
// pipeline, feeding it into history, persistence and alerting like any
// fetched record.
func (h *Handlers) Predict(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	category := model.Category(vars["category"])

	p, ok := h.pipelines[category]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown or disabled category")
		return
	}

	var body struct {
		Fields map[string]float64 `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	scored, err := p.Predict(r.Context(), body.Fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, scored)
}

// GetHistory returns persisted predictions for a category inside an
// RFC3339 [start, end] range, read back from the SQLite store.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Prediction store not available")
		return
	}

	vars := mux.Vars(r)
	category := model.Category(vars["category"])
	if !category.Valid() {
		writeError(w, http.StatusNotFound, "Unknown category")
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if start.IsZero() {
		start = time.Now().Add(-24 * time.Hour)
	}
	if end.IsZero() {
		end = time.Now()
	}

	records, err := h.db.QueryPredictionRange(r.Context(), category, start, end)
	if err != nil {
		h.logger.Errorf("Failed to query prediction history: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to query prediction history")
		return
	}

	response := map[string]interface{}{
		"items": records,
		"total": len(records),
		"start": start,
		"end":   end,
	}

	writeJSON(w, http.StatusOK, response)
}

// Alerts handlers
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	severity := r.URL.Query().Get("severity")
	category := r.URL.Query().Get("category")
	search := r.URL.Query().Get("search")

	alerts := h.store.GetAlerts(limit, severity, category, search)

	response := map[string]interface{}{
		"items": alerts,
		"total": len(alerts),
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	a := h.store.GetAlertByID(id)
	if a == nil {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handlers) GetAlertsTimeline(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts := h.store.GetAlertsTimeline(start, end)
	writeJSON(w, http.StatusOK, alerts)
}

// Config handlers

type configView struct {
	Category      string  `json:"category"`
	Threshold     float64 `json:"threshold"`
	AlertsEnabled bool    `json:"alerts_enabled"`
}

// GetConfig returns the live per-category detection settings.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	views := make([]configView, 0, len(h.pipelines))
	for category, p := range h.pipelines {
		views = append(views, configView{
			Category:      category.String(),
			Threshold:     p.Threshold(),
			AlertsEnabled: p.AlertsEnabled(),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// UpdateConfig adjusts a pipeline's threshold or alerting toggle. Changes
// apply from the next run; already scored records are never re-evaluated.
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	category := model.Category(vars["category"])

	p, ok := h.pipelines[category]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown or disabled category")
		return
	}

	var body struct {
		Threshold     *float64 `json:"threshold"`
		AlertsEnabled *bool    `json:"alerts_enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if body.Threshold != nil {
		if *body.Threshold < 0 || *body.Threshold > 1 {
			writeError(w, http.StatusBadRequest, "Threshold must be within [0, 1]")
			return
		}
		p.SetThreshold(*body.Threshold)
	}
	if body.AlertsEnabled != nil {
		p.SetAlertsEnabled(*body.AlertsEnabled)
	}

	writeJSON(w, http.StatusOK, configView{
		Category:      category.String(),
		Threshold:     p.Threshold(),
		AlertsEnabled: p.AlertsEnabled(),
	})
}

// Streaming handlers
func (h *Handlers) StreamRecords(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := &storage.RecordSubscriber{
		ID:      uuid.New().String(),
		Channel: make(chan model.ScoredRecord, 100),
		Filter: storage.RecordFilter{
			Category:    r.URL.Query().Get("category"),
			AttacksOnly: r.URL.Query().Get("attacks") == "true",
		},
		LastSeen: time.Now(),
	}

	h.store.SubscribeRecords(sub)
	defer h.store.UnsubscribeRecords(sub)

	done := h.watchConnection(conn)

	for {
		select {
		case rec := <-sub.Channel:
			if err := conn.WriteJSON(rec); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := &storage.AlertSubscriber{
		ID:      uuid.New().String(),
		Channel: make(chan model.Alert, 100),
		Filter: storage.AlertFilter{
			Severity: r.URL.Query().Get("severity"),
			Category: r.URL.Query().Get("category"),
		},
		LastSeen: time.Now(),
	}

	h.store.SubscribeAlerts(sub)
	defer h.store.UnsubscribeAlerts(sub)

	done := h.watchConnection(conn)

	for {
		select {
		case a := <-sub.Channel:
			if err := conn.WriteJSON(a); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}

// watchConnection pings the client every 30s and reads incoming messages
// to detect disconnects. The returned channel closes once the client side
// goes away.
func (h *Handlers) watchConnection(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return done
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	var start, end time.Time

	if startStr := r.URL.Query().Get("start"); startStr != "" {
		parsed, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return start, end, errInvalidTime("start")
		}
		start = parsed
	}
	if endStr := r.URL.Query().Get("end"); endStr != "" {
		parsed, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return start, end, errInvalidTime("end")
		}
		end = parsed
	}
	return start, end, nil
}

type timeParseError string

func (e timeParseError) Error() string {
	return "Invalid " + string(e) + " time format, want RFC3339"
}

func errInvalidTime(field string) error {
	return timeParseError(field)
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
