// Package api exposes the HTTP surface: reading ingestion, history and
// latest queries, threshold configuration, alert status and the live
// websocket stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/alerting"
	"github.com/hbenali/sensor-hub/internal/broadcast"
	"github.com/hbenali/sensor-hub/internal/ingest"
	"github.com/hbenali/sensor-hub/internal/settings"
	"github.com/hbenali/sensor-hub/internal/storage"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// RecordQueries is the read side of the record store.
type RecordQueries interface {
	LatestRecord(deviceID string) (*storage.Record, error)
	HistoryRecords(deviceID string, limit, offset int) ([]*storage.Record, error)
	NotificationLogs(limit, offset int) ([]*storage.NotificationLog, error)
}

// LatestGetter serves the cached most-recent record per device.
type LatestGetter interface {
	Get(ctx context.Context, deviceID string) (*storage.Record, error)
}

// Handler carries the dependencies of every endpoint. Cache is optional;
// when nil the latest endpoint reads straight from the store.
type Handler struct {
	service *ingest.Service
	queries RecordQueries
	cache   LatestGetter
	store   *settings.Store
	engine  *alerting.Engine
	bus     *broadcast.Broadcaster
	logger  *zap.Logger
}

// NewHandler creates the endpoint handler set.
func NewHandler(service *ingest.Service, queries RecordQueries, cache LatestGetter,
	store *settings.Store, engine *alerting.Engine, bus *broadcast.Broadcaster,
	logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		queries: queries,
		cache:   cache,
		store:   store,
		engine:  engine,
		bus:     bus,
		logger:  logger,
	}
}

// HandleSensorData ingests one device reading.
func (h *Handler) HandleSensorData(w http.ResponseWriter, r *http.Request) {
	var reading ingest.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	rec, err := h.service.Process(r.Context(), &reading)
	if err != nil {
		if rec == nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Persistence failed but the reading was processed and broadcast.
		h.logger.Error("reading accepted but not persisted", zap.Error(err))
		writeJSON(w, http.StatusAccepted, rec)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// HandleLatest returns the most recent record for a device, preferring
// the cache.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	if h.cache != nil {
		rec, err := h.cache.Get(r.Context(), deviceID)
		if err != nil {
			h.logger.Warn("latest cache read failed", zap.Error(err))
		} else if rec != nil {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}

	rec, err := h.queries.LatestRecord(deviceID)
	if err != nil {
		h.logger.Error("failed to query latest record", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query latest record")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no records for device")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleHistory returns records for a device, newest first.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	limit := queryInt(r, "limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, err := h.queries.HistoryRecords(deviceID, limit, offset)
	if err != nil {
		h.logger.Error("failed to query history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	if records == nil {
		records = []*storage.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleGetThresholds returns the active alerting configuration.
func (h *Handler) HandleGetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Get())
}

// thresholdsPatch is a partial update; only the fields present in the
// request body change.
type thresholdsPatch struct {
	MaxTemperature  *float64  `json:"max_temperature"`
	MinTemperature  *float64  `json:"min_temperature"`
	LDRThreshold    *float64  `json:"ldr_threshold"`
	EmailEnabled    *bool     `json:"email_enabled"`
	SMSEnabled      *bool     `json:"sms_enabled"`
	ChatEnabled     *bool     `json:"chat_enabled"`
	EmailRecipients *[]string `json:"email_recipients"`
	SMSNumber       *string   `json:"sms_number"`
	ChatNumber      *string   `json:"chat_number"`
}

func (p *thresholdsPatch) apply(t *settings.Thresholds) {
	if p.MaxTemperature != nil {
		t.MaxTemperature = *p.MaxTemperature
	}
	if p.MinTemperature != nil {
		t.MinTemperature = *p.MinTemperature
	}
	if p.LDRThreshold != nil {
		t.LDRThreshold = *p.LDRThreshold
	}
	if p.EmailEnabled != nil {
		t.EmailEnabled = *p.EmailEnabled
	}
	if p.SMSEnabled != nil {
		t.SMSEnabled = *p.SMSEnabled
	}
	if p.ChatEnabled != nil {
		t.ChatEnabled = *p.ChatEnabled
	}
	if p.EmailRecipients != nil {
		t.EmailRecipients = *p.EmailRecipients
	}
	if p.SMSNumber != nil {
		t.SMSNumber = *p.SMSNumber
	}
	if p.ChatNumber != nil {
		t.ChatNumber = *p.ChatNumber
	}
}

// HandleUpdateThresholds applies a partial update to the alerting
// configuration and returns the resulting state. Takes effect on the next
// reading.
func (h *Handler) HandleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var patch thresholdsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	updated, err := h.store.Update(func(t *settings.Thresholds) {
		patch.apply(t)
	})
	if err != nil {
		if errors.Is(err, settings.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to persist thresholds", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to persist thresholds")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleAlertStatus returns the per-device alert tracking state.
func (h *Handler) HandleAlertStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// HandleAlertReset drops all alert tracking state.
func (h *Handler) HandleAlertReset(w http.ResponseWriter, r *http.Request) {
	h.engine.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleNotifications returns the delivery audit trail, newest first.
func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	logs, err := h.queries.NotificationLogs(limit, offset)
	if err != nil {
		h.logger.Error("failed to query notification logs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query notification logs")
		return
	}
	if logs == nil {
		logs = []*storage.NotificationLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// HandleHealthz is the liveness probe.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode errors after the header is written are unrecoverable.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
