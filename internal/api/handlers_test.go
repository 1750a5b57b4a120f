package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/alerting"
	"github.com/hbenali/sensor-hub/internal/broadcast"
	"github.com/hbenali/sensor-hub/internal/ingest"
	"github.com/hbenali/sensor-hub/internal/notify"
	"github.com/hbenali/sensor-hub/internal/settings"
	"github.com/hbenali/sensor-hub/internal/storage"
)

type fakeQueries struct {
	latest    *storage.Record
	latestErr error
	history   []*storage.Record
	logs      []*storage.NotificationLog

	lastLimit  int
	lastOffset int
}

func (f *fakeQueries) LatestRecord(deviceID string) (*storage.Record, error) {
	return f.latest, f.latestErr
}

func (f *fakeQueries) HistoryRecords(deviceID string, limit, offset int) ([]*storage.Record, error) {
	f.lastLimit, f.lastOffset = limit, offset
	return f.history, nil
}

func (f *fakeQueries) NotificationLogs(limit, offset int) ([]*storage.NotificationLog, error) {
	f.lastLimit, f.lastOffset = limit, offset
	return f.logs, nil
}

func (f *fakeQueries) SaveRecord(rec *storage.Record) error {
	rec.ID = 1
	return nil
}

type fakeCache struct {
	rec *storage.Record
	err error
}

func (f *fakeCache) Get(context.Context, string) (*storage.Record, error) {
	return f.rec, f.err
}

type fakeSettingsRepo struct {
	row *storage.Settings
}

func (f *fakeSettingsRepo) LoadSettings() (*storage.Settings, error) { return f.row, nil }
func (f *fakeSettingsRepo) SaveSettings(s *storage.Settings) error {
	f.row = s
	return nil
}

type dropNotifier struct{}

func (dropNotifier) Dispatch(context.Context, notify.Event, settings.Thresholds) {}

func newTestHandler(t *testing.T, queries *fakeQueries, cache LatestGetter) (*Handler, *broadcast.Broadcaster) {
	t.Helper()
	logger := zap.NewNop()
	store, err := settings.NewStore(&fakeSettingsRepo{}, settings.Thresholds{
		MaxTemperature: 35,
		MinTemperature: 15,
	}, logger)
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}
	engine := alerting.NewEngine(logger)
	bus := broadcast.New(broadcast.DefaultBacklog, broadcast.DefaultRecentSize, logger)
	svc := ingest.NewService(queries, engine, store, dropNotifier{}, bus, ingest.Options{}, logger)
	return NewHandler(svc, queries, cache, store, engine, bus, logger), bus
}

func TestHandleSensorData(t *testing.T) {
	h, _ := newTestHandler(t, &fakeQueries{}, nil)
	router := NewRouter(h)

	body := `{"device_id":"esp32-lab-1","location":"lab","primary_temp":24.5,"humidity":50}`
	req := httptest.NewRequest(http.MethodPost, "/sensor-data", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var rec storage.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec.Temperature == nil || *rec.Temperature != 24.5 {
		t.Errorf("expected temperature 24.5, got %v", rec.Temperature)
	}
}

func TestHandleSensorDataBadPayload(t *testing.T) {
	h, _ := newTestHandler(t, &fakeQueries{}, nil)
	router := NewRouter(h)

	for _, body := range []string{`not json`, `{"location":"lab","primary_temp":24.5}`} {
		req := httptest.NewRequest(http.MethodPost, "/sensor-data", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestHandleLatestCacheHit(t *testing.T) {
	temp := 22.5
	cached := &storage.Record{ID: 7, DeviceID: "esp32-lab-1", Temperature: &temp}
	h, _ := newTestHandler(t, &fakeQueries{latestErr: errors.New("db should not be hit")}, &fakeCache{rec: cached})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/data/latest?device_id=esp32-lab-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var rec storage.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec.ID != 7 {
		t.Errorf("expected cached record id 7, got %d", rec.ID)
	}
}

func TestHandleLatestFallsBackToStore(t *testing.T) {
	stored := &storage.Record{ID: 3, DeviceID: "esp32-lab-1"}
	h, _ := newTestHandler(t, &fakeQueries{latest: stored}, &fakeCache{err: errors.New("redis down")})
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/data/latest?device_id=esp32-lab-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from store fallback, got %d", rr.Code)
	}
}

func TestHandleLatestNotFound(t *testing.T) {
	h, _ := newTestHandler(t, &fakeQueries{}, nil)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/data/latest?device_id=unknown", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/data/latest", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without device_id, got %d", rr.Code)
	}
}

func TestHandleHistoryClampsLimit(t *testing.T) {
	queries := &fakeQueries{}
	h, _ := newTestHandler(t, queries, nil)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/data/history?device_id=d1&limit=99999&offset=-5", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if queries.lastLimit != defaultHistoryLimit {
		t.Errorf("expected limit clamped to %d, got %d", defaultHistoryLimit, queries.lastLimit)
	}
	if queries.lastOffset != 0 {
		t.Errorf("expected offset clamped to 0, got %d", queries.lastOffset)
	}
	if rr.Body.String() == "null\n" {
		t.Error("empty history must encode as [], not null")
	}
}

func TestThresholdsRoundtrip(t *testing.T) {
	h, _ := newTestHandler(t, &fakeQueries{}, nil)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/config/thresholds", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("get thresholds: expected 200, got %d", rr.Code)
	}

	patch := `{"max_temperature":30,"email_enabled":true,"email_recipients":["ops@example.com"]}`
	req = httptest.NewRequest(http.MethodPost, "/config/thresholds", bytes.NewBufferString(patch))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("update thresholds: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var th settings.Thresholds
	if err := json.Unmarshal(rr.Body.Bytes(), &th); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if th.MaxTemperature != 30 || !th.EmailEnabled || len(th.EmailRecipients) != 1 {
		t.Errorf("patch not applied: %+v", th)
	}
	if th.MinTemperature != 15 {
		t.Errorf("untouched field must survive the patch, got min=%v", th.MinTemperature)
	}
}

func TestThresholdsRejectsInvertedRange(t *testing.T) {
	h, _ := newTestHandler(t, &fakeQueries{}, nil)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/config/thresholds",
		bytes.NewBufferString(`{"max_temperature":10}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for max <= min, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/config/thresholds", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var th settings.Thresholds
	if err := json.Unmarshal(rr.Body.Bytes(), &th); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if th.MaxTemperature != 35 {
		t.Errorf("rejected update must not change state, got max=%v", th.MaxTemperature)
	}
}

func TestAlertStatusAndReset(t *testing.T) {
	h, _ := newTestHandler(t, &fakeQueries{}, nil)
	router := NewRouter(h)

	// Trip an alert first.
	body := `{"device_id":"esp32-lab-1","location":"lab","primary_temp":40}`
	req := httptest.NewRequest(http.MethodPost, "/sensor-data", bytes.NewBufferString(body))
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/alerts/status", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var statuses []alerting.DeviceStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(statuses) != 1 || !statuses[0].Active {
		t.Fatalf("expected one active device, got %+v", statuses)
	}

	req = httptest.NewRequest(http.MethodPost, "/alerts/reset", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/alerts/status", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	statuses = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(statuses) != 0 {
		t.Errorf("expected empty status after reset, got %+v", statuses)
	}
}

func TestHandleHealthz(t *testing.T) {
	h, _ := newTestHandler(t, &fakeQueries{}, nil)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}
