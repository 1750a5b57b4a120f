package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/pkg/config"
)

func testConfig(url string) *config.WeatherConfig {
	return &config.WeatherConfig{
		APIKey:  "test-key",
		BaseURL: url,
		Lat:     33.9,
		Lon:     -6.8,
		Timeout: 2 * time.Second,
	}
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("appid"); got != "test-key" {
			t.Errorf("expected appid test-key, got %q", got)
		}
		if got := r.URL.Query().Get("units"); got != "metric" {
			t.Errorf("expected metric units, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"main":{"temp":21.4},"weather":[{"main":"Clouds"}]}`))
	}))
	defer server.Close()

	c := NewClient(testConfig(server.URL), zap.NewNop())

	obs, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if obs.Temperature != 21.4 {
		t.Errorf("expected temperature 21.4, got %f", obs.Temperature)
	}
	if obs.Condition != "Clouds" {
		t.Errorf("expected condition Clouds, got %s", obs.Condition)
	}
}

func TestFetch_MissingConditionDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"main":{"temp":18.0},"weather":[]}`))
	}))
	defer server.Close()

	c := NewClient(testConfig(server.URL), zap.NewNop())

	obs, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if obs.Condition != "Unknown" {
		t.Errorf("expected Unknown condition, got %s", obs.Condition)
	}
}

func TestFetch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(testConfig(server.URL), zap.NewNop())

	if _, err := c.Fetch(context.Background()); err == nil {
		t.Error("expected an error on upstream failure")
	}
}

func TestFetch_Unconfigured(t *testing.T) {
	cfg := testConfig("http://example.invalid")
	cfg.APIKey = ""
	c := NewClient(cfg, zap.NewNop())

	obs, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unconfigured client must not error, got %v", err)
	}
	if obs != nil {
		t.Error("unconfigured client must return a nil observation")
	}
}
