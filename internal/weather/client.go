// Package weather enriches fused records with the outdoor conditions at
// the installation site. Failures never block ingestion; callers treat an
// error as "enrichment unavailable".
package weather

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/pkg/config"
)

// Observation is one outdoor weather sample.
type Observation struct {
	Temperature float64
	Condition   string
}

// Client fetches the current conditions for a fixed lat/lon.
type Client struct {
	http   *resty.Client
	apiKey string
	lat    float64
	lon    float64
	logger *zap.Logger
}

// NewClient creates a weather client. With an empty API key the client is
// a no-op and Fetch returns nil observations.
func NewClient(cfg *config.WeatherConfig, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   http,
		apiKey: cfg.APIKey,
		lat:    cfg.Lat,
		lon:    cfg.Lon,
		logger: logger,
	}
}

type currentWeatherResponse struct {
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

// Fetch returns the current outdoor observation, or (nil, nil) when the
// client is not configured.
func (c *Client) Fetch(ctx context.Context) (*Observation, error) {
	if c.apiKey == "" {
		return nil, nil
	}

	var body currentWeatherResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   fmt.Sprintf("%f", c.lat),
			"lon":   fmt.Sprintf("%f", c.lon),
			"appid": c.apiKey,
			"units": "metric",
		}).
		SetResult(&body).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("weather API returned status %d", resp.StatusCode())
	}

	obs := &Observation{Temperature: body.Main.Temp, Condition: "Unknown"}
	if len(body.Weather) > 0 && body.Weather[0].Main != "" {
		obs.Condition = body.Weather[0].Main
	}

	c.logger.Debug("fetched outdoor weather",
		zap.Float64("temperature", obs.Temperature),
		zap.String("condition", obs.Condition))
	return obs, nil
}
