// Package ingest runs the processing pipeline for incoming device
// readings: fusion, enrichment, alert evaluation, persistence and
// fan-out, in that order.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/alerting"
	"github.com/hbenali/sensor-hub/internal/fusion"
	"github.com/hbenali/sensor-hub/internal/notify"
	"github.com/hbenali/sensor-hub/internal/settings"
	"github.com/hbenali/sensor-hub/internal/storage"
	"github.com/hbenali/sensor-hub/internal/weather"
)

// Reading is the raw payload a device submits. Devices also send a
// self-computed alert flag; it is ignored, the server decides alerts.
type Reading struct {
	DeviceID      string   `json:"device_id"`
	Location      string   `json:"location"`
	PrimaryTemp   *float64 `json:"primary_temp"`
	SecondaryTemp *float64 `json:"secondary_temp"`
	Humidity      *float64 `json:"humidity,omitempty"`
	LDRValue      *int     `json:"ldr_value,omitempty"`
	Alert         *bool    `json:"alert,omitempty"`
}

// Validate checks the fields the pipeline cannot proceed without.
func (r *Reading) Validate() error {
	if r.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if r.PrimaryTemp == nil && r.SecondaryTemp == nil {
		return fmt.Errorf("at least one temperature channel is required")
	}
	return nil
}

// RecordRepository persists fused records.
type RecordRepository interface {
	SaveRecord(rec *storage.Record) error
}

// WeatherSource provides the current outdoor conditions.
type WeatherSource interface {
	Fetch(ctx context.Context) (*weather.Observation, error)
}

// LatestSetter caches the most recent record per device.
type LatestSetter interface {
	Set(ctx context.Context, rec *storage.Record) error
}

// Exporter appends records to the daily export file.
type Exporter interface {
	Append(rec *storage.Record) error
}

// Notifier fans an alert event out to the configured channels.
type Notifier interface {
	Dispatch(ctx context.Context, ev notify.Event, th settings.Thresholds)
}

// Publisher delivers records to live subscribers.
type Publisher interface {
	Publish(rec storage.Record)
}

// Service is the ingestion pipeline. Weather, cache and exporter are
// optional; the pipeline degrades gracefully without them.
type Service struct {
	records  RecordRepository
	weather  WeatherSource
	engine   *alerting.Engine
	settings *settings.Store
	notifier Notifier
	bus      Publisher
	cache    LatestSetter
	exporter Exporter
	logger   *zap.Logger
	now      func() time.Time
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Weather  WeatherSource
	Cache    LatestSetter
	Exporter Exporter
}

// NewService wires the pipeline.
func NewService(records RecordRepository, engine *alerting.Engine, store *settings.Store,
	notifier Notifier, bus Publisher, opts Options, logger *zap.Logger) *Service {
	return &Service{
		records:  records,
		weather:  opts.Weather,
		engine:   engine,
		settings: store,
		notifier: notifier,
		bus:      bus,
		cache:    opts.Cache,
		exporter: opts.Exporter,
		logger:   logger,
		now:      time.Now,
	}
}

// Process runs one reading through the full pipeline and returns the
// resulting record. The record is broadcast to live subscribers even when
// persistence fails; the persistence error is still returned.
func (s *Service) Process(ctx context.Context, reading *Reading) (*storage.Record, error) {
	if err := reading.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reading: %w", err)
	}

	th := s.settings.Get()
	res := fusion.Fuse(reading.PrimaryTemp, reading.SecondaryTemp, reading.Humidity)

	rec := &storage.Record{
		DeviceID:           reading.DeviceID,
		Location:           reading.Location,
		PrimaryRaw:         reading.PrimaryTemp,
		SecondaryRaw:       reading.SecondaryTemp,
		Humidity:           res.Humidity,
		PrimaryOK:          res.PrimaryOK,
		SecondaryOK:        res.SecondaryOK,
		SensorDisagreement: res.Disagreement,
		LDRValue:           reading.LDRValue,
		Timestamp:          s.now().UTC(),
	}
	if res.Trusted {
		t := res.Temperature
		rec.Temperature = &t
		rec.TemperatureSource = string(res.Source)
	}

	if res.Disagreement {
		s.logger.Warn("sensor channels disagree",
			zap.String("device_id", reading.DeviceID),
			zap.Float64p("primary", reading.PrimaryTemp),
			zap.Float64p("secondary", reading.SecondaryTemp))
	}

	// Outdoor conditions are enrichment only; a fetch failure never blocks
	// the reading.
	if s.weather != nil {
		obs, err := s.weather.Fetch(ctx)
		switch {
		case err != nil:
			s.logger.Warn("weather fetch failed", zap.Error(err))
		case obs != nil:
			outdoor := obs.Temperature
			condition := obs.Condition
			rec.OutdoorTemperature = &outdoor
			rec.WeatherCondition = &condition
		}
	}

	eval := s.engine.Evaluate(reading.DeviceID, res, th, s.now())
	rec.Alert = eval.Alert
	if eval.Alert {
		cause := string(eval.Cause)
		rec.AlertCause = &cause
	}

	saveErr := s.records.SaveRecord(rec)
	if saveErr != nil {
		s.logger.Error("failed to persist record",
			zap.String("device_id", reading.DeviceID),
			zap.Error(saveErr))
	}

	if eval.Dispatch {
		ev := notify.Event{
			Cause:              eval.Cause,
			DeviceID:           rec.DeviceID,
			Location:           rec.Location,
			OutdoorTemperature: rec.OutdoorTemperature,
			Humidity:           rec.Humidity,
			MinThreshold:       th.MinTemperature,
			MaxThreshold:       th.MaxTemperature,
			RecordID:           rec.ID,
			Timestamp:          rec.Timestamp,
		}
		if rec.Temperature != nil {
			ev.Temperature = *rec.Temperature
			ev.TemperatureKnown = true
		}
		s.notifier.Dispatch(ctx, ev, th)
	}

	// Live subscribers see every reading, persisted or not.
	s.bus.Publish(*rec)

	if s.cache != nil {
		if err := s.cache.Set(ctx, rec); err != nil {
			s.logger.Warn("failed to cache latest record",
				zap.String("device_id", rec.DeviceID),
				zap.Error(err))
		}
	}
	if s.exporter != nil {
		if err := s.exporter.Append(rec); err != nil {
			s.logger.Warn("failed to append csv export", zap.Error(err))
		}
	}

	if saveErr != nil {
		return rec, fmt.Errorf("failed to save record: %w", saveErr)
	}
	return rec, nil
}
