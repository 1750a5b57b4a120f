package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var csvHeader = []string{
	"timestamp", "device_id", "location", "temperature", "temperature_source",
	"humidity", "outdoor_temperature", "weather_condition", "alert",
	"alert_cause", "ldr_value",
}

// CSVExporter appends every fused record to a daily flat file
// (sensors_YYYY-MM-DD.csv). One file per day, header written on creation.
type CSVExporter struct {
	dir string
	mu  sync.Mutex
}

// NewCSVExporter creates an exporter writing into dir.
func NewCSVExporter(dir string) *CSVExporter {
	return &CSVExporter{dir: dir}
}

// Append writes one record to today's file.
func (e *CSVExporter) Append(rec *Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	path := e.dailyPath(rec.Timestamp)

	writeHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		writeHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write export header: %w", err)
		}
	}

	row := []string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.DeviceID,
		rec.Location,
		formatFloat(rec.Temperature),
		rec.TemperatureSource,
		formatFloat(rec.Humidity),
		formatFloat(rec.OutdoorTemperature),
		formatString(rec.WeatherCondition),
		strconv.FormatBool(rec.Alert),
		formatString(rec.AlertCause),
		formatInt(rec.LDRValue),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write export row: %w", err)
	}

	w.Flush()
	return w.Error()
}

func (e *CSVExporter) dailyPath(ts time.Time) string {
	name := fmt.Sprintf("sensors_%s.csv", ts.UTC().Format("2006-01-02"))
	return filepath.Join(e.dir, name)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
