package storage

import (
	"time"
)

// Temperature source values for a fused record
const (
	SourcePrimary   = "PRIMARY"
	SourceSecondary = "SECONDARY"
)

// Notification audit status values
const (
	NotificationStatusSent   = "SENT"
	NotificationStatusFailed = "FAILED"
)

// Record is a fused sensor reading as persisted. Temperature is nil when
// neither sensor produced a trusted value (sensor fault).
type Record struct {
	ID                 int64      `json:"id"`
	DeviceID           string     `json:"device_id"`
	Location           string     `json:"location"`
	Temperature        *float64   `json:"temperature"`
	TemperatureSource  string     `json:"temperature_source,omitempty"`
	Humidity           *float64   `json:"humidity,omitempty"`
	PrimaryRaw         *float64   `json:"primary_raw,omitempty"`
	SecondaryRaw       *float64   `json:"secondary_raw,omitempty"`
	PrimaryOK          bool       `json:"primary_ok"`
	SecondaryOK        bool       `json:"secondary_ok"`
	SensorDisagreement bool       `json:"sensor_disagreement"`
	LDRValue           *int       `json:"ldr_value,omitempty"`
	OutdoorTemperature *float64   `json:"outdoor_temperature,omitempty"`
	WeatherCondition   *string    `json:"weather_condition,omitempty"`
	Alert              bool       `json:"alert"`
	AlertCause         *string    `json:"alert_cause,omitempty"`
	Timestamp          time.Time  `json:"timestamp"`
}

// NotificationLog is one delivery attempt on one channel to one recipient.
type NotificationLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body,omitempty"`
	Status    string    `json:"status"`
	Error     *string   `json:"error,omitempty"`
	RecordID  *int64    `json:"record_id,omitempty"`
	Cause     *string   `json:"cause,omitempty"`
}

// Settings is the persisted form of the alerting configuration. Recipients
// is a comma-separated list; the settings store splits it.
type Settings struct {
	ID              int
	MaxTemperature  float64
	MinTemperature  float64
	LDRThreshold    float64
	EmailEnabled    bool
	SMSEnabled      bool
	ChatEnabled     bool
	EmailRecipients string
	SMSNumber       string
	ChatNumber      string
	UpdatedAt       time.Time
}
