// Package notify composes and delivers alert notifications over the three
// configured channels. Channels fail independently and every attempt is
// written to the audit log.
package notify

import (
	"context"
	"time"

	"github.com/hbenali/sensor-hub/internal/alerting"
	"github.com/hbenali/sensor-hub/internal/storage"
)

// Channel names match the audit log's channel column.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelChat  = "chat"
)

// Message is a composed, channel-ready notification.
type Message struct {
	Recipients []string
	Subject    string
	Body       string
}

// Transport delivers a message over one channel. Implementations do not
// retry; at-least-once with audit logging is the delivery guarantee.
type Transport interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// Event describes one dispatch-eligible alert.
type Event struct {
	Cause              alerting.Cause
	DeviceID           string
	Location           string
	Temperature        float64
	TemperatureKnown   bool
	OutdoorTemperature *float64
	Humidity           *float64
	MinThreshold       float64
	MaxThreshold       float64
	RecordID           int64
	Timestamp          time.Time
}

// AuditLog records delivery attempts.
type AuditLog interface {
	LogNotification(entry *storage.NotificationLog) error
}
