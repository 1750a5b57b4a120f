package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/settings"
	"github.com/hbenali/sensor-hub/internal/storage"
)

// Dispatcher fans one alert event out to every enabled channel. Channels
// run concurrently; a failure on one never short-circuits the others, and
// the caller never waits for delivery.
type Dispatcher struct {
	transports map[string]Transport
	audit      AuditLog
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given transports.
func NewDispatcher(audit AuditLog, logger *zap.Logger, transports ...Transport) *Dispatcher {
	byChannel := make(map[string]Transport, len(transports))
	for _, t := range transports {
		byChannel[t.Channel()] = t
	}
	return &Dispatcher{
		transports: byChannel,
		audit:      audit,
		logger:     logger,
	}
}

// plan is one channel's recipients and message composer for an event.
type plan struct {
	channel    string
	enabled    bool
	recipients []string
	compose    func(Event) Message
}

// Dispatch is fire-and-forget: it starts one goroutine per enabled,
// configured channel and returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, th settings.Thresholds) {
	// Deliveries must outlive the caller. On the HTTP ingestion path ctx
	// is the request context, which is canceled as soon as the handler
	// returns; keep its values but not its cancellation.
	ctx = context.WithoutCancel(ctx)

	plans := []plan{
		{ChannelEmail, th.EmailEnabled, th.EmailRecipients, composeEmail},
		{ChannelSMS, th.SMSEnabled, singleton(th.SMSNumber), composeSMS},
		{ChannelChat, th.ChatEnabled, singleton(th.ChatNumber), composeChat},
	}

	for _, p := range plans {
		if !p.enabled {
			d.logger.Debug("channel disabled, skipping",
				zap.String("channel", p.channel),
				zap.String("device_id", ev.DeviceID))
			continue
		}
		if len(p.recipients) == 0 {
			d.logger.Warn("channel enabled but has no recipients",
				zap.String("channel", p.channel))
			continue
		}
		transport, ok := d.transports[p.channel]
		if !ok {
			continue
		}

		msg := p.compose(ev)
		msg.Recipients = p.recipients

		d.wg.Add(1)
		go func(p plan, msg Message) {
			defer d.wg.Done()
			d.deliver(ctx, transport, p, msg, ev)
		}(p, msg)
	}
}

// Wait blocks until all in-flight deliveries finish. Used on shutdown and
// in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, t Transport, p plan, msg Message, ev Event) {
	err := t.Send(ctx, msg)

	status := storage.NotificationStatusSent
	var errText *string
	if err != nil {
		status = storage.NotificationStatusFailed
		s := err.Error()
		errText = &s
		d.logger.Warn("notification delivery failed",
			zap.String("channel", p.channel),
			zap.String("device_id", ev.DeviceID),
			zap.Error(err))
	} else {
		d.logger.Info("notification delivered",
			zap.String("channel", p.channel),
			zap.String("device_id", ev.DeviceID),
			zap.Int("recipients", len(msg.Recipients)))
	}

	cause := string(ev.Cause)
	var recordID *int64
	if ev.RecordID != 0 {
		id := ev.RecordID
		recordID = &id
	}

	// One audit row per recipient, success or failure.
	for _, recipient := range msg.Recipients {
		entry := &storage.NotificationLog{
			Timestamp: time.Now().UTC(),
			Channel:   p.channel,
			Recipient: recipient,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Status:    status,
			Error:     errText,
			RecordID:  recordID,
			Cause:     &cause,
		}
		if auditErr := d.audit.LogNotification(entry); auditErr != nil {
			d.logger.Error("failed to write notification audit entry",
				zap.String("channel", p.channel),
				zap.Error(auditErr))
		}
	}
}

func singleton(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
