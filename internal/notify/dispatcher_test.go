package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/alerting"
	"github.com/hbenali/sensor-hub/internal/settings"
	"github.com/hbenali/sensor-hub/internal/storage"
)

type fakeTransport struct {
	channel string
	err     error

	mu    sync.Mutex
	sends []Message
}

func (f *fakeTransport) Channel() string { return f.channel }

func (f *fakeTransport) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	f.sends = append(f.sends, msg)
	f.mu.Unlock()
	return f.err
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*storage.NotificationLog
	err     error
}

func (f *fakeAudit) LogNotification(entry *storage.NotificationLog) error {
	f.mu.Lock()
	f.entries = append(f.entries, entry)
	f.mu.Unlock()
	return f.err
}

func (f *fakeAudit) byChannel(channel string) []*storage.NotificationLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*storage.NotificationLog
	for _, e := range f.entries {
		if e.Channel == channel {
			out = append(out, e)
		}
	}
	return out
}

func testEvent() Event {
	temp := 38.5
	return Event{
		Cause:            alerting.CauseHighTemp,
		DeviceID:         "esp32-lab-1",
		Location:         "lab",
		Temperature:      temp,
		TemperatureKnown: true,
		MinThreshold:     15,
		MaxThreshold:     35,
		RecordID:         42,
		Timestamp:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func allEnabled() settings.Thresholds {
	return settings.Thresholds{
		MaxTemperature:  35,
		MinTemperature:  15,
		EmailEnabled:    true,
		SMSEnabled:      true,
		ChatEnabled:     true,
		EmailRecipients: []string{"a@example.com", "b@example.com"},
		SMSNumber:       "+212600000001",
		ChatNumber:      "+212600000002",
	}
}

func TestDispatchAllChannels(t *testing.T) {
	email := &fakeTransport{channel: ChannelEmail}
	sms := &fakeTransport{channel: ChannelSMS}
	chat := &fakeTransport{channel: ChannelChat}
	audit := &fakeAudit{}

	d := NewDispatcher(audit, zap.NewNop(), email, sms, chat)
	d.Dispatch(context.Background(), testEvent(), allEnabled())
	d.Wait()

	if email.sendCount() != 1 || sms.sendCount() != 1 || chat.sendCount() != 1 {
		t.Fatalf("expected one send per channel, got email=%d sms=%d chat=%d",
			email.sendCount(), sms.sendCount(), chat.sendCount())
	}
	if got := len(email.sends[0].Recipients); got != 2 {
		t.Errorf("expected 2 email recipients, got %d", got)
	}
}

func TestDispatchFailureDoesNotBlockOtherChannels(t *testing.T) {
	email := &fakeTransport{channel: ChannelEmail, err: errors.New("smtp: connection refused")}
	sms := &fakeTransport{channel: ChannelSMS}
	chat := &fakeTransport{channel: ChannelChat}
	audit := &fakeAudit{}

	d := NewDispatcher(audit, zap.NewNop(), email, sms, chat)
	d.Dispatch(context.Background(), testEvent(), allEnabled())
	d.Wait()

	if sms.sendCount() != 1 || chat.sendCount() != 1 {
		t.Fatalf("sms/chat should deliver despite email failure, got sms=%d chat=%d",
			sms.sendCount(), chat.sendCount())
	}
	emailRows := audit.byChannel(ChannelEmail)
	if len(emailRows) != 2 {
		t.Fatalf("expected 2 email audit rows, got %d", len(emailRows))
	}
	for _, row := range emailRows {
		if row.Status != storage.NotificationStatusFailed {
			t.Errorf("expected FAILED status, got %q", row.Status)
		}
		if row.Error == nil || *row.Error == "" {
			t.Error("expected error text on failed audit row")
		}
	}
	smsRows := audit.byChannel(ChannelSMS)
	if len(smsRows) != 1 || smsRows[0].Status != storage.NotificationStatusSent {
		t.Fatalf("expected one SENT sms audit row, got %+v", smsRows)
	}
}

func TestDispatchAuditRowPerRecipient(t *testing.T) {
	email := &fakeTransport{channel: ChannelEmail}
	audit := &fakeAudit{}

	th := allEnabled()
	th.SMSEnabled = false
	th.ChatEnabled = false

	d := NewDispatcher(audit, zap.NewNop(), email)
	d.Dispatch(context.Background(), testEvent(), th)
	d.Wait()

	rows := audit.byChannel(ChannelEmail)
	if len(rows) != 2 {
		t.Fatalf("expected one audit row per recipient, got %d", len(rows))
	}
	seen := map[string]bool{}
	for _, row := range rows {
		seen[row.Recipient] = true
		if row.RecordID == nil || *row.RecordID != 42 {
			t.Errorf("expected record id 42, got %v", row.RecordID)
		}
		if row.Cause == nil || *row.Cause != string(alerting.CauseHighTemp) {
			t.Errorf("expected cause HIGH_TEMP, got %v", row.Cause)
		}
	}
	if !seen["a@example.com"] || !seen["b@example.com"] {
		t.Errorf("missing recipient audit rows: %v", seen)
	}
}

func TestDispatchSkipsDisabledChannels(t *testing.T) {
	email := &fakeTransport{channel: ChannelEmail}
	sms := &fakeTransport{channel: ChannelSMS}
	audit := &fakeAudit{}

	th := allEnabled()
	th.EmailEnabled = false

	d := NewDispatcher(audit, zap.NewNop(), email, sms)
	d.Dispatch(context.Background(), testEvent(), th)
	d.Wait()

	if email.sendCount() != 0 {
		t.Errorf("disabled email channel should not send, got %d", email.sendCount())
	}
	if sms.sendCount() != 1 {
		t.Errorf("expected sms send, got %d", sms.sendCount())
	}
}

type slowTransport struct {
	channel string
	delay   time.Duration

	mu     sync.Mutex
	ctxErr error
	sends  int
}

func (s *slowTransport) Channel() string { return s.channel }

func (s *slowTransport) Send(ctx context.Context, _ Message) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.ctxErr = ctx.Err()
	s.sends++
	s.mu.Unlock()
	return ctx.Err()
}

func TestDispatchOutlivesCallerContext(t *testing.T) {
	sms := &slowTransport{channel: ChannelSMS, delay: 50 * time.Millisecond}
	audit := &fakeAudit{}

	th := allEnabled()
	th.EmailEnabled = false
	th.ChatEnabled = false

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(audit, zap.NewNop(), sms)
	d.Dispatch(ctx, testEvent(), th)
	cancel() // the caller is gone before the send completes
	d.Wait()

	sms.mu.Lock()
	defer sms.mu.Unlock()
	if sms.sends != 1 {
		t.Fatalf("expected one send attempt, got %d", sms.sends)
	}
	if sms.ctxErr != nil {
		t.Fatalf("in-flight delivery saw canceled context: %v", sms.ctxErr)
	}

	rows := audit.byChannel(ChannelSMS)
	if len(rows) != 1 || rows[0].Status != storage.NotificationStatusSent {
		t.Fatalf("expected one SENT audit row, got %+v", rows)
	}
}

func TestDispatchSkipsChannelWithoutRecipients(t *testing.T) {
	sms := &fakeTransport{channel: ChannelSMS}
	audit := &fakeAudit{}

	th := allEnabled()
	th.EmailEnabled = false
	th.ChatEnabled = false
	th.SMSNumber = ""

	d := NewDispatcher(audit, zap.NewNop(), sms)
	d.Dispatch(context.Background(), testEvent(), th)
	d.Wait()

	if sms.sendCount() != 0 {
		t.Errorf("channel with no recipients should not send, got %d", sms.sendCount())
	}
	if len(audit.entries) != 0 {
		t.Errorf("expected no audit rows, got %d", len(audit.entries))
	}
}
