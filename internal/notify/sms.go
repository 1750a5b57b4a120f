package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/hbenali/sensor-hub/pkg/config"
)

// SMSTransport sends terse text alerts through an HTTP SMS gateway.
type SMSTransport struct {
	http   *resty.Client
	sender string
	apiKey string
}

// NewSMSTransport creates the SMS transport.
func NewSMSTransport(cfg *config.SMSConfig) *SMSTransport {
	return &SMSTransport{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Content-Type", "application/json"),
		sender: cfg.Sender,
		apiKey: cfg.APIKey,
	}
}

func (s *SMSTransport) Channel() string { return ChannelSMS }

type smsRequest struct {
	From string   `json:"from"`
	To   []string `json:"to"`
	Text string   `json:"text"`
}

// Send posts the message to the gateway, one call for all recipients.
func (s *SMSTransport) Send(ctx context.Context, msg Message) error {
	if s.apiKey == "" {
		return fmt.Errorf("SMS transport not configured")
	}
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "App "+s.apiKey).
		SetBody(smsRequest{From: s.sender, To: msg.Recipients, Text: msg.Body}).
		Post("/sms/messages")
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("SMS gateway returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// composeSMS keeps the text short enough for a single segment where
// possible.
func composeSMS(ev Event) Message {
	var body string
	if ev.TemperatureKnown {
		body = fmt.Sprintf("Sensor Alert: %s at %s. Temp: %.1fC (min: %.1fC, max: %.1fC)",
			ev.Cause, ev.Location, ev.Temperature, ev.MinThreshold, ev.MaxThreshold)
	} else {
		body = fmt.Sprintf("Sensor Alert: %s at %s. No trusted temperature reading.",
			ev.Cause, ev.Location)
	}
	return Message{Body: body}
}
