package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/hbenali/sensor-hub/pkg/config"
)

// ChatTransport pushes alerts to a chat-style messaging provider.
type ChatTransport struct {
	http *resty.Client
	from string
	id   string
}

// NewChatTransport creates the chat transport.
func NewChatTransport(cfg *config.ChatConfig) *ChatTransport {
	return &ChatTransport{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetBasicAuth(cfg.AccountID, cfg.AuthToken),
		from: cfg.From,
		id:   cfg.AccountID,
	}
}

func (c *ChatTransport) Channel() string { return ChannelChat }

// Send delivers the message to each recipient number.
func (c *ChatTransport) Send(ctx context.Context, msg Message) error {
	if c.id == "" {
		return fmt.Errorf("chat transport not configured")
	}
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	var failures []string
	for _, to := range msg.Recipients {
		resp, err := c.http.R().
			SetContext(ctx).
			SetFormData(map[string]string{
				"From": c.from,
				"To":   to,
				"Body": msg.Body,
			}).
			Post(fmt.Sprintf("/Accounts/%s/Messages.json", c.id))
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", to, err))
			continue
		}
		if resp.IsError() {
			failures = append(failures, fmt.Sprintf("%s: status %d", to, resp.StatusCode()))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("chat delivery failed for %s", strings.Join(failures, "; "))
	}
	return nil
}

// composeChat renders a multi-line push message.
func composeChat(ev Event) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Sensor Alert: %s\n", ev.Cause)
	fmt.Fprintf(&b, "Device: %s\n", ev.DeviceID)
	fmt.Fprintf(&b, "Location: %s\n", ev.Location)
	if ev.TemperatureKnown {
		fmt.Fprintf(&b, "Temperature: %.1fC\n", ev.Temperature)
	} else {
		b.WriteString("Temperature: unavailable (sensor fault)\n")
	}
	if ev.Humidity != nil {
		fmt.Fprintf(&b, "Humidity: %.1f%%\n", *ev.Humidity)
	}
	if ev.OutdoorTemperature != nil {
		fmt.Fprintf(&b, "Outdoor: %.1fC\n", *ev.OutdoorTemperature)
	}
	fmt.Fprintf(&b, "Thresholds: %.1fC - %.1fC", ev.MinThreshold, ev.MaxThreshold)
	return Message{Body: b.String()}
}
