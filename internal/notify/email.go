package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"github.com/hbenali/sensor-hub/pkg/config"
)

// EmailTransport sends HTML alert emails over SMTP.
type EmailTransport struct {
	config *config.SMTPConfig
}

// NewEmailTransport creates the email transport.
func NewEmailTransport(cfg *config.SMTPConfig) *EmailTransport {
	return &EmailTransport{config: cfg}
}

func (e *EmailTransport) Channel() string { return ChannelEmail }

// Send delivers the message to all recipients in one SMTP transaction.
func (e *EmailTransport) Send(_ context.Context, msg Message) error {
	if e.config.Username == "" || e.config.Password == "" {
		return fmt.Errorf("SMTP transport not configured")
	}
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)

	if err := smtp.SendMail(addr, auth, e.config.From, msg.Recipients, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

var emailTemplate = template.Must(template.New("alert").Funcs(template.FuncMap{
	"deref": func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	},
}).Parse(`
<h2>Sensor Alert: {{.Cause}}</h2>
<p><strong>Device:</strong> {{.DeviceID}}</p>
<p><strong>Location:</strong> {{.Location}}</p>
{{if .TemperatureKnown}}<p><strong>Indoor temperature:</strong> {{printf "%.1f" .Temperature}}&deg;C</p>
{{else}}<p><strong>Indoor temperature:</strong> unavailable (sensor fault)</p>
{{end}}{{if .OutdoorTemperature}}<p><strong>Outdoor temperature:</strong> {{printf "%.1f" (deref .OutdoorTemperature)}}&deg;C</p>
{{end}}{{if .Humidity}}<p><strong>Humidity:</strong> {{printf "%.1f" (deref .Humidity)}}%</p>
{{end}}<p><strong>Thresholds:</strong> min {{printf "%.1f" .MinThreshold}}&deg;C, max {{printf "%.1f" .MaxThreshold}}&deg;C</p>
<p><strong>Record ID:</strong> {{.RecordID}}</p>
<p><strong>Time:</strong> {{.Timestamp.UTC.Format "2006-01-02T15:04:05Z07:00"}}</p>
`))

// composeEmail renders the rich HTML body for an alert event.
func composeEmail(ev Event) Message {
	subject := fmt.Sprintf("Sensor Alert: %s at %s", ev.Cause, ev.Location)

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, ev); err != nil {
		// Template and data are fixed shapes; fall back to a plain body
		// rather than dropping the notification.
		buf.Reset()
		fmt.Fprintf(&buf, "<p>Alert %s on device %s at %s</p>", ev.Cause, ev.DeviceID, ev.Location)
	}

	return Message{Subject: subject, Body: buf.String()}
}
