// Package settings holds the mutable alerting configuration: temperature
// thresholds, channel enable flags and recipient lists. Reads are atomic
// snapshots; writes go through to the persistent settings row before they
// become visible.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hbenali/sensor-hub/internal/storage"
)

// ErrInvalidRange rejects updates that would leave the maximum threshold
// at or below the minimum.
var ErrInvalidRange = errors.New("max temperature must be greater than min temperature")

// Thresholds is one committed configuration snapshot.
type Thresholds struct {
	MaxTemperature  float64  `json:"max_temperature"`
	MinTemperature  float64  `json:"min_temperature"`
	LDRThreshold    float64  `json:"ldr_threshold"`
	EmailEnabled    bool     `json:"email_enabled"`
	SMSEnabled      bool     `json:"sms_enabled"`
	ChatEnabled     bool     `json:"chat_enabled"`
	EmailRecipients []string `json:"email_recipients"`
	SMSNumber       string   `json:"sms_number"`
	ChatNumber      string   `json:"chat_number"`
}

func (t Thresholds) clone() Thresholds {
	out := t
	out.EmailRecipients = append([]string(nil), t.EmailRecipients...)
	return out
}

// Repository is the persistence boundary for the settings row.
type Repository interface {
	LoadSettings() (*storage.Settings, error)
	SaveSettings(*storage.Settings) error
}

// Store is the in-memory mirror of the persisted settings.
type Store struct {
	// mu guards current only; it is never held across a repository call,
	// so Get on the ingestion path cannot stall behind a slow database.
	mu      sync.RWMutex
	current Thresholds

	// updateMu serializes writers: validation and persistence both happen
	// under it, against the composed state.
	updateMu sync.Mutex

	repo   Repository
	logger *zap.Logger
}

// NewStore loads the persisted settings, seeding the row with defaults on
// first run.
func NewStore(repo Repository, defaults Thresholds, logger *zap.Logger) (*Store, error) {
	s := &Store{repo: repo, logger: logger}

	row, err := repo.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if row == nil {
		if err := repo.SaveSettings(toRow(defaults)); err != nil {
			return nil, fmt.Errorf("failed to seed default settings: %w", err)
		}
		s.current = defaults.clone()
		logger.Info("seeded default settings",
			zap.Float64("max_temperature", defaults.MaxTemperature),
			zap.Float64("min_temperature", defaults.MinTemperature))
		return s, nil
	}

	s.current = fromRow(row)
	return s, nil
}

// Get returns the latest committed snapshot.
func (s *Store) Get() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Update applies mutate to a copy of the current snapshot, validates and
// persists it, then makes it visible. If validation or persistence fails
// the previous snapshot stays in effect. Concurrent updates are applied
// one at a time, each validated against the state the previous one left.
func (s *Store) Update(mutate func(*Thresholds)) (Thresholds, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	next := s.Get()
	mutate(&next)

	if next.MaxTemperature <= next.MinTemperature {
		return s.Get(), ErrInvalidRange
	}

	if err := s.repo.SaveSettings(toRow(next)); err != nil {
		return s.Get(), fmt.Errorf("failed to persist settings: %w", err)
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	s.logger.Info("settings updated",
		zap.Float64("max_temperature", next.MaxTemperature),
		zap.Float64("min_temperature", next.MinTemperature),
		zap.Bool("email_enabled", next.EmailEnabled),
		zap.Bool("sms_enabled", next.SMSEnabled),
		zap.Bool("chat_enabled", next.ChatEnabled))
	return next.clone(), nil
}

func toRow(t Thresholds) *storage.Settings {
	return &storage.Settings{
		ID:              1,
		MaxTemperature:  t.MaxTemperature,
		MinTemperature:  t.MinTemperature,
		LDRThreshold:    t.LDRThreshold,
		EmailEnabled:    t.EmailEnabled,
		SMSEnabled:      t.SMSEnabled,
		ChatEnabled:     t.ChatEnabled,
		EmailRecipients: strings.Join(t.EmailRecipients, ","),
		SMSNumber:       t.SMSNumber,
		ChatNumber:      t.ChatNumber,
	}
}

func fromRow(row *storage.Settings) Thresholds {
	return Thresholds{
		MaxTemperature:  row.MaxTemperature,
		MinTemperature:  row.MinTemperature,
		LDRThreshold:    row.LDRThreshold,
		EmailEnabled:    row.EmailEnabled,
		SMSEnabled:      row.SMSEnabled,
		ChatEnabled:     row.ChatEnabled,
		EmailRecipients: splitRecipients(row.EmailRecipients),
		SMSNumber:       row.SMSNumber,
		ChatNumber:      row.ChatNumber,
	}
}

func splitRecipients(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
