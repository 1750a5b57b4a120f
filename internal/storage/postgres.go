package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		filePath := filepath.Join(migrationsDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// SaveRecord inserts a fused sensor record and fills in its ID.
func (db *DB) SaveRecord(rec *Record) error {
	query := `
		INSERT INTO sensor_records (
			device_id, location, temperature, temperature_source, humidity,
			primary_raw, secondary_raw, primary_ok, secondary_ok,
			sensor_disagreement, ldr_value, outdoor_temperature,
			weather_condition, alert, alert_cause, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`

	return db.QueryRow(
		query,
		rec.DeviceID,
		rec.Location,
		rec.Temperature,
		nullIfEmpty(rec.TemperatureSource),
		rec.Humidity,
		rec.PrimaryRaw,
		rec.SecondaryRaw,
		rec.PrimaryOK,
		rec.SecondaryOK,
		rec.SensorDisagreement,
		rec.LDRValue,
		rec.OutdoorTemperature,
		rec.WeatherCondition,
		rec.Alert,
		rec.AlertCause,
		rec.Timestamp,
	).Scan(&rec.ID)
}

const recordColumns = `
	id, device_id, location, temperature, temperature_source, humidity,
	primary_raw, secondary_raw, primary_ok, secondary_ok,
	sensor_disagreement, ldr_value, outdoor_temperature,
	weather_condition, alert, alert_cause, timestamp
`

// LatestRecord retrieves the newest record for a device, or nil when the
// device has never reported.
func (db *DB) LatestRecord(deviceID string) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM sensor_records
		WHERE device_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	rec, err := scanRecord(db.QueryRow(query, deviceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// HistoryRecords retrieves records for a device, newest first.
func (db *DB) HistoryRecords(deviceID string, limit, offset int) ([]*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM sensor_records
		WHERE device_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := db.Query(query, deviceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// LogNotification appends a delivery attempt to the audit log.
func (db *DB) LogNotification(entry *NotificationLog) error {
	query := `
		INSERT INTO notification_log (
			timestamp, channel, recipient, subject, body, status, error,
			record_id, cause
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	return db.QueryRow(
		query,
		entry.Timestamp,
		entry.Channel,
		entry.Recipient,
		entry.Subject,
		entry.Body,
		entry.Status,
		entry.Error,
		entry.RecordID,
		entry.Cause,
	).Scan(&entry.ID)
}

// NotificationLogs retrieves audit entries, newest first.
func (db *DB) NotificationLogs(limit, offset int) ([]*NotificationLog, error) {
	query := `
		SELECT id, timestamp, channel, recipient, subject, body, status,
		       error, record_id, cause
		FROM notification_log
		ORDER BY timestamp DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.Query(query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*NotificationLog
	for rows.Next() {
		var e NotificationLog
		if err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&e.Channel,
			&e.Recipient,
			&e.Subject,
			&e.Body,
			&e.Status,
			&e.Error,
			&e.RecordID,
			&e.Cause,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// LoadSettings retrieves the settings row, or nil when none has been saved.
func (db *DB) LoadSettings() (*Settings, error) {
	query := `
		SELECT id, max_temperature, min_temperature, ldr_threshold,
		       email_enabled, sms_enabled, chat_enabled, email_recipients,
		       sms_number, chat_number, updated_at
		FROM settings
		WHERE id = 1
	`

	var s Settings
	err := db.QueryRow(query).Scan(
		&s.ID,
		&s.MaxTemperature,
		&s.MinTemperature,
		&s.LDRThreshold,
		&s.EmailEnabled,
		&s.SMSEnabled,
		&s.ChatEnabled,
		&s.EmailRecipients,
		&s.SMSNumber,
		&s.ChatNumber,
		&s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// SaveSettings upserts the single settings row.
func (db *DB) SaveSettings(s *Settings) error {
	query := `
		INSERT INTO settings (
			id, max_temperature, min_temperature, ldr_threshold,
			email_enabled, sms_enabled, chat_enabled, email_recipients,
			sms_number, chat_number, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET max_temperature = EXCLUDED.max_temperature,
		    min_temperature = EXCLUDED.min_temperature,
		    ldr_threshold = EXCLUDED.ldr_threshold,
		    email_enabled = EXCLUDED.email_enabled,
		    sms_enabled = EXCLUDED.sms_enabled,
		    chat_enabled = EXCLUDED.chat_enabled,
		    email_recipients = EXCLUDED.email_recipients,
		    sms_number = EXCLUDED.sms_number,
		    chat_number = EXCLUDED.chat_number,
		    updated_at = CURRENT_TIMESTAMP
	`

	_, err := db.Exec(
		query,
		s.MaxTemperature,
		s.MinTemperature,
		s.LDRThreshold,
		s.EmailEnabled,
		s.SMSEnabled,
		s.ChatEnabled,
		s.EmailRecipients,
		s.SMSNumber,
		s.ChatNumber,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var source sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.DeviceID,
		&rec.Location,
		&rec.Temperature,
		&source,
		&rec.Humidity,
		&rec.PrimaryRaw,
		&rec.SecondaryRaw,
		&rec.PrimaryOK,
		&rec.SecondaryOK,
		&rec.SensorDisagreement,
		&rec.LDRValue,
		&rec.OutdoorTemperature,
		&rec.WeatherCondition,
		&rec.Alert,
		&rec.AlertCause,
		&rec.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	rec.TemperatureSource = source.String
	return &rec, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
