package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	MQTT      MQTTConfig
	SMTP      SMTPConfig
	SMS       SMSConfig
	Chat      ChatConfig
	Weather   WeatherConfig
	Alerting  AlertingConfig
	Broadcast BroadcastConfig
	Export    ExportConfig
	Log       LogConfig
}

type HTTPConfig struct {
	Port int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	LatestTTL time.Duration
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type KafkaConfig struct {
	Brokers      []string
	TopicRecords string
}

// Enabled reports whether a broker list was configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Brokers[0] != ""
}

type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Username  string
	Password  string
}

func (m MQTTConfig) Enabled() bool {
	return m.BrokerURL != ""
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMSConfig struct {
	BaseURL string
	APIKey  string
	Sender  string
}

type ChatConfig struct {
	BaseURL   string
	AccountID string
	AuthToken string
	From      string
}

type WeatherConfig struct {
	APIKey  string
	BaseURL string
	Lat     float64
	Lon     float64
	Timeout time.Duration
}

type AlertingConfig struct {
	MaxTemperature float64
	MinTemperature float64
	LDRThreshold   float64
}

type BroadcastConfig struct {
	SubscriberBacklog int
	RecentSize        int
}

type ExportConfig struct {
	CSVDir string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		HTTP: HTTPConfig{
			Port: getEnvAsInt("HTTP_PORT", 8000),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "sensor_user"),
			Password: getEnv("DB_PASSWORD", "sensor_pass"),
			DBName:   getEnv("DB_NAME", "sensor_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			LatestTTL: getEnvAsDuration("REDIS_LATEST_TTL", time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:      splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			TopicRecords: getEnv("KAFKA_TOPIC_RECORDS", "sensors.records"),
		},
		MQTT: MQTTConfig{
			BrokerURL: getEnv("MQTT_BROKER_URL", ""),
			ClientID:  getEnv("MQTT_CLIENT_ID", "sensor-hub"),
			Topic:     getEnv("MQTT_TOPIC", "sensors/+/reading"),
			Username:  getEnv("MQTT_USERNAME", ""),
			Password:  getEnv("MQTT_PASSWORD", ""),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "sensor-hub@example.com"),
		},
		SMS: SMSConfig{
			BaseURL: getEnv("SMS_BASE_URL", ""),
			APIKey:  getEnv("SMS_API_KEY", ""),
			Sender:  getEnv("SMS_SENDER", "SensorHub"),
		},
		Chat: ChatConfig{
			BaseURL:   getEnv("CHAT_BASE_URL", ""),
			AccountID: getEnv("CHAT_ACCOUNT_ID", ""),
			AuthToken: getEnv("CHAT_AUTH_TOKEN", ""),
			From:      getEnv("CHAT_FROM", ""),
		},
		Weather: WeatherConfig{
			APIKey:  getEnv("OPENWEATHER_API_KEY", ""),
			BaseURL: getEnv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5/weather"),
			Lat:     getEnvAsFloat("WEATHER_LAT", 33.9885407),
			Lon:     getEnvAsFloat("WEATHER_LON", -6.8570454),
			Timeout: getEnvAsDuration("WEATHER_TIMEOUT", 5*time.Second),
		},
		Alerting: AlertingConfig{
			MaxTemperature: getEnvAsFloat("ALERT_MAX_TEMPERATURE", 35.0),
			MinTemperature: getEnvAsFloat("ALERT_MIN_TEMPERATURE", 15.0),
			LDRThreshold:   getEnvAsFloat("ALERT_LDR_THRESHOLD", 300),
		},
		Broadcast: BroadcastConfig{
			SubscriberBacklog: getEnvAsInt("BROADCAST_BACKLOG", 64),
			RecentSize:        getEnvAsInt("BROADCAST_RECENT_SIZE", 100),
		},
		Export: ExportConfig{
			CSVDir: getEnv("CSV_EXPORT_DIR", "."),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
