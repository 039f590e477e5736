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
	Env string

	ServerPort string
	ServerHost string

	// Origins accepted for the WebSocket upgrade and CORS. "*" allows all.
	AllowedOrigins []string

	// Connection gateway limits
	MaxMessageSize  int64
	SendBufferSize  int
	EventsPerSecond int
	EventBurst      int
	PingInterval    time.Duration
	PongWait        time.Duration

	// Activity log (optional, postgres backed)
	ActivityLogEnabled bool
	ActivityWorkers    int
	ActivityQueueSize  int

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Observability. Empty endpoint disables tracing export.
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("APP_ENV", "dev"),

		ServerPort: getEnv("SERVER_PORT", "3000"),
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),

		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "*")),

		MaxMessageSize:  int64(getEnvInt("MAX_MESSAGE_SIZE", 1<<20)),
		SendBufferSize:  getEnvInt("SEND_BUFFER_SIZE", 256),
		EventsPerSecond: getEnvInt("EVENTS_PER_SECOND", 50),
		EventBurst:      getEnvInt("EVENT_BURST", 100),
		PingInterval:    getEnvDuration("PING_INTERVAL", 25*time.Second),
		PongWait:        getEnvDuration("PONG_WAIT", 60*time.Second),

		ActivityLogEnabled: getEnvBool("ACTIVITY_LOG_ENABLED", false),
		ActivityWorkers:    getEnvInt("ACTIVITY_WORKERS", 2),
		ActivityQueueSize:  getEnvInt("ACTIVITY_QUEUE_SIZE", 256),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "collab_relay"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("SERVER_PORT must be numeric, got %q", c.ServerPort)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be positive")
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be positive")
	}
	if c.EventsPerSecond <= 0 || c.EventBurst <= 0 {
		return fmt.Errorf("EVENTS_PER_SECOND and EVENT_BURST must be positive")
	}
	if c.PingInterval <= 0 || c.PongWait <= c.PingInterval {
		return fmt.Errorf("PONG_WAIT (%s) must be greater than PING_INTERVAL (%s)", c.PongWait, c.PingInterval)
	}
	if c.ActivityLogEnabled && (c.ActivityWorkers <= 0 || c.ActivityQueueSize <= 0) {
		return fmt.Errorf("ACTIVITY_WORKERS and ACTIVITY_QUEUE_SIZE must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
