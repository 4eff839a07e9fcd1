package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is built once at startup and passed to the components that need
// it. Nothing mutates it after Load returns.
type Config struct {
	ServerHost string
	ServerPort string

	// AdminToken is compared against the "auth" handshake parameter.
	AdminToken string
	// AdminOnlyResize restricts the resize command to admin sessions.
	AdminOnlyResize bool

	CanvasWidth      int
	CanvasHeight     int
	SnapshotInterval int
	// MaxCanvasDimension caps the width and height a resize may request.
	// Every resize clones the canvas into a snapshot and sends each session
	// a full init board of roughly 10 bytes of JSON per pixel, so at 4096
	// one resize costs a 48 MB snapshot and ~150 MB per client.
	MaxCanvasDimension int

	PersistencePath  string
	AutosaveInterval time.Duration

	// OutboundQueueSize bounds each session's outbound queue; a session
	// whose queue overflows is disconnected.
	OutboundQueueSize int

	// Change journal (disabled when DatabaseURL is empty)
	DatabaseURL      string
	JournalWorkers   int
	JournalQueueSize int

	// Observability
	JaegerEndpoint string
	LogDevelopment bool
}

// Load reads an optional .env file (envFile, or ./.env when empty) and the
// process environment, then validates the result.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else {
		// Load .env file if it exists
		_ = godotenv.Load()
	}

	cfg := &Config{
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		AdminToken:      getEnv("ADMIN_TOKEN", ""),
		AdminOnlyResize: getEnvBool("ADMIN_ONLY_RESIZE", false),

		CanvasWidth:      getEnvInt("DEFAULT_CANVAS_WIDTH", 128),
		CanvasHeight:     getEnvInt("DEFAULT_CANVAS_HEIGHT", 128),
		SnapshotInterval: getEnvInt("DEFAULT_SNAPSHOT_INTERVAL", 100),

		MaxCanvasDimension: getEnvInt("MAX_CANVAS_DIMENSION", 1024),

		PersistencePath:  getEnv("PERSISTENCE_PATH", "history.bin"),
		AutosaveInterval: time.Duration(getEnvInt("AUTOSAVE_INTERVAL_SECONDS", 30)) * time.Second,

		OutboundQueueSize: getEnvInt("OUTBOUND_QUEUE_SIZE", 256),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		JournalWorkers:   getEnvInt("JOURNAL_WORKERS", 2),
		JournalQueueSize: getEnvInt("JOURNAL_QUEUE_SIZE", 1024),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		LogDevelopment: getEnvBool("LOG_DEVELOPMENT", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.AdminToken == "" {
		errs = append(errs, errors.New("ADMIN_TOKEN is required"))
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		errs = append(errs, fmt.Errorf("canvas size must be positive, got %dx%d", c.CanvasWidth, c.CanvasHeight))
	}
	if c.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_SNAPSHOT_INTERVAL must be positive, got %d", c.SnapshotInterval))
	}
	if c.MaxCanvasDimension < c.CanvasWidth || c.MaxCanvasDimension < c.CanvasHeight {
		errs = append(errs, fmt.Errorf("MAX_CANVAS_DIMENSION %d is smaller than the default canvas", c.MaxCanvasDimension))
	}
	if c.AutosaveInterval <= 0 {
		errs = append(errs, fmt.Errorf("AUTOSAVE_INTERVAL_SECONDS must be positive, got %s", c.AutosaveInterval))
	}
	if c.OutboundQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOUND_QUEUE_SIZE must be positive, got %d", c.OutboundQueueSize))
	}
	if c.PersistencePath == "" {
		errs = append(errs, errors.New("PERSISTENCE_PATH must not be empty"))
	}
	if c.DatabaseURL != "" && (c.JournalWorkers <= 0 || c.JournalQueueSize <= 0) {
		errs = append(errs, errors.New("JOURNAL_WORKERS and JOURNAL_QUEUE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.ServerHost + ":" + c.ServerPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt falls back to the default when the variable is unset. A value
// that does not parse becomes -1 so Validate rejects it instead of
// silently using the default.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
