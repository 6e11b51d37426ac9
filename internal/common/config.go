package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	Matching MatchingConfig
	Export   ExportConfig
	Queue    QueueConfig
	Inbox    InboxConfig
	LogLevel string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" | "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Pdftoppm    string
	Tesseract   string
	TessdataDir string
	Lang        string
	DPI         int
	PSM         int
	MaxPages    int
	Workers     int
	PageTimeout time.Duration
	ArtifactDir string
}

// MatchingConfig holds ticket/image matching thresholds (0..1).
type MatchingConfig struct {
	ExactThreshold    float64
	FuzzyThreshold    float64
	AdvisoryThreshold float64
}

// ExportConfig holds bundle generation settings.
type ExportConfig struct {
	OutputDir   string
	TimeZone    string
	ImagePolicy string // "warn" | "block"
	Zip         bool
}

// QueueConfig sizes the batch worker queue.
type QueueConfig struct {
	Workers int
	Size    int
	Timeout time.Duration
}

// InboxConfig points the daemon at a directory watched for new document pairs.
// An empty Dir disables the watcher.
type InboxConfig struct {
	Dir      string
	Debounce time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		OCR: OCRConfig{
			Pdftoppm:    getEnv("OCR_PDFTOPPM", "pdftoppm"),
			Tesseract:   getEnv("OCR_TESSERACT", "tesseract"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
			Lang:        getEnv("OCR_LANG", "eng"),
			DPI:         getEnvAsInt("OCR_DPI", 300),
			PSM:         getEnvAsInt("OCR_PSM", 6),
			MaxPages:    getEnvAsInt("OCR_MAX_PAGES", 0),
			Workers:     getEnvAsInt("OCR_WORKERS", 4),
			PageTimeout: getEnvAsDuration("OCR_PAGE_TIMEOUT", 45*time.Second),
			ArtifactDir: getEnv("ARTIFACT_DIR", "./tmp/artifacts"),
		},
		Matching: MatchingConfig{
			ExactThreshold:    getEnvAsFloat64("MATCH_EXACT_THRESHOLD", 0.50),
			FuzzyThreshold:    getEnvAsFloat64("MATCH_FUZZY_THRESHOLD", 0.70),
			AdvisoryThreshold: getEnvAsFloat64("MATCH_ADVISORY_THRESHOLD", 0.90),
		},
		Export: ExportConfig{
			OutputDir:   getEnv("EXPORT_DIR", "./exports"),
			TimeZone:    getEnv("EXPORT_TZ", "UTC"),
			ImagePolicy: getEnv("EXPORT_IMAGE_POLICY", "warn"),
			Zip:         getEnvAsBool("EXPORT_ZIP", true),
		},
		Queue: QueueConfig{
			Workers: getEnvAsInt("QUEUE_WORKERS", 2),
			Size:    getEnvAsInt("QUEUE_SIZE", 64),
			Timeout: getEnvAsDuration("QUEUE_TIMEOUT", 10*time.Minute),
		},
		Inbox: InboxConfig{
			Dir:      getEnv("INBOX_DIR", ""),
			Debounce: getEnvAsDuration("INBOX_DEBOUNCE", 2*time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required for postgres", ErrInvalidInput)
		}
	case "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown DB_DRIVER %q", c.Database.Driver), ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	for name, v := range map[string]float64{
		"MATCH_EXACT_THRESHOLD":    c.Matching.ExactThreshold,
		"MATCH_FUZZY_THRESHOLD":    c.Matching.FuzzyThreshold,
		"MATCH_ADVISORY_THRESHOLD": c.Matching.AdvisoryThreshold,
	} {
		if v < 0 || v > 1 {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("%s must be within [0,1], got %v", name, v), ErrInvalidInput)
		}
	}
	switch strings.ToLower(c.Export.ImagePolicy) {
	case "warn", "block":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown EXPORT_IMAGE_POLICY %q", c.Export.ImagePolicy), ErrInvalidInput)
	}
	if _, err := c.Location(); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid EXPORT_TZ", err)
	}
	return nil
}

// Location resolves the configured billing time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Export.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Export.TimeZone)
}
