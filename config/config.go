package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for one tracker run. One config = one user =
// one process; the value is passed explicitly to every constructor.
type Config struct {
	Environment string

	// portal credentials
	Username string
	Password string

	// which session types to watch
	CheckPractical bool
	CheckBTT       bool
	CheckRTT       bool
	CheckPT        bool

	// StayAlive keeps polling every RefreshRate; false means a single pass.
	StayAlive   bool
	RefreshRate time.Duration

	// NotifyAlways sends a mail every cycle even without an earlier session.
	NotifyAlways bool

	// DayFilter / HourFilter restrict which available sessions count,
	// e.g. "mo;tu;sa" and "9-17"; "na" disables the filter.
	DayFilter  string
	HourFilter string

	// mail settings
	EmailProvider string
	SMTPServer    string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	FromEmail     string
	ToEmail       string

	SESRegion          string
	SESAccessKeyID     string
	SESSecretAccessKey string

	// MarkerDir holds the last-notified-session marker files; empty means the
	// system temp directory.
	MarkerDir string

	// portal endpoints, overridable for testing against a mirror
	HomeURL    string
	BookingURL string
}

// Load loads configuration from environment variables.
// It attempts to load from a .env file if not in production.
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// In production .env might not exist and we rely on system environment
	// variables, so a missing file is only a warning.
	if env != "production" {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found or couldn't be loaded: %v", err)
		}
	}

	cfg := &Config{
		Environment: env,

		Username: os.Getenv("CDC_USERNAME"),
		Password: os.Getenv("CDC_PASSWORD"),

		CheckPractical: envBool("CHECK_PRACTICAL", false),
		CheckBTT:       envBool("CHECK_BTT", false),
		CheckRTT:       envBool("CHECK_RTT", false),
		CheckPT:        envBool("CHECK_PT", false),

		StayAlive:    envBool("STAY_ALIVE", false),
		RefreshRate:  time.Duration(envInt("REFRESH_RATE", 60)) * time.Second,
		NotifyAlways: envBool("NOTIFY_ALWAYS", false),

		DayFilter:  envString("DAY_FILTER", "na"),
		HourFilter: envString("HOUR_FILTER", "na"),

		EmailProvider: envString("EMAIL_PROVIDER", "smtp"),
		SMTPServer:    os.Getenv("SMTP_SERVER"),
		SMTPPort:      envInt("SMTP_PORT", 587),
		SMTPUser:      os.Getenv("SMTP_USER"),
		SMTPPassword:  os.Getenv("SMTP_PW"),
		FromEmail:     os.Getenv("FROM_EMAIL"),
		ToEmail:       os.Getenv("TO_EMAIL"),

		SESRegion:          os.Getenv("SES_REGION"),
		SESAccessKeyID:     os.Getenv("SES_ACCESS_KEY_ID"),
		SESSecretAccessKey: os.Getenv("SES_SECRET_ACCESS_KEY"),

		MarkerDir: os.Getenv("MARKER_DIR"),

		HomeURL:    os.Getenv("HOME_URL"),
		BookingURL: os.Getenv("BOOKING_URL"),
	}

	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("CDC_USERNAME and CDC_PASSWORD are required")
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid boolean %q for %s, using %v", v, key, fallback)
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid integer %q for %s, using %d", v, key, fallback)
		return fallback
	}
	return n
}
