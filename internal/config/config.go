package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port               string
	DBConn             string
	LogLevel           string
	JWTSecret          string
	PublicURL          string
	RailURL            string
	RailAPIKey         string
	RailTimeoutSeconds int
	SweepSchedule      string
	SMTPHost           string
	SMTPPort           string
	SMTPUsername       string
	SMTPPassword       string
	SenderEmail        string
	AlertEmail         string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	timeout, err := strconv.Atoi(getEnv("RAIL_TIMEOUT_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid RAIL_TIMEOUT_SECONDS: %w", err)
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DBConn:             getEnv("DB_CONN", "host=localhost port=5432 user=pos password=pos dbname=pos sslmode=disable"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:          getEnv("JWT_SECRET", "secret"),
		PublicURL:          getEnv("PUBLIC_URL", "http://localhost:8080"),
		RailURL:            getEnv("RAIL_URL", "https://api.blink.sv/graphql"),
		RailAPIKey:         getEnv("RAIL_API_KEY", ""),
		RailTimeoutSeconds: timeout,
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", "@every 10m"),
		SMTPHost:           getEnv("SMTP_HOST", "localhost"),
		SMTPPort:           getEnv("SMTP_PORT", "25"),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SenderEmail:        getEnv("SENDER_EMAIL", "pos@localhost"),
		AlertEmail:         getEnv("ALERT_EMAIL", ""),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.RailURL == "" {
		return nil, fmt.Errorf("RAIL_URL is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
