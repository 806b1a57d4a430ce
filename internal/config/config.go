// Package config reads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/mealplan/internal/backup"
)

type Config struct {
	Port           string
	DBPath         string
	StoreKey       string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is
	// honored. Empty means the peer address is always the client.
	TrustedProxies []string
	Backup         backup.Config
}

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Load reads MEALPLAN_* variables. Unset variables take their defaults;
// malformed numeric or duration values are an error.
func Load() (*Config, error) {
	cfg := &Config{
		Port:      getEnvOrDefault("MEALPLAN_PORT", "8080"),
		DBPath:    getEnvOrDefault("MEALPLAN_DB_PATH", "mealplan.db"),
		StoreKey:  getEnvOrDefault("MEALPLAN_STORE_KEY", "savedMeals"),
		LogLevel:  getEnvOrDefault("MEALPLAN_LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("MEALPLAN_LOG_FORMAT", "text"),
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  os.Getenv("MEALPLAN_S3_ENDPOINT"),
				Bucket:    os.Getenv("MEALPLAN_S3_BUCKET"),
				Region:    getEnvOrDefault("MEALPLAN_S3_REGION", "us-east-1"),
				AccessKey: os.Getenv("MEALPLAN_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("MEALPLAN_S3_SECRET_KEY"),
			},
			Passphrase: os.Getenv("MEALPLAN_BACKUP_PASSPHRASE"),
			Prefix:     getEnvOrDefault("MEALPLAN_BACKUP_PREFIX", backup.DefaultPrefix),
		},
	}

	cfg.AllowedOrigins = getEnvList("MEALPLAN_ALLOWED_ORIGINS")
	cfg.TrustedProxies = getEnvList("MEALPLAN_TRUSTED_PROXIES")

	if v := os.Getenv("MEALPLAN_BACKUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("MEALPLAN_BACKUP_INTERVAL: %w", err)
		}
		cfg.Backup.Interval = d
	}

	retention, err := strconv.Atoi(getEnvOrDefault("MEALPLAN_BACKUP_RETENTION_DAYS", strconv.Itoa(backup.DefaultRetentionDays)))
	if err != nil {
		return nil, fmt.Errorf("MEALPLAN_BACKUP_RETENTION_DAYS: %w", err)
	}
	cfg.Backup.RetentionDays = retention

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("MEALPLAN_PORT: %q is not a port number", cfg.Port)
	}
	return cfg, nil
}
