package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	IdentityKey         string
	PushServiceURL      string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	Port                string
	MaxWorkers          int
	AutoDownload        bool
	ReadReceipts        bool
	TypingIndicators    bool
	TempDir             string
	Timezone            string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("MERCURY_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("MERCURY_ENCRYPTION_KEY_BASE64"),
		IdentityKey:         os.Getenv("MERCURY_IDENTITY_KEY"),
		PushServiceURL:      os.Getenv("MERCURY_PUSH_SERVICE_URL"),
		DBHost:              getEnvOrDefault("MERCURY_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("MERCURY_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("MERCURY_DB_USER", "mercury"),
		DBPassword:          os.Getenv("MERCURY_DB_PASSWORD"),
		DBName:              getEnvOrDefault("MERCURY_DB_NAME", "mercury"),
		DBSSLMode:           getEnvOrDefault("MERCURY_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "8080"),
		MaxWorkers:          getEnvIntOrDefault("MERCURY_MAX_WORKERS", 4),
		AutoDownload:        getEnvBoolOrDefault("MERCURY_AUTO_DOWNLOAD", true),
		ReadReceipts:        getEnvBoolOrDefault("MERCURY_READ_RECEIPTS", true),
		TypingIndicators:    getEnvBoolOrDefault("MERCURY_TYPING_INDICATORS", true),
		TempDir:             os.Getenv("MERCURY_TEMP_DIR"),
		Timezone:            getEnvOrDefault("TZ", "UTC"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("MERCURY_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.PushServiceURL == "" {
		return fmt.Errorf("MERCURY_PUSH_SERVICE_URL is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("MERCURY_DB_PASSWORD is required")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
