package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"verax/internal/extract"
	"verax/internal/invoice"
	"verax/internal/logger"
	"verax/internal/ocr"
	"verax/internal/sheets"
	"verax/internal/storage"
	"verax/internal/store"
	"verax/pkg/models"
)

// Receipt storage backends.
const (
	StorageFirebase = "firebase"
	StorageS3       = "s3"
)

type Config struct {
	// Firebase / Google Cloud
	FirebaseProjectID     string
	FirebaseStorageBucket string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Receipt and liquidation storage
	ReceiptStorage    string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string

	// PDF extraction
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string
	GoogleCloudLocation        string
	OpenAIAPIKey               string
	OpenAIModel                string

	// Google Sheets export
	GoogleSheetURL string

	// HTTP API
	HTTPAddr string

	// Business rules
	CashoutMinDays         int
	ScheduledPaymentOffset time.Duration
	DefaultInsurerDays     int
	DefaultToleranceDays   int
	Timezone               string
	Location               *time.Location

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	var errs []string
	intEnv := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	config := &Config{
		FirebaseProjectID:          getEnv("FIREBASE_PROJECT_ID", getEnv("GOOGLE_CLOUD_PROJECT", "")),
		FirebaseStorageBucket:      getEnv("FIREBASE_STORAGE_BUCKET", ""),
		GoogleCredentialsFile:      getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GoogleCredentialsJSON:      getEnv("GOOGLE_CREDENTIALS", ""),
		ReceiptStorage:             strings.ToLower(getEnv("RECEIPT_STORAGE", StorageFirebase)),
		S3Bucket:                   getEnv("S3_BUCKET", ""),
		S3Region:                   getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:                 getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:              getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:          getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3PublicBaseURL:            getEnv("S3_PUBLIC_BASE_URL", ""),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		OpenAIAPIKey:               getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:                getEnv("OPENAI_MODEL", ""),
		GoogleSheetURL:             getEnv("GOOGLE_SHEET_URL", ""),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		CashoutMinDays:             intEnv("CASHOUT_MIN_DAYS", invoice.MinCashoutAgeDays),
		DefaultInsurerDays:         intEnv("DEFAULT_INSURER_DAYS", invoice.DefaultTerm.Days),
		DefaultToleranceDays:       intEnv("DEFAULT_INSURER_TOLERANCE_DAYS", invoice.DefaultTerm.ToleranceDays),
		Timezone:                   getEnv("TIMEZONE", "America/Argentina/Buenos_Aires"),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stdout"),
	}

	offset, err := time.ParseDuration(getEnv("SCHEDULED_PAYMENT_OFFSET", "48h"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("SCHEDULED_PAYMENT_OFFSET: %v", err))
	}
	config.ScheduledPaymentOffset = offset

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		errs = append(errs, fmt.Sprintf("TIMEZONE: %v", err))
		loc = time.UTC
	}
	config.Location = loc

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.ReceiptStorage != StorageFirebase && c.ReceiptStorage != StorageS3 {
		return fmt.Errorf("RECEIPT_STORAGE must be %q or %q, got %q", StorageFirebase, StorageS3, c.ReceiptStorage)
	}
	if c.CashoutMinDays < 0 {
		return fmt.Errorf("CASHOUT_MIN_DAYS must not be negative")
	}
	if c.ScheduledPaymentOffset < 0 {
		return fmt.Errorf("SCHEDULED_PAYMENT_OFFSET must not be negative")
	}
	if c.DefaultInsurerDays < 0 || c.DefaultToleranceDays < 0 {
		return fmt.Errorf("DEFAULT_INSURER_DAYS and DEFAULT_INSURER_TOLERANCE_DAYS must not be negative")
	}
	return nil
}

// RequireFirebase checks what every command touching the document store needs.
func (c *Config) RequireFirebase() error {
	if c.FirebaseProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID is required")
	}
	return nil
}

// RequireReceiptStorage checks the settings of the selected receipt backend.
func (c *Config) RequireReceiptStorage() error {
	switch c.ReceiptStorage {
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when RECEIPT_STORAGE=s3")
		}
	default:
		if c.FirebaseStorageBucket == "" {
			return fmt.Errorf("FIREBASE_STORAGE_BUCKET is required when RECEIPT_STORAGE=firebase")
		}
	}
	return nil
}

// RequireDocumentAI checks the extraction settings.
func (c *Config) RequireDocumentAI() error {
	if c.FirebaseProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID (or GOOGLE_CLOUD_PROJECT) is required")
	}
	if c.DocumentAIProcessorID == "" {
		return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required")
	}
	return nil
}

// RequireSheets checks the export settings.
func (c *Config) RequireSheets() error {
	if c.GoogleSheetURL == "" {
		return fmt.Errorf("GOOGLE_SHEET_URL is required")
	}
	if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" {
		return fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS is required")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func (c *Config) FirebaseConfig() store.FirebaseConfig {
	return store.FirebaseConfig{
		ProjectID:       c.FirebaseProjectID,
		StorageBucket:   c.FirebaseStorageBucket,
		CredentialsFile: c.GoogleCredentialsFile,
		CredentialsJSON: c.GoogleCredentialsJSON,
	}
}

func (c *Config) S3Config() storage.S3Config {
	return storage.S3Config{
		Bucket:          c.S3Bucket,
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
		PublicBaseURL:   c.S3PublicBaseURL,
	}
}

func (c *Config) DocumentAIConfig() extract.DocumentAIConfig {
	return extract.DocumentAIConfig{
		ProjectID:        c.FirebaseProjectID,
		Location:         c.GoogleCloudLocation,
		ProcessorID:      c.DocumentAIProcessorID,
		ProcessorVersion: c.DocumentAIProcessorVersion,
		Credentials:      c.OCRCredentials(),
	}
}

func (c *Config) OCRCredentials() ocr.Credentials {
	return ocr.Credentials{File: c.GoogleCredentialsFile, JSON: c.GoogleCredentialsJSON}
}

func (c *Config) SheetsCredentials() sheets.Credentials {
	return sheets.Credentials{File: c.GoogleCredentialsFile, JSON: c.GoogleCredentialsJSON}
}

// DefaultInsurerTerm applies to insurers without a configured term.
func (c *Config) DefaultInsurerTerm() models.InsurerTerm {
	return models.InsurerTerm{Days: c.DefaultInsurerDays, ToleranceDays: c.DefaultToleranceDays}
}

// Now returns the current time in the configured business timezone.
func (c *Config) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}
