package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for onboard-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (connection strings with credentials) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// ProductName and EnvIdentifier name the product and deployment;
	// API key names are derived from them.
	ProductName   string `yaml:"product_name" env:"PRODUCT_NAME" env-default:"onboard-engine"`
	EnvIdentifier string `yaml:"env_identifier" env:"ENV_IDENTIFIER" env-default:"dev"`

	// GeneralMessage is appended to client-facing 5xx errors together with
	// the reference id for support escalation.
	GeneralMessage string `yaml:"general_message" env:"GENERAL_MESSAGE" env-default:"An internal error occurred. Please contact support."`

	// Document store configuration (MongoDB/DocumentDB)
	Mongo MongoConfig `yaml:"mongo"`

	// Kafka producer configuration
	Kafka KafkaConfig `yaml:"kafka"`

	// AWS client configuration
	AWS AWSConfig `yaml:"aws"`

	// Connectivity verification configuration
	Filestore FilestoreConfig `yaml:"filestore"`
	Datastore DatastoreConfig `yaml:"datastore"`

	// Background completion worker settings
	Completion CompletionConfig `yaml:"completion"`

	// Supported datasource kinds and file types (allow-lists)
	SupportedSources SupportedSourcesConfig `yaml:"supported_sources"`
	SupportedFiles   SupportedFilesConfig   `yaml:"supported_files"`

	// Onboarding status values written to the application document
	OnboardInProgressStatus string `yaml:"onboard_inprogress_status" env:"ONBOARD_INPROGRESS_STATUS" env-default:"in_progress"`
	OnboardCompleteStatus   string `yaml:"onboard_complete_status" env:"ONBOARD_COMPLETE_STATUS" env-default:"complete"`

	// SQSKeyValue is carried on the application document for downstream
	// ingestion consumers.
	SQSKeyValue string `yaml:"sqs_key_value" env:"SQS_KEY_VALUE" env-default:""`
}

// MongoConfig holds document store configuration.
type MongoConfig struct {
	URI               string `yaml:"-" env:"MONGO_URI" env-default:"mongodb://localhost:27017"` // Secret - may embed credentials
	Database          string `yaml:"database" env:"MONGO_DATABASE" env-default:"onboard_engine"`
	AppCollection     string `yaml:"app_collection" env:"MONGO_APP_COLLECTION" env-default:"apps"`
	RefCollection     string `yaml:"ref_collection" env:"MONGO_REF_COLLECTION" env-default:"reference_ids"`
	AttemptCollection string `yaml:"attempt_collection" env:"MONGO_ATTEMPT_COLLECTION" env-default:"onboarding_attempts"`
	TaskCollection    string `yaml:"task_collection" env:"MONGO_TASK_COLLECTION" env-default:"completion_tasks"`
	TimeoutSeconds    int    `yaml:"timeout_seconds" env:"MONGO_TIMEOUT_SECONDS" env-default:"10"`
}

// KafkaConfig holds message bus producer settings.
type KafkaConfig struct {
	BrokersStr      string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	OnboardingTopic string `yaml:"onboarding_topic" env:"KAFKA_ONBOARDING_TOPIC" env-default:"app-onboarding"`
	TrailingMessage string `yaml:"trailing_message" env:"KAFKA_TRAILING_MESSAGE" env-default:""`

	// Brokers is parsed from BrokersStr (not from config file).
	Brokers []string `yaml:"-"`
}

// AWSConfig holds shared AWS client settings.
type AWSConfig struct {
	Region           string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	UsagePlanID      string `yaml:"usage_plan_id" env:"AWS_USAGE_PLAN_ID" env-default:""`
	UsagePlanKeyType string `yaml:"usage_plan_key_type" env:"AWS_USAGE_PLAN_KEY_TYPE" env-default:"API_KEY"`
}

// FilestoreConfig holds object-store probing settings.
type FilestoreConfig struct {
	// MaxConcurrentRequests caps in-flight object-store probes per kind.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests" env:"FILESTORE_MAX_CONCURRENT_REQUESTS" env-default:"8"`
}

// DatastoreConfig holds database probing settings.
type DatastoreConfig struct {
	// MaxConcurrentRequests caps in-flight database probes per kind.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests" env:"DATASTORE_MAX_CONCURRENT_REQUESTS" env-default:"4"`
	// ConnectionTimeoutSeconds bounds each database connection attempt.
	ConnectionTimeoutSeconds int `yaml:"connection_timeout_seconds" env:"DATASTORE_CONNECTION_TIMEOUT_SECONDS" env-default:"10"`
}

// CompletionConfig controls retries of the background completion phase.
type CompletionConfig struct {
	MaxRetries            int     `yaml:"max_retries" env:"COMPLETION_MAX_RETRIES" env-default:"5"`
	InitialBackoffSeconds int     `yaml:"initial_backoff_seconds" env:"COMPLETION_INITIAL_BACKOFF_SECONDS" env-default:"2"`
	MaxBackoffSeconds     int     `yaml:"max_backoff_seconds" env:"COMPLETION_MAX_BACKOFF_SECONDS" env-default:"30"`
	BackoffFactor         float64 `yaml:"backoff_factor" env:"COMPLETION_BACKOFF_FACTOR" env-default:"2.0"`
}

// SupportedSourcesConfig is the allow-list of datasource kinds, split by
// backend family. Declared kinds outside these lists are rejected before
// any probing begins.
type SupportedSourcesConfig struct {
	FilestoreStr string `yaml:"filestore" env:"SUPPORTED_FILESTORE_SOURCES" env-default:"s3"`
	DatastoreStr string `yaml:"datastore" env:"SUPPORTED_DATASTORE_SOURCES" env-default:"rds_mysql,rds_postgres,mssql,opensearch"`

	// Parsed from the comma-separated fields above (not from config file).
	Filestore []string `yaml:"-"`
	Datastore []string `yaml:"-"`
}

// All returns the combined filestore+datastore kind allow-list.
func (c *SupportedSourcesConfig) All() []string {
	out := make([]string, 0, len(c.Filestore)+len(c.Datastore))
	out = append(out, c.Filestore...)
	out = append(out, c.Datastore...)
	return out
}

// SupportedFilesConfig is the allow-list of object-store file extensions.
type SupportedFilesConfig struct {
	ImageStr string `yaml:"image" env:"SUPPORTED_IMAGE_TYPES" env-default:"png,jpg,jpeg"`
	TextStr  string `yaml:"text" env:"SUPPORTED_TEXT_TYPES" env-default:"pdf,txt,csv,docx,html"`

	Image []string `yaml:"-"`
	Text  []string `yaml:"-"`
}

// Extensions returns the combined image+text extension allow-list.
func (c *SupportedFilesConfig) Extensions() []string {
	out := make([]string, 0, len(c.Image)+len(c.Text))
	out = append(out, c.Image...)
	out = append(out, c.Text...)
	return out
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.parseComplexFields()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Kafka.Brokers = splitCSV(c.Kafka.BrokersStr)
	c.SupportedSources.Filestore = splitCSV(c.SupportedSources.FilestoreStr)
	c.SupportedSources.Datastore = splitCSV(c.SupportedSources.DatastoreStr)
	c.SupportedFiles.Image = splitCSV(c.SupportedFiles.ImageStr)
	c.SupportedFiles.Text = splitCSV(c.SupportedFiles.TextStr)
}

func (c *Config) validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one Kafka broker is required")
	}
	if c.Filestore.MaxConcurrentRequests < 1 {
		return fmt.Errorf("filestore max_concurrent_requests must be at least 1")
	}
	if c.Datastore.MaxConcurrentRequests < 1 {
		return fmt.Errorf("datastore max_concurrent_requests must be at least 1")
	}
	if c.Completion.MaxRetries < 0 {
		return fmt.Errorf("completion max_retries must not be negative")
	}
	if c.Completion.BackoffFactor < 1 {
		return fmt.Errorf("completion backoff_factor must be at least 1")
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
