package models

import "time"

// OnboardingRequest is the payload for onboarding or updating an application.
type OnboardingRequest struct {
	AppName                  string         `json:"app_name" bson:"app_name"`
	AppDescription           string         `json:"app_description" bson:"app_description"`
	TextEmbeddingModel       EmbeddingModel `json:"text_embedding_model" bson:"text_embedding_model"`
	MultimodalEmbeddingModel EmbeddingModel `json:"multimodal_embedding_model" bson:"multimodal_embedding_model"`
	CSVAppendSameSchema      bool           `json:"csv_append_same_schema" bson:"csv_append_same_schema"`
	AllowedModels            []LlmModel     `json:"allowed_models" bson:"allowed_models"`
	AppDataSource            AppDataSource  `json:"app_datasource" bson:"app_datasource"`
}

// EmbeddingModel identifies an embedding model and its dimensionality.
type EmbeddingModel struct {
	Dimension int    `json:"dimension" bson:"dimension"`
	ModelID   string `json:"model_id" bson:"model_id"`
	Platform  string `json:"platform" bson:"platform"`
}

// LlmModel describes a model the application is allowed to call.
type LlmModel struct {
	Name         string `json:"name" bson:"name"`
	Description  string `json:"description" bson:"description"`
	ModelID      string `json:"model_id" bson:"model_id"`
	ModelType    string `json:"model_type" bson:"model_type"`
	SecretName   string `json:"secret_name,omitempty" bson:"secret_name,omitempty"`
	SecretRegion string `json:"secret_region,omitempty" bson:"secret_region,omitempty"`
}

// AppDataSource is the full topology of an application's external data
// sources: object-store URLs keyed by kind (e.g. "s3") and databases
// keyed by kind (e.g. "rds_mysql", "opensearch").
type AppDataSource struct {
	Filestore map[string][]FileSource `json:"filestore" bson:"filestore"`
	Datastore map[string][]DbSource   `json:"datastore" bson:"datastore"`
}

// FileSource declares one object-store location. The URL may contain a
// single '*' wildcard segment meaning "any object under this prefix with
// this suffix".
type FileSource struct {
	URL   string `json:"url" bson:"url"`
	Hints []Hint `json:"hints" bson:"hints"`
}

// Hint carries descriptive context for a filestore prefix.
type Hint struct {
	Prefix       string `json:"prefix" bson:"prefix"`
	Descriptions string `json:"descriptions" bson:"descriptions"`
}

// DbSource declares one database plus the tables to verify.
type DbSource struct {
	Host           string    `json:"host" bson:"host"`
	Port           string    `json:"port" bson:"port"`
	Username       string    `json:"username,omitempty" bson:"username,omitempty"`
	SecretName     string    `json:"secret_name,omitempty" bson:"secret_name,omitempty"`
	AWSServiceName string    `json:"aws_service_name,omitempty" bson:"aws_service_name,omitempty"`
	Database       string    `json:"database" bson:"database"`
	DbType         string    `json:"db_type" bson:"db_type"`
	Descriptions   string    `json:"descriptions,omitempty" bson:"descriptions,omitempty"`
	Tables         []Table   `json:"tables" bson:"tables"`
	Region         string    `json:"region,omitempty" bson:"region,omitempty"`
	FactPhrases    []string  `json:"fact_phrases,omitempty" bson:"fact_phrases,omitempty"`
	FactWords      []string  `json:"fact_words,omitempty" bson:"fact_words,omitempty"`
	SearchKeywords []string  `json:"search_keywords,omitempty" bson:"search_keywords,omitempty"`
	Summary        string    `json:"summary,omitempty" bson:"summary,omitempty"`
}

// Table names a table (or search index) to probe, with optional schema
// metadata forwarded to downstream consumers.
type Table struct {
	Name           string      `json:"name" bson:"name"`
	Descriptions   string      `json:"descriptions" bson:"descriptions"`
	Schema         string      `json:"schema,omitempty" bson:"schema,omitempty"`
	SchemaJSON     any         `json:"schema_json,omitempty" bson:"schema_json,omitempty"`
	Columns        []Column    `json:"columns,omitempty" bson:"columns,omitempty"`
	SampleRows     *SampleRows `json:"sample_rows,omitempty" bson:"sample_rows,omitempty"`
	FactPhrases    []string    `json:"fact_phrases,omitempty" bson:"fact_phrases,omitempty"`
	FactWords      []string    `json:"fact_words,omitempty" bson:"fact_words,omitempty"`
	SearchKeywords []string    `json:"search_keywords,omitempty" bson:"search_keywords,omitempty"`
	Summary        string      `json:"summary,omitempty" bson:"summary,omitempty"`
}

// Column describes one table column.
type Column struct {
	Name         string `json:"name" bson:"name"`
	Descriptions string `json:"descriptions" bson:"descriptions"`
}

// SampleRows carries representative rows for a table.
type SampleRows struct {
	TopRows    []string `json:"top_rows" bson:"top_rows"`
	RandomRows []string `json:"random_rows" bson:"random_rows"`
	BottomRows []string `json:"bottom_rows" bson:"bottom_rows"`
}

// App is the persisted application document, keyed by AppName.
// An update replaces the whole document except identity and credentials,
// which are carried over.
type App struct {
	AppName                  string         `json:"app_name" bson:"app_name"`
	AppDescription           string         `json:"app_description" bson:"app_description"`
	TextEmbeddingModel       EmbeddingModel `json:"text_embedding_model" bson:"text_embedding_model"`
	MultimodalEmbeddingModel EmbeddingModel `json:"multimodal_embedding_model" bson:"multimodal_embedding_model"`
	CSVAppendSameSchema      bool           `json:"csv_append_same_schema" bson:"csv_append_same_schema"`
	AllowedModels            []LlmModel     `json:"allowed_models" bson:"allowed_models"`
	AppDataSource            AppDataSource  `json:"app_datasource" bson:"app_datasource"`
	AppID                    string         `json:"app_id" bson:"app_id"`
	APIKey                   string         `json:"api_key" bson:"api_key"`
	APIKeyID                 string         `json:"api_key_id" bson:"api_key_id"`
	SQSKey                   string         `json:"sqs_key" bson:"sqs_key"`
	OnboardingStatus         string         `json:"onboarding_status" bson:"onboarding_status"`
	SearchEnabled            bool           `json:"search_enabled" bson:"search_enabled"`
	MMSearchEnabled          bool           `json:"mm_search_enabled" bson:"mm_search_enabled"`
	CreatedAt                time.Time      `json:"created_at" bson:"created_at"`
}

// ReferenceRecord correlates a client-facing reference id with the
// internal task id, persisted synchronously before the background phase
// so support can trace an in-flight request.
type ReferenceRecord struct {
	AppName     string `json:"app_name" bson:"app_name"`
	ReferenceID string `json:"reference_id" bson:"reference_id"`
	TaskID      string `json:"task_id" bson:"task_id"`
}

// AttemptRecord is the audit row written for every onboarding attempt,
// accepted or not.
type AttemptRecord struct {
	AppName   string `json:"app_name" bson:"app_name"`
	CallType  string `json:"call_type" bson:"call_type"`
	Count     uint64 `json:"count" bson:"count"`
	Timestamp string `json:"timestamp" bson:"timestamp"`
}

// Completion task statuses.
const (
	TaskPending   = "pending"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// CompletionTask is the outbox record for the background phase. It is
// persisted synchronously before the client response, so a crash between
// response and completion leaves a pending record to recover from
// instead of a silently stalled application.
type CompletionTask struct {
	TaskID      string            `json:"task_id" bson:"task_id"`
	AppName     string            `json:"app_name" bson:"app_name"`
	ReferenceID string            `json:"reference_id" bson:"reference_id"`
	IsUpdate    bool              `json:"is_update" bson:"is_update"`
	Request     OnboardingRequest `json:"request" bson:"request"`
	AppID       string            `json:"app_id" bson:"app_id"`
	APIKey      string            `json:"api_key" bson:"api_key"`
	APIKeyID    string            `json:"api_key_id" bson:"api_key_id"`
	Status      string            `json:"status" bson:"status"`
	Attempts    int               `json:"attempts" bson:"attempts"`
	LastError   string            `json:"last_error,omitempty" bson:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" bson:"updated_at"`
}
