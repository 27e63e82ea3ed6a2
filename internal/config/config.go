package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Ragflow  RagflowConfig  `mapstructure:"ragflow"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// PublicURL prefixes the status_url returned by launch. Empty yields relative URLs.
	PublicURL string `mapstructure:"public_url" validate:"omitempty,url"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// TaskConfig contains settings for the background task executor.
type TaskConfig struct {
	WorkerCount        int           `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize          int           `mapstructure:"queue_size" validate:"required,gt=0"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	StuckTaskAge       time.Duration `mapstructure:"stuck_task_age" validate:"required,gt=0"`
	StuckCheckInterval time.Duration `mapstructure:"stuck_check_interval" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
// Generation task types are unavailable when GeminiAPIKey is empty.
type LLMConfig struct {
	GeminiAPIKey   string        `mapstructure:"gemini_api_key"`
	ModelName      string        `mapstructure:"model_name" validate:"required"`
	TTSModelName   string        `mapstructure:"tts_model_name" validate:"required"`
	HostVoice      string        `mapstructure:"host_voice" validate:"required"`
	ExpertVoice    string        `mapstructure:"expert_voice" validate:"required"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	BaseRetryDelay time.Duration `mapstructure:"base_retry_delay" validate:"gte=0"`
}

// RagflowConfig configures the document ingest source.
// The ingest_sync task type is unavailable when URL is empty.
type RagflowConfig struct {
	URL        string        `mapstructure:"url" validate:"omitempty,url"`
	APIKey     string        `mapstructure:"api_key" validate:"required_with=URL"`
	PageSize   int           `mapstructure:"page_size" validate:"gt=0,lte=1000"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// StorageConfig controls where binary artifacts are written.
type StorageConfig struct {
	AudioDir string `mapstructure:"audio_dir" validate:"required"`
}
