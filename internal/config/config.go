package config

import "time"

// Config holds all worker configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Worker    WorkerConfig    `mapstructure:"worker" validate:"required"`
	Intake    IntakeConfig    `mapstructure:"intake" validate:"required"`
	Broker    BrokerConfig    `mapstructure:"broker" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Blob      BlobConfig      `mapstructure:"blob" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Chunking  ChunkingConfig  `mapstructure:"chunking" validate:"required"`
	Embedding EmbeddingConfig `mapstructure:"embedding" validate:"required"`
	Speech    SpeechConfig    `mapstructure:"speech" validate:"required"`
}

// WorkerConfig contains settings for the consumer loop and the process itself.
type WorkerConfig struct {
	LogLevel     string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	Prefetch     int           `mapstructure:"prefetch" validate:"required,gte=1,lte=64"`
	RetryCount   int           `mapstructure:"retry_count" validate:"required,gte=1"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" validate:"required,gt=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required,gt=0"`
	// ShutdownTimeout bounds how long in-flight tasks may run after a stop signal.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
	// HealthPort is the port of the liveness/readiness listener. Zero disables it.
	HealthPort int `mapstructure:"health_port" validate:"gte=0,lt=65536"`
}

// IntakeConfig contains settings for the HTTP intake process.
type IntakeConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout bounds reading a whole request, uploads included.
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"required,gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// BrokerConfig contains the message broker connection and queue names.
type BrokerConfig struct {
	URL           string `mapstructure:"url" validate:"required,url"`
	DocumentQueue string `mapstructure:"document_queue" validate:"required"`
	SpeechQueue   string `mapstructure:"speech_queue" validate:"required,nefield=DocumentQueue"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	// AutoMigrate applies the embedded schema migrations at startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// BlobConfig contains the S3-compatible object storage settings.
type BlobConfig struct {
	Endpoint  string `mapstructure:"endpoint" validate:"required"`
	AccessKey string `mapstructure:"access_key" validate:"required"`
	SecretKey string `mapstructure:"secret_key" validate:"required"`
	Bucket    string `mapstructure:"bucket" validate:"required"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// RedisConfig configures the optional progress tracker. An empty URL disables it.
type RedisConfig struct {
	URL         string        `mapstructure:"url" validate:"omitempty,url"`
	ProgressTTL time.Duration `mapstructure:"progress_ttl" validate:"gte=0"`
}

// ChunkingConfig contains the chunk window sizes, measured in characters.
type ChunkingConfig struct {
	MaxChars     int    `mapstructure:"max_chars" validate:"required,gt=0"`
	OverlapChars int    `mapstructure:"overlap_chars" validate:"gte=0,ltfield=MaxChars"`
	Splitter     string `mapstructure:"splitter" validate:"required,oneof=english rules"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider" validate:"required,oneof=openai gemini"`
	Model      string `mapstructure:"model" validate:"required"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url" validate:"omitempty,url"`
	Dimensions int    `mapstructure:"dimensions" validate:"required,gt=0"`
}

// SpeechConfig configures the OpenAI-compatible speech synthesis endpoint.
type SpeechConfig struct {
	BaseURL string  `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey  string  `mapstructure:"api_key"`
	Model   string  `mapstructure:"model" validate:"required"`
	Voice   string  `mapstructure:"voice" validate:"required"`
	Format  string  `mapstructure:"format" validate:"required,oneof=mp3 opus aac flac wav pcm"`
	Speed   float64 `mapstructure:"speed" validate:"gte=0.25,lte=4"`
}
