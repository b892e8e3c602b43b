package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingConfig is wrapped by Require when a setting is absent.
var ErrMissingConfig = errors.New("missing configuration")

// Config holds all configuration for the service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Supabase    SupabaseConfig    `yaml:"supabase"`
	Redis       RedisConfig       `yaml:"redis"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	LLM         LLMConfig         `yaml:"llm"`
	Bedrock     BedrockConfig     `yaml:"bedrock"`
	Matching    MatchingConfig    `yaml:"matching"`
	Sheets      SheetsConfig      `yaml:"sheets"`
	PodcastData PodcastDataConfig `yaml:"podcast_data"`
	Email       EmailConfig       `yaml:"email"`
	Storage     StorageConfig     `yaml:"storage"`
	Feeds       FeedsConfig       `yaml:"feeds"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// InvocationTimeoutSeconds bounds one function call end to end.
	InvocationTimeoutSeconds int `yaml:"invocation_timeout_seconds"`
}

// GetHost returns the server host, listening on all interfaces in containers.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// InvocationTimeout returns the per-invocation wall-clock budget.
func (c ServerConfig) InvocationTimeout() time.Duration {
	return time.Duration(c.InvocationTimeoutSeconds) * time.Second
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// DatabaseConfig is the direct Postgres connection.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// SupabaseConfig is the BaaS REST endpoint, used when no direct DB URL is set.
type SupabaseConfig struct {
	URL            string `yaml:"url"`
	ServiceRoleKey string `yaml:"service_role_key"`
}

// RedisConfig enables the spreadsheet column cache and append locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// OpenAIConfig holds the hosted embedding/completion API settings.
type OpenAIConfig struct {
	APIKey                string `yaml:"api_key"`
	BaseURL               string `yaml:"base_url"`
	EmbeddingModel        string `yaml:"embedding_model"`
	EmbeddingDimensions   int    `yaml:"embedding_dimensions"`
	ChatModel             string `yaml:"chat_model"`
	EmbeddingTimeoutSecs  int    `yaml:"embedding_timeout_seconds"`
	CompletionTimeoutSecs int    `yaml:"completion_timeout_seconds"`
}

// EmbeddingTimeout returns the per-call embedding timeout.
func (c OpenAIConfig) EmbeddingTimeout() time.Duration {
	return time.Duration(c.EmbeddingTimeoutSecs) * time.Second
}

// CompletionTimeout returns the per-call chat completion timeout.
func (c OpenAIConfig) CompletionTimeout() time.Duration {
	return time.Duration(c.CompletionTimeoutSecs) * time.Second
}

// LLMConfig selects the chat provider used for filtering, scoring and pitches.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "bedrock"
}

// BedrockConfig holds AWS Bedrock settings.
type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

// MatchingConfig holds the fixed pipeline constants.
type MatchingConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MatchCount          int     `yaml:"match_count"`
	TargetSize          int     `yaml:"target_size"`
	MaxLLMCandidates    int     `yaml:"max_llm_candidates"`
	DescriptionChars    int     `yaml:"description_chars"`
	ScoringConcurrency  int     `yaml:"scoring_concurrency"`
	StaleAfterDays      int     `yaml:"stale_after_days"`
}

// StaleAfter returns the advisory cache staleness window.
func (c MatchingConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterDays) * 24 * time.Hour
}

// SheetsConfig holds Google Sheets service-account settings.
type SheetsConfig struct {
	ServiceAccountJSON string `yaml:"service_account_json"`
	ServiceAccountFile string `yaml:"service_account_file"`
	ImpersonateSubject string `yaml:"impersonate_subject"`
	BaseURL            string `yaml:"base_url"`
	TabName            string `yaml:"tab_name"`
	IdentifierColumn   string `yaml:"identifier_column"`
	ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
	ColumnCacheMinutes int    `yaml:"column_cache_minutes"`
	LockAppends        bool   `yaml:"lock_appends"`
	LockWaitSeconds    int    `yaml:"lock_wait_seconds"`
	// ReadMode is where the identifier column is read from:
	// cached (default), cache_only or fresh.
	ReadMode string `yaml:"read_mode"`
}

// ReadTimeout returns the identifier-column read timeout.
func (c SheetsConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// ColumnCacheTTL returns how long a cached identifier column is trusted.
func (c SheetsConfig) ColumnCacheTTL() time.Duration {
	return time.Duration(c.ColumnCacheMinutes) * time.Minute
}

// Credentials returns the service-account JSON, reading the file when only
// a path is configured.
func (c SheetsConfig) Credentials() ([]byte, error) {
	if c.ServiceAccountJSON != "" {
		return []byte(c.ServiceAccountJSON), nil
	}
	if c.ServiceAccountFile != "" {
		return os.ReadFile(c.ServiceAccountFile)
	}
	return nil, fmt.Errorf("%w: sheets.service_account_json", ErrMissingConfig)
}

// PodcastDataConfig holds the podcast metadata provider settings.
type PodcastDataConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c PodcastDataConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EmailConfig holds outbound SES and inbound webhook settings.
type EmailConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Region        string `yaml:"region"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	FromAddress   string `yaml:"from_address"`
	FromName      string `yaml:"from_name"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// StorageConfig controls where backfill run reports are archived.
type StorageConfig struct {
	Type          string `yaml:"type"` // "local" or "aws"
	LocalPath     string `yaml:"local_path"`
	S3Bucket      string `yaml:"s3_bucket"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"`
	RetentionDays int    `yaml:"retention_days"`
}

// GetAWSProfile returns the AWS profile, empty on ECS/Lambda so the
// default credential chain (IAM role) is used.
func (c StorageConfig) GetAWSProfile() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// FeedsConfig controls the RSS refresh job.
type FeedsConfig struct {
	BatchSize         int `yaml:"batch_size"`
	BatchPauseMillis  int `yaml:"batch_pause_millis"`
	RefreshAfterHours int `yaml:"refresh_after_hours"`
	MaxAttempts       int `yaml:"max_attempts"`
}

// BatchPause returns the pause between refresh batches.
func (c FeedsConfig) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMillis) * time.Millisecond
}

// RefreshAfter returns how old feed stats must be before a refresh.
func (c FeedsConfig) RefreshAfter() time.Duration {
	return time.Duration(c.RefreshAfterHours) * time.Hour
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file. A missing file yields the
// defaults so env-only deployments work.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.InvocationTimeoutSeconds == 0 {
		cfg.Server.InvocationTimeoutSeconds = 55
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 3
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.EmbeddingDimensions == 0 {
		cfg.OpenAI.EmbeddingDimensions = 1536
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.EmbeddingTimeoutSecs == 0 {
		cfg.OpenAI.EmbeddingTimeoutSecs = 20
	}
	if cfg.OpenAI.CompletionTimeoutSecs == 0 {
		cfg.OpenAI.CompletionTimeoutSecs = 30
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Matching.SimilarityThreshold == 0 {
		cfg.Matching.SimilarityThreshold = 0.5
	}
	if cfg.Matching.MatchCount == 0 {
		cfg.Matching.MatchCount = 50
	}
	if cfg.Matching.TargetSize == 0 {
		cfg.Matching.TargetSize = 15
	}
	if cfg.Matching.MaxLLMCandidates == 0 {
		cfg.Matching.MaxLLMCandidates = 30
	}
	if cfg.Matching.DescriptionChars == 0 {
		cfg.Matching.DescriptionChars = 300
	}
	if cfg.Matching.ScoringConcurrency == 0 {
		cfg.Matching.ScoringConcurrency = 5
	}
	if cfg.Matching.StaleAfterDays == 0 {
		cfg.Matching.StaleAfterDays = 7
	}
	if cfg.Sheets.BaseURL == "" {
		cfg.Sheets.BaseURL = "https://sheets.googleapis.com"
	}
	if cfg.Sheets.TabName == "" {
		cfg.Sheets.TabName = "Podcasts"
	}
	if cfg.Sheets.IdentifierColumn == "" {
		cfg.Sheets.IdentifierColumn = "A"
	}
	if cfg.Sheets.ReadTimeoutSeconds == 0 {
		cfg.Sheets.ReadTimeoutSeconds = 15
	}
	if cfg.Sheets.ColumnCacheMinutes == 0 {
		cfg.Sheets.ColumnCacheMinutes = 10
	}
	if cfg.Sheets.LockWaitSeconds == 0 {
		cfg.Sheets.LockWaitSeconds = 10
	}
	if cfg.Sheets.ReadMode == "" {
		cfg.Sheets.ReadMode = "cached"
	}
	if cfg.PodcastData.TimeoutSeconds == 0 {
		cfg.PodcastData.TimeoutSeconds = 15
	}
	if cfg.Email.Region == "" {
		cfg.Email.Region = "us-east-1"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data/runs"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Storage.RetentionDays == 0 {
		cfg.Storage.RetentionDays = 90
	}
	if cfg.Feeds.BatchSize == 0 {
		cfg.Feeds.BatchSize = 25
	}
	if cfg.Feeds.BatchPauseMillis == 0 {
		cfg.Feeds.BatchPauseMillis = 2000
	}
	if cfg.Feeds.RefreshAfterHours == 0 {
		cfg.Feeds.RefreshAfterHours = 24 * 7
	}
	if cfg.Feeds.MaxAttempts == 0 {
		cfg.Feeds.MaxAttempts = 3
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file in the working directory is read first if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (cfg *Config) applyEnv(getenv func(string) string) {
	str := func(dst *string, name string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	str(&cfg.Database.URL, "DATABASE_URL")
	str(&cfg.Supabase.URL, "SUPABASE_URL")
	str(&cfg.Supabase.ServiceRoleKey, "SUPABASE_SERVICE_ROLE_KEY")
	str(&cfg.Redis.URL, "REDIS_URL")
	str(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	str(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	str(&cfg.LLM.Provider, "LLM_PROVIDER")
	str(&cfg.Bedrock.Region, "AWS_REGION")
	str(&cfg.Bedrock.ModelID, "BEDROCK_MODEL_ID")
	str(&cfg.Sheets.ServiceAccountJSON, "GOOGLE_SERVICE_ACCOUNT_JSON")
	str(&cfg.Sheets.ServiceAccountFile, "GOOGLE_SERVICE_ACCOUNT_FILE")
	str(&cfg.Sheets.ImpersonateSubject, "GOOGLE_IMPERSONATE_SUBJECT")
	str(&cfg.Sheets.ReadMode, "SHEETS_READ_MODE")
	str(&cfg.PodcastData.BaseURL, "PODCAST_API_BASE_URL")
	str(&cfg.PodcastData.APIKey, "PODCAST_API_KEY")
	str(&cfg.Email.AccessKey, "AWS_SES_ACCESS_KEY")
	str(&cfg.Email.SecretKey, "AWS_SES_SECRET_KEY")
	str(&cfg.Email.Region, "AWS_SES_REGION")
	str(&cfg.Email.FromAddress, "EMAIL_FROM_ADDRESS")
	str(&cfg.Email.WebhookSecret, "EMAIL_WEBHOOK_SECRET")
	str(&cfg.Storage.S3Bucket, "RUN_ARCHIVE_S3_BUCKET")
	str(&cfg.Storage.DynamoDBTable, "RUN_ARCHIVE_DYNAMODB_TABLE")
	str(&cfg.Log.Level, "LOG_LEVEL")

	if v := getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := getenv("EMAIL_ENABLED"); v != "" {
		cfg.Email.Enabled = v == "true" || v == "1"
	}
	if cfg.Storage.S3Bucket != "" && cfg.Storage.Type == "local" && getenv("RUN_ARCHIVE_LOCAL") == "" {
		cfg.Storage.Type = "aws"
	}
}

// Require returns an error wrapping ErrMissingConfig that names every
// empty setting among names. Known names: database, openai, sheets,
// podcast_data, email.
func (cfg *Config) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		switch n {
		case "database":
			if cfg.Database.URL == "" && (cfg.Supabase.URL == "" || cfg.Supabase.ServiceRoleKey == "") {
				missing = append(missing, "DATABASE_URL or SUPABASE_URL+SUPABASE_SERVICE_ROLE_KEY")
			}
		case "openai":
			if cfg.OpenAI.APIKey == "" {
				missing = append(missing, "OPENAI_API_KEY")
			}
		case "sheets":
			if cfg.Sheets.ServiceAccountJSON == "" && cfg.Sheets.ServiceAccountFile == "" {
				missing = append(missing, "GOOGLE_SERVICE_ACCOUNT_JSON")
			}
		case "podcast_data":
			if cfg.PodcastData.BaseURL == "" || cfg.PodcastData.APIKey == "" {
				missing = append(missing, "PODCAST_API_BASE_URL+PODCAST_API_KEY")
			}
		case "email":
			if !cfg.Email.Enabled || cfg.Email.FromAddress == "" {
				missing = append(missing, "EMAIL_ENABLED+EMAIL_FROM_ADDRESS")
			}
		default:
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}
