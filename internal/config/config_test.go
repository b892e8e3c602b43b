package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

matching:
  similarity_threshold: 0.6
  match_count: 40
  target_size: 10

sheets:
  tab_name: "Outreach"
  identifier_column: "B"
  lock_appends: true

llm:
  provider: bedrock
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, 0.6, cfg.Matching.SimilarityThreshold)
	assert.Equal(t, 40, cfg.Matching.MatchCount)
	assert.Equal(t, 10, cfg.Matching.TargetSize)
	// untouched fields keep their defaults
	assert.Equal(t, 30, cfg.Matching.MaxLLMCandidates)
	assert.Equal(t, 7, cfg.Matching.StaleAfterDays)

	assert.Equal(t, "Outreach", cfg.Sheets.TabName)
	assert.Equal(t, "B", cfg.Sheets.IdentifierColumn)
	assert.True(t, cfg.Sheets.LockAppends)
	assert.Equal(t, "bedrock", cfg.LLM.Provider)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 55, cfg.Server.InvocationTimeoutSeconds)
	assert.Equal(t, 0.5, cfg.Matching.SimilarityThreshold)
	assert.Equal(t, 50, cfg.Matching.MatchCount)
	assert.Equal(t, 15, cfg.Matching.TargetSize)
	assert.Equal(t, 1536, cfg.OpenAI.EmbeddingDimensions)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 25, cfg.Feeds.BatchSize)
	assert.Equal(t, 3, cfg.Feeds.MaxAttempts)
	assert.Equal(t, "cached", cfg.Sheets.ReadMode)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":                "postgres://u:p@db/podmatch",
		"OPENAI_API_KEY":              "sk-test",
		"GOOGLE_SERVICE_ACCOUNT_JSON": `{"type":"service_account"}`,
		"GOOGLE_IMPERSONATE_SUBJECT":  "ops@agency.com",
		"PORT":                        "9999",
		"RUN_ARCHIVE_S3_BUCKET":       "runs",
		"EMAIL_ENABLED":               "true",
		"SHEETS_READ_MODE":            "cache_only",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "postgres://u:p@db/podmatch", cfg.Database.URL)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "ops@agency.com", cfg.Sheets.ImpersonateSubject)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "aws", cfg.Storage.Type)
	assert.True(t, cfg.Email.Enabled)
	assert.Equal(t, "cache_only", cfg.Sheets.ReadMode)

	creds, err := cfg.Sheets.Credentials()
	require.NoError(t, err)
	assert.Contains(t, string(creds), "service_account")
}

func TestRequire(t *testing.T) {
	cfg := Default()
	err := cfg.Require("database", "openai")
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "DATABASE_URL")

	cfg.OpenAI.APIKey = "sk"
	cfg.Supabase.URL = "https://x.supabase.co"
	cfg.Supabase.ServiceRoleKey = "srk"
	assert.NoError(t, cfg.Require("database", "openai"))
}
