package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LUTHIEN_UPSTREAM_URL", "https://api.example.com")
	t.Setenv("LUTHIEN_UPSTREAM_API_KEY", "sk-test")
	t.Setenv("LUTHIEN_ADMIN_TOKEN", "admin-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg := Load()

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "openai", cfg.UpstreamFormat)
	assert.Equal(t, int64(defaultMaxRequestBodyBytes), cfg.MaxRequestBodyBytes)
	assert.Equal(t, defaultCredentialValidTTL, cfg.CredentialValidTTL)
	assert.Equal(t, defaultCredentialInvalidTTL, cfg.CredentialInvalidTTL)
	assert.Equal(t, defaultJudgeRatePerSecond, cfg.JudgeRatePerSecond)
	assert.Equal(t, defaultJudgeBurst, cfg.JudgeBurst)
	assert.Empty(t, cfg.EventStoreURL)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LUTHIEN_ADDR", ":9090")
	t.Setenv("LUTHIEN_UPSTREAM_FORMAT", "anthropic")
	t.Setenv("LUTHIEN_MAX_REQUEST_BODY_BYTES", "4096")
	t.Setenv("LUTHIEN_CREDENTIAL_VALID_TTL", "60")
	t.Setenv("LUTHIEN_JUDGE_RATE_PER_SECOND", "2.5")
	t.Setenv("LUTHIEN_JUDGE_BURST", "3")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "anthropic", cfg.UpstreamFormat)
	assert.Equal(t, int64(4096), cfg.MaxRequestBodyBytes)
	assert.Equal(t, 60*time.Second, cfg.CredentialValidTTL)
	assert.Equal(t, 2.5, cfg.JudgeRatePerSecond)
	assert.Equal(t, 3, cfg.JudgeBurst)
	assert.Equal(t, "http://collector:4318", cfg.OTLPEndpoint)
}

func TestConfig_String_RedactsCredentials(t *testing.T) {
	setRequiredEnv(t)
	cfg := Load()

	s := cfg.String()

	assert.Contains(t, s, cfg.UpstreamURL)
	assert.NotContains(t, s, cfg.UpstreamAPIKey)
	assert.NotContains(t, s, cfg.AdminToken)
}

func TestGetenvInt64Default_UsesDefaultWhenUnset(t *testing.T) {
	require.Equal(t, int64(42), getenvInt64Default("LUTHIEN_TEST_UNSET_INT", 42))
}

func TestGetenvDurationDefault_ParsesWholeSeconds(t *testing.T) {
	t.Setenv("LUTHIEN_TEST_DURATION", "90")
	require.Equal(t, 90*time.Second, getenvDurationDefault("LUTHIEN_TEST_DURATION", time.Minute))
}

func TestGetenvFloatDefault_UsesDefaultWhenUnset(t *testing.T) {
	require.Equal(t, 1.5, getenvFloatDefault("LUTHIEN_TEST_UNSET_FLOAT", 1.5))
}
