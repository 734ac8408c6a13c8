package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoEnvSet(t *testing.T) {
	clearOrchestratorEnv(t)

	cfg := Load()

	require.Equal(t, 8080, cfg.HTTPPort)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "MOCK", cfg.GogoMode)
	require.Equal(t, 300*time.Second, cfg.LLMTimeout)
	require.Equal(t, 300, cfg.ToolCacheTTLSeconds)
	require.Equal(t, 128, cfg.ToolCacheMaxSize)
	require.Equal(t, 2.0, cfg.GuardrailMaxCostUSD)
	require.Equal(t, 0.5, cfg.GuardrailMaxErrRate)
	require.Equal(t, 4, cfg.GuardrailMinCalls)
	require.Equal(t, 4, cfg.LLMConcurrencyLimitHigh)
	require.Equal(t, 2, cfg.LLMConcurrencyLimitLow)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearOrchestratorEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("GOGO_MODE", "REAL")
	t.Setenv("TOOL_GUARDRAIL_MAX_ESTIMATED_COST_USD", "5.5")
	t.Setenv("LLM_TIMEOUT_MS", "1500")

	cfg := Load()

	require.Equal(t, 9090, cfg.HTTPPort)
	require.Equal(t, "REAL", cfg.GogoMode)
	require.Equal(t, 5.5, cfg.GuardrailMaxCostUSD)
	require.Equal(t, 1500*time.Millisecond, cfg.LLMTimeout)
}

func TestLoad_InvalidIntEnvFallsBackToDefault(t *testing.T) {
	clearOrchestratorEnv(t)
	t.Setenv("HTTP_PORT", "not-a-number")

	cfg := Load()

	require.Equal(t, 8080, cfg.HTTPPort)
}

func TestLoad_InvalidFloatEnvFallsBackToDefault(t *testing.T) {
	clearOrchestratorEnv(t)
	t.Setenv("TOOL_GUARDRAIL_MAX_ERROR_RATE", "not-a-float")

	cfg := Load()

	require.Equal(t, 0.5, cfg.GuardrailMaxErrRate)
}

func clearOrchestratorEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"HTTP_PORT", "LOG_LEVEL", "DATABASE_URL",
		"ARK_API_KEY", "ARK_BASE_URL", "MODEL_NAME", "GOGO_MODE", "LLM_TIMEOUT_MS",
		"SSE_HEARTBEAT_INTERVAL_MS", "SSE_IDLE_TIMEOUT_MS", "EVENT_BUS_BUFFER_SIZE",
		"TOOL_CACHE_TTL_SECONDS", "TOOL_CACHE_MAX_SIZE",
		"TOOL_GUARDRAIL_MAX_ESTIMATED_COST_USD", "TOOL_GUARDRAIL_MAX_ERROR_RATE",
		"TOOL_GUARDRAIL_MIN_CALLS_FOR_ERROR_RATE",
		"LLM_CONCURRENCY_LIMIT_HIGH", "LLM_CONCURRENCY_LIMIT_LOW",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
