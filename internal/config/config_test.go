package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, defaultAddress, cfg.Address)
	require.Equal(t, "gemini", cfg.AIProvider)
	require.Equal(t, defaultWorkerCount, cfg.ProcessingPool)
	require.NotEmpty(t, cfg.SigningSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CPMAI_AI_PROVIDER", "OpenAI")
	t.Setenv("CPMAI_WORKERS", "8")
	t.Setenv("CPMAI_SIGNED_TTL", "90s")
	t.Setenv("CPMAI_SIGNING_SECRET", "topsecret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.AIProvider)
	require.Equal(t, 8, cfg.ProcessingPool)
	require.Equal(t, 90*time.Second, cfg.SignedURLTTL)
	require.Equal(t, []byte("topsecret"), cfg.SigningSecret)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("CPMAI_AI_PROVIDER", "llama")
	_, err := Load()
	require.Error(t, err)
}
