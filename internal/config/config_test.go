package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Backend.RequestTimeout)
	assert.Zero(t, cfg.Backend.StreamTimeout)
	assert.Equal(t, 4096, cfg.Backend.ReadBuffer)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 25*time.Millisecond, cfg.Server.TokenDelay)
	assert.Equal(t, "0.0.0.0:8000", cfg.Address())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEXRAG_BACKEND_BASE_URL", "https://rag.example.com")
	t.Setenv("LEXRAG_BACKEND_STREAM_TIMEOUT", "90s")
	t.Setenv("LEXRAG_SERVER_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://rag.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Backend.StreamTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexrag.yaml")
	content := `
backend:
  base_url: http://10.0.0.5:9000
  api_key: secret
log:
  level: debug
server:
  port: 9100
  allowed_origins:
    - http://localhost:8080
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:9000", cfg.Backend.BaseURL)
	assert.Equal(t, "secret", cfg.Backend.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidBaseURL(t *testing.T) {
	t.Setenv("LEXRAG_BACKEND_BASE_URL", "localhost")

	_, err := Load("")
	assert.ErrorContains(t, err, "backend.base_url")
}

func TestValidate_Port(t *testing.T) {
	cfg := &Config{
		Backend: BackendConfig{BaseURL: "http://localhost:8000", ReadBuffer: 1},
		Server:  ServerConfig{Port: 70000},
	}
	assert.ErrorContains(t, cfg.Validate(), "server.port")
}
