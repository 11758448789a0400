package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
database:
  host: localhost
  user: chat
  password: secret
  dbname: chatproxy
  port: "5432"
  sslmode: disable
auth:
  jwt_secret: test-secret
chat:
  base_url: https://api.example.com/v1
  api_key: sk-test
  model: gpt-4o
  temperature: 0.2
  stream: true
search:
  enabled: true
  endpoint: https://search.example.com
  api_key: search-key
server:
  port: 8080
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Chat.Model)
	assert.True(t, cfg.Chat.Stream)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t,
		"host=localhost user=chat password=secret dbname=chatproxy port=5432 sslmode=disable",
		cfg.DSN())
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, defaultSystemMessage, cfg.Chat.SystemMessage)
	assert.Equal(t, uint32(defaultMaxTokens), cfg.Chat.MaxTokens)
	assert.Equal(t, defaultMaxToolDepth, cfg.Chat.MaxToolDepth)
	assert.Equal(t, "Start chatting", cfg.Frontend.ChatTitle)
}

func TestLoadRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"chat.api_key is required":    "api_key: sk-test",
		"auth.jwt_secret is required": "jwt_secret: test-secret",
		"database.host is required":   "host: localhost",
	}
	for wantErr, line := range cases {
		body := validYAML
		body = removeLine(body, line)
		_, err := Load(writeConfig(t, body))
		require.Error(t, err)
		assert.Contains(t, err.Error(), wantErr)
	}
}

func TestLoadRequiresSearchEndpointWhenEnabled(t *testing.T) {
	body := removeLine(validYAML, "endpoint: https://search.example.com")
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.endpoint is required")
}

func removeLine(body, line string) string {
	var out []string
	for _, l := range strings.Split(body, "\n") {
		if strings.TrimSpace(l) == line {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
