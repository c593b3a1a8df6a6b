package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadConfigJson(t *testing.T) {
	path := writeConfig(t, `{
		"http_port": 8080,
		"db_conn_string": "host=localhost user=app dbname=app",
		"redis_addr": "localhost:6379",
		"webhook_url": "http://localhost:3000/webhook",
		"webhook_token": "secret",
		"media_dir": "/var/lib/gateway/media",
		"session_dir": "/var/lib/gateway/session",
		"gateway_id": "gw-1",
		"publish_max_retry": 5,
		"reconnect_delay": "10s",
		"init_retry_delay": "1m"
	}`)

	cfg, err := ReadConfigJson(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HttpPort)
	assert.Equal(t, "gw-1", cfg.GatewayID)
	assert.Equal(t, 5, cfg.PublishMaxRetry)
	assert.Equal(t, 10*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, time.Minute, cfg.InitRetryDelay)
}

func TestReadConfigJsonDefaults(t *testing.T) {
	path := writeConfig(t, `{"http_port": 8080}`)

	cfg, err := ReadConfigJson(path)
	require.NoError(t, err)

	assert.Equal(t, "whatsapp-gateway", cfg.GatewayID)
	assert.Equal(t, "./media", cfg.MediaDir)
	assert.Equal(t, "./session", cfg.SessionDir)
	assert.Equal(t, 3, cfg.PublishMaxRetry)
	assert.Zero(t, cfg.ReconnectDelay)
}

func TestReadConfigJsonRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `{"reconnect_delay": "soon"}`)

	_, err := ReadConfigJson(path)
	assert.Error(t, err)
}

func TestReadConfigJsonMissingFile(t *testing.T) {
	_, err := ReadConfigJson(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
