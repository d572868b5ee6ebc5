package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8086", cfg.Port)
	assert.Equal(t, uint64(6), cfg.ReconnectMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.JoinAckTimeout)
	assert.Equal(t, "casechat.events", cfg.AMQPExchange)
	assert.Equal(t, "development", cfg.Environment)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("WS_URL", "ws://push.internal/ws")
	t.Setenv("VIEWER_ID", "11111111-1111-1111-1111-111111111111")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("JOIN_ACK_TIMEOUT", "250ms")

	cfg := Load()

	assert.Equal(t, "ws://push.internal/ws", cfg.PushURL)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", cfg.ViewerID)
	assert.Equal(t, uint64(3), cfg.ReconnectMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.JoinAckTimeout)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "many")
	t.Setenv("JOIN_ACK_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, uint64(6), cfg.ReconnectMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.JoinAckTimeout)
}
