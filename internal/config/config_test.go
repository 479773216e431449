package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3030, cfg.Port)
	assert.Equal(t, "email", cfg.IdentityField)
	assert.Equal(t, DefaultSecret, cfg.ServerSecret)
	assert.Equal(t, ":memory:", cfg.DatabasePath)
	assert.Equal(t, "hmac", cfg.PasswordHash)
	assert.Zero(t, cfg.SessionTTL)
	assert.False(t, cfg.Throttle)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("THROTTLE", "true")
	t.Setenv("PASSWORD_HASH", "bcrypt")
	t.Setenv("IDENTITY_FIELD", "username")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.Throttle)
	assert.Equal(t, "bcrypt", cfg.PasswordHash)
	assert.Equal(t, "username", cfg.IdentityField)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"PORT":          "abc",
		"SESSION_TTL":   "soon",
		"THROTTLE":      "maybe",
		"PASSWORD_HASH": "md5",
		"LOG_LEVEL":     "loud",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}

	cfg, err := Load()
	require.NoError(t, err)
	cfg.Port = 0
	assert.Error(t, cfg.Validate())
}
