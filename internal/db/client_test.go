package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_BaseURL(t *testing.T) {
	tests := map[string]string{
		"ws://localhost:8000/rpc":  "ws://localhost:8000",
		"ws://localhost:8000/rpc/": "ws://localhost:8000",
		"wss://db.example:443":     "wss://db.example:443",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Config{URL: in}.baseURL())
		})
	}
}

func TestConfig_Auth(t *testing.T) {
	cfg := Config{Namespace: "ns", Database: "db", Username: "u", Password: "p"}

	root := cfg.auth()
	assert.Equal(t, "u", root.Username)
	assert.Empty(t, root.Namespace)

	cfg.AuthLevel = AuthDatabase
	scoped := cfg.auth()
	assert.Equal(t, "ns", scoped.Namespace)
	assert.Equal(t, "db", scoped.Database)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, AuthRoot, cfg.AuthLevel)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10, cfg.MaxRetries)

	kept := Config{AuthLevel: AuthDatabase, RequestTimeout: time.Second, MaxRetries: 3}.withDefaults()
	assert.Equal(t, AuthDatabase, kept.AuthLevel)
	assert.Equal(t, time.Second, kept.RequestTimeout)
	assert.Equal(t, 3, kept.MaxRetries)
}
