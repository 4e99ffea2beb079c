package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("OBSERVER_HOME_DIR", home)
	t.Setenv("OBSERVER_SERVER_URL", "")
	t.Setenv("OBSERVER_WS_URL", "")
	t.Setenv("OBSERVER_DEBUG", "")
	t.Setenv("OBSERVER_LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", cfg.ServerURL)
	require.Equal(t, "ws://localhost:8000", cfg.WSURL)
	require.Equal(t, home, cfg.ObserverHome)
	require.Equal(t, filepath.Join(home, "credentials"), cfg.CredentialsFile)
	require.Equal(t, filepath.Join(home, "secret.key"), cfg.SecretKeyFile)
	require.False(t, cfg.Debug)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadDerivesSecureWebsocketURL(t *testing.T) {
	t.Setenv("OBSERVER_HOME_DIR", t.TempDir())
	t.Setenv("OBSERVER_SERVER_URL", "https://observer.example.com/")
	t.Setenv("OBSERVER_WS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://observer.example.com", cfg.ServerURL)
	require.Equal(t, "wss://observer.example.com", cfg.WSURL)
}

func TestLoadExplicitWebsocketURLWins(t *testing.T) {
	t.Setenv("OBSERVER_HOME_DIR", t.TempDir())
	t.Setenv("OBSERVER_SERVER_URL", "https://observer.example.com")
	t.Setenv("OBSERVER_WS_URL", "wss://ws.observer.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "wss://ws.observer.example.com", cfg.WSURL)
}

func TestLoadDebugImpliesDebugLevel(t *testing.T) {
	t.Setenv("OBSERVER_HOME_DIR", t.TempDir())
	t.Setenv("OBSERVER_SERVER_URL", "")
	t.Setenv("OBSERVER_WS_URL", "")
	t.Setenv("OBSERVER_DEBUG", "1")
	t.Setenv("OBSERVER_LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Debug)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestDeriveWSURLRejectsUnknownScheme(t *testing.T) {
	t.Parallel()

	_, err := deriveWSURL("ftp://example.com")
	require.Error(t, err)

	got, err := deriveWSURL("ws://example.com")
	require.NoError(t, err)
	require.Equal(t, "ws://example.com", got)
}
