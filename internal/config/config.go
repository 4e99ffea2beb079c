package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	// ServerURL is the base URL of the Observer REST API.
	ServerURL string
	// WSURL is the base URL for websocket connections (ws:// or wss://).
	// Derived from ServerURL when not set explicitly.
	WSURL string

	// ObserverHome is the directory where the client stores local state.
	ObserverHome string
	// CredentialsFile is the path to the sealed token file.
	CredentialsFile string
	// SecretKeyFile is the path to the local sealing key.
	SecretKeyFile string

	// Debug enables verbose logging.
	Debug bool
	// LogLevel is the textual log level (trace|debug|info|warn|error).
	LogLevel string
}

// Load loads configuration from environment and defaults.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	observerHome := os.Getenv("OBSERVER_HOME_DIR")
	if observerHome == "" {
		observerHome = filepath.Join(homeDir, ".observer")
	}
	if err := os.MkdirAll(observerHome, 0700); err != nil {
		return nil, fmt.Errorf("failed to create observer home: %w", err)
	}

	serverURL := strings.TrimRight(os.Getenv("OBSERVER_SERVER_URL"), "/")
	if serverURL == "" {
		serverURL = "http://localhost:8000"
	}

	wsURL := strings.TrimRight(os.Getenv("OBSERVER_WS_URL"), "/")
	if wsURL == "" {
		wsURL, err = deriveWSURL(serverURL)
		if err != nil {
			return nil, err
		}
	}

	debug := os.Getenv("OBSERVER_DEBUG") == "true" || os.Getenv("OBSERVER_DEBUG") == "1"
	logLevel := os.Getenv("OBSERVER_LOG_LEVEL")
	if logLevel == "" {
		if debug {
			logLevel = "debug"
		} else {
			logLevel = "info"
		}
	}

	return &Config{
		ServerURL:       serverURL,
		WSURL:           wsURL,
		ObserverHome:    observerHome,
		CredentialsFile: filepath.Join(observerHome, "credentials"),
		SecretKeyFile:   filepath.Join(observerHome, "secret.key"),
		Debug:           debug,
		LogLevel:        logLevel,
	}, nil
}

// deriveWSURL maps an http(s) base URL to its ws(s) counterpart.
func deriveWSURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
