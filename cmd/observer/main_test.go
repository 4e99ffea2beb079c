package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/observerhq/observer/internal/config"
)

func TestParseFlagsOptions(t *testing.T) {
	cfg := &config.Config{ServerURL: "http://localhost:8000"}

	args, opts, err := parseFlags(cfg, []string{
		"-server", "https://class.example.com",
		"-lang", "javascript",
		"-export", "/tmp/exports",
		"-filter", "errors",
		"-search", "ada",
		"join", "ABC123", "main.js",
	})
	require.NoError(t, err)

	require.Equal(t, []string{"join", "ABC123", "main.js"}, args)
	require.Equal(t, "javascript", opts.language)
	require.Equal(t, "/tmp/exports", opts.exportDir)
	require.Equal(t, "errors", opts.filter)
	require.Equal(t, "ada", opts.search)
	require.Equal(t, "https://class.example.com", cfg.ServerURL)
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg := &config.Config{ServerURL: "http://localhost:8000"}

	args, opts, err := parseFlags(cfg, []string{"watch", "ABC123"})
	require.NoError(t, err)

	require.Equal(t, []string{"watch", "ABC123"}, args)
	require.Empty(t, opts.language)
	require.Empty(t, opts.exportDir)
	require.Equal(t, "all", opts.filter)
	require.Equal(t, "http://localhost:8000", cfg.ServerURL)
}

func TestParseFlagsRejectsUnknownFlag(t *testing.T) {
	cfg := &config.Config{}

	_, _, err := parseFlags(cfg, []string{"-bogus"})
	require.Error(t, err)
}
