package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/observerhq/observer/internal/api"
	"github.com/observerhq/observer/internal/config"
	"github.com/observerhq/observer/internal/storage"
	"github.com/observerhq/observer/pkg/logger"
)

// newClient builds a REST client backed by the sealed credential store.
func newClient(cfg *config.Config) (*api.Client, *storage.CredentialStore, error) {
	store, err := storage.NewCredentialStore(cfg.CredentialsFile, cfg.SecretKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return api.NewClient(cfg.ServerURL, store), store, nil
}

// LoginCommand prompts for credentials and stores the resulting tokens.
func LoginCommand(cfg *config.Config) error {
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	fmt.Print("Password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	creds, err := client.Login(strings.TrimSpace(username), strings.TrimSpace(password))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	logger.Infof("Logged in as %s (%s)", creds.Username, creds.Role)
	return nil
}

// LogoutCommand wipes the stored tokens.
func LogoutCommand(cfg *config.Config) error {
	store, err := storage.NewCredentialStore(cfg.CredentialsFile, cfg.SecretKeyFile)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	logger.Infof("Logged out")
	return nil
}
