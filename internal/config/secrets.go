package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrSecretNotFound is returned when a secret is not in the secrets file.
var ErrSecretNotFound = errors.New("secret not found")

const apiTokenAccount = "api_token"

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), appName, "secrets.json")
}

// secretsFile keeps secrets in a JSON file readable only by the owner,
// keyed by service and account.
type secretsFile struct {
	path string
}

func (f secretsFile) read() (map[string]map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	if secrets == nil {
		secrets = map[string]map[string]string{}
	}
	return secrets, nil
}

func (f secretsFile) Get(service, account string) (string, error) {
	secrets, err := f.read()
	if err != nil {
		return "", err
	}
	val, ok := secrets[service][account]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrSecretNotFound, service, account)
	}
	return val, nil
}

func (f secretsFile) Set(service, account, value string) error {
	secrets, err := f.read()
	if err != nil {
		return err
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}

// GetAPIToken returns the bearer token guarding the local HTTP API,
// generating and storing one on first use. WPBATCH_API_TOKEN overrides it.
func GetAPIToken() (string, error) {
	if tok := strings.TrimSpace(os.Getenv("WPBATCH_API_TOKEN")); tok != "" {
		return tok, nil
	}
	return apiToken(secretsFile{path: secretsFilePath()})
}

func apiToken(kc keychain) (string, error) {
	tok, err := kc.Get(appName, apiTokenAccount)
	if err == nil && tok != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}
	tok = uuid.New().String()
	if err := kc.Set(appName, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// SetSecret stores a secret config key in the secrets file.
func SetSecret(key, value string) error {
	s, ok := lookup(key)
	if !ok || !s.secret {
		return fmt.Errorf("unknown secret key: %q", key)
	}
	return secretsFile{path: secretsFilePath()}.Set(appName, secretAccount(key), value)
}

func secretAccount(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}
