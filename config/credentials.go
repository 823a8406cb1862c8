package config

import (
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// Keyring entries written by the admin dashboard.
const (
	SystemBuilderKeyringService = "system_builder"
	EmailKeyringService         = "email_sender"
	KeyringUser                 = "admin"
)

// ErrMissingPassword means neither the environment nor the keyring holds a
// System Builder password. Retrying cannot fix it.
var ErrMissingPassword = errors.New("system builder password not found (set SYSTEM_BUILDER_PASSWORD or store it in the keyring)")

// SecretStore is a secure local store of passwords.
type SecretStore interface {
	Get(service, user string) (string, error)
}

// KeyringStore reads secrets from the OS keyring.
type KeyringStore struct{}

// Get implements SecretStore.
func (KeyringStore) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Credentials are the System Builder login.
type Credentials struct {
	Username string
	Password string
}

// LogValue keeps the password out of logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.Bool("password_set", c.Password != ""),
	)
}

// ResolveCredentials resolves the login: environment first, then config
// (username) or the secret store (password).
func ResolveCredentials(cfg *Config, store SecretStore) (Credentials, error) {
	username, ok := EnvString("SYSTEM_BUILDER_USER")
	if !ok {
		username = cfg.SystemBuilderUser
	}

	password := LookupSecret("SYSTEM_BUILDER_PASSWORD", SystemBuilderKeyringService, store)
	if password == "" {
		return Credentials{Username: username}, ErrMissingPassword
	}
	return Credentials{Username: username, Password: password}, nil
}

// LookupSecret returns the environment variable envKey, falling back to the
// store entry for service. Store errors (including "not found") yield "".
func LookupSecret(envKey, service string, store SecretStore) string {
	if value, ok := EnvString(envKey); ok {
		return value
	}
	if store == nil {
		return ""
	}
	value, err := store.Get(service, KeyringUser)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("secret store lookup failed", slog.String("service", service), slog.Any("error", err))
		}
		return ""
	}
	return value
}
