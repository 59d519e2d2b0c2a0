package credentials

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/builtbyproxy/retrieve-devices/internal/env"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	EnvDeliverUser      = "DELIVER_USER"
	EnvFastlaneUser     = "FASTLANE_USER"
	EnvFastlanePassword = "FASTLANE_PASSWORD"

	keychainServicePrefix = "deliver."
)

// ErrNoTerminal is returned when a password must be prompted for but stdin
// is not attached to a terminal.
var ErrNoTerminal = errors.New("credentials: no terminal available to prompt for a password")

// Manager resolves Apple ID credentials the same way fastlane's
// CredentialsManager does: environment first, then the login keychain, then
// an interactive prompt. It never writes credentials anywhere.
type Manager struct {
	// WorkDir is where the Appfile lookup starts; empty means ".".
	WorkDir string

	keychainGet func(service, user string) (string, error)
	prompt      func(label string) (string, error)
}

// NewManager returns a Manager bound to the OS keychain and the terminal.
func NewManager() *Manager {
	return &Manager{
		keychainGet: keyring.Get,
		prompt:      promptTerminal(os.Stdin, os.Stderr),
	}
}

// DefaultUsername resolves the account used when no username option is set.
func (m *Manager) DefaultUsername() string {
	if user := env.Lookup(EnvDeliverUser, EnvFastlaneUser); user != "" {
		return user
	}
	dir := "."
	if m != nil && m.WorkDir != "" {
		dir = m.WorkDir
	}
	values := AppfileValues(dir)
	for _, key := range []string{"apple_dev_portal_id", "apple_id"} {
		if v := strings.TrimSpace(values[key]); v != "" {
			return v
		}
	}
	return ""
}

// Password returns the password for user.
func (m *Manager) Password(ctx context.Context, user string) (string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return "", errors.New("credentials: username is required to look up a password")
	}
	if pw := os.Getenv(EnvFastlanePassword); pw != "" {
		log.Debug().Str("user", user).Msg("credentials: using password from environment")
		return pw, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.keychainGet != nil {
		pw, err := m.keychainGet(keychainServicePrefix+user, user)
		switch {
		case err == nil && pw != "":
			log.Debug().Str("user", user).Msg("credentials: using password from keychain")
			return pw, nil
		case err != nil && !errors.Is(err, keyring.ErrNotFound):
			log.Debug().Err(err).Str("user", user).Msg("credentials: keychain lookup failed")
		}
	}
	if m.prompt == nil {
		return "", ErrNoTerminal
	}
	pw, err := m.prompt(fmt.Sprintf("Password (for %s): ", user))
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errors.Errorf("credentials: empty password for %s", user)
	}
	return pw, nil
}

func promptTerminal(in *os.File, out io.Writer) func(string) (string, error) {
	return func(label string) (string, error) {
		fd := int(in.Fd())
		if !term.IsTerminal(fd) {
			return "", ErrNoTerminal
		}
		fmt.Fprint(out, label)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", errors.Wrap(err, "credentials: read password")
		}
		return strings.TrimRight(string(raw), "\r\n"), nil
	}
}
