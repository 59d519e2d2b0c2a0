package retrievedevices

import (
	"context"
	"strings"

	"github.com/builtbyproxy/retrieve-devices/internal/ascapi"
	"github.com/builtbyproxy/retrieve-devices/internal/env"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AuthMode records which authentication path a run took.
type AuthMode string

const (
	AuthModeAPIKey          AuthMode = "api_key"
	AuthModeExistingSession AuthMode = "existing_session"
	AuthModePassword        AuthMode = "password"
)

// DeviceLister is an authenticated App Store Connect session.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]ascapi.Device, error)
}

// Authenticator opens App Store Connect sessions.
type Authenticator interface {
	TokenSession(key *ascapi.APIKey) (DeviceLister, error)
	PasswordSession(ctx context.Context, user, password string) (DeviceLister, error)
}

// CredentialSource supplies the Apple ID and password for interactive login.
type CredentialSource interface {
	DefaultUsername() string
	Password(ctx context.Context, user string) (string, error)
}

// AppStoreConnect is the production Authenticator.
type AppStoreConnect struct {
	ClientOptions []ascapi.Option
	// Login carries sign-in endpoint overrides.
	Login ascapi.LoginOptions
}

// ClientOptionsFromEnv applies RETRIEVE_DEVICES_HTTP_TIMEOUT (e.g. "90s")
// and RETRIEVE_DEVICES_PAGE_LIMIT to App Store Connect clients.
func ClientOptionsFromEnv() []ascapi.Option {
	var opts []ascapi.Option
	if timeout := env.Duration(EnvHTTPTimeout, 0); timeout > 0 {
		opts = append(opts, ascapi.WithTimeout(timeout))
	}
	if limit := env.Int(EnvPageLimit, 0); limit > 0 {
		opts = append(opts, ascapi.WithPageLimit(limit))
	}
	return opts
}

func (a AppStoreConnect) TokenSession(key *ascapi.APIKey) (DeviceLister, error) {
	client, err := ascapi.NewTokenClient(key, a.ClientOptions...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (a AppStoreConnect) PasswordSession(ctx context.Context, user, password string) (DeviceLister, error) {
	client, err := ascapi.Login(ctx, user, password, a.Login, a.ClientOptions...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ResolveAuth picks exactly one authentication path:
//
//  1. an API key from options (inline or file) or from the lane,
//  2. a session already installed on the lane,
//  3. Apple ID login with the password from the credential source.
//
// The resulting session is installed on the lane.
func (r *Retriever) ResolveAuth(ctx context.Context, opts Options) (DeviceLister, AuthMode, error) {
	key, err := r.resolveAPIKey(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	if key != nil {
		log.Info().Str("key_id", key.KeyID).Msg("Creating authorization token for App Store Connect API")
		session, err := r.Auth.TokenSession(key)
		if err != nil {
			return nil, "", errors.Wrap(err, "create App Store Connect API token")
		}
		r.Lane.SetSession(session)
		return session, AuthModeAPIKey, nil
	}

	if session := r.Lane.Session(); session != nil {
		log.Info().Msg("Using existing authorization token for App Store Connect API")
		return session, AuthModeExistingSession, nil
	}

	user := strings.TrimSpace(opts.Username)
	if user == "" && r.Credentials != nil {
		user = strings.TrimSpace(r.Credentials.DefaultUsername())
	}
	if user == "" {
		return nil, "", errors.New("no API key, session or username available to log in to App Store Connect")
	}
	if r.Credentials == nil {
		return nil, "", errors.New("no credential source configured for password login")
	}
	log.Info().Msg("Consider using https://onetomany.dev/ to share the mobile MFA from your apple account if you are sharing an apple account")
	log.Info().Msgf("Login to App Store Connect (%s)", user)
	password, err := r.Credentials.Password(ctx, user)
	if err != nil {
		return nil, "", errors.Wrapf(err, "read password for %s", user)
	}
	session, err := r.Auth.PasswordSession(ctx, user, password)
	if err != nil {
		return nil, "", errors.Wrap(err, "login to App Store Connect failed")
	}
	log.Info().Msg("Login successful")
	r.Lane.SetSession(session)
	return session, AuthModePassword, nil
}

func (r *Retriever) resolveAPIKey(ctx context.Context, opts Options) (*ascapi.APIKey, error) {
	if path := strings.TrimSpace(opts.APIKeyPath); path != "" {
		return ascapi.LoadAPIKeyFile(path)
	}
	if len(opts.APIKey) > 0 {
		key, err := ascapi.ParseAPIKey(opts.APIKey)
		if err != nil {
			return nil, errors.Wrap(err, "invalid api_key option")
		}
		return key, nil
	}
	values, ok, err := r.Lane.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	key, err := ascapi.ParseAPIKey(values)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s in lane context", SharedAppStoreConnectAPIKey)
	}
	return key, nil
}
