package ascapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAuthURL    = "https://idmsa.apple.com/appleauth/auth"
	DefaultOlympusURL = "https://appstoreconnect.apple.com/olympus/v1"
)

// LoginOptions overrides the sign-in endpoints; empty fields mean the
// production hosts.
type LoginOptions struct {
	AuthURL    string
	OlympusURL string
}

// Login signs in with an Apple ID and returns a cookie backed session for
// the developer portal API. The App Store Connect web session is never
// opened.
func Login(ctx context.Context, user, password string, lopts LoginOptions, opts ...Option) (*Client, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, errors.New("ascapi: login requires a username")
	}
	if password == "" {
		return nil, errors.New("ascapi: login requires a password")
	}
	cfg := newClientConfig(PortalBaseURL, opts)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "ascapi: create cookie jar")
	}
	httpClient := &http.Client{
		Timeout:   cfg.timeout,
		Transport: cfg.transport,
		Jar:       jar,
	}
	s := &loginSession{
		http:       httpClient,
		authURL:    strings.TrimRight(firstNonEmpty(lopts.AuthURL, DefaultAuthURL), "/"),
		olympusURL: strings.TrimRight(firstNonEmpty(lopts.OlympusURL, DefaultOlympusURL), "/"),
	}

	widgetKey, err := s.serviceKey(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.signIn(ctx, widgetKey, user, password); err != nil {
		return nil, err
	}
	log.Debug().Str("user", user).Str("scope", string(ScopePortal)).Msg("ascapi: password session established")

	return &Client{
		baseURL:    cfg.baseURL,
		httpClient: httpClient,
		pageLimit:  cfg.pageLimit,
		scope:      ScopePortal,
	}, nil
}

type loginSession struct {
	http       *http.Client
	authURL    string
	olympusURL string
}

// serviceKey fetches the widget key the sign-in endpoint expects.
func (s *loginSession) serviceKey(ctx context.Context) (string, error) {
	endpoint := s.olympusURL + "/app/config?" + url.Values{"hostname": {"itunesconnect.apple.com"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", errors.Wrap(err, "ascapi: build service key request")
	}
	req.Header.Set("Accept", "application/json")
	status, raw, err := s.do(req)
	if err != nil {
		return "", errors.Wrap(err, "ascapi: fetch auth service key")
	}
	if status >= http.StatusBadRequest {
		return "", newAPIError(status, raw)
	}
	var cfg struct {
		AuthServiceKey string `json:"authServiceKey"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return "", errors.Wrap(err, "ascapi: decode auth service config")
	}
	if strings.TrimSpace(cfg.AuthServiceKey) == "" {
		return "", errors.New("ascapi: auth service key missing in config response")
	}
	return cfg.AuthServiceKey, nil
}

func (s *loginSession) signIn(ctx context.Context, widgetKey, user, password string) error {
	payload, err := json.Marshal(map[string]any{
		"accountName": user,
		"password":    password,
		"rememberMe":  true,
	})
	if err != nil {
		return errors.Wrap(err, "ascapi: marshal sign-in payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL+"/signin", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "ascapi: build sign-in request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/javascript")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-Apple-Widget-Key", widgetKey)

	status, raw, err := s.do(req)
	if err != nil {
		return errors.Wrap(err, "ascapi: sign in")
	}
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusConflict:
		return ErrTwoFactorRequired
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w (%s)", ErrInvalidCredentials, user)
	default:
		return newAPIError(status, raw)
	}
}

func (s *loginSession) do(req *http.Request) (int, []byte, error) {
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
