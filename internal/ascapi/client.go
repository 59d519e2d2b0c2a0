package ascapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL    = "https://api.appstoreconnect.apple.com/v1"
	EnterpriseBaseURL = "https://api.enterprise.developer.apple.com/v1"
	PortalBaseURL     = "https://developer.apple.com/services-account/v1"

	defaultHTTPTimeout = 60 * time.Second
	defaultPageLimit   = 200
)

// Scope names the API surface a Client talks to.
type Scope string

const (
	ScopeAPIKey Scope = "api_key"
	ScopePortal Scope = "portal"
)

// Client is an authenticated App Store Connect session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pageLimit  int
	scope      Scope
}

type clientConfig struct {
	baseURL   string
	transport http.RoundTripper
	timeout   time.Duration
	pageLimit int
}

// Option customises how a Client reaches the API.
type Option func(*clientConfig)

// WithBaseURL points the client at another API root, e.g. an httptest server.
func WithBaseURL(raw string) Option {
	return func(cfg *clientConfig) {
		cfg.baseURL = strings.TrimRight(strings.TrimSpace(raw), "/")
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *clientConfig) {
		cfg.transport = rt
	}
}

// WithTimeout overrides the per request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.timeout = d
	}
}

// WithPageLimit sets the page size requested from list endpoints.
func WithPageLimit(limit int) Option {
	return func(cfg *clientConfig) {
		cfg.pageLimit = limit
	}
}

func newClientConfig(defaultBase string, opts []Option) clientConfig {
	cfg := clientConfig{
		baseURL:   defaultBase,
		transport: http.DefaultTransport,
		timeout:   defaultHTTPTimeout,
		pageLimit: defaultPageLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.pageLimit <= 0 || cfg.pageLimit > defaultPageLimit {
		cfg.pageLimit = defaultPageLimit
	}
	return cfg
}

// NewTokenClient returns a client that authorises every request with a
// bearer token signed by key. The default host follows the key's team type.
func NewTokenClient(key *APIKey, opts ...Option) (*Client, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	cfg := newClientConfig(key.BaseURL(), opts)
	return &Client{
		baseURL: cfg.baseURL,
		httpClient: &http.Client{
			Timeout: cfg.timeout,
			Transport: &oauth2.Transport{
				Source: key.TokenSource(),
				Base:   cfg.transport,
			},
		},
		pageLimit: cfg.pageLimit,
		scope:     ScopeAPIKey,
	}, nil
}

// Scope reports how the session was authenticated.
func (c *Client) Scope() Scope {
	if c == nil {
		return ""
	}
	return c.scope
}

// ListDevices returns every registered device, following pagination links
// until the API stops returning a next page.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	if c == nil {
		return nil, errors.New("ascapi: client is nil")
	}
	next := fmt.Sprintf("%s/devices?limit=%d", c.baseURL, c.pageLimit)
	var devices []Device
	seen := make(map[string]struct{})
	for page := 1; next != ""; page++ {
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("ascapi: pagination loop detected at %s", next)
		}
		seen[next] = struct{}{}

		var body deviceListResponse
		if err := c.getJSON(ctx, next, &body); err != nil {
			return nil, errors.Wrap(err, "list devices failed")
		}
		for _, item := range body.Data {
			devices = append(devices, item.device())
		}
		log.Debug().
			Int("page", page).
			Int("page_size", len(body.Data)).
			Int("total", body.Meta.Paging.Total).
			Msg("ascapi: fetched devices page")
		resolved, err := c.resolveNext(body.Links.Next)
		if err != nil {
			return nil, errors.Wrapf(err, "ascapi: invalid next link %q", body.Links.Next)
		}
		next = resolved
	}
	return devices, nil
}

// resolveNext keeps relative pagination links on the configured host.
func (c *Client) resolveNext(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return raw, nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "ascapi: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "ascapi: execute request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "ascapi: read response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return newAPIError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "ascapi: decode response")
	}
	return nil
}
