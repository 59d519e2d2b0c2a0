package retrievedevices

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/builtbyproxy/retrieve-devices/internal/ascapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func testKeyPEM(t *testing.T) string {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestClientOptionsFromEnvPageLimit(t *testing.T) {
	t.Setenv(EnvPageLimit, "50")
	t.Setenv(EnvHTTPTimeout, "5s")
	opts := ClientOptionsFromEnv()
	if len(opts) != 2 {
		t.Fatalf("expected 2 options, got %d", len(opts))
	}

	var limits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limits = append(limits, r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"data":[],"links":{}}`)
	}))
	defer srv.Close()

	auth := AppStoreConnect{ClientOptions: append(opts, ascapi.WithBaseURL(srv.URL))}
	session, err := auth.TokenSession(&ascapi.APIKey{KeyID: "K", IssuerID: "I", Key: testKeyPEM(t)})
	if err != nil {
		t.Fatalf("TokenSession error: %v", err)
	}
	if _, err := session.ListDevices(context.Background()); err != nil {
		t.Fatalf("ListDevices error: %v", err)
	}
	if len(limits) != 1 || limits[0] != "50" {
		t.Fatalf("expected limit=50, got %v", limits)
	}
}

func TestClientOptionsFromEnvUnset(t *testing.T) {
	t.Setenv(EnvPageLimit, "")
	t.Setenv(EnvHTTPTimeout, "not-a-duration")
	if opts := ClientOptionsFromEnv(); len(opts) != 0 {
		t.Fatalf("expected no options, got %d", len(opts))
	}
}

func TestPasswordLoginLogsMFAHint(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r, _, _, _ := newTestRetriever(t, &fakeLister{})
	if _, err := r.Run(context.Background(), Options{OutputPath: filepath.Join(t.TempDir(), "devices.json")}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	out := buf.String()
	hint := strings.Index(out, "share the mobile MFA")
	login := strings.Index(out, "Login to App Store Connect (dev@example.com)")
	if hint < 0 || login < 0 || hint > login {
		t.Fatalf("expected MFA hint before the login line, got:\n%s", out)
	}
}

func TestAPIKeyRunSkipsMFAHint(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r, _, _, _ := newTestRetriever(t, &fakeLister{})
	opts := Options{APIKey: map[string]any{"key_id": "K", "key": "pem"}, OutputPath: filepath.Join(t.TempDir(), "devices.json")}
	if _, err := r.Run(context.Background(), opts); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if strings.Contains(buf.String(), "MFA") {
		t.Fatalf("api key runs should not print the MFA hint:\n%s", buf.String())
	}
}
