package ascapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultTokenDuration mirrors the lifetime used by the fastlane tooling.
	DefaultTokenDuration = 500 * time.Second
	// MaxTokenDuration is the longest lifetime App Store Connect accepts.
	MaxTokenDuration = 1200 * time.Second
)

// APIKey describes an App Store Connect API key in the JSON layout used by
// fastlane's app_store_connect_api_key action.
type APIKey struct {
	KeyID    string
	IssuerID string
	// Key holds the PEM encoded ES256 private key.
	Key      string
	Duration time.Duration
	InHouse  bool
}

// ParseAPIKey builds an APIKey from a loosely typed mapping such as a decoded
// JSON/YAML document. Keys may carry a leading ':' (Ruby symbol notation).
func ParseAPIKey(values map[string]any) (*APIKey, error) {
	if len(values) == 0 {
		return nil, errors.New("ascapi: api key mapping is empty")
	}
	norm := make(map[string]any, len(values))
	for k, v := range values {
		norm[strings.TrimPrefix(strings.TrimSpace(k), ":")] = v
	}

	key := &APIKey{
		KeyID:    stringValue(norm["key_id"]),
		IssuerID: stringValue(norm["issuer_id"]),
		Key:      stringValue(norm["key"]),
		InHouse:  boolValue(norm["in_house"]),
		Duration: DefaultTokenDuration,
	}

	if key.Key == "" {
		if path := stringValue(norm["filepath"]); path != "" {
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, errors.Wrapf(err, "ascapi: read key file %s", path)
			}
			key.Key = string(raw)
		}
	} else if boolValue(norm["is_key_content_base64"]) {
		decoded, err := base64.StdEncoding.DecodeString(key.Key)
		if err != nil {
			return nil, errors.Wrap(err, "ascapi: decode base64 key content")
		}
		key.Key = string(decoded)
	}

	if raw, ok := norm["duration"]; ok && raw != nil {
		secs, err := intValue(raw)
		if err != nil {
			return nil, errors.Wrap(err, "ascapi: invalid duration")
		}
		if secs > 0 {
			key.Duration = time.Duration(secs) * time.Second
		}
	}

	if err := key.Validate(); err != nil {
		return nil, err
	}
	return key, nil
}

// LoadAPIKeyFile reads a fastlane style API key JSON file. A relative
// "filepath" entry is resolved against the JSON file's directory.
func LoadAPIKeyFile(path string) (*APIKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "ascapi: read api key file %s", path)
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrapf(err, "ascapi: decode api key file %s", path)
	}
	if p := stringValue(values["filepath"]); p != "" && !filepath.IsAbs(p) {
		values["filepath"] = filepath.Join(filepath.Dir(path), p)
	}
	key, err := ParseAPIKey(values)
	if err != nil {
		return nil, errors.Wrapf(err, "ascapi: api key file %s", path)
	}
	return key, nil
}

// Validate checks the fields required to sign tokens.
func (k *APIKey) Validate() error {
	if k == nil {
		return errors.New("ascapi: api key is nil")
	}
	if strings.TrimSpace(k.KeyID) == "" {
		return errors.New("ascapi: api key is missing key_id")
	}
	if strings.TrimSpace(k.Key) == "" {
		return errors.New("ascapi: api key is missing key content")
	}
	if k.Duration > MaxTokenDuration {
		return fmt.Errorf("ascapi: token duration %s exceeds the %s maximum", k.Duration, MaxTokenDuration)
	}
	return nil
}

// BaseURL returns the API host the key is valid for.
func (k *APIKey) BaseURL() string {
	if k != nil && k.InHouse {
		return EnterpriseBaseURL
	}
	return DefaultBaseURL
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func boolValue(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && parsed
	default:
		return false
	}
}

func intValue(v any) (int64, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		return int64(val), nil
	case json.Number:
		return val.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
