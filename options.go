package retrievedevices

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrConflictingOptions is returned when api_key and api_key_path are
	// both supplied.
	ErrConflictingOptions = errors.New("unresolved conflict between options: 'api_key' and 'api_key_path'")
	// ErrAPIKeyFileNotFound is returned when api_key_path does not exist.
	ErrAPIKeyFileNotFound = errors.New("couldn't find API key JSON file")
)

// Options configures one retrieve run.
type Options struct {
	// APIKey is an inline App Store Connect API key mapping
	// (key_id, issuer_id, key, duration, in_house, is_key_content_base64).
	APIKey map[string]any
	// APIKeyPath points at an API key JSON file.
	APIKeyPath string
	// Username is the Apple ID used for password login.
	Username string

	// OutputPath defaults to devices.json in the working directory.
	OutputPath string
	Format     OutputFormat
}

// Validate rejects conflicting or unusable options. It performs no network
// access.
func (o Options) Validate() error {
	path := strings.TrimSpace(o.APIKeyPath)
	if len(o.APIKey) > 0 && path != "" {
		return ErrConflictingOptions
	}
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w at path '%s'", ErrAPIKeyFileNotFound, path)
			}
			return errors.Wrapf(err, "stat api key file %s", path)
		}
		if info.IsDir() {
			return fmt.Errorf("%w at path '%s' (is a directory)", ErrAPIKeyFileNotFound, path)
		}
	}
	if _, err := ParseOutputFormat(string(o.Format)); err != nil {
		return err
	}
	return nil
}

func (o Options) outputPath() string {
	if p := strings.TrimSpace(o.OutputPath); p != "" {
		return p
	}
	return DefaultOutputPath
}

// ParseAPIKeyOption decodes an inline api_key value. JSON objects and YAML
// flow mappings such as `{key_id: ABC, issuer_id: XYZ, key: "..."}` are both
// accepted.
func ParseAPIKeyOption(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var values map[string]any
	if err := yaml.Unmarshal([]byte(raw), &values); err != nil {
		return nil, errors.Wrap(err, "decode api_key option")
	}
	if len(values) == 0 {
		return nil, errors.New("api_key option is not a mapping")
	}
	return values, nil
}
