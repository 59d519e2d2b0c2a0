package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the first non-blank value among keys, or fallback.
func String(key, fallback string) string {
	if val := Lookup(key); val != "" {
		return val
	}
	return fallback
}

// Lookup returns the trimmed value of the first key that is set and non-blank.
// Keys are checked in order, which lets callers express alias chains such as
// FL_RETRIEVE_DEVICES_API_KEY_PATH before APP_STORE_CONNECT_API_KEY_PATH.
func Lookup(keys ...string) string {
	_ = Ensure()
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return ""
}

// Duration parses a time.Duration, falling back on absent or invalid input.
func Duration(key string, fallback time.Duration) time.Duration {
	if val := Lookup(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Int parses an integer, falling back on absent or invalid input.
func Int(key string, fallback int) int {
	if val := Lookup(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool accepts 1/true/yes and 0/false/no in any case.
func Bool(key string, fallback bool) bool {
	switch strings.ToLower(Lookup(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}
