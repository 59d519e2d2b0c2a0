package ascapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidCredentials is returned when the sign-in endpoint rejects
	// the account name or password.
	ErrInvalidCredentials = errors.New("ascapi: invalid username or password")
	// ErrTwoFactorRequired is returned when the account needs a second
	// factor, which a non-interactive login cannot satisfy.
	ErrTwoFactorRequired = errors.New("ascapi: two-factor authentication required")
)

// APIError carries the first entry of a JSON:API error document.
type APIError struct {
	Status int
	Code   string
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	parts := []string{fmt.Sprintf("ascapi: http %d", e.Status)}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	if e.Title != "" {
		parts = append(parts, e.Title)
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	return strings.Join(parts, ": ")
}

// Unauthorized reports whether the API rejected the credentials.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var doc struct {
		Errors []struct {
			Status string `json:"status"`
			Code   string `json:"code"`
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &doc); err == nil && len(doc.Errors) > 0 {
		first := doc.Errors[0]
		apiErr.Code = first.Code
		apiErr.Title = first.Title
		apiErr.Detail = first.Detail
		return apiErr
	}
	apiErr.Detail = strings.TrimSpace(string(body))
	return apiErr
}
