package pkg

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey = errors.New("missing API key")
	ErrTokenExpired  = errors.New("access expired and no refresh token available")
)

// UpstreamError is a non success response from a third party provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error: %d %s", e.Provider, e.StatusCode, e.Body)
}

type missingKeyError struct {
	provider string
}

func (e missingKeyError) Error() string {
	return fmt.Sprintf("missing %s API key", e.provider)
}

func (e missingKeyError) Is(target error) bool {
	return target == ErrMissingAPIKey
}

// MissingAPIKey returns an error matching ErrMissingAPIKey that names the
// provider.
func MissingAPIKey(provider string) error {
	return missingKeyError{provider: provider}
}
