package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ClassifyProviderError maps a raw SDK error to the module error taxonomy:
// auth and not-found failures become ErrUnavailable, rate limits, timeouts
// and server errors become TransportError, context errors pass through.
// Provider SDKs embed HTTP status codes in error strings, so classification
// is string based.
func ClassifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	errStr := strings.ToLower(err.Error())

	for _, code := range []string{"401", "403", "404"} {
		if strings.Contains(errStr, code) {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, provider, err)
		}
	}
	if strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "model not found") {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, provider, err)
	}

	for _, code := range []string{"429", "500", "502", "503", "504"} {
		if strings.Contains(errStr, code) {
			return &TransportError{Provider: provider, Err: err}
		}
	}
	for _, pat := range []string{"timeout", "connection", "network", "temporary", "reset", "eof", "rate", "overloaded"} {
		if strings.Contains(errStr, pat) {
			return &TransportError{Provider: provider, Err: err}
		}
	}

	// Unknown provider failures are treated as transient so a retry budget,
	// not a single blip, decides session fate.
	return &TransportError{Provider: provider, Err: err}
}
