package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized covers every ownership-proof failure: stale timestamp,
	// malformed template, bad signature, signer mismatch.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrTaskNotFound = errors.New("task not found")
	ErrUpstream     = errors.New("upstream unavailable")
	ErrComputation  = errors.New("computation failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Redact shortens a wallet address or commitment hash to a loggable prefix.
// Full identifiers must never reach logs or error messages.
func Redact(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10] + "..."
}
