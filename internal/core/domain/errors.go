package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidScope      = errors.New("invalid scope")
	ErrSourceUnavailable = errors.New("retrieval source unavailable")
	ErrGeneration        = errors.New("generation service error")
	ErrTemporary         = errors.New("temporary failure")
	ErrRunCanceled       = errors.New("run canceled")
	ErrRunNotFound       = errors.New("run not found")
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
