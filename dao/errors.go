package dao

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Storage error taxonomy. Callers branch with errors.Is; transient
// failures are retryable by the caller with backoff, never retried here.
var (
	ErrNotFound    = errors.New("record not found")
	ErrUnavailable = errors.New("storage unavailable")
)

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
