package domain

import (
	"errors"
)

// Terminal statuses a client can stop polling on
const (
	JobStatusComplete = "complete"
	JobStatusFailed   = "failed"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// IsTerminal reports whether status will never change again
func IsTerminal(status string) bool {
	return status == JobStatusComplete || status == JobStatusFailed
}
