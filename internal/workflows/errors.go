package workflows

import (
	"errors"
	"fmt"
)

var (
	// ErrStageNotFound is returned when no stage is registered for a job.
	ErrStageNotFound = errors.New("stage not found")

	// ErrPayload marks a payload that could not be decoded. This is a
	// producer/consumer contract mismatch and is never retried.
	ErrPayload = errors.New("failed to decode stage payload")
)

func errPayload(err error) error {
	return fmt.Errorf("%w: %v", ErrPayload, err)
}
