package workflows

import (
	"context"
	"encoding/json"

	"github.com/sbbp/pipeline/pkg/pipeline"
)

// Context carries the execution context for one stage invocation.
type Context struct {
	Ctx   context.Context
	RunID string
}

// Stage is one unit of pipeline work. Execute decodes its own payload and
// returns the follow-up jobs to submit; it never enqueues anything itself,
// so the pipeline topology stays testable without a live scheduler.
type Stage interface {
	// Name returns the stage name used for scheduler routing.
	Name() string

	// Execute runs the stage to completion.
	Execute(wctx *Context, payload json.RawMessage) ([]pipeline.NextJob, error)
}

// Scheduler submits a job for durable execution and returns its run id.
type Scheduler interface {
	Submit(ctx context.Context, job pipeline.NextJob) (string, error)
}

func decodePayload[T any](raw json.RawMessage, out *T) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return errPayload(err)
	}
	return nil
}
