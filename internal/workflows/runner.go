package workflows

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/sbbp/pipeline/internal/dbosruntime"
	"github.com/sbbp/pipeline/internal/metrics"
	"github.com/sbbp/pipeline/pkg/pipeline"
)

// Runner dispatches stage jobs through DBOS. Each stage runs as a durable
// workflow on its own queue; follow-up jobs returned by a stage are
// submitted before the workflow completes.
type Runner struct {
	stages      map[string]Stage
	dbosRuntime *dbosruntime.Runtime
	metrics     *metrics.Metrics
}

// NewRunner creates a runner and registers its dispatch function with DBOS.
// Register all stages before calling Launch on the runtime.
func NewRunner(dbosRuntime *dbosruntime.Runtime, m *metrics.Metrics) *Runner {
	runner := &Runner{
		stages:      make(map[string]Stage),
		dbosRuntime: dbosRuntime,
		metrics:     m,
	}

	if dbosRuntime != nil {
		dbos.RegisterWorkflow(dbosRuntime.Context(), runner.dispatch)
	}

	return runner
}

// Register adds a stage under its own name.
func (r *Runner) Register(stage Stage) {
	r.stages[stage.Name()] = stage
}

// Submit enqueues a job for durable execution and returns its run id.
func (r *Runner) Submit(ctx context.Context, job pipeline.NextJob) (string, error) {
	if r.dbosRuntime == nil {
		return "", errors.New("DBOS runtime not initialized")
	}

	env, err := pipeline.Envelope(job)
	if err != nil {
		return "", err
	}

	// Unique per submission so reruns of the same video get fresh workflows.
	workflowID := fmt.Sprintf("%s-%s-%d", job.Stage, job.VideoID, time.Now().UnixNano())

	handle, err := dbos.RunWorkflow[pipeline.JobEnvelope, *pipeline.StageOutcome](
		r.dbosRuntime.Context(),
		r.dispatch,
		env,
		dbos.WithWorkflowID(workflowID),
		dbos.WithQueue(r.dbosRuntime.QueueFor(job.Stage)),
	)
	if err != nil {
		return "", err
	}

	return handle.GetWorkflowID(), nil
}

// dispatch is the DBOS workflow function. One registration serves every
// stage; the envelope's stage name selects the handler.
func (r *Runner) dispatch(dbosCtx dbos.DBOSContext, env pipeline.JobEnvelope) (*pipeline.StageOutcome, error) {
	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return nil, err
	}

	if err := waitUntil(dbosCtx, env.NotBefore); err != nil {
		return nil, err
	}

	wctx := &Context{
		Ctx:   dbosCtx,
		RunID: workflowID,
	}

	return r.Execute(wctx, env)
}

// Execute runs the stage named by the envelope and submits any follow-up
// jobs it returns. Exported so tests can drive stages without DBOS.
func (r *Runner) Execute(wctx *Context, env pipeline.JobEnvelope) (*pipeline.StageOutcome, error) {
	stage, ok := r.stages[env.Stage]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStageNotFound, env.Stage)
	}

	start := time.Now()
	next, err := stage.Execute(wctx, env.Payload)
	elapsed := time.Since(start)

	if r.metrics != nil {
		r.metrics.StageDuration.WithLabelValues(env.Stage).Observe(elapsed.Seconds())
		if err != nil {
			r.metrics.StageFailures.WithLabelValues(env.Stage).Inc()
		}
	}
	if err != nil {
		log.Printf("[%s] stage %s failed for video %s after %s: %v",
			wctx.RunID, env.Stage, env.VideoID, elapsed.Round(time.Millisecond), err)
		return nil, err
	}

	outcome := &pipeline.StageOutcome{
		Stage:   env.Stage,
		VideoID: env.VideoID,
	}
	for _, job := range next {
		runID, err := r.Submit(wctx.Ctx, job)
		if err != nil {
			return nil, fmt.Errorf("submit %s for video %s: %w", job.Stage, job.VideoID, err)
		}
		log.Printf("[%s] submitted %s for video %s as %s", wctx.RunID, job.Stage, job.VideoID, runID)
		outcome.Submitted = append(outcome.Submitted, runID)
	}

	log.Printf("[%s] stage %s completed for video %s in %s",
		wctx.RunID, env.Stage, env.VideoID, elapsed.Round(time.Millisecond))
	return outcome, nil
}

// waitUntil blocks until the given time, honoring context cancellation.
// A zero or past time returns immediately.
func waitUntil(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return nil
	}
	d := time.Until(t)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
