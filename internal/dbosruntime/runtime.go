package dbosruntime

import (
	"context"
	"errors"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	_ "github.com/lib/pq"
)

// Runtime manages the DBOS runtime lifecycle and the per-stage workflow
// queues. DBOS supplies the guarantees the pipeline relies on:
// at-least-once execution, crash recovery, and independent worker caps
// per stage type.
type Runtime struct {
	dbosContext dbos.DBOSContext
	config      Config
}

// NewRuntime creates a new DBOS runtime instance with one workflow queue
// per pipeline stage.
func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	// DBOS is always required
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DBOS_SYSTEM_DATABASE_URL is required")
	}

	// Apply defaults
	cfg.WithDefaults()

	// Initialize DBOS context
	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, err
	}

	// Registering a queue on the context is all DBOS needs; routing uses
	// the queue name, which is the stage name.
	for stage, concurrency := range cfg.QueueConcurrency {
		dbos.NewWorkflowQueue(dbosCtx, stage,
			dbos.WithWorkerConcurrency(concurrency))
	}

	return &Runtime{
		dbosContext: dbosCtx,
		config:      cfg,
	}, nil
}

// Launch starts the DBOS runtime and workers
func (r *Runtime) Launch() error {
	return dbos.Launch(r.dbosContext)
}

// Shutdown gracefully shuts down the DBOS runtime
func (r *Runtime) Shutdown(timeout time.Duration) {
	dbos.Shutdown(r.dbosContext, timeout)
}

// Context returns the DBOS context
func (r *Runtime) Context() dbos.DBOSContext {
	return r.dbosContext
}

// QueueFor returns the queue name for a stage. Queues are named after
// their stage.
func (r *Runtime) QueueFor(stage string) string {
	return stage
}

// Concurrency returns the configured worker cap for a stage queue.
func (r *Runtime) Concurrency(stage string) int {
	return r.config.QueueConcurrency[stage]
}
