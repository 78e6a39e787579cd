package workflows

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sbbp/pipeline/internal/extcmd"
	"github.com/sbbp/pipeline/internal/storage"
)

// scriptedRunner fakes external binaries by running a Go function against
// the invocation's scratch directory.
type scriptedRunner struct {
	run func(ctx context.Context, spec extcmd.Spec) (extcmd.Result, error)
}

func (r scriptedRunner) Run(ctx context.Context, spec extcmd.Spec) (extcmd.Result, error) {
	return r.run(ctx, spec)
}

func memoryAppStorage() (*storage.AppStorage, *storage.MemoryStorage, *storage.MemoryStorage) {
	uploads := storage.NewMemoryStorage()
	images := storage.NewMemoryStorage()
	return &storage.AppStorage{Uploads: uploads, Images: images}, uploads, images
}

func testContext() *Context {
	return &Context{Ctx: context.Background(), RunID: "test-run"}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
