package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/sbbp/pipeline/internal/imageproc"
	"github.com/sbbp/pipeline/internal/metrics"
	"github.com/sbbp/pipeline/internal/storage"
	"github.com/sbbp/pipeline/internal/store"
	"github.com/sbbp/pipeline/pkg/pipeline"
)

const (
	// frameDownloadConcurrency bounds the frame fetch fan-out.
	frameDownloadConcurrency = 16
	// thumbnailConcurrency bounds per-frame thumbnail generation/upload.
	thumbnailConcurrency = 8
)

// AnalyzeStage marks near-duplicate frames via structural similarity and
// generates responsive thumbnails for every frame. It is a side branch of
// the pipeline: it augments the images metadata and never transitions the
// processing state.
type AnalyzeStage struct {
	store   store.Store
	storage *storage.AppStorage

	// Threshold is the similarity score above which a frame is redundant.
	Threshold float64
	// Widths is the configured thumbnail width set.
	Widths []int
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// NewAnalyzeStage wires the analyze stage.
func NewAnalyzeStage(st store.Store, appStorage *storage.AppStorage) *AnalyzeStage {
	return &AnalyzeStage{
		store:     st,
		storage:   appStorage,
		Threshold: imageproc.DefaultSimilarityThreshold,
		Widths:    imageproc.ThumbnailWidths,
	}
}

// Name returns the stage name.
func (s *AnalyzeStage) Name() string { return pipeline.StageAnalyze }

// Execute runs the analyze stage.
func (s *AnalyzeStage) Execute(wctx *Context, raw json.RawMessage) ([]pipeline.NextJob, error) {
	var payload pipeline.AnalyzePayload
	if err := decodePayload(raw, &payload); err != nil {
		return nil, err
	}
	return nil, s.run(wctx, payload)
}

func (s *AnalyzeStage) run(wctx *Context, payload pipeline.AnalyzePayload) error {
	ctx := wctx.Ctx
	log.Printf("[%s] Analyzing %d frames for video %s", wctx.RunID, payload.MaxIndex, payload.ID)

	if payload.MaxIndex < 1 {
		// Nothing to compare or resize; still commit the configured
		// widths so the record shape is uniform.
		return s.commit(wctx, payload.ID, nil)
	}

	scratch, err := os.MkdirTemp("", "analyze-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	// Simpler to download every frame up front and process from disk than
	// to pipeline the fetches into the comparison walk.
	dg, dgctx := errgroup.WithContext(ctx)
	dg.SetLimit(frameDownloadConcurrency)
	for i := 1; i <= payload.MaxIndex; i++ {
		dg.Go(func() error {
			filename := pipeline.ImageFilename(i)
			key := payload.StoragePrefix + "/" + filename
			if err := s.storage.Images.StreamToDisk(dgctx, key, filepath.Join(scratch, filename)); err != nil {
				return fmt.Errorf("download %s: %w", key, err)
			}
			return nil
		})
	}
	if err := dg.Wait(); err != nil {
		return err
	}

	load := func(index int) (image.Image, error) {
		return imageproc.OpenFrame(filepath.Join(scratch, pipeline.ImageFilename(index)))
	}

	// The similarity walk is sequential by data dependency; thumbnails
	// are independent per frame. Run the two phases side by side.
	var removed []int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		removed, err = imageproc.FindRemovableFrames(load, payload.MaxIndex, s.Threshold)
		return err
	})
	g.Go(func() error {
		return s.thumbnailPipeline(gctx, payload, load)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	return s.commit(wctx, payload.ID, removed)
}

// thumbnailPipeline generates and uploads every thumbnail. All-or-nothing:
// one failed encode or upload fails the batch and nothing is committed.
func (s *AnalyzeStage) thumbnailPipeline(ctx context.Context, payload pipeline.AnalyzePayload, load imageproc.FrameLoader) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(thumbnailConcurrency)
	for i := 1; i <= payload.MaxIndex; i++ {
		g.Go(func() error {
			img, err := load(i)
			if err != nil {
				return err
			}
			thumbs, err := imageproc.GenerateThumbnails(gctx, img, i, s.Widths)
			if err != nil {
				return err
			}
			for _, thumb := range thumbs {
				key := payload.StoragePrefix + "/" + thumb.Filename
				if err := s.storage.Images.Put(gctx, key, bytes.NewReader(thumb.Data)); err != nil {
					return fmt.Errorf("upload %s: %w", key, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *AnalyzeStage) commit(wctx *Context, id string, removed []int) error {
	if err := s.store.RecordAnalysis(wctx.Ctx, id, s.Widths, removed); err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}
	if s.Metrics != nil {
		s.Metrics.FramesRemoved.Add(float64(len(removed)))
	}
	log.Printf("[%s] Marked %d frames removed for video %s", wctx.RunID, len(removed), id)
	return nil
}
