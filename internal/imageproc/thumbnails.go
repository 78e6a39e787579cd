package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/semaphore"

	"github.com/sbbp/pipeline/pkg/pipeline"
)

// ThumbnailWidths is the configured set of responsive thumbnail sizes.
var ThumbnailWidths = []int{720, 1280, 1920}

// thumbnailQuality is the JPEG quality for encoded thumbnails.
const thumbnailQuality = 80

// encodePool bounds concurrent resize/encode work to the CPU count, so
// CPU-bound image work cannot starve the I/O-bound parts of a stage.
var encodePool = semaphore.NewWeighted(int64(runtime.NumCPU()))

// Thumbnail is one encoded resized copy of a frame.
type Thumbnail struct {
	Filename string
	Width    int
	Data     []byte
}

// GenerateThumbnails produces a resized JPEG for every configured width
// strictly smaller than the source frame's width. A source narrower than
// every configured width yields no thumbnails.
func GenerateThumbnails(ctx context.Context, img image.Image, index int, widths []int) ([]Thumbnail, error) {
	if err := encodePool.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer encodePool.Release(1)

	srcWidth := img.Bounds().Dx()
	var out []Thumbnail
	for _, width := range widths {
		if srcWidth <= width {
			continue
		}

		resized := imaging.Resize(img, width, 0, imaging.Lanczos)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
			return nil, fmt.Errorf("encode %s at width %d: %w", pipeline.ImageFilename(index), width, err)
		}
		out = append(out, Thumbnail{
			Filename: pipeline.ThumbnailFilename(index, width),
			Width:    width,
			Data:     buf.Bytes(),
		})
	}
	return out, nil
}
