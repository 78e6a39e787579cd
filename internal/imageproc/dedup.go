package imageproc

import (
	"fmt"
	"image"
	"os"

	// Frame images are WebP; thumbnails round-trip through JPEG/PNG in
	// tests. Register all three decoders.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// DefaultSimilarityThreshold is the score above which a frame is
// considered redundant with the kept reference.
const DefaultSimilarityThreshold = 0.90

// FrameLoader returns the decoded frame at a given index.
type FrameLoader func(index int) (image.Image, error)

// FindRemovableFrames walks frames 1..=maxIndex in order and returns the
// indices that are visually redundant with the most recently kept frame.
// The reference is seeded from the last frame; a frame scoring strictly
// above threshold against the reference is marked removed, otherwise it is
// kept and becomes the new reference. The walk is sequential on purpose:
// each decision depends on the previous kept reference. Index maxIndex is
// never in the result.
func FindRemovableFrames(load FrameLoader, maxIndex int, threshold float64) ([]int, error) {
	if maxIndex < 1 {
		return nil, nil
	}

	reference, err := load(maxIndex)
	if err != nil {
		return nil, fmt.Errorf("load seed frame %d: %w", maxIndex, err)
	}

	var removed []int
	for i := 1; i <= maxIndex; i++ {
		frame, err := load(i)
		if err != nil {
			return nil, fmt.Errorf("load frame %d: %w", i, err)
		}

		score, err := SSIM(reference, frame)
		if err != nil {
			return nil, fmt.Errorf("compare frame %d: %w", i, err)
		}
		if score > threshold {
			// Too similar to the previous kept frame; drop it. The seed
			// frame itself stays out of the removable range.
			if i != maxIndex {
				removed = append(removed, i)
			}
		} else {
			// Different enough to keep; it becomes the new reference.
			reference = frame
		}
	}
	return removed, nil
}

// OpenFrame decodes a frame image from disk.
func OpenFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
