package imageproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameSet builds a loader over a 1-based frame slice.
func frameSet(frames ...image.Image) FrameLoader {
	return func(index int) (image.Image, error) {
		return frames[index-1], nil
	}
}

func TestFindRemovableFrames_ConsecutiveDuplicates(t *testing.T) {
	black := solidImage(64, 64, color.Black)
	white := solidImage(64, 64, color.White)

	// Frames 1-3 are identical, 4-5 are identical but differ from 1.
	// The walk keeps 1, drops 2 and 3, keeps 4 on the scene change, and
	// never marks the last frame.
	load := frameSet(black, black, black, white, white)

	removed, err := FindRemovableFrames(load, 5, DefaultSimilarityThreshold)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, removed)
}

func TestFindRemovableFrames_AllDistinct(t *testing.T) {
	load := frameSet(
		solidImage(64, 64, color.Black),
		solidImage(64, 64, color.White),
		solidImage(64, 64, color.Black),
		solidImage(64, 64, color.White),
	)

	removed, err := FindRemovableFrames(load, 4, DefaultSimilarityThreshold)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestFindRemovableFrames_LastFrameNeverRemoved(t *testing.T) {
	black := solidImage(64, 64, color.Black)

	// Every frame is identical; everything but the last is removable.
	load := frameSet(black, black, black, black)

	removed, err := FindRemovableFrames(load, 4, DefaultSimilarityThreshold)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, removed)
	assert.NotContains(t, removed, 4)
}

func TestFindRemovableFrames_MaxThresholdRemovesNothing(t *testing.T) {
	black := solidImage(64, 64, color.Black)

	// Identical frames score exactly 1.0, which is not strictly above a
	// threshold of 1.0, so nothing qualifies.
	load := frameSet(black, black, black)

	removed, err := FindRemovableFrames(load, 3, 1.0)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestFindRemovableFrames_Deterministic(t *testing.T) {
	black := solidImage(64, 64, color.Black)
	white := solidImage(64, 64, color.White)
	load := frameSet(black, black, white, white, black, black)

	first, err := FindRemovableFrames(load, 6, DefaultSimilarityThreshold)
	require.NoError(t, err)
	second, err := FindRemovableFrames(load, 6, DefaultSimilarityThreshold)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFindRemovableFrames_NoFrames(t *testing.T) {
	removed, err := FindRemovableFrames(nil, 0, DefaultSimilarityThreshold)
	require.NoError(t, err)
	assert.Nil(t, removed)
}
