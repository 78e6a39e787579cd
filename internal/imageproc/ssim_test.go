package imageproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestSSIM_IdenticalImages(t *testing.T) {
	img := gradientImage(64, 64)

	score, err := SSIM(img, img)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestSSIM_VeryDifferentImages(t *testing.T) {
	black := solidImage(64, 64, color.Black)
	white := solidImage(64, 64, color.White)

	score, err := SSIM(black, white)
	require.NoError(t, err)
	assert.Less(t, score, 0.1)
}

func TestSSIM_Symmetric(t *testing.T) {
	a := gradientImage(64, 64)
	b := solidImage(64, 64, color.Gray{128})

	ab, err := SSIM(a, b)
	require.NoError(t, err)
	ba, err := SSIM(b, a)
	require.NoError(t, err)
	assert.InDelta(t, ab, ba, 1e-12)
}

func TestSSIM_DimensionMismatch(t *testing.T) {
	a := solidImage(64, 64, color.Black)
	b := solidImage(32, 64, color.Black)

	_, err := SSIM(a, b)
	assert.Error(t, err)
}

func TestSSIM_NonWindowAlignedDimensions(t *testing.T) {
	// 70x70 does not divide evenly into 8x8 windows; partial edge
	// windows must still be handled.
	img := gradientImage(70, 70)

	score, err := SSIM(img, img)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}
