// Package imageproc holds the frame-deduplication algorithm and thumbnail
// generation used by the analyze stage.
package imageproc

import (
	"fmt"
	"image"
)

// SSIM window size and stability constants, using the conventional
// k1=0.01, k2=0.03 parameters over an 8-bit dynamic range.
const (
	ssimWindow = 8
	ssimC1     = (0.01 * 255) * (0.01 * 255)
	ssimC2     = (0.03 * 255) * (0.03 * 255)
)

// SSIM computes a structural-similarity score between two images of equal
// dimensions on the luminance channel, averaged over non-overlapping 8x8
// windows. The result is deterministic and symmetric; identical images
// score exactly 1.0.
func SSIM(a, b image.Image) (float64, error) {
	aw, ah := a.Bounds().Dx(), a.Bounds().Dy()
	bw, bh := b.Bounds().Dx(), b.Bounds().Dy()
	if aw != bw || ah != bh {
		return 0, fmt.Errorf("image dimensions differ: %dx%d vs %dx%d", aw, ah, bw, bh)
	}
	if aw == 0 || ah == 0 {
		return 0, fmt.Errorf("empty image")
	}

	ga := grayPlane(a)
	gb := grayPlane(b)

	var total float64
	var windows int
	for y := 0; y < ah; y += ssimWindow {
		for x := 0; x < aw; x += ssimWindow {
			w := min(ssimWindow, aw-x)
			h := min(ssimWindow, ah-y)
			total += windowSSIM(ga, gb, aw, x, y, w, h)
			windows++
		}
	}
	return total / float64(windows), nil
}

func windowSSIM(a, b []float64, stride, x0, y0, w, h int) float64 {
	n := float64(w * h)

	var sumA, sumB float64
	for y := y0; y < y0+h; y++ {
		row := y * stride
		for x := x0; x < x0+w; x++ {
			sumA += a[row+x]
			sumB += b[row+x]
		}
	}
	muA := sumA / n
	muB := sumB / n

	var varA, varB, cov float64
	for y := y0; y < y0+h; y++ {
		row := y * stride
		for x := x0; x < x0+w; x++ {
			da := a[row+x] - muA
			db := b[row+x] - muB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n
	varB /= n
	cov /= n

	num := (2*muA*muB + ssimC1) * (2*cov + ssimC2)
	den := (muA*muA + muB*muB + ssimC1) * (varA + varB + ssimC2)
	return num / den
}

// grayPlane converts an image to a row-major luminance plane in [0,255].
func grayPlane(img image.Image) []float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]float64, w*h)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma weights, on 16-bit channel values.
			out[i] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
			i++
		}
	}
	return out
}
