package testutil

import (
	"gocv.io/x/gocv"
)

// ImageSimilarity returns the fraction of pixels (0.0 to 1.0) at which the
// two images agree within pixelTolerance on every channel. Images of
// different sizes score 0. The per-channel tolerance absorbs anti-aliasing
// differences when comparing rendered overlays.
func ImageSimilarity(img1, img2 *gocv.Mat, pixelTolerance int) float64 {
	if img1.Rows() != img2.Rows() || img1.Cols() != img2.Cols() || img1.Channels() != img2.Channels() {
		return 0.0
	}

	total := img1.Rows() * img1.Cols()
	matching := 0
	for y := 0; y < img1.Rows(); y++ {
		for x := 0; x < img1.Cols(); x++ {
			p1 := img1.GetVecbAt(y, x)
			p2 := img2.GetVecbAt(y, x)

			ok := true
			for c := 0; c < img1.Channels(); c++ {
				diff := int(p1[c]) - int(p2[c])
				if diff < 0 {
					diff = -diff
				}
				if diff > pixelTolerance {
					ok = false
					break
				}
			}
			if ok {
				matching++
			}
		}
	}
	return float64(matching) / float64(total)
}
