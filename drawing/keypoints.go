package drawing

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/oakfield-robotics/stereoslam/geometry"
)

// DrawKeypoints overlays one marker per 2-D point, producing the keypoints
// debug image. Colors, if non-nil, must be the same length as points; nil
// falls back to a palette color chosen by each point's index.
func DrawKeypoints(frame *gocv.Mat, points []geometry.Point2d, colors []geometry.RGBA, radius, thickness int) *gocv.Mat {
	if len(points) == 0 {
		return frame
	}

	drawer := NewDrawer()
	palette := NewPalette(nil)

	for i, pt := range points {
		c := colorForIndex(colors, i, palette)
		center := image.Point{X: int(pt.X), Y: int(pt.Y)}
		drawer.Circle(frame, center, radius, thickness, c)
	}
	return frame
}

// colorForIndex resolves the drawing color for point i: the caller-supplied
// RGBA if present and non-zero, otherwise a deterministic palette color.
func colorForIndex(colors []geometry.RGBA, i int, palette *Palette) Color {
	if i < len(colors) {
		rgba := colors[i]
		if rgba.A != 0 || rgba.R != 0 || rgba.G != 0 || rgba.B != 0 {
			return Color{R: rgba.R, G: rgba.G, B: rgba.B}
		}
	}
	return palette.ChooseColor(i)
}
