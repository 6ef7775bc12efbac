package drawing

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/oakfield-robotics/stereoslam/geometry"
)

// Track is one temporally-linked observation pair to draw a line segment
// between: From is the previous frame's pixel, To the current one.
type Track struct {
	From, To geometry.Point2d
	Color    geometry.RGBA
}

// DrawTracks overlays one line segment per Track plus a marker at its
// current endpoint, producing the track-lines debug image. The trail is a
// single step deep; an observation only keeps one temporal predecessor.
func DrawTracks(frame *gocv.Mat, tracks []Track, thickness int) *gocv.Mat {
	if len(tracks) == 0 {
		return frame
	}

	drawer := NewDrawer()
	palette := NewPalette(nil)

	for _, t := range tracks {
		c := colorForIndex([]geometry.RGBA{t.Color}, 0, palette)
		from := image.Point{X: int(t.From.X), Y: int(t.From.Y)}
		to := image.Point{X: int(t.To.X), Y: int(t.To.Y)}
		drawer.Line(frame, from, to, c, thickness)
		radius := maxInt(int(math.Round(float64(thickness)*1.5)), 1)
		drawer.Circle(frame, to, radius, thickness, c)
	}
	return frame
}
