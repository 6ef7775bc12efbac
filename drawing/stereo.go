package drawing

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/oakfield-robotics/stereoslam/geometry"
)

// Correspondence is one matched left/right pixel pair from stereo
// matching.
type Correspondence struct {
	Left, Right geometry.Point2d
}

// DrawStereoCorrespondences composites left and right frames side by side
// and draws a line between each matched pair. The returned Mat is newly
// allocated; the caller must Close it.
func DrawStereoCorrespondences(left, right gocv.Mat, matches []Correspondence) gocv.Mat {
	canvas := gocv.NewMatWithSize(maxInt(left.Rows(), right.Rows()), left.Cols()+right.Cols(), left.Type())

	leftROI := canvas.Region(image.Rect(0, 0, left.Cols(), left.Rows()))
	left.CopyTo(&leftROI)
	leftROI.Close()

	rightROI := canvas.Region(image.Rect(left.Cols(), 0, left.Cols()+right.Cols(), right.Rows()))
	right.CopyTo(&rightROI)
	rightROI.Close()

	drawer := NewDrawer()
	palette := NewPalette(nil)
	offset := left.Cols()

	for i, m := range matches {
		c := palette.ChooseColor(i)
		from := image.Point{X: int(m.Left.X), Y: int(m.Left.Y)}
		to := image.Point{X: int(m.Right.X) + offset, Y: int(m.Right.Y)}
		drawer.Line(&canvas, from, to, c, 1)
		drawer.Circle(&canvas, from, 3, 1, c)
		drawer.Circle(&canvas, to, 3, 1, c)
	}

	return canvas
}
