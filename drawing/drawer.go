package drawing

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Drawer provides stateless drawing primitives. All methods modify the
// frame in place.
type Drawer struct{}

// NewDrawer creates a new Drawer instance.
func NewDrawer() *Drawer {
	return &Drawer{}
}

// =============================================================================
// Drawing Primitives
// =============================================================================

// Circle draws a circle on the frame. A zero radius auto-scales to the
// frame size; a zero thickness auto-scales to the radius (-1 fills).
func (d *Drawer) Circle(frame *gocv.Mat, position image.Point, radius int, thickness int, color Color) {
	if radius == 0 {
		maxDim := maxInt(frame.Rows(), frame.Cols())
		radius = maxInt(int(float64(maxDim)*0.005), 1)
	}
	if thickness == 0 {
		thickness = maxInt(radius-1, 1)
	}
	gocv.Circle(frame, position, radius, color.ToRGBA(), thickness)
}

// Text draws text on the frame with an optional offset shadow for
// legibility over busy image content. A zero size or thickness auto-scales
// to the frame.
func (d *Drawer) Text(
	frame *gocv.Mat,
	text string,
	position image.Point,
	size float64,
	color Color,
	thickness int,
	shadow bool,
	shadowColor Color,
	shadowOffset int,
) {
	if size == 0 {
		maxDim := float64(maxInt(frame.Rows(), frame.Cols()))
		size = math.Min(math.Max(maxDim/4000.0, 0.5), 1.5)
	}
	if thickness == 0 {
		thickness = int(math.RoundToEven(size) + 1)
	}

	anchor := image.Point{
		X: position.X + thickness/2,
		Y: position.Y - thickness/2,
	}

	if shadow {
		shadowPos := image.Point{
			X: anchor.X + shadowOffset,
			Y: anchor.Y + shadowOffset,
		}
		gocv.PutTextWithParams(
			frame,
			text,
			shadowPos,
			gocv.FontHersheySimplex,
			size,
			shadowColor.ToRGBA(),
			thickness,
			gocv.LineAA,
			false,
		)
	}

	gocv.PutTextWithParams(
		frame,
		text,
		anchor,
		gocv.FontHersheySimplex,
		size,
		color.ToRGBA(),
		thickness,
		gocv.LineAA,
		false,
	)
}

// Rectangle draws a rectangle on the frame.
func (d *Drawer) Rectangle(frame *gocv.Mat, pt1 image.Point, pt2 image.Point, color Color, thickness int) {
	if thickness == 0 {
		thickness = 1
	}
	rect := image.Rectangle{Min: pt1, Max: pt2}
	gocv.Rectangle(frame, rect, color.ToRGBA(), thickness)
}

// Line draws a line segment on the frame.
func (d *Drawer) Line(frame *gocv.Mat, start image.Point, end image.Point, color Color, thickness int) {
	if thickness == 0 {
		thickness = 1
	}
	gocv.Line(frame, start, end, color.ToRGBA(), thickness)
}

// Cross draws a cross marker (+ shape) on the frame.
func (d *Drawer) Cross(frame *gocv.Mat, center image.Point, radius int, color Color, thickness int) {
	d.Line(frame, image.Point{X: center.X, Y: center.Y - radius}, image.Point{X: center.X, Y: center.Y + radius}, color, thickness)
	d.Line(frame, image.Point{X: center.X - radius, Y: center.Y}, image.Point{X: center.X + radius, Y: center.Y}, color, thickness)
}

// AlphaBlend performs weighted blending of two frames:
// output = alpha*frame1 + beta*frame2 + gamma. A negative beta defaults to
// 1-alpha.
func (d *Drawer) AlphaBlend(frame1 *gocv.Mat, frame2 *gocv.Mat, alpha float64, beta float64, gamma float64) gocv.Mat {
	if beta < 0 {
		beta = 1.0 - alpha
	}
	result := gocv.NewMat()
	gocv.AddWeighted(*frame1, alpha, *frame2, beta, gamma, &result)
	return result
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
