// Package color holds the byte-ordered color type the overlay layer draws
// with. Overlay colors travel as BGR triples because that is the byte
// order of the image buffers they are painted onto; conversion to the
// RGBA form the drawing primitives take happens at the last moment, in
// ToRGBA.
package color

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Color is one drawable color, stored B-G-R.
type Color struct {
	B, G, R uint8
}

// ToRGBA converts the color to the stdlib RGBA form, fully opaque.
func (c Color) ToRGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// The handful of colors overlay code asks for by name; everything else
// comes from the palettes in internal/imaging.
var (
	Black   = Color{}
	White   = Color{B: 255, G: 255, R: 255}
	Red     = Color{R: 255}
	Green   = Color{G: 128}
	Blue    = Color{B: 255}
	HotPink = Color{B: 180, G: 105, R: 255}
)

// HexToBGR parses "#RRGGBB" or shorthand "#RGB" (the leading # is
// optional) into a Color.
func HexToBGR(hex string) (Color, error) {
	hex = strings.TrimPrefix(hex, "#")

	var channels [3]string
	switch len(hex) {
	case 6:
		channels = [3]string{hex[0:2], hex[2:4], hex[4:6]}
	case 3:
		for i := 0; i < 3; i++ {
			channels[i] = string(hex[i]) + string(hex[i])
		}
	default:
		return Color{}, fmt.Errorf("color: hex %q must be 3 or 6 digits", hex)
	}

	var rgb [3]uint8
	for i, ch := range channels {
		v, err := strconv.ParseUint(ch, 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("color: invalid hex %q", hex)
		}
		rgb[i] = uint8(v)
	}
	return Color{R: rgb[0], G: rgb[1], B: rgb[2]}, nil
}
