// The palette tables below are ported data:
//
// 1. Tableau Color Palettes (tab10, tab20) - Matplotlib
//    Original Source: https://github.com/matplotlib/matplotlib/blob/main/lib/matplotlib/_cm.py
//    Original Copyright (c) 2002-2011 John D. Hunter
//    Original Copyright (c) 2012- Matplotlib Development Team
//    Original License: Matplotlib License
//
// 2. Colorblind Palette - Seaborn
//    Original Source: https://github.com/mwaskom/seaborn/blob/master/seaborn/palettes.py
//    Original Copyright (c) 2012-2023, Michael L. Waskom
//    Original License: BSD-3-Clause

// Package imaging holds the color tables the drawing overlays pick from: a
// small set of named colors plus the tab10/tab20/colorblind palettes used
// for deterministic per-landmark coloring.
package imaging

import (
	"github.com/oakfield-robotics/stereoslam/color"
)

// Named colors (BGR, matching the OpenCV byte order the rest of the
// drawing layer uses). The set covers what overlay callers actually ask
// for by name; palette-driven coloring handles everything else.
var (
	Black   = color.Color{B: 0, G: 0, R: 0}
	White   = color.Color{B: 255, G: 255, R: 255}
	Gray    = color.Color{B: 128, G: 128, R: 128}
	Silver  = color.Color{B: 192, G: 192, R: 192}
	Red     = color.Color{B: 0, G: 0, R: 255}
	DarkRed = color.Color{B: 0, G: 0, R: 139}
	Orange  = color.Color{B: 0, G: 165, R: 255}
	Gold    = color.Color{B: 0, G: 215, R: 255}
	Yellow  = color.Color{B: 0, G: 255, R: 255}
	Green   = color.Color{B: 0, G: 128, R: 0}
	Lime    = color.Color{B: 0, G: 255, R: 0}
	Olive   = color.Color{B: 0, G: 128, R: 128}
	Teal    = color.Color{B: 128, G: 128, R: 0}
	Cyan    = color.Color{B: 255, G: 255, R: 0}
	SkyBlue = color.Color{B: 235, G: 206, R: 135}
	Blue    = color.Color{B: 255, G: 0, R: 0}
	Navy    = color.Color{B: 128, G: 0, R: 0}
	Purple  = color.Color{B: 128, G: 0, R: 128}
	Magenta = color.Color{B: 255, G: 0, R: 255}
	Violet  = color.Color{B: 238, G: 130, R: 238}
	Pink    = color.Color{B: 203, G: 192, R: 255}
	HotPink = color.Color{B: 180, G: 105, R: 255}
	Brown   = color.Color{B: 42, G: 42, R: 165}
	Maroon  = color.Color{B: 0, G: 0, R: 128}
)

// ColorMap maps lowercase color names to their values, for
// case-insensitive lookup by name.
var ColorMap = map[string]color.Color{
	"black":   Black,
	"white":   White,
	"gray":    Gray,
	"grey":    Gray,
	"silver":  Silver,
	"red":     Red,
	"darkred": DarkRed,
	"orange":  Orange,
	"gold":    Gold,
	"yellow":  Yellow,
	"green":   Green,
	"lime":    Lime,
	"olive":   Olive,
	"teal":    Teal,
	"cyan":    Cyan,
	"skyblue": SkyBlue,
	"blue":    Blue,
	"navy":    Navy,
	"purple":  Purple,
	"magenta": Magenta,
	"violet":  Violet,
	"pink":    Pink,
	"hotpink": HotPink,
	"brown":   Brown,
	"maroon":  Maroon,
}

// Tab10 palette (10 colors from Matplotlib).
var Tab10 = []color.Color{
	{B: 214, G: 127, R: 31},  // Blue
	{B: 134, G: 86, R: 255},  // Orange
	{B: 113, G: 178, R: 44},  // Green
	{B: 83, G: 64, R: 214},   // Red
	{B: 190, G: 117, R: 148}, // Purple
	{B: 107, G: 76, R: 140},  // Brown
	{B: 218, G: 127, R: 227}, // Pink
	{B: 114, G: 114, R: 127}, // Gray
	{B: 51, G: 176, R: 188},  // Olive
	{B: 201, G: 195, R: 23},  // Cyan
}

// Tab20 palette (20 colors from Matplotlib).
var Tab20 = []color.Color{
	{B: 214, G: 127, R: 31}, {B: 228, G: 173, R: 95}, // Blue
	{B: 134, G: 86, R: 255}, {B: 184, G: 154, R: 255}, // Orange
	{B: 113, G: 178, R: 44}, {B: 153, G: 208, R: 104}, // Green
	{B: 83, G: 64, R: 214}, {B: 133, G: 112, R: 237}, // Red
	{B: 190, G: 117, R: 148}, {B: 216, G: 165, R: 188}, // Purple
	{B: 107, G: 76, R: 140}, {B: 157, G: 126, R: 186}, // Brown
	{B: 218, G: 127, R: 227}, {B: 235, G: 172, R: 243}, // Pink
	{B: 114, G: 114, R: 127}, {B: 168, G: 168, R: 179}, // Gray
	{B: 51, G: 176, R: 188}, {B: 111, G: 216, R: 222}, // Olive
	{B: 201, G: 195, R: 23}, {B: 231, G: 227, R: 99}, // Cyan
}

// Colorblind palette (8 colorblind-friendly colors from Seaborn).
var Colorblind = []color.Color{
	{B: 30, G: 119, R: 180},  // Blue
	{B: 255, G: 158, R: 74},  // Orange
	{B: 153, G: 121, R: 44},  // Green
	{B: 181, G: 77, R: 204},  // Purple
	{B: 107, G: 74, R: 222},  // Brown
	{B: 217, G: 127, R: 227}, // Pink
	{B: 128, G: 128, R: 128}, // Gray
	{B: 0, G: 153, R: 214},   // Cyan
}
