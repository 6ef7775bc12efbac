/*
Package drawing renders optional debug overlays for the tracking/mapping
pipeline on top of gocv.Mat frames: keypoint markers, inter-frame track
lines, and stereo correspondence lines between the left and right images
of a pair.

These overlays have no effect on tracking or mapping. They exist purely
so a caller (a CLI tool, a future GUI) can request a debug image for a
processed stereo pair.

# Basic Usage

	img := drawing.DrawKeypoints(&left, points, nil, 3, 1)
	pair := drawing.DrawStereoCorrespondences(left, right, matches)
	defer pair.Close()

# Components

Drawer: stateless primitive operations (circle, line, text, rectangle).
Color / Palette: BGR colors and deterministic per-landmark color assignment.
*/
package drawing
