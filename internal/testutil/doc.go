// Package testutil provides the assertion helpers this module's tests
// share: tolerance-based scalar and matrix comparison, and pixel-level
// image similarity for the drawing overlays.
package testutil
