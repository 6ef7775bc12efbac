package stereoslam

// MapPoint is a triangulated 3-D landmark owned by exactly one Map. It is
// created on first successful triangulation, updated in place on
// re-triangulation, and removed from the map (never individually
// "destroyed" by a caller) once pruning decides it is no longer useful.
type MapPoint struct {
	self mapPointHandle

	Position Point3d
	Color    RGBA

	// observationCount is the number of FramePoints currently pointing at
	// this landmark via a resolvable reference. It is recomputed by
	// Map.countObservationsLocked rather than incremented/decremented inline,
	// since a FramePoint can go from live to dangling-absent without this
	// landmark being told.
	observationCount int
}

// ObservationCount returns the last-known number of live observations of
// this landmark, as computed by the owning Map's most recent pruning pass.
func (mp *MapPoint) ObservationCount() int {
	return mp.observationCount
}

// update overwrites the landmark's position and color after
// re-triangulation.
func (mp *MapPoint) update(pos Point3d, color RGBA) {
	mp.Position = pos
	mp.Color = color
}
