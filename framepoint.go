package stereoslam

// framePointRef is a handle to a FramePoint living in another MonoFrame's
// arena (or, for same-frame handles, the same one). Resolving it costs one
// slice lookup and a generation check; a ref with no frame, or whose slot
// has been freed or reused, resolves to nil. Releasing a frame's image
// buffers does not touch its point arena, so such refs still resolve.
type framePointRef struct {
	frame  *MonoFrame
	handle framePointHandle
}

func (r framePointRef) resolve() *FramePoint {
	if r.frame == nil {
		return nil
	}
	return r.frame.points.get(r.handle)
}

// mapPointRef is a handle to a MapPoint living in a Map's landmark arena.
type mapPointRef struct {
	owner  *Map
	handle mapPointHandle
}

func (r mapPointRef) resolve() *MapPoint {
	if r.owner == nil {
		return nil
	}
	return r.owner.points.get(r.handle)
}

// FramePoint is a single 2-D observation bound to one MonoFrame, optionally
// linked to a stereo partner on the other side of the same pair, to the
// next/previous observation of the same physical point in an adjacent
// keyframe, and to the MapPoint landmark it has been triangulated against.
//
// All peer references are weak: once the peer's owning frame or landmark
// is gone, the reference resolves to absent rather than panicking or
// dereferencing freed memory.
type FramePoint struct {
	self  framePointHandle
	frame *MonoFrame

	pixel Point2d
	color RGBA

	stereo framePointRef
	next   framePointRef
	prev   framePointRef
	point  mapPointRef
}

// Pixel returns the 2-D image coordinate of this observation.
func (fp *FramePoint) Pixel() Point2d { return fp.pixel }

// Color returns the sampled pixel color at the time of detection.
func (fp *FramePoint) Color() RGBA { return fp.color }

// Frame returns the MonoFrame that owns this observation.
func (fp *FramePoint) Frame() *MonoFrame { return fp.frame }

// Stereo returns the linked observation on the other side of the same
// stereo pair, or nil if none (or if it has since been removed).
func (fp *FramePoint) Stereo() *FramePoint { return fp.stereo.resolve() }

// Next returns the linked observation of the same physical point in the
// following keyframe, or nil.
func (fp *FramePoint) Next() *FramePoint { return fp.next.resolve() }

// Prev returns the linked observation of the same physical point in the
// preceding keyframe, or nil.
func (fp *FramePoint) Prev() *FramePoint { return fp.prev.resolve() }

// MapPoint returns the triangulated landmark this observation has been
// associated with, or nil if it is still a bare 2-D detection.
func (fp *FramePoint) MapPoint() *MapPoint { return fp.point.resolve() }

// setStereo establishes a mutual stereo link: if a.stereo = b then
// b.stereo = a. Stale reciprocal links on either side are severed first so
// re-matching can never leave a one-directional link behind.
func (fp *FramePoint) setStereo(other *FramePoint) {
	if old := fp.Stereo(); old != nil && old != other {
		old.stereo = framePointRef{}
	}
	if old := other.Stereo(); old != nil && old != fp {
		old.stereo = framePointRef{}
	}
	fp.stereo = framePointRef{frame: other.frame, handle: other.self}
	other.stereo = framePointRef{frame: fp.frame, handle: fp.self}
}

// setTemporalLink establishes a.next = b, b.prev = a. Stale reciprocal
// links on either side are severed first, so re-tracking an observation
// that was already linked to a frame that never became a keyframe cannot
// leave a one-directional link behind.
func setTemporalLink(prev, next *FramePoint) {
	if old := prev.Next(); old != nil && old != next {
		old.prev = framePointRef{}
	}
	if old := next.Prev(); old != nil && old != prev {
		old.next = framePointRef{}
	}
	prev.next = framePointRef{frame: next.frame, handle: next.self}
	next.prev = framePointRef{frame: prev.frame, handle: prev.self}
}

// clearTemporalLinks severs this observation's prev/next links without
// touching the peers' own outgoing links to other observations. Used by
// PnP outlier rejection: the observation survives as a bare 2-D point, it
// just stops propagating a track.
func (fp *FramePoint) clearTemporalLinks() {
	if prev := fp.Prev(); prev != nil {
		prev.next = framePointRef{}
	}
	if next := fp.Next(); next != nil {
		next.prev = framePointRef{}
	}
	fp.prev = framePointRef{}
	fp.next = framePointRef{}
}

// setMapPoint associates this observation alone with a triangulated
// landmark; linked observations are not updated here.
func (fp *FramePoint) setMapPoint(owner *Map, handle mapPointHandle) {
	fp.point = mapPointRef{owner: owner, handle: handle}
}

// clearMapPoint detaches this observation from its landmark, used for PnP
// outliers and during pruning.
func (fp *FramePoint) clearMapPoint() {
	fp.point = mapPointRef{}
}

// propagateMapPoint copies this observation's landmark reference onto its
// stereo partner and its chain of next-observations, so every observation
// of the same physical point ends up referencing the same landmark.
func (fp *FramePoint) propagateMapPoint() {
	ref := fp.point
	if owner := ref.owner; owner != nil {
		if stereo := fp.Stereo(); stereo != nil && stereo.MapPoint() == nil {
			stereo.point = ref
		}
		for cur := fp.Next(); cur != nil; cur = cur.Next() {
			if cur.MapPoint() != nil {
				break
			}
			cur.point = ref
		}
	}
}
