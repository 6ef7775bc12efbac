package stereoslam

import "sync"

// =============================================================================
// idFactory - Sequential ID Generation
// =============================================================================

// idFactory generates monotonically increasing, instance-unique identifiers.
// Each arena carries its own factory, so ID spaces are
// independent per instance.
type idFactory struct {
	mu    sync.Mutex
	count uint64
}

// next returns the next unused ID, starting at 1 (0 is reserved to mean
// "absent" in zero-valued handles).
func (f *idFactory) next() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return f.count
}

// =============================================================================
// framePointArena - Arena of FramePoint observations
// =============================================================================

// framePointHandle is an index+generation reference into a framePointArena.
// Deleting an entry bumps its generation, so a stale handle is detected
// cheaply instead of dereferencing a dangling pointer.
type framePointHandle struct {
	index      int
	generation uint64
}

// valid reports whether the handle is non-zero. It does not by itself prove
// the slot is still live; call framePointArena.get to resolve that.
func (h framePointHandle) valid() bool {
	return h.generation != 0
}

type framePointSlot struct {
	generation uint64
	live       bool
	point      *FramePoint
}

// framePointArena owns every FramePoint ever created by a single MonoFrame.
// Cross-references between FramePoints (stereo/next/prev/map point) are
// stored as handles resolved through the owning frame's arena, never as Go
// pointers, so link symmetry can be checked by resolving a handle and
// comparing identities rather than by walking live pointer cycles.
type framePointArena struct {
	ids   idFactory
	slots []framePointSlot
}

func newFramePointArena() *framePointArena {
	return &framePointArena{}
}

// alloc creates a new FramePoint and returns its handle.
func (a *framePointArena) alloc(pixel Point2d, color RGBA) (framePointHandle, *FramePoint) {
	gen := a.ids.next()
	fp := &FramePoint{pixel: pixel, color: color}
	slot := framePointSlot{generation: gen, live: true, point: fp}
	a.slots = append(a.slots, slot)
	idx := len(a.slots) - 1
	fp.self = framePointHandle{index: idx, generation: gen}
	return fp.self, fp
}

// get resolves a handle to its FramePoint, or nil if the handle is stale
// (the slot was freed, or never existed in this arena).
func (a *framePointArena) get(h framePointHandle) *FramePoint {
	if !h.valid() || h.index < 0 || h.index >= len(a.slots) {
		return nil
	}
	slot := a.slots[h.index]
	if !slot.live || slot.generation != h.generation {
		return nil
	}
	return slot.point
}

// all returns every live FramePoint in the arena, in creation order.
func (a *framePointArena) all() []*FramePoint {
	out := make([]*FramePoint, 0, len(a.slots))
	for _, s := range a.slots {
		if s.live {
			out = append(out, s.point)
		}
	}
	return out
}

// =============================================================================
// mapPointArena - Arena of MapPoint landmarks owned by one Map
// =============================================================================

type mapPointHandle struct {
	index      int
	generation uint64
}

func (h mapPointHandle) valid() bool { return h.generation != 0 }

type mapPointSlot struct {
	generation uint64
	live       bool
	point      *MapPoint
}

// mapPointArena owns every MapPoint landmark of one Map. Removing a
// landmark during pruning frees its slot and bumps the generation;
// FramePoints still holding the old handle resolve it to nil.
type mapPointArena struct {
	ids   idFactory
	slots []mapPointSlot
}

func newMapPointArena() *mapPointArena {
	return &mapPointArena{}
}

func (a *mapPointArena) alloc(pos Point3d, color RGBA) (mapPointHandle, *MapPoint) {
	gen := a.ids.next()
	mp := &MapPoint{Position: pos, Color: color}
	slot := mapPointSlot{generation: gen, live: true, point: mp}
	a.slots = append(a.slots, slot)
	idx := len(a.slots) - 1
	mp.self = mapPointHandle{index: idx, generation: gen}
	return mp.self, mp
}

func (a *mapPointArena) get(h mapPointHandle) *MapPoint {
	if !h.valid() || h.index < 0 || h.index >= len(a.slots) {
		return nil
	}
	slot := a.slots[h.index]
	if !slot.live || slot.generation != h.generation {
		return nil
	}
	return slot.point
}

// free removes a MapPoint from the arena; any handle referencing it
// subsequently resolves to nil via get.
func (a *mapPointArena) free(h mapPointHandle) {
	if !h.valid() || h.index < 0 || h.index >= len(a.slots) {
		return
	}
	if a.slots[h.index].generation == h.generation {
		a.slots[h.index].live = false
		a.slots[h.index].point = nil
	}
}

// all returns every live MapPoint in the arena.
func (a *mapPointArena) all() []*MapPoint {
	out := make([]*MapPoint, 0, len(a.slots))
	for _, s := range a.slots {
		if s.live {
			out = append(out, s.point)
		}
	}
	return out
}
