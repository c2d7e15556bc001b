package ecs

import (
	"math/bits"

	"github.com/kelindar/bitmap"
)

// Access is the statically computed signature of what a system touches.
// It is built once at registration and reused every tick.
type Access struct {
	componentReads  bitmap.Bitmap
	componentWrites bitmap.Bitmap
	resourceReads   bitmap.Bitmap
	resourceWrites  bitmap.Bitmap
	commands        bool
}

func (a *Access) readComponent(id ComponentID) {
	a.componentReads.Set(uint32(id))
}

func (a *Access) writeComponent(id ComponentID) {
	a.componentWrites.Set(uint32(id))
}

func (a *Access) readResource(id uint32) {
	a.resourceReads.Set(id)
}

func (a *Access) writeResource(id uint32) {
	a.resourceWrites.Set(id)
}

// ReadsComponent reports whether the component is read (and not written).
func (a *Access) ReadsComponent(id ComponentID) bool {
	return a.componentReads.Contains(uint32(id))
}

// WritesComponent reports whether the component is written.
func (a *Access) WritesComponent(id ComponentID) bool {
	return a.componentWrites.Contains(uint32(id))
}

// ReadsResource reports whether the resource is read.
func (a *Access) ReadsResource(id uint32) bool {
	return a.resourceReads.Contains(id)
}

// WritesResource reports whether the resource is written.
func (a *Access) WritesResource(id uint32) bool {
	return a.resourceWrites.Contains(id)
}

// IssuesCommands reports whether the system records deferred commands.
func (a *Access) IssuesCommands() bool {
	return a.commands
}

// ComponentReads lists the component IDs read.
func (a *Access) ComponentReads() []ComponentID {
	return toComponentIDs(members(a.componentReads))
}

// ComponentWrites lists the component IDs written.
func (a *Access) ComponentWrites() []ComponentID {
	return toComponentIDs(members(a.componentWrites))
}

// ResourceReads lists the resource IDs read.
func (a *Access) ResourceReads() []uint32 {
	return members(a.resourceReads)
}

// ResourceWrites lists the resource IDs written.
func (a *Access) ResourceWrites() []uint32 {
	return members(a.resourceWrites)
}

// IsReadOnly reports whether the access contains no writes.
func (a *Access) IsReadOnly() bool {
	return a.componentWrites.Count() == 0 && a.resourceWrites.Count() == 0
}

// Conflicts reports whether a and other cannot run at the same time: they
// share a write, or one writes what the other reads.
func (a *Access) Conflicts(other *Access) bool {
	return overlaps(a.componentWrites, other.componentWrites) ||
		overlaps(a.componentWrites, other.componentReads) ||
		overlaps(a.componentReads, other.componentWrites) ||
		overlaps(a.resourceWrites, other.resourceWrites) ||
		overlaps(a.resourceWrites, other.resourceReads) ||
		overlaps(a.resourceReads, other.resourceWrites)
}

// merge folds the access of one parameter into the system's signature.
// It returns false when the combination is contradictory: a type written by
// two parameters, or written by one and read by another.
func (a *Access) merge(p *Access) bool {
	if overlaps(a.componentWrites, p.componentWrites) ||
		overlaps(a.componentWrites, p.componentReads) ||
		overlaps(a.componentReads, p.componentWrites) ||
		overlaps(a.resourceWrites, p.resourceWrites) ||
		overlaps(a.resourceWrites, p.resourceReads) ||
		overlaps(a.resourceReads, p.resourceWrites) {
		return false
	}
	union(&a.componentReads, p.componentReads)
	union(&a.componentWrites, p.componentWrites)
	union(&a.resourceReads, p.resourceReads)
	union(&a.resourceWrites, p.resourceWrites)
	a.commands = a.commands || p.commands
	return true
}

// union ors src into dst. The accelerated Or dereferences the first word of
// its argument, so an empty src must never reach it.
func union(dst *bitmap.Bitmap, src bitmap.Bitmap) {
	if len(src) == 0 {
		return
	}
	dst.Or(src)
}

func overlaps(a, b bitmap.Bitmap) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i]&b[i] != 0 {
			return true
		}
	}
	return false
}

func members(bm bitmap.Bitmap) []uint32 {
	out := make([]uint32, 0, bm.Count())
	for block, word := range bm {
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			out = append(out, uint32(block*64+bit))
			word &= word - 1
		}
	}
	return out
}

func toComponentIDs(ids []uint32) []ComponentID {
	out := make([]ComponentID, len(ids))
	for i, id := range ids {
		out[i] = ComponentID(id)
	}
	return out
}
