package ecs

import (
	"fmt"
	"iter"

	"github.com/rotisserie/eris"
)

// Entity encodes both the generation (upper 32 bits) and the slot index (lower 32 bits)
type Entity uint64

// NoEntity is the zero handle. Generations start at 1 so it is never live.
const NoEntity Entity = 0

// NewEntity creates an Entity from a slot index and generation
func NewEntity(index uint32, generation uint32) Entity {
	return Entity(uint64(generation)<<32 | uint64(index))
}

// Index extracts the slot index from the entity
func (e Entity) Index() uint32 {
	return uint32(e & 0xFFFFFFFF)
}

// Generation extracts the generation from the entity
func (e Entity) Generation() uint32 {
	return uint32(e >> 32)
}

// IsZero reports whether e is NoEntity
func (e Entity) IsZero() bool {
	return e == NoEntity
}

func (e Entity) String() string {
	return fmt.Sprintf("%dv%d", e.Index(), e.Generation())
}

// EntityRegistry allocates and recycles entity handles.
// A despawned slot goes to a free list and its generation is bumped, so
// handles held past a despawn are detectably stale.
type EntityRegistry struct {
	generations []uint32
	alive       []bool
	freeList    []uint32
	live        int
}

// NewEntityRegistry creates an empty registry.
func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{
		generations: make([]uint32, 0, 1024),
		alive:       make([]bool, 0, 1024),
		freeList:    make([]uint32, 0, 256),
	}
}

// Spawn allocates a new or recycled entity.
func (r *EntityRegistry) Spawn() Entity {
	r.live++
	if n := len(r.freeList); n > 0 {
		idx := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		r.alive[idx] = true
		return NewEntity(idx, r.generations[idx])
	}

	idx := uint32(len(r.generations))
	r.generations = append(r.generations, 1)
	r.alive = append(r.alive, true)
	return NewEntity(idx, 1)
}

// Despawn releases the entity's slot. It returns ErrStaleEntity if the handle
// was already despawned or never existed.
func (r *EntityRegistry) Despawn(e Entity) error {
	if !r.IsLive(e) {
		return eris.Wrapf(ErrStaleEntity, "despawn %s", e)
	}

	idx := e.Index()
	gen := r.generations[idx] + 1
	if gen == 0 {
		gen = 1
	}
	r.generations[idx] = gen
	r.alive[idx] = false
	r.freeList = append(r.freeList, idx)
	r.live--
	return nil
}

// IsLive reports whether e refers to a currently live entity.
func (r *EntityRegistry) IsLive(e Entity) bool {
	idx := e.Index()
	if int(idx) >= len(r.generations) {
		return false
	}
	return r.alive[idx] && r.generations[idx] == e.Generation()
}

// Len returns the number of live entities.
func (r *EntityRegistry) Len() int {
	return r.live
}

// Iter yields every live entity in slot order.
func (r *EntityRegistry) Iter() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for idx, ok := range r.alive {
			if !ok {
				continue
			}
			if !yield(NewEntity(uint32(idx), r.generations[idx])) {
				return
			}
		}
	}
}
