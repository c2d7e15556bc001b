package ecs

import (
	"iter"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/kamstrup/intmap"
)

// ComponentStorage owns every live instance of component type T.
// Components are packed in a dense array with no gaps; a sparse index maps
// entity slot indices to dense positions. Removal swaps the last element
// into the freed position, so iteration order is not stable across removals.
type ComponentStorage[T any] struct {
	id       ComponentID
	typ      reflect.Type
	dense    []T
	entities []Entity
	ticks    []uint64
	sparse   *intmap.Map[uint32, int32]
	clock    *atomic.Uint64
}

// NewComponentStorage creates a standalone storage for T.
func NewComponentStorage[T any]() *ComponentStorage[T] {
	return newComponentStorage[T](0, nil)
}

func newComponentStorage[T any](id ComponentID, clock *atomic.Uint64) *ComponentStorage[T] {
	return &ComponentStorage[T]{
		id:     id,
		typ:    reflect.TypeFor[T](),
		sparse: intmap.New[uint32, int32](256),
		clock:  clock,
	}
}

func (s *ComponentStorage[T]) now() uint64 {
	if s.clock == nil {
		return 1
	}
	return s.clock.Load()
}

func (s *ComponentStorage[T]) slotOf(e Entity) int {
	slot, ok := s.sparse.Get(e.Index())
	if !ok || s.entities[slot] != e {
		return -1
	}
	return int(slot)
}

// Insert stores v for e. If e already had a component it is overwritten and
// the previous value returned with replaced set.
func (s *ComponentStorage[T]) Insert(e Entity, v T) (prev T, replaced bool) {
	if slot := s.slotOf(e); slot >= 0 {
		prev = s.dense[slot]
		s.dense[slot] = v
		s.ticks[slot] = s.now()
		return prev, true
	}

	// A recycled index may still map to a slot owned by an older generation.
	if slot, ok := s.sparse.Get(e.Index()); ok {
		s.swapRemove(int(slot))
	}

	s.sparse.Put(e.Index(), int32(len(s.dense)))
	s.dense = append(s.dense, v)
	s.entities = append(s.entities, e)
	s.ticks = append(s.ticks, s.now())
	return prev, false
}

// Remove deletes e's component and returns it.
func (s *ComponentStorage[T]) Remove(e Entity) (T, bool) {
	var zero T
	slot := s.slotOf(e)
	if slot < 0 {
		return zero, false
	}
	v := s.dense[slot]
	s.swapRemove(slot)
	return v, true
}

func (s *ComponentStorage[T]) swapRemove(slot int) {
	last := len(s.dense) - 1
	removed := s.entities[slot]

	if slot != last {
		moved := s.entities[last]
		s.dense[slot] = s.dense[last]
		s.entities[slot] = moved
		s.ticks[slot] = s.ticks[last]
		s.sparse.Put(moved.Index(), int32(slot))
	}

	var zero T
	s.dense[last] = zero
	s.dense = s.dense[:last]
	s.entities = s.entities[:last]
	s.ticks = s.ticks[:last]
	s.sparse.Del(removed.Index())
}

// Get returns a pointer to e's component, or nil.
func (s *ComponentStorage[T]) Get(e Entity) *T {
	slot := s.slotOf(e)
	if slot < 0 {
		return nil
	}
	return &s.dense[slot]
}

// GetMut returns a pointer to e's component and stamps it as changed at tick.
func (s *ComponentStorage[T]) GetMut(e Entity, tick uint64) *T {
	slot := s.slotOf(e)
	if slot < 0 {
		return nil
	}
	s.ticks[slot] = tick
	return &s.dense[slot]
}

// Contains reports whether e has a component in this storage.
func (s *ComponentStorage[T]) Contains(e Entity) bool {
	return s.slotOf(e) >= 0
}

// ChangedTick returns the tick at which e's component was last inserted or
// mutably accessed.
func (s *ComponentStorage[T]) ChangedTick(e Entity) (uint64, bool) {
	slot := s.slotOf(e)
	if slot < 0 {
		return 0, false
	}
	return s.ticks[slot], true
}

// Len returns the number of stored components.
func (s *ComponentStorage[T]) Len() int {
	return len(s.dense)
}

// Entities returns the dense entity list. The slice is owned by the storage.
func (s *ComponentStorage[T]) Entities() []Entity {
	return s.entities
}

// Iter yields every (entity, component) pair in dense order.
func (s *ComponentStorage[T]) Iter() iter.Seq2[Entity, *T] {
	return func(yield func(Entity, *T) bool) {
		for i := range s.dense {
			if !yield(s.entities[i], &s.dense[i]) {
				return
			}
		}
	}
}

func (s *ComponentStorage[T]) componentID() ComponentID { return s.id }
func (s *ComponentStorage[T]) elemType() reflect.Type   { return s.typ }
func (s *ComponentStorage[T]) entityList() []Entity     { return s.entities }
func (s *ComponentStorage[T]) len() int                 { return len(s.dense) }

func (s *ComponentStorage[T]) insertAny(e Entity, component any) bool {
	var concrete T
	if ptr, ok := component.(*T); ok {
		concrete = *ptr
	} else if val, ok := component.(T); ok {
		concrete = val
	} else {
		return false
	}
	s.Insert(e, concrete)
	return true
}

func (s *ComponentStorage[T]) removeEntity(e Entity) (any, bool) {
	v, ok := s.Remove(e)
	if !ok {
		return nil, false
	}
	return v, true
}

func (s *ComponentStorage[T]) containsEntity(e Entity) bool {
	return s.slotOf(e) >= 0
}

func (s *ComponentStorage[T]) getAny(e Entity) any {
	if p := s.Get(e); p != nil {
		return p
	}
	return nil
}

func (s *ComponentStorage[T]) pointerAt(slot int) unsafe.Pointer {
	return unsafe.Pointer(&s.dense[slot])
}

func (s *ComponentStorage[T]) tickAt(slot int) uint64 {
	return s.ticks[slot]
}

func (s *ComponentStorage[T]) stampAt(slot int, tick uint64) {
	s.ticks[slot] = tick
}
