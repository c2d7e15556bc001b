package ecs

import (
	"iter"
	"reflect"
	"unsafe"
)

// Query is the system parameter form of View. It is resolved once when the
// system is added to a Scheduler and compares change ticks against the
// owning system's previous run.
//
// Iteration is lazy and restartable: every call to Iter probes the live World.
type Query[T any] struct {
	state *queryState
	ticks *systemTicks
}

func (q *Query[T]) bind(ctx *paramContext) error {
	state, err := newQueryState(ctx.world, parseDescriptor(reflect.TypeFor[T]()))
	if err != nil {
		return err
	}
	q.state = state
	q.ticks = ctx.ticks
	return ctx.declare(&state.access)
}

// Iter returns an iterator over matching entities and their populated query structs.
func (q *Query[T]) Iter() iter.Seq2[Entity, T] {
	return func(yield func(Entity, T) bool) {
		var result T
		q.state.iter(unsafe.Pointer(&result), q.ticks.lastRun, q.ticks.thisRun, func(e Entity) bool {
			return yield(e, result)
		})
	}
}

// Values returns an iterator over the query structs only.
func (q *Query[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, value := range q.Iter() {
			if !yield(value) {
				return
			}
		}
	}
}

// Fill populates ptr for e. Returns false if e does not match.
func (q *Query[T]) Fill(e Entity, ptr *T) bool {
	return q.state.fillOne(e, unsafe.Pointer(ptr), q.ticks.lastRun, q.ticks.thisRun)
}

// Get returns the query struct for e, or nil if e does not match.
func (q *Query[T]) Get(e Entity) *T {
	var result T
	if !q.Fill(e, &result) {
		return nil
	}
	return &result
}

// Single returns the only match. ok is false when there are zero or several,
// and no mut field is marked changed in that case.
func (q *Query[T]) Single() (e Entity, result T, ok bool) {
	if q.state.count(q.ticks.lastRun) != 1 {
		return NoEntity, result, false
	}
	for entity, value := range q.Iter() {
		return entity, value, true
	}
	return NoEntity, result, false
}

// Count returns the number of matching entities.
func (q *Query[T]) Count() int {
	return q.state.count(q.ticks.lastRun)
}

// IsEmpty reports whether nothing matches.
func (q *Query[T]) IsEmpty() bool {
	return !q.state.any(q.ticks.lastRun)
}

// Access returns the component reads and writes declared by T.
func (q *Query[T]) Access() Access {
	return q.state.access
}
