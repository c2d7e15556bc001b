package ecs

import (
	"iter"
	"reflect"
)

type eventInstance[E any] struct {
	id    uint64
	event E
}

// Events is a double-buffered queue of E values stored as a resource.
// An event stays readable for two updates, so every reader sees it once
// regardless of whether it runs before or after the writer in a tick.
type Events[E any] struct {
	previous []eventInstance[E]
	current  []eventInstance[E]
	count    uint64
}

// Send appends e to the current buffer.
func (ev *Events[E]) Send(e E) {
	ev.current = append(ev.current, eventInstance[E]{id: ev.count, event: e})
	ev.count++
}

// Update drops the previous buffer and makes the current buffer previous.
func (ev *Events[E]) Update() {
	clear(ev.previous)
	ev.previous, ev.current = ev.current, ev.previous[:0]
}

// Len returns the number of events still buffered.
func (ev *Events[E]) Len() int {
	return len(ev.previous) + len(ev.current)
}

// Drain yields every buffered event and clears both buffers.
func (ev *Events[E]) Drain() iter.Seq[E] {
	return func(yield func(E) bool) {
		defer func() {
			clear(ev.previous)
			clear(ev.current)
			ev.previous = ev.previous[:0]
			ev.current = ev.current[:0]
		}()
		for _, buf := range [][]eventInstance[E]{ev.previous, ev.current} {
			for _, inst := range buf {
				if !yield(inst.event) {
					return
				}
			}
		}
	}
}

func (ev *Events[E]) readFrom(cursor uint64) iter.Seq2[uint64, E] {
	return func(yield func(uint64, E) bool) {
		for _, buf := range [][]eventInstance[E]{ev.previous, ev.current} {
			for _, inst := range buf {
				if inst.id < cursor {
					continue
				}
				if !yield(inst.id, inst.event) {
					return
				}
			}
		}
	}
}

func (ev *Events[E]) unreadFrom(cursor uint64) int {
	n := 0
	for _, buf := range [][]eventInstance[E]{ev.previous, ev.current} {
		for _, inst := range buf {
			if inst.id >= cursor {
				n++
			}
		}
	}
	return n
}

// eventUpdater advances one registered event type after commands are applied.
type eventUpdater interface {
	update()
	typeName() string
}

type eventRegistration[E any] struct {
	entry *resourceEntry
}

func (r eventRegistration[E]) update() {
	if ev := (*Events[E])(r.entry.ptr()); ev != nil {
		ev.Update()
	}
}

func (r eventRegistration[E]) typeName() string {
	return reflect.TypeFor[E]().String()
}

// AddEvent registers E so its Events resource is updated once per tick.
// It is idempotent and returns the queue.
func AddEvent[E any](w *World) *Events[E] {
	t := reflect.TypeFor[Events[E]]()
	e := w.resources.entry(t)
	if !e.present {
		e.present = true
		e.changed = w.ChangeTick()
	}
	for _, u := range w.events {
		if reg, ok := u.(eventRegistration[E]); ok && reg.entry == e {
			return (*Events[E])(e.ptr())
		}
	}
	w.events = append(w.events, eventRegistration[E]{entry: e})
	return (*Events[E])(e.ptr())
}

// SendEvent sends e outside of a system, registering E if needed.
func SendEvent[E any](w *World, e E) {
	AddEvent[E](w).Send(e)
}

// UpdateEvents advances every registered event queue. The scheduler calls it
// once per tick; hosts driving systems by hand call it themselves.
func (w *World) UpdateEvents() {
	for _, u := range w.events {
		u.update()
	}
}

// EventWriter sends events of type E. It declares write access to Events[E].
type EventWriter[E any] struct {
	events *Events[E]
}

func (w *EventWriter[E]) bind(ctx *paramContext) error {
	w.events = AddEvent[E](ctx.world)
	var a Access
	a.writeResource(ctx.world.resources.entry(reflect.TypeFor[Events[E]]()).id)
	return ctx.declare(&a)
}

// Send queues e for readers.
func (w *EventWriter[E]) Send(e E) {
	w.events.Send(e)
}

// EventReader reads events of type E. Each reader keeps its own cursor, so
// an event is yielded once per reader. It declares read access to Events[E].
type EventReader[E any] struct {
	events *Events[E]
	cursor uint64
}

func (r *EventReader[E]) bind(ctx *paramContext) error {
	r.events = AddEvent[E](ctx.world)
	var a Access
	a.readResource(ctx.world.resources.entry(reflect.TypeFor[Events[E]]()).id)
	return ctx.declare(&a)
}

// Read yields the events this reader has not seen yet.
func (r *EventReader[E]) Read() iter.Seq[E] {
	return func(yield func(E) bool) {
		for id, e := range r.events.readFrom(r.cursor) {
			r.cursor = id + 1
			if !yield(e) {
				return
			}
		}
		r.cursor = max(r.cursor, r.events.count)
	}
}

// Len returns the number of unread events.
func (r *EventReader[E]) Len() int {
	return r.events.unreadFrom(r.cursor)
}

// Clear marks every buffered event as read.
func (r *EventReader[E]) Clear() {
	r.cursor = r.events.count
}
