package ecs

import (
	"reflect"
	"sort"
	"unsafe"
)

// resourceEntry is the single slot a resource type occupies in a World.
// The slot is created the first time the type is referenced, by insertion
// or by a system declaring it, and its memory address never changes.
type resourceEntry struct {
	id      uint32
	typ     reflect.Type
	value   reflect.Value
	present bool
	changed uint64
}

func (e *resourceEntry) ptr() unsafe.Pointer {
	if !e.present {
		return nil
	}
	return e.value.UnsafePointer()
}

type resourceTable struct {
	entries map[reflect.Type]*resourceEntry
	byID    []*resourceEntry
}

func newResourceTable() *resourceTable {
	return &resourceTable{
		entries: make(map[reflect.Type]*resourceEntry),
	}
}

func (r *resourceTable) entry(t reflect.Type) *resourceEntry {
	if e, ok := r.entries[t]; ok {
		return e
	}
	e := &resourceEntry{
		id:    uint32(len(r.byID)),
		typ:   t,
		value: reflect.New(t),
	}
	r.entries[t] = e
	r.byID = append(r.byID, e)
	return e
}

func (r *resourceTable) lookup(t reflect.Type) *resourceEntry {
	e, ok := r.entries[t]
	if !ok || !e.present {
		return nil
	}
	return e
}

func (r *resourceTable) count() int {
	n := 0
	for _, e := range r.byID {
		if e.present {
			n++
		}
	}
	return n
}

func (r *resourceTable) names() []string {
	names := make([]string, 0, len(r.byID))
	for _, e := range r.byID {
		if e.present {
			names = append(names, e.typ.String())
		}
	}
	sort.Strings(names)
	return names
}

// InsertResource stores v as the world's singleton of its type, replacing any
// previous value. Pointers previously returned for the type stay valid.
func (w *World) InsertResource(v any) {
	t := reflect.TypeOf(v)
	if t == nil {
		panic("cannot insert nil resource")
	}
	e := w.resources.entry(t)
	e.value.Elem().Set(reflect.ValueOf(v))
	e.present = true
	e.changed = w.ChangeTick()
}

// InsertResourceOf stores v as the world's T resource.
func InsertResourceOf[T any](w *World, v T) {
	e := w.resources.entry(reflect.TypeFor[T]())
	*(*T)(e.value.UnsafePointer()) = v
	e.present = true
	e.changed = w.ChangeTick()
}

// GetResource returns a pointer to the T resource, or nil if it is absent.
func GetResource[T any](w *World) *T {
	e := w.resources.lookup(reflect.TypeFor[T]())
	if e == nil {
		return nil
	}
	return (*T)(e.ptr())
}

// GetResourceMut returns a pointer to the T resource and marks it changed.
func GetResourceMut[T any](w *World) *T {
	e := w.resources.lookup(reflect.TypeFor[T]())
	if e == nil {
		return nil
	}
	e.changed = w.ChangeTick()
	return (*T)(e.ptr())
}

// HasResource reports whether a T resource is present.
func HasResource[T any](w *World) bool {
	return w.resources.lookup(reflect.TypeFor[T]()) != nil
}

// RemoveResource removes the T resource and returns its last value.
func RemoveResource[T any](w *World) (T, bool) {
	var zero T
	e := w.resources.lookup(reflect.TypeFor[T]())
	if e == nil {
		return zero, false
	}
	p := (*T)(e.ptr())
	v := *p
	*p = zero
	e.present = false
	return v, true
}

// removeResourceType is the untyped form used by command application.
func (w *World) removeResourceType(t reflect.Type) bool {
	e := w.resources.lookup(t)
	if e == nil {
		return false
	}
	e.value.Elem().SetZero()
	e.present = false
	return true
}
