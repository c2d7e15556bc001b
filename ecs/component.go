package ecs

import (
	"reflect"
	"sync/atomic"
)

// ComponentID is the dense identifier assigned to a component type at registration.
type ComponentID uint32

// ComponentRegistry manages component type registration.
// A registry may be shared by several Worlds; each World creates its own
// storages from the registered factories.
type ComponentRegistry struct {
	ids       map[reflect.Type]ComponentID
	types     []reflect.Type
	factories []func(id ComponentID, clock *atomic.Uint64) componentStorage
}

// NewComponentRegistry creates a new component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		ids: make(map[reflect.Type]ComponentID),
	}
}

// RegisterComponent registers a new component type with the given registry.
// This must be called for each component type before it can be used.
// Registering the same type twice returns the existing ID. A type registered
// after a world was built must be registered before that world's next tick;
// the registry is not safe for use while systems are executing.
func RegisterComponent[T any](r *ComponentRegistry) ComponentID {
	t := reflect.TypeFor[T]()
	if id, ok := r.ids[t]; ok {
		return id
	}

	switch t.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
		panic("components cannot be pointers, maps, channels, functions or interfaces: " + t.String())
	}

	id := ComponentID(len(r.types))
	r.ids[t] = id
	r.types = append(r.types, t)
	r.factories = append(r.factories, func(id ComponentID, clock *atomic.Uint64) componentStorage {
		return newComponentStorage[T](id, clock)
	})
	return id
}

// ID returns the ComponentID registered for t.
func (r *ComponentRegistry) ID(t reflect.Type) (ComponentID, bool) {
	id, ok := r.ids[t]
	return id, ok
}

// Type returns the component type registered under id.
func (r *ComponentRegistry) Type(id ComponentID) reflect.Type {
	if int(id) >= len(r.types) {
		return nil
	}
	return r.types[id]
}

// Len returns the number of registered component types.
func (r *ComponentRegistry) Len() int {
	return len(r.types)
}

// componentType normalises a component value's type, looking through one pointer.
func componentType(component any) reflect.Type {
	t := reflect.TypeOf(component)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
