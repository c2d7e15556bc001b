package ecs

import (
	"reflect"

	"github.com/rotisserie/eris"
)

// systemTicks are the change ticks of one system: the tick of its previous
// run and the tick of the run in progress.
type systemTicks struct {
	lastRun uint64
	thisRun uint64
}

// paramContext carries what a parameter needs while it is being resolved
// for a system, and accumulates the system's access signature.
type paramContext struct {
	world   *World
	system  string
	ticks   *systemTicks
	access  Access
	buffers []*Commands
}

func (c *paramContext) declare(a *Access) error {
	if !c.access.merge(a) {
		return eris.Wrapf(ErrConflictingAccess, "system %s declares contradictory access", c.system)
	}
	return nil
}

// Param is implemented by every value a system can receive: *Query[T],
// *Res[T], *ResMut[T], *Commands, *Local[T], *EventReader[E] and
// *EventWriter[E]. The set is closed.
type Param interface {
	bind(ctx *paramContext) error
}

// paramPtr lets the Func adapters allocate a parameter from its value type.
type paramPtr[T any] interface {
	*T
	Param
}

var paramType = reflect.TypeFor[Param]()

// Res is read-only access to the T resource.
type Res[T any] struct {
	entry *resourceEntry
	ticks *systemTicks
}

func (r *Res[T]) bind(ctx *paramContext) error {
	r.entry = ctx.world.resources.entry(reflect.TypeFor[T]())
	r.ticks = ctx.ticks
	var a Access
	a.readResource(r.entry.id)
	return ctx.declare(&a)
}

// Get returns the resource, or nil if it is not present.
func (r *Res[T]) Get() *T {
	return (*T)(r.entry.ptr())
}

// Has reports whether the resource is present.
func (r *Res[T]) Has() bool {
	return r.entry.present
}

// IsChanged reports whether the resource was inserted or mutably accessed
// since the system last ran.
func (r *Res[T]) IsChanged() bool {
	return r.entry.present && r.entry.changed > r.ticks.lastRun
}

// ResMut is exclusive access to the T resource.
type ResMut[T any] struct {
	entry *resourceEntry
	ticks *systemTicks
}

func (r *ResMut[T]) bind(ctx *paramContext) error {
	r.entry = ctx.world.resources.entry(reflect.TypeFor[T]())
	r.ticks = ctx.ticks
	var a Access
	a.writeResource(r.entry.id)
	return ctx.declare(&a)
}

// Get returns the resource and marks it changed, or nil if it is not present.
func (r *ResMut[T]) Get() *T {
	if !r.entry.present {
		return nil
	}
	r.entry.changed = r.ticks.thisRun
	return (*T)(r.entry.ptr())
}

// Set stores v as the resource value, making it present.
func (r *ResMut[T]) Set(v T) {
	*(*T)(r.entry.value.UnsafePointer()) = v
	r.entry.present = true
	r.entry.changed = r.ticks.thisRun
}

// Has reports whether the resource is present.
func (r *ResMut[T]) Has() bool {
	return r.entry.present
}

// IsChanged reports whether the resource changed since the system last ran.
func (r *ResMut[T]) IsChanged() bool {
	return r.entry.present && r.entry.changed > r.ticks.lastRun
}

// Local is state private to one system that persists between runs.
type Local[T any] struct {
	value T
}

func (l *Local[T]) bind(*paramContext) error {
	return nil
}

// Get returns the system's value.
func (l *Local[T]) Get() *T {
	return &l.value
}
