package ecs

import (
	"reflect"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
)

type commandKind uint8

const (
	cmdSpawn commandKind = iota
	cmdDespawn
	cmdAddComponent
	cmdRemoveComponent
	cmdInsertResource
	cmdRemoveResource
	cmdDefer
)

type command struct {
	kind       commandKind
	entity     Entity
	components []any
	value      any
	typ        reflect.Type
	fn         func(*World)
}

// Commands provides a buffer for deferred ECS operations that are applied
// after every system of a tick has finished. This prevents structural
// changes to the World during system execution.
// Commands are applied in the order they were issued.
type Commands struct {
	list []command
}

// NewCommands creates an empty command buffer.
func NewCommands() *Commands {
	return &Commands{}
}

func (c *Commands) bind(ctx *paramContext) error {
	ctx.buffers = append(ctx.buffers, c)
	ctx.access.commands = true
	return nil
}

// Spawn queues an entity spawn with the given components.
func (c *Commands) Spawn(components ...any) {
	c.list = append(c.list, command{kind: cmdSpawn, components: components})
}

// Despawn queues an entity despawn.
func (c *Commands) Despawn(e Entity) {
	c.list = append(c.list, command{kind: cmdDespawn, entity: e})
}

// AddComponent queues a component insertion.
func (c *Commands) AddComponent(e Entity, component any) {
	c.list = append(c.list, command{kind: cmdAddComponent, entity: e, value: component})
}

// RemoveComponent queues a component removal.
func (c *Commands) RemoveComponent(e Entity, t reflect.Type) {
	c.list = append(c.list, command{kind: cmdRemoveComponent, entity: e, typ: t})
}

// RemoveComponentOf queues removal of e's T component.
func RemoveComponentOf[T any](c *Commands, e Entity) {
	c.RemoveComponent(e, reflect.TypeFor[T]())
}

// InsertResource queues a resource insertion.
func (c *Commands) InsertResource(v any) {
	c.list = append(c.list, command{kind: cmdInsertResource, value: v})
}

// RemoveResource queues removal of the resource of type t.
func (c *Commands) RemoveResource(t reflect.Type) {
	c.list = append(c.list, command{kind: cmdRemoveResource, typ: t})
}

// Defer queues a function that receives the World once it is safe to mutate.
func (c *Commands) Defer(fn func(*World)) {
	c.list = append(c.list, command{kind: cmdDefer, fn: fn})
}

// Len returns the number of queued commands.
func (c *Commands) Len() int {
	return len(c.list)
}

// Discard drops every queued command.
func (c *Commands) Discard() {
	clear(c.list)
	c.list = c.list[:0]
}

// Apply executes the queued commands against w in issue order and resets
// the buffer. A failing command does not stop the ones after it; failures
// are returned combined.
func (c *Commands) Apply(w *World) error {
	var errs error
	for i := range c.list {
		if err := c.list[i].apply(w); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	c.Discard()
	return errs
}

func (cmd *command) apply(w *World) error {
	switch cmd.kind {
	case cmdSpawn:
		if _, err := w.spawn(cmd.components); err != nil {
			return eris.Wrap(err, "spawn")
		}
	case cmdDespawn:
		return w.Despawn(cmd.entity)
	case cmdAddComponent:
		return w.AddComponent(cmd.entity, cmd.value)
	case cmdRemoveComponent:
		_, err := w.RemoveComponent(cmd.entity, cmd.typ)
		return err
	case cmdInsertResource:
		if cmd.value == nil {
			return eris.New("insert nil resource")
		}
		w.InsertResource(cmd.value)
	case cmdRemoveResource:
		w.removeResourceType(cmd.typ)
	case cmdDefer:
		cmd.fn(w)
	}
	return nil
}
