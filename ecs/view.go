package ecs

import (
	"iter"
	"reflect"
	"strings"
	"unsafe"

	"github.com/rotisserie/eris"
)

var entityType = reflect.TypeFor[Entity]()

// descriptorField is one component pointer field of a query struct.
type descriptorField struct {
	name     string
	typ      reflect.Type
	offset   uintptr
	optional bool
	mut      bool
	changed  bool
}

// descriptor is the world-independent shape of a query struct.
type descriptor struct {
	typ      reflect.Type
	fields   []descriptorField
	entities []uintptr
	with     []reflect.Type
	without  []reflect.Type
	changed  []reflect.Type
}

// parseDescriptor reads the fields of query struct t. Malformed structs are
// programmer errors and panic.
func parseDescriptor(t reflect.Type) *descriptor {
	if t.Kind() != reflect.Struct {
		panic("query type parameter must be a struct, got " + t.String())
	}

	d := &descriptor{typ: t}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type == entityType {
			d.entities = append(d.entities, field.Offset)
			continue
		}

		if field.Type.Implements(queryFilterType) {
			kind, c := reflect.Zero(field.Type).Interface().(queryFilter).filter()
			switch kind {
			case filterWith:
				d.with = append(d.with, c)
			case filterWithout:
				d.without = append(d.without, c)
			case filterChanged:
				d.changed = append(d.changed, c)
			}
			continue
		}

		if field.Type.Kind() != reflect.Ptr {
			panic("query struct fields must be component pointers, ecs.Entity or filters: " + t.String() + "." + field.Name)
		}

		f := descriptorField{
			name:   field.Name,
			typ:    field.Type.Elem(),
			offset: field.Offset,
		}
		if tag, ok := field.Tag.Lookup("ecs"); ok {
			for _, opt := range strings.Split(tag, ",") {
				switch strings.TrimSpace(opt) {
				case "mut":
					f.mut = true
				case "optional":
					f.optional = true
				case "changed":
					f.changed = true
				case "":
				default:
					panic("invalid ecs tag value: \"" + opt + "\" (supported: mut, optional, changed)")
				}
			}
		}
		if f.optional && f.changed {
			panic("ecs tag on " + t.String() + "." + field.Name + " cannot combine optional and changed")
		}
		d.fields = append(d.fields, f)
	}
	return d
}

type boundField struct {
	storage  componentStorage
	offset   uintptr
	optional bool
	mut      bool
}

// queryState is a descriptor bound to the storages of one World.
type queryState struct {
	world    *World
	desc     *descriptor
	fields   []boundField
	entities []uintptr
	drivers  []componentStorage
	with     []componentStorage
	without  []componentStorage
	changed  []componentStorage
	access   Access
}

func newQueryState(w *World, d *descriptor) (*queryState, error) {
	q := &queryState{
		world:    w,
		desc:     d,
		entities: d.entities,
	}

	lookup := func(t reflect.Type) (componentStorage, error) {
		s, err := w.storageOf(t)
		if err != nil {
			return nil, eris.Wrapf(err, "query %v", d.typ)
		}
		return s, nil
	}

	required := make(map[reflect.Type]bool)
	written := make(map[reflect.Type]bool)
	seen := make(map[reflect.Type]bool)

	for _, f := range d.fields {
		s, err := lookup(f.typ)
		if err != nil {
			return nil, err
		}
		if seen[f.typ] && (f.mut || written[f.typ]) {
			return nil, eris.Wrapf(ErrConflictingAccess, "query %v binds %v mutably more than once", d.typ, f.typ)
		}
		seen[f.typ] = true

		q.fields = append(q.fields, boundField{storage: s, offset: f.offset, optional: f.optional, mut: f.mut})
		if f.mut {
			written[f.typ] = true
		}
		if !f.optional {
			required[f.typ] = true
			q.drivers = append(q.drivers, s)
		}
		if f.changed {
			q.changed = append(q.changed, s)
		}
	}
	for _, t := range d.with {
		s, err := lookup(t)
		if err != nil {
			return nil, err
		}
		required[t] = true
		q.with = append(q.with, s)
		q.drivers = append(q.drivers, s)
	}
	for _, t := range d.changed {
		s, err := lookup(t)
		if err != nil {
			return nil, err
		}
		required[t] = true
		q.changed = append(q.changed, s)
		q.drivers = append(q.drivers, s)
	}
	for _, t := range d.without {
		s, err := lookup(t)
		if err != nil {
			return nil, err
		}
		if required[t] {
			return nil, eris.Wrapf(ErrConflictingAccess, "query %v both requires and excludes %v", d.typ, t)
		}
		q.without = append(q.without, s)
	}

	for _, f := range q.fields {
		if f.mut {
			q.access.writeComponent(f.storage.componentID())
		}
	}
	for _, f := range q.fields {
		if !f.mut {
			q.access.readComponent(f.storage.componentID())
		}
	}
	for _, s := range q.changed {
		if !q.access.WritesComponent(s.componentID()) {
			q.access.readComponent(s.componentID())
		}
	}
	return q, nil
}

// driver returns the smallest storage every match must appear in, or nil
// when the query only has optional fields and exclusions.
func (q *queryState) driver() componentStorage {
	var best componentStorage
	for _, s := range q.drivers {
		if best == nil || s.len() < best.len() {
			best = s
		}
	}
	return best
}

// match resolves e against the query. slots receives the dense slot of each
// field, -1 for absent optional fields.
func (q *queryState) match(e Entity, lastRun uint64, slots []int) bool {
	for _, s := range q.without {
		if s.containsEntity(e) {
			return false
		}
	}
	for _, s := range q.with {
		if !s.containsEntity(e) {
			return false
		}
	}
	for _, s := range q.changed {
		slot := s.slotOf(e)
		if slot < 0 || s.tickAt(slot) <= lastRun {
			return false
		}
	}
	for i, f := range q.fields {
		slot := f.storage.slotOf(e)
		if slot < 0 && !f.optional {
			return false
		}
		slots[i] = slot
	}
	return true
}

// fill writes field pointers for a matched entity and stamps mutable fields.
func (q *queryState) fill(e Entity, slots []int, ptr unsafe.Pointer, tick uint64) {
	for _, off := range q.entities {
		*(*Entity)(unsafe.Add(ptr, off)) = e
	}
	for i, f := range q.fields {
		fieldPtr := unsafe.Add(ptr, f.offset)
		slot := slots[i]
		if slot < 0 {
			*(*unsafe.Pointer)(fieldPtr) = nil
			continue
		}
		*(*unsafe.Pointer)(fieldPtr) = f.storage.pointerAt(slot)
		if f.mut {
			f.storage.stampAt(slot, tick)
		}
	}
}

// candidates yields the entities to probe: the driving storage's entity list
// or, without one, every live entity.
func (q *queryState) candidates() iter.Seq[Entity] {
	drv := q.driver()
	if drv == nil {
		return q.world.entities.Iter()
	}
	return func(yield func(Entity) bool) {
		entities := drv.entityList()
		for i := 0; i < len(entities); i++ {
			if !yield(entities[i]) {
				return
			}
		}
	}
}

func (q *queryState) iter(ptr unsafe.Pointer, lastRun, tick uint64, yield func(Entity) bool) {
	slots := make([]int, len(q.fields))
	for e := range q.candidates() {
		if !q.match(e, lastRun, slots) {
			continue
		}
		q.fill(e, slots, ptr, tick)
		if !yield(e) {
			return
		}
	}
}

func (q *queryState) fillOne(e Entity, ptr unsafe.Pointer, lastRun, tick uint64) bool {
	if !q.world.entities.IsLive(e) {
		return false
	}
	slots := make([]int, len(q.fields))
	if !q.match(e, lastRun, slots) {
		return false
	}
	q.fill(e, slots, ptr, tick)
	return true
}

func (q *queryState) any(lastRun uint64) bool {
	slots := make([]int, len(q.fields))
	for e := range q.candidates() {
		if q.match(e, lastRun, slots) {
			return true
		}
	}
	return false
}

func (q *queryState) count(lastRun uint64) int {
	slots := make([]int, len(q.fields))
	n := 0
	for e := range q.candidates() {
		if q.match(e, lastRun, slots) {
			n++
		}
	}
	return n
}

// View represents a query for entities with a specific combination of components.
// The type T must be a struct whose fields are pointers to component types,
// optionally an ecs.Entity field and filter markers (With, Without, Changed).
// Pointer fields may be tagged `ecs:"mut"`, `ecs:"optional"` or `ecs:"changed"`.
//
// A View is used outside the scheduler. It treats every component as changed
// and stamps mutable fields with the world's current change tick.
type View[T any] struct {
	state *queryState
}

// NewView creates a new view for the given struct type.
// It panics if T is malformed, names an unregistered component or
// contradicts itself.
func NewView[T any](w *World) *View[T] {
	state, err := newQueryState(w, parseDescriptor(reflect.TypeFor[T]()))
	if err != nil {
		panic(err)
	}
	return &View[T]{state: state}
}

// Fill populates the provided struct pointer with component data for the given entity.
// Returns false if the entity is not live or does not match the view.
func (v *View[T]) Fill(e Entity, ptr *T) bool {
	return v.state.fillOne(e, unsafe.Pointer(ptr), 0, v.state.world.ChangeTick())
}

// Get returns a populated view struct for the given entity, or nil if the
// entity does not match.
func (v *View[T]) Get(e Entity) *T {
	var result T
	if !v.Fill(e, &result) {
		return nil
	}
	return &result
}

// Iter returns an iterator over every matching entity and its populated view struct.
// Optional components are set to nil if not present.
func (v *View[T]) Iter() iter.Seq2[Entity, T] {
	return func(yield func(Entity, T) bool) {
		var result T
		v.state.iter(unsafe.Pointer(&result), 0, v.state.world.ChangeTick(), func(e Entity) bool {
			return yield(e, result)
		})
	}
}

// Values returns an iterator over just the view structs.
func (v *View[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, value := range v.Iter() {
			if !yield(value) {
				return
			}
		}
	}
}

// Count returns the number of matching entities.
func (v *View[T]) Count() int {
	return v.state.count(0)
}

// Access returns the component reads and writes declared by T.
func (v *View[T]) Access() Access {
	return v.state.access
}
