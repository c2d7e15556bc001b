package ecs

import (
	"iter"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// World is the single owner of all ECS state: the entity registry, one
// storage per registered component type, resources and events.
type World struct {
	id        uuid.UUID
	registry  *ComponentRegistry
	entities  *EntityRegistry
	storages  []componentStorage
	resources *resourceTable
	events    []eventUpdater
	tick      atomic.Uint64
	inTick    atomic.Bool
	borrows   *borrowTracker
	debug     bool
	logger    *zap.Logger
}

type worldOptions struct {
	logger *zap.Logger
	debug  bool
}

// WorldOption configures a World.
type WorldOption func(o *worldOptions)

// WithWorldLogger sets the logger used by the world.
func WithWorldLogger(logger *zap.Logger) WorldOption {
	return func(o *worldOptions) {
		o.logger = logger
	}
}

// WithDebugBorrows enables runtime borrow checking. Every scheduled system
// acquires its declared access before running, and structural changes made
// while a tick is executing panic.
func WithDebugBorrows(enabled bool) WorldOption {
	return func(o *worldOptions) {
		o.debug = enabled
	}
}

// NewWorld creates a world with storages for every type in registry.
func NewWorld(registry *ComponentRegistry, opts ...WorldOption) *World {
	o := &worldOptions{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	w := &World{
		id:        uuid.New(),
		registry:  registry,
		entities:  NewEntityRegistry(),
		resources: newResourceTable(),
		borrows:   newBorrowTracker(),
		debug:     o.debug,
	}
	w.logger = o.logger.With(zap.String("world", w.id.String()))
	w.tick.Store(1)
	w.syncStorages()
	return w
}

// ID returns the world's unique identity.
func (w *World) ID() uuid.UUID {
	return w.id
}

// Logger returns the world's logger.
func (w *World) Logger() *zap.Logger {
	return w.logger
}

// Registry returns the component registry the world was built from.
func (w *World) Registry() *ComponentRegistry {
	return w.registry
}

// ChangeTick returns the current world change tick.
func (w *World) ChangeTick() uint64 {
	return w.tick.Load()
}

func (w *World) advanceTick() uint64 {
	return w.tick.Add(1)
}

// syncStorages creates storages for types registered after the world was built.
// It appends to w.storages, so the scheduler calls it outside of execution.
func (w *World) syncStorages() {
	for id := len(w.storages); id < len(w.registry.factories); id++ {
		w.storages = append(w.storages, w.registry.factories[id](ComponentID(id), &w.tick))
	}
}

func (w *World) storageByID(id ComponentID) componentStorage {
	if int(id) >= len(w.storages) {
		w.syncStorages()
	}
	return w.storages[id]
}

func (w *World) storageOf(t reflect.Type) (componentStorage, error) {
	id, ok := w.registry.ID(t)
	if !ok {
		return nil, eris.Wrapf(ErrUnregisteredComponent, "component type %v", t)
	}
	return w.storageByID(id), nil
}

func (w *World) assertStructural(op string) {
	if w.debug && w.inTick.Load() {
		panic(eris.Wrapf(ErrBorrowConflict, "%s while systems are executing", op))
	}
}

// Spawn creates a new entity with the provided components.
// It panics if a component type has not been registered.
func (w *World) Spawn(components ...any) Entity {
	w.assertStructural("spawn")

	e, err := w.spawn(components)
	if err != nil {
		panic(err)
	}
	return e
}

// spawn allocates an entity only once every component has a storage, so a
// rejected spawn leaves the registry untouched.
func (w *World) spawn(components []any) (Entity, error) {
	storages, err := w.storagesFor(components)
	if err != nil {
		return NoEntity, err
	}
	e := w.entities.Spawn()
	for i, component := range components {
		storages[i].insertAny(e, component)
	}
	return e, nil
}

func (w *World) storagesFor(components []any) ([]componentStorage, error) {
	storages := make([]componentStorage, len(components))
	for i, component := range components {
		if v := reflect.ValueOf(component); v.Kind() == reflect.Ptr && v.IsNil() {
			return nil, eris.Errorf("nil %T component", component)
		}
		storage, err := w.storageOf(componentType(component))
		if err != nil {
			return nil, err
		}
		storages[i] = storage
	}
	return storages, nil
}

// Despawn removes the entity and every component it holds.
func (w *World) Despawn(e Entity) error {
	w.assertStructural("despawn")

	if !w.entities.IsLive(e) {
		return eris.Wrapf(ErrStaleEntity, "despawn %s", e)
	}
	for _, storage := range w.storages {
		storage.removeEntity(e)
	}
	return w.entities.Despawn(e)
}

// IsLive reports whether e refers to a live entity.
func (w *World) IsLive(e Entity) bool {
	return w.entities.IsLive(e)
}

// EntityCount returns the number of live entities.
func (w *World) EntityCount() int {
	return w.entities.Len()
}

// Entities yields every live entity.
func (w *World) Entities() iter.Seq[Entity] {
	return w.entities.Iter()
}

// AddComponent attaches component to e, replacing any existing value of the same type.
func (w *World) AddComponent(e Entity, component any) error {
	w.assertStructural("add component")

	if !w.entities.IsLive(e) {
		return eris.Wrapf(ErrEntityNotFound, "add %v to %s", componentType(component), e)
	}
	return w.insert(e, component)
}

func (w *World) insert(e Entity, component any) error {
	t := componentType(component)
	storage, err := w.storageOf(t)
	if err != nil {
		return err
	}
	if !storage.insertAny(e, component) {
		return eris.Errorf("component %T does not match storage %v", component, storage.elemType())
	}
	return nil
}

// RemoveComponent detaches the component of type t from e and returns it.
// The returned value is nil if e did not have the component.
func (w *World) RemoveComponent(e Entity, t reflect.Type) (any, error) {
	w.assertStructural("remove component")

	if !w.entities.IsLive(e) {
		return nil, eris.Wrapf(ErrEntityNotFound, "remove %v from %s", t, e)
	}
	storage, err := w.storageOf(t)
	if err != nil {
		return nil, err
	}
	v, _ := storage.removeEntity(e)
	return v, nil
}

// GetComponent returns a pointer to e's component of type t, or nil.
func (w *World) GetComponent(e Entity, t reflect.Type) any {
	storage, err := w.storageOf(t)
	if err != nil {
		return nil
	}
	return storage.getAny(e)
}

// HasComponent checks if an entity has a specific component type
func (w *World) HasComponent(e Entity, t reflect.Type) bool {
	storage, err := w.storageOf(t)
	if err != nil {
		return false
	}
	return storage.containsEntity(e)
}

// StorageOf returns the world's storage for T.
func StorageOf[T any](w *World) (*ComponentStorage[T], error) {
	storage, err := w.storageOf(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return storage.(*ComponentStorage[T]), nil
}

// Insert attaches v to e and returns the value it replaced, if any.
func Insert[T any](w *World, e Entity, v T) (prev T, replaced bool, err error) {
	w.assertStructural("insert")

	if !w.entities.IsLive(e) {
		return prev, false, eris.Wrapf(ErrEntityNotFound, "insert %v into %s", reflect.TypeFor[T](), e)
	}
	storage, err := StorageOf[T](w)
	if err != nil {
		return prev, false, err
	}
	prev, replaced = storage.Insert(e, v)
	return prev, replaced, nil
}

// Remove detaches e's T component and returns it.
func Remove[T any](w *World, e Entity) (T, bool, error) {
	var zero T
	w.assertStructural("remove")

	if !w.entities.IsLive(e) {
		return zero, false, eris.Wrapf(ErrEntityNotFound, "remove %v from %s", reflect.TypeFor[T](), e)
	}
	storage, err := StorageOf[T](w)
	if err != nil {
		return zero, false, err
	}
	v, ok := storage.Remove(e)
	return v, ok, nil
}

// Get returns a pointer to e's T component, or nil.
func Get[T any](w *World, e Entity) *T {
	storage, err := StorageOf[T](w)
	if err != nil {
		return nil
	}
	return storage.Get(e)
}

// GetMut returns a pointer to e's T component and marks it changed.
func GetMut[T any](w *World, e Entity) *T {
	storage, err := StorageOf[T](w)
	if err != nil {
		return nil
	}
	return storage.GetMut(e, w.ChangeTick())
}

// Has reports whether e has a T component.
func Has[T any](w *World, e Entity) bool {
	storage, err := StorageOf[T](w)
	if err != nil {
		return false
	}
	return storage.Contains(e)
}
