package ecs

import (
	"reflect"
	"unsafe"
)

// componentStorage is the type-erased view of a ComponentStorage[T] used by
// the World, queries and command application.
type componentStorage interface {
	componentID() ComponentID
	elemType() reflect.Type
	insertAny(e Entity, component any) bool
	removeEntity(e Entity) (any, bool)
	containsEntity(e Entity) bool
	getAny(e Entity) any
	slotOf(e Entity) int
	pointerAt(slot int) unsafe.Pointer
	tickAt(slot int) uint64
	stampAt(slot int, tick uint64)
	entityList() []Entity
	len() int
}
