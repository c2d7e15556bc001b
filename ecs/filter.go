package ecs

import "reflect"

type filterKind uint8

const (
	filterWith filterKind = iota
	filterWithout
	filterChanged
)

// queryFilter is implemented by the zero-size marker types that restrict a
// query without binding a field.
type queryFilter interface {
	filter() (filterKind, reflect.Type)
}

// With restricts a query to entities that have a C component.
// Declare it as a blank field: `_ ecs.With[Player]`.
type With[C any] struct{}

func (With[C]) filter() (filterKind, reflect.Type) { return filterWith, reflect.TypeFor[C]() }

// Without restricts a query to entities that do not have a C component.
type Without[C any] struct{}

func (Without[C]) filter() (filterKind, reflect.Type) { return filterWithout, reflect.TypeFor[C]() }

// Changed restricts a query to entities whose C component was inserted or
// mutably accessed since the querying system last ran.
type Changed[C any] struct{}

func (Changed[C]) filter() (filterKind, reflect.Type) { return filterChanged, reflect.TypeFor[C]() }

var queryFilterType = reflect.TypeFor[queryFilter]()
