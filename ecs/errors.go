package ecs

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrStaleEntity is returned when a handle refers to an entity that has
	// already been despawned. Callers should drop the handle.
	ErrStaleEntity = eris.New("stale entity")

	// ErrEntityNotFound is returned by component operations on a handle that
	// is not live.
	ErrEntityNotFound = eris.New("entity not found")

	// ErrConflictingAccess is returned at registration or planning time when
	// a system's declared access contradicts itself or the ordering
	// constraints cannot be satisfied.
	ErrConflictingAccess = eris.New("conflicting access")

	// ErrSystemPanic matches every *SystemPanicError.
	ErrSystemPanic = eris.New("system panic")

	// ErrUnregisteredComponent is returned when a component type was never
	// registered with the world's ComponentRegistry.
	ErrUnregisteredComponent = eris.New("unregistered component")

	// ErrScheduleLocked is returned when systems are added after the
	// schedule has been built.
	ErrScheduleLocked = eris.New("schedule locked")

	// ErrDuplicateSystem is returned when two systems share a name.
	ErrDuplicateSystem = eris.New("duplicate system")

	// ErrUnknownStage is returned when a system names a stage the scheduler
	// was not configured with.
	ErrUnknownStage = eris.New("unknown stage")

	// ErrBorrowConflict is raised by the debug borrow tracker when a storage
	// or resource is borrowed in violation of the readers/writer rule.
	ErrBorrowConflict = eris.New("borrow conflict")
)

// SystemPanicError reports a system that panicked during a tick.
type SystemPanicError struct {
	System string
	Tick   uint64
	Value  any
	Stack  []byte
}

func (e *SystemPanicError) Error() string {
	return fmt.Sprintf("system %q panicked on tick %d: %v", e.System, e.Tick, e.Value)
}

// Unwrap exposes ErrSystemPanic and, when the panic value is an error, that error.
func (e *SystemPanicError) Unwrap() []error {
	if err, ok := e.Value.(error); ok {
		return []error{ErrSystemPanic, err}
	}
	return []error{ErrSystemPanic}
}
