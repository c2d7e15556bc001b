package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorrowTracker(t *testing.T) {
	var writer, reader, other Access
	writer.writeComponent(1)
	writer.readResource(0)
	reader.readComponent(1)
	reader.readResource(0)
	other.readComponent(2)
	other.writeResource(3)

	t.Run("readers share", func(t *testing.T) {
		b := newBorrowTracker()
		require.NoError(t, b.acquire(&reader))
		require.NoError(t, b.acquire(&reader))
		b.release(&reader)
		b.release(&reader)
	})

	t.Run("writer excludes readers", func(t *testing.T) {
		b := newBorrowTracker()
		require.NoError(t, b.acquire(&writer))
		assert.ErrorIs(t, b.acquire(&reader), ErrBorrowConflict)
		assert.ErrorIs(t, b.acquire(&writer), ErrBorrowConflict)
		require.NoError(t, b.acquire(&other))

		b.release(&writer)
		require.NoError(t, b.acquire(&reader))
	})

	t.Run("failed acquire rolls back", func(t *testing.T) {
		b := newBorrowTracker()
		var blocker Access
		blocker.writeResource(0)
		require.NoError(t, b.acquire(&blocker))

		// writer takes component 1 before failing on resource 0.
		assert.ErrorIs(t, b.acquire(&writer), ErrBorrowConflict)
		b.release(&blocker)

		require.NoError(t, b.acquire(&writer))
	})
}

func TestAccessMerge(t *testing.T) {
	var sys, read, write Access
	read.readComponent(4)
	write.writeComponent(4)

	require.True(t, sys.merge(&read))
	require.True(t, sys.merge(&read))
	assert.False(t, sys.merge(&write))

	var big Access
	big.writeComponent(130)
	require.True(t, sys.merge(&big))
	assert.Equal(t, []ComponentID{130}, sys.ComponentWrites())
	assert.Equal(t, []ComponentID{4}, sys.ComponentReads())
	assert.True(t, sys.Conflicts(&big))
	assert.False(t, read.Conflicts(&big))
}

func TestAccessMergeDisjointKinds(t *testing.T) {
	var query, res Access
	query.readComponent(3)
	res.readResource(9)

	var sys Access
	require.True(t, sys.merge(&query))
	require.NotPanics(t, func() { require.True(t, sys.merge(&res)) })
	require.NotPanics(t, func() { require.True(t, sys.merge(&query)) })
	assert.Equal(t, []ComponentID{3}, sys.ComponentReads())
	assert.Len(t, sys.ResourceReads(), 1)
}

func TestSystemPanicErrorMessage(t *testing.T) {
	err := &SystemPanicError{System: "physics", Tick: 3, Value: "boom"}
	assert.Equal(t, `system "physics" panicked on tick 3: boom`, err.Error())
	assert.ErrorIs(t, err, ErrSystemPanic)
}

func TestLateRegistrationSyncedBeforeExecution(t *testing.T) {
	type early struct{ V int }
	type late struct{ V int }
	type later struct{ V int }

	registry := NewComponentRegistry()
	RegisterComponent[early](registry)
	w := NewWorld(registry)
	require.Len(t, w.storages, 1)

	RegisterComponent[late](registry)
	s := NewScheduler(w, WithWorkers(1))
	require.NoError(t, s.AddSystem(Func(func() {}), Named("noop")))
	assert.Len(t, w.storages, 2)

	RegisterComponent[later](registry)
	require.NoError(t, s.Build())
	assert.Len(t, w.storages, 3)

	type latest struct{ V int }
	RegisterComponent[latest](registry)
	e := w.Spawn(early{})
	require.NoError(t, s.Once(0))
	assert.Len(t, w.storages, 4)
	assert.False(t, Has[latest](w, e))
}
