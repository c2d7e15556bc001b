package ecs_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/plus3/sparsecs/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](v *ecs.View[T]) map[ecs.Entity]T {
	out := make(map[ecs.Entity]T)
	for e, item := range v.Iter() {
		out[e] = item
	}
	return out
}

func TestViewRequired(t *testing.T) {
	w := newTestWorld()
	both := w.Spawn(Position{X: 1}, Velocity{DX: 1})
	w.Spawn(Position{X: 2})
	w.Spawn(Velocity{DX: 3})

	view := ecs.NewView[struct {
		*Position
		*Velocity
	}](w)

	got := collect(view)
	require.Len(t, got, 1)
	assert.Equal(t, float32(1), got[both].Position.X)
	assert.Equal(t, float32(1), got[both].Velocity.DX)
	assert.Equal(t, 1, view.Count())
}

func TestViewOptional(t *testing.T) {
	w := newTestWorld()
	a := w.Spawn(Position{X: 1}, Health{Current: 5})
	b := w.Spawn(Position{X: 2})

	view := ecs.NewView[struct {
		*Position
		Health *Health `ecs:"optional"`
	}](w)

	got := collect(view)
	require.Len(t, got, 2)
	require.NotNil(t, got[a].Health)
	assert.Equal(t, 5, got[a].Health.Current)
	assert.Nil(t, got[b].Health)
}

func TestViewEntityField(t *testing.T) {
	w := newTestWorld()
	e := w.Spawn(Position{})

	view := ecs.NewView[struct {
		ID ecs.Entity
		*Position
	}](w)

	for item := range view.Values() {
		assert.Equal(t, e, item.ID)
	}
}

func TestViewFilters(t *testing.T) {
	w := newTestWorld()
	player := w.Spawn(Position{X: 1}, PlayerController{})
	enemy := w.Spawn(Position{X: 2}, AI{})
	w.Spawn(Position{X: 3})

	t.Run("with", func(t *testing.T) {
		view := ecs.NewView[struct {
			*Position
			_ ecs.With[PlayerController]
		}](w)
		got := collect(view)
		require.Len(t, got, 1)
		assert.Contains(t, got, player)
	})

	t.Run("without", func(t *testing.T) {
		view := ecs.NewView[struct {
			*Position
			_ ecs.Without[PlayerController]
			_ ecs.Without[AI]
		}](w)
		got := collect(view)
		require.Len(t, got, 1)
		assert.NotContains(t, got, player)
		assert.NotContains(t, got, enemy)
	})

	t.Run("with only", func(t *testing.T) {
		view := ecs.NewView[struct {
			ID ecs.Entity
			_  ecs.With[AI]
		}](w)
		got := collect(view)
		require.Len(t, got, 1)
		assert.Equal(t, enemy, got[enemy].ID)
	})

	t.Run("no driving storage walks every entity", func(t *testing.T) {
		view := ecs.NewView[struct {
			ID ecs.Entity
			_  ecs.Without[AI]
		}](w)
		assert.Equal(t, 2, view.Count())
	})
}

func TestViewContradiction(t *testing.T) {
	w := newTestWorld()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ecs.ErrConflictingAccess))
	}()
	ecs.NewView[struct {
		*Position
		_ ecs.Without[Position]
	}](w)
}

func TestViewMalformed(t *testing.T) {
	type Unregistered struct{}
	w := newTestWorld()

	assert.Panics(t, func() { ecs.NewView[int](w) })
	assert.Panics(t, func() { ecs.NewView[struct{ Position }](w) })
	assert.Panics(t, func() {
		ecs.NewView[struct {
			P *Position `ecs:"sometimes"`
		}](w)
	})
	assert.Panics(t, func() {
		ecs.NewView[struct {
			P *Position `ecs:"optional,changed"`
		}](w)
	})
	assert.Panics(t, func() { ecs.NewView[struct{ *Unregistered }](w) })
	assert.Panics(t, func() {
		ecs.NewView[struct {
			A *Position `ecs:"mut"`
			B *Position
		}](w)
	})
}

func TestViewGetAndFill(t *testing.T) {
	w := newTestWorld()
	e := w.Spawn(Position{X: 7}, Velocity{})
	other := w.Spawn(Velocity{})

	view := ecs.NewView[struct {
		*Position
		*Velocity
	}](w)

	item := view.Get(e)
	require.NotNil(t, item)
	assert.Equal(t, float32(7), item.Position.X)
	assert.Nil(t, view.Get(other))

	require.NoError(t, w.Despawn(e))
	assert.Nil(t, view.Get(e))

	var out struct {
		*Position
		*Velocity
	}
	assert.False(t, view.Fill(e, &out))
}

func TestViewMutation(t *testing.T) {
	w := newTestWorld()
	e := w.Spawn(Position{X: 1})

	view := ecs.NewView[struct {
		*Position `ecs:"mut"`
	}](w)
	for item := range view.Values() {
		item.Position.X = 10
	}
	assert.Equal(t, float32(10), ecs.Get[Position](w, e).X)

	access := view.Access()
	posID, _ := w.Registry().ID(reflect.TypeFor[Position]())
	assert.True(t, access.WritesComponent(posID))
	assert.False(t, access.ReadsComponent(posID))
}

func TestViewIdempotent(t *testing.T) {
	w := newTestWorld()
	for i := 0; i < 10; i++ {
		w.Spawn(Position{X: float32(i)}, Velocity{})
	}

	view := ecs.NewView[struct {
		ID ecs.Entity
		*Position
		*Velocity
	}](w)

	first := collect(view)
	second := collect(view)
	assert.Equal(t, first, second)
	assert.Len(t, first, 10)
}

func TestViewEarlyBreak(t *testing.T) {
	w := newTestWorld()
	for i := 0; i < 5; i++ {
		w.Spawn(Position{})
	}

	view := ecs.NewView[struct{ *Position }](w)
	n := 0
	for range view.Iter() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
