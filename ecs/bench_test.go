package ecs_test

import (
	"testing"

	"github.com/plus3/sparsecs/ecs"
)

func BenchmarkSpawn(b *testing.B) {
	w := newTestWorld()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Spawn(Position{X: 1.0, Y: 2.0}, Velocity{DX: 0.5, DY: 0.5})
	}
}

func BenchmarkSpawnWithMultipleComponents(b *testing.B) {
	w := newTestWorld()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Spawn(
			Position{X: 1.0, Y: 2.0},
			Velocity{DX: 0.5, DY: 0.5},
			Health{Current: 100, Max: 100},
			Name{Value: "Entity"},
		)
	}
}

func BenchmarkDespawn(b *testing.B) {
	w := newTestWorld()

	ids := make([]ecs.Entity, b.N)
	for i := 0; i < b.N; i++ {
		ids[i] = w.Spawn(Position{X: 1.0, Y: 2.0}, Velocity{DX: 0.5, DY: 0.5})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = w.Despawn(ids[i])
	}
}

func BenchmarkGetComponent(b *testing.B) {
	w := newTestWorld()
	e := w.Spawn(Position{X: 1.0, Y: 2.0}, Velocity{DX: 0.5, DY: 0.5})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ecs.Get[Position](w, e)
	}
}

func spawnMovers(w *ecs.World, n int) {
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			w.Spawn(Position{}, Velocity{DX: 1})
		} else {
			w.Spawn(Position{})
		}
	}
}

func BenchmarkViewIter(b *testing.B) {
	w := newTestWorld()
	spawnMovers(w, 10000)
	view := ecs.NewView[struct {
		*Position `ecs:"mut"`
		*Velocity
	}](w)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for item := range view.Values() {
			item.Position.X += item.Velocity.DX
		}
	}
}

func BenchmarkSchedulerOnce(b *testing.B) {
	w := newTestWorld()
	spawnMovers(w, 10000)
	for i := 0; i < 1000; i++ {
		w.Spawn(Health{Current: 1}, Score(0))
	}

	s := ecs.NewScheduler(w, ecs.WithWorkers(4))
	defer s.Close()
	_ = s.AddSystem(ecs.Func1(move), ecs.Named("move"))
	_ = s.AddSystem(ecs.Func1(func(q *ecs.Query[struct {
		*Health `ecs:"mut"`
	}]) {
		for item := range q.Values() {
			item.Health.Current++
		}
	}), ecs.Named("heal"))
	_ = s.AddSystem(ecs.Func1(func(q *ecs.Query[struct{ *Score }]) {
		_ = q.Count()
	}), ecs.Named("count"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Once(0.016)
	}
}

func BenchmarkCommandsApply(b *testing.B) {
	w := newTestWorld()
	cmds := ecs.NewCommands()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cmds.Spawn(Position{}, Velocity{})
		if cmds.Len() == 256 {
			_ = cmds.Apply(w)
		}
	}
}
