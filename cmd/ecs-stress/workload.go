package main

import (
	"fmt"
	"math/rand"
	"reflect"

	"github.com/plus3/sparsecs/ecs"
	"go.uber.org/zap"
)

// Slot is the payload every generated component carries. K only makes the
// component types distinct.
type Slot[K any] struct {
	Value   float64
	Counter int64
}

type (
	k00 struct{}
	k01 struct{}
	k02 struct{}
	k03 struct{}
	k04 struct{}
	k05 struct{}
	k06 struct{}
	k07 struct{}
	k08 struct{}
	k09 struct{}
	k10 struct{}
	k11 struct{}
	k12 struct{}
	k13 struct{}
	k14 struct{}
	k15 struct{}
)

// Pulse is sent by emitter systems and consumed by listener systems.
type Pulse struct {
	Source int
	Value  float64
}

// Totals is a resource shared by accumulator systems.
type Totals struct {
	Sum   float64
	Seen  int64
	Pulse int64
}

type systemMode int

const (
	modeRead systemMode = iota
	modeWrite
	modeTransfer
	modeExclusive
	modeAccumulate
	modeEmit
	modeListen
	modeChurn
	modeCount
)

func (m systemMode) String() string {
	return [...]string{"read", "write", "transfer", "exclusive", "accumulate", "emit", "listen", "churn", "count"}[m]
}

// componentKind bundles everything the workload needs to know about one
// generated component type.
type componentKind struct {
	name     string
	typ      reflect.Type
	register func(r *ecs.ComponentRegistry)
	make     func(rng *rand.Rand) any
	system   func(mode systemMode, work int) ecs.Runnable
}

// kind describes Slot[A]; B is its neighbour, used by systems that touch two
// component types.
func kind[A, B any](index int) componentKind {
	return componentKind{
		name: fmt.Sprintf("C%02d", index),
		typ:  reflect.TypeFor[Slot[A]](),
		register: func(r *ecs.ComponentRegistry) {
			ecs.RegisterComponent[Slot[A]](r)
		},
		make: func(rng *rand.Rand) any {
			return Slot[A]{Value: rng.Float64()}
		},
		system: func(mode systemMode, work int) ecs.Runnable {
			return buildSystem[A, B](index, mode, work)
		},
	}
}

var catalog = []componentKind{
	kind[k00, k01](0), kind[k01, k02](1), kind[k02, k03](2), kind[k03, k04](3),
	kind[k04, k05](4), kind[k05, k06](5), kind[k06, k07](6), kind[k07, k08](7),
	kind[k08, k09](8), kind[k09, k10](9), kind[k10, k11](10), kind[k11, k12](11),
	kind[k12, k13](12), kind[k13, k14](13), kind[k14, k15](14), kind[k15, k00](15),
}

func spin(v float64, work int) float64 {
	for i := 0; i < work; i++ {
		v = v*1.000001 + 0.5
		if v > 1e6 {
			v = 0
		}
	}
	return v
}

func buildSystem[A, B any](index int, mode systemMode, work int) ecs.Runnable {
	switch mode {
	case modeRead:
		return ecs.Func1(func(q *ecs.Query[struct{ S *Slot[A] }]) {
			sum := 0.0
			for item := range q.Values() {
				sum += spin(item.S.Value, work)
			}
			_ = sum
		})
	case modeWrite:
		return ecs.Func1(func(q *ecs.Query[struct {
			S *Slot[A] `ecs:"mut"`
		}]) {
			for item := range q.Values() {
				item.S.Value = spin(item.S.Value, work)
				item.S.Counter++
			}
		})
	case modeTransfer:
		return ecs.Func1(func(q *ecs.Query[struct {
			Dst *Slot[A] `ecs:"mut"`
			Src *Slot[B]
		}]) {
			for item := range q.Values() {
				item.Dst.Value += spin(item.Src.Value, work) * 0.001
			}
		})
	case modeExclusive:
		return ecs.Func1(func(q *ecs.Query[struct {
			S *Slot[A] `ecs:"mut"`
			_ ecs.Without[Slot[B]]
		}]) {
			for item := range q.Values() {
				item.S.Counter--
			}
		})
	case modeAccumulate:
		return ecs.Func2(func(q *ecs.Query[struct {
			S *Slot[A] `ecs:"changed"`
		}], totals *ecs.ResMut[Totals]) {
			t := totals.Get()
			for item := range q.Values() {
				t.Sum += item.S.Value
				t.Seen++
			}
		})
	case modeEmit:
		return ecs.Func2(func(q *ecs.Query[struct{ S *Slot[A] }], out *ecs.EventWriter[Pulse]) {
			if e, item, ok := first(q); ok {
				out.Send(Pulse{Source: int(e.Index()), Value: item.S.Value})
			}
		})
	case modeListen:
		return ecs.Func2(func(in *ecs.EventReader[Pulse], seen *ecs.Local[int64]) {
			for range in.Read() {
				*seen.Get()++
			}
		})
	case modeChurn:
		return ecs.Func3(func(cmds *ecs.Commands, q *ecs.Query[struct {
			ID ecs.Entity
			S  *Slot[A]
		}], rng *ecs.Local[rngState]) {
			r := rng.Get().get(int64(index))
			for e, item := range q.Iter() {
				if r.Intn(1000) == 0 {
					cmds.Despawn(e)
					cmds.Spawn(Slot[A]{Value: item.S.Value}, Slot[B]{})
				}
			}
		})
	default:
		return ecs.Func1(func(q *ecs.Query[struct {
			ID ecs.Entity
			_  ecs.With[Slot[A]]
			_  ecs.With[Slot[B]]
		}]) {
			_ = q.Count()
		})
	}
}

func first[T any](q *ecs.Query[T]) (ecs.Entity, T, bool) {
	for e, item := range q.Iter() {
		return e, item, true
	}
	var zero T
	return ecs.NoEntity, zero, false
}

type rngState struct {
	r *rand.Rand
}

func (s *rngState) get(seed int64) *rand.Rand {
	if s.r == nil {
		s.r = rand.New(rand.NewSource(seed))
	}
	return s.r
}

// Workload is a generated world plus scheduler.
type Workload struct {
	World     *ecs.World
	Scheduler *ecs.Scheduler
	Systems   []SystemSpec
}

// SystemSpec records how a system was generated.
type SystemSpec struct {
	Name      string `json:"name"`
	Component string `json:"component"`
	Mode      string `json:"mode"`
	Stage     string `json:"stage"`
}

var stages = []string{ecs.StagePreUpdate, ecs.StageUpdate, ecs.StageUpdate, ecs.StagePostUpdate}

// BuildWorkload registers the component catalog, spawns cfg.Entities
// entities with one to five random components and generates cfg.Systems
// systems with random access mixes.
func BuildWorkload(cfg *Config, logger *zap.Logger) (*Workload, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))

	registry := ecs.NewComponentRegistry()
	for _, k := range catalog {
		k.register(registry)
	}

	world := ecs.NewWorld(registry,
		ecs.WithWorldLogger(logger),
		ecs.WithDebugBorrows(cfg.DebugBorrows),
	)
	world.InsertResource(Totals{})

	for i := 0; i < cfg.Entities; i++ {
		SpawnRandomEntity(world, rng, rng.Intn(5)+1)
	}

	scheduler := ecs.NewScheduler(world, ecs.WithLogger(logger), ecs.WithWorkers(cfg.Workers))
	wl := &Workload{World: world, Scheduler: scheduler}

	for i := 0; i < cfg.Systems; i++ {
		k := catalog[rng.Intn(len(catalog))]
		mode := systemMode(rng.Intn(int(modeCount) + 1))
		spec := SystemSpec{
			Name:      fmt.Sprintf("s%03d_%s_%s", i, mode, k.name),
			Component: k.name,
			Mode:      mode.String(),
			Stage:     stages[rng.Intn(len(stages))],
		}
		err := scheduler.AddSystem(k.system(mode, 1+rng.Intn(8)), ecs.Named(spec.Name), ecs.InStage(spec.Stage))
		if err != nil {
			scheduler.Close()
			return nil, err
		}
		wl.Systems = append(wl.Systems, spec)
	}

	if err := scheduler.Build(); err != nil {
		scheduler.Close()
		return nil, err
	}
	return wl, nil
}

// SpawnRandomEntity spawns an entity with n distinct random components.
func SpawnRandomEntity(w *ecs.World, rng *rand.Rand, n int) ecs.Entity {
	n = min(n, len(catalog))
	components := make([]any, 0, n)
	for _, i := range rng.Perm(len(catalog))[:n] {
		components = append(components, catalog[i].make(rng))
	}
	return w.Spawn(components...)
}

// Churn despawns and respawns up to n random entities between ticks.
func (wl *Workload) Churn(rng *rand.Rand, n int) {
	if n <= 0 {
		return
	}
	var victims []ecs.Entity
	for e := range wl.World.Entities() {
		if rng.Intn(100) == 0 {
			victims = append(victims, e)
			if len(victims) == n {
				break
			}
		}
	}
	for _, e := range victims {
		_ = wl.World.Despawn(e)
		SpawnRandomEntity(wl.World, rng, rng.Intn(5)+1)
	}
}
