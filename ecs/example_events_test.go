package ecs_test

import (
	"fmt"

	"github.com/plus3/sparsecs/ecs"
)

type Scored struct {
	Player string
}

type Scoreboard struct {
	Points map[string]int
}

// ExampleEventWriter sends events from one system and reads them in another
// ordered after it, within the same tick.
func ExampleEventWriter() {
	world := ecs.NewWorld(ecs.NewComponentRegistry())
	world.InsertResource(Scoreboard{Points: map[string]int{}})

	goal := func(events *ecs.EventWriter[Scored], clock *ecs.Res[ecs.Time]) {
		if clock.Get().Tick%2 == 1 {
			events.Send(Scored{Player: "left"})
		} else {
			events.Send(Scored{Player: "right"})
		}
	}
	tally := func(events *ecs.EventReader[Scored], board *ecs.ResMut[Scoreboard]) {
		for e := range events.Read() {
			board.Get().Points[e.Player]++
		}
	}

	scheduler := ecs.NewScheduler(world, ecs.WithWorkers(1))
	scheduler.AddSystem(ecs.Func2(goal), ecs.Named("goal"))
	scheduler.AddSystem(ecs.Func2(tally), ecs.Named("tally"), ecs.After("goal"))

	for i := 0; i < 3; i++ {
		scheduler.Once(1)
	}

	board := ecs.GetResource[Scoreboard](world)
	fmt.Println("left:", board.Points["left"])
	fmt.Println("right:", board.Points["right"])

	// Output:
	// left: 2
	// right: 1
}

// ExampleWorld_InsertResource shows resources used directly from host code.
func ExampleWorld_InsertResource() {
	world := ecs.NewWorld(ecs.NewComponentRegistry())
	world.InsertResource(GameTime{TotalFrames: 1})

	ecs.GetResourceMut[GameTime](world).TotalFrames++
	fmt.Println(ecs.GetResource[GameTime](world).TotalFrames)

	old, ok := ecs.RemoveResource[GameTime](world)
	fmt.Println(old.TotalFrames, ok, ecs.HasResource[GameTime](world))

	// Output:
	// 2
	// 2 true false
}
