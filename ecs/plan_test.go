package ecs_test

import (
	"testing"

	"github.com/plus3/sparsecs/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readPosition(*ecs.Query[struct{ *Position }])           {}
func readVelocity(*ecs.Query[struct{ *Velocity }])           {}
func writePosition(*ecs.Query[struct{ *Position `ecs:"mut"` }]) {}
func writeHealth(*ecs.Query[struct{ *Health `ecs:"mut"` }])     {}

func TestPlanGrouping(t *testing.T) {
	t.Run("readers share a group", func(t *testing.T) {
		s := newTestScheduler(newTestWorld())
		require.NoError(t, s.AddSystem(ecs.Func1(readPosition), ecs.Named("a")))
		require.NoError(t, s.AddSystem(ecs.Func1(readPosition), ecs.Named("b")))
		require.NoError(t, s.Build())

		assert.Equal(t, [][]string{{"a", "b"}}, s.Plan().Stages[2].Groups)
	})

	t.Run("writer and reader are split in registration order", func(t *testing.T) {
		s := newTestScheduler(newTestWorld())
		require.NoError(t, s.AddSystem(ecs.Func1(readPosition), ecs.Named("reader")))
		require.NoError(t, s.AddSystem(ecs.Func1(writePosition), ecs.Named("writer")))
		require.NoError(t, s.AddSystem(ecs.Func1(readVelocity), ecs.Named("other")))
		require.NoError(t, s.Build())

		assert.Equal(t, [][]string{{"reader", "other"}, {"writer"}}, s.Plan().Stages[2].Groups)
	})

	t.Run("explicit ordering", func(t *testing.T) {
		s := newTestScheduler(newTestWorld())
		require.NoError(t, s.AddSystem(ecs.Func1(readPosition), ecs.Named("a"), ecs.After("b")))
		require.NoError(t, s.AddSystem(ecs.Func1(readVelocity), ecs.Named("b")))
		require.NoError(t, s.AddSystem(ecs.Func1(writeHealth), ecs.Named("c"), ecs.Before("b")))
		require.NoError(t, s.Build())

		assert.Equal(t, [][]string{{"c"}, {"b"}, {"a"}}, s.Plan().Stages[2].Groups)
	})

	t.Run("stages", func(t *testing.T) {
		s := newTestScheduler(newTestWorld())
		require.NoError(t, s.AddSystem(ecs.Func1(writePosition), ecs.Named("late"), ecs.InStage(ecs.StageLast)))
		require.NoError(t, s.AddSystem(ecs.Func1(writePosition), ecs.Named("early"), ecs.InStage(ecs.StageFirst), ecs.Before("late")))
		require.NoError(t, s.Build())

		plan := s.Plan()
		require.Len(t, plan.Stages, 5)
		assert.Equal(t, "first", plan.Stages[0].Name)
		assert.Equal(t, [][]string{{"early"}}, plan.Stages[0].Groups)
		assert.Equal(t, [][]string{{"late"}}, plan.Stages[4].Groups)
		assert.Equal(t, 2, plan.GroupCount())
		assert.Equal(t, "first: [early]\nlast: [late]\n", plan.String())
	})

	t.Run("custom stages", func(t *testing.T) {
		s := newTestScheduler(newTestWorld(), ecs.WithStages("input", "sim"))
		require.NoError(t, s.AddSystem(ecs.Func(func() {}), ecs.Named("x"), ecs.InStage("sim")))
		require.NoError(t, s.Build())
		assert.Equal(t, []ecs.StagePlan{
			{Name: "input"},
			{Name: "sim", Groups: [][]string{{"x"}}},
		}, s.Plan().Stages)
	})

	t.Run("plan before build", func(t *testing.T) {
		s := newTestScheduler(newTestWorld())
		assert.Nil(t, s.Plan())
	})
}

func TestPlanErrors(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		s := newTestScheduler(newTestWorld())
		require.NoError(t, s.AddSystem(ecs.Func(func() {}), ecs.Named("a"), ecs.After("b")))
		require.NoError(t, s.AddSystem(ecs.Func(func() {}), ecs.Named("b"), ecs.After("a")))
		assert.ErrorIs(t, s.Build(), ecs.ErrConflictingAccess)
		assert.ErrorIs(t, s.Once(0), ecs.ErrConflictingAccess)
	})

	t.Run("unknown system", func(t *testing.T) {
		s := newTestScheduler(newTestWorld())
		require.NoError(t, s.AddSystem(ecs.Func(func() {}), ecs.Named("a"), ecs.Before("ghost")))
		assert.ErrorIs(t, s.Build(), ecs.ErrConflictingAccess)
	})

	t.Run("ordering against stage order", func(t *testing.T) {
		s := newTestScheduler(newTestWorld())
		require.NoError(t, s.AddSystem(ecs.Func(func() {}), ecs.Named("a"), ecs.InStage(ecs.StageLast)))
		require.NoError(t, s.AddSystem(ecs.Func(func() {}), ecs.Named("b"), ecs.InStage(ecs.StageFirst), ecs.After("a")))
		assert.ErrorIs(t, s.Build(), ecs.ErrConflictingAccess)
	})
}
