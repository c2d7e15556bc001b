package ecs

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Default stage names, in execution order.
const (
	StageFirst      = "first"
	StagePreUpdate  = "pre_update"
	StageUpdate     = "update"
	StagePostUpdate = "post_update"
	StageLast       = "last"
)

// SchedulerState is the phase of the scheduler's tick state machine.
type SchedulerState int32

const (
	StateIdle SchedulerState = iota
	StatePlanning
	StateExecuting
	StateApplying
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateApplying:
		return "applying"
	}
	return "unknown"
}

// PanicAction tells the scheduler what to do after a system panicked.
type PanicAction int

const (
	// PanicAbortTick skips the rest of the tick, including systems of the
	// panicking group that have not started.
	PanicAbortTick PanicAction = iota
	// PanicContinue keeps executing the remaining groups.
	PanicContinue
)

// PanicPolicy decides how a tick proceeds after a system panic. With
// workers it is called from the worker that ran the system.
type PanicPolicy func(err *SystemPanicError) PanicAction

type schedulerOptions struct {
	logger  *zap.Logger
	workers int
	stages  []string
	policy  PanicPolicy
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(o *schedulerOptions)

// WithLogger sets the scheduler's logger.
func WithLogger(logger *zap.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		o.logger = logger
	}
}

// WithWorkers sets the size of the worker pool that runs systems of one
// group in parallel. With n <= 1 every system runs on the calling goroutine.
func WithWorkers(n int) SchedulerOption {
	return func(o *schedulerOptions) {
		o.workers = n
	}
}

// WithStages replaces the default stage list.
func WithStages(names ...string) SchedulerOption {
	return func(o *schedulerOptions) {
		o.stages = names
	}
}

// WithPanicPolicy sets the policy applied when a system panics.
func WithPanicPolicy(policy PanicPolicy) SchedulerOption {
	return func(o *schedulerOptions) {
		o.policy = policy
	}
}

// systemNode is a registered system and its per-tick bookkeeping.
type systemNode struct {
	index    int
	name     string
	stage    string
	runnable Runnable
	access   Access
	before   []string
	after    []string
	ticks    systemTicks
	buffers  []*Commands

	elapsed  time.Duration
	panicked *SystemPanicError
	skipped  bool
	stats    systemStatsInternal
}

// SystemOption configures a system added to a Scheduler.
type SystemOption func(n *systemNode)

// Named overrides the system's name.
func Named(name string) SystemOption {
	return func(n *systemNode) {
		n.name = name
	}
}

// InStage places the system in the named stage instead of "update".
func InStage(stage string) SystemOption {
	return func(n *systemNode) {
		n.stage = stage
	}
}

// Before requires the system to run before the named systems.
func Before(names ...string) SystemOption {
	return func(n *systemNode) {
		n.before = append(n.before, names...)
	}
}

// After requires the system to run after the named systems.
func After(names ...string) SystemOption {
	return func(n *systemNode) {
		n.after = append(n.after, names...)
	}
}

// Scheduler manages and executes systems.
// Systems are grouped so that systems with disjoint access run in parallel;
// structural changes are deferred through Commands and applied after every
// system of a tick has finished.
type Scheduler struct {
	world   *World
	logger  *zap.Logger
	pool    *ants.Pool
	stages  []string
	policy  PanicPolicy
	systems []*systemNode
	byName  map[string]*systemNode
	plan    [][][]*systemNode
	built   bool

	state   atomic.Int32
	tickMu  sync.Mutex
	statsMu sync.Mutex

	tickCount   int64
	failedTicks int64
}

// NewScheduler creates a new scheduler for the given world.
func NewScheduler(world *World, opts ...SchedulerOption) *Scheduler {
	o := &schedulerOptions{
		logger:  world.Logger(),
		workers: runtime.NumCPU(),
		stages:  []string{StageFirst, StagePreUpdate, StageUpdate, StagePostUpdate, StageLast},
		policy:  func(*SystemPanicError) PanicAction { return PanicAbortTick },
	}
	for _, opt := range opts {
		opt(o)
	}

	s := &Scheduler{
		world:  world,
		logger: o.logger.Named("scheduler"),
		stages: o.stages,
		policy: o.policy,
		byName: make(map[string]*systemNode),
	}

	if o.workers > 1 {
		pool, err := ants.NewPool(o.workers)
		if err != nil {
			s.logger.Warn("worker pool unavailable, running systems inline", zap.Error(err))
		} else {
			s.pool = pool
		}
	}

	if !HasResource[Time](world) {
		InsertResourceOf(world, Time{})
	}
	return s
}

// World returns the world the scheduler runs against.
func (s *Scheduler) World() *World {
	return s.world
}

// State returns the current phase of the tick state machine.
func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

func (s *Scheduler) setState(state SchedulerState) {
	s.state.Store(int32(state))
}

// AddSystem resolves the system's parameters against the world and adds it
// to the schedule. Parameters are resolved exactly once, here.
func (s *Scheduler) AddSystem(r Runnable, opts ...SystemOption) error {
	if s.built {
		return eris.Wrap(ErrScheduleLocked, "add system")
	}

	n := &systemNode{
		index:    len(s.systems),
		name:     r.defaultName(),
		stage:    StageUpdate,
		runnable: r,
	}
	for _, opt := range opts {
		opt(n)
	}

	if !slices.Contains(s.stages, n.stage) {
		return eris.Wrapf(ErrUnknownStage, "system %s in stage %q", n.name, n.stage)
	}
	if _, ok := s.byName[n.name]; ok {
		return eris.Wrapf(ErrDuplicateSystem, "system %s", n.name)
	}

	s.world.syncStorages()

	ctx := &paramContext{
		world:  s.world,
		system: n.name,
		ticks:  &n.ticks,
	}
	if err := r.resolve(ctx); err != nil {
		return eris.Wrapf(err, "resolve system %s", n.name)
	}
	n.access = ctx.access
	n.buffers = ctx.buffers
	n.stats = newSystemStatsInternal(n.name, n.stage)

	s.systems = append(s.systems, n)
	s.byName[n.name] = n
	return nil
}

// Register adds a struct system. Its name is the struct type's name.
func (s *Scheduler) Register(system System, opts ...SystemOption) error {
	return s.AddSystem(Struct(system), opts...)
}

// Once runs a single tick with the given delta time in seconds.
func (s *Scheduler) Once(dt float64) error {
	return s.OnceContext(context.Background(), dt)
}

// OnceContext runs a single tick. ctx is checked between groups; a group
// that has started always completes. Panics are recovered per system and
// returned, combined with any interruption, after commands are applied.
func (s *Scheduler) OnceContext(ctx context.Context, dt float64) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if !s.built {
		if err := s.Build(); err != nil {
			return err
		}
	}

	s.setState(StatePlanning)
	s.world.syncStorages()
	clock := GetResourceMut[Time](s.world)
	if clock == nil {
		InsertResourceOf(s.world, Time{})
		clock = GetResourceMut[Time](s.world)
	}
	clock.advance(dt)
	tick := clock.Tick

	s.setState(StateExecuting)
	s.world.inTick.Store(true)

	var errs error
execute:
	for si, groups := range s.plan {
		for gi, group := range groups {
			if err := ctx.Err(); err != nil {
				errs = multierr.Append(errs, eris.Wrapf(err, "tick %d interrupted at stage %s group %d", tick, s.stages[si], gi))
				break execute
			}

			halt := s.runGroup(group, tick, dt)

			for _, n := range group {
				if n.skipped {
					continue
				}
				s.record(n)
				if n.panicked == nil {
					continue
				}
				s.logger.Error("system panicked",
					zap.String("system", n.name),
					zap.Uint64("tick", tick),
					zap.Any("value", n.panicked.Value),
					zap.ByteString("stack", n.panicked.Stack),
				)
				errs = multierr.Append(errs, n.panicked)
			}
			if halt {
				break execute
			}
		}
	}

	s.world.inTick.Store(false)
	s.setState(StateApplying)
	s.world.advanceTick()
	s.apply()
	s.world.UpdateEvents()

	s.statsMu.Lock()
	s.tickCount++
	if errs != nil {
		s.failedTicks++
	}
	s.statsMu.Unlock()

	s.setState(StateIdle)
	return errs
}

// runGroup executes one group and waits for all of its systems. A panic
// the policy does not continue past stops systems of the group that have
// not started yet; those already running finish. It reports whether the
// tick must halt.
func (s *Scheduler) runGroup(group []*systemNode, tick uint64, dt float64) bool {
	for _, n := range group {
		n.panicked = nil
		n.skipped = false
	}

	var abort atomic.Bool
	exec := func(n *systemNode) {
		if abort.Load() {
			n.skipped = true
			return
		}
		s.runSystem(n, tick, dt)
		if n.panicked != nil && s.policy(n.panicked) != PanicContinue {
			abort.Store(true)
		}
	}

	if s.pool == nil || len(group) == 1 {
		for _, n := range group {
			exec(n)
		}
		return abort.Load()
	}

	var wg sync.WaitGroup
	wg.Add(len(group))
	for _, n := range group {
		task := func() {
			defer wg.Done()
			exec(n)
		}
		if err := s.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	return abort.Load()
}

func (s *Scheduler) runSystem(n *systemNode, tick uint64, dt float64) {
	n.ticks.thisRun = s.world.advanceTick()
	start := time.Now()

	defer func() {
		n.elapsed = time.Since(start)
		if r := recover(); r != nil {
			n.panicked = &SystemPanicError{
				System: n.name,
				Tick:   tick,
				Value:  r,
				Stack:  debug.Stack(),
			}
		}
		n.ticks.lastRun = n.ticks.thisRun
	}()

	if s.world.debug {
		if err := s.world.borrows.acquire(&n.access); err != nil {
			panic(err)
		}
		defer s.world.borrows.release(&n.access)
	}

	n.runnable.run(tick, dt)
}

// apply drains command buffers per system in registration order.
func (s *Scheduler) apply() {
	for _, n := range s.systems {
		for _, buf := range n.buffers {
			if n.panicked != nil {
				buf.Discard()
				continue
			}
			if err := buf.Apply(s.world); err != nil {
				s.logger.Warn("command failed", zap.String("system", n.name), zap.Error(err))
			}
		}
		n.panicked = nil
	}
}

// Run executes ticks at the given interval until the context is cancelled
// or a tick fails.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(lastTime).Seconds()
			lastTime = now
			if err := s.OnceContext(ctx, dt); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Close releases the worker pool.
func (s *Scheduler) Close() {
	if s.pool != nil {
		s.pool.Release()
		s.pool = nil
	}
}
