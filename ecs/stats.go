package ecs

import (
	"sort"
	"time"
)

// SchedulerStats provides statistics about scheduler execution.
type SchedulerStats struct {
	SystemCount     int
	TotalExecutions int64
	Ticks           int64
	FailedTicks     int64
	Systems         []SystemStats
}

// SystemStats provides execution statistics for a single system.
type SystemStats struct {
	Name           string
	Stage          string
	ExecutionCount int64
	PanicCount     int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration
	LastDuration   time.Duration
	TotalDuration  time.Duration
}

type systemStatsInternal struct {
	name           string
	stage          string
	executionCount int64
	panicCount     int64
	minDuration    time.Duration
	maxDuration    time.Duration
	totalDuration  time.Duration
	lastDuration   time.Duration
}

func newSystemStatsInternal(name, stage string) systemStatsInternal {
	return systemStatsInternal{
		name:        name,
		stage:       stage,
		minDuration: time.Duration(1<<63 - 1),
	}
}

// record folds the last run of n into its statistics.
func (s *Scheduler) record(n *systemNode) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	stats := &n.stats
	duration := n.elapsed
	stats.executionCount++
	stats.lastDuration = duration
	stats.totalDuration += duration
	if n.panicked != nil {
		stats.panicCount++
	}

	if duration < stats.minDuration {
		stats.minDuration = duration
	}
	if duration > stats.maxDuration {
		stats.maxDuration = duration
	}
}

// GetStats returns statistics about system execution.
func (s *Scheduler) GetStats() *SchedulerStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	stats := &SchedulerStats{
		SystemCount: len(s.systems),
		Ticks:       s.tickCount,
		FailedTicks: s.failedTicks,
		Systems:     make([]SystemStats, len(s.systems)),
	}

	var totalExecs int64
	for i, n := range s.systems {
		internal := n.stats
		avgDuration := time.Duration(0)
		minDuration := internal.minDuration
		if internal.executionCount > 0 {
			avgDuration = internal.totalDuration / time.Duration(internal.executionCount)
		} else {
			minDuration = 0
		}

		stats.Systems[i] = SystemStats{
			Name:           internal.name,
			Stage:          internal.stage,
			ExecutionCount: internal.executionCount,
			PanicCount:     internal.panicCount,
			MinDuration:    minDuration,
			MaxDuration:    internal.maxDuration,
			AvgDuration:    avgDuration,
			LastDuration:   internal.lastDuration,
			TotalDuration:  internal.totalDuration,
		}
		totalExecs += internal.executionCount
	}

	stats.TotalExecutions = totalExecs
	return stats
}

// ComponentStats reports the population of one component storage.
type ComponentStats struct {
	Name  string
	ID    ComponentID
	Count int
}

// WorldStats is a snapshot of a World's contents.
type WorldStats struct {
	EntityCount    int
	ComponentCount int
	Components     []ComponentStats
	ResourceCount  int
	Resources      []string
	EventTypes     []string
}

// CollectStats gathers a snapshot of the world. It must not be called while
// a tick is executing.
func (w *World) CollectStats() *WorldStats {
	w.syncStorages()

	stats := &WorldStats{
		EntityCount:    w.entities.Len(),
		ComponentCount: len(w.storages),
		Components:     make([]ComponentStats, len(w.storages)),
		ResourceCount:  w.resources.count(),
		Resources:      w.resources.names(),
	}
	for i, storage := range w.storages {
		stats.Components[i] = ComponentStats{
			Name:  storage.elemType().String(),
			ID:    storage.componentID(),
			Count: storage.len(),
		}
	}
	for _, u := range w.events {
		stats.EventTypes = append(stats.EventTypes, u.typeName())
	}
	sort.Strings(stats.EventTypes)
	return stats
}
