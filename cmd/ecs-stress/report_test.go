package main

import (
	"bytes"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/plus3/sparsecs/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsFinalize(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var s Stats
		s.Finalize()
		assert.Zero(t, s.Avg)
	})

	t.Run("samples", func(t *testing.T) {
		s := Stats{Samples: []time.Duration{4 * time.Millisecond, 1 * time.Millisecond, 7 * time.Millisecond}}
		s.Finalize()
		assert.Equal(t, time.Millisecond, s.Min)
		assert.Equal(t, 7*time.Millisecond, s.Max)
		assert.Equal(t, 4*time.Millisecond, s.Avg)
		assert.Equal(t, 4*time.Millisecond, s.P99)
		// Finalize must not reorder the raw samples.
		assert.Equal(t, 4*time.Millisecond, s.Samples[0])
	})
}

func sampleReport() *Report {
	r := &Report{
		Duration:   time.Second,
		Entities:   10,
		Components: len(catalog),
		Systems:    2,
		Workers:    1,
		Seed:       9,
		Plan:       "update: [s000_read_C01 s001_write_C02]\n",
		Groups:     1,
		SystemSpecs: []SystemSpec{
			{Name: "s000_read_C01", Component: "C01", Mode: "read", Stage: ecs.StageUpdate},
			{Name: "s001_write_C02", Component: "C02", Mode: "write", Stage: ecs.StageUpdate},
		},
		TotalUpdates: 3,
		UpdateTime:   Stats{Samples: []time.Duration{time.Millisecond, 2 * time.Millisecond}},
		Scheduler: &ecs.SchedulerStats{
			SystemCount: 2,
			Ticks:       3,
			Systems: []ecs.SystemStats{
				{Name: "s000_read_C01", Stage: ecs.StageUpdate, AvgDuration: time.Microsecond, ExecutionCount: 3},
				{Name: "s001_write_C02", Stage: ecs.StageUpdate, AvgDuration: 5 * time.Microsecond, ExecutionCount: 3},
			},
		},
		World: &ecs.WorldStats{EntityCount: 10, ResourceCount: 2},
	}
	r.UpdateTime.Finalize()
	return r
}

func TestReportGenerate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Generate(&buf))

	out := buf.String()
	assert.Contains(t, out, "# ECS Stress Test Report")
	assert.Contains(t, out, "**Seed:** 9")
	assert.Contains(t, out, "update: [s000_read_C01 s001_write_C02]")
	assert.Contains(t, out, "- read: 1")
	assert.Contains(t, out, "- write: 1")
	assert.Contains(t, out, "- Entities: 10")
	assert.NotContains(t, out, "GC Pause Durations")

	slow := bytes.Index(buf.Bytes(), []byte("s001_write_C02 (update)"))
	fast := bytes.Index(buf.Bytes(), []byte("s000_read_C01 (update)"))
	require.NotEqual(t, -1, slow)
	require.NotEqual(t, -1, fast)
	assert.Less(t, slow, fast, "slowest system is listed first")
}

func TestReportGenerateJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().GenerateJSON(&buf))

	var decoded struct {
		Seed         int64          `json:"seed"`
		TotalUpdates int64          `json:"total_updates"`
		ModeCounts   map[string]int `json:"mode_counts"`
		SystemSpecs  []SystemSpec   `json:"system_specs"`
	}
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, int64(9), decoded.Seed)
	assert.Equal(t, int64(3), decoded.TotalUpdates)
	assert.Equal(t, map[string]int{"read": 1, "write": 1}, decoded.ModeCounts)
	assert.Len(t, decoded.SystemSpecs, 2)
}

func TestSlowest(t *testing.T) {
	systems := []ecs.SystemStats{
		{Name: "a", AvgDuration: 1},
		{Name: "b", AvgDuration: 3},
		{Name: "c", AvgDuration: 2},
	}
	top := slowest(systems, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].Name)
	assert.Equal(t, "c", top[1].Name)
	assert.Equal(t, "a", systems[0].Name)
	assert.Len(t, slowest(systems, 10), 3)
}
