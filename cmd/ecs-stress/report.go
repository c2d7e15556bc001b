package main

import (
	"cmp"
	"fmt"
	"io"
	"runtime"
	"slices"
	"text/template"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/plus3/sparsecs/ecs"
)

var jsonConf = jsoniter.Config{
	UseNumber:   true,
	EscapeHTML:  true,
	SortMapKeys: true,
}.Froze()

type Report struct {
	// Configuration
	Duration   time.Duration `json:"duration"`
	Entities   int           `json:"entities"`
	Components int           `json:"components"`
	Systems    int           `json:"systems"`
	Workers    int           `json:"workers"`
	Seed       int64         `json:"seed"`

	// Schedule
	Plan        string         `json:"plan"`
	Groups      int            `json:"groups"`
	SystemSpecs []SystemSpec   `json:"system_specs"`
	ModeCounts  map[string]int `json:"mode_counts"`

	// Results
	TotalUpdates   int64               `json:"total_updates"`
	FailedUpdates  int64               `json:"failed_updates"`
	TotalTime      time.Duration       `json:"total_time"`
	UpdateTime     Stats               `json:"update_time"`
	Scheduler      *ecs.SchedulerStats `json:"scheduler"`
	World          *ecs.WorldStats     `json:"world"`
	GCPauseMetrics bool                `json:"gc_pause_metrics"`
	MemStatsStart  runtime.MemStats    `json:"-"`
	MemStatsEnd    runtime.MemStats    `json:"-"`
	Memory         MemorySummary       `json:"memory"`
}

type Stats struct {
	Min     time.Duration   `json:"min"`
	Max     time.Duration   `json:"max"`
	Avg     time.Duration   `json:"avg"`
	P99     time.Duration   `json:"p99"`
	Samples []time.Duration `json:"-"`
}

// MemorySummary is the part of the memory statistics the JSON report keeps.
type MemorySummary struct {
	HeapAllocDelta  int64  `json:"heap_alloc_delta"`
	TotalAllocDelta int64  `json:"total_alloc_delta"`
	SysDelta        int64  `json:"sys_delta"`
	NumGC           uint32 `json:"num_gc"`
	PauseTotal      string `json:"pause_total"`
}

func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}

	var total time.Duration
	s.Min = s.Samples[0]
	s.Max = s.Samples[0]

	for _, sample := range s.Samples {
		if sample < s.Min {
			s.Min = sample
		}
		if sample > s.Max {
			s.Max = sample
		}
		total += sample
	}
	s.Avg = total / time.Duration(len(s.Samples))

	sorted := make([]time.Duration, len(s.Samples))
	copy(sorted, s.Samples)
	slices.Sort(sorted)
	s.P99 = sorted[(len(sorted)-1)*99/100]
}

func (r *Report) summarize() {
	r.Memory = MemorySummary{
		HeapAllocDelta:  int64(r.MemStatsEnd.HeapAlloc) - int64(r.MemStatsStart.HeapAlloc),
		TotalAllocDelta: int64(r.MemStatsEnd.TotalAlloc) - int64(r.MemStatsStart.TotalAlloc),
		SysDelta:        int64(r.MemStatsEnd.Sys) - int64(r.MemStatsStart.Sys),
		NumGC:           r.MemStatsEnd.NumGC - r.MemStatsStart.NumGC,
		PauseTotal:      time.Duration(r.MemStatsEnd.PauseTotalNs - r.MemStatsStart.PauseTotalNs).String(),
	}
	r.ModeCounts = make(map[string]int)
	for _, spec := range r.SystemSpecs {
		r.ModeCounts[spec.Mode]++
	}
}

// GenerateJSON writes the report as indented JSON.
func (r *Report) GenerateJSON(w io.Writer) error {
	r.summarize()
	data, err := jsonConf.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func (r *Report) Generate(w io.Writer) error {
	r.summarize()

	const reportTemplate = `
# ECS Stress Test Report

## Test Configuration
- **Run Duration:** {{.Duration}}
- **Initial Entities:** {{.Entities}}
- **Generated Components:** {{.Components}}
- **Generated Systems:** {{.Systems}}
- **Workers:** {{.Workers}}
- **Seed:** {{.Seed}}

## Schedule ({{.Groups}} groups)
{{.Plan}}
{{range $mode, $n := .ModeCounts}}- {{$mode}}: {{$n}}
{{end}}
## Performance Results
- **Total Updates:** {{.TotalUpdates}}
- **Failed Updates:** {{.FailedUpdates}}
- **Total Test Time:** {{.TotalTime}}
- **Update Time (Frame):**
  - **Avg:** {{.UpdateTime.Avg}}
  - **Min:** {{.UpdateTime.Min}}
  - **Max:** {{.UpdateTime.Max}}
  - **P99:** {{.UpdateTime.P99}}
{{with .Scheduler}}
## Slowest Systems
{{range slowest .Systems 5}}- {{.Name}} ({{.Stage}}): avg {{.AvgDuration}}, max {{.MaxDuration}}, runs {{.ExecutionCount}}
{{end}}{{end}}{{with .World}}
## World
- Entities: {{.EntityCount}}
- Resources: {{.ResourceCount}}
- Event types: {{len .EventTypes}}
{{end}}
## Memory Usage (Raw Bytes)
- Heap Alloc:     {{.MemStatsStart.HeapAlloc}} (start) -> {{.MemStatsEnd.HeapAlloc}} (end) -> delta: {{bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc}}
- Total Alloc:    {{.MemStatsStart.TotalAlloc}} (start) -> {{.MemStatsEnd.TotalAlloc}} (end) -> delta: {{bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc}}
- Sys Memory:     {{.MemStatsStart.Sys}} (start) -> {{.MemStatsEnd.Sys}} (end) -> delta: {{bsub .MemStatsEnd.Sys .MemStatsStart.Sys}}
- Num GC:         {{.MemStatsStart.NumGC}} (start) -> {{.MemStatsEnd.NumGC}} (end) -> delta: {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}

{{if .GCPauseMetrics}}
## GC Pause Durations
- **Total GC Pause:** {{.MemStatsEnd.PauseTotalNs | ns}}
- **Num GC Cycles:** {{ usub .MemStatsEnd.NumGC .MemStatsStart.NumGC }}
{{end}}
`

	fm := template.FuncMap{
		"mb": func(v any) string {
			switch val := v.(type) {
			case uint64:
				return fmt.Sprintf("%.2f", float64(val)/1024/1024)
			case int64:
				return fmt.Sprintf("%.2f", float64(val)/1024/1024)
			default:
				return "N/A"
			}
		},
		"bsub": func(a, b uint64) int64 {
			return int64(a) - int64(b)
		},
		"usub": func(a, b uint32) uint32 {
			return a - b
		},
		"ns": func(ns uint64) string {
			return time.Duration(ns).String()
		},
		"slowest": slowest,
	}

	tmpl, err := template.New("report").Funcs(fm).Parse(reportTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, r)
}

// slowest returns up to n systems ordered by average duration, longest first.
func slowest(systems []ecs.SystemStats, n int) []ecs.SystemStats {
	out := make([]ecs.SystemStats, len(systems))
	copy(out, systems)
	slices.SortStableFunc(out, func(a, b ecs.SystemStats) int {
		return cmp.Compare(b.AvgDuration, a.AvgDuration)
	})
	return out[:min(n, len(out))]
}
