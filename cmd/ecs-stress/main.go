package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	values := registerFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := resolveConfig(fs, values)
	if err != nil {
		mustLogger().Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		mustLogger().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	switch cfg.Profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("stress test failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *Config, logger *zap.Logger) error {
	logger.Info("starting ECS stress test",
		zap.Int("entities", cfg.Entities),
		zap.Int("systems", cfg.Systems),
		zap.Int("workers", cfg.Workers),
		zap.Int64("seed", cfg.Seed),
	)

	wl, err := BuildWorkload(cfg, logger)
	if err != nil {
		return err
	}
	defer wl.Scheduler.Close()

	plan := wl.Scheduler.Plan()
	logger.Info("schedule built",
		zap.Stringer("world", wl.World.ID()),
		zap.Int("groups", plan.GroupCount()),
	)

	report := &Report{
		Duration:       cfg.Duration,
		Entities:       cfg.Entities,
		Components:     len(catalog),
		Systems:        cfg.Systems,
		Workers:        cfg.Workers,
		Seed:           cfg.Seed,
		Plan:           plan.String(),
		Groups:         plan.GroupCount(),
		SystemSpecs:    wl.Systems,
		GCPauseMetrics: cfg.GCPauseMetrics,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()
	simulate(ctx, wl, cfg, logger, report)

	report.Scheduler = wl.Scheduler.GetStats()
	report.World = wl.World.CollectStats()
	logger.Info("simulation finished",
		zap.Int64("updates", report.TotalUpdates),
		zap.Int64("failed", report.FailedUpdates),
		zap.Duration("avg", report.UpdateTime.Avg),
	)

	if cfg.Format == "json" {
		return report.GenerateJSON(os.Stdout)
	}
	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		return err
	}
	fmt.Println("--- End of Report ---")
	return nil
}

// simulate ticks the scheduler until ctx expires, churning entities between
// ticks and recording frame times into report.
func simulate(ctx context.Context, wl *Workload, cfg *Config, logger *zap.Logger, report *Report) {
	rng := rand.New(rand.NewSource(cfg.Seed + 1))
	runtime.ReadMemStats(&report.MemStatsStart)

	startTime := time.Now()
	lastFrameTime := startTime

	for ctx.Err() == nil {
		deltaTime := time.Since(lastFrameTime)
		lastFrameTime = time.Now()

		updateStart := time.Now()
		err := wl.Scheduler.OnceContext(ctx, deltaTime.Seconds())
		report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
		report.TotalUpdates++
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			report.FailedUpdates++
			logger.Warn("tick failed", zap.Int64("update", report.TotalUpdates), zap.Error(err))
		}

		wl.Churn(rng, cfg.ChurnPerTick)
	}

	report.TotalTime = time.Since(startTime)
	report.UpdateTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)
}
