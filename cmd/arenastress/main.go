// Command arenastress runs a synthetic allocate/mark/collect workload against
// a gcarena heap and prints the resulting statistics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/hupe1980/gcarena"
	"github.com/spf13/pflag"
)

var (
	Cycles     = pflag.IntP("cycles", "n", 20, "number of allocate/collect cycles")
	PerCycle   = pflag.IntP("allocs", "a", 50000, "allocations per cycle")
	Survival   = pflag.Float64P("survival", "s", 0.1, "fraction of things marked live each cycle")
	Background = pflag.BoolP("background", "b", true, "sweep in the background")
	Workers    = pflag.IntP("workers", "w", 2, "max background workers")
	MemLimit   = pflag.Int64P("mem-limit", "m", 0, "memory limit in bytes (0 for unlimited)")
	Decommit   = pflag.Int64("decommit-rate", 0, "bytes per second returned to the os (0 for unlimited)")
	Seed       = pflag.Uint64("seed", 1, "random seed")
	Verify     = pflag.Bool("verify", true, "verify heap structures after every cycle")
	LogLevel   = pflag.String("log-level", "info", "log level (debug, info, warn, error)")
	LogJSON    = pflag.Bool("log-json", false, "use json logs")
	Help       = pflag.BoolP("help", "h", false, "show this help text")
)

func main() {
	pflag.Parse()

	if *Help || pflag.NArg() != 0 {
		fmt.Printf("usage: %s [options]\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if *Help {
			return
		}
		os.Exit(2)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*LogLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *LogLevel)
		os.Exit(2)
	}

	var logger *gcarena.Logger
	if *LogJSON {
		logger = gcarena.NewJSONLogger(level)
	} else {
		logger = gcarena.NewConsoleLogger(os.Stderr, level)
	}
	slog.SetDefault(logger.Logger)

	if err := run(logger); err != nil {
		slog.Error("stress run failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *gcarena.Logger) error {
	metrics := &gcarena.BasicMetricsCollector{}
	h, err := gcarena.New(
		gcarena.WithLogger(logger),
		gcarena.WithMetricsCollector(metrics),
		gcarena.WithMaxBackgroundWorkers(*Workers),
		gcarena.WithMemoryLimit(*MemLimit),
		gcarena.WithDecommitRate(*Decommit),
	)
	if err != nil {
		return fmt.Errorf("create heap: %w", err)
	}
	defer h.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewPCG(*Seed, *Seed^0x9e3779b97f4a7c15))
	classes := gcarena.SizeClasses()
	mode := gcarena.SweepForeground
	if *Background {
		mode = gcarena.SweepBackground
	}

	var live []gcarena.Thing
	start := time.Now()
	for cycle := 0; cycle < *Cycles; cycle++ {
		if err := h.WaitSweep(ctx); err != nil {
			return err
		}

		// Survivors of the previous cycle stay live with the same probability.
		var next []gcarena.Thing
		for _, t := range live {
			if rng.Float64() < *Survival {
				h.Mark(t)
				next = append(next, t)
			}
		}
		for i := 0; i < *PerCycle; i++ {
			t, err := h.Allocate(classes[rng.IntN(len(classes))])
			if err != nil {
				return fmt.Errorf("cycle %d: %w", cycle, err)
			}
			t.Bytes()[0] = byte(cycle)
			if rng.Float64() < *Survival {
				h.Mark(t)
				next = append(next, t)
			}
		}
		live = next

		if err := h.Collect(ctx, mode); err != nil {
			return fmt.Errorf("cycle %d: collect: %w", cycle, err)
		}
		if *Verify {
			if err := h.WaitSweep(ctx); err != nil {
				return err
			}
			if err := h.Verify(); err != nil {
				return fmt.Errorf("cycle %d: %w", cycle, err)
			}
		}

		s := h.Stats()
		slog.Info("cycle done",
			"cycle", cycle,
			"live", len(live),
			"freed", s.ThingsFreed,
			"chunks", s.ActiveChunks,
			"mapped", s.MappedBytes,
		)
	}
	if err := h.WaitSweep(ctx); err != nil {
		return err
	}

	ms := metrics.GetStats()
	fmt.Printf("cycles:          %d in %s\n", *Cycles, time.Since(start).Round(time.Millisecond))
	fmt.Printf("allocations:     %d (%d slow, %d failed)\n", ms.AllocationCount, ms.SlowAllocationCount, ms.AllocationFailures)
	fmt.Printf("arenas:          %d created, %d destroyed\n", ms.ArenasCreated, ms.ArenasDestroyed)
	fmt.Printf("sweeps:          %d (%d background, %d cancelled), avg %s\n", ms.SweepCount, ms.BackgroundSweepCount, ms.CancelledSweepCount, ms.SweepAvg)
	fmt.Printf("things freed:    %d\n", ms.ThingsFreed)
	return nil
}
