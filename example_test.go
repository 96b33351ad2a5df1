package gcarena_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/gcarena"
)

func Example() {
	h, err := gcarena.New()
	if err != nil {
		panic(err)
	}
	defer h.Close()

	var root gcarena.Thing
	for i := 0; i < 100; i++ {
		t, err := h.Allocate(gcarena.Size32)
		if err != nil {
			panic(err)
		}
		if i == 0 {
			root = t
		}
	}

	h.Mark(root)
	if err := h.Collect(context.Background(), gcarena.SweepForeground); err != nil {
		panic(err)
	}

	fmt.Println("freed:", h.Stats().ThingsFreed)
	// Output: freed: 99
}

func ExampleBasicMetricsCollector() {
	metrics := &gcarena.BasicMetricsCollector{}
	h, err := gcarena.New(gcarena.WithMetricsCollector(metrics))
	if err != nil {
		panic(err)
	}
	defer h.Close()

	for i := 0; i < 10; i++ {
		if _, err := h.Allocate(gcarena.Size64); err != nil {
			panic(err)
		}
	}

	stats := metrics.GetStats()
	fmt.Println("allocations:", stats.AllocationCount, "slow:", stats.SlowAllocationCount)
	// Output: allocations: 10 slow: 1
}
