package debug

// Goroutine metrics logger, started only with -debug. Each censoring worker
// owns one goroutine and each overlay window one locked message-loop
// goroutine, so the count should stay flat across Start/Stop cycles.

import (
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"
)

// GoroutineSample is one reading of scheduler and stack metrics.
type GoroutineSample struct {
	Goroutines uint64
	StackInuse uint64
	StackSys   uint64
}

// ReadGoroutines samples the runtime.
func ReadGoroutines() GoroutineSample {
	samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
	metrics.Read(samples)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	var n uint64
	if samples[0].Value.Kind() == metrics.KindUint64 {
		n = samples[0].Value.Uint64()
	}
	return GoroutineSample{Goroutines: n, StackInuse: ms.StackInuse, StackSys: ms.StackSys}
}

// StartGoroutineLogger launches a ticker that logs goroutine count and stack memory.
func StartGoroutineLogger(interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for range t.C {
			s := ReadGoroutines()
			logger.Info("goroutine-stacks",
				slog.Uint64("goroutines", s.Goroutines),
				slog.Uint64("stack_inuse", s.StackInuse),
				slog.Uint64("stack_sys", s.StackSys),
			)
		}
	}()
}
