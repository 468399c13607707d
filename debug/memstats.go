package debug

// Process memory logger, enabled with -debug. Logs resident and virtual size
// next to Go heap stats so native growth (GDI sections, overlay surfaces) can
// be told apart from heap growth.

import (
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// MemSample is one memory reading.
type MemSample struct {
	RSS       uint64
	VMS       uint64
	HeapAlloc uint64
	HeapInuse uint64
	NumGC     uint32
}

// ReadMem samples the current process. RSS and VMS stay zero when the OS
// query fails; the error is returned alongside the heap figures.
func ReadMem(p *process.Process) (MemSample, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := MemSample{HeapAlloc: ms.HeapAlloc, HeapInuse: ms.HeapInuse, NumGC: ms.NumGC}
	if p == nil {
		return s, nil
	}
	mi, err := p.MemoryInfo()
	if err != nil {
		return s, err
	}
	s.RSS, s.VMS = mi.RSS, mi.VMS
	return s, nil
}

// StartMemLogger launches a goroutine that logs memory stats every interval.
// Failures to query the process are logged once and suppressed.
func StartMemLogger(interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("memlog: process handle unavailable", slog.String("err", err.Error()))
		proc = nil
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var errLogged bool
		for range ticker.C {
			s, err := ReadMem(proc)
			if err != nil && !errLogged {
				logger.Warn("memlog: memory info query failed", slog.String("err", err.Error()))
				errLogged = true
			}
			logger.Info("memstats",
				slog.Int("goroutines", runtime.NumGoroutine()),
				slog.Uint64("heap_alloc", s.HeapAlloc),
				slog.Uint64("heap_inuse", s.HeapInuse),
				slog.Uint64("rss", s.RSS),
				slog.Uint64("vms", s.VMS),
				slog.Uint64("num_gc", uint64(s.NumGC)),
			)
		}
	}()
}
