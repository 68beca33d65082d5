package cotel

import (
	"context"
	"os"
	"runtime"
	"sync"

	"github.com/chenjie199234/segstack/internal/version"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
	ometric "go.opentelemetry.io/otel/metric"
)

var gclker sync.Mutex
var lastGCPause uint64

// gcPause returns the stop the world time spent since the last call
func gcPause(meminfo *runtime.MemStats) uint64 {
	gclker.Lock()
	defer gclker.Unlock()
	pause := meminfo.PauseTotalNs - lastGCPause
	lastGCPause = meminfo.PauseTotalNs
	return pause
}

func registerProcess() error {
	meter := otel.Meter("segstack.process", ometric.WithInstrumentationVersion(version.String()))
	goroutine, e := meter.Int64ObservableGauge("goroutine", ometric.WithUnit("1"))
	if e != nil {
		return e
	}
	thread, e := meter.Int64ObservableGauge("thread", ometric.WithUnit("1"))
	if e != nil {
		return e
	}
	gc, e := meter.Int64ObservableGauge("gc", ometric.WithUnit("ns"))
	if e != nil {
		return e
	}
	heapobjects, e := meter.Int64ObservableGauge("heap_objects", ometric.WithUnit("1"))
	if e != nil {
		return e
	}
	rss, e := meter.Int64ObservableGauge("rss", ometric.WithUnit("By"))
	if e != nil {
		return e
	}
	memusage, e := meter.Float64ObservableGauge("mem_usage", ometric.WithUnit("%"))
	if e != nil {
		return e
	}
	cpuusage, e := meter.Float64ObservableGauge("cpu_usage", ometric.WithUnit("%"))
	if e != nil {
		return e
	}
	self, _ := process.NewProcess(int32(os.Getpid()))
	_, e = meter.RegisterCallback(func(ctx context.Context, o ometric.Observer) error {
		meminfo := &runtime.MemStats{}
		runtime.ReadMemStats(meminfo)
		threadnum, _ := runtime.ThreadCreateProfile(nil)
		o.ObserveInt64(goroutine, int64(runtime.NumGoroutine()))
		o.ObserveInt64(thread, int64(threadnum))
		o.ObserveInt64(gc, int64(gcPause(meminfo)))
		o.ObserveInt64(heapobjects, int64(meminfo.HeapObjects))
		if self != nil {
			if info, e := self.MemoryInfoWithContext(ctx); e == nil {
				o.ObserveInt64(rss, int64(info.RSS))
			}
		}
		if vm, e := mem.VirtualMemoryWithContext(ctx); e == nil {
			o.ObserveFloat64(memusage, vm.UsedPercent)
		}
		//interval 0 compares with the previous call
		if percents, e := cpu.PercentWithContext(ctx, 0, false); e == nil && len(percents) > 0 {
			o.ObserveFloat64(cpuusage, percents[0])
		}
		return nil
	}, goroutine, thread, gc, heapobjects, rss, memusage, cpuusage)
	return e
}
