package cache

import (
	"context"
	"io"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// HeapSampler 返回当前堆使用率（0-1）。
type HeapSampler func() float64

// RuntimeHeapRatio samples HeapAlloc against HeapSys, the Go equivalent of
// "heap used / heap total".
func RuntimeHeapRatio() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapSys == 0 {
		return 0
	}
	return float64(stats.HeapAlloc) / float64(stats.HeapSys)
}

// PressureMonitor 周期性采样堆使用率，并在超过高水位时让缓存批量淘汰。
type PressureMonitor struct {
	cache    *Memory
	interval time.Duration
	sample   HeapSampler
	logger   *logrus.Entry
	onEvict  func(int)
}

// NewPressureMonitor 构建后台监控任务；sample 为空时使用 RuntimeHeapRatio。
func NewPressureMonitor(cache *Memory, interval time.Duration, sample HeapSampler, logger *logrus.Entry) *PressureMonitor {
	if sample == nil {
		sample = RuntimeHeapRatio
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = logrus.NewEntry(discard)
	}
	return &PressureMonitor{
		cache:    cache,
		interval: interval,
		sample:   sample,
		logger:   logger,
	}
}

// OnEvict 注册淘汰回调，每次有条目被压力淘汰时以淘汰数量调用。
func (p *PressureMonitor) OnEvict(fn func(int)) {
	p.onEvict = fn
}

// Run blocks until ctx is cancelled, checking pressure once per interval.
func (p *PressureMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check()
		}
	}
}

// Check 执行一次采样与淘汰，返回被淘汰的条目数。
func (p *PressureMonitor) Check() int {
	ratio := p.sample()
	evicted := p.cache.AdaptToPressure(ratio)
	if evicted > 0 {
		if p.onEvict != nil {
			p.onEvict(evicted)
		}
		stats := p.cache.Stats()
		p.logger.WithFields(logrus.Fields{
			"action":     "memory_pressure",
			"heap_ratio": ratio,
			"evicted":    evicted,
			"used_bytes": stats.UsedBytes,
		}).Warn("cache_pressure_evicted")
	}
	return evicted
}
