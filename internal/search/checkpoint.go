package search

import (
	"log"
	"runtime"
	"time"

	"golang.org/x/time/rate"
)

// checkpoint decides when a running scan reports progress, yields and
// samples memory. Nothing happens before the grace period ends, and after
// that at most once per interval.
type checkpoint struct {
	clock     func() time.Time
	notBefore time.Time
	limiter   *rate.Limiter
	memory    func() uint64
	baseline  uint64
	factor    uint64
}

func newCheckpoint(opts Options, clock func() time.Time, memory func() uint64) *checkpoint {
	start := clock()
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	baseline := memory()
	log.Printf("scan: memory usage: %d MB", baseline>>20)
	return &checkpoint{
		clock:     clock,
		notBefore: start.Add(opts.Grace),
		limiter:   rate.NewLimiter(limit, 1),
		memory:    memory,
		baseline:  baseline,
		factor:    opts.MemoryFactor,
	}
}

func (c *checkpoint) due() bool {
	now := c.clock()
	if now.Before(c.notBefore) {
		return false
	}
	return c.limiter.AllowN(now, 1)
}

// exhausted reports whether memory grew past factor times the baseline.
func (c *checkpoint) exhausted() bool {
	used := c.memory()
	log.Printf("scan: memory usage: %d MB", used>>20)
	return c.baseline > 0 && used > c.baseline*c.factor
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}
