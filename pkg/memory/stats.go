package memory

import (
	"fmt"

	"heapstore/pkg/storage/page"

	"github.com/dustin/go-humanize"
)

// counters are guarded by the pool mutex.
type counters struct {
	hits      uint64
	misses    uint64
	reads     uint64
	evictions uint64
	flushes   uint64
}

// Stats is a snapshot of buffer pool activity.
type Stats struct {
	Capacity   int
	Cached     int
	Dirty      int
	PageSize   int
	Hits       uint64
	Misses     uint64
	Reads      uint64
	Evictions  uint64
	Flushes    uint64
	PolicySize int
}

// HitRatio is the fraction of page requests served from the cache.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s Stats) CachedBytes() uint64 {
	return uint64(s.Cached) * uint64(s.PageSize)
}

func (s Stats) CapacityBytes() uint64 {
	return uint64(s.Capacity) * uint64(s.PageSize)
}

func (s Stats) String() string {
	return fmt.Sprintf("pages %d/%d (%s of %s), dirty %d, hits %s, misses %s (hit ratio %.1f%%), evictions %s, flushes %s",
		s.Cached, s.Capacity,
		humanize.Bytes(s.CachedBytes()), humanize.Bytes(s.CapacityBytes()),
		s.Dirty,
		humanize.Comma(int64(s.Hits)), humanize.Comma(int64(s.Misses)),
		s.HitRatio()*100,
		humanize.Comma(int64(s.Evictions)), humanize.Comma(int64(s.Flushes)))
}

// Stats returns a snapshot of the pool counters.
func (bp *BufferPool) Stats() Stats {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	dirty := 0
	for _, pid := range bp.cache.GetAll() {
		p, _ := bp.cache.Get(pid)
		if _, isDirty := p.IsDirty(); isDirty {
			dirty++
		}
	}

	return Stats{
		Capacity:   bp.cache.Capacity(),
		Cached:     bp.cache.Size(),
		Dirty:      dirty,
		PageSize:   page.PageSize(),
		Hits:       bp.stats.hits,
		Misses:     bp.stats.misses,
		Reads:      bp.stats.reads,
		Evictions:  bp.stats.evictions,
		Flushes:    bp.stats.flushes,
		PolicySize: bp.policy.Len(),
	}
}
