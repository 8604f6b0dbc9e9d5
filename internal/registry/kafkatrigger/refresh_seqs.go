package kafkatrigger

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seqKey scopes a sequence number to one publisher and one collection. An
// empty collection stands for whole document refreshes.
type seqKey struct {
	source     string
	collection string
}

// refreshSeqs remembers the highest refresh sequence applied per collection
// so redelivered or reordered events do not trigger a second reload.
type refreshSeqs struct {
	mu   sync.Mutex
	last *lru.Cache[seqKey, uint64]
}

func newRefreshSeqs(size int) *refreshSeqs {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[seqKey, uint64](size)
	return &refreshSeqs{last: c}
}

// fresh records ev and reports whether its sequence is newer than the last
// one applied for the same collection. Unsequenced events are always fresh.
func (s *refreshSeqs) fresh(ev Event) bool {
	if ev.Seq == 0 {
		return true
	}
	k := seqKey{source: ev.Source, collection: ev.Collection}
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.last.Get(k); ok && ev.Seq <= last {
		return false
	}
	s.last.Add(k, ev.Seq)
	return true
}
