package workflow

import (
	"sort"
	"sync"
	"sync/atomic"

	"clipforge/internal/stage"
)

// barrier collects settled item branches and releases once every expected
// branch has arrived. Each branch may arrive only once; a repeated arrival
// for the same item is ignored and does not move the countdown.
type barrier struct {
	remaining atomic.Int64
	once      sync.Once
	released  chan struct{}

	mu      sync.Mutex
	seen    map[string]struct{}
	results []stage.BranchResult
}

func newBarrier(expected int) *barrier {
	b := &barrier{
		released: make(chan struct{}),
		seen:     make(map[string]struct{}, expected),
		results:  make([]stage.BranchResult, 0, expected),
	}
	b.remaining.Store(int64(expected))
	if expected <= 0 {
		b.once.Do(func() { close(b.released) })
	}
	return b
}

// Arrive records a terminal branch result. It reports false for a duplicate
// arrival or one after release.
func (b *barrier) Arrive(res stage.BranchResult) bool {
	key := branchKey(res)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.seen[key]; dup {
		return false
	}
	if b.remaining.Load() <= 0 {
		return false
	}
	b.seen[key] = struct{}{}
	b.results = append(b.results, res)
	if b.remaining.Add(-1) == 0 {
		b.once.Do(func() { close(b.released) })
	}
	return true
}

// Wait blocks until release and returns the results ordered by item position.
func (b *barrier) Wait() []stage.BranchResult {
	<-b.released
	b.mu.Lock()
	out := append([]stage.BranchResult(nil), b.results...)
	b.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Work.Index() < out[j].Work.Index()
	})
	return out
}

// Done is closed when the barrier releases.
func (b *barrier) Done() <-chan struct{} {
	return b.released
}

func branchKey(res stage.BranchResult) string {
	if res.Work == nil || res.Work.Item == nil {
		return ""
	}
	return res.Work.Item.ID
}
