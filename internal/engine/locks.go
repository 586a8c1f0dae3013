package engine

import (
	"sort"
	"sync"

	"github.com/sells-group/hazard-loss/internal/asset"
)

// provinceLocks hands out one mutex per province key.
type provinceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProvinceLocks() *provinceLocks {
	return &provinceLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutexes of all provinces in key order and returns the
// matching unlock.
func (p *provinceLocks) lock(provinces ...string) func() {
	keys := make([]string, 0, len(provinces))
	seen := make(map[string]bool, len(provinces))
	for _, name := range provinces {
		k := asset.ProvinceKey(name)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	p.mu.Lock()
	held := make([]*sync.Mutex, len(keys))
	for i, k := range keys {
		m, ok := p.locks[k]
		if !ok {
			m = &sync.Mutex{}
			p.locks[k] = m
		}
		held[i] = m
	}
	p.mu.Unlock()

	for _, m := range held {
		m.Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
