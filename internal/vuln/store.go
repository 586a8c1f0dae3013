package vuln

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/hazard"
)

// CurveStore holds the active curves per hazard. It is safe for concurrent
// use and can be reloaded while in use.
type CurveStore struct {
	mu     sync.RWMutex
	curves [hazard.NumHazards]map[CurveID]*Curve
}

// NewCurveStore returns an empty store.
func NewCurveStore() *CurveStore {
	return &CurveStore{}
}

// Replace swaps the full curve set for h. Curves that cannot be fitted are
// kept and logged; they interpolate to Missing.
func (s *CurveStore) Replace(h hazard.Hazard, curves []*Curve) {
	m := make(map[CurveID]*Curve, len(curves))
	for _, c := range curves {
		if err := c.FitErr(); err != nil {
			zap.L().Warn("vuln: curve cannot be interpolated",
				zap.String("hazard", h.String()),
				zap.String("curve", string(c.ID)),
				zap.Error(err),
			)
		}
		m[c.ID] = c
	}

	s.mu.Lock()
	s.curves[h] = m
	s.mu.Unlock()
}

// Get returns one curve.
func (s *CurveStore) Get(h hazard.Hazard, id CurveID) (*Curve, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.curves[h][id]
	return c, ok
}

// Has reports whether any curve is loaded for h.
func (s *CurveStore) Has(h hazard.Hazard) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.curves[h]) > 0
}

// IDs lists the curve ids loaded for h in sorted order.
func (s *CurveStore) IDs(h hazard.Hazard) []CurveID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]CurveID, 0, len(s.curves[h]))
	for id := range s.curves[h] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Evaluate interpolates every curve of h at one intensity. Class curves are
// then forced into CR <= MCF <= MUR <= LIGHTWOOD order.
func (s *CurveStore) Evaluate(h hazard.Hazard, intensity hazard.Quantity) Ratios {
	s.mu.RLock()
	curves := s.curves[h]
	s.mu.RUnlock()

	p := PolicyFor(h)
	out := make(Ratios, len(curves))
	for id, c := range curves {
		out[id] = Interpolate(c, p, intensity)
	}
	if h != hazard.Flood {
		EnforceOrdering(out)
	}
	return out
}
