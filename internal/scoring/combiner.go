// Package scoring combines per-category detector scores into a single
// risk score using runtime-adjustable weights.
package scoring

import (
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Base category weights. The domain category folds in at its default
// weight unless a caller-supplied override exists.
const (
	baseRulesWeight      = 0.50
	baseNLPWeight        = 0.30
	baseBehavioralWeight = 0.20
	baseDomainWeight     = 0.10
)

// Combiner computes the weighted sum of category scores. It holds no
// state beyond the current weight map; each request snapshots the
// weights it uses, so the map can be replaced mid-flight without
// affecting in-progress combines.
type Combiner struct {
	mu      sync.RWMutex
	weights map[domain.Category]float64
}

// NewCombiner creates a combiner with the default weights.
func NewCombiner() *Combiner {
	return &Combiner{weights: DefaultWeights()}
}

// DefaultWeights returns the base category weight map.
func DefaultWeights() map[domain.Category]float64 {
	return map[domain.Category]float64{
		domain.CategoryRules:      baseRulesWeight,
		domain.CategoryNLP:        baseNLPWeight,
		domain.CategoryBehavioral: baseBehavioralWeight,
		domain.CategoryDomain:     baseDomainWeight,
	}
}

// Combine sums category scores weighted by the current weight map.
// The result is not capped here; the classifier caps to [0,100].
func (c *Combiner) Combine(categories map[domain.Category]float64) float64 {
	weights := c.Weights()
	total := 0.0
	for cat, score := range categories {
		w, ok := weights[cat]
		if !ok {
			w = baseDomainWeight
		}
		total += score * w
	}
	return total
}

// Weights returns a snapshot of the current weight map.
func (c *Combiner) Weights() map[domain.Category]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[domain.Category]float64, len(c.weights))
	for k, v := range c.weights {
		out[k] = v
	}
	return out
}

// SetWeights replaces the weight map. Each weight is clamped to [0,1]
// so feedback-driven drift cannot walk a weight out of range.
func (c *Combiner) SetWeights(weights map[domain.Category]float64) {
	next := make(map[domain.Category]float64, len(weights))
	for k, v := range weights {
		next[k] = clamp01(v)
	}
	c.mu.Lock()
	c.weights = next
	c.mu.Unlock()
}

// ApplyDeltas adds per-category deltas to the base weights and
// installs the clamped result.
func (c *Combiner) ApplyDeltas(deltas map[domain.Category]float64) {
	next := DefaultWeights()
	for cat, d := range deltas {
		next[cat] = clamp01(next[cat] + d)
	}
	c.mu.Lock()
	c.weights = next
	c.mu.Unlock()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
