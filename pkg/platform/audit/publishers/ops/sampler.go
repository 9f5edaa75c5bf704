package ops

import (
	"math/rand/v2"
	"sync"
)

// Sampler keeps a configurable fraction of ops events per action.
// Rates are clamped to [0, 1]; 1 keeps everything.
type Sampler struct {
	mu           sync.RWMutex
	defaultRate  float64
	rateByAction map[string]float64
}

func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate:  clampRate(defaultRate),
		rateByAction: make(map[string]float64),
	}
}

// ShouldSample returns true if the event should be kept.
func (s *Sampler) ShouldSample(action string) bool {
	rate := s.rateFor(action)
	switch {
	case rate >= 1:
		return true
	case rate <= 0:
		return false
	}
	return rand.Float64() < rate //nolint:gosec // sampling doesn't need crypto rand
}

// SetRate overrides the rate for one action.
func (s *Sampler) SetRate(action string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateByAction[action] = clampRate(rate)
}

func (s *Sampler) rateFor(action string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.rateByAction[action]; ok {
		return rate
	}
	return s.defaultRate
}

func clampRate(r float64) float64 {
	return min(max(r, 0), 1)
}
