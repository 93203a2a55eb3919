package backoff

import (
	"math/rand/v2"
	"time"
)

// Policy doubles Base per attempt up to Max. Jitter in [0,1] shaves a random
// fraction off each raw delay so sessions dropped together spread out.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Raw is the un-jittered delay for a 1-based attempt.
func (p Policy) Raw(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		if d >= p.Max || d > p.Max/2 {
			return p.Max
		}
		d *= 2
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Sequence hands out delays for consecutive failed attempts. Delays never
// decrease and never exceed Max.
type Sequence struct {
	policy  Policy
	rnd     func() float64
	attempt int
	last    time.Duration
}

func (p Policy) Sequence(rnd func() float64) *Sequence {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Sequence{policy: p, rnd: rnd}
}

func (s *Sequence) Next() (int, time.Duration) {
	s.attempt++

	raw := s.policy.Raw(s.attempt)
	jitter := s.policy.Jitter
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}

	d := raw - time.Duration(float64(raw)*jitter*s.rnd())
	if d < s.last {
		d = s.last
	}
	s.last = d

	return s.attempt, d
}

func (s *Sequence) Attempt() int {
	return s.attempt
}

// Reset starts over after a successful connection.
func (s *Sequence) Reset() {
	s.attempt = 0
	s.last = 0
}
