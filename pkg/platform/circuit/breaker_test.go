package circuit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	b := New("candidate-cache")
	assert.Equal(t, "candidate-cache", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

// outcomes is a run of calls: 'f' records a failure, 's' a success.
func replay(b *Breaker, outcomes string) {
	for _, o := range outcomes {
		if o == 'f' {
			b.RecordFailure()
		} else {
			b.RecordSuccess()
		}
	}
}

func TestBreaker_Transitions(t *testing.T) {
	cases := []struct {
		name      string
		failures  int
		successes int
		outcomes  string
		want      State
	}{
		{"below failure threshold", 3, 1, "ff", StateClosed},
		{"reaches failure threshold", 3, 1, "fff", StateOpen},
		{"success interrupts a failure run", 3, 1, "ffsff", StateClosed},
		{"one success closes by default", 1, 1, "fs", StateClosed},
		{"needs a run of successes", 1, 2, "fs", StateOpen},
		{"run of successes closes", 1, 2, "fss", StateClosed},
		{"failure restarts the success run", 1, 3, "fssfss", StateOpen},
		{"full success run after restart", 1, 3, "fssfsss", StateClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New("test", WithFailureThreshold(tc.failures), WithSuccessThreshold(tc.successes))
			replay(b, tc.outcomes)
			assert.Equal(t, tc.want, b.State())
		})
	}
}

func TestBreaker_ReportsChanges(t *testing.T) {
	b := New("test", WithFailureThreshold(2))

	fallback, change := b.RecordFailure()
	assert.False(t, fallback)
	assert.Equal(t, Change{}, change)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened, "already open")

	primary, change := b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
}

func TestBreaker_CooldownGatesTrialCalls(t *testing.T) {
	now := time.Unix(0, 0)
	b := New("redis", WithFailureThreshold(1), WithCooldown(10*time.Second), WithClock(func() time.Time { return now }))

	b.RecordFailure()
	assert.False(t, b.Allow(), "open circuit rejects during cooldown")

	now = now.Add(10 * time.Second)
	assert.True(t, b.Allow(), "trial call allowed after cooldown")

	b.RecordFailure()
	assert.False(t, b.Allow(), "failed trial call restarts the cooldown")

	now = now.Add(11 * time.Second)
	assert.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := New("test", WithFailureThreshold(1))
	b.RecordFailure()
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_ConcurrentUse(t *testing.T) {
	const workers, perWorker = 8, 100
	b := New("test", WithFailureThreshold(workers*perWorker))

	var opened atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				if _, change := b.RecordFailure(); change.Opened {
					opened.Add(1)
				}
				b.Allow()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, StateOpen, b.State(), "the last of %d failures reaches the threshold", workers*perWorker)
	assert.Equal(t, int32(1), opened.Load())
}
