package govehicle

import (
	"context"
	"sync"
	"time"

	"github.com/roffe/govehicle/pkg/log"
)

// Ticker is the 1 second heartbeat of the unit. Every subscriber gets one
// pulse per period, a subscriber that has not picked up the previous pulse
// misses the new one.
type Ticker struct {
	period time.Duration

	mu   sync.Mutex
	subs map[*TickSubscription]struct{}
}

func NewTicker(period time.Duration) *Ticker {
	if period <= 0 {
		period = time.Second
	}
	return &Ticker{
		period: period,
		subs:   make(map[*TickSubscription]struct{}),
	}
}

type TickSubscription struct {
	t         *Ticker
	c         chan struct{}
	closeOnce sync.Once
}

// C is signalled once per pulse.
func (s *TickSubscription) C() <-chan struct{} {
	return s.c
}

// Close unsubscribes, no pulses are sent after it returns.
func (s *TickSubscription) Close() {
	s.closeOnce.Do(func() {
		s.t.mu.Lock()
		defer s.t.mu.Unlock()
		delete(s.t.subs, s)
	})
}

func (t *Ticker) Subscribe() *TickSubscription {
	sub := &TickSubscription{
		t: t,
		c: make(chan struct{}, 1),
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	return sub
}

// Pulse signals all subscribers once.
func (t *Ticker) Pulse() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		select {
		case sub.c <- struct{}{}:
		default:
			log.Debug("subscriber busy, tick missed")
		}
	}
}

// Run pulses every period until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	tick := time.NewTicker(t.period)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			t.Pulse()
		}
	}
}
