package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	healBaseDelay   = 600 * time.Millisecond
	healMaxDelay    = 4500 * time.Millisecond
	healGrowth      = 1.5
	healMaxExponent = 6

	// DefaultHealAttempts is how many unresolved repairs the healer makes
	// before it gives up.
	DefaultHealAttempts = 5
)

// HealDelay is the wait before repair attempt n+1.
func HealDelay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > healMaxExponent {
		n = healMaxExponent
	}
	ms := math.Round(float64(healBaseDelay/time.Millisecond) * math.Pow(healGrowth, float64(n)))
	d := time.Duration(ms) * time.Millisecond
	if d > healMaxDelay {
		d = healMaxDelay
	}
	return d
}

// Healer repairs a stuck story in the background while its view is showing
// the live page. One Healer belongs to one open story view.
type Healer struct {
	ctx     context.Context
	session *Session
	gate    func() bool
	delay   func(attempt int) time.Duration
	max     int
	log     *zap.Logger

	onChange func(Story)
	onGiveUp func(error)

	mu    sync.Mutex
	timer *time.Timer
	epoch uint64
	// running covers a tick from taking its epoch until settle decides.
	running  bool
	attempts int
	gaveUp   bool
}

type HealerOption func(*Healer)

// WithHealDelay replaces the backoff schedule.
func WithHealDelay(fn func(attempt int) time.Duration) HealerOption {
	return func(h *Healer) { h.delay = fn }
}

func WithMaxAttempts(n int) HealerOption {
	return func(h *Healer) {
		if n > 0 {
			h.max = n
		}
	}
}

func WithHealLogger(l *zap.Logger) HealerOption {
	return func(h *Healer) { h.log = l }
}

// OnChange is called after every repair that changed the story.
func OnChange(fn func(Story)) HealerOption {
	return func(h *Healer) { h.onChange = fn }
}

// OnGiveUp is called once, when the attempt cap is reached.
func OnGiveUp(fn func(error)) HealerOption {
	return func(h *Healer) { h.onGiveUp = fn }
}

// NewHealer returns a stopped healer. gate reports whether the view is at
// the live page with a usable credential.
func NewHealer(ctx context.Context, s *Session, gate func() bool, opts ...HealerOption) *Healer {
	h := &Healer{
		ctx:      ctx,
		session:  s,
		gate:     gate,
		delay:    HealDelay,
		max:      DefaultHealAttempts,
		log:      zap.NewNop(),
		onChange: func(Story) {},
		onGiveUp: func(error) {},
	}
	for _, o := range opts {
		o(h)
	}
	h.log = h.log.With(zap.String("story_id", s.ID()))
	return h
}

// Start schedules the first tick if the story needs repair. It does nothing
// while a tick is scheduled or running, or after the healer gave up.
func (h *Healer) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gaveUp || h.timer != nil || h.running {
		return
	}
	if !h.gate() {
		return
	}
	if _, ok := RepairNeeded(h.session.Snapshot()); !ok {
		return
	}
	h.scheduleLocked(h.delay(0))
}

// Stop cancels any pending tick and resets the attempt count. A repair call
// already in flight finishes but its result is discarded by the gate.
func (h *Healer) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *Healer) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

func (h *Healer) GaveUp() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gaveUp
}

func (h *Healer) stopLocked() {
	h.epoch++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.running = false
	h.attempts = 0
}

func (h *Healer) scheduleLocked(d time.Duration) {
	epoch := h.epoch
	h.timer = time.AfterFunc(d, func() { h.tick(epoch) })
}

func (h *Healer) tick(epoch uint64) {
	h.mu.Lock()
	if epoch != h.epoch || h.gaveUp {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	h.running = true
	h.mu.Unlock()

	if !h.gate() {
		h.Stop()
		return
	}
	reason, ok := RepairNeeded(h.session.Snapshot())
	if !ok {
		h.Stop()
		return
	}
	if !h.session.busy.TryAcquire(1) {
		h.mu.Lock()
		if epoch == h.epoch {
			h.running = false
		}
		h.mu.Unlock()
		return
	}

	h.mu.Lock()
	if epoch != h.epoch {
		h.mu.Unlock()
		h.session.busy.Release(1)
		return
	}
	h.attempts++
	attempt := h.attempts
	h.mu.Unlock()

	log := h.log.With(zap.String("reason", string(reason)), zap.Int("attempt", attempt))
	out, err := h.session.repair(h.ctx, reason, h.gate)
	h.session.busy.Release(1)

	switch {
	case err != nil:
		healAttempts.WithLabelValues(string(reason), "error").Inc()
		log.Warn("repair attempt failed", zap.Error(err))
	case out.Noop:
		healAttempts.WithLabelValues(string(reason), "stale").Inc()
	case out.Stuck:
		healAttempts.WithLabelValues(string(reason), "partial").Inc()
		h.onChange(h.session.Snapshot())
	default:
		healAttempts.WithLabelValues(string(reason), "resolved").Inc()
		log.Info("story repaired")
		h.onChange(h.session.Snapshot())
	}

	if h.settle(epoch, attempt) {
		log.Warn("giving up automatic repair")
		h.onGiveUp(ErrHealExhausted)
	}
}

// settle decides what follows an attempt and reports whether the healer
// just gave up.
func (h *Healer) settle(epoch uint64, attempt int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if epoch != h.epoch {
		return false
	}
	h.running = false
	if !h.gate() {
		h.stopLocked()
		return false
	}
	if _, stuck := RepairNeeded(h.session.Snapshot()); !stuck {
		h.stopLocked()
		return false
	}
	if attempt >= h.max {
		h.stopLocked()
		h.attempts = attempt
		h.gaveUp = true
		return true
	}
	h.scheduleLocked(h.delay(attempt))
	return false
}
