// Package scheduler provides one-shot inactivity reminders for Load More
// affordances. A single reminder may be pending per user; arming again
// replaces the previous one (last-write-wins), and a disarm racing an
// in-flight fire resolves to a safe no-op.
//
// Handles are live in-process references only. Nothing here is persisted;
// after a restart the orchestrator simply re-arms on the next interaction
// and a stale armed session field expires without a send.
package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDelay is the default inactivity delay before a reminder fires.
const DefaultDelay = 300 * time.Second

// FireFunc is invoked when a reminder elapses without being disarmed.
// Implementations must re-validate session state themselves: the scheduler
// guarantees at-most-once invocation per handle, not that the armed state
// it was created for is still current.
type FireFunc func(userID, chatRef int64)

// Handle identifies one scheduled reminder. Opaque to callers.
type Handle struct {
	userID  int64
	chatRef int64
	timer   *time.Timer
	// done marks the handle fired or cancelled; guarded by Scheduler.mu.
	done bool
}

// Scheduler owns all pending reminder timers. Safe for concurrent use.
type Scheduler struct {
	mu      sync.Mutex
	pending map[int64]*Handle
	fire    FireFunc
	logger  zerolog.Logger
}

// New creates a Scheduler that calls fire for each elapsed reminder.
func New(fire FireFunc, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		pending: make(map[int64]*Handle),
		fire:    fire,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
}

// Arm schedules a reminder for userID after delay, addressed to chatRef.
// Any previously armed reminder for the same user is disarmed first.
func (s *Scheduler) Arm(userID, chatRef int64, delay time.Duration) *Handle {
	if delay <= 0 {
		delay = DefaultDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.pending[userID]; prev != nil {
		s.disarmLocked(prev)
	}

	h := &Handle{userID: userID, chatRef: chatRef}
	h.timer = time.AfterFunc(delay, func() { s.onElapsed(h) })
	s.pending[userID] = h

	s.logger.Debug().
		Int64("user_id", userID).
		Dur("delay", delay).
		Msg("reminder armed")

	return h
}

// Disarm cancels h if it has not fired yet. A no-op for nil handles and for
// handles that already fired or were already cancelled.
func (s *Scheduler) Disarm(h *Handle) {
	if h == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked(h)
}

// DisarmUser cancels whatever reminder is pending for userID, if any.
// Used when a new interaction supersedes an armed affordance and the
// original handle is no longer at hand.
func (s *Scheduler) DisarmUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h := s.pending[userID]; h != nil {
		s.disarmLocked(h)
	}
}

// Stop cancels every pending reminder. Called on shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.pending {
		h.done = true
		h.timer.Stop()
	}
	s.pending = make(map[int64]*Handle)
}

// PendingCount returns the number of armed reminders. Used for metrics.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) disarmLocked(h *Handle) {
	if h.done {
		return
	}
	h.done = true
	h.timer.Stop()
	if s.pending[h.userID] == h {
		delete(s.pending, h.userID)
	}
	s.logger.Debug().Int64("user_id", h.userID).Msg("reminder disarmed")
}

// onElapsed runs on the timer goroutine. The done check under the mutex is
// what makes a disarm racing an in-flight fire a no-op instead of a
// double-send: whichever side flips done first wins.
func (s *Scheduler) onElapsed(h *Handle) {
	s.mu.Lock()
	if h.done {
		s.mu.Unlock()
		return
	}
	h.done = true
	if s.pending[h.userID] == h {
		delete(s.pending, h.userID)
	}
	s.mu.Unlock()

	s.fire(h.userID, h.chatRef)
}
