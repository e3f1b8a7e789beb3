package dispatch

import (
	"context"
	"math/rand"
	"time"

	"relayd/internal/provider"
	logx "relayd/pkg/logx"
)

// run executes the dispatch state machine for one message:
// Pending -> InFlight -> {Sent | Failed | Cancelled}.
//
// Cancellation is cooperative: the flag is checked before acquiring a pool
// slot and before every provider attempt, never mid-call.
func (s *Store) run(ctx context.Context, h *handle) {
	defer s.complete(h)
	id := h.recordID
	log := s.log.With(logx.Int64("id", id))

	// Wait for a pool slot; the record stays Pending while queued.
	select {
	case <-h.cancel:
		s.cancelRecord(id)
		return
	case <-ctx.Done():
		s.cancelRecord(id)
		return
	case s.slots <- struct{}{}:
	}
	defer func() { <-s.slots }()

	if stopped(h, ctx) {
		s.cancelRecord(id)
		return
	}

	rec, err := s.Get(id)
	if err != nil {
		return
	}
	if err := s.transition(id, StatusInFlight, ""); err != nil {
		return
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryMax; attempt++ {
		if stopped(h, ctx) {
			s.cancelRecord(id)
			return
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.cancelRecord(id)
				return
			}
		}

		s.bumpRetry(id)
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		err := s.prov.Send(callCtx, rec.Destination, rec.Payload)
		cancel()

		if err == nil {
			_ = s.transition(id, StatusSent, "")
			log.Debug("message sent", logx.Int("attempts", attempt))
			return
		}
		if provider.IsTerminal(err) {
			_ = s.transition(id, StatusFailed, err.Error())
			log.Warn("message rejected by provider", logx.Err(err))
			return
		}

		lastErr = err
		if attempt == s.cfg.RetryMax {
			break
		}

		delay := s.backoff(attempt)
		log.Debug("retry scheduled", logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-h.cancel:
			stopTimer(tmr)
			s.cancelRecord(id)
			return
		case <-ctx.Done():
			stopTimer(tmr)
			s.cancelRecord(id)
			return
		case <-tmr.C:
		}
	}

	detail := "provider unavailable"
	if lastErr != nil {
		detail = lastErr.Error()
	}
	_ = s.transition(id, StatusFailed, detail)
	log.Warn("message failed after retries", logx.Int("attempts", s.cfg.RetryMax), logx.Err(lastErr))
}

// cancelRecord moves a non-terminal record to Cancelled. A record that raced
// to a terminal state keeps it; the transition is simply skipped.
func (s *Store) cancelRecord(id int64) {
	s.mu.Lock()
	rec, ok := s.records[id]
	terminal := ok && rec.Status.Terminal()
	s.mu.Unlock()
	if !ok || terminal {
		return
	}
	_ = s.transition(id, StatusCancelled, "")
}

// backoff returns the jittered exponential delay before the next attempt.
func (s *Store) backoff(attempt int) time.Duration {
	delay := s.cfg.BackoffBase << (attempt - 1)
	if delay > s.cfg.BackoffCap || delay <= 0 {
		delay = s.cfg.BackoffCap
	}
	if j := s.cfg.BackoffJitter; j > 0 {
		span := int64(float64(delay) * j)
		if span > 0 {
			delay += time.Duration(rand.Int63n(span + 1))
		}
	}
	return delay
}

func stopped(h *handle, ctx context.Context) bool {
	select {
	case <-h.cancel:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
