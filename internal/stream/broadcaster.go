// Package stream fans out message record updates to connected observers.
//
// Contract:
//   - Publish MUST be non-blocking, whatever the subscribers do.
//   - Each subscriber has a bounded buffer; when it is full the oldest pending
//     update is dropped to make room for the newest. Dropped intermediates are
//     acceptable because status is re-derivable from the dispatch store.
//   - Per subscription, delivered updates preserve publish order.
package stream

import (
	"sync"
	"sync/atomic"

	"relayd/internal/dispatch"
	logx "relayd/pkg/logx"
)

// Subscription is one observer of the broadcaster. Close it via Unsubscribe;
// the delivery channel is closed and its buffer released.
type Subscription struct {
	id uint64
	ch chan dispatch.Record
}

// C is the delivery channel. It is closed on Unsubscribe.
func (s *Subscription) C() <-chan dispatch.Record { return s.ch }

type Broadcaster struct {
	buffer int
	log    logx.Logger

	// mu guards subs and is held while sending so Unsubscribe can never close
	// a channel mid-send.
	mu   sync.Mutex
	subs map[uint64]*Subscription
	seq  atomic.Uint64

	dropped atomic.Uint64
}

func New(buffer int, log logx.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Broadcaster{
		buffer: buffer,
		log:    log.With(logx.String("comp", "stream")),
		subs:   map[uint64]*Subscription{},
	}
}

func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{
		id: b.seq.Add(1),
		ch: make(chan dispatch.Record, b.buffer),
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	b.log.Debug("subscriber attached", logx.Uint64("sub", sub.id))
	return sub
}

func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
	b.mu.Unlock()
	b.log.Debug("subscriber detached", logx.Uint64("sub", sub.id))
}

// Publish delivers rec to every subscriber without blocking. A full
// subscriber loses its oldest pending update in favor of the newest.
func (b *Broadcaster) Publish(rec dispatch.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- rec:
			continue
		default:
		}
		// drop oldest (if any), then best-effort deliver the newest
		select {
		case <-sub.ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- rec:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers reports the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped reports how many updates were discarded for slow subscribers.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }
