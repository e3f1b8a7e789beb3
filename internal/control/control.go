// Package control composes the externally callable operations: submit,
// status, list, stop, stream.
//
// Every operation runs the same explicit gate sequence: credential validation
// first, then admission control (mutating operations only, unless configured
// otherwise), then delegation. Short-circuit order matters: an invalid
// credential never consumes a rate-limit slot.
package control

import (
	"context"
	"strings"
	"time"

	"relayd/internal/auth"
	"relayd/internal/dispatch"
	"relayd/internal/ratelimit"
	"relayd/internal/stream"
	logx "relayd/pkg/logx"
)

const maxPayloadBytes = 64 * 1024

type Config struct {
	// ExemptReads skips admission control for status/list/stream.
	ExemptReads bool
}

type Plane struct {
	cfg     Config
	guard   *auth.Guard
	limiter *ratelimit.Limiter
	store   *dispatch.Store
	bc      *stream.Broadcaster
	log     logx.Logger
}

func New(cfg Config, guard *auth.Guard, limiter *ratelimit.Limiter, store *dispatch.Store, bc *stream.Broadcaster, log logx.Logger) *Plane {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Plane{
		cfg:     cfg,
		guard:   guard,
		limiter: limiter,
		store:   store,
		bc:      bc,
		log:     log.With(logx.String("comp", "control")),
	}
}

// Submit validates, admits, and enqueues one outbound message.
func (p *Plane) Submit(ctx context.Context, credential, payload, destination string) (int64, error) {
	if err := p.gate(ctx, credential, true); err != nil {
		return 0, err
	}
	if strings.TrimSpace(payload) == "" {
		return 0, &InvalidPayloadError{Reason: "payload is empty"}
	}
	if len(payload) > maxPayloadBytes {
		return 0, &InvalidPayloadError{Reason: "payload exceeds size limit"}
	}
	if strings.TrimSpace(destination) == "" {
		return 0, &InvalidPayloadError{Reason: "destination is empty"}
	}

	id, err := p.store.Submit(payload, destination)
	if err != nil {
		return 0, err
	}
	p.log.Info("message accepted", logx.Int64("id", id), logx.String("destination", destination))
	return id, nil
}

// Status returns the snapshot of one message.
func (p *Plane) Status(ctx context.Context, credential string, id int64) (dispatch.Record, error) {
	if err := p.gate(ctx, credential, false); err != nil {
		return dispatch.Record{}, err
	}
	rec, err := p.store.Get(id)
	if err != nil {
		return dispatch.Record{}, ErrNotFound
	}
	return rec, nil
}

// List returns snapshots of all known messages in creation order.
func (p *Plane) List(ctx context.Context, credential string) ([]dispatch.Record, error) {
	if err := p.gate(ctx, credential, false); err != nil {
		return nil, err
	}
	return p.store.List(), nil
}

// Stop requests cancellation of one message. The bool reports whether a stop
// was actually requested (false: already terminal).
func (p *Plane) Stop(ctx context.Context, credential string, id int64) (bool, error) {
	if err := p.gate(ctx, credential, true); err != nil {
		return false, err
	}
	stopped, err := p.store.Stop(id)
	if err != nil {
		return false, ErrNotFound
	}
	if stopped {
		p.log.Info("stop requested", logx.Int64("id", id))
	}
	return stopped, nil
}

// Stream attaches a live subscription to record updates. The caller must
// Close the returned subscription when done.
func (p *Plane) Stream(ctx context.Context, credential string) (*stream.Subscription, func(), error) {
	if err := p.gate(ctx, credential, false); err != nil {
		return nil, nil, err
	}
	sub := p.bc.Subscribe()
	return sub, func() { p.bc.Unsubscribe(sub) }, nil
}

// gate runs validate-then-admit in that order.
func (p *Plane) gate(ctx context.Context, credential string, mutating bool) error {
	switch p.guard.Validate(ctx, credential) {
	case auth.VerdictValid:
	case auth.VerdictExpired:
		return ErrUnauthorized
	default:
		return ErrUnauthorized
	}

	if !mutating && p.cfg.ExemptReads {
		return nil
	}
	if d := p.limiter.Admit(credential); !d.Allowed {
		return &ThrottledError{RetryAfter: d.RetryAfter}
	}
	return nil
}

// Snapshot aggregates component diagnostics for the health surface.
type Snapshot struct {
	Dispatch    dispatch.Snapshot `json:"dispatch"`
	Subscribers int               `json:"subscribers"`
	Dropped     uint64            `json:"dropped_updates"`
	Time        time.Time         `json:"time"`
}

func (p *Plane) Snapshot() Snapshot {
	return Snapshot{
		Dispatch:    p.store.Snapshot(),
		Subscribers: p.bc.Subscribers(),
		Dropped:     p.bc.Dropped(),
		Time:        time.Now(),
	}
}
