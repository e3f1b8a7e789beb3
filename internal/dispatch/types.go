package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// Status is the delivery lifecycle of a message record.
//
// Transitions are monotonic: Pending -> InFlight -> {Sent | Failed};
// Cancelled is reachable from Pending or InFlight only. Terminal statuses
// never transition again.
type Status int

const (
	StatusPending Status = iota
	StatusInFlight
	StatusSent
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInFlight:
		return "in_flight"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Record is one outbound message and its delivery state.
//
// Records are owned exclusively by the Store; workers reference them by id
// and mutate only through Store methods. Values handed out by Get/List/
// publish are snapshots.
type Record struct {
	ID          int64     `json:"id"`
	Payload     string    `json:"payload"`
	Destination string    `json:"destination"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// Error carries the terminal failure detail; set iff Status == Failed.
	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
}

// Worker lifecycle states for handles.
type handleState int

const (
	handleRunning handleState = iota
	handleStopped
	handleCompleted
)

var (
	ErrNotFound          = errors.New("dispatch: message not found")
	ErrInvalidTransition = errors.New("dispatch: invalid status transition")
	ErrClosed            = errors.New("dispatch: store is shut down")
)

// Config controls the worker pool and per-message retry behavior.
type Config struct {
	// MaxWorkers bounds concurrently executing dispatches. Submissions beyond
	// the bound stay Pending until a slot frees up.
	MaxWorkers int

	// RetryMax is the total attempt budget per message (not "extra" retries).
	RetryMax int

	BackoffBase   time.Duration
	BackoffCap    time.Duration
	BackoffJitter float64 // 0.2 = 20%

	// CallTimeout bounds each provider call; exceeding it counts as a
	// retryable transport failure.
	CallTimeout time.Duration

	// OutboundRPS paces provider calls across all workers. 0 disables pacing.
	OutboundRPS int

	// Retention is how long terminal records are kept before the janitor may
	// prune them.
	Retention time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 64
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffCap < c.BackoffBase {
		c.BackoffCap = 10 * time.Second
	}
	if c.BackoffJitter <= 0 {
		c.BackoffJitter = 0.2
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = time.Hour
	}
	return c
}

// Snapshot is a lightweight diagnostics view of the store.
type Snapshot struct {
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
	Terminal int `json:"terminal"`
	Workers  int `json:"workers"`
}
