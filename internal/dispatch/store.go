package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"relayd/internal/provider"
	"relayd/internal/runtime/supervisor"
	logx "relayd/pkg/logx"
)

// Publisher receives a snapshot of every successfully transitioned record.
// Implementations must not block.
type Publisher interface {
	Publish(rec Record)
}

// handle tracks one live worker. Owned by the Store; removed when the worker
// completes.
type handle struct {
	id       string
	recordID int64

	cancelOnce sync.Once
	cancel     chan struct{}

	state handleState
}

func (h *handle) requestStop() {
	h.cancelOnce.Do(func() { close(h.cancel) })
}

// Store owns the message record table and the worker pool. It is the single
// writer: workers and callers mutate records only through its methods, and
// every other component reads snapshots.
type Store struct {
	cfg     Config
	log     logx.Logger
	prov    provider.Provider
	pub     Publisher
	limiter *rate.Limiter

	mu      sync.Mutex
	records map[int64]*Record
	order   []int64 // record ids in creation order
	handles map[int64]*handle
	nextID  int64
	closed  bool

	sup   *supervisor.Supervisor
	slots chan struct{}
}

func New(cfg Config, prov provider.Provider, pub Publisher, log logx.Logger) *Store {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	var lim *rate.Limiter
	if cfg.OutboundRPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.OutboundRPS), cfg.OutboundRPS)
	}
	return &Store{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "dispatch")),
		prov:    prov,
		pub:     pub,
		limiter: lim,
		records: map[int64]*Record{},
		handles: map[int64]*handle{},
		slots:   make(chan struct{}, cfg.MaxWorkers),
	}
}

// Start binds the worker pool to ctx. Must be called before Submit.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.log.Info("dispatch pool started", logx.Int("max_workers", s.cfg.MaxWorkers), logx.Int("retry_max", s.cfg.RetryMax))
}

// Submit records a pending message and spawns its dispatch worker.
// It returns immediately; the outcome is observable via Get/List or a stream
// subscription.
func (s *Store) Submit(payload, destination string) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	if s.closed || s.sup == nil {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.nextID++
	id := s.nextID
	rec := &Record{
		ID:          id,
		Payload:     payload,
		Destination: destination,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.records[id] = rec
	s.order = append(s.order, id)

	h := &handle{
		id:       uuid.NewString(),
		recordID: id,
		cancel:   make(chan struct{}),
		state:    handleRunning,
	}
	s.handles[id] = h
	snap := *rec
	sup := s.sup
	s.mu.Unlock()

	if s.pub != nil {
		s.pub.Publish(snap)
	}

	sup.Go(fmt.Sprintf("worker.%d", id), func(ctx context.Context) error {
		s.run(ctx, h)
		return nil
	})
	return id, nil
}

// Get returns a snapshot of one record.
func (s *Store) Get(id int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// List returns snapshots of all known records ordered by creation time.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// Stop requests cooperative cancellation of one message. The worker observes
// the request at its next checkpoint. Returns false if the record is already
// terminal.
func (s *Store) Stop(id int64) (bool, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return false, ErrNotFound
	}
	if rec.Status.Terminal() {
		s.mu.Unlock()
		return false, nil
	}
	h := s.handles[id]
	if h != nil && h.state == handleRunning {
		h.state = handleStopped
	}
	s.mu.Unlock()

	if h != nil {
		h.requestStop()
	}
	return true, nil
}

// StopAll signals every live worker and waits for them to reach a terminal
// state, bounded by ctx. Workers still running when ctx expires are abandoned;
// their eventual completion is still recorded.
func (s *Store) StopAll(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	hs := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		hs = append(hs, h)
	}
	sup := s.sup
	s.mu.Unlock()

	for _, h := range hs {
		h.requestStop()
	}
	if sup == nil {
		return nil
	}
	if err := sup.Wait(ctx); err != nil {
		s.log.Warn("shutdown grace elapsed; abandoning workers", logx.Int("signalled", len(hs)), logx.Err(err))
		return err
	}
	s.log.Info("dispatch pool drained", logx.Int("signalled", len(hs)))
	return nil
}

// Snapshot reports record and worker counts for diagnostics.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap Snapshot
	for _, rec := range s.records {
		switch {
		case rec.Status == StatusPending:
			snap.Pending++
		case rec.Status == StatusInFlight:
			snap.InFlight++
		default:
			snap.Terminal++
		}
	}
	snap.Workers = len(s.handles)
	return snap
}

// PruneTerminal drops terminal records older than the retention window.
// Returns the number of records removed.
func (s *Store) PruneTerminal(now time.Time) int {
	cutoff := now.Add(-s.cfg.Retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	keep := s.order[:0]
	for _, id := range s.order {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if rec.Status.Terminal() && rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			removed++
			continue
		}
		keep = append(keep, id)
	}
	s.order = keep
	if removed > 0 {
		// Keep creation order stable for List().
		sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	}
	return removed
}

// transition moves a record along its lifecycle. Only the owning worker calls
// this. Invalid transitions indicate a bug; they are logged loudly and
// rejected.
func (s *Store) transition(id int64, to Status, detail string) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if !validTransition(rec.Status, to) {
		from := rec.Status
		s.mu.Unlock()
		s.log.Error("invalid status transition", logx.Int64("id", id), logx.String("from", from.String()), logx.String("to", to.String()))
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	rec.Status = to
	rec.UpdatedAt = time.Now()
	if to == StatusFailed {
		rec.Error = detail
	}
	snap := *rec
	s.mu.Unlock()

	if s.pub != nil {
		s.pub.Publish(snap)
	}
	return nil
}

func validTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInFlight || to == StatusCancelled
	case StatusInFlight:
		return to == StatusSent || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}

func (s *Store) bumpRetry(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return 0
	}
	rec.RetryCount++
	rec.UpdatedAt = time.Now()
	return rec.RetryCount
}

// complete reclaims the worker handle once its record is terminal.
func (s *Store) complete(h *handle) {
	s.mu.Lock()
	h.state = handleCompleted
	delete(s.handles, h.recordID)
	s.mu.Unlock()
}
