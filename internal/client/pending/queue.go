package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
	"github.com/dmitrijs2005/consentkeeper/internal/client/repositories/localstore"
	"github.com/dmitrijs2005/consentkeeper/internal/logging"
	"github.com/dmitrijs2005/consentkeeper/internal/metrics"
)

const (
	DefaultPrefix      = "c15t"
	DefaultSettleDelay = 2 * time.Second
	DefaultMaxPasses   = 3
	DefaultPassDelay   = time.Second
	DefaultConcurrency = 4
)

// Kinds lists the operation kinds in replay order.
var Kinds = []models.OperationKind{
	models.OperationConsentSubmission,
	models.OperationIdentifyUser,
}

var ErrUnknownKind = errors.New("unknown pending operation kind")

// Key returns the storage key holding operations of kind.
func Key(prefix string, kind models.OperationKind) string {
	switch kind {
	case models.OperationConsentSubmission:
		return prefix + "-pending-consent-submissions"
	case models.OperationIdentifyUser:
		return prefix + "-pending-identify-user-submissions"
	}
	return ""
}

// Store is the local key/value storage the queue lives in.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Update(ctx context.Context, key string, fn localstore.UpdateFunc) error
}

// Sender delivers one operation; a nil error means the backend confirmed it.
type Sender interface {
	Send(ctx context.Context, op models.PendingOperation) error
}

type SenderFunc func(ctx context.Context, op models.PendingOperation) error

func (f SenderFunc) Send(ctx context.Context, op models.PendingOperation) error { return f(ctx, op) }

type Config struct {
	Prefix      string
	SettleDelay time.Duration
	MaxPasses   int
	// PassDelay is multiplied by the pass number between passes.
	PassDelay   time.Duration
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.MaxPasses <= 0 {
		c.MaxPasses = DefaultMaxPasses
	}
	if c.PassDelay < 0 {
		c.PassDelay = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Prefix:      DefaultPrefix,
		SettleDelay: DefaultSettleDelay,
		MaxPasses:   DefaultMaxPasses,
		PassDelay:   DefaultPassDelay,
		Concurrency: DefaultConcurrency,
	}
}

type Queue struct {
	store   Store
	sender  Sender
	cfg     Config
	logger  logging.Logger
	metrics *metrics.Metrics

	// mu serialises read-modify-write of the queue keys.
	mu sync.Mutex

	schedMu   sync.Mutex
	scheduled bool
	closed    bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(store Store, sender Sender, cfg Config, logger logging.Logger, m *metrics.Metrics) *Queue {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Queue{
		store:   store,
		sender:  sender,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "pending"),
		metrics: m,
	}
}

// Enqueue appends op unless an equal operation is already queued. It
// reports whether op was added.
func (q *Queue) Enqueue(ctx context.Context, op models.PendingOperation) (bool, error) {
	key := Key(q.cfg.Prefix, op.Kind)
	if key == "" {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, op.Kind)
	}
	if !json.Valid(op.Body) {
		return false, errors.New("pending operation body is not valid JSON")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	added := false
	var depth int
	err := q.store.Update(ctx, key, func(current string, ok bool) (string, bool, error) {
		ops := q.decode(ctx, op.Kind, current, ok)
		for _, existing := range ops {
			if existing.SameAs(op) {
				depth = len(ops)
				return current, ok, nil
			}
		}
		ops = append(ops, op)
		depth = len(ops)
		added = true
		return encode(ops)
	})
	if err != nil {
		return false, fmt.Errorf("failed to enqueue %s: %w", op.Kind, err)
	}

	q.metrics.SetPending(string(op.Kind), depth)
	if added {
		q.logger.Info(ctx, "queued operation for later delivery", "kind", op.Kind, "depth", depth)
	}
	return added, nil
}

// Pending lists every queued operation, consent submissions first.
func (q *Queue) Pending(ctx context.Context) ([]models.PendingOperation, error) {
	var all []models.PendingOperation
	for _, kind := range Kinds {
		raw, ok, err := q.store.Get(ctx, Key(q.cfg.Prefix, kind))
		if err != nil {
			return nil, fmt.Errorf("failed to read pending %s: %w", kind, err)
		}
		ops := q.decode(ctx, kind, raw, ok)
		q.metrics.SetPending(string(kind), len(ops))
		all = append(all, ops...)
	}
	return all, nil
}

// Check schedules a replay of the stored operations after the settle delay
// when any are queued. It reports whether a replay was scheduled; at most
// one scheduled replay exists at a time.
func (q *Queue) Check(ctx context.Context) bool {
	ops, err := q.Pending(ctx)
	if err != nil {
		q.logger.Warn(ctx, "failed to inspect pending operations", "err", err)
		return false
	}
	if len(ops) == 0 {
		return false
	}

	q.schedMu.Lock()
	defer q.schedMu.Unlock()
	if q.closed || q.scheduled {
		return false
	}
	q.scheduled = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel
	q.wg.Add(1)

	q.logger.Info(ctx, "scheduling replay of pending operations", "count", len(ops), "delay", q.cfg.SettleDelay)

	go func() {
		defer q.wg.Done()
		defer func() {
			q.schedMu.Lock()
			q.scheduled = false
			q.schedMu.Unlock()
			cancel()
		}()

		if err := sleep(runCtx, q.cfg.SettleDelay); err != nil {
			return
		}
		if _, err := q.ReplayStored(runCtx); err != nil {
			q.logger.Warn(runCtx, "replay of pending operations failed", "err", err)
		}
	}()
	return true
}

// ReplayStored replays whatever is queued right now.
func (q *Queue) ReplayStored(ctx context.Context) ([]models.PendingOperation, error) {
	ops, err := q.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}
	return q.Replay(ctx, ops)
}

// Replay sends ops through the sender for up to MaxPasses passes and
// returns the operations that still failed. Delivered operations are
// removed from storage; undelivered ones are kept or added.
func (q *Queue) Replay(ctx context.Context, ops []models.PendingOperation) ([]models.PendingOperation, error) {
	remaining := append([]models.PendingOperation(nil), ops...)
	var delivered []models.PendingOperation

	for pass := 1; pass <= q.cfg.MaxPasses && len(remaining) > 0; pass++ {
		if pass > 1 {
			if err := sleep(ctx, q.cfg.PassDelay*time.Duration(pass-1)); err != nil {
				break
			}
		}

		ok := q.sendAll(ctx, remaining)

		next := remaining[:0:0]
		for i, op := range remaining {
			if ok[i] {
				delivered = append(delivered, op)
			} else {
				next = append(next, op)
			}
		}
		q.logger.Debug(ctx, "replay pass finished", "pass", pass,
			"delivered", len(remaining)-len(next), "remaining", len(next))
		remaining = next
	}

	// persisting must survive a cancelled replay
	if err := q.persist(context.WithoutCancel(ctx), delivered, remaining); err != nil {
		return remaining, err
	}

	if len(delivered) > 0 {
		q.logger.Info(ctx, "delivered pending operations", "count", len(delivered), "remaining", len(remaining))
	}
	return remaining, nil
}

func (q *Queue) sendAll(ctx context.Context, ops []models.PendingOperation) []bool {
	ok := make([]bool, len(ops))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.cfg.Concurrency)
	for i, op := range ops {
		g.Go(func() error {
			err := q.sender.Send(gctx, op)
			ok[i] = err == nil
			q.metrics.Replayed(string(op.Kind), ok[i])
			if err != nil {
				q.logger.Debug(gctx, "replay attempt failed", "kind", op.Kind, "err", err)
			}
			// a failed op must not cancel its siblings
			return nil
		})
	}
	_ = g.Wait()
	return ok
}

// persist removes delivered operations from storage and makes sure every
// remaining one is stored; keys that end up empty are deleted.
func (q *Queue) persist(ctx context.Context, delivered, remaining []models.PendingOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	for _, kind := range Kinds {
		var depth int
		err := q.store.Update(ctx, Key(q.cfg.Prefix, kind), func(current string, ok bool) (string, bool, error) {
			stored := q.decode(ctx, kind, current, ok)

			var out []models.PendingOperation
			for _, op := range stored {
				if !containsOp(delivered, op) {
					out = append(out, op)
				}
			}
			for _, op := range remaining {
				if op.Kind == kind && !containsOp(out, op) {
					out = append(out, op)
				}
			}

			depth = len(out)
			if len(out) == 0 {
				return "", false, nil
			}
			return encode(out)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to persist pending %s: %w", kind, err))
			continue
		}
		q.metrics.SetPending(string(kind), depth)
	}
	return errors.Join(errs...)
}

// Close stops a scheduled replay that has not finished.
func (q *Queue) Close() {
	q.schedMu.Lock()
	q.closed = true
	cancel := q.cancel
	q.schedMu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until a scheduled replay has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) decode(ctx context.Context, kind models.OperationKind, raw string, ok bool) []models.PendingOperation {
	if !ok || raw == "" {
		return nil
	}
	var bodies []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &bodies); err != nil {
		q.logger.Warn(ctx, "discarding unreadable pending queue", "kind", kind, "err", err)
		return nil
	}
	ops := make([]models.PendingOperation, 0, len(bodies))
	for _, b := range bodies {
		ops = append(ops, models.PendingOperation{Kind: kind, Body: b})
	}
	return ops
}

func encode(ops []models.PendingOperation) (string, bool, error) {
	bodies := make([]json.RawMessage, len(ops))
	for i, op := range ops {
		bodies[i] = op.Body
	}
	b, err := json.Marshal(bodies)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func containsOp(ops []models.PendingOperation, op models.PendingOperation) bool {
	for _, o := range ops {
		if o.SameAs(op) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
