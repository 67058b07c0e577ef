package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront-client/internal/alert"
	"storefront-client/internal/cache"
	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// Locker serializes mutations per item. Mutations on different keys run
// concurrently; a second acquire on a held key is rejected, never queued.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
	Busy(ctx context.Context, key string) (bool, error)
}

// LocalLocker is the single-instance Locker. Multi-instance deployments use
// the Redis-backed locker instead.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

func (l *LocalLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

func (l *LocalLocker) Busy(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok, nil
}

// Journal persists mutation lifecycles for audit. Optional.
type Journal interface {
	RecordMutation(ctx context.Context, rec *models.MutationRecord) error
	ResolveMutation(ctx context.Context, token, status, detail string) error
}

// EventSink fans mutation outcomes out to sibling instances. Optional.
type EventSink interface {
	PublishCacheInvalidated(ctx context.Context, keys []string) error
	PublishMutationRolledBack(ctx context.Context, token, kind, targetID, reason string) error
}

// Op describes one mutation run: the optimistic transition, the remote
// call, and the reconciliation callbacks. Apply, Commit and Undo run under
// Lock (the owning session's mutex); everything else runs outside it.
type Op struct {
	Mutation *Mutation
	LockKey  string
	Lock     sync.Locker

	Apply  func()
	Call   func(ctx context.Context) error
	Commit func()
	Undo   func()
	// AfterCommit runs outside the session lock after a successful
	// resolution, for side effects like analytics events.
	AfterCommit func(ctx context.Context)

	Invalidate         []string
	InvalidatePrefixes []string

	Alerts         *alert.Channel
	SuccessMessage string
	FailureMessage string
}

// Executor wraps a single mutating remote call with the busy-lock,
// optimistic-apply, resolve-or-rollback lifecycle. Mutation errors never
// escape it; they become alerts, journal rows and metrics.
type Executor struct {
	locker      Locker
	cache       *cache.Cache
	journal     Journal
	events      EventSink
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewExecutor creates a mutation executor. journal and events may be nil.
func NewExecutor(locker Locker, c *cache.Cache, journal Journal, events EventSink, callTimeout time.Duration) *Executor {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &Executor{
		locker:      locker,
		cache:       c,
		journal:     journal,
		events:      events,
		callTimeout: callTimeout,
		logger:      util.GetLogger(),
	}
}

// Busy reports whether a mutation currently holds the given lock key.
func (e *Executor) Busy(ctx context.Context, lockKey string) bool {
	busy, err := e.locker.Busy(ctx, lockKey)
	if err != nil {
		e.logger.Warn("Busy check failed", zap.String("key", lockKey), zap.Error(err))
		return false
	}
	return busy
}

// Begin acquires the busy lock, applies the optimistic transition and
// starts the remote call. Returns ErrItemBusy when the target already has a
// mutation in flight. Resolution happens asynchronously; await
// op.Mutation.Done() when the outcome matters.
func (e *Executor) Begin(ctx context.Context, op Op) error {
	ok, err := e.locker.Acquire(ctx, op.LockKey)
	if err != nil {
		return fmt.Errorf("failed to acquire mutation lock: %w", err)
	}
	if !ok {
		util.MutationsRejectedTotal.WithLabelValues("busy").Inc()
		return ErrItemBusy
	}

	if op.Apply != nil {
		op.Lock.Lock()
		op.Apply()
		op.Lock.Unlock()
	}

	if e.journal != nil {
		rec := &models.MutationRecord{
			Token:    op.Mutation.Token,
			Kind:     op.Mutation.Kind,
			TargetID: op.Mutation.TargetID,
			Status:   models.MutationStatusPending,
		}
		if err := e.journal.RecordMutation(ctx, rec); err != nil {
			e.logger.Error("Failed to journal mutation",
				zap.String("token", op.Mutation.Token),
				zap.Error(err))
		}
	}

	go e.resolve(op)
	return nil
}

// resolve runs on its own goroutine with a detached context: the caller's
// request ends as soon as the optimistic state is returned.
func (e *Executor) resolve(op Op) {
	m := op.Mutation

	ctx, cancel := context.WithTimeout(context.Background(), e.callTimeout)
	defer cancel()
	ctx, span := util.StartSpan(ctx, "mutation."+m.Kind)
	defer span.End()

	err := op.Call(ctx)
	if err != nil {
		e.logger.Warn("Mutation failed, rolling back",
			zap.String("kind", m.Kind),
			zap.String("target_id", m.TargetID),
			zap.String("token", m.Token),
			zap.Error(err))

		if op.Undo != nil {
			op.Lock.Lock()
			op.Undo()
			op.Lock.Unlock()
		}

		util.MutationsTotal.WithLabelValues(m.Kind, "rolled_back").Inc()
		util.MutationRollbacksTotal.Inc()
		e.resolveJournal(ctx, m.Token, models.MutationStatusRolledBack, err.Error())

		if e.events != nil {
			if perr := e.events.PublishMutationRolledBack(ctx, m.Token, m.Kind, m.TargetID, err.Error()); perr != nil {
				e.logger.Error("Failed to publish rollback event", zap.Error(perr))
			}
		}
		if op.Alerts != nil && op.FailureMessage != "" {
			op.Alerts.Show(op.FailureMessage)
		}

		m.rollback(err)
		e.release(op.LockKey)
		return
	}

	if op.Commit != nil {
		op.Lock.Lock()
		op.Commit()
		op.Lock.Unlock()
	}

	util.MutationsTotal.WithLabelValues(m.Kind, "applied").Inc()

	if e.cache != nil {
		e.cache.Invalidate(op.Invalidate...)
		for _, prefix := range op.InvalidatePrefixes {
			e.cache.InvalidatePrefix(prefix)
		}
	}

	if e.events != nil && (len(op.Invalidate) > 0 || len(op.InvalidatePrefixes) > 0) {
		keys := append(append([]string{}, op.Invalidate...), op.InvalidatePrefixes...)
		if perr := e.events.PublishCacheInvalidated(ctx, keys); perr != nil {
			e.logger.Error("Failed to publish invalidation event", zap.Error(perr))
		}
	}

	e.resolveJournal(ctx, m.Token, models.MutationStatusApplied, "")

	if op.Alerts != nil && op.SuccessMessage != "" {
		op.Alerts.Show(op.SuccessMessage)
	}
	if op.AfterCommit != nil {
		op.AfterCommit(ctx)
	}

	m.confirm()
	e.release(op.LockKey)
}

func (e *Executor) resolveJournal(ctx context.Context, token, status, detail string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.ResolveMutation(ctx, token, status, detail); err != nil {
		e.logger.Error("Failed to resolve journal entry",
			zap.String("token", token),
			zap.Error(err))
	}
}

func (e *Executor) release(key string) {
	if err := e.locker.Release(context.Background(), key); err != nil {
		e.logger.Error("Failed to release mutation lock",
			zap.String("key", key),
			zap.Error(err))
	}
}
