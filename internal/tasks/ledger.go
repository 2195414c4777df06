// Package tasks tracks best-effort enrichment work (chapter summaries,
// illustrations, character-visual extraction) running alongside the
// foreground stream. The ledger guarantees at most one in-flight task per
// key and converts every task failure into a fallback at its own boundary.
package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	uatomic "go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// TaskKind names one enrichment concern.
type TaskKind string

const (
	TaskSummary TaskKind = "summary"
	TaskImage   TaskKind = "image"
	TaskVisuals TaskKind = "visuals"
)

// TaskKey identifies one unit of enrichment work.
type TaskKey struct {
	AdventureID string
	Chapter     int
	Kind        TaskKind
}

func (k TaskKey) String() string {
	return fmt.Sprintf("%s/ch%d/%s", k.AdventureID, k.Chapter, k.Kind)
}

// TaskFunc is the work behind one ledger entry.
type TaskFunc func(ctx context.Context) (interface{}, error)

// Handle tracks one scheduled task. Result and err are set exactly once,
// before done is closed.
type Handle struct {
	key    TaskKey
	done   chan struct{}
	result interface{}
	err    error
}

// Done returns a channel closed when the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Ledger runs keyed enrichment tasks. Scheduling is idempotent: a second
// Schedule for an in-flight or completed key returns the existing handle
// without running the work again.
type Ledger struct {
	mu       sync.Mutex
	tasks    map[TaskKey]*Handle
	inFlight *uatomic.Int64
}

func NewLedger() *Ledger {
	return &Ledger{
		tasks:    make(map[TaskKey]*Handle),
		inFlight: uatomic.NewInt64(0),
	}
}

// Schedule launches work for key unless a task for that key already exists,
// in which case the existing handle is returned and work never runs. The
// task runs on the supplied context, which should outlive the session: results
// are still wanted after a disconnect.
func (l *Ledger) Schedule(ctx context.Context, key TaskKey, work TaskFunc) *Handle {
	l.mu.Lock()
	if h, ok := l.tasks[key]; ok {
		l.mu.Unlock()
		return h
	}
	h := &Handle{key: key, done: make(chan struct{})}
	l.tasks[key] = h
	l.mu.Unlock()

	l.inFlight.Inc()
	go func() {
		defer l.inFlight.Dec()
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("task panicked: %v", r)
				log.Printf("[Ledger] Task %s panicked: %v", key, r)
			}
		}()

		result, err := work(ctx)
		if err != nil {
			// Enrichment failure is never fatal. Log with the key and let
			// callers take the fallback path.
			log.Printf("[Ledger] Task %s failed: %v", key, err)
			h.err = err
			return
		}
		h.result = result
	}()
	return h
}

// AwaitRequired blocks up to timeout for the task behind key. On a missing
// task, task failure, timeout, or context cancellation it returns the
// deterministic fallback instead of an error: a missing enrichment result
// must never abort chapter generation.
func (l *Ledger) AwaitRequired(ctx context.Context, key TaskKey, timeout time.Duration, fallback interface{}) interface{} {
	l.mu.Lock()
	h, ok := l.tasks[key]
	l.mu.Unlock()
	if !ok {
		return fallback
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		if h.err != nil || h.result == nil {
			return fallback
		}
		return h.result
	case <-timer.C:
		log.Printf("[Ledger] Await on %s timed out after %s, using fallback", key, timeout)
		return fallback
	case <-ctx.Done():
		return fallback
	}
}

// HarvestBestEffort returns the task result if it has already completed
// successfully, without blocking.
func (l *Ledger) HarvestBestEffort(key TaskKey) (interface{}, bool) {
	l.mu.Lock()
	h, ok := l.tasks[key]
	l.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-h.done:
		if h.err != nil || h.result == nil {
			return nil, false
		}
		return h.result, true
	default:
		return nil, false
	}
}

// AwaitAll waits up to timeout for every listed key to finish, then harvests
// whatever completed successfully. Used just before summary synthesis to pull
// in late per-chapter summaries.
func (l *Ledger) AwaitAll(ctx context.Context, timeout time.Duration, keys ...TaskKey) map[TaskKey]interface{} {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, waitCtx := errgroup.WithContext(waitCtx)
	for _, key := range keys {
		l.mu.Lock()
		h, ok := l.tasks[key]
		l.mu.Unlock()
		if !ok {
			continue
		}
		g.Go(func() error {
			select {
			case <-h.done:
			case <-waitCtx.Done():
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[TaskKey]interface{})
	for _, key := range keys {
		if v, ok := l.HarvestBestEffort(key); ok {
			results[key] = v
		}
	}
	return results
}

// InFlight reports the number of currently running tasks.
func (l *Ledger) InFlight() int64 {
	return l.inFlight.Load()
}

// Forget drops completed bookkeeping for an adventure. In-flight tasks keep
// running; only their handles become unreachable through the ledger.
func (l *Ledger) Forget(adventureID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, h := range l.tasks {
		if key.AdventureID != adventureID {
			continue
		}
		select {
		case <-h.done:
			delete(l.tasks, key)
		default:
		}
	}
}
