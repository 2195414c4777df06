package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(chapter int, kind TaskKind) TaskKey {
	return TaskKey{AdventureID: "adv-1", Chapter: chapter, Kind: kind}
}

func TestScheduleRunsWorkOnce(t *testing.T) {
	l := NewLedger()
	var mu sync.Mutex
	runs := 0

	work := func(ctx context.Context) (interface{}, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		return "summary text", nil
	}

	h1 := l.Schedule(context.Background(), key(1, TaskSummary), work)
	h2 := l.Schedule(context.Background(), key(1, TaskSummary), work)
	require.Same(t, h1, h2, "same key must return the same handle")

	<-h1.Done()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs)
}

func TestAwaitRequiredReturnsResult(t *testing.T) {
	l := NewLedger()
	l.Schedule(context.Background(), key(1, TaskVisuals), func(ctx context.Context) (interface{}, error) {
		return map[string]string{"Mira": "a tall girl"}, nil
	})

	got := l.AwaitRequired(context.Background(), key(1, TaskVisuals), time.Second, "fallback")
	visuals, ok := got.(map[string]string)
	require.True(t, ok, "expected the task result, got %T", got)
	assert.Equal(t, "a tall girl", visuals["Mira"])
}

func TestAwaitRequiredTimeoutFallsBack(t *testing.T) {
	l := NewLedger()
	release := make(chan struct{})
	l.Schedule(context.Background(), key(2, TaskVisuals), func(ctx context.Context) (interface{}, error) {
		<-release
		return map[string]string{}, nil
	})

	start := time.Now()
	got := l.AwaitRequired(context.Background(), key(2, TaskVisuals), 50*time.Millisecond, "fallback")
	close(release)

	assert.Equal(t, "fallback", got)
	assert.Less(t, time.Since(start), time.Second, "await must respect its bound")
}

func TestAwaitRequiredFailureFallsBack(t *testing.T) {
	l := NewLedger()
	h := l.Schedule(context.Background(), key(3, TaskVisuals), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("model unavailable")
	})
	<-h.Done()

	got := l.AwaitRequired(context.Background(), key(3, TaskVisuals), time.Second, "fallback")
	assert.Equal(t, "fallback", got)
}

func TestAwaitRequiredMissingTaskFallsBack(t *testing.T) {
	l := NewLedger()
	got := l.AwaitRequired(context.Background(), key(9, TaskVisuals), 10*time.Millisecond, "fallback")
	assert.Equal(t, "fallback", got)
}

func TestHarvestBestEffort(t *testing.T) {
	l := NewLedger()

	_, ok := l.HarvestBestEffort(key(1, TaskSummary))
	assert.False(t, ok, "missing task must not harvest")

	release := make(chan struct{})
	h := l.Schedule(context.Background(), key(1, TaskSummary), func(ctx context.Context) (interface{}, error) {
		<-release
		return "late summary", nil
	})

	_, ok = l.HarvestBestEffort(key(1, TaskSummary))
	assert.False(t, ok, "in-flight task must not harvest")

	close(release)
	<-h.Done()

	got, ok := l.HarvestBestEffort(key(1, TaskSummary))
	require.True(t, ok)
	assert.Equal(t, "late summary", got)
}

func TestAwaitAllHarvestsCompleted(t *testing.T) {
	l := NewLedger()
	l.Schedule(context.Background(), key(1, TaskSummary), func(ctx context.Context) (interface{}, error) {
		return "one", nil
	})
	l.Schedule(context.Background(), key(2, TaskSummary), func(ctx context.Context) (interface{}, error) {
		return "two", nil
	})
	stuck := make(chan struct{})
	defer close(stuck)
	l.Schedule(context.Background(), key(3, TaskSummary), func(ctx context.Context) (interface{}, error) {
		<-stuck
		return "three", nil
	})

	results := l.AwaitAll(context.Background(), 100*time.Millisecond,
		key(1, TaskSummary), key(2, TaskSummary), key(3, TaskSummary), key(4, TaskSummary))

	assert.Equal(t, "one", results[key(1, TaskSummary)])
	assert.Equal(t, "two", results[key(2, TaskSummary)])
	_, ok := results[key(3, TaskSummary)]
	assert.False(t, ok, "stuck task must not appear in results")
}

func TestTaskPanicIsContained(t *testing.T) {
	l := NewLedger()
	h := l.Schedule(context.Background(), key(1, TaskImage), func(ctx context.Context) (interface{}, error) {
		panic("boom")
	})
	<-h.Done()

	got := l.AwaitRequired(context.Background(), key(1, TaskImage), time.Second, "fallback")
	assert.Equal(t, "fallback", got)
}

func TestForgetDropsOnlyCompleted(t *testing.T) {
	l := NewLedger()
	h := l.Schedule(context.Background(), key(1, TaskSummary), func(ctx context.Context) (interface{}, error) {
		return "done", nil
	})
	<-h.Done()

	release := make(chan struct{})
	l.Schedule(context.Background(), key(2, TaskSummary), func(ctx context.Context) (interface{}, error) {
		<-release
		return "pending", nil
	})

	l.Forget("adv-1")

	_, ok := l.HarvestBestEffort(key(1, TaskSummary))
	assert.False(t, ok, "completed handle must be forgotten")

	close(release)
	h2 := l.Schedule(context.Background(), key(2, TaskSummary), func(ctx context.Context) (interface{}, error) {
		t.Error("in-flight task must survive Forget")
		return nil, nil
	})
	<-h2.Done()
	got, ok := l.HarvestBestEffort(key(2, TaskSummary))
	require.True(t, ok)
	assert.Equal(t, "pending", got)
}
