package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/db"
	"github.com/hpungsan/synapse/internal/errors"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestQueue(t *testing.T, policy RetryPolicy) (*Queue, *fakeClock) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(database, Options{Retry: policy, Now: clock.Now}), clock
}

func newRecord(t *testing.T, content string) *capture.Record {
	t.Helper()
	rec, err := capture.New(capture.Input{Kind: capture.KindSelectedText, Content: content}, time.Now())
	if err != nil {
		t.Fatalf("capture.New failed: %v", err)
	}
	return rec
}

func enqueueN(t *testing.T, q *Queue, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := range ids {
		id, err := q.Enqueue(context.Background(), newRecord(t, fmt.Sprintf("e%d", i+1)))
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids[i] = id
	}
	return ids
}

func queueIDs(entries []Entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.QueueID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPending_FIFOThenAck(t *testing.T) {
	q, _ := newTestQueue(t, RetryPolicy{})
	ctx := context.Background()
	ids := enqueueN(t, q, 3)

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if !equalIDs(queueIDs(pending), ids) {
		t.Fatalf("Pending = %v, want %v", queueIDs(pending), ids)
	}
	if pending[0].Record.Content != "e1" || pending[0].Record.Synced {
		t.Errorf("first entry = %+v", pending[0])
	}

	if err := q.Ack(ctx, []int64{ids[0]}); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	pending, err = q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if !equalIDs(queueIDs(pending), ids[1:]) {
		t.Errorf("Pending after ack = %v, want %v", queueIDs(pending), ids[1:])
	}
}

func TestAck_Idempotent(t *testing.T) {
	q, _ := newTestQueue(t, RetryPolicy{})
	ctx := context.Background()
	ids := enqueueN(t, q, 1)

	if err := q.Ack(ctx, ids); err != nil {
		t.Fatalf("first Ack failed: %v", err)
	}
	if err := q.Ack(ctx, ids); err != nil {
		t.Fatalf("second Ack should be a no-op, got %v", err)
	}
	if err := q.Ack(ctx, nil); err != nil {
		t.Fatalf("empty Ack failed: %v", err)
	}
}

func TestRetain_KeepsPositionAndSchedulesBackoff(t *testing.T) {
	policy := RetryPolicy{BaseBackoff: time.Minute, MaxBackoff: time.Hour, MaxAttempts: 5}
	q, clock := newTestQueue(t, policy)
	ctx := context.Background()
	ids := enqueueN(t, q, 3)

	if err := q.Retain(ctx, []Failure{{QueueID: ids[0], Reason: "HTTP 500"}}); err != nil {
		t.Fatalf("Retain failed: %v", err)
	}

	// Pending ignores backoff and keeps insertion order.
	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if !equalIDs(queueIDs(pending), ids) {
		t.Fatalf("Pending = %v, want %v", queueIDs(pending), ids)
	}
	first := pending[0]
	if first.Attempts != 1 || first.LastError != "HTTP 500" || first.Record.Synced {
		t.Errorf("retained entry = %+v", first)
	}
	if first.NextAttemptAt == nil || !first.NextAttemptAt.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("NextAttemptAt = %v, want now+1m", first.NextAttemptAt)
	}

	due, err := q.Due(ctx, clock.Now())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !equalIDs(queueIDs(due), ids[1:]) {
		t.Errorf("Due = %v, want %v", queueIDs(due), ids[1:])
	}

	clock.Advance(time.Minute)
	due, err = q.Due(ctx, clock.Now())
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	if !equalIDs(queueIDs(due), ids) {
		t.Errorf("Due after backoff = %v, want %v", queueIDs(due), ids)
	}
}

func TestRetain_ParksAfterMaxAttempts(t *testing.T) {
	q, clock := newTestQueue(t, RetryPolicy{BaseBackoff: time.Second, MaxBackoff: time.Minute, MaxAttempts: 2})
	ctx := context.Background()
	ids := enqueueN(t, q, 2)

	for i := 0; i < 2; i++ {
		if err := q.Retain(ctx, []Failure{{QueueID: ids[0], Reason: fmt.Sprintf("fail %d", i+1)}}); err != nil {
			t.Fatalf("Retain failed: %v", err)
		}
		clock.Advance(time.Minute)
	}

	pending, _ := q.Pending(ctx)
	if !equalIDs(queueIDs(pending), ids[1:]) {
		t.Errorf("Pending = %v, want only %v", queueIDs(pending), ids[1:])
	}
	parked, err := q.Parked(ctx)
	if err != nil {
		t.Fatalf("Parked failed: %v", err)
	}
	if len(parked) != 1 || parked[0].QueueID != ids[0] || !parked[0].Parked || parked[0].LastError != "fail 2" {
		t.Fatalf("Parked = %+v", parked)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats != (Stats{Pending: 1, Due: 1, Parked: 1}) {
		t.Errorf("Stats = %+v", stats)
	}

	n, err := q.Requeue(ctx, nil)
	if err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Requeue = %d, want 1", n)
	}
	pending, _ = q.Pending(ctx)
	if !equalIDs(queueIDs(pending), ids) {
		t.Errorf("Pending after requeue = %v, want %v", queueIDs(pending), ids)
	}
	if pending[0].Attempts != 0 || pending[0].NextAttemptAt != nil {
		t.Errorf("requeued entry not reset: %+v", pending[0])
	}
}

func TestRetain_SkipsRemovedEntries(t *testing.T) {
	q, _ := newTestQueue(t, RetryPolicy{})
	ctx := context.Background()
	ids := enqueueN(t, q, 1)

	if err := q.Ack(ctx, ids); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	if err := q.Retain(ctx, []Failure{{QueueID: ids[0], Reason: "late"}}); err != nil {
		t.Fatalf("Retain on acked entry should be skipped, got %v", err)
	}
	if _, err := q.Get(ctx, ids[0]); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("acked entry resurrected: %v", err)
	}
}

func TestClear(t *testing.T) {
	q, _ := newTestQueue(t, RetryPolicy{})
	ctx := context.Background()
	enqueueN(t, q, 3)

	n, err := q.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Clear removed %d, want 3", n)
	}
	pending, _ := q.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("Pending after Clear = %d entries", len(pending))
	}
}

func TestEnqueue_ConcurrentWithReads(t *testing.T) {
	q, _ := newTestQueue(t, RetryPolicy{})
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	errCh := make(chan error, writers*2)

	records := make([]*capture.Record, writers)
	for i := range records {
		records[i] = newRecord(t, fmt.Sprintf("c%d", i))
	}

	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(rec *capture.Record) {
			defer wg.Done()
			if _, err := q.Enqueue(ctx, rec); err != nil {
				errCh <- err
			}
		}(records[i])
		go func() {
			defer wg.Done()
			entries, err := q.Pending(ctx)
			if err != nil {
				errCh <- err
				return
			}
			for _, e := range entries {
				if e.Record.ID == "" || e.Record.Content == "" {
					errCh <- fmt.Errorf("torn entry observed: %+v", e)
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != writers {
		t.Errorf("Pending = %d, want %d (lost enqueue)", len(pending), writers)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseBackoff: 30 * time.Second, MaxBackoff: 5 * time.Minute}
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 0},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 5 * time.Minute},
		{80, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempts); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}

	if !(RetryPolicy{MaxAttempts: 3}).Exhausted(3) {
		t.Error("Exhausted(3) with MaxAttempts 3 should be true")
	}
	if (RetryPolicy{}).Exhausted(1000) {
		t.Error("MaxAttempts 0 means unlimited")
	}
}
