// Package queue tracks capture records awaiting remote sync.
//
// Entries live in the capture_queue table until the remote API confirms them
// (Ack) or the user clears the queue. A failed delivery is written back with
// Retain, which bumps the attempt counter and schedules the next attempt with
// exponential backoff. Entries that exhaust the retry policy are parked: kept,
// still unsynced, but skipped by Pending and Due until requeued.
package queue

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/db"
	"github.com/hpungsan/synapse/internal/errors"
)

// Entry is a queued record with its delivery bookkeeping.
type Entry struct {
	QueueID       int64          `json:"queue_id"`
	Record        capture.Record `json:"record"`
	EnqueuedAt    time.Time      `json:"enqueued_at"`
	Attempts      int            `json:"attempts"`
	NextAttemptAt *time.Time     `json:"next_attempt_at,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	Parked        bool           `json:"parked"`
}

// Failure names one entry whose delivery failed and why.
type Failure struct {
	QueueID int64
	Reason  string
}

// Stats counts unsynced entries.
type Stats struct {
	Pending int `json:"pending"`
	Due     int `json:"due"`
	Parked  int `json:"parked"`
}

// Options configures a Queue.
type Options struct {
	Retry  RetryPolicy      // zero value: DefaultRetryPolicy
	Now    func() time.Time // default time.Now
	Logger *slog.Logger     // default slog.Default()
}

func (o *Options) defaults() {
	if o.Retry == (RetryPolicy{}) {
		o.Retry = DefaultRetryPolicy
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Queue is the capture queue handle. Every mutation is one transaction.
type Queue struct {
	db   *sql.DB
	opts Options
}

// New creates a queue handle over an initialized database.
func New(database *sql.DB, opts Options) *Queue {
	opts.defaults()
	return &Queue{db: database, opts: opts}
}

// Policy returns the retry policy in effect.
func (q *Queue) Policy() RetryPolicy { return q.opts.Retry }

// Enqueue stores rec as unsynced and returns its auto-increment queue id.
func (q *Queue) Enqueue(ctx context.Context, rec *capture.Record) (int64, error) {
	var id int64
	err := db.WithTx(ctx, q.db, func(tx *sql.Tx) error {
		var err error
		id, err = q.EnqueueTx(ctx, tx, rec)
		return err
	})
	if err != nil {
		return 0, wrap("enqueue", err)
	}
	return id, nil
}

// EnqueueTx is Enqueue inside the caller's transaction.
func (q *Queue) EnqueueTx(ctx context.Context, tx *sql.Tx, rec *capture.Record) (int64, error) {
	id, err := db.InsertQueueRow(ctx, tx, rec, q.opts.Now().UnixMilli())
	if err != nil {
		return 0, wrap("enqueue", err)
	}
	q.opts.Logger.Debug("queue enqueue", "queue_id", id, "capture_id", rec.ID)
	return id, nil
}

// Pending returns every active unsynced entry, oldest first, regardless of backoff.
func (q *Queue) Pending(ctx context.Context) ([]Entry, error) {
	return q.selectEntries(ctx, db.QueueFilter{})
}

// Due returns the active entries whose next attempt time has passed, oldest first.
func (q *Queue) Due(ctx context.Context, now time.Time) ([]Entry, error) {
	return q.selectEntries(ctx, db.QueueFilter{DueAt: now.UnixMilli()})
}

// Parked returns entries that exhausted the retry policy.
func (q *Queue) Parked(ctx context.Context) ([]Entry, error) {
	return q.selectEntries(ctx, db.QueueFilter{Parked: true})
}

// Get returns a single entry by queue id.
func (q *Queue) Get(ctx context.Context, id int64) (*Entry, error) {
	row, err := db.GetQueueRow(ctx, q.db, id)
	if err != nil {
		return nil, err
	}
	e := toEntry(row)
	return &e, nil
}

// Ack deletes the named entries after confirmed remote persistence.
// Unknown ids are ignored, so acking twice is a no-op.
func (q *Queue) Ack(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var n int64
	err := db.WithTx(ctx, q.db, func(tx *sql.Tx) error {
		var err error
		n, err = db.DeleteQueueRows(ctx, tx, ids)
		return err
	})
	if err != nil {
		return wrap("ack", err)
	}
	q.opts.Logger.Debug("queue ack", "ids", ids, "removed", n)
	return nil
}

// Retain writes failed entries back as unsynced, keeping their position.
// Each gets attempts+1, the failure reason, and a next attempt time from the
// retry policy; an entry that reaches MaxAttempts is parked. Entries removed
// in the meantime are skipped.
func (q *Queue) Retain(ctx context.Context, failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}
	now := q.opts.Now()
	err := db.WithTx(ctx, q.db, func(tx *sql.Tx) error {
		for _, f := range failures {
			row, err := db.GetQueueRow(ctx, tx, f.QueueID)
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			attempts := row.Attempts + 1
			parked := q.opts.Retry.Exhausted(attempts)
			next := now.Add(q.opts.Retry.Backoff(attempts)).UnixMilli()
			if _, err := db.UpdateQueueRetry(ctx, tx, f.QueueID, attempts, next, f.Reason, parked); err != nil {
				return err
			}
			if parked {
				q.opts.Logger.Warn("queue entry parked", "queue_id", f.QueueID, "attempts", attempts, "reason", f.Reason)
			}
		}
		return nil
	})
	return wrap("retain", err)
}

// Requeue unparks the named entries and resets their retry state.
// With no ids, every parked entry is requeued. Returns the number requeued.
func (q *Queue) Requeue(ctx context.Context, ids []int64) (int, error) {
	var n int
	err := db.WithTx(ctx, q.db, func(tx *sql.Tx) error {
		rows, err := db.SelectQueueRows(ctx, tx, db.QueueFilter{Parked: true, IDs: ids})
		if err != nil {
			return err
		}
		for _, r := range rows {
			if _, err := db.UpdateQueueRetry(ctx, tx, r.QueueID, 0, 0, "", false); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, wrap("requeue", err)
	}
	return n, nil
}

// Clear deletes every entry unconditionally. Returns the number removed.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	var n int64
	err := db.WithTx(ctx, q.db, func(tx *sql.Tx) error {
		var err error
		n, err = db.DeleteAllQueueRows(ctx, tx)
		return err
	})
	if err != nil {
		return 0, wrap("clear queue", err)
	}
	q.opts.Logger.Info("queue cleared", "removed", n)
	return int(n), nil
}

// Stats counts pending, due, and parked entries.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	c, err := db.CountQueueRows(ctx, q.db, q.opts.Now().UnixMilli())
	if err != nil {
		return Stats{}, err
	}
	return Stats{Pending: c.Pending, Due: c.Due, Parked: c.Parked}, nil
}

func (q *Queue) selectEntries(ctx context.Context, f db.QueueFilter) ([]Entry, error) {
	rows, err := db.SelectQueueRows(ctx, q.db, f)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i := range rows {
		out[i] = toEntry(&rows[i])
	}
	return out, nil
}

func toEntry(r *db.QueueRow) Entry {
	e := Entry{
		QueueID:    r.QueueID,
		Record:     r.Record,
		EnqueuedAt: time.UnixMilli(r.CreatedAt).UTC(),
		Attempts:   r.Attempts,
		LastError:  r.LastError,
		Parked:     r.Parked,
	}
	if r.NextAttemptAt > 0 {
		t := time.UnixMilli(r.NextAttemptAt).UTC()
		e.NextAttemptAt = &t
	}
	return e
}

// wrap maps a raw transaction error onto PERSISTENCE; structured errors pass through.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewPersistence(op, err)
}
