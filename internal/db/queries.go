package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/errors"
)

// QueueRow is one stored capture_queue row.
type QueueRow struct {
	QueueID       int64
	Record        capture.Record
	CreatedAt     int64 // unix ms
	Synced        bool
	Attempts      int
	NextAttemptAt int64 // unix ms, 0 = immediately
	LastError     string
	Parked        bool
}

// QueueFilter selects which unsynced rows SelectQueueRows returns.
type QueueFilter struct {
	Parked bool // select parked rows instead of active ones

	// DueAt, when non-zero, restricts active rows to next_attempt_at <= DueAt.
	DueAt int64

	IDs []int64 // optional explicit id set
}

const queueColumns = `queue_id, record_json, created_at, synced, attempts, next_attempt_at, last_error, parked`

// InsertQueueRow stores rec as a new unsynced row and returns its queue_id.
func InsertQueueRow(ctx context.Context, q Querier, rec *capture.Record, createdAt int64) (int64, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	query := `
		INSERT INTO capture_queue (capture_id, record_json, created_at, synced, attempts, next_attempt_at, parked)
		VALUES (?, ?, ?, 0, 0, 0, 0)
	`
	result, err := q.ExecContext(ctx, query, rec.ID, string(data), createdAt)
	if err != nil {
		return 0, errors.NewPersistence("enqueue", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.NewPersistence("enqueue", err)
	}
	return id, nil
}

// SelectQueueRows returns unsynced rows in insertion order (oldest first).
func SelectQueueRows(ctx context.Context, q Querier, f QueueFilter) ([]QueueRow, error) {
	var (
		where = []string{"synced = 0"}
		args  []any
	)
	if f.Parked {
		where = append(where, "parked = 1")
	} else {
		where = append(where, "parked = 0")
		if f.DueAt > 0 {
			where = append(where, "next_attempt_at <= ?")
			args = append(args, f.DueAt)
		}
	}
	if len(f.IDs) > 0 {
		where = append(where, "queue_id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}

	query := `SELECT ` + queueColumns + ` FROM capture_queue WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at ASC, queue_id ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistence("read queue", err)
	}
	defer rows.Close()

	var out []QueueRow
	for rows.Next() {
		r, err := scanQueueRow(rows)
		if err != nil {
			return nil, errors.NewPersistence("read queue", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistence("read queue", err)
	}
	return out, nil
}

// GetQueueRow returns the row with the given queue_id, or NOT_FOUND.
func GetQueueRow(ctx context.Context, q Querier, id int64) (*QueueRow, error) {
	row := q.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM capture_queue WHERE queue_id = ?`, id)
	r, err := scanQueueRow(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.NewPersistence("read queue", err)
	}
	return r, nil
}

// DeleteQueueRows deletes the named rows. Missing ids are ignored.
func DeleteQueueRows(ctx context.Context, q Querier, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	result, err := q.ExecContext(ctx,
		`DELETE FROM capture_queue WHERE queue_id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, errors.NewPersistence("ack", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewPersistence("ack", err)
	}
	return n, nil
}

// DeleteAllQueueRows empties the queue and returns the number of rows removed.
func DeleteAllQueueRows(ctx context.Context, q Querier) (int64, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM capture_queue`)
	if err != nil {
		return 0, errors.NewPersistence("clear queue", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewPersistence("clear queue", err)
	}
	return n, nil
}

// UpdateQueueRetry rewrites the retry bookkeeping of one row and marks it unsynced.
// Returns false when the row no longer exists.
func UpdateQueueRetry(ctx context.Context, q Querier, id int64, attempts int, nextAttemptAt int64, lastError string, parked bool) (bool, error) {
	query := `
		UPDATE capture_queue
		SET synced = 0, attempts = ?, next_attempt_at = ?, last_error = ?, parked = ?
		WHERE queue_id = ?
	`
	result, err := q.ExecContext(ctx, query, attempts, nextAttemptAt, toNullString(lastError), boolToInt(parked), id)
	if err != nil {
		return false, errors.NewPersistence("retain", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewPersistence("retain", err)
	}
	return n > 0, nil
}

// QueueCounts summarizes unsynced rows.
type QueueCounts struct {
	Pending int // active (not parked)
	Due     int // active and next_attempt_at <= now
	Parked  int
}

// CountQueueRows counts unsynced rows relative to now (unix ms).
func CountQueueRows(ctx context.Context, q Querier, now int64) (QueueCounts, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN parked = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN parked = 0 AND next_attempt_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN parked = 1 THEN 1 ELSE 0 END), 0)
		FROM capture_queue
		WHERE synced = 0
	`
	var c QueueCounts
	if err := q.QueryRowContext(ctx, query, now).Scan(&c.Pending, &c.Due, &c.Parked); err != nil {
		return QueueCounts{}, errors.NewPersistence("count queue", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanQueueRow scans a single row into a QueueRow.
func scanQueueRow(row rowScanner) (*QueueRow, error) {
	var (
		r          QueueRow
		recordJSON string
		synced     int
		parked     int
		lastError  sql.NullString
	)
	if err := row.Scan(&r.QueueID, &recordJSON, &r.CreatedAt, &synced, &r.Attempts, &r.NextAttemptAt, &lastError, &parked); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(recordJSON), &r.Record); err != nil {
		return nil, err
	}
	r.Synced = synced != 0
	r.Parked = parked != 0
	r.LastError = lastError.String
	return &r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// toNullString maps "" to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
