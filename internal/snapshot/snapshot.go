// Package snapshot keeps a durable, newest-first list of capture records
// inside the SQLite key-value table.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/db"
	"github.com/hpungsan/synapse/internal/errors"
)

// DefaultKey is the key-value entry that holds the main capture list.
const DefaultKey = "synapse-captures"

// Format selects the flat export encoding.
type Format string

// FormatCSV is the only supported export format.
const FormatCSV Format = "csv"

// Export is a serialized snapshot ready to be written to a file.
type Export struct {
	Data     []byte   `json:"-"`
	IDs      []string `json:"-"` // records in Data, for Remove
	Filename string `json:"filename"`
	Count    int    `json:"count"`
}

// Options configures a Store.
type Options struct {
	Key    string           // kv key; default DefaultKey
	Now    func() time.Time // clock; default time.Now
	Logger *slog.Logger     // default slog.Default()
}

// Store is one named sequence of records, newest first.
type Store struct {
	db     *sql.DB
	key    string
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	cache []capture.Record
}

// New binds a Store to database. Nothing is read until the first call.
func New(database *sql.DB, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		db:     database,
		key:    opts.Key,
		now:    opts.Now,
		logger: opts.Logger,
	}
}

// Key returns the kv key this store persists under.
func (s *Store) Key() string { return s.key }

// TxHook runs inside the transaction that persists a new record. Returning an
// error rolls the add back.
type TxHook func(tx *sql.Tx, rec *capture.Record) error

// Add builds a record from in, prepends it, and persists the whole sequence.
// The read-modify-write runs in one transaction, so concurrent adds never drop
// an entry. On failure the cache is left untouched and PERSISTENCE is returned.
func (s *Store) Add(ctx context.Context, in capture.Input) (*capture.Record, error) {
	return s.AddWith(ctx, in, nil)
}

// AddWith is Add with hook run in the same transaction, after the new
// sequence is written. The record and the hook's writes commit together.
func (s *Store) AddWith(ctx context.Context, in capture.Input, hook TxHook) (*capture.Record, error) {
	rec, err := capture.New(in, s.now())
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	var updated []capture.Record
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := load(ctx, tx, s.key)
		if err != nil {
			return err
		}
		updated = make([]capture.Record, 0, len(current)+1)
		updated = append(updated, *rec)
		updated = append(updated, current...)
		if err := save(ctx, tx, s.key, updated); err != nil {
			return err
		}
		if hook != nil {
			return hook(tx, rec)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("add capture")
		}
		if _, ok := errors.As(err); !ok {
			err = errors.NewPersistence("add capture", err)
		}
		return nil, err
	}

	s.setCache(updated)
	s.logger.Debug("snapshot add", "store", s.key, "id", rec.ID, "kind", rec.Kind, "count", len(updated))
	return rec, nil
}

// List reloads the sequence from storage (newest first). It never mutates.
func (s *Store) List(ctx context.Context) ([]capture.Record, error) {
	records, err := load(ctx, s.db, s.key)
	if err != nil {
		return nil, err
	}
	s.setCache(records)
	return records, nil
}

// Get returns the record with the given ID, or NOT_FOUND.
func (s *Store) Get(ctx context.Context, id string) (*capture.Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, errors.NewNotFound(id)
}

// Count reloads from storage and returns the number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	records, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// ExportFlat serializes the sequence. An empty store yields EMPTY_STORE and
// is left unchanged.
func (s *Store) ExportFlat(ctx context.Context, format Format) (*Export, error) {
	if format != FormatCSV {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unsupported export format %q", format))
	}

	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.NewEmptyStore(s.key)
	}

	ids := make([]string, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}
	return &Export{
		Data:     encodeCSV(records),
		IDs:      ids,
		Filename: s.Filename(format),
		Count:    len(records),
	}, nil
}

// Filename returns the suggested export file name: <key>-<YYYY-MM-DD>.<format>.
func (s *Store) Filename(format Format) string {
	return fmt.Sprintf("%s-%s.%s", s.key, s.now().UTC().Format("2006-01-02"), format)
}

// Clear removes the sequence from storage. Irreversible.
func (s *Store) Clear(ctx context.Context) error {
	if err := db.DeleteValue(ctx, s.db, s.key); err != nil {
		return err
	}
	s.setCache(nil)
	s.logger.Info("snapshot cleared", "store", s.key)
	return nil
}

// Remove deletes the records with the given IDs in one transaction and
// returns how many were removed. Records added after the IDs were read stay.
func (s *Store) Remove(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	var kept []capture.Record
	removed := 0
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := load(ctx, tx, s.key)
		if err != nil {
			return err
		}
		kept = make([]capture.Record, 0, len(current))
		removed = 0
		for _, r := range current {
			if _, ok := drop[r.ID]; ok {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			return db.DeleteValue(ctx, tx, s.key)
		}
		return save(ctx, tx, s.key, kept)
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, errors.NewCancelled("remove captures")
		}
		if _, ok := errors.As(err); !ok {
			err = errors.NewPersistence("remove captures", err)
		}
		return 0, err
	}

	s.setCache(kept)
	s.logger.Info("snapshot entries removed", "store", s.key, "removed", removed, "remaining", len(kept))
	return removed, nil
}

// Cached returns the last loaded or written sequence without touching storage.
func (s *Store) Cached() []capture.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capture.Record(nil), s.cache...)
}

func (s *Store) setCache(records []capture.Record) {
	s.mu.Lock()
	s.cache = append([]capture.Record(nil), records...)
	s.mu.Unlock()
}

func load(ctx context.Context, q db.Querier, key string) ([]capture.Record, error) {
	raw, ok, err := db.GetValue(ctx, q, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []capture.Record{}, nil
	}
	var records []capture.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, errors.NewPersistence("decode "+key, err)
	}
	if records == nil {
		records = []capture.Record{}
	}
	return records, nil
}

func save(ctx context.Context, q db.Querier, key string, records []capture.Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return errors.NewInternal(err)
	}
	return db.PutValue(ctx, q, key, string(data))
}
