// Package remote delivers queued captures to the remote memory API.
package remote

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hpungsan/synapse/internal/capture"
	"github.com/hpungsan/synapse/internal/errors"
	"github.com/hpungsan/synapse/internal/queue"
)

// DefaultRequestTimeout bounds each remote write when none is configured.
const DefaultRequestTimeout = 15 * time.Second

// Authenticator supplies the bearer credential and caller identity.
// Token returns "" when no credential is available.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
	ResolveIdentity(ctx context.Context, token string) (string, error)
}

// Writer performs one remote write.
type Writer interface {
	SaveMemory(ctx context.Context, token string, req SaveRequest) error
}

// SyncFailure is a per-entry delivery failure.
type SyncFailure struct {
	QueueID int64  `json:"queue_id"`
	Reason  string `json:"reason"`
	Timeout bool   `json:"timeout,omitempty"`
}

// Summary reports the outcome of one sync pass.
type Summary struct {
	Succeeded []int64       `json:"succeeded"`
	Failed    []SyncFailure `json:"failed"`
}

// Options configures a Syncer.
type Options struct {
	RequestTimeout time.Duration // per entry; default DefaultRequestTimeout
	Now            func() time.Time
	Logger         *slog.Logger
}

// Syncer drains queue entries to a Writer. Passes are serialized, so two
// triggers never send the same entry concurrently.
type Syncer struct {
	auth   Authenticator
	writer Writer
	queue  *queue.Queue
	opts   Options

	mu sync.Mutex
}

// NewSyncer wires a Syncer to its collaborators.
func NewSyncer(auth Authenticator, writer Writer, q *queue.Queue, opts Options) *Syncer {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Syncer{auth: auth, writer: writer, queue: q, opts: opts}
}

// SyncDue runs a pass over the entries whose next attempt time has passed.
func (s *Syncer) SyncDue(ctx context.Context) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.queue.Due(ctx, s.opts.Now())
	if err != nil {
		return nil, err
	}
	return s.sync(ctx, batch)
}

// Sync attempts delivery of batch. A missing credential or unresolvable
// identity aborts before any network call and leaves the queue untouched.
// Otherwise every entry is attempted once: successes are acked immediately,
// failures are retained for a later pass.
func (s *Syncer) Sync(ctx context.Context, batch []queue.Entry) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync(ctx, batch)
}

func (s *Syncer) sync(ctx context.Context, batch []queue.Entry) (*Summary, error) {
	log := s.opts.Logger
	summary := &Summary{Succeeded: []int64{}, Failed: []SyncFailure{}}

	token, err := s.auth.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.NewNotAuthenticated()
	}
	userID, err := s.auth.ResolveIdentity(ctx, token)
	if err != nil || userID == "" {
		return nil, errors.NewIdentityResolution(err)
	}

	if len(batch) == 0 {
		return summary, nil
	}

	for i := range batch {
		if ctx.Err() != nil {
			log.Warn("sync pass cancelled", "remaining", len(batch)-i)
			return summary, errors.NewCancelled("sync")
		}

		entry := &batch[i]
		failure := s.deliver(ctx, token, userID, entry)
		if failure == nil {
			if err := s.queue.Ack(ctx, []int64{entry.QueueID}); err != nil {
				return summary, err
			}
			summary.Succeeded = append(summary.Succeeded, entry.QueueID)
			continue
		}
		if ctx.Err() != nil {
			// Caller went away mid-request; the entry stays pending untouched.
			return summary, errors.NewCancelled("sync")
		}

		log.Warn("sync entry failed", "queue_id", entry.QueueID, "reason", failure.Reason, "timeout", failure.Timeout)
		summary.Failed = append(summary.Failed, *failure)
		if err := s.queue.Retain(ctx, []queue.Failure{{QueueID: entry.QueueID, Reason: failure.Reason}}); err != nil {
			return summary, err
		}
	}

	log.Info("sync pass complete", "succeeded", len(summary.Succeeded), "failed", len(summary.Failed))
	return summary, nil
}

// deliver sends one entry under the per-request timeout.
func (s *Syncer) deliver(ctx context.Context, token, userID string, entry *queue.Entry) *SyncFailure {
	reqCtx, cancel := withTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	err := s.writer.SaveMemory(reqCtx, token, SaveRequest{
		IdempotencyKey: IdempotencyKey(entry.Record.ID),
		Payload:        capture.NewRemotePayload(&entry.Record, userID),
	})
	if err == nil {
		return nil
	}

	f := &SyncFailure{QueueID: entry.QueueID, Reason: err.Error()}
	if sErr, ok := errors.As(err); ok {
		f.Reason = sErr.Message
		f.Timeout = sErr.Code == errors.ErrNetworkTimeout
	}
	if !f.Timeout && reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		f.Timeout = true
	}
	return f
}
