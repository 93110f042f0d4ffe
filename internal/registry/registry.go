// internal/registry/registry.go
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tarlanisaev/poolbridge/internal/bridge"
	"github.com/tarlanisaev/poolbridge/internal/ledger"
)

// Status of a registry entry. Pending entries belong to an in-flight
// settlement; Completed entries are permanently consumed identities.
type Status uint8

const (
	StatusPending Status = iota
	StatusCompleted
)

// Entry records one observed message identity, and for completed entries a
// copy of the applied payload for audit.
type Entry struct {
	Identity   bridge.Identity
	Status     Status
	Payload    []byte
	ObservedAt time.Time
	AppliedAt  time.Time
}

// Persistence is the durable side of the registry. The in-memory index is
// authoritative within the process; persistence is written through so a
// restart does not reopen consumed identities.
type Persistence interface {
	SaveEntry(ctx context.Context, e *Entry) error
	DeleteEntry(ctx context.Context, id bridge.Identity) error
	LoadEntries(ctx context.Context) ([]*Entry, error)
	PruneCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Registry is the processed-message set with first-writer-wins claim
// semantics. Claim and Complete together make the replay check a
// compare-and-set: for a fixed identity at most one caller ever holds the
// pending claim, and once completed the identity can never be claimed again.
type Registry struct {
	mu      sync.Mutex
	entries map[bridge.Identity]*Entry
	store   Persistence // optional
	logger  *zap.Logger
}

// New creates a registry. store may be nil for purely in-memory operation.
func New(store Persistence, logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[bridge.Identity]*Entry),
		store:   store,
		logger:  logger.Named("registry"),
	}
}

// Load hydrates the in-memory index from persistence. Pending entries found
// on disk belonged to a request that died mid-flight without committing;
// they are dropped so the identity stays replayable.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	entries, err := r.store.LoadEntries(ctx)
	if err != nil {
		return fmt.Errorf("load registry entries: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	restored, dropped := 0, 0
	for _, e := range entries {
		if e.Status != StatusCompleted {
			dropped++
			continue
		}
		r.entries[e.Identity] = e
		restored++
	}
	r.logger.Info("Registry hydrated",
		zap.Int("completed", restored),
		zap.Int("dropped_pending", dropped))
	return nil
}

// Claim reserves an identity for the calling settlement attempt. Any other
// state of the identity (already completed, or pending under a concurrent
// attempt) observes ErrVaaAlreadyProcessed; exactly one concurrent caller
// wins.
func (r *Registry) Claim(ctx context.Context, id bridge.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.entries[id]; seen {
		return fmt.Errorf("message %s: %w", id, ledger.ErrVaaAlreadyProcessed)
	}
	r.entries[id] = &Entry{
		Identity:   id,
		Status:     StatusPending,
		ObservedAt: time.Now().UTC(),
	}
	return nil
}

// Complete marks a claimed identity as consumed. This is the point of no
// return: it must only be called after every mutation of the settlement has
// landed.
func (r *Registry) Complete(ctx context.Context, id bridge.Identity, payload []byte) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.Status != StatusPending {
		r.mu.Unlock()
		return fmt.Errorf("complete %s without a pending claim", id)
	}
	e.Status = StatusCompleted
	e.Payload = append([]byte(nil), payload...)
	e.AppliedAt = time.Now().UTC()
	snapshot := *e
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SaveEntry(ctx, &snapshot); err != nil {
			// The in-memory index already consumed the identity, which is
			// the safe direction: a lost write can only cause a spurious
			// rejection after restart, never a double apply in-process.
			r.logger.Error("Failed to persist registry entry",
				zap.String("message", id.String()), zap.Error(err))
			return fmt.Errorf("persist registry entry %s: %w", id, err)
		}
	}
	return nil
}

// Release returns a claimed identity to the unseen state after a failed
// settlement, so the message stays replayable rather than silently lost.
func (r *Registry) Release(ctx context.Context, id bridge.Identity) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok && e.Status == StatusPending {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.DeleteEntry(ctx, id); err != nil {
			r.logger.Warn("Failed to delete pending registry entry",
				zap.String("message", id.String()), zap.Error(err))
		}
	}
}

// Get returns a copy of the entry for an identity, if any.
func (r *Registry) Get(id bridge.Identity) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// PruneCompletedBefore drops completed entries applied before the cutoff.
// Replaying a pruned identity becomes possible again, so the cutoff must sit
// beyond the originating chain's finality window.
func (r *Registry) PruneCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	pruned := 0
	for id, e := range r.entries {
		if e.Status == StatusCompleted && e.AppliedAt.Before(cutoff) {
			delete(r.entries, id)
			pruned++
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		if _, err := r.store.PruneCompletedBefore(ctx, cutoff); err != nil {
			return pruned, fmt.Errorf("prune persisted entries: %w", err)
		}
	}
	if pruned > 0 {
		r.logger.Info("Pruned registry entries", zap.Int("count", pruned))
	}
	return pruned, nil
}
