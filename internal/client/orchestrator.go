package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RemoteChange is one server-side mutation returned by a pull.
type RemoteChange struct {
	Op        string         `json:"op"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entityId"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// RemoteConflict is one conflict the server detected and logged.
type RemoteConflict struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entityId"`
	Summary  string `json:"summary"`
}

// PushResponse is the server's answer to a push batch.
type PushResponse struct {
	ServerTime time.Time
	Applied    []string
	Conflicts  []RemoteConflict
}

// PullResponse is one page of the server's change stream.
type PullResponse struct {
	ServerTime time.Time
	Changes    []RemoteChange
	NextCursor time.Time
}

// Transport carries push and pull requests to the server.
type Transport interface {
	Push(ctx context.Context, changes []PendingChange) (PushResponse, error)
	Pull(ctx context.Context, since time.Time, limit int) (PullResponse, error)
}

// LocalStore applies pulled changes to on-device storage. Apply must be
// idempotent: boundary records can be re-delivered across pages.
type LocalStore interface {
	Apply(change RemoteChange) error
}

var (
	errMissingTransport  = errors.New("client: transport is required")
	errMissingLocalStore = errors.New("client: local store is required")
)

// OrchestratorConfig describes the orchestrator's collaborators.
type OrchestratorConfig struct {
	Transport Transport
	Store     LocalStore
	PageLimit int
	Logger    *zap.Logger
}

// Orchestrator drives the push→pull cycle. It owns the queue and the cursor;
// local mutations and sync triggers all serialize through its lock. A Sync
// trigger while a cycle is in flight is coalesced into a no-op.
type Orchestrator struct {
	transport Transport
	store     LocalStore
	pageLimit int
	logger    *zap.Logger

	mu      sync.Mutex
	queue   *Queue
	cursor  time.Time
	syncing bool
}

// NewOrchestrator constructs an idle orchestrator with an epoch cursor.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Transport == nil {
		return nil, errMissingTransport
	}
	if cfg.Store == nil {
		return nil, errMissingLocalStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		transport: cfg.Transport,
		store:     cfg.Store,
		pageLimit: cfg.PageLimit,
		logger:    logger,
		queue:     NewQueue(),
		cursor:    time.Unix(0, 0).UTC(),
	}, nil
}

// Enqueue records a local mutation for the next sync cycle.
func (o *Orchestrator) Enqueue(change PendingChange) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue.Enqueue(change)
}

// Pending returns the number of unconfirmed local changes.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Len()
}

// Cursor returns the last successfully applied pull checkpoint.
func (o *Orchestrator) Cursor() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cursor
}

// RestoreCursor seeds the cursor from persisted state at startup.
func (o *Orchestrator) RestoreCursor(cursor time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cursor = cursor.UTC()
}

// Sync runs one push→pull cycle. On push failure the queue is untouched; on
// a local apply failure the cursor stops strictly before the failing change
// so it is re-delivered. Returns nil immediately when a cycle is already in
// flight.
func (o *Orchestrator) Sync(ctx context.Context) error {
	o.mu.Lock()
	if o.syncing {
		o.mu.Unlock()
		o.logger.Debug("sync already in flight, skipping trigger")
		return nil
	}
	o.syncing = true
	outbound := o.queue.Coalesce()
	cursor := o.cursor
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.syncing = false
		o.mu.Unlock()
	}()

	if len(outbound) > 0 {
		pushResponse, err := o.transport.Push(ctx, outbound)
		if err != nil {
			return fmt.Errorf("client: push failed: %w", err)
		}
		o.mu.Lock()
		o.queue.RemoveApplied(outbound, pushResponse.Applied)
		o.mu.Unlock()
		o.logger.Debug("push completed",
			zap.Int("sent", len(outbound)),
			zap.Int("applied", len(pushResponse.Applied)),
			zap.Int("conflicts", len(pushResponse.Conflicts)))
	}

	pullResponse, err := o.transport.Pull(ctx, cursor, o.pageLimit)
	if err != nil {
		return fmt.Errorf("client: pull failed: %w", err)
	}

	for _, change := range pullResponse.Changes {
		if err := o.store.Apply(change); err != nil {
			// Stop here: later changes must not be applied out of
			// order, and the cursor must stay strictly before the
			// failing item. An already applied change can share the
			// failing item's timestamp, so rewind below it rather
			// than landing on it; pulls are strict > and apply is
			// idempotent, so re-delivery is safe.
			resume := change.UpdatedAt.Add(-time.Millisecond)
			if resume.Before(cursor) {
				resume = cursor
			}
			o.advanceCursor(resume)
			return fmt.Errorf("client: apply %s/%s failed: %w", change.Entity, change.EntityID, err)
		}
	}

	o.advanceCursor(pullResponse.NextCursor)
	o.logger.Debug("pull completed",
		zap.Int("changes", len(pullResponse.Changes)),
		zap.Time("cursor", pullResponse.NextCursor))
	return nil
}

func (o *Orchestrator) advanceCursor(cursor time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cursor.After(o.cursor) {
		o.cursor = cursor.UTC()
	}
}
