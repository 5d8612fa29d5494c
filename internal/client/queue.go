// Package client implements the device side of the sync protocol: the
// pending-change queue, the push/pull orchestrator, and the HTTP transport.
package client

import (
	"sort"
	"time"
)

// PendingChange is one local mutation not yet confirmed by the server.
type PendingChange struct {
	Op              string
	Kind            string
	EntityID        string
	ClientUpdatedAt time.Time
	Payload         map[string]any
}

// Queue holds pending changes in arrival order. It is not safe for
// unsynchronized concurrent mutation; the orchestrator is its single owner.
type Queue struct {
	entries []PendingChange
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends one local mutation.
func (q *Queue) Enqueue(change PendingChange) {
	q.entries = append(q.entries, change)
}

// Len returns the number of queued entries before coalescing.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Coalesce collapses the queue to at most one change per (kind, id) — the one
// with the latest ClientUpdatedAt, later arrival winning ties — and returns
// the survivors sorted ascending by timestamp. The queue itself is untouched;
// entries leave only via RemoveApplied.
func (q *Queue) Coalesce() []PendingChange {
	latest := make(map[string]PendingChange, len(q.entries))
	for _, entry := range q.entries {
		key := entry.Kind + "/" + entry.EntityID
		current, seen := latest[key]
		if !seen || !entry.ClientUpdatedAt.Before(current.ClientUpdatedAt) {
			latest[key] = entry
		}
	}

	coalesced := make([]PendingChange, 0, len(latest))
	for _, entry := range latest {
		coalesced = append(coalesced, entry)
	}
	sort.SliceStable(coalesced, func(i, j int) bool {
		if !coalesced[i].ClientUpdatedAt.Equal(coalesced[j].ClientUpdatedAt) {
			return coalesced[i].ClientUpdatedAt.Before(coalesced[j].ClientUpdatedAt)
		}
		if coalesced[i].Kind != coalesced[j].Kind {
			return coalesced[i].Kind < coalesced[j].Kind
		}
		return coalesced[i].EntityID < coalesced[j].EntityID
	})
	return coalesced
}

// RemoveApplied drops entries covered by a server confirmation: same kind and
// entity as a pushed change whose id the server reported applied, with a
// ClientUpdatedAt no newer than the pushed one. An edit enqueued while the
// push was in flight carries a newer timestamp and stays queued. Skipped or
// invalid changes stay queued and are resubmitted verbatim on the next cycle.
func (q *Queue) RemoveApplied(pushed []PendingChange, appliedIDs []string) {
	if len(appliedIDs) == 0 {
		return
	}
	applied := make(map[string]struct{}, len(appliedIDs))
	for _, id := range appliedIDs {
		applied[id] = struct{}{}
	}
	confirmed := make(map[string]time.Time, len(pushed))
	for _, entry := range pushed {
		if _, ok := applied[entry.EntityID]; ok {
			confirmed[entry.Kind+"/"+entry.EntityID] = entry.ClientUpdatedAt
		}
	}

	remaining := q.entries[:0]
	for _, entry := range q.entries {
		confirmedAt, ok := confirmed[entry.Kind+"/"+entry.EntityID]
		if ok && !entry.ClientUpdatedAt.After(confirmedAt) {
			continue
		}
		remaining = append(remaining, entry)
	}
	q.entries = remaining
}
