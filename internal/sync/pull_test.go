package sync

import (
	"context"
	"testing"
	"time"
)

func TestPullReturnsUpsertWithMappedPayload(t *testing.T) {
	clock := newSteppingClock(testBase, time.Second)
	service, _ := newTestService(t, clock.Now, nil)
	tenantID := mustTenantID(t, "tenant-a")

	if _, err := service.Push(context.Background(), tenantID, "Dana", []Change{
		upsertChange("client", "c1", testBase, map[string]any{"name": "Acme"}),
	}); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	result, err := service.Pull(context.Background(), tenantID, time.Unix(0, 0), 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(result.Changes) != 1 {
		t.Fatalf("expected one change, got %d", len(result.Changes))
	}

	change := result.Changes[0]
	if change.Op != OperationTypeUpsert {
		t.Fatalf("expected upsert, got %s", change.Op)
	}
	if change.Kind != "client" || change.EntityID != "c1" {
		t.Fatalf("unexpected change identity: %s/%s", change.Kind, change.EntityID)
	}
	if change.Payload["name"] != "Acme" {
		t.Fatalf("expected mapped payload name, got %v", change.Payload["name"])
	}
	// Declared fields absent from the upsert come back as explicit nulls.
	if value, present := change.Payload["phone"]; !present || value != nil {
		t.Fatalf("expected phone to be present and null, got %v (present=%v)", value, present)
	}
	if change.Timestamp.IsZero() {
		t.Fatalf("expected server-assigned timestamp")
	}
	if !result.NextCursor.Equal(change.Timestamp) {
		t.Fatalf("cursor must land on the last item, got %v vs %v", result.NextCursor, change.Timestamp)
	}
}

func TestPullTombstonePropagation(t *testing.T) {
	clock := newSteppingClock(testBase, time.Second)
	service, _ := newTestService(t, clock.Now, nil)
	tenantID := mustTenantID(t, "tenant-a")

	if _, err := service.Push(context.Background(), tenantID, "Dana", []Change{
		upsertChange("client", "c1", testBase, map[string]any{"name": "Acme"}),
	}); err != nil {
		t.Fatalf("upsert push failed: %v", err)
	}

	beforeDelete, err := service.Pull(context.Background(), tenantID, time.Unix(0, 0), 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	if _, err := service.Push(context.Background(), tenantID, "Dana", []Change{
		deleteChange("client", "c1", testBase.Add(time.Minute)),
	}); err != nil {
		t.Fatalf("delete push failed: %v", err)
	}

	// A cursor from before the delete must observe the tombstone.
	afterUpsert, err := service.Pull(context.Background(), tenantID, beforeDelete.NextCursor, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(afterUpsert.Changes) != 1 {
		t.Fatalf("expected the delete change, got %d changes", len(afterUpsert.Changes))
	}
	if afterUpsert.Changes[0].Op != OperationTypeDelete {
		t.Fatalf("expected delete op, got %s", afterUpsert.Changes[0].Op)
	}
	if afterUpsert.Changes[0].Payload != nil {
		t.Fatalf("delete changes carry no payload")
	}

	// A cursor from after the delete must not see the entity in any form.
	afterDelete, err := service.Pull(context.Background(), tenantID, afterUpsert.NextCursor, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(afterDelete.Changes) != 0 {
		t.Fatalf("expected empty stream, got %v", afterDelete.Changes)
	}
	if !afterDelete.NextCursor.Equal(afterUpsert.NextCursor) {
		t.Fatalf("empty pull must keep the cursor, got %v", afterDelete.NextCursor)
	}
}

func TestPullMergesKindsInTimestampOrder(t *testing.T) {
	clock := newSteppingClock(testBase, time.Second)
	service, _ := newTestService(t, clock.Now, nil)
	tenantID := mustTenantID(t, "tenant-a")

	pushes := []Change{
		upsertChange("task", "t1", testBase, map[string]any{"title": "Visit", "clientId": "c1"}),
		upsertChange("client", "c1", testBase, map[string]any{"name": "Acme"}),
		upsertChange("employee", "e1", testBase, map[string]any{"name": "Dana"}),
	}
	for _, change := range pushes {
		if _, err := service.Push(context.Background(), tenantID, "Dana", []Change{change}); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}

	result, err := service.Pull(context.Background(), tenantID, time.Unix(0, 0), 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(result.Changes) != 3 {
		t.Fatalf("expected three changes, got %d", len(result.Changes))
	}
	for i := 1; i < len(result.Changes); i++ {
		if result.Changes[i].Timestamp.Before(result.Changes[i-1].Timestamp) {
			t.Fatalf("stream must be ordered by updatedAt: %v then %v",
				result.Changes[i-1].Timestamp, result.Changes[i].Timestamp)
		}
	}
	// Separate pushes with a stepping clock produce the push order.
	wantKinds := []string{"task", "client", "employee"}
	for i, change := range result.Changes {
		if change.Kind != wantKinds[i] {
			t.Fatalf("position %d: expected %s, got %s", i, wantKinds[i], change.Kind)
		}
	}
}

func TestPullCursorCoversEveryChange(t *testing.T) {
	clock := newSteppingClock(testBase, time.Second)
	service, _ := newTestService(t, clock.Now, nil)
	tenantID := mustTenantID(t, "tenant-a")

	entityIDs := []string{"c1", "c2", "c3", "c4", "c5"}
	for _, id := range entityIDs {
		if _, err := service.Push(context.Background(), tenantID, "Dana", []Change{
			upsertChange("client", id, testBase, map[string]any{"name": "Client " + id}),
		}); err != nil {
			t.Fatalf("push %s failed: %v", id, err)
		}
	}

	seen := map[string]struct{}{}
	cursor := time.Unix(0, 0).UTC()
	for i := 0; i < 10; i++ {
		result, err := service.Pull(context.Background(), tenantID, cursor, 2)
		if err != nil {
			t.Fatalf("pull failed: %v", err)
		}
		for _, change := range result.Changes {
			seen[change.EntityID] = struct{}{}
		}
		if result.NextCursor.Before(cursor) {
			t.Fatalf("cursor must be monotonic: %v then %v", cursor, result.NextCursor)
		}
		if len(result.Changes) == 0 {
			break
		}
		cursor = result.NextCursor
	}

	if len(seen) != len(entityIDs) {
		t.Fatalf("paged pulls must cover every change, saw %d of %d", len(seen), len(entityIDs))
	}
}

func TestPullRedeliversSplitBoundaryTimestamps(t *testing.T) {
	// A fixed clock lands a whole batch on one updated_at value.
	service, _ := newTestService(t, fixedClock(testBase), nil)
	tenantID := mustTenantID(t, "tenant-a")

	if _, err := service.Push(context.Background(), tenantID, "Dana", []Change{
		upsertChange("client", "c1", testBase, map[string]any{"name": "One"}),
		upsertChange("client", "c2", testBase, map[string]any{"name": "Two"}),
		upsertChange("client", "c3", testBase, map[string]any{"name": "Three"}),
	}); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	first, err := service.Pull(context.Background(), tenantID, time.Unix(0, 0), 2)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(first.Changes) != 2 {
		t.Fatalf("expected a full page of 2, got %d", len(first.Changes))
	}

	second, err := service.Pull(context.Background(), tenantID, first.NextCursor, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	seen := map[string]struct{}{}
	for _, change := range append(first.Changes, second.Changes...) {
		seen[change.EntityID] = struct{}{}
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if _, ok := seen[id]; !ok {
			t.Fatalf("boundary split skipped %s", id)
		}
	}
}

func TestPullCapsPageLimit(t *testing.T) {
	clock := newSteppingClock(testBase, time.Second)
	service, _ := newTestService(t, clock.Now, nil)
	tenantID := mustTenantID(t, "tenant-a")

	if _, err := service.Push(context.Background(), tenantID, "Dana", []Change{
		upsertChange("client", "c1", testBase, map[string]any{"name": "Acme"}),
	}); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	// Out-of-range limits fall back to the documented bounds rather than
	// erroring; a single stored change satisfies both.
	if _, err := service.Pull(context.Background(), tenantID, time.Unix(0, 0), -5); err != nil {
		t.Fatalf("default limit pull failed: %v", err)
	}
	if _, err := service.Pull(context.Background(), tenantID, time.Unix(0, 0), MaxPageLimit*10); err != nil {
		t.Fatalf("capped limit pull failed: %v", err)
	}
}
