package sync

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/verdantworks/fieldsync/internal/registry"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

type sequenceIDGenerator struct {
	counter int64
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	next := atomic.AddInt64(&g.counter, 1)
	return fmt.Sprintf("generated-%d", next), nil
}

// steppingClock hands out strictly increasing timestamps so successive writes
// land on distinct updated_at values.
type steppingClock struct {
	current time.Time
	step    time.Duration
}

func newSteppingClock(start time.Time, step time.Duration) *steppingClock {
	return &steppingClock{current: start, step: step}
}

func (c *steppingClock) Now() time.Time {
	c.current = c.current.Add(c.step)
	return c.current
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	models := EntityModels()
	models = append(models, &ConflictRecord{}, &AuditRecord{})
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, clock func() time.Time, idProvider IDProvider) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDatabase(t)
	if idProvider == nil {
		idProvider = &sequenceIDGenerator{}
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Registry:   registry.New(),
		Clock:      clock,
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func mustTenantID(t *testing.T, value string) TenantID {
	t.Helper()
	id, err := NewTenantID(value)
	if err != nil {
		t.Fatalf("unexpected tenant id error: %v", err)
	}
	return id
}

func upsertChange(kind, entityID string, at time.Time, payload map[string]any) Change {
	return Change{
		Op:        OperationTypeUpsert,
		Kind:      kind,
		EntityID:  entityID,
		Timestamp: at,
		Payload:   payload,
	}
}

func deleteChange(kind, entityID string, at time.Time) Change {
	return Change{
		Op:        OperationTypeDelete,
		Kind:      kind,
		EntityID:  entityID,
		Timestamp: at,
	}
}
