package sync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OperationType enumerates supported client operations.
type OperationType string

const (
	// OperationTypeUpsert represents a full-record insert or update.
	OperationTypeUpsert OperationType = "upsert"
	// OperationTypeDelete marks an entity as a tombstone.
	OperationTypeDelete OperationType = "delete"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidTenantID indicates that a tenant identifier is empty or exceeds storage bounds.
	ErrInvalidTenantID = errors.New("sync: invalid tenant id")
	// ErrInvalidEntityID indicates that an entity identifier is empty or exceeds storage bounds.
	ErrInvalidEntityID = errors.New("sync: invalid entity id")
	// ErrUnknownOperation indicates an operation string outside upsert/delete.
	ErrUnknownOperation = errors.New("sync: unknown operation")
)

// TenantID represents a validated tenant identifier.
type TenantID string

// NewTenantID validates raw input and returns a TenantID.
func NewTenantID(rawInput string) (TenantID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTenantID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTenantID, maxIdentifierLength)
	}
	return TenantID(trimmed), nil
}

// String returns the underlying string identifier.
func (id TenantID) String() string {
	return string(id)
}

// ParseOperation normalizes a raw operation string. Unknown values return an
// error so callers can skip the change without failing the batch.
func ParseOperation(value string) (OperationType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(OperationTypeUpsert):
		return OperationTypeUpsert, nil
	case string(OperationTypeDelete):
		return OperationTypeDelete, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, value)
	}
}

// Change is one client mutation inside a push batch, or one server mutation
// inside a pull page. Timestamp carries clientUpdatedAt on push and the
// server-assigned updatedAt on pull.
type Change struct {
	Op        OperationType
	Kind      string
	EntityID  string
	Timestamp time.Time
	Payload   map[string]any
}

// ConflictSummary is the per-entity conflict report returned by Push.
type ConflictSummary struct {
	Kind     string
	EntityID string
	Summary  string
}

// PushResult reports the outcome of one push batch.
type PushResult struct {
	ServerTime time.Time
	Applied    []string
	Conflicts  []ConflictSummary
}

// PullResult is one page of the tenant's change stream.
type PullResult struct {
	ServerTime time.Time
	Changes    []Change
	NextCursor time.Time
}

// ConflictRecord is the append-only log entry for a detected conflict.
type ConflictRecord struct {
	ConflictID  string `gorm:"column:conflict_id;primaryKey;size:190;not null"`
	TenantID    string `gorm:"column:tenant_id;size:190;not null;index:idx_conflicts_tenant_time,priority:1"`
	Kind        string `gorm:"column:kind;size:64;not null"`
	EntityID    string `gorm:"column:entity_id;size:190;not null"`
	Summary     string `gorm:"column:summary;type:text;not null"`
	FieldsJSON  string `gorm:"column:fields_json;type:text;not null;default:''"`
	CreatedAtMs int64  `gorm:"column:created_at_ms;not null;index:idx_conflicts_tenant_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (ConflictRecord) TableName() string {
	return "sync_conflicts"
}

// AuditAction enumerates the actions recorded for accepted changes.
type AuditAction string

const (
	// AuditActionUpserted records an accepted upsert.
	AuditActionUpserted AuditAction = "upserted"
	// AuditActionDeleted records an accepted delete.
	AuditActionDeleted AuditAction = "deleted"
)

// AuditRecord is the append-only log entry for every accepted change.
type AuditRecord struct {
	AuditID     string      `gorm:"column:audit_id;primaryKey;size:190;not null"`
	TenantID    string      `gorm:"column:tenant_id;size:190;not null;index:idx_audit_tenant_time,priority:1"`
	Kind        string      `gorm:"column:kind;size:64;not null"`
	EntityID    string      `gorm:"column:entity_id;size:190;not null"`
	Action      AuditAction `gorm:"column:action;size:16;not null"`
	Actor       string      `gorm:"column:actor;size:320;not null"`
	Summary     string      `gorm:"column:summary;type:text;not null"`
	CreatedAtMs int64       `gorm:"column:created_at_ms;not null;index:idx_audit_tenant_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (AuditRecord) TableName() string {
	return "sync_audit"
}

func toMillis(value time.Time) int64 {
	return value.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
