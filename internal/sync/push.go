package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/verdantworks/fieldsync/internal/registry"
)

const conflictSummaryText = "server updated after client timestamp; client overwrite applied"

// ResolveActor derives the audit actor identity: display name first, then the
// stable user id, then "system".
func ResolveActor(displayName, userID string) string {
	if trimmed := strings.TrimSpace(displayName); trimmed != "" {
		return trimmed
	}
	if trimmed := strings.TrimSpace(userID); trimmed != "" {
		return trimmed
	}
	return "system"
}

// Push applies a batch of client changes for one tenant. Malformed or invalid
// changes are skipped without failing the batch; conflicts are logged and the
// client change is applied anyway. The whole batch commits in one transaction,
// so an infrastructure failure leaves no partial writes behind.
func (s *Service) Push(ctx context.Context, tenant TenantID, actor string, changes []Change) (PushResult, error) {
	if actor == "" {
		actor = "system"
	}

	result := PushResult{
		ServerTime: s.clock().UTC(),
		Applied:    make([]string, 0, len(changes)),
		Conflicts:  make([]ConflictSummary, 0),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, change := range changes {
			cfg, ok := s.acceptForApply(tenant, change)
			if !ok {
				continue
			}

			existing, found, err := s.lockRow(tx, cfg, tenant, change.EntityID)
			if err != nil {
				return err
			}

			appliedAt := s.clock().UTC()
			nowMs := toMillis(appliedAt)

			if found && asMillis(existing["updated_at_ms"]) > toMillis(change.Timestamp) {
				if err := s.recordConflict(tx, tenant, cfg, change, existing); err != nil {
					return err
				}
				result.Conflicts = append(result.Conflicts, ConflictSummary{
					Kind:     change.Kind,
					EntityID: change.EntityID,
					Summary:  conflictSummaryText,
				})
			}

			switch change.Op {
			case OperationTypeDelete:
				if err := s.applyDelete(tx, cfg, tenant, change.EntityID, found, nowMs); err != nil {
					return err
				}
				if err := s.recordAudit(tx, tenant, change, AuditActionDeleted, actor, nowMs); err != nil {
					return err
				}
			case OperationTypeUpsert:
				if !s.registry.Validate(change.Kind, change.Payload) {
					s.loggerOrDefault().Debug("skipping invalid upsert",
						zap.String("tenant_id", tenant.String()),
						zap.String("kind", change.Kind),
						zap.String("entity_id", change.EntityID))
					continue
				}
				if err := s.applyUpsert(tx, cfg, tenant, change, found, nowMs); err != nil {
					return err
				}
				if err := s.recordAudit(tx, tenant, change, AuditActionUpserted, actor, nowMs); err != nil {
					return err
				}
			default:
				continue
			}

			result.Applied = append(result.Applied, change.EntityID)
		}
		return nil
	})

	if txErr != nil {
		return PushResult{}, txErr
	}
	return result, nil
}

// acceptForApply filters out changes the protocol skips: missing op, kind, id
// or timestamp, and kinds unknown to the registry.
func (s *Service) acceptForApply(tenant TenantID, change Change) (registry.EntityConfig, bool) {
	if change.Op != OperationTypeUpsert && change.Op != OperationTypeDelete {
		return registry.EntityConfig{}, false
	}
	if strings.TrimSpace(change.EntityID) == "" || change.Timestamp.IsZero() {
		return registry.EntityConfig{}, false
	}
	cfg, ok := s.registry.Resolve(change.Kind)
	if !ok {
		s.loggerOrDefault().Debug("skipping unknown entity kind",
			zap.String("tenant_id", tenant.String()),
			zap.String("kind", change.Kind))
		return registry.EntityConfig{}, false
	}
	return cfg, true
}

// lockRow reads the stored row for (tenant, entity) under a row lock so that
// the conflict check and the write are not interleaved by a concurrent push
// for the same entity.
func (s *Service) lockRow(tx *gorm.DB, cfg registry.EntityConfig, tenant TenantID, entityID string) (map[string]any, bool, error) {
	row := map[string]any{}
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Table(cfg.Table).
		Where("tenant_id = ? AND entity_id = ?", tenant.String(), entityID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		s.logError(opPush, "row_select_failed", err,
			zap.String("tenant_id", tenant.String()),
			zap.String("kind", cfg.Kind),
			zap.String("entity_id", entityID))
		return nil, false, newServiceError(opPush, "row_select_failed", err)
	}
	return row, true, nil
}

func (s *Service) applyDelete(tx *gorm.DB, cfg registry.EntityConfig, tenant TenantID, entityID string, found bool, nowMs int64) error {
	if found {
		updates := map[string]any{
			"updated_at_ms": nowMs,
			"deleted_at_ms": nowMs,
		}
		err := tx.Table(cfg.Table).
			Where("tenant_id = ? AND entity_id = ?", tenant.String(), entityID).
			Updates(updates).Error
		if err != nil {
			s.logError(opPush, "tombstone_update_failed", err,
				zap.String("tenant_id", tenant.String()),
				zap.String("kind", cfg.Kind),
				zap.String("entity_id", entityID))
			return newServiceError(opPush, "tombstone_update_failed", err)
		}
		return nil
	}

	// A delete for a never-seen entity still leaves a tombstone so the
	// deletion propagates to other devices.
	row := map[string]any{
		"tenant_id":     tenant.String(),
		"entity_id":     entityID,
		"updated_at_ms": nowMs,
		"deleted_at_ms": nowMs,
	}
	if err := tx.Table(cfg.Table).Create(row).Error; err != nil {
		s.logError(opPush, "tombstone_insert_failed", err,
			zap.String("tenant_id", tenant.String()),
			zap.String("kind", cfg.Kind),
			zap.String("entity_id", entityID))
		return newServiceError(opPush, "tombstone_insert_failed", err)
	}
	return nil
}

func (s *Service) applyUpsert(tx *gorm.DB, cfg registry.EntityConfig, tenant TenantID, change Change, found bool, nowMs int64) error {
	// Full-record replacement over the declared field set: absent payload
	// fields are written as NULL, and any tombstone marker is cleared.
	values := make(map[string]any, len(cfg.Fields)+2)
	for _, field := range cfg.Fields {
		values[field.Column] = change.Payload[field.APIName]
	}
	values["updated_at_ms"] = nowMs
	values["deleted_at_ms"] = nil

	if found {
		err := tx.Table(cfg.Table).
			Where("tenant_id = ? AND entity_id = ?", tenant.String(), change.EntityID).
			Updates(values).Error
		if err != nil {
			s.logError(opPush, "row_update_failed", err,
				zap.String("tenant_id", tenant.String()),
				zap.String("kind", cfg.Kind),
				zap.String("entity_id", change.EntityID))
			return newServiceError(opPush, "row_update_failed", err)
		}
		return nil
	}

	values["tenant_id"] = tenant.String()
	values["entity_id"] = change.EntityID
	if err := tx.Table(cfg.Table).Create(values).Error; err != nil {
		s.logError(opPush, "row_insert_failed", err,
			zap.String("tenant_id", tenant.String()),
			zap.String("kind", cfg.Kind),
			zap.String("entity_id", change.EntityID))
		return newServiceError(opPush, "row_insert_failed", err)
	}
	return nil
}

func (s *Service) recordConflict(tx *gorm.DB, tenant TenantID, cfg registry.EntityConfig, change Change, existing map[string]any) error {
	conflictID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opPush, "id_generation_failed", err)
		return newServiceError(opPush, "id_generation_failed", err)
	}

	record := ConflictRecord{
		ConflictID:  conflictID,
		TenantID:    tenant.String(),
		Kind:        change.Kind,
		EntityID:    change.EntityID,
		Summary:     conflictSummaryText,
		FieldsJSON:  affectedFieldsJSON(cfg, change, existing),
		CreatedAtMs: toMillis(s.clock().UTC()),
	}
	if err := tx.Create(&record).Error; err != nil {
		s.logError(opPush, "conflict_insert_failed", err,
			zap.String("tenant_id", tenant.String()),
			zap.String("kind", change.Kind),
			zap.String("entity_id", change.EntityID))
		return newServiceError(opPush, "conflict_insert_failed", err)
	}
	return nil
}

func (s *Service) recordAudit(tx *gorm.DB, tenant TenantID, change Change, action AuditAction, actor string, nowMs int64) error {
	auditID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opPush, "id_generation_failed", err)
		return newServiceError(opPush, "id_generation_failed", err)
	}

	record := AuditRecord{
		AuditID:     auditID,
		TenantID:    tenant.String(),
		Kind:        change.Kind,
		EntityID:    change.EntityID,
		Action:      action,
		Actor:       actor,
		Summary:     fmt.Sprintf("%s %s %s/%s", actor, action, change.Kind, change.EntityID),
		CreatedAtMs: nowMs,
	}
	if err := tx.Create(&record).Error; err != nil {
		s.logError(opPush, "audit_insert_failed", err,
			zap.String("tenant_id", tenant.String()),
			zap.String("kind", change.Kind),
			zap.String("entity_id", change.EntityID))
		return newServiceError(opPush, "audit_insert_failed", err)
	}
	return nil
}

// affectedFieldsJSON computes the best-effort list of fields whose stored
// value differs from the incoming payload. Empty for deletes.
func affectedFieldsJSON(cfg registry.EntityConfig, change Change, existing map[string]any) string {
	if change.Op != OperationTypeUpsert {
		return ""
	}
	affected := make([]string, 0, len(cfg.Fields))
	for _, field := range cfg.Fields {
		if !valuesEqual(existing[field.Column], change.Payload[field.APIName]) {
			affected = append(affected, field.APIName)
		}
	}
	if len(affected) == 0 {
		return ""
	}
	encoded, err := json.Marshal(affected)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// valuesEqual compares a stored column value against an incoming payload
// value across driver type differences (int64 vs float64, []byte vs string).
func valuesEqual(stored, incoming any) bool {
	if stored == nil && incoming == nil {
		return true
	}
	if stored == nil || incoming == nil {
		return false
	}
	if raw, ok := stored.([]byte); ok {
		stored = string(raw)
	}
	return fmt.Sprint(stored) == fmt.Sprint(incoming)
}

// asMillis normalizes the driver's representation of a millisecond column.
func asMillis(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
