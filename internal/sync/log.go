package sync

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultLogPageLimit = 200

// ListConflicts returns the tenant's conflict log after the given time,
// oldest first.
func (s *Service) ListConflicts(ctx context.Context, tenant TenantID, since time.Time, limit int) ([]ConflictRecord, error) {
	if limit <= 0 {
		limit = defaultLogPageLimit
	}

	var records []ConflictRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND created_at_ms > ?", tenant.String(), toMillis(since)).
		Order("created_at_ms ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		s.logError(opListConflicts, "query_failed", err, zap.String("tenant_id", tenant.String()))
		return nil, newServiceError(opListConflicts, "query_failed", err)
	}
	return records, nil
}

// ListAudit returns the tenant's audit trail after the given time, oldest
// first.
func (s *Service) ListAudit(ctx context.Context, tenant TenantID, since time.Time, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = defaultLogPageLimit
	}

	var records []AuditRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND created_at_ms > ?", tenant.String(), toMillis(since)).
		Order("created_at_ms ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		s.logError(opListAudit, "query_failed", err, zap.String("tenant_id", tenant.String()))
		return nil, newServiceError(opListAudit, "query_failed", err)
	}
	return records, nil
}

// PurgeTombstones hard-deletes tombstones older than the cutoff across every
// entity table. A client that has not pulled since the cutoff will miss those
// deletions, so the retention window must comfortably exceed the longest
// expected client offline period. Returns the number of rows removed.
func (s *Service) PurgeTombstones(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := toMillis(cutoff)
	var purged int64

	for _, kind := range s.registry.Kinds() {
		cfg, ok := s.registry.Resolve(kind)
		if !ok {
			continue
		}
		result := s.db.WithContext(ctx).
			Exec("DELETE FROM "+cfg.Table+" WHERE deleted_at_ms IS NOT NULL AND deleted_at_ms < ?", cutoffMs)
		if result.Error != nil {
			s.logError(opPurgeTombstones, "delete_failed", result.Error, zap.String("kind", kind))
			return purged, newServiceError(opPurgeTombstones, "delete_failed", result.Error)
		}
		purged += result.RowsAffected
	}

	if purged > 0 {
		s.loggerOrDefault().Info("tombstones purged",
			zap.Int64("rows", purged),
			zap.Time("cutoff", cutoff))
	}
	return purged, nil
}
