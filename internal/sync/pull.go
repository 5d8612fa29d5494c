package sync

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPageLimit is used when a pull request carries no limit.
	DefaultPageLimit = 500
	// MaxPageLimit is the hard cap on a single pull page.
	MaxPageLimit = 2000
)

// Pull returns the tenant's change stream after the cursor, merged across
// every registered entity kind and ordered by ascending updatedAt. Tombstones
// come back as delete changes so deletions propagate. Records sharing the
// boundary timestamp may be re-delivered on the next page; clients apply
// idempotently.
func (s *Service) Pull(ctx context.Context, tenant TenantID, since time.Time, limit int) (PullResult, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	sinceMs := toMillis(since)
	merged := make([]Change, 0, limit)
	pageFull := false

	for _, kind := range s.registry.Kinds() {
		cfg, ok := s.registry.Resolve(kind)
		if !ok {
			continue
		}

		var rows []map[string]any
		err := s.db.WithContext(ctx).
			Table(cfg.Table).
			Where("tenant_id = ? AND updated_at_ms > ?", tenant.String(), sinceMs).
			Order("updated_at_ms ASC").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			s.logError(opPull, "stream_query_failed", err,
				zap.String("tenant_id", tenant.String()),
				zap.String("kind", kind))
			return PullResult{}, newServiceError(opPull, "stream_query_failed", err)
		}

		if len(rows) == limit {
			pageFull = true
		}

		for _, row := range rows {
			change := Change{
				Kind:      kind,
				EntityID:  asString(row["entity_id"]),
				Timestamp: fromMillis(asMillis(row["updated_at_ms"])),
			}
			if row["deleted_at_ms"] != nil {
				change.Op = OperationTypeDelete
			} else {
				change.Op = OperationTypeUpsert
				payload := make(map[string]any, len(cfg.Fields))
				for _, field := range cfg.Fields {
					payload[field.APIName] = normalizeColumnValue(row[field.Column])
				}
				change.Payload = payload
			}
			merged = append(merged, change)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		}
		if merged[i].Kind != merged[j].Kind {
			return merged[i].Kind < merged[j].Kind
		}
		return merged[i].EntityID < merged[j].EntityID
	})

	if len(merged) > limit {
		merged = merged[:limit]
		pageFull = true
	}

	nextCursor := since
	if len(merged) > 0 {
		nextCursor = merged[len(merged)-1].Timestamp
		if pageFull {
			// A full page may have split records sharing the boundary
			// timestamp. Winding the cursor back one millisecond
			// re-delivers the boundary instead of skipping its
			// remainder; clients apply idempotently. If a tenant ever
			// accumulated more than MaxPageLimit records on a single
			// millisecond the rewound cursor could not pass it; each
			// write takes a locked row update, so a same-millisecond
			// run of that length does not occur.
			nextCursor = nextCursor.Add(-time.Millisecond)
			if nextCursor.Before(since) {
				nextCursor = since
			}
		}
	}

	return PullResult{
		ServerTime: s.clock().UTC(),
		Changes:    merged,
		NextCursor: nextCursor,
	}, nil
}

// asString normalizes the driver's representation of a text column.
func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// normalizeColumnValue converts driver byte slices into strings so payloads
// serialize as JSON text rather than base64.
func normalizeColumnValue(value any) any {
	if raw, ok := value.([]byte); ok {
		return string(raw)
	}
	return value
}
