package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/verdantworks/fieldsync/internal/sync"
)

// Dispatcher delivers one notification to the tenant's operators. Transport
// (push, email, webhook) is an external concern behind this interface.
type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID, message string) error
}

// LogDispatcher writes notifications to the structured log. It is the default
// when no external transport is configured.
type LogDispatcher struct {
	Logger *zap.Logger
}

// Dispatch logs the notification.
func (d *LogDispatcher) Dispatch(_ context.Context, tenantID, message string) error {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification dispatched",
		zap.String("tenant_id", tenantID),
		zap.String("message", message))
	return nil
}

// ConflictNotifier fans detected sync conflicts out to operators, bounded by
// the per-tenant throttle. Delivery is best-effort; failures and throttled
// drops are logged, never surfaced to the sync response.
type ConflictNotifier struct {
	throttle   *Throttle
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewConflictNotifier wires a throttle and dispatcher together.
func NewConflictNotifier(throttle *Throttle, dispatcher Dispatcher, logger *zap.Logger) *ConflictNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = &LogDispatcher{Logger: logger}
	}
	return &ConflictNotifier{
		throttle:   throttle,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// NotifyConflicts dispatches one notification per conflict while the tenant
// is within quota and counts the rest as dropped.
func (n *ConflictNotifier) NotifyConflicts(ctx context.Context, tenantID string, conflicts []sync.ConflictSummary) {
	if n == nil || len(conflicts) == 0 {
		return
	}

	dropped := 0
	for _, conflict := range conflicts {
		if n.throttle != nil && !n.throttle.Allow(tenantID) {
			dropped++
			continue
		}
		message := fmt.Sprintf("sync conflict on %s/%s: %s", conflict.Kind, conflict.EntityID, conflict.Summary)
		if err := n.dispatcher.Dispatch(ctx, tenantID, message); err != nil {
			n.logger.Warn("conflict notification failed",
				zap.String("tenant_id", tenantID),
				zap.String("kind", conflict.Kind),
				zap.String("entity_id", conflict.EntityID),
				zap.Error(err))
		}
	}

	if dropped > 0 {
		n.logger.Warn("conflict notifications throttled",
			zap.String("tenant_id", tenantID),
			zap.Int("dropped", dropped))
	}
}
