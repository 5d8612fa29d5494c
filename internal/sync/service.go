package sync

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/verdantworks/fieldsync/internal/registry"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingRegistry   = errors.New("entity registry is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps a failure with a stable operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable operation.reason identifier.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "sync.service.new"
	opPush            = "sync.push"
	opPull            = "sync.pull"
	opListConflicts   = "sync.list_conflicts"
	opListAudit       = "sync.list_audit"
	opPurgeTombstones = "sync.purge_tombstones"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for conflict and audit records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the sync engine.
type ServiceConfig struct {
	Database   *gorm.DB
	Registry   *registry.Registry
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements the server side of the push/pull protocol.
type Service struct {
	db         *gorm.DB
	registry   *registry.Registry
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates dependencies and constructs the sync engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Registry == nil {
		return nil, newServiceError(opServiceNew, "missing_registry", errMissingRegistry)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		registry:   cfg.Registry,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("sync service error", attrs...)
}
