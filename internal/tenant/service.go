package tenant

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrNoActiveMembership indicates the user has no active membership in the tenant.
var ErrNoActiveMembership = errors.New("tenant: no active membership")

// ServiceConfig describes the dependencies required for membership resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service resolves tenant memberships with a small in-process cache.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the membership service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("tenant: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// Resolve returns the active membership for the user in the tenant, touching
// last-seen as a side effect. ErrNoActiveMembership is returned when the pair
// is unknown or deactivated.
func (s *Service) Resolve(tenantID, userID string) (Membership, error) {
	tenantID = normalize(tenantID)
	userID = normalize(userID)
	if tenantID == "" || userID == "" {
		return Membership{}, ErrNoActiveMembership
	}

	cacheKey := tenantID + ":" + userID
	if cached, ok := s.cache.Load(cacheKey); ok {
		if membership, ok := cached.(Membership); ok && membership.Active {
			return membership, nil
		}
	}

	var membership Membership
	err := s.db.
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		First(&membership).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Membership{}, ErrNoActiveMembership
	}
	if err != nil {
		return Membership{}, err
	}
	if !membership.Active {
		return Membership{}, ErrNoActiveMembership
	}

	_ = s.db.Model(&Membership{}).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Update("last_seen_at", s.now()).
		Error

	s.cache.Store(cacheKey, membership)
	return membership, nil
}

// Enroll creates or reactivates a membership. Intended for provisioning and
// tests; the sync protocol itself never writes memberships.
func (s *Service) Enroll(membership Membership) error {
	membership.TenantID = normalize(membership.TenantID)
	membership.UserID = normalize(membership.UserID)
	if membership.TenantID == "" || membership.UserID == "" {
		return ErrNoActiveMembership
	}
	if membership.Role == "" {
		membership.Role = "member"
	}
	membership.Active = true

	var existing Membership
	err := s.db.
		Where("tenant_id = ? AND user_id = ?", membership.TenantID, membership.UserID).
		First(&existing).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.db.Create(&membership).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		updates := map[string]interface{}{
			"role":   membership.Role,
			"active": true,
		}
		if name := normalize(membership.DisplayName); name != "" {
			updates["display_name"] = name
		}
		if err := s.db.Model(&Membership{}).
			Where("tenant_id = ? AND user_id = ?", membership.TenantID, membership.UserID).
			Updates(updates).
			Error; err != nil {
			return err
		}
	}

	s.cache.Delete(membership.TenantID + ":" + membership.UserID)
	return nil
}
