package tenant

import (
	"strings"
	"time"
)

// Membership binds a user to a tenant with a role. The auth middleware
// consults it so a valid token without an active membership is still rejected
// before the sync protocol runs.
type Membership struct {
	TenantID    string    `gorm:"column:tenant_id;primaryKey;size:190;not null"`
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Role        string    `gorm:"column:role;size:64;not null;default:'member'"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing tenant memberships.
func (Membership) TableName() string {
	return "tenant_memberships"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
