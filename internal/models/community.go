package models

import (
	"time"

	"github.com/google/uuid"
)

type Community struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"unique;not null" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type MembershipRole string

const (
	RoleMember    MembershipRole = "member"
	RoleModerator MembershipRole = "moderator"
	RoleOwner     MembershipRole = "owner"
)

// CanModerate reports whether the role may remove other users' content.
func (r MembershipRole) CanModerate() bool {
	return r == RoleModerator || r == RoleOwner
}

type CommunityMembership struct {
	UserID      uuid.UUID      `gorm:"type:uuid;primaryKey" json:"user_id"`
	CommunityID uuid.UUID      `gorm:"type:uuid;primaryKey;index" json:"community_id"`
	Role        MembershipRole `gorm:"type:varchar(16);not null;default:member" json:"role"`
	JoinedAt    time.Time      `gorm:"autoCreateTime" json:"joined_at"`
}
