package models

import (
	"time"

	"github.com/google/uuid"
)

// VoteTargetType tags what a vote points at.
type VoteTargetType string

const (
	TargetPost    VoteTargetType = "post"
	TargetComment VoteTargetType = "comment"
)

func (t VoteTargetType) Valid() bool {
	return t == TargetPost || t == TargetComment
}

// VoteDirection is the stored direction of a vote. VoteNone is never
// persisted: no record means no vote.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
	VoteNone VoteDirection = ""
)

// Vote model - one row per (voter, target)
type Vote struct {
	VoterID    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"voter_id"`
	TargetID   uuid.UUID      `gorm:"type:uuid;primaryKey;index" json:"target_id"`
	TargetType VoteTargetType `gorm:"type:varchar(16);primaryKey" json:"target_type"`
	Direction  VoteDirection  `gorm:"type:varchar(8);not null" json:"direction"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Counters are the vote aggregates carried by every target.
// Score == Upvotes - Downvotes at all times.
type Counters struct {
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
	Score     int64 `json:"score"`
}
