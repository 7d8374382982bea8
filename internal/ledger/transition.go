package ledger

import (
	"strings"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

// Target identifies a votable record.
type Target struct {
	Type models.VoteTargetType `json:"target_type"`
	ID   uuid.UUID             `json:"target_id"`
}

func PostTarget(id uuid.UUID) Target {
	return Target{Type: models.TargetPost, ID: id}
}

func CommentTarget(id uuid.UUID) Target {
	return Target{Type: models.TargetComment, ID: id}
}

// ParseTarget validates a target type name.
func ParseTarget(targetType string, id uuid.UUID) (Target, error) {
	t := models.VoteTargetType(strings.ToLower(targetType))
	if !t.Valid() {
		return Target{}, apperr.Validation(apperr.CodeInvalidTargetType, "target type must be post or comment")
	}
	return Target{Type: t, ID: id}, nil
}

// ParseDirection maps a requested direction to the stored one. "remove"
// becomes models.VoteNone.
func ParseDirection(direction string) (models.VoteDirection, error) {
	switch strings.ToLower(direction) {
	case "up":
		return models.VoteUp, nil
	case "down":
		return models.VoteDown, nil
	case "remove":
		return models.VoteNone, nil
	}
	return models.VoteNone, apperr.Validation(apperr.CodeInvalidVoteType, "vote direction must be up, down or remove")
}

// Delta is the change a transition applies to a target's counters.
type Delta struct {
	Up   int64 `json:"upvote_change"`
	Down int64 `json:"downvote_change"`
}

func (d Delta) Score() int64 {
	return d.Up - d.Down
}

func (d Delta) IsZero() bool {
	return d.Up == 0 && d.Down == 0
}

// Apply returns counters with the delta added.
func (d Delta) Apply(c models.Counters) models.Counters {
	return models.Counters{
		Upvotes:   c.Upvotes + d.Up,
		Downvotes: c.Downvotes + d.Down,
		Score:     c.Score + d.Score(),
	}
}

// Transition returns the counter delta for moving a voter from prev to
// requested. Same-direction requests (including none -> none) are no-ops.
func Transition(prev, requested models.VoteDirection) Delta {
	var d Delta
	if prev == requested {
		return d
	}

	switch prev {
	case models.VoteUp:
		d.Up--
	case models.VoteDown:
		d.Down--
	}

	switch requested {
	case models.VoteUp:
		d.Up++
	case models.VoteDown:
		d.Down++
	}

	return d
}
