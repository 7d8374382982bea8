package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

// ErrVersionConflict is returned by Store.CommitVote when the target's
// version no longer matches the one the transition was computed from.
var ErrVersionConflict = errors.New("target version changed")

// State is what the ledger reads before computing a transition.
type State struct {
	Counters models.Counters
	Version  int64
	Current  models.VoteDirection
}

// Commit is a conditional write: apply Delta and set the voter's record to
// Next only if the target is still at ExpectedVersion.
type Commit struct {
	VoterID         uuid.UUID
	Target          Target
	ExpectedVersion int64
	Next            models.VoteDirection
	Delta           Delta
}

// Store is the persistence the ledger needs. LoadVoteState returns a
// NotFound apperr for missing or soft-deleted targets.
type Store interface {
	LoadVoteState(ctx context.Context, voterID uuid.UUID, target Target) (State, error)
	CommitVote(ctx context.Context, commit Commit) (models.Counters, error)
}

type Result struct {
	Target Target `json:"target"`
	models.Counters
	Direction models.VoteDirection `json:"direction"`
	Changed   bool                 `json:"changed"`
	Delta     Delta                `json:"delta"`
}

type Ledger struct {
	store       Store
	maxAttempts int
	logger      *zap.Logger

	initialInterval time.Duration
	maxInterval     time.Duration
}

// New creates a ledger that surfaces a Conflict after maxAttempts lost races.
func New(store Store, maxAttempts int, logger *zap.Logger) *Ledger {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Ledger{
		store:           store,
		maxAttempts:     maxAttempts,
		logger:          logger.Named("ledger"),
		initialInterval: 5 * time.Millisecond,
		maxInterval:     50 * time.Millisecond,
	}
}

// ApplyVote moves voterID's vote on target to direction and returns the
// target's counters afterwards. Repeating a call is a no-op.
func (l *Ledger) ApplyVote(ctx context.Context, voterID uuid.UUID, target Target, direction models.VoteDirection) (*Result, error) {
	if !target.Type.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidTargetType, "target type must be post or comment")
	}
	if direction != models.VoteUp && direction != models.VoteDown && direction != models.VoteNone {
		return nil, apperr.Validation(apperr.CodeInvalidVoteType, "vote direction must be up, down or remove")
	}

	var (
		result   *Result
		attempts int
	)

	operation := func() error {
		attempts++

		state, err := l.store.LoadVoteState(ctx, voterID, target)
		if err != nil {
			return backoff.Permanent(err)
		}

		delta := Transition(state.Current, direction)
		if delta.IsZero() {
			result = &Result{Target: target, Counters: state.Counters, Direction: state.Current}
			return nil
		}

		counters, err := l.store.CommitVote(ctx, Commit{
			VoterID:         voterID,
			Target:          target,
			ExpectedVersion: state.Version,
			Next:            direction,
			Delta:           delta,
		})
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				l.logger.Debug("Vote lost a version race, retrying",
					zap.String("target", target.ID.String()),
					zap.Int("attempt", attempts))
				return err
			}
			return backoff.Permanent(err)
		}

		result = &Result{Target: target, Counters: counters, Direction: direction, Changed: true, Delta: delta}
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(l.initialInterval),
		backoff.WithMaxInterval(l.maxInterval),
	), uint64(l.maxAttempts-1))

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			l.logger.Warn("Vote conflict surfaced after retries",
				zap.String("target", target.ID.String()),
				zap.String("type", string(target.Type)),
				zap.Int("attempts", attempts))
			return nil, apperr.Conflict(apperr.CodeVoteConflict, "vote lost a concurrent update, try again", err)
		}
		return nil, err
	}

	return result, nil
}
