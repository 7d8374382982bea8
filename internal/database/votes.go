package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ledger"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

type targetRow struct {
	Upvotes   int64
	Downvotes int64
	Score     int64
	Version   int64
	IsDeleted bool
}

func targetModel(t models.VoteTargetType) any {
	if t == models.TargetComment {
		return &models.Comment{}
	}
	return &models.Post{}
}

func (s *Store) LoadVoteState(ctx context.Context, voterID uuid.UUID, target ledger.Target) (ledger.State, error) {
	var state ledger.State
	err := s.run(ctx, "load vote state", func(db *gorm.DB) error {
		var row targetRow
		err := db.Model(targetModel(target.Type)).
			Select("upvotes", "downvotes", "score", "version", "is_deleted").
			Where("id = ?", target.ID).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && row.IsDeleted) {
			return apperr.NotFound(apperr.CodeTargetNotFound, "vote target not found")
		}
		if err != nil {
			return err
		}

		var vote models.Vote
		err = db.Where("voter_id = ? AND target_id = ? AND target_type = ?", voterID, target.ID, target.Type).
			Take(&vote).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		state = ledger.State{
			Counters: models.Counters{Upvotes: row.Upvotes, Downvotes: row.Downvotes, Score: row.Score},
			Version:  row.Version,
			Current:  vote.Direction,
		}
		return nil
	})
	return state, err
}

// CommitVote applies the delta only while the target is still at the
// expected version; the vote record changes in the same transaction.
func (s *Store) CommitVote(ctx context.Context, commit ledger.Commit) (models.Counters, error) {
	var counters models.Counters
	err := s.run(ctx, "commit vote", func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			d := commit.Delta
			res := tx.Model(targetModel(commit.Target.Type)).
				Where("id = ? AND version = ? AND is_deleted = ?", commit.Target.ID, commit.ExpectedVersion, false).
				Updates(map[string]any{
					"upvotes":   gorm.Expr("upvotes + ?", d.Up),
					"downvotes": gorm.Expr("downvotes + ?", d.Down),
					"score":     gorm.Expr("score + ?", d.Score()),
					"version":   gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ledger.ErrVersionConflict
			}

			voteScope := tx.Where("voter_id = ? AND target_id = ? AND target_type = ?",
				commit.VoterID, commit.Target.ID, commit.Target.Type)
			if commit.Next == models.VoteNone {
				if err := voteScope.Delete(&models.Vote{}).Error; err != nil {
					return err
				}
			} else {
				err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "voter_id"}, {Name: "target_id"}, {Name: "target_type"}},
					DoUpdates: clause.AssignmentColumns([]string{"direction", "updated_at"}),
				}).Create(&models.Vote{
					VoterID:    commit.VoterID,
					TargetID:   commit.Target.ID,
					TargetType: commit.Target.Type,
					Direction:  commit.Next,
				}).Error
				if err != nil {
					return err
				}
			}

			var row targetRow
			err := tx.Model(targetModel(commit.Target.Type)).
				Select("upvotes", "downvotes", "score").
				Where("id = ?", commit.Target.ID).
				Take(&row).Error
			if err != nil {
				return err
			}
			counters = models.Counters{Upvotes: row.Upvotes, Downvotes: row.Downvotes, Score: row.Score}
			return nil
		})
	})
	return counters, err
}

func (s *Store) VotesFor(ctx context.Context, voterID uuid.UUID, targetType models.VoteTargetType, targetIDs []uuid.UUID) (map[uuid.UUID]models.VoteDirection, error) {
	out := make(map[uuid.UUID]models.VoteDirection, len(targetIDs))
	if len(targetIDs) == 0 {
		return out, nil
	}

	var votes []models.Vote
	err := s.run(ctx, "list votes", func(db *gorm.DB) error {
		return db.Where("voter_id = ? AND target_type = ? AND target_id IN ?", voterID, targetType, targetIDs).
			Find(&votes).Error
	})
	if err != nil {
		return nil, err
	}

	for _, v := range votes {
		out[v.TargetID] = v.Direction
	}
	return out, nil
}
