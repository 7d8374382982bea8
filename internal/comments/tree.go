package comments

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ranking"
)

// View is a comment as returned to readers.
type View struct {
	models.Comment
	BodyHTML string               `json:"body_html"`
	MyVote   models.VoteDirection `json:"my_vote,omitempty"`
}

// Node is a comment with its replies. MoreReplies counts children that
// were not expanded because the depth cap was reached.
type Node struct {
	View
	Replies     []*Node `json:"replies"`
	MoreReplies int64   `json:"more_replies,omitempty"`
}

// GetComment returns a single comment, tombstones included.
func (m *Manager) GetComment(ctx context.Context, commentID uuid.UUID, viewerID *uuid.UUID) (*View, error) {
	comment, err := m.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}

	views := m.views(ctx, []models.Comment{*comment}, viewerID)
	return &views[0], nil
}

// ListComments returns a post's comments as a flat list in sort order.
// limit <= 0 returns all of them.
func (m *Manager) ListComments(ctx context.Context, postID uuid.UUID, sort ranking.Sort, limit int, viewerID *uuid.UUID) ([]View, error) {
	comments, err := m.loadPostComments(ctx, postID)
	if err != nil {
		return nil, err
	}

	ordered := m.sortComments(ctx, sort, comments)
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	return m.views(ctx, ordered, viewerID), nil
}

// Tree returns the post's comments nested under their parents, siblings in
// sort order, expanded at most MaxTreeDepth levels.
func (m *Manager) Tree(ctx context.Context, postID uuid.UUID, sort ranking.Sort, viewerID *uuid.UUID) ([]*Node, error) {
	comments, err := m.loadPostComments(ctx, postID)
	if err != nil {
		return nil, err
	}

	views := m.views(ctx, m.sortComments(ctx, sort, comments), viewerID)

	nodes := make(map[uuid.UUID]*Node, len(views))
	for i := range views {
		nodes[views[i].ID] = &Node{View: views[i], Replies: []*Node{}}
	}

	roots := make([]*Node, 0)
	for i := range views {
		node := nodes[views[i].ID]
		if views[i].ParentCommentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*views[i].ParentCommentID]
		if !ok {
			// Parent rows are never hard-deleted; a missing one is corrupt data.
			m.logger.Warn("Comment parent missing, rendering as root",
				zap.String("comment_id", views[i].ID.String()))
			roots = append(roots, node)
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}

	for _, root := range roots {
		m.capDepth(root, 0)
	}

	return roots, nil
}

// capDepth cuts the tree below MaxTreeDepth levels.
func (m *Manager) capDepth(root *Node, depth int) {
	type frame struct {
		node  *Node
		depth int
	}

	stack := []frame{{root, depth}}
	seen := make(map[uuid.UUID]bool)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[f.node.ID] {
			f.node.Replies = []*Node{}
			continue
		}
		seen[f.node.ID] = true

		if f.depth+1 >= m.cfg.MaxTreeDepth && len(f.node.Replies) > 0 {
			f.node.MoreReplies = int64(len(f.node.Replies))
			f.node.Replies = []*Node{}
			continue
		}
		for _, child := range f.node.Replies {
			stack = append(stack, frame{child, f.depth + 1})
		}
	}
}

func (m *Manager) loadPostComments(ctx context.Context, postID uuid.UUID) ([]models.Comment, error) {
	if _, err := m.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	return m.store.CommentsByPost(ctx, postID)
}

func (m *Manager) sortComments(ctx context.Context, sort ranking.Sort, comments []models.Comment) []models.Comment {
	byID := make(map[uuid.UUID]models.Comment, len(comments))
	items := make([]ranking.Item, len(comments))
	for i, c := range comments {
		byID[c.ID] = c
		items[i] = ranking.Item{
			ID:           c.ID,
			Score:        c.Score,
			Upvotes:      c.Upvotes,
			Downvotes:    c.Downvotes,
			CommentCount: c.ReplyCount,
			CreatedAt:    c.CreatedAt,
		}
	}

	ranked, _ := m.ranker.Rank(ctx, sort, items, m.now())

	ordered := make([]models.Comment, len(ranked))
	for i, r := range ranked {
		ordered[i] = byID[r.Item.ID]
	}
	return ordered
}

func (m *Manager) views(ctx context.Context, comments []models.Comment, viewerID *uuid.UUID) []View {
	myVotes := m.myVotes(ctx, comments, viewerID)

	views := make([]View, len(comments))
	for i, c := range comments {
		view := View{Comment: c, MyVote: myVotes[c.ID]}
		if c.IsDeleted {
			view.Body = models.DeletedBody
			view.AuthorName = models.DeletedBody
			view.AuthorID = uuid.Nil
			view.BodyHTML = ""
		} else {
			view.BodyHTML = m.renderer.HTML(c.Body)
		}
		views[i] = view
	}
	return views
}

// myVotes is best effort: a failed lookup only drops the annotation.
func (m *Manager) myVotes(ctx context.Context, comments []models.Comment, viewerID *uuid.UUID) map[uuid.UUID]models.VoteDirection {
	if viewerID == nil || m.votes == nil || len(comments) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}

	votes, err := m.votes.VotesFor(ctx, *viewerID, models.TargetComment, ids)
	if err != nil {
		m.logger.Warn("Failed to load viewer votes", zap.Error(err))
		return nil
	}
	return votes
}
