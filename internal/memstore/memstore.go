// Package memstore is an in-process implementation of every store the
// engine needs. It backs STORAGE=memory and the package tests.
package memstore

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/comments"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/feed"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ledger"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

type voteKey struct {
	voter  uuid.UUID
	target uuid.UUID
	kind   models.VoteTargetType
}

type Store struct {
	mu sync.RWMutex

	users       map[uuid.UUID]models.User
	communities map[uuid.UUID]models.Community
	posts       map[uuid.UUID]*models.Post
	comments    map[uuid.UUID]*models.Comment
	votes       map[voteKey]models.VoteDirection
	memberships map[uuid.UUID]map[uuid.UUID]models.CommunityMembership
	follows     map[uuid.UUID]map[uuid.UUID]time.Time

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:       make(map[uuid.UUID]models.User),
		communities: make(map[uuid.UUID]models.Community),
		posts:       make(map[uuid.UUID]*models.Post),
		comments:    make(map[uuid.UUID]*models.Comment),
		votes:       make(map[voteKey]models.VoteDirection),
		memberships: make(map[uuid.UUID]map[uuid.UUID]models.CommunityMembership),
		follows:     make(map[uuid.UUID]map[uuid.UUID]time.Time),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ ledger.Store        = (*Store)(nil)
	_ comments.Store      = (*Store)(nil)
	_ comments.RoleLookup = (*Store)(nil)
	_ feed.Membership     = (*Store)(nil)
	_ feed.PostSource     = (*Store)(nil)
	_ feed.VoteLookup     = (*Store)(nil)
)

// Seeding

func (s *Store) AddUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *Store) AddCommunity(community models.Community) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.communities[community.ID] = community
}

// AddPost stores post as given. Community and author names are filled in
// from seeded records when empty.
func (s *Store) AddPost(post models.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.CommunityName == "" {
		post.CommunityName = s.communities[post.CommunityID].Name
	}
	if post.AuthorName == "" {
		post.AuthorName = s.users[post.AuthorID].Username
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = s.now()
	}
	p := clonePost(&post)
	s.posts[post.ID] = p
}

// DeletePost soft-deletes a post.
func (s *Store) DeletePost(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.posts[id]; ok {
		p.IsDeleted = true
	}
}

func (s *Store) AddMember(userID, communityID uuid.UUID, role models.MembershipRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addMemberLocked(userID, communityID, role)
}

func (s *Store) addMemberLocked(userID, communityID uuid.UUID, role models.MembershipRole) {
	m, ok := s.memberships[userID]
	if !ok {
		m = make(map[uuid.UUID]models.CommunityMembership)
		s.memberships[userID] = m
	}
	m[communityID] = models.CommunityMembership{
		UserID:      userID,
		CommunityID: communityID,
		Role:        role,
		JoinedAt:    s.now(),
	}
}

// Users and communities

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "user not found")
	}
	return &user, nil
}

func (s *Store) GetCommunity(_ context.Context, id uuid.UUID) (*models.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	community, ok := s.communities[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodeCommunityNotFound, "community not found")
	}
	return &community, nil
}

// Membership

func (s *Store) Subscriptions(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.memberships[userID]))
	for id := range s.memberships[userID] {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids, nil
}

func (s *Store) Follows(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.follows[userID]))
	for id := range s.follows[userID] {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids, nil
}

func (s *Store) Role(_ context.Context, userID, communityID uuid.UUID) (models.MembershipRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memberships[userID][communityID].Role, nil
}

// Subscribe joins the community as a member. Joining twice keeps the
// existing role.
func (s *Store) Subscribe(_ context.Context, userID, communityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.communities[communityID]; !ok {
		return apperr.NotFound(apperr.CodeCommunityNotFound, "community not found")
	}
	if _, ok := s.memberships[userID][communityID]; ok {
		return nil
	}
	s.addMemberLocked(userID, communityID, models.RoleMember)
	return nil
}

func (s *Store) Unsubscribe(_ context.Context, userID, communityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.communities[communityID]; !ok {
		return apperr.NotFound(apperr.CodeCommunityNotFound, "community not found")
	}
	delete(s.memberships[userID], communityID)
	return nil
}

func (s *Store) Follow(_ context.Context, followerID, followingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[followingID]; !ok {
		return apperr.NotFound(apperr.CodeUserNotFound, "user not found")
	}
	f, ok := s.follows[followerID]
	if !ok {
		f = make(map[uuid.UUID]time.Time)
		s.follows[followerID] = f
	}
	if _, ok := f[followingID]; !ok {
		f[followingID] = s.now()
	}
	return nil
}

func (s *Store) Unfollow(_ context.Context, followerID, followingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.follows[followerID], followingID)
	return nil
}

// Posts

func (s *Store) GetPost(_ context.Context, id uuid.UUID) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodePostNotFound, "post not found")
	}
	return clonePost(p), nil
}

func (s *Store) RecentPostsByCommunity(_ context.Context, communityID uuid.UUID, q feed.SourceQuery) ([]models.Post, error) {
	return s.recentPosts(q, func(p *models.Post) bool { return p.CommunityID == communityID }), nil
}

func (s *Store) RecentPostsByAuthor(_ context.Context, authorID uuid.UUID, q feed.SourceQuery) ([]models.Post, error) {
	return s.recentPosts(q, func(p *models.Post) bool { return p.AuthorID == authorID }), nil
}

func (s *Store) recentPosts(q feed.SourceQuery, match func(*models.Post) bool) []models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := make([]models.Post, 0)
	for _, p := range s.posts {
		if p.IsDeleted || !match(p) {
			continue
		}
		if q.Before != nil && p.CreatedAt.After(*q.Before) {
			continue
		}
		posts = append(posts, *clonePost(p))
	}

	slices.SortFunc(posts, func(a, b models.Post) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(b.ID[:], a.ID[:])
	})

	if q.Limit > 0 && len(posts) > q.Limit {
		posts = posts[:q.Limit]
	}
	return posts
}

// Comments

func (s *Store) GetComment(_ context.Context, id uuid.UUID) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodeCommentNotFound, "comment not found")
	}
	return cloneComment(c), nil
}

func (s *Store) CommentsByPost(_ context.Context, postID uuid.UUID) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Comment, 0)
	for _, c := range s.comments {
		if c.PostID == postID {
			out = append(out, *cloneComment(c))
		}
	}
	slices.SortFunc(out, func(a, b models.Comment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) InsertComment(_ context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[comment.PostID]
	if !ok || post.IsDeleted {
		return apperr.NotFound(apperr.CodePostNotFound, "post not found")
	}

	if comment.ParentCommentID != nil {
		parent, ok := s.comments[*comment.ParentCommentID]
		if !ok || parent.IsDeleted || parent.PostID != comment.PostID {
			return comments.ErrParentUnavailable
		}
		parent.ReplyCount++
	}

	s.comments[comment.ID] = cloneComment(comment)
	s.recountLocked(post)
	return nil
}

func (s *Store) TombstoneComment(_ context.Context, id uuid.UUID) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodeCommentNotFound, "comment not found")
	}
	if c.IsDeleted {
		return nil, comments.ErrAlreadyDeleted
	}

	c.IsDeleted = true
	c.Body = models.DeletedBody
	c.UpdatedAt = s.now()

	if c.ParentCommentID != nil {
		if parent, ok := s.comments[*c.ParentCommentID]; ok && parent.ReplyCount > 0 {
			parent.ReplyCount--
		}
	}
	if post, ok := s.posts[c.PostID]; ok {
		s.recountLocked(post)
	}
	return cloneComment(c), nil
}

func (s *Store) UpdateCommentBody(_ context.Context, id uuid.UUID, body string) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok || c.IsDeleted {
		return nil, apperr.NotFound(apperr.CodeCommentNotFound, "comment not found")
	}
	c.Body = body
	c.IsEdited = true
	c.UpdatedAt = s.now()
	return cloneComment(c), nil
}

// RecentCommentCounts counts live comments created at or after since.
// Every requested post gets an entry.
func (s *Store) RecentCommentCounts(_ context.Context, postIDs []uuid.UUID, since time.Time) (map[uuid.UUID]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[uuid.UUID]int64, len(postIDs))
	for _, id := range postIDs {
		counts[id] = 0
	}
	for _, c := range s.comments {
		if c.IsDeleted || c.CreatedAt.Before(since) {
			continue
		}
		if _, ok := counts[c.PostID]; ok {
			counts[c.PostID]++
		}
	}
	return counts, nil
}

func (s *Store) recountLocked(post *models.Post) {
	var n int64
	for _, c := range s.comments {
		if c.PostID == post.ID && !c.IsDeleted {
			n++
		}
	}
	post.CommentCount = n
}

// Votes

func (s *Store) LoadVoteState(_ context.Context, voterID uuid.UUID, target ledger.Target) (ledger.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counters, version, err := s.targetLocked(target)
	if err != nil {
		return ledger.State{}, err
	}
	return ledger.State{
		Counters: counters,
		Version:  version,
		Current:  s.votes[voteKey{voterID, target.ID, target.Type}],
	}, nil
}

func (s *Store) CommitVote(_ context.Context, commit ledger.Commit) (models.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, version, err := s.targetLocked(commit.Target)
	if err != nil {
		return models.Counters{}, err
	}
	if version != commit.ExpectedVersion {
		return models.Counters{}, ledger.ErrVersionConflict
	}

	var counters models.Counters
	switch commit.Target.Type {
	case models.TargetPost:
		p := s.posts[commit.Target.ID]
		counters = commit.Delta.Apply(p.Counters())
		p.Upvotes, p.Downvotes, p.Score = counters.Upvotes, counters.Downvotes, counters.Score
		p.Version++
	case models.TargetComment:
		c := s.comments[commit.Target.ID]
		counters = commit.Delta.Apply(c.Counters())
		c.Upvotes, c.Downvotes, c.Score = counters.Upvotes, counters.Downvotes, counters.Score
		c.Version++
	}

	key := voteKey{commit.VoterID, commit.Target.ID, commit.Target.Type}
	if commit.Next == models.VoteNone {
		delete(s.votes, key)
	} else {
		s.votes[key] = commit.Next
	}
	return counters, nil
}

func (s *Store) VotesFor(_ context.Context, voterID uuid.UUID, targetType models.VoteTargetType, targetIDs []uuid.UUID) (map[uuid.UUID]models.VoteDirection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]models.VoteDirection)
	for _, id := range targetIDs {
		if d, ok := s.votes[voteKey{voterID, id, targetType}]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (s *Store) targetLocked(target ledger.Target) (models.Counters, int64, error) {
	switch target.Type {
	case models.TargetPost:
		if p, ok := s.posts[target.ID]; ok && !p.IsDeleted {
			return p.Counters(), p.Version, nil
		}
	case models.TargetComment:
		if c, ok := s.comments[target.ID]; ok && !c.IsDeleted {
			return c.Counters(), c.Version, nil
		}
	}
	return models.Counters{}, 0, apperr.NotFound(apperr.CodeTargetNotFound, "vote target not found")
}

func clonePost(p *models.Post) *models.Post {
	out := *p
	out.Tags = slices.Clone(p.Tags)
	return &out
}

func cloneComment(c *models.Comment) *models.Comment {
	out := *c
	if c.ParentCommentID != nil {
		parent := *c.ParentCommentID
		out.ParentCommentID = &parent
	}
	return &out
}

func sortIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
}
