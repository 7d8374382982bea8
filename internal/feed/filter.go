package feed

import (
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/models"
)

// applyFilters returns the entries the viewer may see. The input slice is
// shared with the materializer and is never modified.
func applyFilters(entries []models.FeedEntry, f Filters) []models.FeedEntry {
	out := make([]models.FeedEntry, 0, len(entries))
	for _, e := range entries {
		if keep(e, f) {
			out = append(out, e)
		}
	}
	return out
}

func keep(e models.FeedEntry, f Filters) bool {
	switch {
	case e.IsDeleted:
		return false
	case e.IsNSFW && !f.IncludeNSFW:
		return false
	case e.IsSpoiler && !f.IncludeSpoilers:
		return false
	case f.CommunityID != nil && e.CommunityID != *f.CommunityID:
		return false
	case f.AuthorID != nil && e.AuthorID != *f.AuthorID:
		return false
	}
	return true
}
