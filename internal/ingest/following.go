package ingest

import (
	"context"
	"net/url"
	"strconv"

	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
	"github.com/elfofmaxwell/sui-twitter-db/internal/parse"
	"github.com/elfofmaxwell/sui-twitter-db/internal/xclient"
)

// FollowingFetcher pages through who a user currently follows. The API
// exposes only the current membership list, so follow and unfollow
// events are inferred by diffing against the stored snapshot.
type FollowingFetcher struct {
	client       xclient.Getter
	pollPageSize int
}

func NewFollowingFetcher(c xclient.Getter, pollPageSize int) *FollowingFetcher {
	if pollPageSize <= 0 {
		pollPageSize = 100
	}
	return &FollowingFetcher{client: c, pollPageSize: pollPageSize}
}

// FetchAll returns the entire following list, newest follow first.
// Used by the initial bulk sync.
func (f *FollowingFetcher) FetchAll(ctx context.Context, userID string) ([]model.UserDictEntry, error) {
	return f.fetch(ctx, userID, 1000, "")
}

// FetchRecent returns the recent slice of the following list: pages of
// pollPageSize until the page containing marker has been processed, or
// the list is exhausted. The whole content of every fetched page is
// kept, so the result can be a strict subset of the true current list
// when churn since the last poll exceeds the fetched pages. The differ
// inherits that caveat; it trades precision for request volume.
func (f *FollowingFetcher) FetchRecent(ctx context.Context, userID, marker string) ([]model.UserDictEntry, error) {
	return f.fetch(ctx, userID, f.pollPageSize, marker)
}

func (f *FollowingFetcher) fetch(ctx context.Context, userID string, pageSize int, marker string) ([]model.UserDictEntry, error) {
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(pageSize))

	var newestFirst []model.UserDictEntry
	for {
		body, err := f.client.Get(ctx, "/users/"+url.PathEscape(userID)+"/following", q)
		if err != nil {
			return nil, err
		}
		page, err := parse.ParseUserPage(body)
		if err != nil {
			return nil, err
		}
		if page.Empty() {
			break
		}
		sawMarker := false
		for _, u := range page.Users {
			newestFirst = append(newestFirst, model.UserDictEntry{ID: u.ID, Username: u.Username, Name: u.Name})
			if marker != "" && u.ID == marker {
				sawMarker = true
			}
		}
		if sawMarker || page.Meta.NextToken == "" {
			break
		}
		q.Set("pagination_token", page.Meta.NextToken)
	}
	return newestFirst, nil
}

// FollowDiff is the inferred change between two membership lists.
// Followed holds newly followed users oldest first; UnfollowedIDs holds
// previously known ids missing from the fetched list, oldest first.
type FollowDiff struct {
	Followed      []model.UserDictEntry
	UnfollowedIDs []string
}

// DiffFollowing compares the previous snapshot (ids newest first)
// against the freshly fetched list (newest first) and synthesizes
// follow and unfollow events, each slice ordered chronologically.
func DiffFollowing(prev []string, fetched []model.UserDictEntry) FollowDiff {
	prevSet := make(map[string]struct{}, len(prev))
	for _, id := range prev {
		prevSet[id] = struct{}{}
	}
	fetchedSet := make(map[string]struct{}, len(fetched))
	for _, u := range fetched {
		fetchedSet[u.ID] = struct{}{}
	}

	var diff FollowDiff
	for _, u := range fetched {
		if _, ok := prevSet[u.ID]; !ok {
			diff.Followed = append(diff.Followed, u)
		}
	}
	for _, id := range prev {
		if _, ok := fetchedSet[id]; !ok {
			diff.UnfollowedIDs = append(diff.UnfollowedIDs, id)
		}
	}
	// produced most-recent-first, emitted oldest-first
	for i, j := 0, len(diff.Followed)-1; i < j; i, j = i+1, j-1 {
		diff.Followed[i], diff.Followed[j] = diff.Followed[j], diff.Followed[i]
	}
	for i, j := 0, len(diff.UnfollowedIDs)-1; i < j; i, j = i+1, j-1 {
		diff.UnfollowedIDs[i], diff.UnfollowedIDs[j] = diff.UnfollowedIDs[j], diff.UnfollowedIDs[i]
	}
	return diff
}
