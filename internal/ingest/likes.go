package ingest

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
	"github.com/elfofmaxwell/sui-twitter-db/internal/parse"
	"github.com/elfofmaxwell/sui-twitter-db/internal/xclient"
)

// LikesFetcher pages through a user's liked posts, newest first. The
// liked-posts endpoint has no since_id filter, so incremental polls
// stop client-side at the previously newest liked id.
type LikesFetcher struct {
	client    xclient.Getter
	pageSize  int
	pageDelay time.Duration
}

// NewLikesFetcher builds a fetcher that sleeps pageDelay between pages
// to respect the platform's pacing of the likes endpoint.
func NewLikesFetcher(c xclient.Getter, pageSize int, pageDelay time.Duration) *LikesFetcher {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &LikesFetcher{client: c, pageSize: pageSize, pageDelay: pageDelay}
}

// Fetch returns like events newer than newestLikedID, oldest first.
// With an empty marker the whole available history is fetched.
func (f *LikesFetcher) Fetch(ctx context.Context, userID, newestLikedID string) ([]model.LikeEvent, error) {
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(f.pageSize))
	q.Set("tweet.fields", "created_at,entities")
	q.Set("expansions", "author_id")

	var newestFirst []model.LikeEvent
	for {
		body, err := f.client.Get(ctx, "/users/"+url.PathEscape(userID)+"/liked_tweets", q)
		if err != nil {
			return nil, err
		}
		page, err := parse.ParseTweetPage(body)
		if err != nil {
			return nil, err
		}
		if page.Empty() {
			break
		}
		hitMarker := false
		for _, t := range page.Tweets {
			if newestLikedID != "" && t.ID == newestLikedID {
				// everything older is already known
				hitMarker = true
				break
			}
			author, ok := page.IncludedUsers[t.AuthorID]
			if !ok {
				author = model.UserDictEntry{ID: t.AuthorID}
			}
			newestFirst = append(newestFirst, model.LikeEvent{
				UserID: userID,
				Post:   model.PostDictEntry{ID: t.ID, AuthorID: t.AuthorID, Text: t.Text, Hashtags: t.Hashtags},
				Author: author,
			})
		}
		if hitMarker || page.Meta.NextToken == "" {
			break
		}
		q.Set("pagination_token", page.Meta.NextToken)
		select {
		case <-time.After(f.pageDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	reverseLikes(newestFirst)
	return newestFirst, nil
}

func reverseLikes(s []model.LikeEvent) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
