package ingest

import (
	"context"
	"net/url"
	"strconv"

	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
	"github.com/elfofmaxwell/sui-twitter-db/internal/parse"
	"github.com/elfofmaxwell/sui-twitter-db/internal/xclient"
)

// UnavailablePostText is the placeholder for a referenced post that is
// absent from the page's includes. A missing reference is expected, not
// an error: deleted and protected posts never appear in includes.
const UnavailablePostText = "Unavailable post"

// PostsFetcher pages through a user's posts. Incremental fetches lean
// on the server-side since_id filter, so small pages suffice; the
// initial bulk sync asks for the maximum page size.
type PostsFetcher struct {
	client          xclient.Getter
	initialPageSize int
	pollPageSize    int
}

func NewPostsFetcher(c xclient.Getter, initialPageSize, pollPageSize int) *PostsFetcher {
	if initialPageSize <= 0 {
		initialPageSize = 100
	}
	if pollPageSize <= 0 {
		pollPageSize = 10
	}
	return &PostsFetcher{client: c, initialPageSize: initialPageSize, pollPageSize: pollPageSize}
}

// Fetch returns all posts newer than sinceID for userID, oldest first.
// An empty sinceID fetches the whole available history.
func (f *PostsFetcher) Fetch(ctx context.Context, userID, sinceID string) ([]model.Post, error) {
	size := f.pollPageSize
	if sinceID == "" {
		size = f.initialPageSize
	}
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(size))
	q.Set("tweet.fields", "created_at,entities,referenced_tweets")
	q.Set("expansions", "referenced_tweets.id,referenced_tweets.id.author_id,entities.mentions.username")
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}

	var newestFirst []model.Post
	for {
		body, err := f.client.Get(ctx, "/users/"+url.PathEscape(userID)+"/tweets", q)
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
		for _, t := range page.Tweets {
			newestFirst = append(newestFirst, resolvePost(t, page))
		}
		if page.Meta.NextToken == "" {
			break
		}
		q.Set("pagination_token", page.Meta.NextToken)
	}
	reversePosts(newestFirst)
	return newestFirst, nil
}

// resolvePost converts a parsed tweet into a model.Post, resolving its
// reference against the page's included side-entities.
func resolvePost(t parse.Tweet, page *parse.TweetPage) model.Post {
	p := model.Post{
		ID:        t.ID,
		Text:      t.Text,
		AuthorID:  t.AuthorID,
		CreatedAt: t.CreatedAt,
		Kind:      model.KindOriginal,
		Hashtags:  t.Hashtags,
		Mentions:  t.Mentions,
	}
	if t.Ref == nil {
		return p
	}
	switch t.Ref.Type {
	case "replied_to":
		p.Kind = model.KindReply
	case "retweeted", "quoted":
		p.Kind = model.KindRepost
	default:
		return p
	}
	ref := model.PostRef{}
	if inc, ok := page.IncludedTweets[t.Ref.ID]; ok {
		ref.Post = inc
		if author, ok := page.IncludedUsers[inc.AuthorID]; ok {
			ref.Author = author
		}
	} else {
		// deleted or hidden reference: placeholder, never an error
		ref.Post = model.PostDictEntry{ID: t.Ref.ID, Text: UnavailablePostText}
	}
	p.Ref = &ref
	return p
}

func reversePosts(s []model.Post) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
