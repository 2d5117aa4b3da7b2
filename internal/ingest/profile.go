// Package ingest drives the transport and parser across pages, one
// fetcher per feed, and turns raw pages into ordered batches of new
// records.
package ingest

import (
	"context"
	"net/url"

	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
	"github.com/elfofmaxwell/sui-twitter-db/internal/parse"
	"github.com/elfofmaxwell/sui-twitter-db/internal/xclient"
)

// ProfileFetcher looks up a single profile by username. Not paginated.
type ProfileFetcher struct {
	client xclient.Getter
}

func NewProfileFetcher(c xclient.Getter) *ProfileFetcher {
	return &ProfileFetcher{client: c}
}

func (f *ProfileFetcher) Fetch(ctx context.Context, username string) (model.Profile, error) {
	q := url.Values{}
	q.Set("usernames", username)
	q.Set("user.fields", "description,location")
	body, err := f.client.Get(ctx, "/users/by", q)
	if err != nil {
		return model.Profile{}, err
	}
	page, err := parse.ParseUserPage(body)
	if err != nil {
		return model.Profile{}, err
	}
	if len(page.Users) == 0 {
		return model.Profile{}, &parse.FieldError{Path: "data"}
	}
	u := page.Users[0]
	return model.Profile{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.Name,
		Location:    u.Location,
		Description: u.Description,
	}, nil
}
