// Package parse decodes one page of the X API v2 JSON into typed
// records. All required-field checks happen here, so fetchers never
// touch raw JSON.
package parse

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
)

// FieldError reports a required JSON field that is absent or mistyped.
// The path names the field as it appears on the wire, e.g.
// "referenced_tweets.id".
type FieldError struct {
	Path string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("required field %s is missing or invalid", e.Path)
}

func missing(path string) error { return &FieldError{Path: path} }

// Wire shapes. Every field is a pointer so presence can be checked in
// one validation step per payload.

type userJSON struct {
	ID          *string `json:"id"`
	Name        *string `json:"name"`
	Username    *string `json:"username"`
	Location    *string `json:"location"`
	Description *string `json:"description"`
}

type refJSON struct {
	Type *string `json:"type"`
	ID   *string `json:"id"`
}

type entitiesJSON struct {
	Hashtags []struct {
		Tag *string `json:"tag"`
	} `json:"hashtags"`
	Mentions []struct {
		ID       *string `json:"id"`
		Username *string `json:"username"`
	} `json:"mentions"`
}

type tweetJSON struct {
	ID               *string       `json:"id"`
	Text             *string       `json:"text"`
	AuthorID         *string       `json:"author_id"`
	CreatedAt        *time.Time    `json:"created_at"`
	ReferencedTweets []refJSON     `json:"referenced_tweets"`
	Entities         *entitiesJSON `json:"entities"`
}

type includesJSON struct {
	Users  []userJSON  `json:"users"`
	Tweets []tweetJSON `json:"tweets"`
}

type metaJSON struct {
	ResultCount *int    `json:"result_count"`
	NextToken   *string `json:"next_token"`
}

// Meta is the pagination metadata of one page.
type Meta struct {
	ResultCount int
	NextToken   string
}

// User is a user object validated off the wire. Location and
// Description stay empty when the API omits them.
type User struct {
	ID          string
	Username    string
	Name        string
	Location    string
	Description string
}

// TweetRef is the reply/repost reference carried by a tweet.
type TweetRef struct {
	Type string
	ID   string
}

// Tweet is a tweet object validated off the wire.
type Tweet struct {
	ID        string
	Text      string
	AuthorID  string
	CreatedAt time.Time
	Ref       *TweetRef
	Hashtags  []string
	Mentions  []model.Mention
}

// UserPage is one page of user objects (profile lookup, following).
type UserPage struct {
	Users []User
	Meta  Meta
}

// TweetPage is one page of tweet objects plus the included
// side-entities resolved into dictionaries keyed by id.
type TweetPage struct {
	Tweets         []Tweet
	IncludedUsers  map[string]model.UserDictEntry
	IncludedTweets map[string]model.PostDictEntry
	Meta           Meta
}

// Empty reports the clean end-of-results sentinel: zero reported
// results and no data array.
func (m Meta) empty(dataLen int) bool { return dataLen == 0 && m.ResultCount == 0 }

// Empty reports whether the page is the end-of-results sentinel.
func (p *UserPage) Empty() bool { return p.Meta.empty(len(p.Users)) }

// Empty reports whether the page is the end-of-results sentinel.
func (p *TweetPage) Empty() bool { return p.Meta.empty(len(p.Tweets)) }

func convertMeta(m *metaJSON) Meta {
	var out Meta
	if m == nil {
		return out
	}
	if m.ResultCount != nil {
		out.ResultCount = *m.ResultCount
	}
	if m.NextToken != nil {
		out.NextToken = *m.NextToken
	}
	return out
}

func convertUser(u userJSON) (User, error) {
	if u.ID == nil {
		return User{}, missing("id")
	}
	if u.Username == nil {
		return User{}, missing("username")
	}
	if u.Name == nil {
		return User{}, missing("name")
	}
	out := User{ID: *u.ID, Username: *u.Username, Name: *u.Name}
	if u.Location != nil {
		out.Location = *u.Location
	}
	if u.Description != nil {
		out.Description = *u.Description
	}
	return out, nil
}

func convertTweet(t tweetJSON) (Tweet, error) {
	if t.ID == nil {
		return Tweet{}, missing("id")
	}
	if t.Text == nil {
		return Tweet{}, missing("text")
	}
	if t.AuthorID == nil {
		return Tweet{}, missing("author_id")
	}
	if t.CreatedAt == nil {
		return Tweet{}, missing("created_at")
	}
	out := Tweet{ID: *t.ID, Text: *t.Text, AuthorID: *t.AuthorID, CreatedAt: *t.CreatedAt}
	if len(t.ReferencedTweets) > 0 {
		ref := t.ReferencedTweets[0]
		if ref.Type == nil {
			return Tweet{}, missing("referenced_tweets.type")
		}
		if ref.ID == nil {
			return Tweet{}, missing("referenced_tweets.id")
		}
		out.Ref = &TweetRef{Type: *ref.Type, ID: *ref.ID}
	}
	if t.Entities != nil {
		for _, h := range t.Entities.Hashtags {
			if h.Tag == nil {
				return Tweet{}, missing("entities.hashtags.tag")
			}
			out.Hashtags = append(out.Hashtags, *h.Tag)
		}
		for _, m := range t.Entities.Mentions {
			if m.ID == nil {
				return Tweet{}, missing("entities.mentions.id")
			}
			if m.Username == nil {
				return Tweet{}, missing("entities.mentions.username")
			}
			out.Mentions = append(out.Mentions, model.Mention{UserID: *m.ID, Username: *m.Username})
		}
	}
	return out, nil
}

// hashtags of an included tweet are best-effort: a missing tag in a
// side-entity is dropped rather than failing the page.
func includedHashtags(t tweetJSON) []string {
	if t.Entities == nil {
		return nil
	}
	var out []string
	for _, h := range t.Entities.Hashtags {
		if h.Tag != nil {
			out = append(out, *h.Tag)
		}
	}
	return out
}

// UserPage parses a page whose data array holds user objects.
func ParseUserPage(raw []byte) (*UserPage, error) {
	var body struct {
		Data []userJSON `json:"data"`
		Meta *metaJSON  `json:"meta"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode user page: %w", err)
	}
	page := &UserPage{Meta: convertMeta(body.Meta)}
	for _, u := range body.Data {
		cu, err := convertUser(u)
		if err != nil {
			return nil, err
		}
		page.Users = append(page.Users, cu)
	}
	return page, nil
}

// ParseTweetPage parses a page whose data array holds tweet objects,
// collecting includes.users and includes.tweets into lookup maps.
func ParseTweetPage(raw []byte) (*TweetPage, error) {
	var body struct {
		Data     []tweetJSON   `json:"data"`
		Includes *includesJSON `json:"includes"`
		Meta     *metaJSON     `json:"meta"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode tweet page: %w", err)
	}
	page := &TweetPage{
		IncludedUsers:  map[string]model.UserDictEntry{},
		IncludedTweets: map[string]model.PostDictEntry{},
		Meta:           convertMeta(body.Meta),
	}
	for _, t := range body.Data {
		ct, err := convertTweet(t)
		if err != nil {
			return nil, err
		}
		page.Tweets = append(page.Tweets, ct)
	}
	if body.Includes != nil {
		for _, u := range body.Includes.Users {
			if u.ID == nil || u.Username == nil || u.Name == nil {
				continue
			}
			page.IncludedUsers[*u.ID] = model.UserDictEntry{ID: *u.ID, Username: *u.Username, Name: *u.Name}
		}
		for _, t := range body.Includes.Tweets {
			if t.ID == nil || t.Text == nil || t.AuthorID == nil {
				continue
			}
			page.IncludedTweets[*t.ID] = model.PostDictEntry{
				ID:       *t.ID,
				AuthorID: *t.AuthorID,
				Text:     *t.Text,
				Hashtags: includedHashtags(t),
			}
		}
	}
	return page, nil
}
