package model

import "time"

// Profile is one observation of a monitored user's profile.
// RecordedTime is nil for the one-time initial snapshot and set for
// every polling run.
type Profile struct {
	ID           string
	Username     string
	Name         string
	Location     string
	Description  string
	RecordedTime *time.Time
}

// SameFields reports whether two observations carry identical profile
// data, ignoring RecordedTime.
func (p Profile) SameFields(o Profile) bool {
	return p.ID == o.ID && p.Username == o.Username && p.Name == o.Name &&
		p.Location == o.Location && p.Description == o.Description
}

// PostKind discriminates the post variants.
type PostKind int

const (
	KindOriginal PostKind = iota
	KindReply
	KindRepost
)

func (k PostKind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindRepost:
		return "repost"
	default:
		return "original"
	}
}

// PostRef is the referenced post plus its author, present only for
// reply and repost kinds.
type PostRef struct {
	Post   PostDictEntry
	Author UserDictEntry
}

// Mention is a mentioned user id with the username observed in the
// post entities.
type Mention struct {
	UserID   string
	Username string
}

// Post is one post by a monitored user.
type Post struct {
	ID        string
	Text      string
	AuthorID  string
	CreatedAt time.Time
	Kind      PostKind
	// Ref is non-nil only when Kind is KindReply or KindRepost.
	Ref      *PostRef
	Hashtags []string
	Mentions []Mention
}

// LikeEvent records that UserID liked Post by Author.
type LikeEvent struct {
	RecordedTime *time.Time
	UserID       string
	Post         PostDictEntry
	Author       UserDictEntry
}

// FollowAction is the direction of a follow-graph change.
type FollowAction string

const (
	ActionFollow   FollowAction = "follow"
	ActionUnfollow FollowAction = "unfollow"
)

// FollowEvent records that UserID followed or unfollowed Target.
type FollowEvent struct {
	RecordedTime time.Time
	UserID       string
	Target       UserDictEntry
	Action       FollowAction
}

// UserDictEntry is the cached display data for a user id.
type UserDictEntry struct {
	ID       string
	Username string
	Name     string
}

// PostDictEntry is the cached display data for a post id.
type PostDictEntry struct {
	ID       string
	AuthorID string
	Text     string
	Hashtags []string
}
