package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestProfileRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p := model.Profile{
		ID:          "0",
		Username:    "hoshimatisuisei",
		Name:        "Hoshimachi Suisei",
		Location:    "Tokyo",
		Description: "comet vtuber",
	}
	changed, err := db.InsertProfile(ctx, p)
	require.NoError(t, err)
	require.True(t, changed)

	got, found, err := db.LatestProfile(ctx, "hoshimatisuisei")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, p, got)
}

func TestProfileIdempotence(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	p := model.Profile{ID: "1", Username: "suisei", Name: "Suisei", RecordedTime: &now}
	changed, err := db.InsertProfile(ctx, p)
	require.NoError(t, err)
	require.True(t, changed)

	// identical fields: no new row
	changed, err = db.InsertProfile(ctx, p)
	require.NoError(t, err)
	require.False(t, changed)

	rows, err := db.RecentProfiles(ctx, "suisei", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// a field change appends
	p.Location = "Tokyo"
	changed, err = db.InsertProfile(ctx, p)
	require.NoError(t, err)
	require.True(t, changed)

	rows, err = db.RecentProfiles(ctx, "suisei", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Tokyo", rows[0].Location)
}

func TestPostDictFirstWriteWins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.PutPostDict(ctx, model.PostDictEntry{ID: "P", AuthorID: "a", Text: "x"}))
	require.NoError(t, db.PutPostDict(ctx, model.PostDictEntry{ID: "P", AuthorID: "a", Text: "y"}))

	got, err := db.LookupPost(ctx, "P")
	require.NoError(t, err)
	require.Equal(t, "x", got.Text)
}

func TestUserDictUpsertOverwrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertUser(ctx, model.UserDictEntry{ID: "u1", Username: "old", Name: "Old"}))
	require.NoError(t, db.UpsertUser(ctx, model.UserDictEntry{ID: "u1", Username: "new", Name: "New"}))

	got, err := db.LookupUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "new", got.Username)

	_, err = db.LookupUser(ctx, "missing")
	require.ErrorIs(t, err, ErrNotCached)
}

func TestPostInsertAndCursor(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.NewestPostID(ctx, "author")
	require.NoError(t, err)
	require.Empty(t, id)

	posts := []model.Post{
		{ID: "t1", Text: "first", AuthorID: "author", CreatedAt: time.Now().UTC(), Kind: model.KindOriginal,
			Hashtags: []string{"hololive"}, Mentions: []model.Mention{{UserID: "m1", Username: "miko"}}},
		{ID: "t2", Text: "second", AuthorID: "author", CreatedAt: time.Now().UTC(), Kind: model.KindReply,
			Ref: &model.PostRef{Post: model.PostDictEntry{ID: "t0"}}},
	}
	for _, p := range posts {
		require.NoError(t, db.InsertPost(ctx, p))
	}

	id, err = db.NewestPostID(ctx, "author")
	require.NoError(t, err)
	require.Equal(t, "t2", id)

	// duplicate post ids violate the unique constraint
	require.Error(t, db.InsertPost(ctx, posts[0]))
}

func TestLikeCursor(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"T2", "T3"} {
		require.NoError(t, db.InsertLike(ctx, model.LikeEvent{
			RecordedTime: &now,
			UserID:       "u",
			Post:         model.PostDictEntry{ID: id},
			Author:       model.UserDictEntry{ID: "a"},
		}))
	}
	id, err := db.NewestLikedID(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, "T3", id)
}

func TestFollowSnapshotLockstep(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, target := range []string{"A", "B", "C"} {
		require.NoError(t, db.InsertFollow(ctx, model.FollowEvent{
			RecordedTime: now,
			UserID:       "u",
			Target:       model.UserDictEntry{ID: target},
			Action:       model.ActionFollow,
		}))
	}

	snap, err := db.CurrentFollowing(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, []string{"C", "B", "A"}, snap)

	newest, err := db.NewestFollowingID(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, "C", newest)

	// unfollow mutates the snapshot only
	require.NoError(t, db.RemoveFollowing(ctx, "u", "B"))
	snap, err = db.CurrentFollowing(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, []string{"C", "A"}, snap)
}
