// Package store persists observations into SQLite and answers the
// cursor queries the fetchers need on the next cycle. History tables
// are append-only; dictionary tables are keyed caches.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
)

const timeFormat = time.RFC3339

// ErrNotCached reports a user-dictionary miss.
var ErrNotCached = errors.New("user not in dictionary")

// DB wraps the SQLite database holding all observation tables.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	return &DB{sql: d}, nil
}

func (d *DB) Close() error { return d.sql.Close() }

// InitSchema drops and recreates every table. Destructive; called only
// by the initdb subcommand.
func (d *DB) InitSchema(ctx context.Context) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

// InsertProfile appends a profile row unless it matches the most
// recently stored profile for the same username field for field. The
// returned flag tells the caller whether anything changed.
func (d *DB) InsertProfile(ctx context.Context, p model.Profile) (bool, error) {
	prev, found, err := d.LatestProfile(ctx, p.Username)
	if err != nil {
		return false, err
	}
	if found && prev.SameFields(p) {
		return false, nil
	}
	_, err = d.sql.ExecContext(ctx,
		`INSERT INTO user_profile(time, user_id, username, name, location, description) VALUES(?,?,?,?,?,?)`,
		nullTime(p.RecordedTime), p.ID, p.Username, p.Name, p.Location, p.Description)
	if err != nil {
		return false, err
	}
	return true, nil
}

// LatestProfile returns the most recently stored profile for username.
func (d *DB) LatestProfile(ctx context.Context, username string) (model.Profile, bool, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT time, user_id, username, name, location, description FROM user_profile WHERE username=? ORDER BY id DESC LIMIT 1`,
		username)
	var p model.Profile
	var ts, loc, desc sql.NullString
	err := row.Scan(&ts, &p.ID, &p.Username, &p.Name, &loc, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, false, nil
	}
	if err != nil {
		return model.Profile{}, false, err
	}
	p.Location = loc.String
	p.Description = desc.String
	if ts.Valid {
		if t, perr := time.Parse(timeFormat, ts.String); perr == nil {
			p.RecordedTime = &t
		}
	}
	return p, true, nil
}

// RecentProfiles returns up to limit profile rows for username,
// newest first.
func (d *DB) RecentProfiles(ctx context.Context, username string, limit int) ([]model.Profile, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT time, user_id, username, name, location, description FROM user_profile WHERE username=? ORDER BY id DESC LIMIT ?`,
		username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Profile
	for rows.Next() {
		var p model.Profile
		var ts, loc, desc sql.NullString
		if err := rows.Scan(&ts, &p.ID, &p.Username, &p.Name, &loc, &desc); err != nil {
			return nil, err
		}
		p.Location = loc.String
		p.Description = desc.String
		if ts.Valid {
			if t, perr := time.Parse(timeFormat, ts.String); perr == nil {
				p.RecordedTime = &t
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertUser inserts or overwrites the dictionary entry for u.ID.
// Safe to call repeatedly.
func (d *DB) UpsertUser(ctx context.Context, u model.UserDictEntry) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO user_dict(user_id, username, name) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET username=excluded.username, name=excluded.name`,
		u.ID, u.Username, u.Name)
	return err
}

// LookupUser resolves a user id from the dictionary. A miss is an
// error so callers notice stale caches.
func (d *DB) LookupUser(ctx context.Context, id string) (model.UserDictEntry, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT user_id, username, name FROM user_dict WHERE user_id=?`, id)
	var u model.UserDictEntry
	err := row.Scan(&u.ID, &u.Username, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserDictEntry{}, fmt.Errorf("lookup user %s: %w", id, ErrNotCached)
	}
	if err != nil {
		return model.UserDictEntry{}, err
	}
	return u, nil
}

// PutPostDict caches a post's display data. First write wins: when the
// id already exists the whole write, hashtag rows included, is
// skipped.
func (d *DB) PutPostDict(ctx context.Context, p model.PostDictEntry) error {
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO tweet_dict(tweet_id, author_id, text) VALUES(?,?,?) ON CONFLICT(tweet_id) DO NOTHING`,
		p.ID, p.AuthorID, p.Text)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	for _, tag := range p.Hashtags {
		if _, err := d.sql.ExecContext(ctx, `INSERT INTO hashtag_dict(hashtag, tweet_id) VALUES(?,?)`, tag, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// LookupPost resolves a post id from the dictionary.
func (d *DB) LookupPost(ctx context.Context, id string) (model.PostDictEntry, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT tweet_id, author_id, text FROM tweet_dict WHERE tweet_id=?`, id)
	var p model.PostDictEntry
	err := row.Scan(&p.ID, &p.AuthorID, &p.Text)
	if err != nil {
		return model.PostDictEntry{}, err
	}
	return p, nil
}

// InsertPost appends a post history row with its hashtag and mention
// side-rows. Post ids are unique across the store; a duplicate insert
// fails.
func (d *DB) InsertPost(ctx context.Context, p model.Post) error {
	var refID any
	if p.Ref != nil {
		refID = p.Ref.Post.ID
	}
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO user_tweet(tweet_id, tweet_text, time, author_id, tweet_type, ref_tweet_id) VALUES(?,?,?,?,?,?)`,
		p.ID, p.Text, p.CreatedAt.UTC().Format(timeFormat), p.AuthorID, p.Kind.String(), refID)
	if err != nil {
		return err
	}
	for _, tag := range p.Hashtags {
		if _, err := d.sql.ExecContext(ctx, `INSERT INTO hashtag_dict(hashtag, tweet_id) VALUES(?,?)`, tag, p.ID); err != nil {
			return err
		}
	}
	for _, m := range p.Mentions {
		if _, err := d.sql.ExecContext(ctx, `INSERT INTO mention_dict(ref_user_id, tweet_id) VALUES(?,?)`, m.UserID, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// NewestPostID returns the id of the newest stored post for authorID,
// or "" when none exists.
func (d *DB) NewestPostID(ctx context.Context, authorID string) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT tweet_id FROM user_tweet WHERE author_id=? ORDER BY id DESC LIMIT 1`, authorID)
	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// InsertLike appends a like history row.
func (d *DB) InsertLike(ctx context.Context, l model.LikeEvent) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO user_liked(time, user_id, author_id, ref_tweet_id) VALUES(?,?,?,?)`,
		nullTime(l.RecordedTime), l.UserID, l.Author.ID, l.Post.ID)
	return err
}

// NewestLikedID returns the id of the newest liked post recorded for
// userID, or "" when none exists.
func (d *DB) NewestLikedID(ctx context.Context, userID string) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT ref_tweet_id FROM user_liked WHERE user_id=? ORDER BY id DESC LIMIT 1`, userID)
	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// InsertFollow appends a follow history row and adds the target to the
// current-following snapshot. The two writes are sequential statements
// serialized by SQLite itself, not one transaction.
func (d *DB) InsertFollow(ctx context.Context, ev model.FollowEvent) error {
	ts := ev.RecordedTime.UTC().Format(timeFormat)
	if _, err := d.sql.ExecContext(ctx,
		`INSERT INTO user_following(time, user_id, following_user_id, action) VALUES(?,?,?,?)`,
		ts, ev.UserID, ev.Target.ID, string(model.ActionFollow)); err != nil {
		return err
	}
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO user_current_following(time, user_id, following_user_id, action) VALUES(?,?,?,?)`,
		ts, ev.UserID, ev.Target.ID, string(model.ActionFollow))
	return err
}

// RemoveFollowing deletes the target from the current-following
// snapshot. Unfollows write no history row.
func (d *DB) RemoveFollowing(ctx context.Context, userID, targetID string) error {
	_, err := d.sql.ExecContext(ctx,
		`DELETE FROM user_current_following WHERE user_id=? AND following_user_id=?`, userID, targetID)
	return err
}

// CurrentFollowing returns the full following snapshot for userID,
// newest follow first.
func (d *DB) CurrentFollowing(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT following_user_id FROM user_current_following WHERE user_id=? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// NewestFollowingID returns the most recently followed user id in the
// snapshot, or "" when the snapshot is empty.
func (d *DB) NewestFollowingID(ctx context.Context, userID string) (string, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT following_user_id FROM user_current_following WHERE user_id=? ORDER BY id DESC LIMIT 1`, userID)
	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}
