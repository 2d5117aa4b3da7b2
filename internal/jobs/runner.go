// Package jobs schedules the per-account, per-feed synchronization
// tasks: a one-shot Initializing run that seeds a fresh database and a
// Monitoring mode with one long-lived task per (account, feed) pair.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/elfofmaxwell/sui-twitter-db/internal/config"
	"github.com/elfofmaxwell/sui-twitter-db/internal/ingest"
	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
	"github.com/elfofmaxwell/sui-twitter-db/internal/notify"
	"github.com/elfofmaxwell/sui-twitter-db/internal/store"
	"github.com/elfofmaxwell/sui-twitter-db/internal/xclient"
)

// Runner wires fetchers, store, and notifier for both run modes.
type Runner struct {
	db        *store.DB
	profile   *ingest.ProfileFetcher
	posts     *ingest.PostsFetcher
	likes     *ingest.LikesFetcher
	following *ingest.FollowingFetcher
	notifier  notify.Notifier
	cfg       config.Config
	logger    *log.Logger
	nowFn     func() time.Time
}

// NewRunner builds a Runner. notifier may be nil when every
// notification category is disabled.
func NewRunner(db *store.DB, client xclient.Getter, notifier notify.Notifier, cfg config.Config, logger *log.Logger) *Runner {
	return &Runner{
		db:        db,
		profile:   ingest.NewProfileFetcher(client),
		posts:     ingest.NewPostsFetcher(client, cfg.Fetch.PostsInitialPageSize, cfg.Fetch.PostsPollPageSize),
		likes:     ingest.NewLikesFetcher(client, cfg.Fetch.LikesPageSize, cfg.Fetch.LikesPageDelay.Std()),
		following: ingest.NewFollowingFetcher(client, cfg.Fetch.FollowingPollPageSize),
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// RunInitial seeds a brand-new database with a full snapshot of every
// monitored account: profile, whole post history, whole like history,
// and the entire following list. Any store or fetch error aborts the
// run; there is no resumable checkpoint for a partial initial sync.
func (r *Runner) RunInitial(ctx context.Context) error {
	for _, username := range r.cfg.MonitoringUsernames {
		if err := r.seedAccount(ctx, username); err != nil {
			return fmt.Errorf("initial sync of %s: %w", username, err)
		}
	}
	return nil
}

func (r *Runner) seedAccount(ctx context.Context, username string) error {
	logger := r.logger.With("user", username)
	logger.Info("seeding account")

	p, err := r.profile.Fetch(ctx, username)
	if err != nil {
		return err
	}
	// RecordedTime stays nil: this is the initial snapshot, not a poll
	if _, err := r.db.InsertProfile(ctx, p); err != nil {
		return err
	}
	if err := r.db.UpsertUser(ctx, model.UserDictEntry{ID: p.ID, Username: p.Username, Name: p.Name}); err != nil {
		return err
	}

	posts, err := r.posts.Fetch(ctx, p.ID, "")
	if err != nil {
		return err
	}
	for _, post := range posts {
		if err := r.persistPost(ctx, post); err != nil {
			return err
		}
	}
	logger.Info("seeded posts", "count", len(posts))

	likes, err := r.likes.Fetch(ctx, p.ID, "")
	if err != nil {
		return err
	}
	for _, like := range likes {
		if err := r.persistLike(ctx, like); err != nil {
			return err
		}
	}
	logger.Info("seeded likes", "count", len(likes))

	following, err := r.following.FetchAll(ctx, p.ID)
	if err != nil {
		return err
	}
	// reverse to oldest first so snapshot insertion order matches
	// follow order
	now := r.nowFn().UTC()
	for i := len(following) - 1; i >= 0; i-- {
		ev := model.FollowEvent{
			RecordedTime: now,
			UserID:       p.ID,
			Target:       following[i],
			Action:       model.ActionFollow,
		}
		if err := r.db.UpsertUser(ctx, following[i]); err != nil {
			return err
		}
		if err := r.db.InsertFollow(ctx, ev); err != nil {
			return err
		}
	}
	logger.Info("seeded following", "count", len(following))
	return nil
}

// persistPost writes the history row, its side rows, and the
// dictionary entries its references need.
func (r *Runner) persistPost(ctx context.Context, p model.Post) error {
	if p.Ref != nil {
		if err := r.db.PutPostDict(ctx, p.Ref.Post); err != nil {
			return err
		}
		if p.Ref.Author.ID != "" {
			if err := r.db.UpsertUser(ctx, p.Ref.Author); err != nil {
				return err
			}
		}
	}
	for _, m := range p.Mentions {
		entry := model.UserDictEntry{ID: m.UserID, Username: m.Username, Name: m.Username}
		if err := r.db.UpsertUser(ctx, entry); err != nil {
			return err
		}
	}
	return r.db.InsertPost(ctx, p)
}

func (r *Runner) persistLike(ctx context.Context, l model.LikeEvent) error {
	if err := r.db.PutPostDict(ctx, l.Post); err != nil {
		return err
	}
	if l.Author.ID != "" {
		if err := r.db.UpsertUser(ctx, l.Author); err != nil {
			return err
		}
	}
	return r.db.InsertLike(ctx, l)
}
