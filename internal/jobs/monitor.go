package jobs

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elfofmaxwell/sui-twitter-db/internal/ingest"
	"github.com/elfofmaxwell/sui-twitter-db/internal/metrics"
	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
)

// maxBackoffFactor caps the failure backoff at this multiple of the
// feed's base interval.
const maxBackoffFactor = 8

// RunMonitor starts one repeating task per (account, feed) pair and
// blocks until ctx is cancelled. Tasks are independent: a failing feed
// never stalls the others, and a failed tick discards its partial
// state so the next tick retries the same range.
func (r *Runner) RunMonitor(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, username := range r.cfg.MonitoringUsernames {
		username := username
		g.Go(func() error {
			return r.loop(ctx, "profile", username, r.cfg.Intervals.Profile.Std(), func(ctx context.Context, userID string) error {
				return r.profileTick(ctx, username)
			})
		})
		g.Go(func() error {
			return r.loop(ctx, "posts", username, r.cfg.Intervals.Posts.Std(), r.postsTick)
		})
		g.Go(func() error {
			return r.loop(ctx, "likes", username, r.cfg.Intervals.Likes.Std(), r.likesTick)
		})
		g.Go(func() error {
			return r.loop(ctx, "following", username, r.cfg.Intervals.Following.Std(), r.followingTick)
		})
	}
	return g.Wait()
}

// loop runs tick on a fixed interval until ctx is cancelled. Errors
// are logged and retried; consecutive failures widen the wait with
// capped exponential backoff. The account's platform id is resolved
// once, lazily, and kept for the lifetime of the loop.
func (r *Runner) loop(ctx context.Context, feed, username string, interval time.Duration, tick func(ctx context.Context, userID string) error) error {
	logger := r.logger.With("feed", feed, "user", username)
	logger.Info("task started", "interval", interval)
	userID := ""
	failures := 0
	for {
		wait := interval
		err := func() error {
			if userID == "" {
				p, err := r.profile.Fetch(ctx, username)
				if err != nil {
					return err
				}
				userID = p.ID
			}
			start := r.nowFn()
			metrics.PollRuns.WithLabelValues(feed).Inc()
			defer metrics.ObservePoll(feed, start)
			return tick(ctx, userID)
		}()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("task stopped")
				return ctx.Err()
			}
			failures++
			metrics.PollErrors.WithLabelValues(feed).Inc()
			wait = backoffWait(interval, failures)
			logger.Error("tick failed", "err", err, "failures", failures, "retry_in", wait)
		} else {
			failures = 0
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			logger.Info("task stopped")
			return ctx.Err()
		}
	}
}

// backoffWait doubles the base interval per consecutive failure, up to
// maxBackoffFactor times the base.
func backoffWait(base time.Duration, failures int) time.Duration {
	factor := 1
	for i := 1; i < failures && factor < maxBackoffFactor; i++ {
		factor *= 2
	}
	if factor > maxBackoffFactor {
		factor = maxBackoffFactor
	}
	return base * time.Duration(factor)
}

func (r *Runner) profileTick(ctx context.Context, username string) error {
	p, err := r.profile.Fetch(ctx, username)
	if err != nil {
		return err
	}
	now := r.nowFn().UTC()
	p.RecordedTime = &now
	changed, err := r.db.InsertProfile(ctx, p)
	if err != nil {
		return err
	}
	if err := r.db.UpsertUser(ctx, model.UserDictEntry{ID: p.ID, Username: p.Username, Name: p.Name}); err != nil {
		return err
	}
	if !changed {
		return nil
	}
	metrics.RecordsPersisted.WithLabelValues("profile").Inc()
	if r.cfg.Notification.Profile {
		r.notify(ctx, "profile", func(ctx context.Context) error {
			return r.notifier.ProfileChanged(ctx, p)
		})
	}
	return nil
}

func (r *Runner) postsTick(ctx context.Context, userID string) error {
	sinceID, err := r.db.NewestPostID(ctx, userID)
	if err != nil {
		return err
	}
	posts, err := r.posts.Fetch(ctx, userID, sinceID)
	if err != nil {
		return err
	}
	for _, post := range posts {
		post := post
		if err := r.persistPost(ctx, post); err != nil {
			return err
		}
		metrics.RecordsPersisted.WithLabelValues("posts").Inc()
		if r.cfg.Notification.Posts {
			r.notify(ctx, "posts", func(ctx context.Context) error {
				return r.notifier.NewPost(ctx, post)
			})
		}
	}
	return nil
}

func (r *Runner) likesTick(ctx context.Context, userID string) error {
	marker, err := r.db.NewestLikedID(ctx, userID)
	if err != nil {
		return err
	}
	likes, err := r.likes.Fetch(ctx, userID, marker)
	if err != nil {
		return err
	}
	now := r.nowFn().UTC()
	for _, like := range likes {
		like := like
		like.RecordedTime = &now
		if err := r.persistLike(ctx, like); err != nil {
			return err
		}
		metrics.RecordsPersisted.WithLabelValues("likes").Inc()
		if r.cfg.Notification.Likes {
			r.notify(ctx, "likes", func(ctx context.Context) error {
				return r.notifier.NewLike(ctx, like)
			})
		}
	}
	return nil
}

// followingTick infers follow and unfollow events by diffing the
// stored snapshot against a fresh fetch. With an empty snapshot the
// whole list is fetched; otherwise small pages are fetched until the
// previously newest followed id is seen. The fetched list can be a
// strict subset of the true current list under heavy churn, which can
// misreport older entries as unfollowed; that is the documented cost
// of the small incremental pages.
func (r *Runner) followingTick(ctx context.Context, userID string) error {
	prev, err := r.db.CurrentFollowing(ctx, userID)
	if err != nil {
		return err
	}
	var fetched []model.UserDictEntry
	if len(prev) == 0 {
		fetched, err = r.following.FetchAll(ctx, userID)
	} else {
		fetched, err = r.following.FetchRecent(ctx, userID, prev[0])
	}
	if err != nil {
		return err
	}
	diff := ingest.DiffFollowing(prev, fetched)
	now := r.nowFn().UTC()
	for _, target := range diff.Followed {
		if err := r.db.UpsertUser(ctx, target); err != nil {
			return err
		}
		ev := model.FollowEvent{RecordedTime: now, UserID: userID, Target: target, Action: model.ActionFollow}
		if err := r.db.InsertFollow(ctx, ev); err != nil {
			return err
		}
		metrics.RecordsPersisted.WithLabelValues("following").Inc()
		if r.cfg.Notification.Following {
			ev := ev
			r.notify(ctx, "following", func(ctx context.Context) error {
				return r.notifier.FollowChanged(ctx, ev)
			})
		}
	}
	for _, id := range diff.UnfollowedIDs {
		target, err := r.db.LookupUser(ctx, id)
		if err != nil {
			return err
		}
		if err := r.db.RemoveFollowing(ctx, userID, id); err != nil {
			return err
		}
		metrics.RecordsPersisted.WithLabelValues("following").Inc()
		if r.cfg.Notification.Following {
			ev := model.FollowEvent{RecordedTime: now, UserID: userID, Target: target, Action: model.ActionUnfollow}
			r.notify(ctx, "following", func(ctx context.Context) error {
				return r.notifier.FollowChanged(ctx, ev)
			})
		}
	}
	return nil
}

// notify delivers one notification, logging failures instead of
// propagating them: delivery problems must never abort a tick whose
// records are already persisted.
func (r *Runner) notify(ctx context.Context, feed string, fn func(ctx context.Context) error) {
	if r.notifier == nil {
		return
	}
	if err := fn(ctx); err != nil {
		metrics.NotifyErrors.Inc()
		r.logger.Error("notification failed", "feed", feed, "err", err)
	}
}
