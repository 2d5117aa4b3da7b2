package jobs

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/elfofmaxwell/sui-twitter-db/internal/config"
	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
	"github.com/elfofmaxwell/sui-twitter-db/internal/store"
)

// routeGetter replays canned bodies per request path, in order.
type routeGetter struct {
	routes map[string][]string
	calls  []string
}

func (g *routeGetter) Get(_ context.Context, path string, _ url.Values) ([]byte, error) {
	g.calls = append(g.calls, path)
	queue := g.routes[path]
	if len(queue) == 0 {
		return []byte(`{"meta":{"result_count":0}}`), nil
	}
	body := queue[0]
	g.routes[path] = queue[1:]
	return []byte(body), nil
}

type fakeNotifier struct {
	profiles []model.Profile
	posts    []model.Post
	likes    []model.LikeEvent
	follows  []model.FollowEvent
	fail     bool
}

func (n *fakeNotifier) ProfileChanged(_ context.Context, p model.Profile) error {
	n.profiles = append(n.profiles, p)
	return n.errIfFailing()
}

func (n *fakeNotifier) NewPost(_ context.Context, p model.Post) error {
	n.posts = append(n.posts, p)
	return n.errIfFailing()
}

func (n *fakeNotifier) NewLike(_ context.Context, l model.LikeEvent) error {
	n.likes = append(n.likes, l)
	return n.errIfFailing()
}

func (n *fakeNotifier) FollowChanged(_ context.Context, ev model.FollowEvent) error {
	n.follows = append(n.follows, ev)
	return n.errIfFailing()
}

func (n *fakeNotifier) errIfFailing() error {
	if n.fail {
		return errors.New("telegram unreachable")
	}
	return nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MonitoringUsernames = []string{"hoshimatisuisei"}
	cfg.Notification.Profile = true
	cfg.Notification.Posts = true
	cfg.Notification.Likes = true
	cfg.Notification.Following = true
	cfg.Fetch.LikesPageDelay = config.Duration(0)
	return cfg
}

func newTestRunner(t *testing.T, g *routeGetter, n *fakeNotifier) (*Runner, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	r := NewRunner(db, g, n, testConfig(), log.New(io.Discard))
	r.nowFn = func() time.Time { return time.Date(2024, 3, 22, 12, 0, 0, 0, time.UTC) }
	return r, db
}

const profileBody = `{"data":[{"id":"0","name":"Hoshimachi Suisei","username":"hoshimatisuisei","location":"Tokyo","description":"comet"}]}`

func TestRunInitialSeedsEverything(t *testing.T) {
	g := &routeGetter{routes: map[string][]string{
		"/users/by": {profileBody},
		"/users/0/tweets": {
			`{"data":[{"id":"t2","text":"second","author_id":"0","created_at":"2024-03-20T10:01:00Z"},{"id":"t1","text":"first","author_id":"0","created_at":"2024-03-20T10:00:00Z"}],"meta":{"result_count":2}}`,
		},
		"/users/0/liked_tweets": {
			`{"data":[{"id":"l1","text":"nice","author_id":"9","created_at":"2024-03-19T08:00:00Z"}],"includes":{"users":[{"id":"9","name":"Nine","username":"nine"}]},"meta":{"result_count":1}}`,
		},
		"/users/0/following": {
			`{"data":[{"id":"u3","name":"Three","username":"three"},{"id":"u2","name":"Two","username":"two"}],"meta":{"result_count":2}}`,
		},
	}}
	r, db := newTestRunner(t, g, &fakeNotifier{})
	ctx := context.Background()

	require.NoError(t, r.RunInitial(ctx))

	p, ok, err := db.LatestProfile(ctx, "hoshimatisuisei")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hoshimatisuisei", p.Username)
	require.Nil(t, p.RecordedTime)

	newest, err := db.NewestPostID(ctx, "0")
	require.NoError(t, err)
	require.Equal(t, "t2", newest)

	liked, err := db.NewestLikedID(ctx, "0")
	require.NoError(t, err)
	require.Equal(t, "l1", liked)

	following, err := db.CurrentFollowing(ctx, "0")
	require.NoError(t, err)
	require.Equal(t, []string{"u3", "u2"}, following)

	author, err := db.LookupUser(ctx, "9")
	require.NoError(t, err)
	require.Equal(t, "nine", author.Username)
}

func TestPostsTickPersistsAndNotifies(t *testing.T) {
	g := &routeGetter{routes: map[string][]string{
		"/users/0/tweets": {
			`{"data":[{"id":"t9","text":"new one","author_id":"0","created_at":"2024-03-22T09:00:00Z"}],"meta":{"result_count":1}}`,
		},
	}}
	n := &fakeNotifier{}
	r, db := newTestRunner(t, g, n)
	ctx := context.Background()

	require.NoError(t, r.postsTick(ctx, "0"))

	newest, err := db.NewestPostID(ctx, "0")
	require.NoError(t, err)
	require.Equal(t, "t9", newest)
	require.Len(t, n.posts, 1)
	require.Equal(t, "t9", n.posts[0].ID)
}

func TestProfileTickNotifiesOnlyOnChange(t *testing.T) {
	g := &routeGetter{routes: map[string][]string{
		"/users/by": {profileBody, profileBody},
	}}
	n := &fakeNotifier{}
	r, db := newTestRunner(t, g, n)
	ctx := context.Background()

	require.NoError(t, r.profileTick(ctx, "hoshimatisuisei"))
	require.NoError(t, r.profileTick(ctx, "hoshimatisuisei"))

	rows, err := db.RecentProfiles(ctx, "hoshimatisuisei", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, n.profiles, 1)
	require.NotNil(t, rows[0].RecordedTime)
}

func TestFollowingTickAppliesDiff(t *testing.T) {
	g := &routeGetter{routes: map[string][]string{
		"/users/0/following": {
			`{"data":[{"id":"u3","name":"Three","username":"three"},{"id":"u2","name":"Two","username":"two"},{"id":"u1","name":"One","username":"one"}],"meta":{"result_count":3}}`,
			`{"data":[{"id":"u4","name":"Four","username":"four"},{"id":"u3","name":"Three","username":"three"},{"id":"u2","name":"Two","username":"two"}],"meta":{"result_count":3}}`,
		},
	}}
	n := &fakeNotifier{}
	r, db := newTestRunner(t, g, n)
	ctx := context.Background()

	// empty snapshot: full fetch seeds {u1,u2,u3}
	require.NoError(t, r.followingTick(ctx, "0"))
	snapshot, err := db.CurrentFollowing(ctx, "0")
	require.NoError(t, err)
	require.Equal(t, []string{"u3", "u2", "u1"}, snapshot)

	// next tick sees {u2,u3,u4}: follow u4, unfollow u1
	require.NoError(t, r.followingTick(ctx, "0"))
	snapshot, err = db.CurrentFollowing(ctx, "0")
	require.NoError(t, err)
	require.Equal(t, []string{"u4", "u3", "u2"}, snapshot)

	var actions []model.FollowAction
	var targets []string
	for _, ev := range n.follows[3:] {
		actions = append(actions, ev.Action)
		targets = append(targets, ev.Target.ID)
	}
	require.Equal(t, []model.FollowAction{model.ActionFollow, model.ActionUnfollow}, actions)
	require.Equal(t, []string{"u4", "u1"}, targets)
}

func TestNotifierFailureDoesNotAbortTick(t *testing.T) {
	g := &routeGetter{routes: map[string][]string{
		"/users/0/tweets": {
			`{"data":[{"id":"t9","text":"new one","author_id":"0","created_at":"2024-03-22T09:00:00Z"}],"meta":{"result_count":1}}`,
		},
	}}
	n := &fakeNotifier{fail: true}
	r, db := newTestRunner(t, g, n)
	ctx := context.Background()

	require.NoError(t, r.postsTick(ctx, "0"))

	newest, err := db.NewestPostID(ctx, "0")
	require.NoError(t, err)
	require.Equal(t, "t9", newest)
}

func TestLikesTickStampsRecordedTime(t *testing.T) {
	g := &routeGetter{routes: map[string][]string{
		"/users/0/liked_tweets": {
			`{"data":[{"id":"l5","text":"great","author_id":"9","created_at":"2024-03-21T08:00:00Z"}],"includes":{"users":[{"id":"9","name":"Nine","username":"nine"}]},"meta":{"result_count":1}}`,
		},
	}}
	n := &fakeNotifier{}
	r, db := newTestRunner(t, g, n)
	ctx := context.Background()

	require.NoError(t, r.likesTick(ctx, "0"))

	liked, err := db.NewestLikedID(ctx, "0")
	require.NoError(t, err)
	require.Equal(t, "l5", liked)
	require.Len(t, n.likes, 1)
	require.NotNil(t, n.likes[0].RecordedTime)
}

func TestBackoffWait(t *testing.T) {
	base := 2 * time.Minute
	require.Equal(t, base, backoffWait(base, 1))
	require.Equal(t, 2*base, backoffWait(base, 2))
	require.Equal(t, 4*base, backoffWait(base, 3))
	require.Equal(t, 8*base, backoffWait(base, 4))
	require.Equal(t, 8*base, backoffWait(base, 9))
}
