// Package config loads the YAML configuration consumed once at
// startup. The resulting value is immutable and shared by every task.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	// Usernames of the accounts to monitor.
	MonitoringUsernames []string           `yaml:"monitoringUsernames"`
	Storage             StorageConfig      `yaml:"storage"`
	Notification        NotificationConfig `yaml:"notification"`
	Intervals           IntervalsConfig    `yaml:"intervals"`
	Fetch               FetchConfig        `yaml:"fetch"`
	MetricsAddr         string             `yaml:"metricsAddr"`
}

type CredentialsConfig struct {
	// X API bearer token. If empty, read from env TWITTER_BEARER_TOKEN.
	BearerToken string `yaml:"bearerToken"`
	// Telegram bot token. If empty, read from env TELEGRAM_BOT_TOKEN.
	BotToken string `yaml:"botToken"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

// NotificationConfig gates which change categories get forwarded and
// where.
type NotificationConfig struct {
	Profile   bool `yaml:"profile"`
	Posts     bool `yaml:"posts"`
	Likes     bool `yaml:"likes"`
	Following bool `yaml:"following"`
	// Telegram chat ids that receive messages.
	ChatIDs []string `yaml:"chatIds"`
}

// Enabled reports whether any category is turned on.
func (n NotificationConfig) Enabled() bool {
	return n.Profile || n.Posts || n.Likes || n.Following
}

// IntervalsConfig holds the per-feed polling intervals. Profile and
// following tolerate the most staleness and poll least often.
type IntervalsConfig struct {
	Profile   Duration `yaml:"profile"`
	Posts     Duration `yaml:"posts"`
	Likes     Duration `yaml:"likes"`
	Following Duration `yaml:"following"`
}

// FetchConfig holds page sizes and pacing knobs.
type FetchConfig struct {
	PostsInitialPageSize int `yaml:"postsInitialPageSize"`
	PostsPollPageSize    int `yaml:"postsPollPageSize"`
	LikesPageSize        int `yaml:"likesPageSize"`
	// Delay between like pages, platform pacing.
	LikesPageDelay Duration `yaml:"likesPageDelay"`
	// Page size for incremental following polls. Small values keep
	// request volume low at the cost of diff precision under churn.
	FollowingPollPageSize int `yaml:"followingPollPageSize"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		MonitoringUsernames: []string{},
		Storage:             StorageConfig{DBPath: "./sui.db"},
		Notification: NotificationConfig{
			Profile: true, Posts: true, Likes: true, Following: true,
		},
		Intervals: IntervalsConfig{
			Profile:   Duration(30 * time.Minute),
			Posts:     Duration(2 * time.Minute),
			Likes:     Duration(5 * time.Minute),
			Following: Duration(30 * time.Minute),
		},
		Fetch: FetchConfig{
			PostsInitialPageSize:  100,
			PostsPollPageSize:     10,
			LikesPageSize:         100,
			LikesPageDelay:        Duration(time.Second),
			FollowingPollPageSize: 100,
		},
	}
}

// ResolveEnv fills in credentials from environment variables if unset.
func (c *Config) ResolveEnv() {
	if c.Credentials.BearerToken == "" {
		c.Credentials.BearerToken = os.Getenv("TWITTER_BEARER_TOKEN")
	}
	if c.Credentials.BotToken == "" {
		c.Credentials.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Credentials.BearerToken == "" {
		return errors.New("missing bearer token (config or TWITTER_BEARER_TOKEN)")
	}
	if len(c.MonitoringUsernames) == 0 {
		return errors.New("no usernames to monitor")
	}
	if c.Storage.DBPath == "" {
		return errors.New("missing storage.dbPath")
	}
	if c.Notification.Enabled() && c.Credentials.BotToken == "" {
		return errors.New("notifications enabled but no bot token (config or TELEGRAM_BOT_TOKEN)")
	}
	if c.Notification.Enabled() && len(c.Notification.ChatIDs) == 0 {
		return errors.New("notifications enabled but no chat ids")
	}
	return nil
}

// Load reads YAML config from path, applying defaults for zero-value
// intervals and page sizes.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ResolveEnv()
	d := Default()
	if cfg.Intervals.Profile <= 0 {
		cfg.Intervals.Profile = d.Intervals.Profile
	}
	if cfg.Intervals.Posts <= 0 {
		cfg.Intervals.Posts = d.Intervals.Posts
	}
	if cfg.Intervals.Likes <= 0 {
		cfg.Intervals.Likes = d.Intervals.Likes
	}
	if cfg.Intervals.Following <= 0 {
		cfg.Intervals.Following = d.Intervals.Following
	}
	if cfg.Fetch.PostsInitialPageSize <= 0 {
		cfg.Fetch.PostsInitialPageSize = d.Fetch.PostsInitialPageSize
	}
	if cfg.Fetch.PostsPollPageSize <= 0 {
		cfg.Fetch.PostsPollPageSize = d.Fetch.PostsPollPageSize
	}
	if cfg.Fetch.LikesPageSize <= 0 {
		cfg.Fetch.LikesPageSize = d.Fetch.LikesPageSize
	}
	if cfg.Fetch.LikesPageDelay <= 0 {
		cfg.Fetch.LikesPageDelay = d.Fetch.LikesPageDelay
	}
	if cfg.Fetch.FollowingPollPageSize <= 0 {
		cfg.Fetch.FollowingPollPageSize = d.Fetch.FollowingPollPageSize
	}
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
