package store

// ddl drops and recreates every table. Schema setup is destructive and
// runs only from the initdb subcommand; the monitoring core never
// creates or drops tables.
const ddl = `
DROP TABLE IF EXISTS user_profile;
DROP TABLE IF EXISTS user_tweet;
DROP TABLE IF EXISTS user_liked;
DROP TABLE IF EXISTS user_following;
DROP TABLE IF EXISTS user_current_following;
DROP TABLE IF EXISTS hashtag_dict;
DROP TABLE IF EXISTS mention_dict;
DROP TABLE IF EXISTS user_dict;
DROP TABLE IF EXISTS tweet_dict;

CREATE TABLE user_profile (
  id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
  time TEXT,
  user_id TEXT NOT NULL,
  username TEXT NOT NULL,
  name TEXT NOT NULL,
  location TEXT,
  description TEXT
);

CREATE TABLE user_tweet (
  id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
  tweet_id TEXT NOT NULL UNIQUE,
  tweet_text TEXT NOT NULL,
  time TEXT NOT NULL,
  author_id TEXT NOT NULL,
  tweet_type TEXT NOT NULL,
  ref_tweet_id TEXT
);

CREATE TABLE user_liked (
  id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
  time TEXT,
  user_id TEXT NOT NULL,
  author_id TEXT NOT NULL,
  ref_tweet_id TEXT NOT NULL
);

CREATE TABLE user_following (
  id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
  time TEXT,
  user_id TEXT NOT NULL,
  following_user_id TEXT NOT NULL,
  action TEXT NOT NULL
);

CREATE TABLE user_current_following (
  id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
  time TEXT,
  user_id TEXT NOT NULL,
  following_user_id TEXT NOT NULL,
  action TEXT NOT NULL
);

CREATE TABLE hashtag_dict (
  id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
  hashtag TEXT NOT NULL,
  tweet_id TEXT NOT NULL
);

CREATE TABLE mention_dict (
  id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
  ref_user_id TEXT NOT NULL,
  tweet_id TEXT NOT NULL
);

CREATE TABLE user_dict (
  id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL UNIQUE,
  username TEXT NOT NULL,
  name TEXT NOT NULL
);

CREATE TABLE tweet_dict (
  id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
  tweet_id TEXT NOT NULL UNIQUE,
  author_id TEXT NOT NULL,
  text TEXT NOT NULL
);
`
