// Package notify renders changed records into Telegram messages and
// delivers them. Delivery failures are reported to the caller but must
// never undo persistence that already happened.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elfofmaxwell/sui-twitter-db/internal/model"
	"github.com/elfofmaxwell/sui-twitter-db/internal/util"
)

// previewLen caps quoted post text in messages. Telegram rejects
// messages over 4096 characters, and a notification quoting two posts
// must stay well under that.
const previewLen = 400

// Notifier consumes changed records. The scheduler calls it only for
// categories the configuration enables.
type Notifier interface {
	ProfileChanged(ctx context.Context, p model.Profile) error
	NewPost(ctx context.Context, p model.Post) error
	NewLike(ctx context.Context, l model.LikeEvent) error
	FollowChanged(ctx context.Context, ev model.FollowEvent) error
}

// Telegram delivers messages through the Bot API's sendMessage call,
// one message per configured chat.
type Telegram struct {
	baseURL    string
	botToken   string
	chatIDs    []string
	httpClient *http.Client
}

func NewTelegram(botToken string, chatIDs []string) *Telegram {
	return &Telegram{
		baseURL:    "https://api.telegram.org",
		botToken:   botToken,
		chatIDs:    chatIDs,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Telegram) ProfileChanged(ctx context.Context, p model.Profile) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Profile updated: @%s\n", Escape(p.Username))
	fmt.Fprintf(&b, "Name: %s\n", Escape(p.Name))
	if p.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", Escape(p.Location))
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "Bio: %s", Escape(p.Description))
	}
	return t.send(ctx, b.String())
}

func (t *Telegram) NewPost(ctx context.Context, p model.Post) error {
	var b strings.Builder
	switch p.Kind {
	case model.KindReply:
		fmt.Fprintf(&b, "New reply by %s:\n%s\n", Escape(p.AuthorID), Escape(p.Text))
		fmt.Fprintf(&b, "In reply to: %s", Escape(util.Preview(p.Ref.Post.Text, previewLen)))
	case model.KindRepost:
		fmt.Fprintf(&b, "Repost by %s:\n%s", Escape(p.AuthorID), Escape(util.Preview(p.Ref.Post.Text, previewLen)))
	default:
		fmt.Fprintf(&b, "New post by %s:\n%s", Escape(p.AuthorID), Escape(p.Text))
	}
	return t.send(ctx, b.String())
}

func (t *Telegram) NewLike(ctx context.Context, l model.LikeEvent) error {
	msg := fmt.Sprintf("Liked a post by @%s:\n%s", Escape(l.Author.Username), Escape(util.Preview(l.Post.Text, previewLen)))
	return t.send(ctx, msg)
}

func (t *Telegram) FollowChanged(ctx context.Context, ev model.FollowEvent) error {
	verb := "Followed"
	if ev.Action == model.ActionUnfollow {
		verb = "Unfollowed"
	}
	msg := fmt.Sprintf("%s @%s (%s)", verb, Escape(ev.Target.Username), Escape(ev.Target.Name))
	return t.send(ctx, msg)
}

type sendMessageBody struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// send posts the text to every configured chat, collecting failures so
// one bad chat does not skip the rest.
func (t *Telegram) send(ctx context.Context, text string) error {
	u := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	var errs []error
	for _, chat := range t.chatIDs {
		payload, err := json.Marshal(sendMessageBody{ChatID: chat, Text: text})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.httpClient.Do(req)
		if err != nil {
			errs = append(errs, fmt.Errorf("send to chat %s: %w", chat, err))
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 400 {
			errs = append(errs, fmt.Errorf("send to chat %s: status %d: %s", chat, resp.StatusCode, body))
		}
	}
	return errors.Join(errs...)
}

// Escape backslash-escapes the markdown control characters Telegram
// rejects in plain messages.
func Escape(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '_', '*', '`':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
