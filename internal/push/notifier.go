package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

type Notification struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Icon    string   `json:"icon,omitempty"`
	Badge   string   `json:"badge,omitempty"`
	Vibrate []int    `json:"vibrate,omitempty"`
	Actions []Action `json:"actions,omitempty"`
	Lang    string   `json:"lang,omitempty"`
}

// Notifier is where notifications and window requests are delivered.
// Nothing is acknowledged or retried.
type Notifier interface {
	ShowNotification(ctx context.Context, n Notification) error
	OpenWindow(ctx context.Context, url string) error
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) ShowNotification(_ context.Context, n Notification) error {
	log.Printf("push: notification %q: %s", n.Title, n.Body)
	return nil
}

func (LogNotifier) OpenWindow(_ context.Context, url string) error {
	log.Printf("push: open window %s", url)
	return nil
}

// RedisNotifier publishes notification events on a pub/sub channel for
// whatever front end is subscribed.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

type event struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
	URL          string        `json:"url,omitempty"`
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "voicenotes:notifications"
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (r *RedisNotifier) ShowNotification(ctx context.Context, n Notification) error {
	return r.publish(ctx, event{Type: "show", Notification: &n})
}

func (r *RedisNotifier) OpenWindow(ctx context.Context, url string) error {
	return r.publish(ctx, event{Type: "open", URL: url})
}

func (r *RedisNotifier) publish(ctx context.Context, ev event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}
