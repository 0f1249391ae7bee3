package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/52poke/voicenotes/internal/lang"
	"github.com/52poke/voicenotes/internal/metrics"
)

const (
	SyncNotesTag = "sync-notes"

	defaultTitle = "VoiceNotes"
	defaultIcon  = "./icons/icon-192.png"
	maxPayload   = 4 << 10
)

var vibratePattern = []int{200, 100, 200}

// Handler receives push, notification click and background sync events.
type Handler struct {
	Notifier Notifier
	Title    string
	Icon     string
	// RootURL is opened when a notification is clicked.
	RootURL string
	// SyncNotes runs for the sync-notes tag. Nil means the no-op hook.
	SyncNotes func(ctx context.Context) error
}

func NewHandler(n Notifier) *Handler {
	return &Handler{Notifier: n, Title: defaultTitle, Icon: defaultIcon, RootURL: "/"}
}

func (h *Handler) Register(mux *http.ServeMux, prefix string) {
	prefix = strings.TrimRight(prefix, "/")
	mux.HandleFunc("POST "+prefix+"/push", h.Push)
	mux.HandleFunc("POST "+prefix+"/notificationclick", h.NotificationClick)
	mux.HandleFunc("POST "+prefix+"/sync", h.Sync)
}

func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	metrics.PushEventsTotal.WithLabelValues("push").Inc()
	tag := lang.FromAcceptLanguage(r.Header.Get("Accept-Language"))

	body := readText(r)
	if body == "" {
		body = lang.Text(tag, lang.KeyDefaultBody)
	}

	n := Notification{
		Title:   h.Title,
		Body:    body,
		Icon:    h.Icon,
		Badge:   h.Icon,
		Vibrate: append([]int(nil), vibratePattern...),
		Actions: []Action{
			{Action: "open", Title: lang.Text(tag, lang.KeyOpen)},
			{Action: "close", Title: lang.Text(tag, lang.KeyClose)},
		},
		Lang: tag.String(),
	}
	if err := h.Notifier.ShowNotification(r.Context(), n); err != nil {
		log.Printf("push: show notification: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NoteSaved is shown after a note is saved. The body is the title as the
// user typed it, or the default body when there was none.
func NoteSaved(tag language.Tag, title string) Notification {
	body := strings.TrimSpace(title)
	if body == "" {
		body = lang.Text(tag, lang.KeyDefaultBody)
	}
	return Notification{
		Title:   lang.Text(tag, lang.KeySaved),
		Body:    body,
		Icon:    defaultIcon,
		Badge:   defaultIcon,
		Vibrate: append([]int(nil), vibratePattern...),
		Lang:    tag.String(),
	}
}

func (h *Handler) NotificationClick(w http.ResponseWriter, r *http.Request) {
	metrics.PushEventsTotal.WithLabelValues("notificationclick").Inc()
	action := readField(r, "action", "X-Notification-Action")
	if action == "" || action == "open" {
		if err := h.Notifier.OpenWindow(r.Context(), h.RootURL); err != nil {
			log.Printf("push: open window: %v", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	metrics.PushEventsTotal.WithLabelValues("sync").Inc()
	tag := readField(r, "tag", "X-Sync-Tag")
	if tag == "" {
		http.Error(w, "tag required", http.StatusBadRequest)
		return
	}
	log.Printf("push: background sync %q", tag)
	if tag == SyncNotesTag {
		sync := h.SyncNotes
		if sync == nil {
			sync = syncNotes
		}
		if err := sync(r.Context()); err != nil {
			log.Printf("push: sync %q: %v", tag, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// syncNotes is the extension point for server synchronisation; there is
// nothing to synchronise with yet.
func syncNotes(context.Context) error {
	log.Printf("push: syncing notes")
	return nil
}

func readText(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func readField(r *http.Request, name, header string) string {
	if v := r.URL.Query().Get(name); v != "" {
		return strings.TrimSpace(v)
	}
	if v := r.Header.Get(header); v != "" {
		return strings.TrimSpace(v)
	}
	v, err := readJSONField(r, name)
	if err != nil {
		return ""
	}
	return v
}

func readJSONField(r *http.Request, name string) (string, error) {
	if r.Body == nil {
		return "", errors.New("empty body")
	}
	defer r.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayload)).Decode(&payload); err != nil {
		return "", err
	}
	v, ok := payload[name].(string)
	if !ok {
		return "", errors.New(name + " not found")
	}
	return strings.TrimSpace(v), nil
}
