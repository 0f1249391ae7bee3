package push

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/text/language"
)

type recordingNotifier struct {
	shown   []Notification
	opened  []string
	failErr error
}

func (r *recordingNotifier) ShowNotification(_ context.Context, n Notification) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.shown = append(r.shown, n)
	return nil
}

func (r *recordingNotifier) OpenWindow(_ context.Context, url string) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.opened = append(r.opened, url)
	return nil
}

func newMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux, "/_sw/")
	return mux
}

func post(mux http.Handler, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	for k, vv := range header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPushUsesPayload(t *testing.T) {
	n := &recordingNotifier{}
	rec := post(newMux(NewHandler(n)), "/_sw/push", "Shopping list updated", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(n.shown) != 1 {
		t.Fatalf("expected one notification, got %d", len(n.shown))
	}
	got := n.shown[0]
	if got.Title != "VoiceNotes" || got.Body != "Shopping list updated" {
		t.Errorf("unexpected notification %+v", got)
	}
	if got.Icon != "./icons/icon-192.png" || got.Badge != got.Icon {
		t.Errorf("unexpected icon/badge %q/%q", got.Icon, got.Badge)
	}
	if len(got.Vibrate) != 3 || len(got.Actions) != 2 || got.Actions[0].Action != "open" {
		t.Errorf("unexpected vibrate/actions %v %v", got.Vibrate, got.Actions)
	}
}

func TestPushDefaultsBody(t *testing.T) {
	cases := []struct {
		lang, body, action string
	}{
		{"", "New note", "Open"},
		{"pl-PL,pl;q=0.9", "Nowa notatka", "Otwórz"},
	}
	for _, tc := range cases {
		n := &recordingNotifier{}
		rec := post(newMux(NewHandler(n)), "/_sw/push", "  ", http.Header{"Accept-Language": {tc.lang}})
		if rec.Code != http.StatusNoContent || len(n.shown) != 1 {
			t.Fatalf("lang %q: expected a notification, got %d", tc.lang, rec.Code)
		}
		if n.shown[0].Body != tc.body || n.shown[0].Actions[0].Title != tc.action {
			t.Errorf("lang %q: got body %q action %q", tc.lang, n.shown[0].Body, n.shown[0].Actions[0].Title)
		}
	}
}

func TestPushNotifierFailure(t *testing.T) {
	n := &recordingNotifier{failErr: errors.New("redis down")}
	rec := post(newMux(NewHandler(n)), "/_sw/push", "x", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestNotificationClick(t *testing.T) {
	cases := []struct {
		target, body string
		opens        bool
	}{
		{"/_sw/notificationclick", "", true},
		{"/_sw/notificationclick?action=open", "", true},
		{"/_sw/notificationclick", `{"action":"open"}`, true},
		{"/_sw/notificationclick?action=close", "", false},
		{"/_sw/notificationclick", `{"action":"close"}`, false},
	}
	for _, tc := range cases {
		n := &recordingNotifier{}
		rec := post(newMux(NewHandler(n)), tc.target, tc.body, nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("%s %s: expected 204, got %d", tc.target, tc.body, rec.Code)
		}
		if opened := len(n.opened) == 1 && n.opened[0] == "/"; opened != tc.opens {
			t.Errorf("%s %s: opened=%v, want %v", tc.target, tc.body, n.opened, tc.opens)
		}
	}
}

func TestSync(t *testing.T) {
	calls := 0
	h := NewHandler(&recordingNotifier{})
	h.SyncNotes = func(context.Context) error {
		calls++
		return nil
	}
	mux := newMux(h)

	if rec := post(mux, "/_sw/sync?tag=sync-notes", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := post(mux, "/_sw/sync", `{"tag":"other"}`, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for unknown tag, got %d", rec.Code)
	}
	if calls != 1 {
		t.Errorf("expected sync hook to run once, got %d", calls)
	}
	if rec := post(mux, "/_sw/sync", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without tag, got %d", rec.Code)
	}
}

func TestSyncDefaultHookIsNoop(t *testing.T) {
	rec := post(newMux(NewHandler(&recordingNotifier{})), "/_sw/sync", "", http.Header{"X-Sync-Tag": {SyncNotesTag}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestNoteSaved(t *testing.T) {
	cases := []struct {
		tag       language.Tag
		title     string
		wantTitle string
		wantBody  string
	}{
		{language.English, "Groceries", "Note saved!", "Groceries"},
		{language.English, "  ", "Note saved!", "New note"},
		{language.Polish, "", "Notatka zapisana!", "Nowa notatka"},
	}
	for _, tc := range cases {
		n := NoteSaved(tc.tag, tc.title)
		if n.Title != tc.wantTitle || n.Body != tc.wantBody {
			t.Errorf("%s %q: got %q/%q, want %q/%q", tc.tag, tc.title, n.Title, n.Body, tc.wantTitle, tc.wantBody)
		}
		if n.Icon == "" || len(n.Vibrate) != 3 {
			t.Errorf("%s %q: expected icon and vibrate pattern, got %+v", tc.tag, tc.title, n)
		}
	}
}
