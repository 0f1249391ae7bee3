package origin

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchSnapshotsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "" {
			t.Error("conditional header should not be forwarded")
		}
		if r.Header.Get("Accept") != "text/css" {
			t.Errorf("expected Accept to be forwarded, got %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/css")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("body{}"))
	}))
	defer srv.Close()

	c := NewClient(0)
	entry, err := c.Fetch(context.Background(), "", srv.URL+"/style.css", http.Header{
		"Accept":        {"text/css"},
		"If-None-Match": {`"abc"`},
	})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != http.StatusOK || string(entry.Body) != "body{}" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Header.Get("Content-Type") != "text/css" {
		t.Errorf("unexpected content type %q", entry.Header.Get("Content-Type"))
	}
	if entry.StoredAt.IsZero() {
		t.Error("expected snapshot time")
	}
}

func TestFetchReturnsErrorStatusesAsEntries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	entry, err := NewClient(0).Fetch(context.Background(), http.MethodGet, srv.URL+"/missing", nil)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != http.StatusNotFound || entry.OK() {
		t.Errorf("expected 404 entry, got %d", entry.Status)
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := NewClient(0).Fetch(context.Background(), http.MethodGet, url, nil); err == nil {
		t.Fatal("expected transport error from closed server")
	}
}

func TestFetchStoresDecodedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept-Encoding"), "br") {
			t.Errorf("client Accept-Encoding should not be forwarded, got %q", r.Header.Get("Accept-Encoding"))
		}
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			_, _ = w.Write([]byte("console.log(1)"))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("console.log(1)"))
		_ = gz.Close()
	}))
	defer srv.Close()

	entry, err := NewClient(0).Fetch(context.Background(), http.MethodGet, srv.URL+"/app.js", http.Header{
		"Accept-Encoding": {"gzip, deflate, br"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(entry.Body) != "console.log(1)" {
		t.Errorf("expected decoded body, got %q", entry.Body)
	}
	if entry.Header.Get("Content-Encoding") != "" {
		t.Errorf("stored snapshot should not be encoded, got %q", entry.Header.Get("Content-Encoding"))
	}
}
