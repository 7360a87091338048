package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"video-publish-scheduler/internal/models"
	"video-publish-scheduler/internal/platform"
)

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{
		BaseURL:       srv.URL + "/youtube/v3",
		UploadBaseURL: srv.URL + "/upload/youtube/v3",
		HTTPClient:    srv.Client(),
		UploadClient:  srv.Client(),
		Tokens:        StaticToken("test-token"),
	})
}

func TestListScheduledFiltersPrivateWithPublishAt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mine") != "true" {
			t.Errorf("expected mine=true, got query %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"items":[{"contentDetails":{"relatedPlaylists":{"uploads":"UU123"}}}]}`)
	})
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("playlistId"); got != "UU123" {
			t.Errorf("playlistId = %q, want UU123", got)
		}
		fmt.Fprint(w, `{"items":[
			{"snippet":{"resourceId":{"videoId":"vid-1"}}},
			{"snippet":{"resourceId":{"videoId":"vid-2"}}},
			{"snippet":{"resourceId":{"videoId":"vid-3"}}}
		]}`)
	})
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"items":[
			{"id":"vid-1","snippet":{"title":"Scheduled one"},"status":{"privacyStatus":"private","publishAt":"2025-06-10T11:00:00Z"}},
			{"id":"vid-2","snippet":{"title":"Already public"},"status":{"privacyStatus":"public"}},
			{"id":"vid-3","snippet":{"title":"Private draft"},"status":{"privacyStatus":"private"}}
		]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := newTestClient(srv).ListScheduled(context.Background(), "")
	if err != nil {
		t.Fatalf("ListScheduled: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 scheduled item, got %d: %+v", len(got), got)
	}
	want := time.Date(2025, 6, 10, 11, 0, 0, 0, time.UTC)
	if got[0].ExternalID != "vid-1" || !got[0].PublishAt.Equal(want) {
		t.Fatalf("unexpected item: %+v", got[0])
	}
}

func TestListScheduledEmptyChannel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "UC999" {
			t.Errorf("id = %q, want UC999", got)
		}
		fmt.Fprint(w, `{"items":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := newTestClient(srv).ListScheduled(context.Background(), "UC999")
	if err != nil {
		t.Fatalf("ListScheduled: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no items, got %+v", got)
	}
}

func TestUploadPrivateResumableFlow(t *testing.T) {
	var sessionStarted bool
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		q := r.URL.Query()
		if q.Get("uploadType") != "resumable" || q.Get("part") != "snippet,status" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if got := r.Header.Get("X-Upload-Content-Type"); got != "video/mp4" {
			t.Errorf("X-Upload-Content-Type = %q", got)
		}
		var body videoResource
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode session body: %v", err)
		}
		if body.Status.PrivacyStatus != "private" {
			t.Errorf("session privacy = %q, want private", body.Status.PrivacyStatus)
		}
		if body.Status.PublishAt != "" {
			t.Errorf("upload must not carry publishAt, got %q", body.Status.PublishAt)
		}
		if body.Snippet.Title != "Uploading... (metadata pending)" {
			t.Errorf("placeholder title = %q", body.Snippet.Title)
		}
		sessionStarted = true
		w.Header().Set("Location", "http://"+r.Host+"/upload/session/abc")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/upload/session/abc", func(w http.ResponseWriter, r *http.Request) {
		if !sessionStarted {
			t.Error("payload sent before session was created")
		}
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		if string(raw) != "fake video bytes" {
			t.Errorf("payload body = %q", raw)
		}
		fmt.Fprint(w, `{"id":"vid-new"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pl := platform.Payload{
		Name:        "episode-01.mp4",
		ContentType: "video/mp4",
		Size:        int64(len("fake video bytes")),
		Body:        strings.NewReader("fake video bytes"),
	}
	placeholder := platform.PlaceholderMetadata{
		Title:       "Uploading... (metadata pending)",
		Description: "Metadata pending.",
		CategoryID:  "22",
	}
	id, err := newTestClient(srv).UploadPrivate(context.Background(), "UC999", pl, placeholder)
	if err != nil {
		t.Fatalf("UploadPrivate: %v", err)
	}
	if id != "vid-new" {
		t.Fatalf("id = %q, want vid-new", id)
	}
}

func TestUpdateItemRequestShape(t *testing.T) {
	var got videoResource
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if q := r.URL.Query().Get("part"); q != "snippet,status" {
			t.Errorf("part = %q", q)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	meta := models.VideoMetadata{
		Title:       "Episode 1",
		Description: "The first one.",
		Tags:        []string{"go", "testing"},
		CategoryID:  "28",
	}
	publishAt := time.Date(2025, 6, 10, 16, 0, 0, 0, time.UTC)
	if err := newTestClient(srv).UpdateItem(context.Background(), "vid-1", meta, publishAt); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}

	if got.ID != "vid-1" {
		t.Errorf("id = %q", got.ID)
	}
	if got.Snippet.Title != "Episode 1" || got.Snippet.CategoryID != "28" {
		t.Errorf("unexpected snippet %+v", got.Snippet)
	}
	if got.Status.PrivacyStatus != "private" {
		t.Errorf("privacy = %q, want private until publishAt", got.Status.PrivacyStatus)
	}
	if got.Status.PublishAt != "2025-06-10T16:00:00.000Z" {
		t.Errorf("publishAt = %q, want millisecond RFC 3339", got.Status.PublishAt)
	}
}

func TestUpdateItemTruncatesMetadata(t *testing.T) {
	var got videoResource
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	meta := models.VideoMetadata{
		Title:       strings.Repeat("x", 150),
		Description: strings.Repeat("y", 6000),
	}
	if err := newTestClient(srv).UpdateItem(context.Background(), "vid-1", meta, time.Now()); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if n := len([]rune(got.Snippet.Title)); n != maxTitleLen {
		t.Errorf("title length = %d, want %d", n, maxTitleLen)
	}
	if n := len([]rune(got.Snippet.Description)); n != maxDescriptionLen {
		t.Errorf("description length = %d, want %d", n, maxDescriptionLen)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
		want   string
	}{
		{"server error", http.StatusBadGateway, `oops`, platform.IsTransient, "transient"},
		{"quota exceeded", http.StatusForbidden, `{"error":{"errors":[{"reason":"quotaExceeded"}]}}`, platform.IsQuota, "quota"},
		{"upload limit", http.StatusForbidden, `{"error":{"errors":[{"reason":"uploadLimitExceeded"}]}}`, platform.IsQuota, "quota"},
		{"too many requests", http.StatusTooManyRequests, `slow down`, platform.IsQuota, "quota"},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid categoryId"}}`, platform.IsValidation, "validation"},
		{"plain forbidden", http.StatusForbidden, `{"error":{"errors":[{"reason":"forbidden"}]}}`, platform.IsValidation, "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			err := newTestClient(srv).UpdateItem(context.Background(), "vid-1", models.VideoMetadata{Title: "t"}, time.Now())
			if err == nil {
				t.Fatal("expected an error")
			}
			if !tc.check(err) {
				t.Fatalf("expected %s error, got %T: %v", tc.want, err, err)
			}
		})
	}
}

func TestSetThumbnail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/youtube/v3/thumbnails/set", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("videoId"); got != "vid-1" {
			t.Errorf("videoId = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "image/jpeg" {
			t.Errorf("Content-Type = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) != 3 {
			t.Errorf("body length = %d", len(raw))
		}
		fmt.Fprint(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	if err := newTestClient(srv).SetThumbnail(context.Background(), "vid-1", []byte{1, 2, 3}, "image/jpeg"); err != nil {
		t.Fatalf("SetThumbnail: %v", err)
	}
}
