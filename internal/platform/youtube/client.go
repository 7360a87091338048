// Package youtube implements the platform.Publisher interface against the
// YouTube Data API v3.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"video-publish-scheduler/internal/models"
	"video-publish-scheduler/internal/platform"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 5000
)

// publishAtFormat is the RFC 3339 shape the API expects for publishAt.
const publishAtFormat = "2006-01-02T15:04:05.000Z"

// TokenSource supplies a bearer token per request. Token lifecycle
// (refresh, OAuth flows) is owned elsewhere.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Options configures the client.
type Options struct {
	BaseURL       string
	UploadBaseURL string
	HTTPClient    *http.Client
	UploadClient  *http.Client
	Tokens        TokenSource
	MaxListResult int
}

// Client calls the YouTube Data API. Metadata calls use a short-timeout
// client; payload transfer uses a separate long-timeout client.
type Client struct {
	baseURL    string
	uploadURL  string
	http       *http.Client
	uploadHTTP *http.Client
	tokens     TokenSource
	maxResults int
}

// New builds a client.
func New(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		uploadURL:  strings.TrimSuffix(opts.UploadBaseURL, "/"),
		http:       opts.HTTPClient,
		uploadHTTP: opts.UploadClient,
		tokens:     opts.Tokens,
		maxResults: opts.MaxListResult,
	}
	if c.baseURL == "" {
		c.baseURL = "https://www.googleapis.com/youtube/v3"
	}
	if c.uploadURL == "" {
		c.uploadURL = "https://www.googleapis.com/upload/youtube/v3"
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.uploadHTTP == nil {
		c.uploadHTTP = &http.Client{Timeout: 30 * time.Minute}
	}
	if c.maxResults == 0 {
		c.maxResults = 50
	}
	return c
}

type videoSnippet struct {
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Tags                 []string `json:"tags,omitempty"`
	CategoryID           string   `json:"categoryId,omitempty"`
	DefaultLanguage      string   `json:"defaultLanguage,omitempty"`
	DefaultAudioLanguage string   `json:"defaultAudioLanguage,omitempty"`
}

type videoStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
	PublishAt     string `json:"publishAt,omitempty"`
	MadeForKids   bool   `json:"selfDeclaredMadeForKids"`
}

type videoResource struct {
	ID      string       `json:"id,omitempty"`
	Snippet videoSnippet `json:"snippet"`
	Status  videoStatus  `json:"status"`
}

// ListScheduled walks the channel's uploads playlist and returns every
// private video with a publishAt set.
func (c *Client) ListScheduled(ctx context.Context, channelID string) ([]platform.ScheduledItem, error) {
	playlistID, err := c.uploadsPlaylist(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if playlistID == "" {
		return nil, nil
	}

	ids, err := c.playlistVideoIDs(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var list struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
			Status struct {
				PrivacyStatus string `json:"privacyStatus"`
				PublishAt     string `json:"publishAt"`
			} `json:"status"`
		} `json:"items"`
	}
	q := url.Values{"part": {"snippet,status"}, "id": {strings.Join(ids, ",")}}
	if err := c.getJSON(ctx, "list videos", c.baseURL+"/videos?"+q.Encode(), &list); err != nil {
		return nil, err
	}

	var scheduled []platform.ScheduledItem
	for _, v := range list.Items {
		if v.Status.PrivacyStatus != "private" || v.Status.PublishAt == "" {
			continue
		}
		at, err := time.Parse(time.RFC3339, v.Status.PublishAt)
		if err != nil {
			return nil, &platform.ValidationError{Op: "list videos", Err: fmt.Errorf("unparseable publishAt %q for %s: %w", v.Status.PublishAt, v.ID, err)}
		}
		scheduled = append(scheduled, platform.ScheduledItem{
			ExternalID: v.ID,
			Title:      v.Snippet.Title,
			PublishAt:  at.UTC(),
		})
	}
	return scheduled, nil
}

func (c *Client) uploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	q := url.Values{"part": {"contentDetails"}}
	if channelID != "" {
		q.Set("id", channelID)
	} else {
		q.Set("mine", "true")
	}
	var resp struct {
		Items []struct {
			ContentDetails struct {
				RelatedPlaylists struct {
					Uploads string `json:"uploads"`
				} `json:"relatedPlaylists"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "list channels", c.baseURL+"/channels?"+q.Encode(), &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", nil
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

func (c *Client) playlistVideoIDs(ctx context.Context, playlistID string) ([]string, error) {
	q := url.Values{
		"part":       {"snippet"},
		"playlistId": {playlistID},
		"maxResults": {fmt.Sprintf("%d", c.maxResults)},
	}
	var resp struct {
		Items []struct {
			Snippet struct {
				ResourceID struct {
					VideoID string `json:"videoId"`
				} `json:"resourceId"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "list playlist items", c.baseURL+"/playlistItems?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if id := item.Snippet.ResourceID.VideoID; id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// UploadPrivate runs the two-step resumable upload: create the session with
// placeholder metadata and private visibility, then stream the payload to
// the session URL. Returns the video ID.
func (c *Client) UploadPrivate(ctx context.Context, channelID string, payload platform.Payload, placeholder platform.PlaceholderMetadata) (string, error) {
	body := videoResource{
		Snippet: videoSnippet{
			Title:                truncate(placeholder.Title, maxTitleLen),
			Description:          truncate(placeholder.Description, maxDescriptionLen),
			CategoryID:           placeholder.CategoryID,
			DefaultLanguage:      placeholder.Language,
			DefaultAudioLanguage: placeholder.Language,
		},
		Status: videoStatus{
			PrivacyStatus: "private",
			MadeForKids:   placeholder.MadeForKids,
		},
	}

	sessionURL, err := c.startUploadSession(ctx, body, payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, payload.Body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	if payload.Size > 0 {
		req.ContentLength = payload.Size
	}
	if payload.ContentType != "" {
		req.Header.Set("Content-Type", payload.ContentType)
	}
	if err := c.authorize(ctx, req); err != nil {
		return "", err
	}

	resp, err := c.uploadHTTP.Do(req)
	if err != nil {
		return "", &platform.TransientError{Op: "upload payload", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", classifyResponse("upload payload", resp)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &platform.TransientError{Op: "upload payload", Err: fmt.Errorf("decode response: %w", err)}
	}
	if created.ID == "" {
		return "", &platform.TransientError{Op: "upload payload", Err: fmt.Errorf("no video id in response")}
	}
	return created.ID, nil
}

func (c *Client) startUploadSession(ctx context.Context, body videoResource, payload platform.Payload) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal upload metadata: %w", err)
	}
	u := c.uploadURL + "/videos?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	if payload.ContentType != "" {
		req.Header.Set("X-Upload-Content-Type", payload.ContentType)
	}
	if payload.Size > 0 {
		req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", payload.Size))
	}
	if err := c.authorize(ctx, req); err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &platform.TransientError{Op: "start upload session", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", classifyResponse("start upload session", resp)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", &platform.TransientError{Op: "start upload session", Err: fmt.Errorf("no session location returned")}
	}
	return loc, nil
}

// UpdateItem commits final metadata and the publish instant in one request.
// The video stays private; the platform flips it live at publishAt.
func (c *Client) UpdateItem(ctx context.Context, externalID string, meta models.VideoMetadata, publishAt time.Time) error {
	body := videoResource{
		ID: externalID,
		Snippet: videoSnippet{
			Title:                truncate(meta.Title, maxTitleLen),
			Description:          truncate(meta.Description, maxDescriptionLen),
			Tags:                 meta.Tags,
			CategoryID:           meta.CategoryID,
			DefaultLanguage:      meta.DefaultLanguage,
			DefaultAudioLanguage: meta.DefaultLanguage,
		},
		Status: videoStatus{
			PrivacyStatus: "private",
			PublishAt:     publishAt.UTC().Format(publishAtFormat),
			MadeForKids:   meta.MadeForKids,
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/videos?part=snippet,status", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &platform.TransientError{Op: "update video", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return classifyResponse("update video", resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// SetThumbnail attaches a thumbnail image to a video.
func (c *Client) SetThumbnail(ctx context.Context, externalID string, image []byte, contentType string) error {
	u := c.uploadURL + "/thumbnails/set?videoId=" + url.QueryEscape(externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(image))
	if err != nil {
		return fmt.Errorf("build thumbnail request: %w", err)
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &platform.TransientError{Op: "set thumbnail", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return classifyResponse("set thumbnail", resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &platform.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return classifyResponse(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &platform.TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func classifyResponse(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	body := string(raw)
	quotaHint := strings.Contains(body, "quotaExceeded") || strings.Contains(body, "uploadLimitExceeded") || strings.Contains(body, "rateLimitExceeded")
	return platform.ClassifyHTTP(op, resp.StatusCode, body, quotaHint)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
