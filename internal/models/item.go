package models

import (
	"time"
)

// Item upload statuses persisted in Postgres.
const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
)

// VideoMetadata is the final, user-facing metadata committed during the
// schedule phase.
type VideoMetadata struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	CategoryID      string   `json:"category_id"`
	MadeForKids     bool     `json:"made_for_kids"`
	DefaultLanguage string   `json:"default_language,omitempty"`
}

// PendingItem is a locally-known candidate to publish. ExternalID is empty
// until the upload phase has run; Scheduled flips only after a successful
// metadata+publishAt commit.
type PendingItem struct {
	ID           string        `json:"id"`
	Channel      string        `json:"channel"`
	PayloadRef   string        `json:"payload_ref"`
	ThumbnailRef string        `json:"thumbnail_ref,omitempty"`
	Metadata     VideoMetadata `json:"metadata"`
	Status       string        `json:"status"`
	ExternalID   string        `json:"external_id,omitempty"`
	Scheduled    bool          `json:"scheduled"`
	PublishAt    *time.Time    `json:"publish_at,omitempty"`
	Attempts     int           `json:"attempts"`
	LastError    *string       `json:"last_error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// PublishEvent is a simple audit event row.
type PublishEvent struct {
	ItemID   string    `json:"item_id"`
	Event    string    `json:"event"`
	Detail   string    `json:"detail"`
	Recorded time.Time `json:"recorded_at"`
}
