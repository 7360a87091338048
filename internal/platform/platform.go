// Package platform defines the boundary to the publishing platform. The core
// phases depend only on these interfaces so they can run against in-memory
// fakes in tests and against the YouTube client in production.
package platform

import (
	"context"
	"io"
	"time"

	"video-publish-scheduler/internal/models"
)

// ScheduledItem is one already-claimed slot as reported by the platform's
// read API. PublishAt is an absolute instant; timezone handling is the
// caller's job.
type ScheduledItem struct {
	ExternalID string
	Title      string
	PublishAt  time.Time
}

// Payload is a media payload ready for transfer.
type Payload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// PlaceholderMetadata is the fixed, non-user-facing metadata attached during
// the upload phase. Final metadata arrives only with the schedule commit.
type PlaceholderMetadata struct {
	Title       string
	Description string
	CategoryID  string
	MadeForKids bool
	Language    string
}

// Publisher is the write/read surface of the publishing platform. Both write
// operations must be safe to retry: re-sending an update with the same final
// values has no additional effect, and a failed upload leaves nothing to
// clean up on our side.
type Publisher interface {
	// ListScheduled returns every currently-scheduled item on the channel.
	ListScheduled(ctx context.Context, channelID string) ([]ScheduledItem, error)

	// UploadPrivate transfers the payload with placeholder metadata and
	// private visibility, returning the durable external identifier.
	UploadPrivate(ctx context.Context, channelID string, payload Payload, placeholder PlaceholderMetadata) (string, error)

	// UpdateItem commits final metadata and the publish instant in one
	// request. The item stays private until the platform flips it live at
	// publishAt.
	UpdateItem(ctx context.Context, externalID string, meta models.VideoMetadata, publishAt time.Time) error

	// SetThumbnail attaches a thumbnail image to an uploaded item.
	SetThumbnail(ctx context.Context, externalID string, image []byte, contentType string) error
}
