// Package uploader drives the upload phase: transfer payloads with
// placeholder metadata, checkpoint the returned external ids, never touch
// scheduling.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"video-publish-scheduler/internal/models"
	"video-publish-scheduler/internal/payload"
	"video-publish-scheduler/internal/platform"
	"video-publish-scheduler/internal/quota"
	"video-publish-scheduler/internal/store"
	"video-publish-scheduler/internal/telemetry"
)

// Placeholder metadata attached during upload. Never user-facing: visibility
// stays private until the schedule phase commits the real metadata.
const (
	placeholderTitle       = "Uploading... (metadata pending)"
	placeholderDescription = "This video is being processed. Metadata will be updated shortly."
)

// ItemStore is the slice of the store the upload phase needs.
type ItemStore interface {
	PendingForUpload(ctx context.Context, channel string, limit int) ([]models.PendingItem, error)
	ClaimExternalID(ctx context.Context, id, externalID string) error
	MarkUploadFailed(ctx context.Context, id, reason string) error
	AppendEvent(ctx context.Context, itemID, event, detail string) error
}

// Options tunes retries and concurrency.
type Options struct {
	Concurrency    int
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	ChannelID      string
	CategoryID     string
	MadeForKids    bool
	Language       string
}

// Uploader runs upload batches for one channel.
type Uploader struct {
	store     ItemStore
	publisher platform.Publisher
	source    payload.Source
	ledger    *quota.Ledger
	opts      Options
	log       zerolog.Logger
}

// New constructs an Uploader. ledger may be nil to disable quota tracking.
func New(st ItemStore, pub platform.Publisher, src payload.Source, ledger *quota.Ledger, opts Options, log zerolog.Logger) *Uploader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 2 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 2 * time.Minute
	}
	return &Uploader{store: st, publisher: pub, source: src, ledger: ledger, opts: opts, log: log}
}

// Run uploads up to limit pending items. Failures are isolated per item; a
// quota refusal stops intake of new items without disturbing in-flight or
// finished ones.
func (u *Uploader) Run(ctx context.Context, channel string, limit int) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     uuid.New().String(),
		Phase:     "upload",
		Channel:   channel,
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	items, err := u.store.PendingForUpload(ctx, channel, limit)
	if err != nil {
		return report, fmt.Errorf("load pending items: %w", err)
	}
	if len(items) == 0 {
		u.log.Info().Str("channel", channel).Msg("no items pending upload")
		return report, nil
	}
	u.log.Info().Str("channel", channel).Int("count", len(items)).Int("limit", limit).Msg("starting upload batch")

	jobs := make(chan models.PendingItem)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	addResult := func(res models.ItemResult) {
		mu.Lock()
		report.Add(res)
		mu.Unlock()
	}

	for w := 0; w < u.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				addResult(u.uploadOne(ctx, item))
			}
		}()
	}

	quotaExhausted := false
	for _, item := range items {
		if ctx.Err() != nil {
			addResult(models.ItemResult{ItemID: item.ID, Outcome: models.OutcomeSkipped, Reason: "run cancelled"})
			continue
		}
		if quotaExhausted {
			addResult(models.ItemResult{ItemID: item.ID, Outcome: models.OutcomeSkipped, Reason: "daily upload quota exhausted"})
			continue
		}
		allowed, remaining, err := u.ledger.Reserve(ctx)
		if err != nil {
			addResult(models.ItemResult{ItemID: item.ID, Outcome: models.OutcomeFailed, Reason: fmt.Sprintf("quota ledger: %v", err)})
			continue
		}
		if !allowed {
			telemetry.QuotaRejects.Inc()
			quotaExhausted = true
			u.log.Warn().Str("channel", channel).Msg("daily upload quota exhausted, stopping intake")
			addResult(models.ItemResult{ItemID: item.ID, Outcome: models.OutcomeSkipped, Reason: "daily upload quota exhausted"})
			continue
		}
		if remaining >= 0 {
			u.log.Debug().Int("remaining", remaining).Msg("quota reserved")
		}
		jobs <- item
	}
	close(jobs)
	wg.Wait()

	u.log.Info().Str("channel", channel).Msg(report.Summary())
	return report, nil
}

func (u *Uploader) uploadOne(ctx context.Context, item models.PendingItem) models.ItemResult {
	log := u.log.With().Str("item", item.ID).Logger()

	placeholder := platform.PlaceholderMetadata{
		Title:       placeholderTitle,
		Description: placeholderDescription,
		CategoryID:  u.opts.CategoryID,
		MadeForKids: u.opts.MadeForKids,
		Language:    u.opts.Language,
	}

	telemetry.UploadsInFlight.Inc()
	defer telemetry.UploadsInFlight.Dec()

	externalID, err := u.uploadWithRetry(ctx, item, placeholder)
	if err != nil {
		if errors.Is(err, errPayloadUnavailable) {
			// Nothing reached the platform, so give the reservation back.
			_ = u.ledger.Release(ctx)
		}
		if platform.IsQuota(err) {
			// The platform itself refused on quota; the item stays pending
			// for tomorrow's run.
			log.Warn().Err(err).Msg("platform quota refusal")
			return models.ItemResult{ItemID: item.ID, Outcome: models.OutcomeSkipped, Reason: err.Error()}
		}
		log.Error().Err(err).Msg("upload failed")
		_ = u.store.MarkUploadFailed(ctx, item.ID, err.Error())
		_ = u.store.AppendEvent(ctx, item.ID, "upload_failed", err.Error())
		telemetry.UploadsFailed.Inc()
		return models.ItemResult{ItemID: item.ID, Outcome: models.OutcomeFailed, Reason: err.Error()}
	}

	if err := u.store.ClaimExternalID(ctx, item.ID, externalID); err != nil {
		if errors.Is(err, store.ErrAlreadyUploaded) {
			log.Warn().Str("external_id", externalID).Msg("item already checkpointed, keeping first id")
			telemetry.UploadsSkipped.Inc()
			return models.ItemResult{ItemID: item.ID, ExternalID: externalID, Outcome: models.OutcomeSkipped, Reason: "already uploaded"}
		}
		// The platform holds the payload but our checkpoint write failed.
		// Surface loudly: re-running would re-upload.
		log.Error().Err(err).Str("external_id", externalID).Msg("checkpoint write failed after upload")
		return models.ItemResult{ItemID: item.ID, ExternalID: externalID, Outcome: models.OutcomeFailed, Reason: fmt.Sprintf("uploaded as %s but checkpoint failed: %v", externalID, err)}
	}

	_ = u.store.AppendEvent(ctx, item.ID, "uploaded", "external_id="+externalID)
	telemetry.UploadsSucceeded.Inc()
	log.Info().Str("external_id", externalID).Msg("uploaded")
	return models.ItemResult{ItemID: item.ID, ExternalID: externalID, Outcome: models.OutcomeSucceeded}
}

// errPayloadUnavailable marks failures where the payload never left disk.
var errPayloadUnavailable = errors.New("payload unavailable")

// uploadWithRetry reopens the payload for every attempt; a partially
// consumed reader from a failed transfer is never reused.
func (u *Uploader) uploadWithRetry(ctx context.Context, item models.PendingItem, placeholder platform.PlaceholderMetadata) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= u.opts.MaxAttempts; attempt++ {
		pl, closer, err := u.source.Open(ctx, item.PayloadRef)
		if err != nil {
			return "", fmt.Errorf("%w: %w", errPayloadUnavailable, err)
		}
		externalID, err := u.publisher.UploadPrivate(ctx, u.opts.ChannelID, pl, placeholder)
		closer.Close()
		if err == nil {
			return externalID, nil
		}
		lastErr = err
		if !platform.IsTransient(err) || attempt == u.opts.MaxAttempts {
			return "", err
		}
		wait := backoffWithJitter(u.opts.BackoffInitial, u.opts.BackoffMax, attempt)
		u.log.Warn().Str("item", item.ID).Err(err).Dur("backoff", wait).Int("attempt", attempt).Msg("transient upload error, retrying")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait/2) + 1))
	return wait/2 + jitter
}
