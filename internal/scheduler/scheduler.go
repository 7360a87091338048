// Package scheduler drives the schedule phase: snapshot platform occupancy,
// plan slot assignments, and commit final metadata plus publish times.
// Re-running is always safe because occupancy is re-fetched fresh and only
// unscheduled checkpointed items are considered.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"video-publish-scheduler/internal/models"
	"video-publish-scheduler/internal/payload"
	"video-publish-scheduler/internal/platform"
	"video-publish-scheduler/internal/schedule"
	"video-publish-scheduler/internal/telemetry"
)

// ItemStore is the slice of the store the schedule phase needs.
type ItemStore interface {
	UploadedUnscheduled(ctx context.Context, channel string) ([]models.PendingItem, error)
	MarkScheduled(ctx context.Context, id string, publishAt time.Time) error
	RecordScheduleError(ctx context.Context, id, reason string) error
	AppendEvent(ctx context.Context, itemID, event, detail string) error
}

// Options configures one channel's schedule phase.
type Options struct {
	ChannelID      string
	Window         schedule.Window
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Scheduler runs schedule batches for one channel.
type Scheduler struct {
	store      ItemStore
	publisher  platform.Publisher
	thumbnails payload.Source
	opts       Options
	log        zerolog.Logger
}

// New constructs a Scheduler. thumbnails may be nil when no thumbnail
// attachment is wanted.
func New(st ItemStore, pub platform.Publisher, thumbnails payload.Source, opts Options, log zerolog.Logger) *Scheduler {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	return &Scheduler{store: st, publisher: pub, thumbnails: thumbnails, opts: opts, log: log}
}

// Run plans and commits publish slots for every uploaded, unscheduled item
// on the channel. With dryRun the plan is computed and reported but nothing
// is mutated, on the platform or in the store. searchStart, when nonzero,
// floors the scan (e.g. a --start-date flag); the zero value means "from
// now".
func (s *Scheduler) Run(ctx context.Context, channel string, dryRun bool, searchStart time.Time) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     uuid.New().String(),
		Phase:     "schedule",
		Channel:   channel,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	items, err := s.store.UploadedUnscheduled(ctx, channel)
	if err != nil {
		return report, fmt.Errorf("load uploaded items: %w", err)
	}
	if len(items) == 0 {
		s.log.Info().Str("channel", channel).Msg("nothing to schedule")
		return report, nil
	}

	// Occupancy is observed, not owned: other tools and manual edits change
	// it between runs, so it is re-fetched on every invocation.
	scheduled, err := s.publisher.ListScheduled(ctx, s.opts.ChannelID)
	if err != nil {
		return report, fmt.Errorf("list scheduled items: %w", err)
	}
	occupied := make(schedule.OccupiedSet, len(scheduled))
	for _, item := range scheduled {
		occupied.Add(item.PublishAt)
	}

	planItems := make([]schedule.PlanItem, 0, len(items))
	for _, item := range items {
		planItems = append(planItems, schedule.PlanItem{ID: item.ID, ExternalID: item.ExternalID})
	}

	now := time.Now()
	assignments, err := schedule.Plan(now, s.opts.Window, occupied, planItems, searchStart)
	if err != nil {
		if errors.Is(err, schedule.ErrNoSlotAvailable) {
			// Fatal for the whole invocation: the window cannot accommodate
			// the batch. Operator intervention, not a retry.
			return report, err
		}
		return report, fmt.Errorf("plan assignments: %w", err)
	}

	byID := make(map[string]models.PendingItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	for _, a := range assignments {
		at := a.PublishAt
		if dryRun {
			s.log.Info().Str("item", a.ItemID).Str("external_id", a.ExternalID).Time("publish_at", at).Msg("planned (dry-run)")
			report.Add(models.ItemResult{ItemID: a.ItemID, ExternalID: a.ExternalID, Outcome: models.OutcomeSkipped, Reason: "dry-run", PublishAt: &at})
			continue
		}
		report.Add(s.commitOne(ctx, byID[a.ItemID], a))
	}

	s.log.Info().Str("channel", channel).Bool("dry_run", dryRun).Msg(report.Summary())
	return report, nil
}

func (s *Scheduler) commitOne(ctx context.Context, item models.PendingItem, a schedule.Assignment) models.ItemResult {
	log := s.log.With().Str("item", item.ID).Str("external_id", a.ExternalID).Logger()
	at := a.PublishAt

	if err := s.updateWithRetry(ctx, a.ExternalID, item.Metadata, at); err != nil {
		// Left for the next run; occupancy is re-queried fresh there, so a
		// partially committed batch simply continues.
		log.Error().Err(err).Msg("schedule commit failed")
		_ = s.store.RecordScheduleError(ctx, item.ID, err.Error())
		_ = s.store.AppendEvent(ctx, item.ID, "schedule_failed", err.Error())
		telemetry.ScheduleFailures.Inc()
		return models.ItemResult{ItemID: item.ID, ExternalID: a.ExternalID, Outcome: models.OutcomeFailed, Reason: err.Error()}
	}

	if err := s.store.MarkScheduled(ctx, item.ID, at); err != nil {
		log.Error().Err(err).Msg("scheduled on platform but store update failed")
		return models.ItemResult{ItemID: item.ID, ExternalID: a.ExternalID, Outcome: models.OutcomeFailed, Reason: fmt.Sprintf("committed but store update failed: %v", err), PublishAt: &at}
	}
	_ = s.store.AppendEvent(ctx, item.ID, "scheduled", "publish_at="+at.UTC().Format(time.RFC3339))
	telemetry.ScheduleCommits.Inc()

	s.attachThumbnail(ctx, item, log)

	log.Info().Time("publish_at", at).Msg("scheduled")
	return models.ItemResult{ItemID: item.ID, ExternalID: a.ExternalID, Outcome: models.OutcomeSucceeded, PublishAt: &at}
}

// attachThumbnail is best-effort: a thumbnail failure never undoes a
// committed schedule.
func (s *Scheduler) attachThumbnail(ctx context.Context, item models.PendingItem, log zerolog.Logger) {
	if item.ThumbnailRef == "" || s.thumbnails == nil {
		return
	}
	pl, closer, err := s.thumbnails.Open(ctx, item.ThumbnailRef)
	if err != nil {
		log.Warn().Err(err).Msg("thumbnail unavailable")
		return
	}
	defer closer.Close()
	raw, err := io.ReadAll(pl.Body)
	if err != nil {
		log.Warn().Err(err).Msg("read thumbnail")
		return
	}
	encoded, contentType, err := payload.PrepareThumbnail(raw)
	if err != nil {
		log.Warn().Err(err).Msg("prepare thumbnail")
		return
	}
	if err := s.publisher.SetThumbnail(ctx, item.ExternalID, encoded, contentType); err != nil {
		log.Warn().Err(err).Msg("set thumbnail")
		return
	}
	_ = s.store.AppendEvent(ctx, item.ID, "thumbnail_set", item.ThumbnailRef)
}

func (s *Scheduler) updateWithRetry(ctx context.Context, externalID string, meta models.VideoMetadata, publishAt time.Time) error {
	var lastErr error
	backoff := s.opts.BackoffInitial
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		err := s.publisher.UpdateItem(ctx, externalID, meta, publishAt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !platform.IsTransient(err) || attempt == s.opts.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.opts.BackoffMax {
			backoff = s.opts.BackoffMax
		}
	}
	return lastErr
}
