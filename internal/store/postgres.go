package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"video-publish-scheduler/internal/models"
)

// ErrAlreadyUploaded is returned when a claim would overwrite an existing
// external id. The store is the upload checkpoint; once an external id is
// recorded it is never replaced.
var ErrAlreadyUploaded = errors.New("item already has an external id")

// Store wraps pgxpool for Postgres persistence of items and publish events.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ImportItem inserts a pending item. Re-importing an existing id is a no-op;
// returns whether a row was actually created.
func (s *Store) ImportItem(ctx context.Context, item models.PendingItem) (bool, error) {
	metaJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO items (id, channel, payload_ref, thumbnail_ref, metadata, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO NOTHING
	`, item.ID, item.Channel, item.PayloadRef, emptyToNil(item.ThumbnailRef), metaJSON, models.StatusPending, now)
	if err != nil {
		return false, fmt.Errorf("insert item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PendingForUpload returns items on the channel without an external id,
// oldest first. Previously failed items come back too: a fresh run is the
// retry path.
func (s *Store) PendingForUpload(ctx context.Context, channel string, limit int) ([]models.PendingItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE channel = $1 AND external_id IS NULL
		ORDER BY created_at
		LIMIT $2
	`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// UploadedUnscheduled returns items that hold an external id but have not
// been committed to a publish slot yet, oldest first.
func (s *Store) UploadedUnscheduled(ctx context.Context, channel string) ([]models.PendingItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE channel = $1 AND status = $2 AND NOT scheduled
		ORDER BY created_at
	`, channel, models.StatusUploaded)
	if err != nil {
		return nil, fmt.Errorf("query uploaded items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// ClaimExternalID durably records the platform identifier for an item,
// single-writer. A second claim for the same item fails with
// ErrAlreadyUploaded rather than overwriting the checkpoint.
func (s *Store) ClaimExternalID(ctx context.Context, id, externalID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE items
		SET external_id = $2, status = $3, last_error = NULL, updated_at = NOW()
		WHERE id = $1 AND external_id IS NULL
	`, id, externalID, models.StatusUploaded)
	if err != nil {
		return fmt.Errorf("claim external id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var existing pgtype.Text
		err := s.pool.QueryRow(ctx, `SELECT external_id FROM items WHERE id = $1`, id).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("item %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("check external id: %w", err)
		}
		return ErrAlreadyUploaded
	}
	return nil
}

// MarkUploadFailed records a terminal per-run upload failure. The item stays
// eligible for a later run because its external id remains unset.
func (s *Store) MarkUploadFailed(ctx context.Context, id, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE items
		SET status = $2, attempts = attempts + 1, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusFailed, reason)
	return err
}

// MarkScheduled flips the scheduled flag after a successful metadata+publish
// commit on the platform.
func (s *Store) MarkScheduled(ctx context.Context, id string, publishAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE items
		SET scheduled = TRUE, publish_at = $2, last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, publishAt.UTC())
	return err
}

// RecordScheduleError keeps the failure reason without touching the
// scheduled flag, so a re-run picks the item up again.
func (s *Store) RecordScheduleError(ctx context.Context, id, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE items SET last_error = $2, updated_at = NOW() WHERE id = $1
	`, id, reason)
	return err
}

// GetItem fetches one item by id.
func (s *Store) GetItem(ctx context.Context, id string) (models.PendingItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	if err != nil {
		return models.PendingItem{}, fmt.Errorf("query item: %w", err)
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil {
		return models.PendingItem{}, err
	}
	if len(items) == 0 {
		return models.PendingItem{}, fmt.Errorf("item %s not found", id)
	}
	return items[0], nil
}

// Counts returns per-state item counts for a channel.
func (s *Store) Counts(ctx context.Context, channel string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, scheduled, COUNT(*)
		FROM items
		WHERE channel = $1
		GROUP BY status, scheduled
	`, channel)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var scheduled bool
		var n int
		if err := rows.Scan(&status, &scheduled, &n); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		if scheduled {
			counts["scheduled"] += n
		} else {
			counts[status] += n
		}
	}
	return counts, rows.Err()
}

// AppendEvent adds a publish event row.
func (s *Store) AppendEvent(ctx context.Context, itemID, event, detail string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO publish_events (item_id, event, detail, ts)
		VALUES ($1, $2, $3, NOW())
	`, itemID, event, detail)
	return err
}

const itemColumns = `id, channel, payload_ref, thumbnail_ref, metadata, status, external_id, scheduled, publish_at, attempts, last_error, created_at, updated_at`

func scanItems(rows pgx.Rows) ([]models.PendingItem, error) {
	var items []models.PendingItem
	for rows.Next() {
		var item models.PendingItem
		var metaJSON []byte
		var thumbRef, externalID, lastErr pgtype.Text
		var publishAt pgtype.Timestamptz

		if err := rows.Scan(&item.ID, &item.Channel, &item.PayloadRef, &thumbRef, &metaJSON, &item.Status,
			&externalID, &item.Scheduled, &publishAt, &item.Attempts, &lastErr, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &item.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		if thumbRef.Valid {
			item.ThumbnailRef = thumbRef.String
		}
		if externalID.Valid {
			item.ExternalID = externalID.String
		}
		if publishAt.Valid {
			at := publishAt.Time.UTC()
			item.PublishAt = &at
		}
		item.LastError = textPtr(lastErr)
		items = append(items, item)
	}
	return items, rows.Err()
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
