package scheduler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"video-publish-scheduler/internal/models"
	"video-publish-scheduler/internal/platform"
	"video-publish-scheduler/internal/schedule"
)

type fakeStore struct {
	mu        sync.Mutex
	items     []models.PendingItem
	scheduled map[string]time.Time
	errored   map[string]string
	events    []string
}

func newFakeStore(items ...models.PendingItem) *fakeStore {
	return &fakeStore{items: items, scheduled: map[string]time.Time{}, errored: map[string]string{}}
}

func (f *fakeStore) UploadedUnscheduled(context.Context, string) ([]models.PendingItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PendingItem
	for _, item := range f.items {
		if _, done := f.scheduled[item.ID]; !done {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkScheduled(_ context.Context, id string, publishAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[id] = publishAt
	return nil
}

func (f *fakeStore) RecordScheduleError(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errored[id] = reason
	return nil
}

func (f *fakeStore) AppendEvent(_ context.Context, itemID, event, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, itemID+":"+event)
	return nil
}

type fakePublisher struct {
	mu         sync.Mutex
	occupied   []platform.ScheduledItem
	updates    map[string]time.Time
	updateErr  map[string]error
	thumbnails map[string]int
}

func newFakePublisher(occupied ...platform.ScheduledItem) *fakePublisher {
	return &fakePublisher{
		occupied:   occupied,
		updates:    map[string]time.Time{},
		updateErr:  map[string]error{},
		thumbnails: map[string]int{},
	}
}

func (f *fakePublisher) ListScheduled(context.Context, string) ([]platform.ScheduledItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.ScheduledItem(nil), f.occupied...), nil
}

func (f *fakePublisher) UploadPrivate(context.Context, string, platform.Payload, platform.PlaceholderMetadata) (string, error) {
	return "", errors.New("not used in schedule phase")
}

func (f *fakePublisher) UpdateItem(_ context.Context, externalID string, _ models.VideoMetadata, publishAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[externalID]; err != nil {
		return err
	}
	// Committing a slot occupies it from the platform's point of view.
	f.updates[externalID] = publishAt
	f.occupied = append(f.occupied, platform.ScheduledItem{ExternalID: externalID, PublishAt: publishAt})
	return nil
}

func (f *fakePublisher) SetThumbnail(_ context.Context, externalID string, _ []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thumbnails[externalID]++
	return nil
}

type fakeThumbSource struct {
	data map[string][]byte
}

func (f *fakeThumbSource) Open(_ context.Context, ref string) (platform.Payload, io.Closer, error) {
	raw, ok := f.data[ref]
	if !ok {
		return platform.Payload{}, nil, &platform.ValidationError{Op: "open", Err: errors.New("missing " + ref)}
	}
	r := bytes.NewReader(raw)
	return platform.Payload{Name: ref, Body: r, Size: int64(len(raw))}, io.NopCloser(r), nil
}

func testLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func testOptions(loc *time.Location) Options {
	return Options{
		ChannelID: "chan-1",
		Window: schedule.Window{
			Location:      loc,
			StartHour:     6,
			EndHour:       16,
			IntervalHours: 2,
			HorizonDays:   30,
			Buffer:        5 * time.Minute,
		},
		MaxAttempts:    2,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}
}

func uploadedItem(id string) models.PendingItem {
	return models.PendingItem{
		ID:         id,
		Channel:    "mychannel",
		ExternalID: "ext-" + id,
		Status:     models.StatusUploaded,
		Metadata:   models.VideoMetadata{Title: "Title " + id, Description: "Desc", CategoryID: "22"},
	}
}

func TestRunCommitsGapFillingPlan(t *testing.T) {
	loc := testLocation(t)

	// Tomorrow keeps the whole window ahead of the safety buffer regardless
	// of when the test runs.
	next := time.Now().In(loc).AddDate(0, 0, 1)
	day := time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, loc)
	slot := func(h int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, loc).UTC()
	}

	var occupied []platform.ScheduledItem
	for _, h := range []int{6, 8, 12} {
		occupied = append(occupied, platform.ScheduledItem{PublishAt: slot(h)})
	}

	st := newFakeStore(uploadedItem("a"), uploadedItem("b"))
	pub := newFakePublisher(occupied...)
	sched := New(st, pub, nil, testOptions(loc), zerolog.Nop())

	report, err := sched.Run(context.Background(), "mychannel", false, day)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if s, f, _ := report.Counts(); s != 2 || f != 0 {
		t.Fatalf("expected 2 commits, got %d succeeded %d failed", s, f)
	}

	if got, want := pub.updates["ext-a"], slot(10); !got.Equal(want) {
		t.Fatalf("ext-a should fill the first gap: got %s want %s", got, want)
	}
	if got, want := pub.updates["ext-b"], slot(14); !got.Equal(want) {
		t.Fatalf("ext-b should fill the second gap: got %s want %s", got, want)
	}
	if st.scheduled["a"].IsZero() || st.scheduled["b"].IsZero() {
		t.Fatal("items not marked scheduled in store")
	}
}

func TestRunDryRunMutatesNothing(t *testing.T) {
	loc := testLocation(t)
	st := newFakeStore(uploadedItem("a"), uploadedItem("b"))
	pub := newFakePublisher()
	sched := New(st, pub, nil, testOptions(loc), zerolog.Nop())

	report, err := sched.Run(context.Background(), "mychannel", true, time.Time{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pub.updates) != 0 {
		t.Fatalf("dry-run issued %d update calls", len(pub.updates))
	}
	if len(st.scheduled) != 0 {
		t.Fatal("dry-run marked items scheduled")
	}
	if !report.DryRun || len(report.Results) != 2 {
		t.Fatalf("expected 2 planned results in dry-run report, got %+v", report)
	}
	for _, res := range report.Results {
		if res.PublishAt == nil {
			t.Fatalf("dry-run result %s missing planned publish time", res.ItemID)
		}
		if res.Outcome != models.OutcomeSkipped {
			t.Fatalf("dry-run result %s: expected skipped, got %s", res.ItemID, res.Outcome)
		}
	}
}

func TestRunIsIdempotentAcrossReruns(t *testing.T) {
	loc := testLocation(t)
	st := newFakeStore(uploadedItem("a"), uploadedItem("b"))
	pub := newFakePublisher()
	sched := New(st, pub, nil, testOptions(loc), zerolog.Nop())

	if _, err := sched.Run(context.Background(), "mychannel", false, time.Time{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(pub.updates) != 2 {
		t.Fatalf("first run: expected 2 updates, got %d", len(pub.updates))
	}

	// Second run with no platform changes and no new uploads: zero
	// additional update calls.
	report, err := sched.Run(context.Background(), "mychannel", false, time.Time{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(pub.updates) != 2 {
		t.Fatalf("second run issued extra updates: %d total", len(pub.updates))
	}
	if len(report.Results) != 0 {
		t.Fatalf("second run: expected empty report, got %+v", report.Results)
	}
}

func TestRunContinuesPastUpdateFailures(t *testing.T) {
	loc := testLocation(t)
	st := newFakeStore(uploadedItem("a"), uploadedItem("b"))
	pub := newFakePublisher()
	pub.updateErr["ext-a"] = &platform.ValidationError{Op: "update", Err: errors.New("bad category")}
	sched := New(st, pub, nil, testOptions(loc), zerolog.Nop())

	report, err := sched.Run(context.Background(), "mychannel", false, time.Time{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	s, f, _ := report.Counts()
	if s != 1 || f != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %d/%d", s, f)
	}
	if st.errored["a"] == "" {
		t.Fatal("failure reason not recorded for item a")
	}
	if _, done := st.scheduled["a"]; done {
		t.Fatal("failed item must stay unscheduled for the next run")
	}
	if _, done := st.scheduled["b"]; !done {
		t.Fatal("item b should have been committed despite a's failure")
	}
}

func TestRunNoSlotIsFatal(t *testing.T) {
	loc := testLocation(t)
	opts := testOptions(loc)
	opts.Window.HorizonDays = 1

	// 13 items cannot fit in two days of six slots.
	items := make([]models.PendingItem, 13)
	for i := range items {
		items[i] = uploadedItem(string(rune('a' + i)))
	}
	st := newFakeStore(items...)
	pub := newFakePublisher()
	sched := New(st, pub, nil, opts, zerolog.Nop())

	_, err := sched.Run(context.Background(), "mychannel", false, time.Time{})
	if !errors.Is(err, schedule.ErrNoSlotAvailable) {
		t.Fatalf("expected ErrNoSlotAvailable, got %v", err)
	}
	if len(pub.updates) != 0 {
		t.Fatalf("fatal planning error must not issue updates, got %d", len(pub.updates))
	}
}

func TestRunAttachesThumbnails(t *testing.T) {
	loc := testLocation(t)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	item := uploadedItem("a")
	item.ThumbnailRef = "a.png"
	st := newFakeStore(item)
	pub := newFakePublisher()
	thumbs := &fakeThumbSource{data: map[string][]byte{"a.png": buf.Bytes()}}
	sched := New(st, pub, thumbs, testOptions(loc), zerolog.Nop())

	report, err := sched.Run(context.Background(), "mychannel", false, time.Time{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if s, _, _ := report.Counts(); s != 1 {
		t.Fatalf("expected 1 success, got %+v", report.Results)
	}
	if pub.thumbnails["ext-a"] != 1 {
		t.Fatalf("expected 1 thumbnail set, got %d", pub.thumbnails["ext-a"])
	}
}
