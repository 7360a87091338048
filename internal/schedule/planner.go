package schedule

import (
	"time"
)

// Assignment pairs one uploaded item with its target publish instant (UTC).
type Assignment struct {
	ItemID     string
	ExternalID string
	PublishAt  time.Time
}

// PlanItem is the minimal view of a pending item the planner needs.
type PlanItem struct {
	ID         string
	ExternalID string
}

// Plan assigns one slot per item in the caller-supplied order. Each newly
// assigned slot joins a working copy of the occupied set before the next one
// is computed, so two items in the same batch can never collide even though
// neither was occupied at batch start. The input set is not mutated.
func Plan(now time.Time, w Window, occupied OccupiedSet, items []PlanItem, searchStart time.Time) ([]Assignment, error) {
	if len(items) == 0 {
		return nil, nil
	}

	working := make(OccupiedSet, len(occupied)+len(items))
	for k := range occupied {
		working[k] = struct{}{}
	}

	assignments := make([]Assignment, 0, len(items))
	for _, item := range items {
		slot, err := NextAvailableSlot(now, w, working, searchStart)
		if err != nil {
			return nil, err
		}
		working.Add(slot)
		assignments = append(assignments, Assignment{
			ItemID:     item.ID,
			ExternalID: item.ExternalID,
			PublishAt:  slot,
		})
	}
	return assignments, nil
}
