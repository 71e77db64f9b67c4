package reviews

import (
	"context"
	"time"

	"github.com/fragenkreuzen/backend/internal/models"
)

const day = 24 * time.Hour

// streaks counts runs of consecutive UTC days with at least one review.
// times must be sorted ascending. The current streak is still alive when the
// last active day is today or yesterday.
func streaks(times []time.Time, now time.Time) (current, longest int) {
	var last time.Time
	run := 0
	for _, t := range times {
		d := t.UTC().Truncate(day)
		switch {
		case run == 0:
			run = 1
		case d.Equal(last):
			continue
		case d.Sub(last) == day:
			run++
		default:
			run = 1
		}
		last = d
		if run > longest {
			longest = run
		}
	}

	if run == 0 {
		return 0, 0
	}
	if today := now.UTC().Truncate(day); today.Sub(last) <= day {
		current = run
	}
	return current, longest
}

// Stats reports review totals and study streaks for the user.
func (s *Service) Stats(ctx context.Context, userID int64) (*models.ReviewStats, error) {
	now := s.now().UTC()
	times, err := s.store.ReviewTimes(ctx, userID)
	if err != nil {
		return nil, err
	}
	due, err := s.store.CountDue(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	st := &models.ReviewStats{TotalReviews: len(times), DueNow: due}
	dayStart := now.Truncate(day)
	for i := len(times) - 1; i >= 0 && !times[i].Before(dayStart); i-- {
		st.ReviewsToday++
	}
	st.CurrentStreak, st.LongestStreak = streaks(times, now)
	return st, nil
}
