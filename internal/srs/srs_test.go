package srs

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/fragenkreuzen/backend/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestScheduleNextCorrect(t *testing.T) {
	tests := []struct {
		name string
		in   State
		want State
	}{
		{
			name: "fresh card",
			in:   NewState(DefaultStartEase, now),
			want: State{Interval: 3, Ease: 2.65, Lapses: 0},
		},
		{
			name: "long interval",
			in:   State{Interval: 4, Ease: 2.35, Lapses: 2},
			want: State{Interval: 10, Ease: 2.5, Lapses: 2},
		},
		{
			name: "floor ease",
			in:   State{Interval: 1, Ease: 1.3, Lapses: 5},
			want: State{Interval: 1, Ease: 1.45, Lapses: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScheduleNext(true, tt.in, now)
			assert.Equal(t, tt.want.Interval, got.Interval)
			assert.InDelta(t, tt.want.Ease, got.Ease, 1e-9)
			assert.Equal(t, tt.want.Lapses, got.Lapses)
			assert.Equal(t, now.Add(time.Duration(got.Interval)*24*time.Hour), got.DueAt)
		})
	}
}

func TestScheduleNextIncorrect(t *testing.T) {
	st := State{Interval: 40, Ease: 2.4, Lapses: 1}
	got := ScheduleNext(false, st, now)

	assert.Equal(t, 1, got.Interval)
	assert.Equal(t, 2, got.Lapses)
	assert.InDelta(t, 1.3, got.Ease, 1e-9)
	assert.Equal(t, now.Add(24*time.Hour), got.DueAt)
}

func TestScheduleNextMonotonic(t *testing.T) {
	for interval := 1; interval <= 400; interval += 7 {
		for _, ease := range []float64{1.3, 1.7, 2.5, 3.1} {
			st := State{Interval: interval, Ease: ease, Lapses: 3}

			up := ScheduleNext(true, st, now)
			if up.Interval < st.Interval {
				t.Fatalf("correct grading shrank interval %d -> %d (ease %v)", st.Interval, up.Interval, ease)
			}

			down := ScheduleNext(false, st, now)
			assert.Equal(t, 1, down.Interval)
			assert.Equal(t, st.Lapses+1, down.Lapses)
		}
	}
}

func TestScheduleNextEaseFloor(t *testing.T) {
	st := NewState(DefaultStartEase, now)
	for i := 0; i < 20; i++ {
		st = ScheduleNext(false, st, now)
		require.GreaterOrEqual(t, st.Ease, MinEase)
	}
	assert.Equal(t, MinEase, st.Ease)
	assert.Equal(t, 20, st.Lapses)
}

func TestScheduleNextIsPure(t *testing.T) {
	st := State{Interval: 6, Ease: 2.2, Lapses: 1, DueAt: now}
	first := ScheduleNext(true, st, now)
	second := ScheduleNext(true, st, now)
	assert.Equal(t, first, second)
	assert.Equal(t, State{Interval: 6, Ease: 2.2, Lapses: 1, DueAt: now}, st)
}

func TestRate(t *testing.T) {
	bounds := DefaultBounds()

	t.Run("good on a new state", func(t *testing.T) {
		got, err := Rate(Good, NewState(DefaultStartEase, now), bounds, now)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Interval)
		assert.Equal(t, 2.5, got.Ease)
		assert.Equal(t, 0, got.Lapses)
		assert.Equal(t, now.AddDate(0, 0, 3), got.DueAt)
	})

	t.Run("again", func(t *testing.T) {
		got, err := Rate(Again, State{Interval: 12, Ease: 2.5, Lapses: 0}, bounds, now)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Interval)
		assert.InDelta(t, 2.3, got.Ease, 1e-9)
		assert.Equal(t, 1, got.Lapses)
		assert.Equal(t, now.AddDate(0, 0, 1), got.DueAt)
	})

	t.Run("easy", func(t *testing.T) {
		got, err := Rate(Easy, State{Interval: 4, Ease: 2.5}, bounds, now)
		require.NoError(t, err)
		// round(4*2.65 + 1) = round(11.6)
		assert.InDelta(t, 2.65, got.Ease, 1e-9)
		assert.Equal(t, 12, got.Interval)
		assert.Equal(t, now.AddDate(0, 0, 12), got.DueAt)
	})

	t.Run("easy respects ease max", func(t *testing.T) {
		got, err := Rate(Easy, State{Interval: 1, Ease: 2.65}, bounds, now)
		require.NoError(t, err)
		assert.Equal(t, 2.7, got.Ease)
		assert.Equal(t, 4, got.Interval)
	})

	t.Run("easy interval is at least two days", func(t *testing.T) {
		got, err := Rate(Easy, State{Interval: 0, Ease: 1.3}, bounds, now)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Interval)
	})

	t.Run("good keeps ease", func(t *testing.T) {
		got, err := Rate(Good, State{Interval: 4, Ease: 1.5, Lapses: 2}, bounds, now)
		require.NoError(t, err)
		assert.Equal(t, 1.5, got.Ease)
		assert.Equal(t, 6, got.Interval)
		assert.Equal(t, 2, got.Lapses)
	})

	t.Run("unknown rating", func(t *testing.T) {
		st := State{Interval: 5, Ease: 2}
		got, err := Rate(Rating("hard"), st, bounds, now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrInvalidInput))
		assert.Equal(t, st, got)
	})
}

func TestRateEaseFloorFollowsUserBounds(t *testing.T) {
	bounds := EaseBounds{Min: 1.8, Max: 3.0}
	st := NewState(2.5, now)
	for i := 0; i < 10; i++ {
		var err error
		st, err = Rate(Again, st, bounds, now)
		require.NoError(t, err)
		require.GreaterOrEqual(t, st.Ease, bounds.Min)
	}
	assert.Equal(t, 1.8, st.Ease)
	assert.Equal(t, 10, st.Lapses)
}

func TestRateUsesCalendarDaysInUTC(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// The night before the DST switch: 24h steps and calendar steps differ in
	// local time, but the UTC calendar day always advances by exactly one.
	local := time.Date(2026, 3, 28, 23, 30, 0, 0, berlin)
	got, err := Rate(Again, State{Interval: 3, Ease: 2.5}, DefaultBounds(), local)
	require.NoError(t, err)

	assert.Equal(t, time.UTC, got.DueAt.Location())
	assert.Equal(t, local.UTC().AddDate(0, 0, 1), got.DueAt)
}

func TestParseRating(t *testing.T) {
	for in, want := range map[string]Rating{"again": Again, "Good": Good, " easy ": Easy} {
		got, err := ParseRating(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseRating("hard")
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestAddDays(t *testing.T) {
	assert.Equal(t, now.AddDate(0, 0, 1), AddDays(now, 0))
	assert.Equal(t, now.AddDate(0, 0, 1), AddDays(now, -4))
	assert.Equal(t, time.Date(2026, 4, 13, 9, 30, 0, 0, time.UTC), AddDays(now, 30))
}
