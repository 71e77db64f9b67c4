// Package srs implements the review scheduler: an SM-2 derived update of
// interval, ease and lapse count for one (user, question) pair.
//
// All functions are pure. Callers load the current state (creating it with
// NewState when the pair has never been graded), apply one transition and
// persist the result atomically.
package srs

import (
	"math"
	"strings"
	"time"

	"github.com/fragenkreuzen/backend/internal/models"
	"github.com/fragenkreuzen/backend/internal/scoring"
	"github.com/pkg/errors"
)

const (
	DefaultStartEase = 2.5
	DefaultEaseMin   = 1.3
	DefaultEaseMax   = 2.7

	// MinEase is the hard floor of the binary scheme.
	MinEase = 1.3

	day = 24 * time.Hour
)

// Rating is the three-way grade of the review endpoint.
type Rating string

const (
	Again Rating = "again"
	Good  Rating = "good"
	Easy  Rating = "easy"
)

// ParseRating accepts "again", "good" or "easy" (case-insensitive).
func ParseRating(s string) (Rating, error) {
	switch r := Rating(strings.ToLower(strings.TrimSpace(s))); r {
	case Again, Good, Easy:
		return r, nil
	default:
		return "", errors.Wrapf(models.ErrInvalidInput, "unknown rating %q", s)
	}
}

// State is the scheduling state of a pair.
type State struct {
	Interval int // days
	Ease     float64
	Lapses   int
	DueAt    time.Time
}

// EaseBounds limit the ease factor in the three-way scheme.
type EaseBounds struct {
	Min float64
	Max float64
}

func DefaultBounds() EaseBounds {
	return EaseBounds{Min: DefaultEaseMin, Max: DefaultEaseMax}
}

// NewState is the state of a pair that has never been graded. It is due
// immediately.
func NewState(startEase float64, now time.Time) State {
	return State{
		Interval: 1,
		Ease:     startEase,
		Lapses:   0,
		DueAt:    now,
	}
}

// ScheduleNext applies a correct/incorrect grading.
//
// A correct answer raises ease by 0.15 and multiplies the interval by the new
// ease. An incorrect answer halves ease (never below MinEase), resets the
// interval to one day and counts a lapse. The due date is now plus the
// interval in 24h steps.
func ScheduleNext(wasCorrect bool, st State, now time.Time) State {
	next := st
	if wasCorrect {
		next.Ease = math.Max(MinEase, st.Ease+0.15)
		next.Interval = max(1, scoring.RoundHalfUp(float64(st.Interval)*next.Ease))
	} else {
		next.Lapses = st.Lapses + 1
		next.Ease = math.Max(MinEase, st.Ease*0.5)
		next.Interval = 1
	}
	next.DueAt = now.Add(time.Duration(next.Interval) * day)
	return next
}

// Rate applies a three-way rating within the given ease bounds. The due date
// advances by whole calendar days in UTC.
func Rate(rating Rating, st State, bounds EaseBounds, now time.Time) (State, error) {
	next := st
	switch rating {
	case Again:
		next.Ease = math.Max(bounds.Min, st.Ease-0.2)
		next.Interval = 1
		next.Lapses = st.Lapses + 1
	case Good:
		next.Interval = max(1, scoring.RoundHalfUp(float64(st.Interval)*st.Ease))
	case Easy:
		next.Ease = math.Min(bounds.Max, st.Ease+0.15)
		next.Interval = max(2, scoring.RoundHalfUp(float64(st.Interval)*next.Ease+1))
	default:
		return st, errors.Wrapf(models.ErrInvalidInput, "unknown rating %q", rating)
	}
	next.DueAt = AddDays(now, next.Interval)
	return next, nil
}

// AddDays moves t forward by n calendar days in UTC, at least one.
func AddDays(t time.Time, n int) time.Time {
	return t.UTC().AddDate(0, 0, max(1, n))
}
