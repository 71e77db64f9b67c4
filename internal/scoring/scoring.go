package scoring

import (
	"math"

	"github.com/fragenkreuzen/backend/internal/models"
	"github.com/pkg/errors"
)

// Result is the outcome of a finished attempt.
type Result struct {
	ScorePercent int  `json:"score_percent"`
	Passed       bool `json:"passed"`
}

// Compute turns a count of correct answers over the exam's question count
// into a percentage and a pass/fail outcome.
//
// An exam without questions scores 0 and cannot be passed. The percentage is
// rounded half-up, and the threshold is inclusive.
func Compute(totalQuestions, correctCount int, passThresholdPercent float64) (Result, error) {
	if totalQuestions < 0 || correctCount < 0 {
		return Result{}, errors.Wrapf(models.ErrInvalidInput, "negative count (total=%d, correct=%d)", totalQuestions, correctCount)
	}
	if correctCount > totalQuestions {
		return Result{}, errors.Wrapf(models.ErrInvalidInput, "correct count %d exceeds total %d", correctCount, totalQuestions)
	}
	if totalQuestions == 0 {
		return Result{ScorePercent: 0, Passed: false}, nil
	}

	pct := RoundHalfUp(float64(correctCount) / float64(totalQuestions) * 100)
	return Result{
		ScorePercent: pct,
		Passed:       float64(pct) >= passThresholdPercent,
	}, nil
}

// RoundHalfUp rounds x to the nearest integer, breaking ties toward
// positive infinity (2.5 -> 3, -2.5 -> -2).
func RoundHalfUp(x float64) int {
	f := math.Floor(x)
	if x-f >= 0.5 {
		f++
	}
	return int(f)
}
