package attempts

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/fragenkreuzen/backend/internal/metrics"
	"github.com/fragenkreuzen/backend/internal/models"
	"github.com/fragenkreuzen/backend/internal/scoring"
)

const maxPageSize = 100

type store interface {
	CreateAttempt(ctx context.Context, userID, examID int64, now time.Time) (*models.Attempt, error)
	GetAttempt(ctx context.Context, attemptID int64) (*models.Attempt, error)
	ListAttempts(ctx context.Context, userID int64, limit, offset int) ([]models.Attempt, int, error)
	GetAnswers(ctx context.Context, attemptID int64) ([]models.AnswerRecord, error)
	SaveAnswer(ctx context.Context, userID int64, rec models.AnswerRecord) (*models.AnswerRecord, error)
	Heartbeat(ctx context.Context, userID, attemptID int64, elapsedSec int) (*models.Attempt, error)
	Finish(ctx context.Context, userID, attemptID int64, elapsedSec *int, now time.Time, score ScoreFunc) (*FinishResult, error)
}

// catalog answers questions about exam content.
type catalog interface {
	CheckQuestionInExam(ctx context.Context, examID, questionID int64) error
	ValidateOption(ctx context.Context, questionID, optionID int64) (bool, error)
}

// outcomeRecorder feeds answer correctness into the review scheduler.
type outcomeRecorder interface {
	RecordOutcome(ctx context.Context, userID, questionID int64, correct bool) (*models.ReviewState, error)
}

type Service struct {
	store   store
	catalog catalog
	reviews outcomeRecorder
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store store, catalog catalog, reviews outcomeRecorder, m *metrics.Metrics) *Service {
	return &Service{store: store, catalog: catalog, reviews: reviews, metrics: m, now: time.Now}
}

func (s *Service) Start(ctx context.Context, userID, examID int64) (*models.Attempt, error) {
	a, err := s.store.CreateAttempt(ctx, userID, examID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "attempt started", "attempt_id", a.ID, "user_id", userID, "exam_id", examID)
	return a, nil
}

// ownedAttempt loads the attempt and checks that userID owns it.
func (s *Service) ownedAttempt(ctx context.Context, userID, attemptID int64) (*models.Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, errors.Wrapf(models.ErrForbidden, "attempt %d", attemptID)
	}
	return a, nil
}

// Get returns the attempt with the answers given so far.
func (s *Service) Get(ctx context.Context, userID, attemptID int64) (*models.AttemptResponse, error) {
	a, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.GetAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return &models.AttemptResponse{OK: true, Attempt: *a, Answers: answers}, nil
}

func (s *Service) List(ctx context.Context, userID int64, page, pageSize int) (*models.AttemptListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	attempts, total, err := s.store.ListAttempts(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	return &models.AttemptListResponse{Attempts: attempts, Total: total, Page: page, PageSize: pageSize}, nil
}

// Answer records the selected option for a question of the attempt. Correctness
// is always derived from the stored option. The review scheduler is updated
// afterwards; its failure is logged and does not fail the answer.
func (s *Service) Answer(ctx context.Context, userID, attemptID, questionID, optionID int64) (*models.AnswerRecord, error) {
	a, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Finished() {
		return nil, errors.Wrapf(models.ErrAlreadyFinished, "attempt %d", attemptID)
	}
	if err := s.catalog.CheckQuestionInExam(ctx, a.ExamID, questionID); err != nil {
		return nil, err
	}
	correct, err := s.catalog.ValidateOption(ctx, questionID, optionID)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.SaveAnswer(ctx, userID, models.AnswerRecord{
		AttemptID:        attemptID,
		QuestionID:       questionID,
		SelectedOptionID: optionID,
		IsCorrect:        correct,
		AnsweredAt:       s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.reviews.RecordOutcome(ctx, userID, questionID, correct); err != nil {
		slog.WarnContext(ctx, "failed to record review outcome",
			"user_id", userID,
			"question_id", questionID,
			"error", err,
		)
	}
	return rec, nil
}

func (s *Service) Heartbeat(ctx context.Context, userID, attemptID int64, elapsedSec int) (*models.Attempt, error) {
	if elapsedSec < 0 {
		return nil, errors.Wrap(models.ErrInvalidInput, "elapsed_sec must not be negative")
	}
	return s.store.Heartbeat(ctx, userID, attemptID, elapsedSec)
}

func (s *Service) Finish(ctx context.Context, userID, attemptID int64, elapsedSec *int) (*models.FinishAttemptResponse, error) {
	if elapsedSec != nil && *elapsedSec < 0 {
		return nil, errors.Wrap(models.ErrInvalidInput, "elapsed_sec must not be negative")
	}

	res, err := s.store.Finish(ctx, userID, attemptID, elapsedSec, s.now().UTC(), scoring.Compute)
	if err != nil {
		return nil, err
	}

	passed := *res.Attempt.Passed
	s.metrics.AttemptFinished(passed)
	slog.InfoContext(ctx, "attempt finished",
		"attempt_id", attemptID,
		"score_percent", *res.Attempt.ScorePercent,
		"passed", passed,
	)

	return &models.FinishAttemptResponse{
		OK:             true,
		AttemptID:      attemptID,
		TotalQuestions: res.TotalQuestions,
		CorrectCount:   res.CorrectCount,
		ScorePercent:   *res.Attempt.ScorePercent,
		Passed:         passed,
	}, nil
}
