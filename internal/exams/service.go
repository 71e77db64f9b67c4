package exams

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/fragenkreuzen/backend/internal/models"
)

var validate = validator.New()

type store interface {
	ListExams(ctx context.Context) ([]models.Exam, error)
	GetExam(ctx context.Context, examID int64) (*models.Exam, error)
	GetQuestion(ctx context.Context, questionID int64) (*models.Question, error)
	QuestionBelongsToExam(ctx context.Context, examID, questionID int64) (bool, error)
	GetOption(ctx context.Context, optionID int64) (*models.AnswerOption, error)
	ImportExam(ctx context.Context, req models.ImportExamRequest, passPercent float64, now time.Time) (*models.ImportResult, error)
}

type Service struct {
	store              store
	defaultPassPercent float64
	now                func() time.Time
}

func NewService(store store, defaultPassPercent float64) *Service {
	return &Service{store: store, defaultPassPercent: defaultPassPercent, now: time.Now}
}

func (s *Service) ListExams(ctx context.Context) ([]models.Exam, error) {
	return s.store.ListExams(ctx)
}

// GetExam returns the exam with correctness and explanations hidden.
func (s *Service) GetExam(ctx context.Context, examID int64) (*models.Exam, error) {
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	for i := range exam.Questions {
		exam.Questions[i] = exam.Questions[i].Redacted()
	}
	return exam, nil
}

func (s *Service) GetQuestion(ctx context.Context, questionID int64) (*models.Question, error) {
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	redacted := q.Redacted()
	return &redacted, nil
}

// ValidateOption checks that optionID is one of questionID's options and
// reports whether it is the correct one.
func (s *Service) ValidateOption(ctx context.Context, questionID, optionID int64) (bool, error) {
	opt, err := s.store.GetOption(ctx, optionID)
	if err != nil {
		return false, err
	}
	if opt.QuestionID != questionID {
		return false, errors.Wrapf(models.ErrInvalidInput, "option %d does not belong to question %d", optionID, questionID)
	}
	return opt.IsCorrect, nil
}

// CheckQuestionInExam returns ErrInvalidInput when questionID is not part of examID.
func (s *Service) CheckQuestionInExam(ctx context.Context, examID, questionID int64) error {
	ok, err := s.store.QuestionBelongsToExam(ctx, examID, questionID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(models.ErrInvalidInput, "question %d is not part of exam %d", questionID, examID)
	}
	return nil
}

func (s *Service) ImportExam(ctx context.Context, req models.ImportExamRequest) (*models.ImportResult, error) {
	if err := validateImport(req); err != nil {
		return nil, err
	}

	passPercent := s.defaultPassPercent
	if req.PassPercent != nil {
		passPercent = *req.PassPercent
	}

	result, err := s.store.ImportExam(ctx, req, passPercent, s.now().UTC())
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "exam imported",
		"exam_id", result.ExamID,
		"cases", result.Cases,
		"questions", result.Questions,
	)
	return result, nil
}

func validateImport(req models.ImportExamRequest) error {
	if err := validate.Struct(req); err != nil {
		return errors.Wrap(models.ErrInvalidInput, err.Error())
	}

	total := len(req.Questions)
	for _, c := range req.Cases {
		total += len(c.Questions)
	}
	if total == 0 {
		return errors.Wrap(models.ErrInvalidInput, "exam has no questions")
	}

	check := func(q models.ImportQuestion) error {
		correct := 0
		labels := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			if labels[o.Label] {
				return errors.Wrapf(models.ErrInvalidInput, "question %q: duplicate option label %q", q.Stem, o.Label)
			}
			labels[o.Label] = true
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return errors.Wrapf(models.ErrInvalidInput, "question %q: exactly one option must be correct, got %d", q.Stem, correct)
		}
		return nil
	}

	for _, c := range req.Cases {
		for _, q := range c.Questions {
			if err := check(q); err != nil {
				return err
			}
		}
	}
	for _, q := range req.Questions {
		if err := check(q); err != nil {
			return err
		}
	}
	return nil
}
