package exams

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/fragenkreuzen/backend/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Catalog ──────────────────────────────────────────────

func (s *Store) ListExams(ctx context.Context) ([]models.Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.title, e.description, e.pass_percent, e.time_limit_sec, e.created_at,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id)
		 FROM exams e
		 ORDER BY e.created_at DESC, e.id DESC`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list exams")
	}
	defer rows.Close()

	exams := []models.Exam{}
	for rows.Next() {
		var e models.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.PassPercent, &e.TimeLimitSec, &e.CreatedAt, &e.QuestionCount); err != nil {
			return nil, errors.Wrap(err, "scan exam")
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// GetExam loads the exam with its cases, questions and options.
func (s *Store) GetExam(ctx context.Context, examID int64) (*models.Exam, error) {
	var e models.Exam
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, pass_percent, time_limit_sec, created_at
		 FROM exams WHERE id = $1`,
		examID,
	).Scan(&e.ID, &e.Title, &e.Description, &e.PassPercent, &e.TimeLimitSec, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(models.ErrNotFound, "exam %d", examID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get exam")
	}

	if e.Cases, err = s.getCases(ctx, examID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionCols+`, `+optionCols+`
		 FROM questions q
		 JOIN answer_options o ON o.question_id = q.id
		 WHERE q.exam_id = $1
		 ORDER BY q.position, q.id, o.label, o.id`,
		examID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "get exam questions")
	}
	defer rows.Close()

	if e.Questions, err = scanQuestionsWithOptions(rows); err != nil {
		return nil, err
	}
	e.QuestionCount = len(e.Questions)
	return &e, nil
}

func (s *Store) getCases(ctx context.Context, examID int64) ([]models.Case, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exam_id, title, vignette, position
		 FROM cases WHERE exam_id = $1 ORDER BY position, id`,
		examID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "get cases")
	}
	defer rows.Close()

	var cases []models.Case
	for rows.Next() {
		var c models.Case
		if err := rows.Scan(&c.ID, &c.ExamID, &c.Title, &c.Vignette, &c.Position); err != nil {
			return nil, errors.Wrap(err, "scan case")
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func (s *Store) GetQuestion(ctx context.Context, questionID int64) (*models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionCols+`, `+optionCols+`
		 FROM questions q
		 JOIN answer_options o ON o.question_id = q.id
		 WHERE q.id = $1
		 ORDER BY o.label, o.id`,
		questionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "get question")
	}
	defer rows.Close()

	questions, err := scanQuestionsWithOptions(rows)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, errors.Wrapf(models.ErrNotFound, "question %d", questionID)
	}
	return &questions[0], nil
}

func (s *Store) QuestionBelongsToExam(ctx context.Context, examID, questionID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE id = $1 AND exam_id = $2`,
		questionID, examID,
	).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "check question exam")
	}
	return n > 0, nil
}

func (s *Store) GetOption(ctx context.Context, optionID int64) (*models.AnswerOption, error) {
	var o models.AnswerOption
	err := s.db.QueryRowContext(ctx,
		`SELECT id, question_id, label, text, is_correct FROM answer_options WHERE id = $1`,
		optionID,
	).Scan(&o.ID, &o.QuestionID, &o.Label, &o.Text, &o.IsCorrect)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(models.ErrNotFound, "option %d", optionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get option")
	}
	return &o, nil
}

// ── Import ───────────────────────────────────────────────

// ImportExam inserts the exam with all cases, questions and options in one
// transaction. req must already be validated.
func (s *Store) ImportExam(ctx context.Context, req models.ImportExamRequest, passPercent float64, now time.Time) (*models.ImportResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	result := &models.ImportResult{}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO exams (title, description, pass_percent, time_limit_sec, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		req.Title, req.Description, passPercent, req.TimeLimitSec, now,
	).Scan(&result.ExamID)
	if err != nil {
		return nil, errors.Wrap(err, "insert exam")
	}

	position := 0
	insertQuestion := func(caseID *int64, q models.ImportQuestion) error {
		position++
		var questionID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO questions (exam_id, case_id, stem, explanation, position)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			result.ExamID, caseID, q.Stem, q.Explanation, position,
		).Scan(&questionID)
		if err != nil {
			return errors.Wrap(err, "insert question")
		}

		for _, o := range q.Options {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO answer_options (question_id, label, text, is_correct)
				 VALUES ($1, $2, $3, $4)`,
				questionID, o.Label, o.Text, o.IsCorrect,
			)
			if err != nil {
				return errors.Wrap(err, "insert option")
			}
			result.Options++
		}
		result.Questions++
		return nil
	}

	for i, c := range req.Cases {
		var caseID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO cases (exam_id, title, vignette, position)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			result.ExamID, c.Title, c.Vignette, i+1,
		).Scan(&caseID)
		if err != nil {
			return nil, errors.Wrap(err, "insert case")
		}
		result.Cases++

		for _, q := range c.Questions {
			if err := insertQuestion(&caseID, q); err != nil {
				return nil, err
			}
		}
	}

	for _, q := range req.Questions {
		if err := insertQuestion(nil, q); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit import")
	}
	return result, nil
}

// ── Scanning ─────────────────────────────────────────────

const (
	questionCols = `q.id, q.exam_id, q.case_id, q.stem, q.explanation, q.position`
	optionCols   = `o.id, o.label, o.text, o.is_correct`
)

// scanQuestionsWithOptions folds question x option join rows into questions,
// keeping the row order of the first occurrence.
func scanQuestionsWithOptions(rows *sql.Rows) ([]models.Question, error) {
	questionMap := make(map[int64]*models.Question)
	var questionOrder []int64

	for rows.Next() {
		var q models.Question
		var caseID sql.NullInt64
		var o models.AnswerOption

		if err := rows.Scan(
			&q.ID, &q.ExamID, &caseID, &q.Stem, &q.Explanation, &q.Position,
			&o.ID, &o.Label, &o.Text, &o.IsCorrect,
		); err != nil {
			return nil, errors.Wrap(err, "scan question row")
		}
		o.QuestionID = q.ID

		if existing, ok := questionMap[q.ID]; ok {
			existing.Options = append(existing.Options, o)
			continue
		}
		if caseID.Valid {
			q.CaseID = &caseID.Int64
		}
		q.Options = []models.AnswerOption{o}
		questionMap[q.ID] = &q
		questionOrder = append(questionOrder, q.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	questions := make([]models.Question, 0, len(questionOrder))
	for _, id := range questionOrder {
		questions = append(questions, *questionMap[id])
	}
	return questions, nil
}
