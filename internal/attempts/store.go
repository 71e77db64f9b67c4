package attempts

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/fragenkreuzen/backend/internal/database"
	"github.com/fragenkreuzen/backend/internal/models"
	"github.com/fragenkreuzen/backend/internal/scoring"
)

// ScoreFunc turns the question and correct-answer counts into a result.
type ScoreFunc func(totalQuestions, correctCount int, passPercent float64) (scoring.Result, error)

// FinishResult is what Finish persisted.
type FinishResult struct {
	Attempt        models.Attempt
	TotalQuestions int
	CorrectCount   int
}

type Store struct {
	db     *sql.DB
	driver string
}

func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

const attemptCols = `id, user_id, exam_id, started_at, finished_at, elapsed_sec, score_percent, passed`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (*models.Attempt, error) {
	var a models.Attempt
	var finishedAt sql.NullTime
	var score sql.NullInt64
	var passed sql.NullBool

	if err := row.Scan(&a.ID, &a.UserID, &a.ExamID, &a.StartedAt, &finishedAt, &a.ElapsedSec, &score, &passed); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		a.FinishedAt = &t
	}
	if score.Valid {
		v := int(score.Int64)
		a.ScorePercent = &v
	}
	if passed.Valid {
		v := passed.Bool
		a.Passed = &v
	}
	return &a, nil
}

func (s *Store) CreateAttempt(ctx context.Context, userID, examID int64, now time.Time) (*models.Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams WHERE id = $1`, examID).Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, "check exam")
	}
	if exists == 0 {
		return nil, errors.Wrapf(models.ErrNotFound, "exam %d", examID)
	}

	a, err := scanAttempt(tx.QueryRowContext(ctx,
		`INSERT INTO attempts (user_id, exam_id, started_at, elapsed_sec)
		 VALUES ($1, $2, $3, 0)
		 RETURNING `+attemptCols,
		userID, examID, now,
	))
	if err != nil {
		return nil, errors.Wrap(err, "create attempt")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit attempt")
	}
	return a, nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID int64) (*models.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE id = $1`,
		attemptID,
	))
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(models.ErrNotFound, "attempt %d", attemptID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get attempt")
	}
	return a, nil
}

func (s *Store) ListAttempts(ctx context.Context, userID int64, limit, offset int) ([]models.Attempt, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count attempts")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptCols+` FROM attempts
		 WHERE user_id = $1
		 ORDER BY started_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list attempts")
	}
	defer rows.Close()

	attempts := []models.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan attempt")
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}

func (s *Store) GetAnswers(ctx context.Context, attemptID int64) ([]models.AnswerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT attempt_id, question_id, selected_option_id, is_correct, answered_at
		 FROM attempt_answers WHERE attempt_id = $1
		 ORDER BY answered_at, question_id`,
		attemptID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "get answers")
	}
	defer rows.Close()

	var answers []models.AnswerRecord
	for rows.Next() {
		var rec models.AnswerRecord
		if err := rows.Scan(&rec.AttemptID, &rec.QuestionID, &rec.SelectedOptionID, &rec.IsCorrect, &rec.AnsweredAt); err != nil {
			return nil, errors.Wrap(err, "scan answer")
		}
		answers = append(answers, rec)
	}
	return answers, rows.Err()
}

// ── Transactional updates ────────────────────────────────

// lockOpenAttempt locks the attempt row for the rest of tx and checks that
// userID owns it and it is still in progress.
func (s *Store) lockOpenAttempt(ctx context.Context, tx *sql.Tx, userID, attemptID int64) (*models.Attempt, error) {
	a, err := scanAttempt(tx.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE id = $1`+database.ForUpdate(s.driver),
		attemptID,
	))
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(models.ErrNotFound, "attempt %d", attemptID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock attempt")
	}
	if a.UserID != userID {
		return nil, errors.Wrapf(models.ErrForbidden, "attempt %d", attemptID)
	}
	if a.Finished() {
		return nil, errors.Wrapf(models.ErrAlreadyFinished, "attempt %d", attemptID)
	}
	return a, nil
}

// SaveAnswer upserts the answer for (attempt, question). The last answer
// before finishing wins.
func (s *Store) SaveAnswer(ctx context.Context, userID int64, rec models.AnswerRecord) (*models.AnswerRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := s.lockOpenAttempt(ctx, tx, userID, rec.AttemptID); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, selected_option_id, is_correct, answered_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET selected_option_id = excluded.selected_option_id,
		     is_correct = excluded.is_correct,
		     answered_at = excluded.answered_at`,
		rec.AttemptID, rec.QuestionID, rec.SelectedOptionID, rec.IsCorrect, rec.AnsweredAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "save answer")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit answer")
	}
	return &rec, nil
}

// Heartbeat raises the stored elapsed time to elapsedSec; it never lowers it.
func (s *Store) Heartbeat(ctx context.Context, userID, attemptID int64, elapsedSec int) (*models.Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	a, err := s.lockOpenAttempt(ctx, tx, userID, attemptID)
	if err != nil {
		return nil, err
	}

	a.ElapsedSec = max(a.ElapsedSec, elapsedSec)
	if _, err := tx.ExecContext(ctx, `UPDATE attempts SET elapsed_sec = $1 WHERE id = $2`, a.ElapsedSec, attemptID); err != nil {
		return nil, errors.Wrap(err, "update elapsed")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit heartbeat")
	}
	return a, nil
}

// Finish scores the attempt and marks it finished in one transaction. The
// final write only succeeds while finished_at is still NULL, so at most one
// caller ever sets the score.
func (s *Store) Finish(ctx context.Context, userID, attemptID int64, elapsedSec *int, now time.Time, score ScoreFunc) (*FinishResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	a, err := s.lockOpenAttempt(ctx, tx, userID, attemptID)
	if err != nil {
		return nil, err
	}

	var passPercent float64
	var total int
	err = tx.QueryRowContext(ctx,
		`SELECT e.pass_percent, (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id)
		 FROM exams e WHERE e.id = $1`,
		a.ExamID,
	).Scan(&passPercent, &total)
	if err != nil {
		return nil, errors.Wrap(err, "load exam for scoring")
	}

	// Unanswered questions count as incorrect.
	var correct int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempt_answers WHERE attempt_id = $1 AND is_correct = $2`,
		attemptID, true,
	).Scan(&correct)
	if err != nil {
		return nil, errors.Wrap(err, "count correct answers")
	}

	result, err := score(total, correct, passPercent)
	if err != nil {
		return nil, err
	}

	elapsed := a.ElapsedSec
	if elapsedSec != nil {
		elapsed = max(elapsed, *elapsedSec)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE attempts
		 SET finished_at = $1, elapsed_sec = $2, score_percent = $3, passed = $4
		 WHERE id = $5 AND finished_at IS NULL`,
		now, elapsed, result.ScorePercent, result.Passed, attemptID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "finish attempt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "finish attempt")
	}
	if n == 0 {
		return nil, errors.Wrapf(models.ErrAlreadyFinished, "attempt %d", attemptID)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit finish")
	}

	a.FinishedAt = &now
	a.ElapsedSec = elapsed
	a.ScorePercent = &result.ScorePercent
	a.Passed = &result.Passed
	return &FinishResult{Attempt: *a, TotalQuestions: total, CorrectCount: correct}, nil
}
