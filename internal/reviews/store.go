package reviews

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/fragenkreuzen/backend/internal/database"
	"github.com/fragenkreuzen/backend/internal/models"
)

// UpdateFunc computes the next state of a pair from its current one. fresh is
// true when the row was created by this update.
type UpdateFunc func(cur models.ReviewState, fresh bool) (models.ReviewState, error)

type Store struct {
	db     *sql.DB
	driver string
}

func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

const stateCols = `user_id, question_id, interval_days, ease, lapses, due_at, suspended, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*models.ReviewState, error) {
	var st models.ReviewState
	if err := row.Scan(&st.UserID, &st.QuestionID, &st.Interval, &st.Ease, &st.Lapses, &st.DueAt, &st.Suspended, &st.UpdatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// ── Review states ────────────────────────────────────────

func (s *Store) QuestionExists(ctx context.Context, questionID int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE id = $1`, questionID).Scan(&n); err != nil {
		return false, errors.Wrap(err, "check question")
	}
	return n > 0, nil
}

func (s *Store) GetState(ctx context.Context, userID, questionID int64) (*models.ReviewState, error) {
	st, err := scanState(s.db.QueryRowContext(ctx,
		`SELECT `+stateCols+` FROM review_states WHERE user_id = $1 AND question_id = $2`,
		userID, questionID,
	))
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(models.ErrNotFound, "review state for question %d", questionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get review state")
	}
	return st, nil
}

// UpdateState runs one read-modify-write of the (user, question) row in a
// transaction. A missing row is first created from initial. When grade is
// non-empty the review is also written to review_log.
func (s *Store) UpdateState(ctx context.Context, initial models.ReviewState, grade string, now time.Time, apply UpdateFunc) (*models.ReviewState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO review_states (user_id, question_id, interval_days, ease, lapses, due_at, suspended, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, question_id) DO NOTHING`,
		initial.UserID, initial.QuestionID, initial.Interval, initial.Ease, initial.Lapses,
		initial.DueAt, initial.Suspended, now,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create review state")
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "create review state")
	}

	cur, err := scanState(tx.QueryRowContext(ctx,
		`SELECT `+stateCols+` FROM review_states
		 WHERE user_id = $1 AND question_id = $2`+database.ForUpdate(s.driver),
		initial.UserID, initial.QuestionID,
	))
	if err != nil {
		return nil, errors.Wrap(err, "lock review state")
	}

	next, err := apply(*cur, inserted > 0)
	if err != nil {
		return nil, err
	}
	next.UserID, next.QuestionID, next.UpdatedAt = cur.UserID, cur.QuestionID, now

	_, err = tx.ExecContext(ctx,
		`UPDATE review_states
		 SET interval_days = $1, ease = $2, lapses = $3, due_at = $4, suspended = $5, updated_at = $6
		 WHERE user_id = $7 AND question_id = $8`,
		next.Interval, next.Ease, next.Lapses, next.DueAt, next.Suspended, next.UpdatedAt,
		next.UserID, next.QuestionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "update review state")
	}

	if grade != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO review_log (user_id, question_id, grade, was_new, reviewed_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			next.UserID, next.QuestionID, grade, inserted > 0, now,
		)
		if err != nil {
			return nil, errors.Wrap(err, "log review")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit review state")
	}
	return &next, nil
}

// ── Settings ─────────────────────────────────────────────

func (s *Store) GetSettings(ctx context.Context, userID int64) (*models.ReviewSettings, error) {
	st := models.ReviewSettings{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT start_ease, ease_min, ease_max FROM user_review_settings WHERE user_id = $1`,
		userID,
	).Scan(&st.StartEase, &st.EaseMin, &st.EaseMax)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(models.ErrNotFound, "review settings")
	}
	if err != nil {
		return nil, errors.Wrap(err, "get review settings")
	}
	return &st, nil
}

func (s *Store) SaveSettings(ctx context.Context, st models.ReviewSettings, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_review_settings (user_id, start_ease, ease_min, ease_max, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET start_ease = excluded.start_ease,
		     ease_min = excluded.ease_min,
		     ease_max = excluded.ease_max,
		     updated_at = excluded.updated_at`,
		st.UserID, st.StartEase, st.EaseMin, st.EaseMax, now,
	)
	return errors.Wrap(err, "save review settings")
}

// ── Decks ────────────────────────────────────────────────

const deckCols = `d.id, d.user_id, d.name, d.sr_enabled, d.new_per_day, d.reviews_per_day, d.learning_steps, d.created_at,
	(SELECT COUNT(*) FROM deck_questions dq WHERE dq.deck_id = d.id)`

func scanDeck(row rowScanner) (*models.Deck, error) {
	var d models.Deck
	if err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.SREnabled, &d.NewPerDay, &d.ReviewsPerDay, &d.LearningSteps, &d.CreatedAt, &d.QuestionCount); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) CreateDeck(ctx context.Context, d models.Deck) (*models.Deck, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO decks (user_id, name, sr_enabled, new_per_day, reviews_per_day, learning_steps, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		d.UserID, d.Name, d.SREnabled, d.NewPerDay, d.ReviewsPerDay, d.LearningSteps, d.CreatedAt,
	).Scan(&d.ID)
	if err != nil {
		return nil, errors.Wrap(err, "create deck")
	}
	return &d, nil
}

func (s *Store) GetDeck(ctx context.Context, deckID int64) (*models.Deck, error) {
	d, err := scanDeck(s.db.QueryRowContext(ctx, `SELECT `+deckCols+` FROM decks d WHERE d.id = $1`, deckID))
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(models.ErrNotFound, "deck %d", deckID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get deck")
	}
	return d, nil
}

func (s *Store) ListDecks(ctx context.Context, userID int64) ([]models.Deck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deckCols+` FROM decks d WHERE d.user_id = $1 ORDER BY d.created_at, d.id`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list decks")
	}
	defer rows.Close()

	decks := []models.Deck{}
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan deck")
		}
		decks = append(decks, *d)
	}
	return decks, rows.Err()
}

func (s *Store) UpdateDeck(ctx context.Context, d models.Deck) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE decks
		 SET name = $1, sr_enabled = $2, new_per_day = $3, reviews_per_day = $4, learning_steps = $5
		 WHERE id = $6`,
		d.Name, d.SREnabled, d.NewPerDay, d.ReviewsPerDay, d.LearningSteps, d.ID,
	)
	return errors.Wrap(err, "update deck")
}

// AddDeckQuestions adds the questions to the deck, ignoring ones already in
// it. It returns how many were added. Unknown question ids fail the whole call.
func (s *Store) AddDeckQuestions(ctx context.Context, deckID int64, questionIDs []int64, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	added := 0
	for _, qid := range questionIDs {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE id = $1`, qid).Scan(&n); err != nil {
			return 0, errors.Wrap(err, "check question")
		}
		if n == 0 {
			return 0, errors.Wrapf(models.ErrInvalidInput, "unknown question %d", qid)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO deck_questions (deck_id, question_id, added_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (deck_id, question_id) DO NOTHING`,
			deckID, qid, now,
		)
		if err != nil {
			return 0, errors.Wrap(err, "add deck question")
		}
		n64, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "add deck question")
		}
		added += int(n64)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit deck questions")
	}
	return added, nil
}

// ── Due queue ────────────────────────────────────────────

// CountReviewedSince counts the user's reviews of deck questions logged at or
// after since, split by whether the question was new at the time.
func (s *Store) CountReviewedSince(ctx context.Context, userID, deckID int64, since time.Time) (reviews, fresh int, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.was_new, COUNT(*)
		 FROM review_log l
		 JOIN deck_questions dq ON dq.question_id = l.question_id
		 WHERE dq.deck_id = $1 AND l.user_id = $2 AND l.reviewed_at >= $3
		 GROUP BY l.was_new`,
		deckID, userID, since,
	)
	if err != nil {
		return 0, 0, errors.Wrap(err, "count reviews")
	}
	defer rows.Close()

	for rows.Next() {
		var wasNew bool
		var n int
		if err := rows.Scan(&wasNew, &n); err != nil {
			return 0, 0, errors.Wrap(err, "scan review count")
		}
		if wasNew {
			fresh += n
		} else {
			reviews += n
		}
	}
	return reviews, fresh, rows.Err()
}

// DueStates returns up to limit unsuspended states of deck questions that are
// due at now, earliest first.
func (s *Store) DueStates(ctx context.Context, userID, deckID int64, now time.Time, limit int) ([]models.ReviewState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rs.user_id, rs.question_id, rs.interval_days, rs.ease, rs.lapses, rs.due_at, rs.suspended, rs.updated_at
		 FROM review_states rs
		 JOIN deck_questions dq ON dq.question_id = rs.question_id
		 WHERE dq.deck_id = $1 AND rs.user_id = $2 AND rs.suspended = $3 AND rs.due_at <= $4
		 ORDER BY rs.due_at, rs.question_id
		 LIMIT $5`,
		deckID, userID, false, now, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "due states")
	}
	defer rows.Close()

	var states []models.ReviewState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan review state")
		}
		states = append(states, *st)
	}
	return states, rows.Err()
}

// NewQuestionIDs returns up to limit deck questions the user has never graded,
// in the order they were added.
func (s *Store) NewQuestionIDs(ctx context.Context, userID, deckID int64, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dq.question_id
		 FROM deck_questions dq
		 LEFT JOIN review_states rs ON rs.question_id = dq.question_id AND rs.user_id = $1
		 WHERE dq.deck_id = $2 AND rs.question_id IS NULL
		 ORDER BY dq.added_at, dq.question_id
		 LIMIT $3`,
		userID, deckID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "new questions")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan question id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ── Stats ────────────────────────────────────────────────

// ReviewTimes returns when the user graded anything, oldest first.
func (s *Store) ReviewTimes(ctx context.Context, userID int64) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reviewed_at FROM review_log WHERE user_id = $1 ORDER BY reviewed_at`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "review times")
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, errors.Wrap(err, "scan review time")
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// CountDue counts the user's unsuspended states due at now, across all questions.
func (s *Store) CountDue(ctx context.Context, userID int64, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM review_states
		 WHERE user_id = $1 AND suspended = $2 AND due_at <= $3`,
		userID, false, now,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count due")
	}
	return n, nil
}
