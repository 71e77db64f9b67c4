package reviews

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/fragenkreuzen/backend/internal/config"
	"github.com/fragenkreuzen/backend/internal/metrics"
	"github.com/fragenkreuzen/backend/internal/models"
	"github.com/fragenkreuzen/backend/internal/srs"
)

const (
	defaultNewPerDay     = 20
	defaultReviewsPerDay = 200

	schemeBinary = "binary"
	schemeRating = "rating"
)

var validate = validator.New()

type store interface {
	QuestionExists(ctx context.Context, questionID int64) (bool, error)
	GetState(ctx context.Context, userID, questionID int64) (*models.ReviewState, error)
	UpdateState(ctx context.Context, initial models.ReviewState, grade string, now time.Time, apply UpdateFunc) (*models.ReviewState, error)
	GetSettings(ctx context.Context, userID int64) (*models.ReviewSettings, error)
	SaveSettings(ctx context.Context, st models.ReviewSettings, now time.Time) error
	CreateDeck(ctx context.Context, d models.Deck) (*models.Deck, error)
	GetDeck(ctx context.Context, deckID int64) (*models.Deck, error)
	ListDecks(ctx context.Context, userID int64) ([]models.Deck, error)
	UpdateDeck(ctx context.Context, d models.Deck) error
	AddDeckQuestions(ctx context.Context, deckID int64, questionIDs []int64, now time.Time) (int, error)
	CountReviewedSince(ctx context.Context, userID, deckID int64, since time.Time) (reviews, fresh int, err error)
	DueStates(ctx context.Context, userID, deckID int64, now time.Time, limit int) ([]models.ReviewState, error)
	NewQuestionIDs(ctx context.Context, userID, deckID int64, limit int) ([]int64, error)
	ReviewTimes(ctx context.Context, userID int64) ([]time.Time, error)
	CountDue(ctx context.Context, userID int64, now time.Time) (int, error)
}

// optionChecker resolves a selected option to its correctness.
type optionChecker interface {
	ValidateOption(ctx context.Context, questionID, optionID int64) (bool, error)
}

type Service struct {
	store    store
	options  optionChecker
	defaults config.SchedulerConfig
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(store store, options optionChecker, defaults config.SchedulerConfig, m *metrics.Metrics) *Service {
	return &Service{store: store, options: options, defaults: defaults, metrics: m, now: time.Now}
}

func toSRS(st models.ReviewState) srs.State {
	return srs.State{Interval: st.Interval, Ease: st.Ease, Lapses: st.Lapses, DueAt: st.DueAt}
}

func fromSRS(cur models.ReviewState, next srs.State) models.ReviewState {
	cur.Interval = next.Interval
	cur.Ease = next.Ease
	cur.Lapses = next.Lapses
	cur.DueAt = next.DueAt.UTC()
	return cur
}

// initialState is the row created for a pair on its first update.
func (s *Service) initialState(userID, questionID int64, settings models.ReviewSettings, now time.Time) models.ReviewState {
	return fromSRS(models.ReviewState{UserID: userID, QuestionID: questionID}, srs.NewState(settings.StartEase, now))
}

func (s *Service) requireQuestion(ctx context.Context, questionID int64) error {
	ok, err := s.store.QuestionExists(ctx, questionID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "question %d", questionID)
	}
	return nil
}

// ── Grading ──────────────────────────────────────────────

// RecordOutcome applies a correct/incorrect grading to the pair.
func (s *Service) RecordOutcome(ctx context.Context, userID, questionID int64, correct bool) (*models.ReviewState, error) {
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}

	grade := "incorrect"
	if correct {
		grade = "correct"
	}

	now := s.now().UTC()
	st, err := s.store.UpdateState(ctx, s.initialState(userID, questionID, *settings, now), grade, now,
		func(cur models.ReviewState, _ bool) (models.ReviewState, error) {
			return fromSRS(cur, srs.ScheduleNext(correct, toSRS(cur), now)), nil
		})
	if err != nil {
		return nil, err
	}

	s.metrics.ReviewGraded(schemeBinary, grade)
	return st, nil
}

// Practice answers a question outside any attempt and schedules it.
func (s *Service) Practice(ctx context.Context, userID, questionID, optionID int64) (*models.ReviewResponse, error) {
	correct, err := s.options.ValidateOption(ctx, questionID, optionID)
	if err != nil {
		return nil, err
	}
	st, err := s.RecordOutcome(ctx, userID, questionID, correct)
	if err != nil {
		return nil, err
	}
	return &models.ReviewResponse{OK: true, Correct: &correct, State: *st}, nil
}

// Rate applies a three-way rating within the user's ease bounds.
func (s *Service) Rate(ctx context.Context, userID, questionID int64, rating string) (*models.ReviewState, error) {
	r, err := srs.ParseRating(rating)
	if err != nil {
		return nil, err
	}
	if err := s.requireQuestion(ctx, questionID); err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}
	bounds := srs.EaseBounds{Min: settings.EaseMin, Max: settings.EaseMax}

	now := s.now().UTC()
	st, err := s.store.UpdateState(ctx, s.initialState(userID, questionID, *settings, now), string(r), now,
		func(cur models.ReviewState, _ bool) (models.ReviewState, error) {
			next, err := srs.Rate(r, toSRS(cur), bounds, now)
			if err != nil {
				return cur, err
			}
			return fromSRS(cur, next), nil
		})
	if err != nil {
		return nil, err
	}

	s.metrics.ReviewGraded(schemeRating, string(r))
	return st, nil
}

// SetSuspended toggles whether the pair shows up in due queues. Scheduling
// fields are left untouched.
func (s *Service) SetSuspended(ctx context.Context, userID, questionID int64, suspended bool) (*models.ReviewState, error) {
	if err := s.requireQuestion(ctx, questionID); err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	return s.store.UpdateState(ctx, s.initialState(userID, questionID, *settings, now), "", now,
		func(cur models.ReviewState, _ bool) (models.ReviewState, error) {
			cur.Suspended = suspended
			return cur, nil
		})
}

func (s *Service) Get(ctx context.Context, userID, questionID int64) (*models.ReviewState, error) {
	return s.store.GetState(ctx, userID, questionID)
}

// ── Settings ─────────────────────────────────────────────

// Settings returns the user's ease parameters, or the server defaults when
// the user never saved any.
func (s *Service) Settings(ctx context.Context, userID int64) (*models.ReviewSettings, error) {
	st, err := s.store.GetSettings(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.ReviewSettings{
			UserID:    userID,
			StartEase: s.defaults.StartEase,
			EaseMin:   s.defaults.EaseMin,
			EaseMax:   s.defaults.EaseMax,
		}, nil
	}
	return st, err
}

func (s *Service) UpdateSettings(ctx context.Context, userID int64, st models.ReviewSettings) (*models.ReviewSettings, error) {
	st.UserID = userID
	if err := validate.Struct(st); err != nil {
		return nil, errors.Wrap(models.ErrInvalidInput, err.Error())
	}
	if st.StartEase < st.EaseMin || st.StartEase > st.EaseMax {
		return nil, errors.Wrap(models.ErrInvalidInput, "start_ease must lie between ease_min and ease_max")
	}

	if err := s.store.SaveSettings(ctx, st, s.now().UTC()); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "review settings updated", "user_id", userID, "start_ease", st.StartEase)
	return &st, nil
}

// ── Decks ────────────────────────────────────────────────

func applyDeckRequest(d *models.Deck, req models.DeckRequest) {
	d.Name = req.Name
	d.LearningSteps = req.LearningSteps
	if req.SREnabled != nil {
		d.SREnabled = *req.SREnabled
	}
	if req.NewPerDay != nil {
		d.NewPerDay = *req.NewPerDay
	}
	if req.ReviewsPerDay != nil {
		d.ReviewsPerDay = *req.ReviewsPerDay
	}
}

func (s *Service) CreateDeck(ctx context.Context, userID int64, req models.DeckRequest) (*models.Deck, error) {
	if err := validate.Struct(req); err != nil {
		return nil, errors.Wrap(models.ErrInvalidInput, err.Error())
	}
	d := models.Deck{
		UserID:        userID,
		SREnabled:     true,
		NewPerDay:     defaultNewPerDay,
		ReviewsPerDay: defaultReviewsPerDay,
		CreatedAt:     s.now().UTC(),
	}
	applyDeckRequest(&d, req)
	return s.store.CreateDeck(ctx, d)
}

func (s *Service) ListDecks(ctx context.Context, userID int64) ([]models.Deck, error) {
	return s.store.ListDecks(ctx, userID)
}

// GetDeck returns ErrForbidden for decks of other users.
func (s *Service) GetDeck(ctx context.Context, userID, deckID int64) (*models.Deck, error) {
	d, err := s.store.GetDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, errors.Wrapf(models.ErrForbidden, "deck %d", deckID)
	}
	return d, nil
}

func (s *Service) UpdateDeck(ctx context.Context, userID, deckID int64, req models.DeckRequest) (*models.Deck, error) {
	if err := validate.Struct(req); err != nil {
		return nil, errors.Wrap(models.ErrInvalidInput, err.Error())
	}
	d, err := s.GetDeck(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}
	applyDeckRequest(d, req)
	if err := s.store.UpdateDeck(ctx, *d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) AddDeckQuestions(ctx context.Context, userID, deckID int64, questionIDs []int64) (*models.Deck, error) {
	if err := validate.Struct(models.DeckQuestionsRequest{QuestionIDs: questionIDs}); err != nil {
		return nil, errors.Wrap(models.ErrInvalidInput, err.Error())
	}
	if _, err := s.GetDeck(ctx, userID, deckID); err != nil {
		return nil, err
	}
	if _, err := s.store.AddDeckQuestions(ctx, deckID, questionIDs, s.now().UTC()); err != nil {
		return nil, err
	}
	return s.store.GetDeck(ctx, deckID)
}

// DueQueue selects what the user should study next in the deck: due reviews
// first, earliest due first, then questions never graded before. Both lists
// are capped by the deck's daily limits minus what was already reviewed
// since midnight UTC.
func (s *Service) DueQueue(ctx context.Context, userID, deckID int64) (*models.DueQueueResponse, error) {
	d, err := s.GetDeck(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}
	if !d.SREnabled {
		return nil, errors.Wrapf(models.ErrSRDisabled, "deck %d", deckID)
	}

	now := s.now().UTC()
	dayStart := now.Truncate(day)
	reviewed, introduced, err := s.store.CountReviewedSince(ctx, userID, deckID, dayStart)
	if err != nil {
		return nil, err
	}

	resp := &models.DueQueueResponse{DeckID: deckID, Reviews: []models.DueItem{}, New: []models.DueItem{}}

	if limit := d.ReviewsPerDay - reviewed; limit > 0 {
		states, err := s.store.DueStates(ctx, userID, deckID, now, limit)
		if err != nil {
			return nil, err
		}
		for i := range states {
			resp.Reviews = append(resp.Reviews, models.DueItem{QuestionID: states[i].QuestionID, State: &states[i]})
		}
	}

	if limit := d.NewPerDay - introduced; limit > 0 {
		ids, err := s.store.NewQuestionIDs(ctx, userID, deckID, limit)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			resp.New = append(resp.New, models.DueItem{QuestionID: id})
		}
	}
	return resp, nil
}
