package reviews

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fragenkreuzen/backend/internal/config"
	"github.com/fragenkreuzen/backend/internal/database"
	"github.com/fragenkreuzen/backend/internal/database/databasetest"
	"github.com/fragenkreuzen/backend/internal/exams"
	"github.com/fragenkreuzen/backend/internal/metrics"
	"github.com/fragenkreuzen/backend/internal/middleware"
	"github.com/fragenkreuzen/backend/internal/models"
)

var t0 = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	questions []models.Question
	userID    int64
	otherID   int64
	clock     time.Time
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	db := databasetest.New(t)

	req := models.ImportExamRequest{Title: "Kartenstapel"}
	for i := 0; i < n; i++ {
		req.Questions = append(req.Questions, models.ImportQuestion{
			Stem: fmt.Sprintf("Frage %d", i+1),
			Options: []models.ImportOption{
				{Label: "A", Text: "richtig", IsCorrect: true},
				{Label: "B", Text: "falsch"},
			},
		})
	}
	examStore := exams.NewStore(db)
	catalog := exams.NewService(examStore, 60)
	res, err := catalog.ImportExam(t.Context(), req)
	require.NoError(t, err)
	exam, err := examStore.GetExam(t.Context(), res.ExamID)
	require.NoError(t, err)

	f := &fixture{
		questions: exam.Questions,
		userID:    databasetest.CreateUser(t, db, "lerner@example.com", false),
		otherID:   databasetest.CreateUser(t, db, "andere@example.com", false),
		clock:     t0,
	}
	f.svc = NewService(NewStore(db, database.SQLite), catalog, config.Default().Scheduler, metrics.New())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) q(i int) int64 { return f.questions[i].ID }

func TestRecordOutcomeCreatesStateLazily(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	_, err := f.svc.Get(ctx, f.userID, f.q(0))
	assert.True(t, errors.Is(err, models.ErrNotFound))

	st, err := f.svc.RecordOutcome(ctx, f.userID, f.q(0), true)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Interval)
	assert.InDelta(t, 2.65, st.Ease, 1e-9)
	assert.Equal(t, 0, st.Lapses)
	assert.True(t, st.DueAt.Equal(t0.Add(72*time.Hour)))

	f.clock = t0.Add(72 * time.Hour)
	st, err = f.svc.RecordOutcome(ctx, f.userID, f.q(0), true)
	require.NoError(t, err)
	assert.Equal(t, 8, st.Interval)
	assert.InDelta(t, 2.8, st.Ease, 1e-9)

	stored, err := f.svc.Get(ctx, f.userID, f.q(0))
	require.NoError(t, err)
	assert.Equal(t, 8, stored.Interval)
	assert.True(t, stored.DueAt.Equal(f.clock.Add(8*24*time.Hour)))
	assert.True(t, stored.UpdatedAt.Equal(f.clock))
}

func TestRecordOutcomeIncorrect(t *testing.T) {
	f := newFixture(t, 1)

	st, err := f.svc.RecordOutcome(t.Context(), f.userID, f.q(0), false)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Interval)
	assert.InDelta(t, 1.3, st.Ease, 1e-9)
	assert.Equal(t, 1, st.Lapses)
	assert.True(t, st.DueAt.Equal(t0.Add(24*time.Hour)))
}

func TestStatesArePerUser(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	_, err := f.svc.RecordOutcome(ctx, f.userID, f.q(0), false)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, f.otherID, f.q(0))
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestConcurrentOutcomesAreSerialized(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordOutcome(ctx, f.userID, f.q(0), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := f.svc.Get(ctx, f.userID, f.q(0))
	require.NoError(t, err)
	assert.Equal(t, n, st.Lapses)
}

func TestPractice(t *testing.T) {
	f := newFixture(t, 2)
	ctx := t.Context()

	resp, err := f.svc.Practice(ctx, f.userID, f.q(0), f.questions[0].Options[1].ID)
	require.NoError(t, err)
	require.NotNil(t, resp.Correct)
	assert.False(t, *resp.Correct)
	assert.Equal(t, 1, resp.State.Lapses)

	_, err = f.svc.Practice(ctx, f.userID, f.q(0), f.questions[1].Options[0].ID)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestRate(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	st, err := f.svc.Rate(ctx, f.userID, f.q(0), "good")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Interval)
	assert.InDelta(t, 2.5, st.Ease, 1e-9)
	assert.True(t, st.DueAt.Equal(time.Date(2026, 3, 17, 9, 30, 0, 0, time.UTC)))

	st, err = f.svc.Rate(ctx, f.userID, f.q(0), "easy")
	require.NoError(t, err)
	assert.InDelta(t, 2.65, st.Ease, 1e-9)
	assert.Equal(t, 9, st.Interval)

	st, err = f.svc.Rate(ctx, f.userID, f.q(0), "again")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Interval)
	assert.Equal(t, 1, st.Lapses)
	assert.InDelta(t, 2.45, st.Ease, 1e-9)
}

func TestRateUsesUserBounds(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	_, err := f.svc.UpdateSettings(ctx, f.userID, models.ReviewSettings{StartEase: 2.0, EaseMin: 1.8, EaseMax: 2.1})
	require.NoError(t, err)

	st, err := f.svc.Rate(ctx, f.userID, f.q(0), "again")
	require.NoError(t, err)
	assert.InDelta(t, 1.8, st.Ease, 1e-9)

	st, err = f.svc.Rate(ctx, f.userID, f.q(0), "again")
	require.NoError(t, err)
	assert.InDelta(t, 1.8, st.Ease, 1e-9)

	for i := 0; i < 3; i++ {
		st, err = f.svc.Rate(ctx, f.userID, f.q(0), "easy")
		require.NoError(t, err)
	}
	assert.InDelta(t, 2.1, st.Ease, 1e-9)
}

func TestRateRejections(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	_, err := f.svc.Rate(ctx, f.userID, f.q(0), "hard")
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	_, err = f.svc.Rate(ctx, f.userID, 9999, "good")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = f.svc.Get(ctx, f.userID, f.q(0))
	assert.True(t, errors.Is(err, models.ErrNotFound), "rejected ratings must not create state")
}

func TestSettings(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	st, err := f.svc.Settings(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 2.5, st.StartEase)
	assert.Equal(t, 1.3, st.EaseMin)
	assert.Equal(t, 2.7, st.EaseMax)

	invalid := []models.ReviewSettings{
		{StartEase: 2.5, EaseMin: 1.2, EaseMax: 2.7},
		{StartEase: 2.5, EaseMin: 2.7, EaseMax: 2.7},
		{StartEase: 2.5, EaseMin: 1.3, EaseMax: 5.5},
		{StartEase: 3.0, EaseMin: 1.3, EaseMax: 2.7},
		{StartEase: 1.5, EaseMin: 1.6, EaseMax: 2.7},
	}
	for _, in := range invalid {
		_, err := f.svc.UpdateSettings(ctx, f.userID, in)
		assert.True(t, errors.Is(err, models.ErrInvalidInput), "%+v", in)
	}

	_, err = f.svc.UpdateSettings(ctx, f.userID, models.ReviewSettings{StartEase: 2.2, EaseMin: 1.5, EaseMax: 3.0})
	require.NoError(t, err)
	st, err = f.svc.Settings(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 2.2, st.StartEase)

	// New pairs start from the saved start ease.
	rated, err := f.svc.Rate(ctx, f.userID, f.q(0), "good")
	require.NoError(t, err)
	assert.InDelta(t, 2.2, rated.Ease, 1e-9)
}

func TestSuspend(t *testing.T) {
	f := newFixture(t, 1)
	ctx := t.Context()

	st, err := f.svc.SetSuspended(ctx, f.userID, f.q(0), true)
	require.NoError(t, err)
	assert.True(t, st.Suspended)
	assert.Equal(t, 1, st.Interval)

	st, err = f.svc.RecordOutcome(ctx, f.userID, f.q(0), true)
	require.NoError(t, err)
	assert.True(t, st.Suspended, "grading keeps the suspension")

	st, err = f.svc.SetSuspended(ctx, f.userID, f.q(0), false)
	require.NoError(t, err)
	assert.False(t, st.Suspended)
	assert.Equal(t, 3, st.Interval)

	_, err = f.svc.SetSuspended(ctx, f.userID, 9999, true)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestDecks(t *testing.T) {
	f := newFixture(t, 3)
	ctx := t.Context()

	d, err := f.svc.CreateDeck(ctx, f.userID, models.DeckRequest{Name: "Kardio", LearningSteps: "1m 10m"})
	require.NoError(t, err)
	assert.True(t, d.SREnabled)
	assert.Equal(t, 20, d.NewPerDay)
	assert.Equal(t, 200, d.ReviewsPerDay)
	assert.Equal(t, "1m 10m", d.LearningSteps)

	d, err = f.svc.AddDeckQuestions(ctx, f.userID, d.ID, []int64{f.q(0), f.q(1), f.q(0)})
	require.NoError(t, err)
	assert.Equal(t, 2, d.QuestionCount)

	_, err = f.svc.AddDeckQuestions(ctx, f.userID, d.ID, []int64{9999})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	_, err = f.svc.GetDeck(ctx, f.otherID, d.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	_, err = f.svc.GetDeck(ctx, f.userID, 9999)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	off := false
	limit := 5
	d, err = f.svc.UpdateDeck(ctx, f.userID, d.ID, models.DeckRequest{Name: "Kardiologie", SREnabled: &off, NewPerDay: &limit})
	require.NoError(t, err)
	assert.Equal(t, "Kardiologie", d.Name)
	assert.False(t, d.SREnabled)
	assert.Equal(t, 5, d.NewPerDay)
	assert.Equal(t, 200, d.ReviewsPerDay)

	list, err := f.svc.ListDecks(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].QuestionCount)

	_, err = f.svc.DueQueue(ctx, f.userID, d.ID)
	assert.True(t, errors.Is(err, models.ErrSRDisabled))

	_, err = f.svc.CreateDeck(ctx, f.userID, models.DeckRequest{})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestDueQueue(t *testing.T) {
	f := newFixture(t, 5)
	ctx := t.Context()

	newPerDay, reviewsPerDay := 2, 10
	d, err := f.svc.CreateDeck(ctx, f.userID, models.DeckRequest{Name: "Pneumo", NewPerDay: &newPerDay, ReviewsPerDay: &reviewsPerDay})
	require.NoError(t, err)
	_, err = f.svc.AddDeckQuestions(ctx, f.userID, d.ID, []int64{f.q(0), f.q(1), f.q(2), f.q(3), f.q(4)})
	require.NoError(t, err)

	q, err := f.svc.DueQueue(ctx, f.userID, d.ID)
	require.NoError(t, err)
	assert.Empty(t, q.Reviews)
	assert.Equal(t, []int64{f.q(0), f.q(1)}, ids(q.New))

	// Introduce two new questions today; the new limit is used up.
	_, err = f.svc.RecordOutcome(ctx, f.userID, f.q(0), false)
	require.NoError(t, err)
	_, err = f.svc.RecordOutcome(ctx, f.userID, f.q(1), true)
	require.NoError(t, err)
	_, err = f.svc.SetSuspended(ctx, f.userID, f.q(2), true)
	require.NoError(t, err)

	q, err = f.svc.DueQueue(ctx, f.userID, d.ID)
	require.NoError(t, err)
	assert.Empty(t, q.Reviews)
	assert.Empty(t, q.New)

	// Next day: q0 (1 day) is due, q1 (3 days) is not, q2 is suspended.
	f.clock = t0.Add(25 * time.Hour)
	q, err = f.svc.DueQueue(ctx, f.userID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.q(0)}, ids(q.Reviews))
	require.NotNil(t, q.Reviews[0].State)
	assert.Equal(t, 1, q.Reviews[0].State.Lapses)
	assert.Equal(t, []int64{f.q(3), f.q(4)}, ids(q.New))

	// Four days later everything unsuspended is due, ordered by due date.
	f.clock = t0.Add(4 * 24 * time.Hour)
	_, err = f.svc.RecordOutcome(ctx, f.userID, f.q(3), false)
	require.NoError(t, err)
	f.clock = t0.Add(6 * 24 * time.Hour)
	q, err = f.svc.DueQueue(ctx, f.userID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.q(0), f.q(1), f.q(3)}, ids(q.Reviews))
	assert.Equal(t, []int64{f.q(4)}, ids(q.New))
}

func TestDueQueueReviewLimit(t *testing.T) {
	f := newFixture(t, 3)
	ctx := t.Context()

	reviewsPerDay := 1
	d, err := f.svc.CreateDeck(ctx, f.userID, models.DeckRequest{Name: "Limit", ReviewsPerDay: &reviewsPerDay})
	require.NoError(t, err)
	_, err = f.svc.AddDeckQuestions(ctx, f.userID, d.ID, []int64{f.q(0), f.q(1), f.q(2)})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.svc.RecordOutcome(ctx, f.userID, f.q(i), false)
		require.NoError(t, err)
	}

	f.clock = t0.Add(48 * time.Hour)
	q, err := f.svc.DueQueue(ctx, f.userID, d.ID)
	require.NoError(t, err)
	assert.Len(t, q.Reviews, 1)

	_, err = f.svc.RecordOutcome(ctx, f.userID, q.Reviews[0].QuestionID, true)
	require.NoError(t, err)
	q, err = f.svc.DueQueue(ctx, f.userID, d.ID)
	require.NoError(t, err)
	assert.Empty(t, q.Reviews)
}

func TestHandlerRoutes(t *testing.T) {
	f := newFixture(t, 1)

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), f.userID)))
		})
	})
	NewHandler(f.svc).RegisterRoutes(r)

	call := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
		return rec
	}

	rec := call("GET", fmt.Sprintf("/reviews/%d", f.q(0)), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call("POST", fmt.Sprintf("/questions/%d/answer", f.q(0)), models.PracticeAnswerRequest{OptionID: f.questions[0].Options[0].ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var practiced models.ReviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &practiced))
	assert.True(t, *practiced.Correct)
	assert.Equal(t, 3, practiced.State.Interval)

	rec = call("POST", fmt.Sprintf("/reviews/%d/rate", f.q(0)), models.RateRequest{Rating: "meh"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call("POST", fmt.Sprintf("/reviews/%d/rate", f.q(0)), models.RateRequest{Rating: "again"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call("GET", fmt.Sprintf("/reviews/%d", f.q(0)), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched models.ReviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.True(t, fetched.OK)
	assert.Equal(t, f.q(0), fetched.State.QuestionID)
	assert.Equal(t, 1, fetched.State.Lapses)
	assert.Equal(t, 1, fetched.State.Interval)

	rec = call("POST", fmt.Sprintf("/reviews/%d/suspend", f.q(0)), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = call("DELETE", fmt.Sprintf("/reviews/%d/suspend", f.q(0)), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call("PUT", "/settings/review", models.ReviewSettings{StartEase: 2.0, EaseMin: 1.3, EaseMax: 2.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call("GET", "/settings/review", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"start_ease":2`)

	off := false
	rec = call("POST", "/decks", models.DeckRequest{Name: "Aus", SREnabled: &off})
	require.Equal(t, http.StatusCreated, rec.Code)
	var deck models.Deck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deck))

	rec = call("GET", fmt.Sprintf("/decks/%d/due", deck.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.KindSRDisabled, body.Kind)

	rec = call("GET", "/decks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var decks models.DeckListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decks))
	assert.Len(t, decks.Decks, 1)
}

func ids(items []models.DueItem) []int64 {
	out := []int64{}
	for _, it := range items {
		out = append(out, it.QuestionID)
	}
	return out
}
