package models

import "time"

// ReviewState is the spaced-repetition state of one (user, question) pair.
type ReviewState struct {
	UserID     int64     `json:"user_id"`
	QuestionID int64     `json:"question_id"`
	Interval   int       `json:"interval"`
	Ease       float64   `json:"ease"`
	Lapses     int       `json:"lapses"`
	DueAt      time.Time `json:"due_at"`
	Suspended  bool      `json:"suspended"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReviewSettings are the per-user ease parameters of the three-way review flow.
type ReviewSettings struct {
	UserID    int64   `json:"user_id"`
	StartEase float64 `json:"start_ease" validate:"gte=1.3,lte=5"`
	EaseMin   float64 `json:"ease_min" validate:"gte=1.3,ltfield=EaseMax"`
	EaseMax   float64 `json:"ease_max" validate:"lte=5"`
}

type Deck struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Name          string    `json:"name"`
	SREnabled     bool      `json:"sr_enabled"`
	NewPerDay     int       `json:"new_per_day"`
	ReviewsPerDay int       `json:"reviews_per_day"`
	LearningSteps string    `json:"learning_steps"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// ── API Request/Response Types ────────────────────────────

type PracticeAnswerRequest struct {
	OptionID int64 `json:"option_id" validate:"required,gt=0"`
}

type RateRequest struct {
	Rating string `json:"rating" validate:"required,oneof=again good easy"`
}

type DeckRequest struct {
	Name          string `json:"name" validate:"required,max=255"`
	SREnabled     *bool  `json:"sr_enabled,omitempty"`
	NewPerDay     *int   `json:"new_per_day,omitempty" validate:"omitempty,gte=0,lte=9999"`
	ReviewsPerDay *int   `json:"reviews_per_day,omitempty" validate:"omitempty,gte=0,lte=9999"`
	LearningSteps string `json:"learning_steps" validate:"max=255"`
}

type DeckListResponse struct {
	Decks []Deck `json:"decks"`
}

type DeckQuestionsRequest struct {
	QuestionIDs []int64 `json:"question_ids" validate:"required,min=1,dive,gt=0"`
}

type ReviewResponse struct {
	OK      bool        `json:"ok"`
	Correct *bool       `json:"correct,omitempty"`
	State   ReviewState `json:"state"`
}

// DueItem is one entry of a deck's review queue. State is nil for
// questions that have never been graded.
type DueItem struct {
	QuestionID int64        `json:"question_id"`
	State      *ReviewState `json:"state,omitempty"`
}

type DueQueueResponse struct {
	DeckID  int64     `json:"deck_id"`
	Reviews []DueItem `json:"reviews"`
	New     []DueItem `json:"new"`
}

// ReviewStats summarizes a user's review activity. Days are UTC calendar days.
type ReviewStats struct {
	TotalReviews  int `json:"total_reviews"`
	ReviewsToday  int `json:"reviews_today"`
	DueNow        int `json:"due_now"`
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`
}
