package models

import "time"

// Attempt is one timed run of an exam by a user. ScorePercent and Passed stay
// nil until FinishedAt is set and never change afterwards.
type Attempt struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	ExamID       int64      `json:"exam_id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ElapsedSec   int        `json:"elapsed_sec"`
	ScorePercent *int       `json:"score_percent,omitempty"`
	Passed       *bool      `json:"passed,omitempty"`
}

func (a Attempt) Finished() bool {
	return a.FinishedAt != nil
}

type AnswerRecord struct {
	AttemptID        int64     `json:"attempt_id"`
	QuestionID       int64     `json:"question_id"`
	SelectedOptionID int64     `json:"selected_option_id"`
	IsCorrect        bool      `json:"is_correct"`
	AnsweredAt       time.Time `json:"answered_at"`
}

// ── API Request/Response Types ────────────────────────────

type SubmitAnswerRequest struct {
	OptionID int64 `json:"option_id" validate:"required,gt=0"`
}

type HeartbeatRequest struct {
	ElapsedSec int `json:"elapsed_sec" validate:"gte=0"`
}

type FinishAttemptRequest struct {
	ElapsedSec *int `json:"elapsed_sec,omitempty" validate:"omitempty,gte=0"`
}

type AnswerResponse struct {
	OK     bool         `json:"ok"`
	Answer AnswerRecord `json:"answer"`
}

type AttemptResponse struct {
	OK      bool           `json:"ok"`
	Attempt Attempt        `json:"attempt"`
	Answers []AnswerRecord `json:"answers,omitempty"`
}

type FinishAttemptResponse struct {
	OK             bool  `json:"ok"`
	AttemptID      int64 `json:"attempt_id"`
	TotalQuestions int   `json:"total_questions"`
	CorrectCount   int   `json:"correct_count"`
	ScorePercent   int   `json:"score_percent"`
	Passed         bool  `json:"passed"`
}

type AttemptListResponse struct {
	Attempts []Attempt `json:"attempts"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}
