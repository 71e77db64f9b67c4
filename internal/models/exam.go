package models

import "time"

type Exam struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	PassPercent   float64   `json:"pass_percent"`
	TimeLimitSec  int       `json:"time_limit_sec"`
	QuestionCount int       `json:"question_count"`
	CreatedAt     time.Time `json:"created_at"`

	Cases     []Case     `json:"cases,omitempty"`
	Questions []Question `json:"questions,omitempty"`
}

// Case groups questions that share a clinical vignette.
type Case struct {
	ID       int64  `json:"id"`
	ExamID   int64  `json:"exam_id"`
	Title    string `json:"title"`
	Vignette string `json:"vignette"`
	Position int    `json:"position"`
}

type Question struct {
	ID          int64          `json:"id"`
	ExamID      int64          `json:"exam_id"`
	CaseID      *int64         `json:"case_id,omitempty"`
	Stem        string         `json:"stem"`
	Explanation string         `json:"explanation,omitempty"`
	Position    int            `json:"position"`
	Options     []AnswerOption `json:"options"`
}

type AnswerOption struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Label      string `json:"label"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Redacted returns a copy of q without correctness or explanation, safe to
// serve while the question is still being answered.
func (q Question) Redacted() Question {
	out := q
	out.Explanation = ""
	out.Options = make([]AnswerOption, len(q.Options))
	for i, o := range q.Options {
		o.IsCorrect = false
		out.Options[i] = o
	}
	return out
}

// ── Import Types ────────────────────────────────────────

type ImportExamRequest struct {
	Title        string           `json:"title" validate:"required,max=255"`
	Description  string           `json:"description"`
	PassPercent  *float64         `json:"pass_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	TimeLimitSec int              `json:"time_limit_sec" validate:"gte=0"`
	Cases        []ImportCase     `json:"cases" validate:"dive"`
	Questions    []ImportQuestion `json:"questions" validate:"dive"`
}

type ImportCase struct {
	Title     string           `json:"title" validate:"required"`
	Vignette  string           `json:"vignette"`
	Questions []ImportQuestion `json:"questions" validate:"min=1,dive"`
}

type ImportQuestion struct {
	Stem        string         `json:"stem" validate:"required"`
	Explanation string         `json:"explanation"`
	Options     []ImportOption `json:"options" validate:"min=2,dive"`
}

type ImportOption struct {
	Label     string `json:"label" validate:"required,max=5"`
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

type ImportResult struct {
	ExamID    int64 `json:"exam_id"`
	Cases     int   `json:"cases"`
	Questions int   `json:"questions"`
	Options   int   `json:"options"`
}

type ExamListResponse struct {
	Exams []Exam `json:"exams"`
}
