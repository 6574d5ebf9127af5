package survey

import "time"

type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

func (s Status) valid() bool {
	return s == StatusDraft || s == StatusActive || s == StatusClosed
}

// canMoveTo allows draft -> active -> closed, and draft -> closed.
func (s Status) canMoveTo(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusActive || next == StatusClosed
	case StatusActive:
		return next == StatusClosed
	}
	return false
}

type QuestionType string

const (
	QuestionRating         QuestionType = "rating"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionYesNo          QuestionType = "yes_no"
	QuestionText           QuestionType = "text"
)

func (t QuestionType) valid() bool {
	switch t {
	case QuestionRating, QuestionMultipleChoice, QuestionYesNo, QuestionText:
		return true
	}
	return false
}

// Rating answers are integers in [MinRating, MaxRating].
const (
	MinRating = 1
	MaxRating = 5
)

type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Options  []string     `json:"options,omitempty"`
	Required bool         `json:"required"`
}

type Survey struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
	Status      Status     `json:"status"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	EndDate     string     `json:"endDate,omitempty"`
	Anonymous   bool       `json:"anonymous"`
	Version     int        `json:"version"`
}

type NewSurvey struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
	Status      Status     `json:"status,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	EndDate     string     `json:"endDate,omitempty"`
	Anonymous   bool       `json:"anonymous"`
}

// SurveyUpdate replaces every non-nil field. Questions may only change
// while the survey has no responses.
type SurveyUpdate struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Questions   *[]Question `json:"questions,omitempty"`
	Status      *Status     `json:"status,omitempty"`
	EndDate     *string     `json:"endDate,omitempty"`
}

type SurveyFilter struct {
	Status Status
}

// Response is one submission. Answers maps question id to the answer:
// a number for rating, an option string for multiple_choice, a bool for
// yes_no and a string for text.
type Response struct {
	ID           string         `json:"id"`
	SurveyID     string         `json:"surveyId"`
	RespondentID string         `json:"respondentId,omitempty"`
	Answers      map[string]any `json:"answers"`
	SubmittedAt  time.Time      `json:"submittedAt"`
	Version      int            `json:"version"`
}

type NewResponse struct {
	RespondentID string         `json:"respondentId,omitempty"`
	Answers      map[string]any `json:"answers"`
}

// QuestionStats aggregates the answers to one question. Which fields are
// set depends on Type.
type QuestionStats struct {
	QuestionID string       `json:"questionId"`
	Type       QuestionType `json:"type"`
	Text       string       `json:"text"`
	Responses  int          `json:"responses"`

	Average      float64        `json:"average,omitempty"`
	Distribution map[int]int    `json:"distribution,omitempty"`
	Options      map[string]int `json:"options,omitempty"`
	Yes          int            `json:"yes"`
	No           int            `json:"no"`
	Answers      []string       `json:"answers,omitempty"`
}

type Stats struct {
	SurveyID       string          `json:"surveyId"`
	TotalResponses int             `json:"totalResponses"`
	Headcount      int             `json:"headcount"`
	ResponseRate   float64         `json:"responseRate"`
	Questions      []QuestionStats `json:"questions"`
}
