package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a record was changed by another writer since
// it was read (the stored version no longer matches).
var ErrConflict = errors.New("version conflict")

// Collection names a record table. Only the constants below are valid.
type Collection string

const (
	VacationRequests Collection = "vacation_requests"
	Objectives       Collection = "objectives"
	Notifications    Collection = "notifications"
	Surveys          Collection = "surveys"
	SurveyResponses  Collection = "survey_responses"
)

// AllCollections lists every record table in dependency-free order.
var AllCollections = []Collection{VacationRequests, Objectives, Notifications, Surveys, SurveyResponses}

func (c Collection) valid() bool {
	switch c {
	case VacationRequests, Objectives, Notifications, Surveys, SurveyResponses:
		return true
	}
	return false
}

// Record is one persisted domain record. Data holds the JSON body; OwnerID is
// the indexed foreign reference (employee id, target user id, survey id).
type Record struct {
	ID        string
	OwnerID   string
	Data      []byte
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Document is text extracted from a file attached to a vacation request.
type Document struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	Filename  string    `json:"filename"`
	Text      string    `json:"text"`
	Pages     int       `json:"pages"`
	CreatedAt time.Time `json:"createdAt"`
}
