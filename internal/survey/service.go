// Package survey runs employee surveys: creation, responses and the
// per-question statistics HR reads back.
package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/staffdesk/internal/events"
	"github.com/kalambet/staffdesk/internal/portal"
	"github.com/kalambet/staffdesk/internal/roster"
	"github.com/kalambet/staffdesk/internal/storage"
)

var (
	ErrNotFound         = errors.New("survey not found")
	ErrNotActive        = errors.New("survey is not accepting responses")
	ErrAlreadyResponded = errors.New("respondent already answered this survey")
)

// Notifier delivers the announcement for a newly active survey.
// Implemented by portal.Store.
type Notifier interface {
	AddNotification(ctx context.Context, n portal.NewNotification) (portal.Notification, error)
}

// TypeSurvey tags the notification sent when a survey opens.
const TypeSurvey = "survey"

type Options struct {
	Clock    portal.Clock
	NewID    func() string
	Bus      *events.Bus
	Logger   *slog.Logger
	Notifier Notifier
	Roster   roster.Headcounter
}

// Service holds surveys and their responses in memory, written through to
// the persister like portal.Store.
type Service struct {
	db       portal.Persister
	clock    portal.Clock
	newID    func() string
	bus      *events.Bus
	logger   *slog.Logger
	notifier Notifier
	roster   roster.Headcounter

	mu        sync.RWMutex
	surveys   []Survey
	responses []Response
}

func New(db portal.Persister, opts Options) (*Service, error) {
	s := &Service{
		db:       db,
		clock:    opts.Clock,
		newID:    opts.NewID,
		bus:      opts.Bus,
		logger:   opts.Logger,
		notifier: opts.Notifier,
		roster:   opts.Roster,
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.bus == nil {
		s.bus = events.NewBus(s.logger)
	}
	if s.roster == nil {
		s.roster = roster.Static(DefaultHeadcount)
	}

	var err error
	if s.surveys, err = load(s, storage.Surveys, func(sv *Survey, v int) { sv.Version = v }); err != nil {
		return nil, err
	}
	if s.responses, err = load(s, storage.SurveyResponses, func(r *Response, v int) { r.Version = v }); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultHeadcount is the employee count response rates are measured
// against when no roster is configured.
const DefaultHeadcount = 156

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func load[T any](s *Service, c storage.Collection, setVersion func(*T, int)) ([]T, error) {
	recs, err := s.db.LoadAll(c)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", c, err)
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			s.logger.Warn("malformed record, skipping", "collection", string(c), "id", rec.ID, "error", err)
			continue
		}
		setVersion(&v, rec.Version)
		out = append(out, v)
	}
	return out, nil
}

// reloadSurvey replaces the survey at i with its stored row after a
// version conflict.
func (s *Service) reloadSurvey(i int) {
	id := s.surveys[i].ID
	rec, err := s.db.Get(storage.Surveys, id)
	if err != nil {
		s.logger.Warn("reloading survey after conflict", "id", id, "error", err)
		return
	}
	var sv Survey
	if err := json.Unmarshal(rec.Data, &sv); err != nil {
		s.logger.Warn("malformed survey after conflict", "id", id, "error", err)
		return
	}
	sv.Version = rec.Version
	s.surveys[i] = sv
}

func invalid(field, format string, args ...any) error {
	return &portal.ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func validateQuestions(qs []Question) error {
	if len(qs) == 0 {
		return invalid("questions", "at least one question is required")
	}
	seen := make(map[string]bool, len(qs))
	for i := range qs {
		q := &qs[i]
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if seen[q.ID] {
			return invalid("questions", "duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
		if !q.Type.valid() {
			return invalid("questions", "question %s: unknown type %q", q.ID, q.Type)
		}
		if strings.TrimSpace(q.Text) == "" {
			return invalid("questions", "question %s: text required", q.ID)
		}
		if q.Type == QuestionMultipleChoice && len(q.Options) < 2 {
			return invalid("questions", "question %s: multiple_choice needs at least two options", q.ID)
		}
		if q.Type != QuestionMultipleChoice {
			q.Options = nil
		}
	}
	return nil
}

func validateSurvey(sv *Survey) error {
	if strings.TrimSpace(sv.Title) == "" {
		return invalid("title", "required")
	}
	if sv.Status == "" {
		sv.Status = StatusDraft
	}
	if !sv.Status.valid() {
		return invalid("status", "unknown status %q", sv.Status)
	}
	if sv.EndDate != "" {
		if _, err := portal.ParseDate(sv.EndDate); err != nil {
			return invalid("endDate", "want YYYY-MM-DD, got %q", sv.EndDate)
		}
	}
	return validateQuestions(sv.Questions)
}

type emission struct {
	name    events.Name
	payload any
}

func (s *Service) mutate(ctx context.Context, fn func() ([]emission, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	evs, err := s.locked(fn)
	if err != nil {
		return err
	}
	for _, e := range evs {
		s.bus.Publish(e.name, e.payload)
	}
	return nil
}

func (s *Service) locked(fn func() ([]emission, error)) ([]emission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// AddSurvey stores a survey. A survey created active is announced to everyone.
func (s *Service) AddSurvey(ctx context.Context, in NewSurvey) (Survey, error) {
	var out Survey
	err := s.mutate(ctx, func() ([]emission, error) {
		now := s.clock.Now().UTC()
		sv := Survey{
			ID:          s.newID(),
			Title:       in.Title,
			Description: in.Description,
			Questions:   append([]Question(nil), in.Questions...),
			Status:      in.Status,
			CreatedBy:   in.CreatedBy,
			CreatedAt:   now,
			EndDate:     in.EndDate,
			Anonymous:   in.Anonymous,
			Version:     1,
		}
		if err := validateSurvey(&sv); err != nil {
			return nil, err
		}
		err := s.db.WithTx(func(tx *storage.Tx) error {
			return tx.InsertJSON(storage.Surveys, sv.ID, sv.CreatedBy, sv, now)
		})
		if err != nil {
			return nil, fmt.Errorf("saving survey: %w", err)
		}
		s.surveys = append(s.surveys, sv)
		out = sv.clone()
		return []emission{{name: events.SurveyAdded, payload: sv.clone()}}, nil
	})
	if err != nil {
		return Survey{}, err
	}
	if out.Status == StatusActive {
		s.announce(ctx, out)
	}
	return out, nil
}

// Surveys returns the matching surveys, newest first.
func (s *Service) Surveys(f SurveyFilter) []Survey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Survey, 0, len(s.surveys))
	for _, sv := range s.surveys {
		if f.Status != "" && sv.Status != f.Status {
			continue
		}
		out = append(out, sv.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Service) Survey(id string) (Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.surveyIndex(id)
	if i < 0 {
		return Survey{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.surveys[i].clone(), nil
}

// UpdateSurvey applies u. Moving a survey to active announces it.
func (s *Service) UpdateSurvey(ctx context.Context, id string, u SurveyUpdate) (Survey, error) {
	var (
		out       Survey
		activated bool
	)
	err := s.mutate(ctx, func() ([]emission, error) {
		i := s.surveyIndex(id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		prev := s.surveys[i]
		next := prev.clone()
		if u.Title != nil {
			next.Title = *u.Title
		}
		if u.Description != nil {
			next.Description = *u.Description
		}
		if u.EndDate != nil {
			next.EndDate = *u.EndDate
		}
		if u.Questions != nil {
			if s.responseCount(id) > 0 {
				return nil, invalid("questions", "cannot change questions after responses were submitted")
			}
			next.Questions = append([]Question(nil), (*u.Questions)...)
		}
		if u.Status != nil && *u.Status != prev.Status {
			if !prev.Status.canMoveTo(*u.Status) {
				return nil, fmt.Errorf("%w: %s -> %s", portal.ErrInvalidTransition, prev.Status, *u.Status)
			}
			next.Status = *u.Status
			activated = next.Status == StatusActive
		}
		if err := validateSurvey(&next); err != nil {
			return nil, err
		}

		now := s.clock.Now().UTC()
		err := s.db.WithTx(func(tx *storage.Tx) error {
			v, err := tx.UpdateJSON(storage.Surveys, next.ID, next.CreatedBy, next, prev.Version, now)
			if err != nil {
				return err
			}
			next.Version = v
			return nil
		})
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				s.reloadSurvey(i)
			}
			return nil, fmt.Errorf("updating survey %s: %w", id, err)
		}
		s.surveys[i] = next
		out = next.clone()
		return []emission{{name: events.SurveyUpdated, payload: next.clone()}}, nil
	})
	if err != nil {
		return Survey{}, err
	}
	if activated {
		s.announce(ctx, out)
	}
	return out, nil
}

// announce broadcasts an opened survey. The survey itself is already
// stored, so a failure here is logged rather than returned.
func (s *Service) announce(ctx context.Context, sv Survey) {
	if s.notifier == nil {
		return
	}
	msg := sv.Description
	if msg == "" {
		msg = "A new survey is open for responses"
	}
	_, err := s.notifier.AddNotification(ctx, portal.NewNotification{
		Type:       TypeSurvey,
		Title:      "New survey: " + sv.Title,
		Message:    msg,
		TargetRole: portal.RoleAll,
		Data:       portal.GenericPayload{"surveyId": sv.ID, "title": sv.Title},
	})
	if err != nil {
		s.logger.Warn("survey announcement failed", "survey", sv.ID, "error", err)
	}
}

// AddResponse records one submission to an active survey.
func (s *Service) AddResponse(ctx context.Context, surveyID string, in NewResponse) (Response, error) {
	var out Response
	err := s.mutate(ctx, func() ([]emission, error) {
		i := s.surveyIndex(surveyID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, surveyID)
		}
		sv := s.surveys[i]
		now := s.clock.Now().UTC()
		if !s.accepting(sv, now) {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotActive, sv.ID, sv.Status)
		}

		r := Response{
			ID:          s.newID(),
			SurveyID:    sv.ID,
			SubmittedAt: now,
			Version:     1,
		}
		if !sv.Anonymous {
			if strings.TrimSpace(in.RespondentID) == "" {
				return nil, invalid("respondentId", "required for a named survey")
			}
			for _, existing := range s.responses {
				if existing.SurveyID == sv.ID && existing.RespondentID == in.RespondentID {
					return nil, fmt.Errorf("%w: %s", ErrAlreadyResponded, in.RespondentID)
				}
			}
			r.RespondentID = in.RespondentID
		}
		answers, err := normalizeAnswers(sv.Questions, in.Answers)
		if err != nil {
			return nil, err
		}
		r.Answers = answers

		err = s.db.WithTx(func(tx *storage.Tx) error {
			return tx.InsertJSON(storage.SurveyResponses, r.ID, r.SurveyID, r, now)
		})
		if err != nil {
			return nil, fmt.Errorf("saving survey response: %w", err)
		}
		s.responses = append(s.responses, r)
		out = r.clone()
		return []emission{{name: events.SurveyResponseAdded, payload: r.clone()}}, nil
	})
	if err != nil {
		return Response{}, err
	}
	return out, nil
}

func (s *Service) accepting(sv Survey, now time.Time) bool {
	if sv.Status != StatusActive {
		return false
	}
	if sv.EndDate == "" {
		return true
	}
	end, err := portal.ParseDate(sv.EndDate)
	if err != nil {
		return true
	}
	return now.Before(end.AddDate(0, 0, 1))
}

// Responses returns the submissions to one survey, newest first.
func (s *Service) Responses(surveyID string) ([]Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.surveyIndex(surveyID) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, surveyID)
	}
	var out []Response
	for _, r := range s.responses {
		if r.SurveyID == surveyID {
			out = append(out, r.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Service) surveyIndex(id string) int {
	for i := range s.surveys {
		if s.surveys[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) responseCount(surveyID string) int {
	n := 0
	for _, r := range s.responses {
		if r.SurveyID == surveyID {
			n++
		}
	}
	return n
}

// Clear deletes every survey and response, then emits data_cleared.
func (s *Service) Clear(ctx context.Context) error {
	return s.mutate(ctx, func() ([]emission, error) {
		if err := s.db.Clear(storage.Surveys, storage.SurveyResponses); err != nil {
			return nil, fmt.Errorf("clearing surveys: %w", err)
		}
		s.surveys = nil
		s.responses = nil
		return []emission{{name: events.DataCleared, payload: []storage.Collection{storage.Surveys, storage.SurveyResponses}}}, nil
	})
}

func (r Response) clone() Response {
	r.Answers = maps.Clone(r.Answers)
	return r
}

func (sv Survey) clone() Survey {
	qs := make([]Question, len(sv.Questions))
	for i, q := range sv.Questions {
		q.Options = append([]string(nil), q.Options...)
		qs[i] = q
	}
	sv.Questions = qs
	return sv
}
