package survey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/staffdesk/internal/events"
	"github.com/kalambet/staffdesk/internal/portal"
	"github.com/kalambet/staffdesk/internal/roster"
	"github.com/kalambet/staffdesk/internal/storage"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

type recordingNotifier struct {
	sent []portal.NewNotification
	err  error
}

func (n *recordingNotifier) AddNotification(_ context.Context, in portal.NewNotification) (portal.Notification, error) {
	if n.err != nil {
		return portal.Notification{}, n.err
	}
	n.sent = append(n.sent, in)
	return portal.Notification{Type: in.Type, Title: in.Title}, nil
}

func openTestDB(t *testing.T) *storage.Store {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = &fixedClock{t: time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)}
	}
	s, err := New(openTestDB(t), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func engagementSurvey(status Status) NewSurvey {
	return NewSurvey{
		Title:     "Engagement pulse",
		CreatedBy: "hr1",
		Status:    status,
		Anonymous: true,
		Questions: []Question{
			{ID: "q1", Type: QuestionRating, Text: "How happy are you?", Required: true},
			{ID: "q2", Type: QuestionMultipleChoice, Text: "Preferred office day", Options: []string{"Mon", "Wed", "Fri"}},
			{ID: "q3", Type: QuestionYesNo, Text: "Would you recommend us?"},
			{ID: "q4", Type: QuestionText, Text: "Anything else?"},
		},
	}
}

func TestAddSurvey_DefaultsAndAnnouncement(t *testing.T) {
	n := &recordingNotifier{}
	s := newTestService(t, Options{Notifier: n})
	ctx := context.Background()

	draft := engagementSurvey("")
	draft.Questions[0].ID = ""
	sv, err := s.AddSurvey(ctx, draft)
	if err != nil {
		t.Fatalf("AddSurvey: %v", err)
	}
	if sv.Status != StatusDraft {
		t.Errorf("Status = %q, want draft", sv.Status)
	}
	if sv.Questions[0].ID != "q1" {
		t.Errorf("generated question id = %q, want q1", sv.Questions[0].ID)
	}
	if len(n.sent) != 0 {
		t.Fatalf("draft survey sent %d notifications, want 0", len(n.sent))
	}

	active, err := s.AddSurvey(ctx, engagementSurvey(StatusActive))
	if err != nil {
		t.Fatalf("AddSurvey(active): %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(n.sent))
	}
	got := n.sent[0]
	if got.Type != TypeSurvey || got.TargetRole != portal.RoleAll {
		t.Errorf("notification = %+v", got)
	}
	if p, ok := got.Data.(portal.GenericPayload); !ok || p["surveyId"] != active.ID {
		t.Errorf("payload = %#v", got.Data)
	}
}

func TestAddSurvey_Validation(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		mod  func(*NewSurvey)
	}{
		{"no title", func(sv *NewSurvey) { sv.Title = " " }},
		{"no questions", func(sv *NewSurvey) { sv.Questions = nil }},
		{"unknown question type", func(sv *NewSurvey) { sv.Questions[0].Type = "slider" }},
		{"single option", func(sv *NewSurvey) { sv.Questions[1].Options = []string{"Mon"} }},
		{"duplicate ids", func(sv *NewSurvey) { sv.Questions[1].ID = "q1" }},
		{"bad end date", func(sv *NewSurvey) { sv.EndDate = "soon" }},
		{"bad status", func(sv *NewSurvey) { sv.Status = "archived" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := engagementSurvey(StatusDraft)
			tt.mod(&in)
			if _, err := s.AddSurvey(ctx, in); !errors.Is(err, portal.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestUpdateSurvey_Transitions(t *testing.T) {
	n := &recordingNotifier{}
	s := newTestService(t, Options{Notifier: n})
	ctx := context.Background()

	sv, _ := s.AddSurvey(ctx, engagementSurvey(StatusDraft))
	active := StatusActive
	got, err := s.UpdateSurvey(ctx, sv.ID, SurveyUpdate{Status: &active})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got.Status != StatusActive || got.Version != 2 {
		t.Errorf("survey = %+v", got)
	}
	if len(n.sent) != 1 {
		t.Errorf("activation sent %d notifications, want 1", len(n.sent))
	}

	closed := StatusClosed
	if _, err := s.UpdateSurvey(ctx, sv.ID, SurveyUpdate{Status: &closed}); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.UpdateSurvey(ctx, sv.ID, SurveyUpdate{Status: &active}); !errors.Is(err, portal.ErrInvalidTransition) {
		t.Errorf("reopen err = %v, want ErrInvalidTransition", err)
	}
	if _, err := s.UpdateSurvey(ctx, "missing", SurveyUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateSurvey_ConflictRefreshes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	a, err := New(db, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sv, _ := a.AddSurvey(ctx, engagementSurvey(StatusDraft))

	b, err := New(db, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	title := "Quarterly pulse"
	if _, err := b.UpdateSurvey(ctx, sv.ID, SurveyUpdate{Title: &title}); err != nil {
		t.Fatalf("UpdateSurvey via b: %v", err)
	}

	desc := "Five minutes, anonymous"
	if _, err := a.UpdateSurvey(ctx, sv.ID, SurveyUpdate{Description: &desc}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	got, _ := a.Survey(sv.ID)
	if got.Title != title || got.Version != 2 {
		t.Errorf("after conflict: title %q version %d, want %q/2", got.Title, got.Version, title)
	}

	got, err = a.UpdateSurvey(ctx, sv.ID, SurveyUpdate{Description: &desc})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Title != title || got.Description != desc || got.Version != 3 {
		t.Errorf("retry = %+v", got)
	}
}

func TestUpdateSurvey_QuestionsLockedAfterResponses(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	sv, _ := s.AddSurvey(ctx, engagementSurvey(StatusActive))
	if _, err := s.AddResponse(ctx, sv.ID, NewResponse{Answers: map[string]any{"q1": 4}}); err != nil {
		t.Fatalf("AddResponse: %v", err)
	}
	qs := []Question{{ID: "q1", Type: QuestionText, Text: "Changed"}}
	if _, err := s.UpdateSurvey(ctx, sv.ID, SurveyUpdate{Questions: &qs}); !errors.Is(err, portal.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestAddResponse_Rules(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	draft, _ := s.AddSurvey(ctx, engagementSurvey(StatusDraft))
	if _, err := s.AddResponse(ctx, draft.ID, NewResponse{Answers: map[string]any{"q1": 3}}); !errors.Is(err, ErrNotActive) {
		t.Errorf("draft err = %v, want ErrNotActive", err)
	}
	if _, err := s.AddResponse(ctx, "missing", NewResponse{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}

	sv, _ := s.AddSurvey(ctx, engagementSurvey(StatusActive))
	invalidAnswers := []map[string]any{
		{},
		{"q1": 6},
		{"q1": 2.5},
		{"q1": 3, "q2": "Sun"},
		{"q1": 3, "q3": "maybe"},
		{"q1": 3, "q4": 12},
		{"q1": 3, "q9": "x"},
	}
	for _, a := range invalidAnswers {
		if _, err := s.AddResponse(ctx, sv.ID, NewResponse{Answers: a}); !errors.Is(err, portal.ErrInvalid) {
			t.Errorf("answers %v: err = %v, want ErrInvalid", a, err)
		}
	}

	r, err := s.AddResponse(ctx, sv.ID, NewResponse{RespondentID: "emp1", Answers: map[string]any{"q1": 5.0, "q3": "YES"}})
	if err != nil {
		t.Fatalf("AddResponse: %v", err)
	}
	if r.RespondentID != "" {
		t.Errorf("anonymous survey kept respondent %q", r.RespondentID)
	}
	if r.Answers["q1"] != 5 || r.Answers["q3"] != true {
		t.Errorf("answers = %v, want normalized rating 5 and yes=true", r.Answers)
	}
}

func TestAddResponse_NamedSurvey(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	in := engagementSurvey(StatusActive)
	in.Anonymous = false
	sv, _ := s.AddSurvey(ctx, in)

	if _, err := s.AddResponse(ctx, sv.ID, NewResponse{Answers: map[string]any{"q1": 3}}); !errors.Is(err, portal.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid without respondent", err)
	}
	if _, err := s.AddResponse(ctx, sv.ID, NewResponse{RespondentID: "emp1", Answers: map[string]any{"q1": 3}}); err != nil {
		t.Fatalf("AddResponse: %v", err)
	}
	if _, err := s.AddResponse(ctx, sv.ID, NewResponse{RespondentID: "emp1", Answers: map[string]any{"q1": 4}}); !errors.Is(err, ErrAlreadyResponded) {
		t.Errorf("err = %v, want ErrAlreadyResponded", err)
	}
}

func TestAddResponse_AfterEndDate(t *testing.T) {
	clock := &fixedClock{t: time.Date(2024, 4, 30, 23, 0, 0, 0, time.UTC)}
	s := newTestService(t, Options{Clock: clock})
	ctx := context.Background()

	in := engagementSurvey(StatusActive)
	in.EndDate = "2024-04-30"
	sv, _ := s.AddSurvey(ctx, in)

	if _, err := s.AddResponse(ctx, sv.ID, NewResponse{Answers: map[string]any{"q1": 3}}); err != nil {
		t.Fatalf("AddResponse on the end date: %v", err)
	}
	clock.t = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.AddResponse(ctx, sv.ID, NewResponse{Answers: map[string]any{"q1": 3}}); !errors.Is(err, ErrNotActive) {
		t.Errorf("err = %v, want ErrNotActive after the end date", err)
	}
}

func TestEventsAndResponsesOrder(t *testing.T) {
	bus := events.NewBus(nil)
	s := newTestService(t, Options{Bus: bus})
	ctx := context.Background()

	var names []events.Name
	bus.SubscribeAll(func(ev events.Event) error { names = append(names, ev.Name); return nil })

	sv, _ := s.AddSurvey(ctx, engagementSurvey(StatusActive))
	first, _ := s.AddResponse(ctx, sv.ID, NewResponse{Answers: map[string]any{"q1": 1}})
	second, _ := s.AddResponse(ctx, sv.ID, NewResponse{Answers: map[string]any{"q1": 2}})

	want := []events.Name{events.SurveyAdded, events.SurveyResponseAdded, events.SurveyResponseAdded}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	rs, err := s.Responses(sv.ID)
	if err != nil {
		t.Fatalf("Responses: %v", err)
	}
	if len(rs) != 2 || rs[0].ID != second.ID || rs[1].ID != first.ID {
		t.Errorf("responses not newest first: %+v", rs)
	}
}

func TestHydration_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	s, _ := New(db, Options{})
	sv, _ := s.AddSurvey(ctx, engagementSurvey(StatusActive))
	s.AddResponse(ctx, sv.ID, NewResponse{Answers: map[string]any{"q1": 4, "q2": "Wed", "q3": true, "q4": "more snacks"}})
	db.Close()

	db2, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	s2, err := New(db2, Options{Roster: roster.Static(10)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	st, err := s2.Stats(ctx, sv.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalResponses != 1 || st.ResponseRate != 10 {
		t.Errorf("stats = %+v, want 1 response at 10%%", st)
	}
	if st.Questions[0].Distribution[4] != 1 || st.Questions[1].Options["Wed"] != 1 || st.Questions[2].Yes != 1 {
		t.Errorf("question stats after reload = %+v", st.Questions)
	}
}

func TestClear(t *testing.T) {
	db := openTestDB(t)
	s, _ := New(db, Options{})
	ctx := context.Background()
	sv, _ := s.AddSurvey(ctx, engagementSurvey(StatusActive))
	s.AddResponse(ctx, sv.ID, NewResponse{Answers: map[string]any{"q1": 4}})

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := s.Surveys(SurveyFilter{}); len(got) != 0 {
		t.Errorf("surveys = %d, want 0", len(got))
	}
	for _, c := range []storage.Collection{storage.Surveys, storage.SurveyResponses} {
		if recs, _ := db.LoadAll(c); len(recs) != 0 {
			t.Errorf("%s rows = %d, want 0", c, len(recs))
		}
	}
}

func TestAnnouncementFailureDoesNotFailCreate(t *testing.T) {
	s := newTestService(t, Options{Notifier: &recordingNotifier{err: errors.New("store closed")}})
	if _, err := s.AddSurvey(context.Background(), engagementSurvey(StatusActive)); err != nil {
		t.Fatalf("AddSurvey: %v", err)
	}
	if got := s.Surveys(SurveyFilter{Status: StatusActive}); len(got) != 1 {
		t.Errorf("active surveys = %d, want 1", len(got))
	}
}
