package survey

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kalambet/staffdesk/internal/roster"
)

func TestStats_PerQuestionType(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	sv, err := s.AddSurvey(ctx, engagementSurvey(StatusActive))
	if err != nil {
		t.Fatalf("AddSurvey: %v", err)
	}
	answers := []map[string]any{
		{"q1": 5, "q2": "Mon", "q3": true, "q4": "Great team"},
		{"q1": 4, "q2": "Mon", "q3": "no"},
		{"q1": 3, "q2": "Fri", "q3": "yes", "q4": "More remote days"},
		{"q1": 4},
	}
	for _, a := range answers {
		if _, err := s.AddResponse(ctx, sv.ID, NewResponse{Answers: a}); err != nil {
			t.Fatalf("AddResponse(%v): %v", a, err)
		}
	}

	st, err := s.Stats(ctx, sv.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalResponses != 4 {
		t.Errorf("TotalResponses = %d, want 4", st.TotalResponses)
	}
	if st.Headcount != DefaultHeadcount {
		t.Errorf("Headcount = %d, want %d", st.Headcount, DefaultHeadcount)
	}
	// 4 / 156 = 2.564...%
	if st.ResponseRate != 2.6 {
		t.Errorf("ResponseRate = %v, want 2.6", st.ResponseRate)
	}
	if len(st.Questions) != 4 {
		t.Fatalf("questions = %d, want 4", len(st.Questions))
	}

	rating := st.Questions[0]
	if rating.Average != 4 || rating.Responses != 4 {
		t.Errorf("rating = %+v, want average 4 over 4", rating)
	}
	wantDist := map[int]int{1: 0, 2: 0, 3: 1, 4: 2, 5: 1}
	for k, v := range wantDist {
		if rating.Distribution[k] != v {
			t.Errorf("Distribution[%d] = %d, want %d", k, rating.Distribution[k], v)
		}
	}

	choice := st.Questions[1]
	if choice.Options["Mon"] != 2 || choice.Options["Fri"] != 1 || choice.Options["Wed"] != 0 {
		t.Errorf("options = %v", choice.Options)
	}
	if _, ok := choice.Options["Wed"]; !ok {
		t.Error("unchosen option should be present with zero count")
	}

	yn := st.Questions[2]
	if yn.Yes != 2 || yn.No != 1 || yn.Responses != 3 {
		t.Errorf("yes_no = %+v", yn)
	}

	text := st.Questions[3]
	if text.Responses != 2 || len(text.Answers) != 2 || text.Answers[0] != "Great team" {
		t.Errorf("text = %+v", text)
	}
}

func TestStats_YesNoZeroCountsEncoded(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	sv, _ := s.AddSurvey(ctx, engagementSurvey(StatusActive))
	if _, err := s.AddResponse(ctx, sv.ID, NewResponse{Answers: map[string]any{"q1": 4, "q3": "yes"}}); err != nil {
		t.Fatalf("AddResponse: %v", err)
	}
	st, err := s.Stats(ctx, sv.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	body, err := json.Marshal(st.Questions[2])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["yes"] != float64(1) {
		t.Errorf("yes = %v, want 1", got["yes"])
	}
	if no, ok := got["no"]; !ok || no != float64(0) {
		t.Errorf("no = %v (present %v), want 0", no, ok)
	}
}

func TestStats_UsesRosterAtCallTime(t *testing.T) {
	headcount := 10
	s := newTestService(t, Options{Roster: roster.Func(func(context.Context) (int, error) { return headcount, nil })})
	ctx := context.Background()

	sv, _ := s.AddSurvey(ctx, engagementSurvey(StatusActive))
	s.AddResponse(ctx, sv.ID, NewResponse{Answers: map[string]any{"q1": 2}})

	st, _ := s.Stats(ctx, sv.ID)
	if st.ResponseRate != 10 {
		t.Errorf("ResponseRate = %v, want 10", st.ResponseRate)
	}
	headcount = 3
	st, _ = s.Stats(ctx, sv.ID)
	if st.ResponseRate != 33.3 {
		t.Errorf("ResponseRate = %v, want 33.3", st.ResponseRate)
	}
}

func TestStats_Errors(t *testing.T) {
	s := newTestService(t, Options{Roster: roster.Static(0)})
	ctx := context.Background()

	if _, err := s.Stats(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	sv, _ := s.AddSurvey(ctx, engagementSurvey(StatusActive))
	if _, err := s.Stats(ctx, sv.ID); !errors.Is(err, roster.ErrUnavailable) {
		t.Errorf("err = %v, want roster.ErrUnavailable", err)
	}
}

func TestStats_EmptySurvey(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()
	sv, _ := s.AddSurvey(ctx, engagementSurvey(StatusDraft))

	st, err := s.Stats(ctx, sv.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalResponses != 0 || st.ResponseRate != 0 || st.Questions[0].Average != 0 {
		t.Errorf("stats = %+v, want zeros", st)
	}
}

func TestResponseRate(t *testing.T) {
	tests := []struct {
		responses, headcount int
		want                 float64
	}{
		{0, 156, 0},
		{78, 156, 50},
		{1, 156, 0.6},
		{5, 0, 0},
		{200, 156, 128.2},
	}
	for _, tt := range tests {
		if got := responseRate(tt.responses, tt.headcount); got != tt.want {
			t.Errorf("responseRate(%d, %d) = %v, want %v", tt.responses, tt.headcount, got, tt.want)
		}
	}
}
