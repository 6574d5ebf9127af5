package survey

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Stats aggregates the responses to one survey. The response rate is
// measured against the roster headcount, queried on every call.
func (s *Service) Stats(ctx context.Context, surveyID string) (Stats, error) {
	s.mu.RLock()
	i := s.surveyIndex(surveyID)
	if i < 0 {
		s.mu.RUnlock()
		return Stats{}, fmt.Errorf("%w: %s", ErrNotFound, surveyID)
	}
	sv := s.surveys[i].clone()
	var responses []Response
	for _, r := range s.responses {
		if r.SurveyID == surveyID {
			responses = append(responses, r.clone())
		}
	}
	s.mu.RUnlock()

	headcount, err := s.roster.Headcount(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("reading headcount: %w", err)
	}

	st := Stats{
		SurveyID:       sv.ID,
		TotalResponses: len(responses),
		Headcount:      headcount,
		ResponseRate:   responseRate(len(responses), headcount),
		Questions:      make([]QuestionStats, 0, len(sv.Questions)),
	}
	for _, q := range sv.Questions {
		st.Questions = append(st.Questions, questionStats(q, responses))
	}
	return st, nil
}

// responseRate is responses/headcount as a percentage with one decimal.
func responseRate(responses, headcount int) float64 {
	if headcount <= 0 {
		return 0
	}
	return math.Round(float64(responses)/float64(headcount)*1000) / 10
}

func questionStats(q Question, responses []Response) QuestionStats {
	qs := QuestionStats{QuestionID: q.ID, Type: q.Type, Text: q.Text}

	switch q.Type {
	case QuestionRating:
		qs.Distribution = make(map[int]int, MaxRating-MinRating+1)
		for v := MinRating; v <= MaxRating; v++ {
			qs.Distribution[v] = 0
		}
		sum := 0
		for _, r := range responses {
			n, ok := number(r.Answers[q.ID])
			if !ok {
				continue
			}
			v := int(n)
			if v < MinRating || v > MaxRating {
				continue
			}
			qs.Distribution[v]++
			sum += v
			qs.Responses++
		}
		if qs.Responses > 0 {
			qs.Average = float64(sum) / float64(qs.Responses)
		}

	case QuestionMultipleChoice:
		qs.Options = make(map[string]int, len(q.Options))
		for _, opt := range q.Options {
			qs.Options[opt] = 0
		}
		for _, r := range responses {
			opt, ok := r.Answers[q.ID].(string)
			if !ok {
				continue
			}
			qs.Options[opt]++
			qs.Responses++
		}

	case QuestionYesNo:
		for _, r := range responses {
			yes, ok := yesNo(r.Answers[q.ID])
			if !ok {
				continue
			}
			if yes {
				qs.Yes++
			} else {
				qs.No++
			}
			qs.Responses++
		}

	case QuestionText:
		for _, r := range responses {
			text, ok := r.Answers[q.ID].(string)
			if !ok || strings.TrimSpace(text) == "" {
				continue
			}
			qs.Answers = append(qs.Answers, text)
			qs.Responses++
		}
	}
	return qs
}

// normalizeAnswers checks answers against the questions and returns them
// in canonical form: int for rating, string for multiple_choice and text,
// bool for yes_no.
func normalizeAnswers(questions []Question, answers map[string]any) (map[string]any, error) {
	known := make(map[string]bool, len(questions))
	out := make(map[string]any, len(answers))
	for _, q := range questions {
		known[q.ID] = true
		raw, present := answers[q.ID]
		if !present || raw == nil || raw == "" {
			if q.Required {
				return nil, invalid("answers", "question %s is required", q.ID)
			}
			continue
		}
		v, err := normalizeAnswer(q, raw)
		if err != nil {
			return nil, err
		}
		out[q.ID] = v
	}
	for id := range answers {
		if !known[id] {
			return nil, invalid("answers", "unknown question %q", id)
		}
	}
	return out, nil
}

func normalizeAnswer(q Question, raw any) (any, error) {
	switch q.Type {
	case QuestionRating:
		n, ok := number(raw)
		if !ok || n != math.Trunc(n) || n < MinRating || n > MaxRating {
			return nil, invalid("answers", "question %s: rating must be an integer from %d to %d", q.ID, MinRating, MaxRating)
		}
		return int(n), nil
	case QuestionMultipleChoice:
		s, ok := raw.(string)
		if ok {
			for _, opt := range q.Options {
				if opt == s {
					return s, nil
				}
			}
		}
		return nil, invalid("answers", "question %s: %v is not one of the options", q.ID, raw)
	case QuestionYesNo:
		yes, ok := yesNo(raw)
		if !ok {
			return nil, invalid("answers", "question %s: want yes or no", q.ID)
		}
		return yes, nil
	default:
		s, ok := raw.(string)
		if !ok {
			return nil, invalid("answers", "question %s: want text", q.ID)
		}
		return s, nil
	}
}

// number accepts the numeric forms an answer takes in Go callers and
// after a JSON round trip.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func yesNo(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(x) {
		case "yes":
			return true, true
		case "no":
			return false, true
		}
	}
	return false, false
}
