package portal

import (
	"encoding/json"
	"testing"
)

func TestNotificationJSON_TaggedPayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{
			name: "vacation request",
			in:   `{"id":"n1","type":"vacation_request","targetRole":"hr","data":{"requestId":"r1","days":3}}`,
			want: VacationRequestPayload{RequestID: "r1", Days: 3},
		},
		{
			name: "status update",
			in:   `{"id":"n2","type":"vacation_status_update","targetRole":"employee","data":{"requestId":"r1","status":"approved","previousStatus":"pending"}}`,
			want: VacationStatusPayload{RequestID: "r1", Status: StatusApproved, PreviousStatus: StatusPending},
		},
		{
			name: "objective progress",
			in:   `{"id":"n3","type":"objective_progress_update","targetRole":"manager","data":{"objectiveId":"o1","progress":50,"previousProgress":20}}`,
			want: ObjectiveProgressPayload{ObjectiveID: "o1", Progress: 50, PreviousProgress: 20},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Notification
			if err := json.Unmarshal([]byte(tt.in), &n); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if n.Data != tt.want {
				t.Errorf("Data = %#v, want %#v", n.Data, tt.want)
			}
		})
	}
}

func TestNotificationJSON_GenericAndEmpty(t *testing.T) {
	var n Notification
	if err := json.Unmarshal([]byte(`{"type":"survey","data":{"surveyId":"s1"}}`), &n); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	g, ok := n.Data.(GenericPayload)
	if !ok || g["surveyId"] != "s1" {
		t.Errorf("Data = %#v, want GenericPayload with surveyId", n.Data)
	}

	var empty Notification
	if err := json.Unmarshal([]byte(`{"type":"announcement","title":"hi"}`), &empty); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if empty.Data != nil || empty.Title != "hi" {
		t.Errorf("got %+v, want nil data and title hi", empty)
	}
}

func TestNewNotificationJSON_RejectsMismatchedPayload(t *testing.T) {
	var n NewNotification
	err := json.Unmarshal([]byte(`{"type":"objective_progress_update","data":{"progress":"lots"}}`), &n)
	if err == nil {
		t.Fatal("expected error for a payload that does not fit its type")
	}
}

func TestNotificationFilter_Match(t *testing.T) {
	tests := []struct {
		name string
		f    NotificationFilter
		n    Notification
		want bool
	}{
		{"empty filter", NotificationFilter{}, Notification{TargetRole: RoleHR}, true},
		{"role match", NotificationFilter{Role: RoleHR}, Notification{TargetRole: RoleHR}, true},
		{"broadcast role", NotificationFilter{Role: RoleHR}, Notification{TargetRole: RoleAll}, true},
		{"other role", NotificationFilter{Role: RoleHR}, Notification{TargetRole: RoleManager}, false},
		{"addressed to user", NotificationFilter{UserID: "u1"}, Notification{TargetUserID: "u1"}, true},
		{"addressed to other", NotificationFilter{UserID: "u1"}, Notification{TargetUserID: "u2"}, false},
		{"unread only", NotificationFilter{UnreadOnly: true}, Notification{Read: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.match(tt.n); got != tt.want {
				t.Errorf("match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInclusiveDays(t *testing.T) {
	start, _ := ParseDate("2024-06-01")
	end, _ := ParseDate("2024-06-05")
	if got := InclusiveDays(start, end); got != 5 {
		t.Errorf("InclusiveDays = %d, want 5", got)
	}
	if got := InclusiveDays(start, start); got != 1 {
		t.Errorf("InclusiveDays(same day) = %d, want 1", got)
	}
}
