package portal

import (
	"encoding/json"
	"fmt"
	"time"
)

type VacationType string

const (
	VacationPaid      VacationType = "paid"
	VacationUnpaid    VacationType = "unpaid"
	VacationSick      VacationType = "sick"
	VacationMaternity VacationType = "maternity"
	VacationPaternity VacationType = "paternity"
)

func (t VacationType) valid() bool {
	switch t {
	case VacationPaid, VacationUnpaid, VacationSick, VacationMaternity, VacationPaternity:
		return true
	}
	return false
}

type VacationStatus string

const (
	StatusPending  VacationStatus = "pending"
	StatusApproved VacationStatus = "approved"
	StatusRejected VacationStatus = "rejected"
)

func (s VacationStatus) valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Terminal reports whether no further transition is allowed from s.
func (s VacationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// VacationRequest is one employee's leave request. Dates are calendar dates
// in YYYY-MM-DD form.
type VacationRequest struct {
	ID           string         `json:"id"`
	EmployeeID   string         `json:"employeeId"`
	EmployeeName string         `json:"employeeName"`
	Type         VacationType   `json:"type"`
	StartDate    string         `json:"startDate"`
	EndDate      string         `json:"endDate"`
	Days         int            `json:"days"`
	Reason       string         `json:"reason"`
	Status       VacationStatus `json:"status"`
	RequestDate  time.Time      `json:"requestDate"`
	ApprovedBy   string         `json:"approvedBy,omitempty"`
	ApprovedDate *time.Time     `json:"approvedDate,omitempty"`
	Comments     string         `json:"comments,omitempty"`
	Version      int            `json:"version"`
}

// NewVacationRequest is the caller-supplied part of a vacation request; the
// store assigns id, status and requestDate.
type NewVacationRequest struct {
	EmployeeID   string       `json:"employeeId" yaml:"employeeId"`
	EmployeeName string       `json:"employeeName" yaml:"employeeName"`
	Type         VacationType `json:"type" yaml:"type"`
	StartDate    string       `json:"startDate" yaml:"startDate"`
	EndDate      string       `json:"endDate" yaml:"endDate"`
	Days         int          `json:"days" yaml:"days"`
	Reason       string       `json:"reason" yaml:"reason"`
	Comments     string       `json:"comments,omitempty" yaml:"comments,omitempty"`
}

// VacationUpdate is a shallow patch: every non-nil field replaces the stored value.
type VacationUpdate struct {
	EmployeeName *string         `json:"employeeName,omitempty"`
	Type         *VacationType   `json:"type,omitempty"`
	StartDate    *string         `json:"startDate,omitempty"`
	EndDate      *string         `json:"endDate,omitempty"`
	Days         *int            `json:"days,omitempty"`
	Reason       *string         `json:"reason,omitempty"`
	Status       *VacationStatus `json:"status,omitempty"`
	ApprovedBy   *string         `json:"approvedBy,omitempty"`
	ApprovedDate *time.Time      `json:"approvedDate,omitempty"`
	Comments     *string         `json:"comments,omitempty"`
}

func (u VacationUpdate) apply(r *VacationRequest) {
	if u.EmployeeName != nil {
		r.EmployeeName = *u.EmployeeName
	}
	if u.Type != nil {
		r.Type = *u.Type
	}
	if u.StartDate != nil {
		r.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		r.EndDate = *u.EndDate
	}
	if u.Days != nil {
		r.Days = *u.Days
	}
	if u.Reason != nil {
		r.Reason = *u.Reason
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.ApprovedBy != nil {
		r.ApprovedBy = *u.ApprovedBy
	}
	if u.ApprovedDate != nil {
		d := *u.ApprovedDate
		r.ApprovedDate = &d
	}
	if u.Comments != nil {
		r.Comments = *u.Comments
	}
}

type VacationFilter struct {
	EmployeeID string
	Status     VacationStatus
}

type ObjectiveStatus string

const (
	ObjectiveNotStarted ObjectiveStatus = "not_started"
	ObjectiveInProgress ObjectiveStatus = "in_progress"
	ObjectiveCompleted  ObjectiveStatus = "completed"
	ObjectiveOverdue    ObjectiveStatus = "overdue"
)

func (s ObjectiveStatus) valid() bool {
	switch s {
	case ObjectiveNotStarted, ObjectiveInProgress, ObjectiveCompleted, ObjectiveOverdue:
		return true
	}
	return false
}

type Objective struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	EmployeeID   string          `json:"employeeId"`
	EmployeeName string          `json:"employeeName"`
	ManagerID    string          `json:"managerId"`
	Progress     int             `json:"progress"`
	Status       ObjectiveStatus `json:"status"`
	DueDate      string          `json:"dueDate"`
	CreatedAt    time.Time       `json:"createdAt"`
	Version      int             `json:"version"`
}

type NewObjective struct {
	Title        string          `json:"title" yaml:"title"`
	EmployeeID   string          `json:"employeeId" yaml:"employeeId"`
	EmployeeName string          `json:"employeeName" yaml:"employeeName"`
	ManagerID    string          `json:"managerId" yaml:"managerId"`
	Progress     int             `json:"progress" yaml:"progress"`
	Status       ObjectiveStatus `json:"status" yaml:"status"`
	DueDate      string          `json:"dueDate" yaml:"dueDate"`
}

type ObjectiveUpdate struct {
	Title        *string          `json:"title,omitempty"`
	EmployeeName *string          `json:"employeeName,omitempty"`
	ManagerID    *string          `json:"managerId,omitempty"`
	Progress     *int             `json:"progress,omitempty"`
	Status       *ObjectiveStatus `json:"status,omitempty"`
	DueDate      *string          `json:"dueDate,omitempty"`
}

func (u ObjectiveUpdate) apply(o *Objective) {
	if u.Title != nil {
		o.Title = *u.Title
	}
	if u.EmployeeName != nil {
		o.EmployeeName = *u.EmployeeName
	}
	if u.ManagerID != nil {
		o.ManagerID = *u.ManagerID
	}
	if u.Progress != nil {
		o.Progress = *u.Progress
	}
	if u.Status != nil {
		o.Status = *u.Status
	}
	if u.DueDate != nil {
		o.DueDate = *u.DueDate
	}
}

type ObjectiveFilter struct {
	EmployeeID string
	ManagerID  string
	Status     ObjectiveStatus
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHR       Role = "hr"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
	RoleAll      Role = "all"
)

func (r Role) valid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleManager, RoleEmployee, RoleAll:
		return true
	}
	return false
}

// Notification types synthesized by the store. Callers may use any other tag.
const (
	TypeVacationRequest         = "vacation_request"
	TypeVacationStatusUpdate    = "vacation_status_update"
	TypeObjectiveProgressUpdate = "objective_progress_update"
)

// Notification is addressed to a role, and optionally to one user within it.
type Notification struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Read         bool      `json:"read"`
	TargetRole   Role      `json:"targetRole"`
	TargetUserID string    `json:"targetUserId,omitempty"`
	Data         Payload   `json:"data,omitempty"`
	Version      int       `json:"version"`
}

type NewNotification struct {
	Type         string  `json:"type"`
	Title        string  `json:"title"`
	Message      string  `json:"message"`
	TargetRole   Role    `json:"targetRole"`
	TargetUserID string  `json:"targetUserId,omitempty"`
	Data         Payload `json:"data,omitempty"`
}

// UnmarshalJSON decodes Data into the payload type selected by Type.
func (n *Notification) UnmarshalJSON(b []byte) error {
	type alias Notification
	aux := struct {
		*alias
		Data json.RawMessage `json:"data,omitempty"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p, err := DecodePayload(n.Type, aux.Data)
	if err != nil {
		return err
	}
	n.Data = p
	return nil
}

// UnmarshalJSON decodes Data into the payload type selected by Type.
func (n *NewNotification) UnmarshalJSON(b []byte) error {
	type alias NewNotification
	aux := struct {
		*alias
		Data json.RawMessage `json:"data,omitempty"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p, err := DecodePayload(n.Type, aux.Data)
	if err != nil {
		return err
	}
	n.Data = p
	return nil
}

type NotificationFilter struct {
	Role       Role
	UserID     string
	UnreadOnly bool
}

func (f NotificationFilter) match(n Notification) bool {
	if f.Role != "" && n.TargetRole != f.Role && n.TargetRole != RoleAll {
		return false
	}
	if f.UserID != "" && n.TargetUserID != "" && n.TargetUserID != f.UserID {
		return false
	}
	if f.UnreadOnly && n.Read {
		return false
	}
	return true
}

// Payload is the typed body of a notification. The concrete type is chosen
// by the notification's Type.
type Payload interface {
	isPayload()
}

type VacationRequestPayload struct {
	RequestID    string       `json:"requestId"`
	EmployeeID   string       `json:"employeeId"`
	EmployeeName string       `json:"employeeName"`
	Type         VacationType `json:"type"`
	StartDate    string       `json:"startDate"`
	EndDate      string       `json:"endDate"`
	Days         int          `json:"days"`
}

type VacationStatusPayload struct {
	RequestID      string         `json:"requestId"`
	Status         VacationStatus `json:"status"`
	PreviousStatus VacationStatus `json:"previousStatus"`
	ApprovedBy     string         `json:"approvedBy,omitempty"`
}

type ObjectiveProgressPayload struct {
	ObjectiveID      string `json:"objectiveId"`
	EmployeeID       string `json:"employeeId"`
	Progress         int    `json:"progress"`
	PreviousProgress int    `json:"previousProgress"`
}

// GenericPayload carries the body of any notification type the store does
// not synthesize itself.
type GenericPayload map[string]any

func (VacationRequestPayload) isPayload()   {}
func (VacationStatusPayload) isPayload()    {}
func (ObjectiveProgressPayload) isPayload() {}
func (GenericPayload) isPayload()           {}

// DecodePayload parses raw into the payload type for notifType. Empty or
// null input yields a nil payload.
func DecodePayload(notifType string, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var (
		p   Payload
		err error
	)
	switch notifType {
	case TypeVacationRequest:
		var v VacationRequestPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeVacationStatusUpdate:
		var v VacationStatusPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeObjectiveProgressUpdate:
		var v ObjectiveProgressPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		var v GenericPayload
		err = json.Unmarshal(raw, &v)
		p = v
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", notifType, err)
	}
	return p, nil
}

// Stats is a point-in-time count snapshot.
type Stats struct {
	TotalVacationRequests   int `json:"totalVacationRequests"`
	PendingVacationRequests int `json:"pendingVacationRequests"`
	TotalObjectives         int `json:"totalObjectives"`
	CompletedObjectives     int `json:"completedObjectives"`
	UnreadNotifications     int `json:"unreadNotifications"`
}
