package portal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an update names an unknown id.
	ErrNotFound = errors.New("not found")
	// ErrInvalid matches every *ValidationError via errors.Is.
	ErrInvalid = errors.New("invalid input")
	// ErrInvalidTransition is returned when a vacation request leaves a terminal status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError rejects one field of a create or update.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

// InclusiveDays counts calendar days from start to end, both included.
func InclusiveDays(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}

// validateVacation checks r and fills Days when it is zero.
func validateVacation(r *VacationRequest) error {
	if strings.TrimSpace(r.EmployeeID) == "" {
		return invalid("employeeId", "required")
	}
	if strings.TrimSpace(r.EmployeeName) == "" {
		return invalid("employeeName", "required")
	}
	if !r.Type.valid() {
		return invalid("type", "unknown vacation type %q", r.Type)
	}
	if !r.Status.valid() {
		return invalid("status", "unknown status %q", r.Status)
	}
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return invalid("startDate", "want YYYY-MM-DD, got %q", r.StartDate)
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return invalid("endDate", "want YYYY-MM-DD, got %q", r.EndDate)
	}
	if end.Before(start) {
		return invalid("endDate", "before startDate")
	}
	switch {
	case r.Days == 0:
		r.Days = InclusiveDays(start, end)
	case r.Days < 0:
		return invalid("days", "must be at least 1")
	}
	return nil
}

func validateObjective(o *Objective) error {
	if strings.TrimSpace(o.Title) == "" {
		return invalid("title", "required")
	}
	if strings.TrimSpace(o.EmployeeID) == "" {
		return invalid("employeeId", "required")
	}
	if strings.TrimSpace(o.ManagerID) == "" {
		return invalid("managerId", "required")
	}
	if o.Progress < 0 || o.Progress > 100 {
		return invalid("progress", "must be between 0 and 100, got %d", o.Progress)
	}
	if o.Status == "" {
		o.Status = ObjectiveNotStarted
	}
	if !o.Status.valid() {
		return invalid("status", "unknown status %q", o.Status)
	}
	if o.DueDate != "" {
		if _, err := ParseDate(o.DueDate); err != nil {
			return invalid("dueDate", "want YYYY-MM-DD, got %q", o.DueDate)
		}
	}
	return nil
}

func validateNotification(n NewNotification) error {
	if strings.TrimSpace(n.Type) == "" {
		return invalid("type", "required")
	}
	if strings.TrimSpace(n.Title) == "" {
		return invalid("title", "required")
	}
	if !n.TargetRole.valid() {
		return invalid("targetRole", "unknown role %q", n.TargetRole)
	}
	return nil
}
