package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/staffdesk/internal/events"
	"github.com/kalambet/staffdesk/internal/storage"
)

// AddVacationRequest stores a new pending request and notifies HR.
func (s *Store) AddVacationRequest(ctx context.Context, in NewVacationRequest) (VacationRequest, error) {
	var out VacationRequest
	err := s.mutate(ctx, func() ([]emission, error) {
		now := s.clock.Now().UTC()
		req := VacationRequest{
			ID:           s.newID(),
			EmployeeID:   in.EmployeeID,
			EmployeeName: in.EmployeeName,
			Type:         in.Type,
			StartDate:    in.StartDate,
			EndDate:      in.EndDate,
			Days:         in.Days,
			Reason:       in.Reason,
			Status:       StatusPending,
			RequestDate:  now,
			Comments:     in.Comments,
			Version:      1,
		}
		if err := validateVacation(&req); err != nil {
			return nil, err
		}

		notif := s.buildNotification(now, NewNotification{
			Type:       TypeVacationRequest,
			Title:      "New vacation request",
			Message:    fmt.Sprintf("%s requested %d day(s) of %s leave from %s to %s", req.EmployeeName, req.Days, req.Type, req.StartDate, req.EndDate),
			TargetRole: RoleHR,
			Data: VacationRequestPayload{
				RequestID:    req.ID,
				EmployeeID:   req.EmployeeID,
				EmployeeName: req.EmployeeName,
				Type:         req.Type,
				StartDate:    req.StartDate,
				EndDate:      req.EndDate,
				Days:         req.Days,
			},
		})

		err := s.db.WithTx(func(tx *storage.Tx) error {
			if err := tx.InsertJSON(storage.VacationRequests, req.ID, req.EmployeeID, req, now); err != nil {
				return err
			}
			return tx.InsertJSON(storage.Notifications, notif.ID, notif.TargetUserID, notif, now)
		})
		if err != nil {
			return nil, fmt.Errorf("saving vacation request: %w", err)
		}

		s.vacations = append(s.vacations, req)
		s.notifications = append(s.notifications, notif)
		out = req.clone()
		return []emission{
			{name: events.NotificationAdded, payload: notif.clone()},
			{name: events.VacationRequestAdded, payload: req.clone()},
		}, nil
	})
	if err != nil {
		return VacationRequest{}, err
	}
	return out, nil
}

// VacationRequests returns the matching requests, newest first.
func (s *Store) VacationRequests(f VacationFilter) []VacationRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]VacationRequest, 0, len(s.vacations))
	for _, r := range s.vacations {
		if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r.clone())
	}
	sortVacations(out)
	return out
}

// VacationRequest returns one request by id.
func (s *Store) VacationRequest(id string) (VacationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.vacationIndex(id)
	if i < 0 {
		return VacationRequest{}, fmt.Errorf("%w: vacation request %s", ErrNotFound, id)
	}
	return s.vacations[i].clone(), nil
}

// UpdateVacationRequest merges u into the request. A status change must
// leave pending; it stamps approvedDate when none is given and notifies the
// employee who filed the request.
func (s *Store) UpdateVacationRequest(ctx context.Context, id string, u VacationUpdate) (VacationRequest, error) {
	var out VacationRequest
	err := s.mutate(ctx, func() ([]emission, error) {
		i := s.vacationIndex(id)
		if i < 0 {
			return nil, fmt.Errorf("%w: vacation request %s", ErrNotFound, id)
		}
		prev := s.vacations[i]
		next := prev.clone()
		u.apply(&next)

		now := s.clock.Now().UTC()
		statusChanged := next.Status != prev.Status
		if statusChanged {
			if prev.Status.Terminal() {
				return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, next.Status)
			}
			if u.ApprovedDate == nil {
				next.ApprovedDate = &now
			}
		}
		if err := validateVacation(&next); err != nil {
			return nil, err
		}

		var notif *Notification
		if statusChanged {
			n := s.buildNotification(now, NewNotification{
				Type:         TypeVacationStatusUpdate,
				Title:        "Vacation request " + string(next.Status),
				Message:      fmt.Sprintf("Your %s leave from %s to %s was %s", next.Type, next.StartDate, next.EndDate, next.Status),
				TargetRole:   RoleEmployee,
				TargetUserID: prev.EmployeeID,
				Data: VacationStatusPayload{
					RequestID:      next.ID,
					Status:         next.Status,
					PreviousStatus: prev.Status,
					ApprovedBy:     next.ApprovedBy,
				},
			})
			notif = &n
		}

		err := s.db.WithTx(func(tx *storage.Tx) error {
			v, err := update(tx, storage.VacationRequests, next.ID, next.EmployeeID, next, prev.Version, now)
			if err != nil {
				return err
			}
			next.Version = v
			if notif != nil {
				return tx.InsertJSON(storage.Notifications, notif.ID, notif.TargetUserID, *notif, now)
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				refresh(s, storage.VacationRequests, id, &s.vacations[i], setVacationVersion)
			}
			return nil, fmt.Errorf("updating vacation request %s: %w", id, err)
		}

		s.vacations[i] = next
		out = next.clone()
		var evs []emission
		if notif != nil {
			s.notifications = append(s.notifications, *notif)
			evs = append(evs, emission{name: events.NotificationAdded, payload: notif.clone()})
		}
		evs = append(evs, emission{name: events.VacationRequestUpdated, payload: next.clone()})
		return evs, nil
	})
	if err != nil {
		return VacationRequest{}, err
	}
	return out, nil
}

// Approve and Reject are the decisions HR makes on a pending request.
func (s *Store) Approve(ctx context.Context, id, approver, comments string) (VacationRequest, error) {
	return s.decide(ctx, id, StatusApproved, approver, comments)
}

func (s *Store) Reject(ctx context.Context, id, approver, comments string) (VacationRequest, error) {
	return s.decide(ctx, id, StatusRejected, approver, comments)
}

func (s *Store) decide(ctx context.Context, id string, status VacationStatus, approver, comments string) (VacationRequest, error) {
	u := VacationUpdate{Status: &status, ApprovedBy: &approver}
	if comments != "" {
		u.Comments = &comments
	}
	return s.UpdateVacationRequest(ctx, id, u)
}

func (s *Store) vacationIndex(id string) int {
	for i := range s.vacations {
		if s.vacations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) buildNotification(at time.Time, in NewNotification) Notification {
	return Notification{
		ID:           s.newID(),
		Type:         in.Type,
		Title:        in.Title,
		Message:      in.Message,
		Timestamp:    at,
		TargetRole:   in.TargetRole,
		TargetUserID: in.TargetUserID,
		Data:         in.Data,
		Version:      1,
	}
}
