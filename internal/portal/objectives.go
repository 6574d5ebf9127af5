package portal

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kalambet/staffdesk/internal/events"
	"github.com/kalambet/staffdesk/internal/storage"
)

// AddObjective stores a new objective and emits objective_added. An empty
// status defaults to not_started.
func (s *Store) AddObjective(ctx context.Context, in NewObjective) (Objective, error) {
	var out Objective
	err := s.mutate(ctx, func() ([]emission, error) {
		now := s.clock.Now().UTC()
		o := Objective{
			ID:           s.newID(),
			Title:        in.Title,
			EmployeeID:   in.EmployeeID,
			EmployeeName: in.EmployeeName,
			ManagerID:    in.ManagerID,
			Progress:     in.Progress,
			Status:       in.Status,
			DueDate:      in.DueDate,
			CreatedAt:    now,
			Version:      1,
		}
		if err := validateObjective(&o); err != nil {
			return nil, err
		}
		err := s.db.WithTx(func(tx *storage.Tx) error {
			return tx.InsertJSON(storage.Objectives, o.ID, o.EmployeeID, o, now)
		})
		if err != nil {
			return nil, fmt.Errorf("saving objective: %w", err)
		}
		s.objectives = append(s.objectives, o)
		out = o
		return []emission{{name: events.ObjectiveAdded, payload: o}}, nil
	})
	if err != nil {
		return Objective{}, err
	}
	return out, nil
}

// Objectives returns the matching objectives, newest first.
func (s *Store) Objectives(f ObjectiveFilter) []Objective {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Objective, 0, len(s.objectives))
	for _, o := range s.objectives {
		if f.EmployeeID != "" && o.EmployeeID != f.EmployeeID {
			continue
		}
		if f.ManagerID != "" && o.ManagerID != f.ManagerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out
}

// UpdateObjective merges u into the objective. The manager is notified only
// when progress changes value.
func (s *Store) UpdateObjective(ctx context.Context, id string, u ObjectiveUpdate) (Objective, error) {
	var out Objective
	err := s.mutate(ctx, func() ([]emission, error) {
		i := s.objectiveIndex(id)
		if i < 0 {
			return nil, fmt.Errorf("%w: objective %s", ErrNotFound, id)
		}
		prev := s.objectives[i]
		next := prev
		u.apply(&next)
		if err := validateObjective(&next); err != nil {
			return nil, err
		}

		now := s.clock.Now().UTC()
		var notif *Notification
		if next.Progress != prev.Progress {
			n := s.buildNotification(now, NewNotification{
				Type:         TypeObjectiveProgressUpdate,
				Title:        "Objective progress updated",
				Message:      fmt.Sprintf("%s moved %q from %d%% to %d%%", next.EmployeeName, next.Title, prev.Progress, next.Progress),
				TargetRole:   RoleManager,
				TargetUserID: next.ManagerID,
				Data: ObjectiveProgressPayload{
					ObjectiveID:      next.ID,
					EmployeeID:       next.EmployeeID,
					Progress:         next.Progress,
					PreviousProgress: prev.Progress,
				},
			})
			notif = &n
		}

		err := s.db.WithTx(func(tx *storage.Tx) error {
			v, err := update(tx, storage.Objectives, next.ID, next.EmployeeID, next, prev.Version, now)
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
				refresh(s, storage.Objectives, id, &s.objectives[i], setObjectiveVersion)
			}
			return nil, fmt.Errorf("updating objective %s: %w", id, err)
		}

		s.objectives[i] = next
		out = next
		var evs []emission
		if notif != nil {
			s.notifications = append(s.notifications, *notif)
			evs = append(evs, emission{name: events.NotificationAdded, payload: notif.clone()})
		}
		evs = append(evs, emission{name: events.ObjectiveUpdated, payload: next})
		return evs, nil
	})
	if err != nil {
		return Objective{}, err
	}
	return out, nil
}

func (s *Store) objectiveIndex(id string) int {
	for i := range s.objectives {
		if s.objectives[i].ID == id {
			return i
		}
	}
	return -1
}
