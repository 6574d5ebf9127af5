package portal

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kalambet/staffdesk/internal/events"
	"github.com/kalambet/staffdesk/internal/storage"
)

// AddNotification stores an unread notification and emits notification_added.
func (s *Store) AddNotification(ctx context.Context, in NewNotification) (Notification, error) {
	if err := validateNotification(in); err != nil {
		return Notification{}, err
	}
	var out Notification
	err := s.mutate(ctx, func() ([]emission, error) {
		now := s.clock.Now().UTC()
		n := s.buildNotification(now, in)
		err := s.db.WithTx(func(tx *storage.Tx) error {
			return tx.InsertJSON(storage.Notifications, n.ID, n.TargetUserID, n, now)
		})
		if err != nil {
			return nil, fmt.Errorf("saving notification: %w", err)
		}
		s.notifications = append(s.notifications, n)
		out = n.clone()
		return []emission{{name: events.NotificationAdded, payload: n.clone()}}, nil
	})
	if err != nil {
		return Notification{}, err
	}
	return out, nil
}

// Notifications returns the notifications visible under f, newest first.
// A role filter also matches notifications broadcast to RoleAll; a user
// filter also matches notifications with no target user.
func (s *Store) Notifications(f NotificationFilter) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if f.match(n) {
			out = append(out, n.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].Timestamp, out[j].Timestamp, out[i].ID, out[j].ID)
	})
	return out
}

// MarkNotificationRead marks one notification read. Unknown ids and
// notifications already read are a no-op.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	return s.mutate(ctx, func() ([]emission, error) {
		i := s.notificationIndex(id)
		if i < 0 || s.notifications[i].Read {
			return nil, nil
		}
		return s.markRead([]int{i})
	})
}

// MarkAllNotificationsRead marks every unread notification matching f read
// and returns how many changed.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, f NotificationFilter) (int, error) {
	f.UnreadOnly = true
	var count int
	err := s.mutate(ctx, func() ([]emission, error) {
		var idx []int
		for i, n := range s.notifications {
			if f.match(n) {
				idx = append(idx, i)
			}
		}
		if len(idx) == 0 {
			return nil, nil
		}
		evs, err := s.markRead(idx)
		if err != nil {
			return nil, err
		}
		count = len(evs)
		return evs, nil
	})
	return count, err
}

// markRead persists the read flag for the notifications at idx in one
// transaction and applies it in memory. Callers hold the write lock.
func (s *Store) markRead(idx []int) ([]emission, error) {
	now := s.clock.Now().UTC()
	next := make([]Notification, len(idx))
	err := s.db.WithTx(func(tx *storage.Tx) error {
		for k, i := range idx {
			n := s.notifications[i]
			n.Read = true
			v, err := update(tx, storage.Notifications, n.ID, n.TargetUserID, n, n.Version, now)
			if err != nil {
				return err
			}
			n.Version = v
			next[k] = n
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			for _, i := range idx {
				refresh(s, storage.Notifications, s.notifications[i].ID, &s.notifications[i], setNotificationVersion)
			}
		}
		return nil, fmt.Errorf("marking notifications read: %w", err)
	}

	evs := make([]emission, 0, len(idx))
	for k, i := range idx {
		s.notifications[i] = next[k]
		evs = append(evs, emission{name: events.NotificationUpdated, payload: next[k].clone()})
	}
	return evs, nil
}

func (s *Store) notificationIndex(id string) int {
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			return i
		}
	}
	return -1
}
