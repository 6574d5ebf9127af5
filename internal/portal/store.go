// Package portal is the shared state store of the HR portal: vacation
// requests, objectives and notifications, persisted per record and
// announced on an event bus after every mutation.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/staffdesk/internal/events"
	"github.com/kalambet/staffdesk/internal/storage"
)

// Persister is the storage the Store writes through. Implemented by storage.Store.
type Persister interface {
	LoadAll(c storage.Collection) ([]storage.Record, error)
	Get(c storage.Collection, id string) (storage.Record, error)
	WithTx(fn func(tx *storage.Tx) error) error
	Clear(collections ...storage.Collection) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options configures New. Zero values select the production defaults.
type Options struct {
	Clock  Clock
	NewID  func() string
	Bus    *events.Bus
	Logger *slog.Logger

	// Seed replaces the built-in demo data. It is applied only when the
	// vacation collection is empty at construction.
	Seed     *SeedData
	SkipSeed bool
}

// Store holds the portal collections in memory and writes every change
// through to the Persister before it becomes visible.
type Store struct {
	db     Persister
	clock  Clock
	newID  func() string
	bus    *events.Bus
	logger *slog.Logger

	mu            sync.RWMutex
	vacations     []VacationRequest
	objectives    []Objective
	notifications []Notification
}

func newUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// New hydrates a Store from db and seeds it when no vacation request exists.
func New(db Persister, opts Options) (*Store, error) {
	s := &Store{
		db:     db,
		clock:  opts.Clock,
		newID:  opts.NewID,
		bus:    opts.Bus,
		logger: opts.Logger,
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.newID == nil {
		s.newID = newUUID
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.bus == nil {
		s.bus = events.NewBus(s.logger)
	}

	if err := s.hydrate(); err != nil {
		return nil, err
	}
	if !opts.SkipSeed && len(s.vacations) == 0 {
		seed := opts.Seed
		if seed == nil {
			seed = DefaultSeed()
		}
		if err := s.applySeed(seed); err != nil {
			return nil, fmt.Errorf("seeding store: %w", err)
		}
	}
	return s, nil
}

// Bus returns the event bus mutations are published on.
func (s *Store) Bus() *events.Bus {
	return s.bus
}

// Subscribe registers fn for the named event.
func (s *Store) Subscribe(name events.Name, fn events.Handler) events.Subscription {
	return s.bus.Subscribe(name, fn)
}

func setVacationVersion(v *VacationRequest, version int) { v.Version = version }
func setObjectiveVersion(o *Objective, version int) { o.Version = version }
func setNotificationVersion(n *Notification, version int) { n.Version = version }

func (s *Store) hydrate() error {
	var err error
	if s.vacations, err = loadCollection(s, storage.VacationRequests, setVacationVersion); err != nil {
		return err
	}
	if s.objectives, err = loadCollection(s, storage.Objectives, setObjectiveVersion); err != nil {
		return err
	}
	if s.notifications, err = loadCollection(s, storage.Notifications, setNotificationVersion); err != nil {
		return err
	}
	return nil
}

// loadCollection decodes every row of c. Rows that fail to decode are
// logged and skipped.
func loadCollection[T any](s *Store, c storage.Collection, setVersion func(*T, int)) ([]T, error) {
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

// refresh replaces *slot with the stored row for id. It runs after a
// version conflict so the next write is checked against the current version.
func refresh[T any](s *Store, c storage.Collection, id string, slot *T, setVersion func(*T, int)) {
	rec, err := s.db.Get(c, id)
	if err != nil {
		s.logger.Warn("reloading record after conflict", "collection", string(c), "id", id, "error", err)
		return
	}
	var v T
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		s.logger.Warn("malformed record after conflict", "collection", string(c), "id", id, "error", err)
		return
	}
	setVersion(&v, rec.Version)
	*slot = v
}

// update writes v over the stored row at version and returns the new version.
func update(tx *storage.Tx, c storage.Collection, id, owner string, v any, version int, at time.Time) (int, error) {
	next, err := tx.UpdateJSON(c, id, owner, v, version, at)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s %s", ErrNotFound, c, id)
	}
	return next, err
}

type emission struct {
	name    events.Name
	payload any
}

// mutate runs fn under the write lock and publishes its emissions after the
// lock is released, so handlers may read from or write to the store.
func (s *Store) mutate(ctx context.Context, fn func() ([]emission, error)) error {
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

func (s *Store) locked(fn func() ([]emission, error)) ([]emission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

var clearedCollections = []storage.Collection{storage.VacationRequests, storage.Objectives, storage.Notifications}

// ClearAllData deletes every vacation request, objective and notification
// from storage and memory, then emits data_cleared.
func (s *Store) ClearAllData(ctx context.Context) error {
	return s.mutate(ctx, func() ([]emission, error) {
		if err := s.db.Clear(clearedCollections...); err != nil {
			return nil, fmt.Errorf("clearing portal data: %w", err)
		}
		s.vacations = nil
		s.objectives = nil
		s.notifications = nil
		return []emission{{name: events.DataCleared, payload: clearedCollections}}, nil
	})
}

// Stats returns a snapshot of the collection counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		TotalVacationRequests: len(s.vacations),
		TotalObjectives:       len(s.objectives),
	}
	for _, v := range s.vacations {
		if v.Status == StatusPending {
			st.PendingVacationRequests++
		}
	}
	for _, o := range s.objectives {
		if o.Status == ObjectiveCompleted {
			st.CompletedObjectives++
		}
	}
	for _, n := range s.notifications {
		if !n.Read {
			st.UnreadNotifications++
		}
	}
	return st
}

func (r VacationRequest) clone() VacationRequest {
	if r.ApprovedDate != nil {
		d := *r.ApprovedDate
		r.ApprovedDate = &d
	}
	return r
}

func (n Notification) clone() Notification {
	if g, ok := n.Data.(GenericPayload); ok {
		n.Data = GenericPayload(maps.Clone(map[string]any(g)))
	}
	return n
}

// newestFirst orders by timestamp descending, breaking ties by id descending.
func newestFirst(ti, tj time.Time, idi, idj string) bool {
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return idi > idj
}

func sortVacations(rs []VacationRequest) {
	sort.Slice(rs, func(i, j int) bool {
		return newestFirst(rs[i].RequestDate, rs[j].RequestDate, rs[i].ID, rs[j].ID)
	})
}
