package portal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/staffdesk/internal/storage"
)

// SeedData is the initial content written into an empty store.
type SeedData struct {
	VacationRequests []NewVacationRequest `yaml:"vacationRequests"`
	Objectives       []NewObjective       `yaml:"objectives"`
}

// DefaultSeed is the single pending demo request a fresh portal starts with.
func DefaultSeed() *SeedData {
	return &SeedData{
		VacationRequests: []NewVacationRequest{{
			EmployeeID:   "emp1",
			EmployeeName: "John Employee",
			Type:         VacationPaid,
			StartDate:    "2024-06-01",
			EndDate:      "2024-06-05",
			Days:         5,
			Reason:       "Family vacation",
		}},
	}
}

// LoadSeedFile reads a YAML seed file. Unknown keys are rejected.
func LoadSeedFile(path string) (*SeedData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var seed SeedData
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return &seed, nil
}

// applySeed writes seed records directly, without synthesized notifications
// or events. Objectives are seeded only into an empty collection.
func (s *Store) applySeed(seed *SeedData) error {
	now := s.clock.Now().UTC()
	var vacations []VacationRequest
	for i, in := range seed.VacationRequests {
		r := VacationRequest{
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
		if err := validateVacation(&r); err != nil {
			return fmt.Errorf("vacation request %d: %w", i, err)
		}
		vacations = append(vacations, r)
	}

	var objectives []Objective
	if len(s.objectives) == 0 {
		for i, in := range seed.Objectives {
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
				return fmt.Errorf("objective %d: %w", i, err)
			}
			objectives = append(objectives, o)
		}
	}

	err := s.db.WithTx(func(tx *storage.Tx) error {
		for _, r := range vacations {
			if err := tx.InsertJSON(storage.VacationRequests, r.ID, r.EmployeeID, r, now); err != nil {
				return err
			}
		}
		for _, o := range objectives {
			if err := tx.InsertJSON(storage.Objectives, o.ID, o.EmployeeID, o, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.vacations = append(s.vacations, vacations...)
	s.objectives = append(s.objectives, objectives...)
	s.logger.Debug("seeded store", "vacation_requests", len(vacations), "objectives", len(objectives))
	return nil
}
