package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gatehouse/internal/gatepass/models"
	"gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
)

// InMemory keeps visitor logs in a map guarded by one mutex. Execute holds
// the write lock across validate and mutate, which makes every transition a
// compare-and-set.
type InMemory struct {
	mu       sync.RWMutex
	visitors map[domain.VisitorID]*models.VisitorLog
}

func NewInMemory() *InMemory {
	return &InMemory{visitors: make(map[domain.VisitorID]*models.VisitorLog)}
}

// Create inserts v. A second PENDING arrival for the same flat and mobile, or
// a pass code already live in the society, is a conflict.
func (s *InMemory) Create(_ context.Context, v *models.VisitorLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.visitors[v.ID]; exists {
		return fmt.Errorf("visitor %s: %w", v.ID, sentinel.ErrConflict)
	}
	for _, existing := range s.visitors {
		if existing.SocietyID != v.SocietyID {
			continue
		}
		if pendingDuplicate(existing, v) {
			return fmt.Errorf("pending arrival already logged: %w", sentinel.ErrConflict)
		}
		if v.Pass != nil && existing.Pass != nil && existing.Pass.Status == models.OTPActive &&
			existing.Pass.Code == v.Pass.Code {
			return fmt.Errorf("guest code in use: %w", sentinel.ErrConflict)
		}
	}
	s.visitors[v.ID] = v.Clone()
	return nil
}

func pendingDuplicate(existing, v *models.VisitorLog) bool {
	return v.Status == models.StatusPending && existing.Status == models.StatusPending &&
		v.PersonMobile != "" && existing.PersonMobile == v.PersonMobile && existing.FlatNo == v.FlatNo
}

func (s *InMemory) FindByID(_ context.Context, id domain.VisitorID) (*models.VisitorLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.visitors[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return v.Clone(), nil
}

// FindActiveGuestPass returns the APPROVED record holding an ACTIVE pass with
// code in the society, expired or not.
func (s *InMemory) FindActiveGuestPass(_ context.Context, society domain.SocietyID, code string) (*models.VisitorLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.visitors {
		if v.SocietyID == society && v.PassOpen() && v.Pass.Code == code {
			return v.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) Execute(_ context.Context, id domain.VisitorID, validate func(*models.VisitorLog) error, mutate func(*models.VisitorLog)) (*models.VisitorLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visitors[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := v.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.visitors[id] = working
	return working.Clone(), nil
}

// List returns one page of matches, newest first, and the total match count.
// The filter is expected to be normalized.
func (s *InMemory) List(_ context.Context, f models.ListFilter) ([]*models.VisitorLog, int, error) {
	s.mu.RLock()
	var matched []*models.VisitorLog
	for _, v := range s.visitors {
		if matches(v, f) {
			matched = append(matched, v.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	return matched[start:end], total, nil
}

func matches(v *models.VisitorLog, f models.ListFilter) bool {
	if v.SocietyID != f.SocietyID {
		return false
	}
	if f.FlatNo != "" && v.FlatNo != f.FlatNo {
		return false
	}
	if f.Status != "" && v.Status != f.Status {
		return false
	}
	if f.Visibility != nil && !f.Visibility.Allows(v.CreatedAt) {
		return false
	}
	return true
}
