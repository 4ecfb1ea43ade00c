package models

import (
	"gatehouse/internal/occupancy"
	"gatehouse/pkg/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilter selects records of one society, newest first.
type ListFilter struct {
	SocietyID domain.SocietyID
	// FlatNo narrows to one flat; empty means the whole society.
	FlatNo string
	Status Status
	// Visibility, when set, hides records outside the occupant's window.
	Visibility *occupancy.Visibility
	Page       int
	Limit      int
}

// Normalize clamps paging to sane bounds.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of a listing.
type Page struct {
	Visitors    []*VisitorLog `json:"visitors"`
	Total       int           `json:"total"`
	CurrentPage int           `json:"currentPage"`
	TotalPages  int           `json:"totalPages"`
	HasMore     bool          `json:"hasMore"`
}

// NewPage computes paging metadata for total matches.
func NewPage(visitors []*VisitorLog, total int, f ListFilter) Page {
	totalPages := 0
	if total > 0 {
		totalPages = (total + f.Limit - 1) / f.Limit
	}
	if visitors == nil {
		visitors = []*VisitorLog{}
	}
	return Page{
		Visitors:    visitors,
		Total:       total,
		CurrentPage: f.Page,
		TotalPages:  totalPages,
		HasMore:     f.Page < totalPages,
	}
}
