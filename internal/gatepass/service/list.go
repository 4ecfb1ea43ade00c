package service

import (
	"context"

	"gatehouse/internal/gatepass/models"
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/audit"
)

// ListQuery is the caller-controlled part of a listing.
type ListQuery struct {
	// FlatNo narrows the gate log to one flat. Ignored for occupant listings.
	FlatNo string
	Status string
	Page   int
	Limit  int
}

// ListVisitors returns the caller's own flat history, newest first, limited
// to the caller's visibility window: a tenant sees records from its move-in
// on, an owner never sees records created during any tenancy.
func (s *Service) ListVisitors(ctx context.Context, actor domain.Principal, q ListQuery) (_ models.Page, err error) {
	ctx, finish := s.startOp(ctx, "list")
	defer func() { finish(err) }()

	status, err := parseStatusFilter(q.Status)
	if err != nil {
		return models.Page{}, err
	}
	vis, err := s.occupancy.Visibility(ctx, actor)
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return models.Page{}, err
		}
		return models.Page{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve flat occupancy")
	}
	return s.page(ctx, models.ListFilter{
		SocietyID:  actor.SocietyID,
		FlatNo:     vis.FlatNo,
		Status:     status,
		Visibility: &vis,
		Page:       q.Page,
		Limit:      q.Limit,
	})
}

// ListGateLog returns the society-wide gate log for guards and admins.
func (s *Service) ListGateLog(ctx context.Context, actor domain.Principal, q ListQuery) (_ models.Page, err error) {
	ctx, finish := s.startOp(ctx, "gate_log")
	defer func() { finish(err) }()

	status, err := parseStatusFilter(q.Status)
	if err != nil {
		return models.Page{}, err
	}
	return s.page(ctx, models.ListFilter{
		SocietyID: actor.SocietyID,
		FlatNo:    domain.NormalizeFlat(q.FlatNo),
		Status:    status,
		Page:      q.Page,
		Limit:     q.Limit,
	})
}

func (s *Service) page(ctx context.Context, f models.ListFilter) (models.Page, error) {
	f.Normalize()
	visitors, total, err := s.store.List(ctx, f)
	if err != nil {
		return models.Page{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list visitors")
	}
	return models.NewPage(visitors, total, f), nil
}

// History returns the audit trail of one record of the caller's society.
func (s *Service) History(ctx context.Context, actor domain.Principal, id domain.VisitorID) ([]audit.Event, error) {
	if _, err := s.loadInSociety(ctx, actor, id); err != nil {
		return nil, err
	}
	if s.auditPublisher == nil {
		return []audit.Event{}, nil
	}
	events, err := s.auditPublisher.List(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load visitor history")
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}

func parseStatusFilter(raw string) (models.Status, error) {
	if raw == "" {
		return "", nil
	}
	return models.ParseStatus(raw)
}
