package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"gatehouse/internal/directory/models"
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/audit"
	"gatehouse/pkg/platform/sentinel"
	"gatehouse/pkg/requestcontext"
)

// Store is the persistence port for accounts.
type Store interface {
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id domain.AccountID) (*models.Account, error)
	FindByMobile(ctx context.Context, mobile string) (*models.Account, error)
	FindActiveAccounts(ctx context.Context, society domain.SocietyID, flatNo string, role domain.Role) ([]*models.Account, error)
	ListTenancies(ctx context.Context, society domain.SocietyID, flatNo string) ([]models.Tenancy, error)
	ListOccupants(ctx context.Context, society domain.SocietyID) ([]*models.Account, error)
	RegisterDeviceToken(ctx context.Context, id domain.AccountID, token string) error
	Execute(ctx context.Context, id domain.AccountID, validate func(*models.Account) error, mutate func(*models.Account)) (*models.Account, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service answers identity and tenancy questions for the rest of the system.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadPrincipal resolves an authenticated account to its authorization view.
// Unknown accounts are unauthorized; accounts that are not ACTIVE are forbidden.
func (s *Service) LoadPrincipal(ctx context.Context, id domain.AccountID) (domain.Principal, error) {
	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "account not found")
		}
		return domain.Principal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if !a.IsActive() {
		return domain.Principal{}, dErrors.New(dErrors.CodeForbidden, "account is not active")
	}
	return a.Principal(), nil
}

func (s *Service) FindByID(ctx context.Context, id domain.AccountID) (*models.Account, error) {
	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return a, nil
}

func (s *Service) FindByMobile(ctx context.Context, mobile string) (*models.Account, error) {
	a, err := s.store.FindByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return a, nil
}

// FindActiveAccounts lists ACTIVE accounts with role in the flat.
func (s *Service) FindActiveAccounts(ctx context.Context, society domain.SocietyID, flatNo string, role domain.Role) ([]*models.Account, error) {
	accounts, err := s.store.FindActiveAccounts(ctx, society, domain.NormalizeFlat(flatNo), role)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up flat accounts")
	}
	return accounts, nil
}

func (s *Service) ListTenancies(ctx context.Context, society domain.SocietyID, flatNo string) ([]models.Tenancy, error) {
	tenancies, err := s.store.ListTenancies(ctx, society, domain.NormalizeFlat(flatNo))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenancies")
	}
	return tenancies, nil
}

func (s *Service) RegisterDeviceToken(ctx context.Context, id domain.AccountID, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.RegisterDeviceToken(ctx, id, token); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register device token")
	}
	return nil
}

// ListFlats returns the occupied flats of the actor's society with the name of
// the current controller. A flat with an active tenant is shown as tenant
// controlled.
func (s *Service) ListFlats(ctx context.Context, actor domain.Principal) ([]models.FlatSummary, error) {
	occupants, err := s.store.ListOccupants(ctx, actor.SocietyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list flats")
	}

	byFlat := make(map[string]models.FlatSummary)
	for _, a := range occupants {
		current, seen := byFlat[a.FlatNo]
		switch {
		case a.Roles.Has(domain.RoleTenant):
			if !seen || current.Occupancy != string(domain.RoleTenant) {
				byFlat[a.FlatNo] = models.FlatSummary{FlatNo: a.FlatNo, ControllerName: a.Name, Occupancy: string(domain.RoleTenant)}
			}
		case !seen:
			byFlat[a.FlatNo] = models.FlatSummary{FlatNo: a.FlatNo, ControllerName: a.Name, Occupancy: string(domain.RoleOwner)}
		}
	}

	flats := make([]models.FlatSummary, 0, len(byFlat))
	for _, f := range byFlat {
		flats = append(flats, f)
	}
	sort.Slice(flats, func(i, j int) bool { return flats[i].FlatNo < flats[j].FlatNo })
	return flats, nil
}

// RemoveTenant ends every active tenancy of the flat, handing control back to
// the owners. Each removed tenant is deactivated at the request time.
func (s *Service) RemoveTenant(ctx context.Context, actor domain.Principal, flatNo string) (int, error) {
	flatNo = domain.NormalizeFlat(flatNo)
	if flatNo == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "flatNo is required")
	}
	tenants, err := s.store.FindActiveAccounts(ctx, actor.SocietyID, flatNo, domain.RoleTenant)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up tenants")
	}
	if len(tenants) == 0 {
		return 0, dErrors.New(dErrors.CodeNotFound, "flat has no active tenant")
	}

	now := requestcontext.Now(ctx)
	removed := 0
	for _, t := range tenants {
		_, err := s.store.Execute(ctx, t.ID, (*models.Account).CanDeactivate, func(a *models.Account) {
			a.ApplyDeactivation(now)
		})
		if err != nil {
			// Deactivated concurrently; the handoff still happened.
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) || errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return removed, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove tenant")
		}
		removed++
		s.emitAudit(ctx, audit.Event{
			Action:    string(audit.EventTenantRemoved),
			ActorID:   actor.AccountID,
			SocietyID: actor.SocietyID,
			FlatNo:    flatNo,
			Reason:    "tenant " + t.ID.String() + " removed",
		})
	}
	s.logger.InfoContext(ctx, "tenants removed",
		"request_id", requestcontext.RequestID(ctx),
		"flat_no", flatNo,
		"count", removed,
	)
	return removed, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.Device = requestcontext.Device(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
