package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dirmodels "gatehouse/internal/directory/models"
	"gatehouse/internal/gatepass/metrics"
	"gatehouse/internal/gatepass/models"
	"gatehouse/internal/notify"
	"gatehouse/internal/occupancy"
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/audit"
	"gatehouse/pkg/platform/sentinel"
	"gatehouse/pkg/requestcontext"
)

// DefaultGuestPassTTL is how long an issued guest code stays redeemable.
const DefaultGuestPassTTL = 12 * time.Hour

// Store is the persistence port for visitor logs.
type Store interface {
	Create(ctx context.Context, v *models.VisitorLog) error
	FindByID(ctx context.Context, id domain.VisitorID) (*models.VisitorLog, error)
	FindActiveGuestPass(ctx context.Context, society domain.SocietyID, code string) (*models.VisitorLog, error)
	Execute(ctx context.Context, id domain.VisitorID, validate func(*models.VisitorLog) error, mutate func(*models.VisitorLog)) (*models.VisitorLog, error)
	List(ctx context.Context, f models.ListFilter) ([]*models.VisitorLog, int, error)
}

// Occupancy resolves flat controllers and occupant visibility.
type Occupancy interface {
	Controllers(ctx context.Context, society domain.SocietyID, flatNo string) (occupancy.Controllers, error)
	Visibility(ctx context.Context, actor domain.Principal) (occupancy.Visibility, error)
}

// Accounts looks up guards and issuers for notification.
type Accounts interface {
	FindByID(ctx context.Context, id domain.AccountID) (*dirmodels.Account, error)
}

type Notifier interface {
	Notify(ctx context.Context, msg notify.Message)
}

type PhotoStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

// CodeSender delivers a guest code to the guest's mobile.
type CodeSender interface {
	Send(ctx context.Context, to, body string) error
}

// TxRunner opens a transaction that stores and the audit sink join.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	List(ctx context.Context, visitorID domain.VisitorID) ([]audit.Event, error)
}

// Service runs the visitor gate-pass workflow.
type Service struct {
	store          Store
	occupancy      Occupancy
	accounts       Accounts
	notifier       Notifier
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	tx             TxRunner
	photos         PhotoStore
	codeSender     CodeSender
	generateCode   func() (string, error)
	guestPassTTL   time.Duration
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

// WithTxRunner makes every transition commit together with its audit event.
// A failed audit write then fails the transition.
func WithTxRunner(r TxRunner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func WithPhotoStore(p PhotoStore) Option {
	return func(s *Service) {
		s.photos = p
	}
}

// WithCodeSender texts issued guest codes to the guest.
func WithCodeSender(c CodeSender) Option {
	return func(s *Service) {
		s.codeSender = c
	}
}

func WithGuestPassTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.guestPassTTL = ttl
		}
	}
}

// WithCodeGenerator replaces the random guest code source.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.generateCode = fn
	}
}

func New(store Store, occ Occupancy, accounts Accounts, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:        store,
		occupancy:    occ,
		accounts:     accounts,
		notifier:     notifier,
		logger:       slog.Default(),
		generateCode: GenerateGuestCode,
		guestPassTTL: DefaultGuestPassTTL,
		tracer:       otel.Tracer("gatehouse/gatepass"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// startOp opens a span and returns a finisher recording latency and the
// outcome.
func (s *Service) startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "gatepass."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		s.metrics.ObserveOperation(op, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
			if dErrors.HasCode(err, dErrors.CodeInvalidState) {
				s.metrics.IncrementStale(op)
			}
		}
		span.End()
	}
}

func (s *Service) transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

// recordAudit emits a gate event. Inside a transaction the error is returned
// so the transition rolls back with it; otherwise it is only logged.
func (s *Service) recordAudit(ctx context.Context, action audit.AuditEvent, actor domain.Principal, v *models.VisitorLog, from models.Status) error {
	if s.auditPublisher == nil {
		return nil
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:     string(action),
		Timestamp:  requestcontext.Now(ctx),
		ActorID:    actor.AccountID,
		SocietyID:  v.SocietyID,
		VisitorID:  v.ID,
		FlatNo:     v.FlatNo,
		FromStatus: string(from),
		ToStatus:   string(v.Status),
		ClientIP:   requestcontext.ClientIP(ctx),
		Device:     requestcontext.Device(ctx),
		RequestID:  requestcontext.RequestID(ctx),
	})
	if err == nil {
		return nil
	}
	if s.tx != nil {
		return err
	}
	s.logger.WarnContext(ctx, "failed to emit audit event",
		"request_id", requestcontext.RequestID(ctx),
		"action", action,
		"visitor_id", v.ID,
		"error", err,
	)
	return nil
}

// transition runs validate and mutate against the stored record and records
// the audit event in the same unit of work.
func (s *Service) transition(ctx context.Context, actor domain.Principal, id domain.VisitorID, action audit.AuditEvent,
	validate func(*models.VisitorLog) error, mutate func(*models.VisitorLog)) (*models.VisitorLog, error) {
	var (
		updated *models.VisitorLog
		from    models.Status
	)
	err := s.transact(ctx, func(ctx context.Context) error {
		v, err := s.store.Execute(ctx, id, validate, func(v *models.VisitorLog) {
			from = v.Status
			mutate(v)
		})
		if err != nil {
			return err
		}
		updated = v
		return s.recordAudit(ctx, action, actor, v, from)
	})
	if err != nil {
		return nil, translate(err, "failed to update visitor")
	}
	if updated.Status != from {
		s.metrics.IncrementTransition(string(updated.Status))
	}
	return updated, nil
}

// loadInSociety fetches a record the actor's society owns. Records of other
// societies are reported as missing.
func (s *Service) loadInSociety(ctx context.Context, actor domain.Principal, id domain.VisitorID) (*models.VisitorLog, error) {
	v, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "failed to load visitor")
	}
	if v.SocietyID != actor.SocietyID {
		return nil, dErrors.New(dErrors.CodeNotFound, "visitor not found")
	}
	return v, nil
}

// translate maps store sentinels to domain errors. Domain errors raised by
// model checks pass through unchanged.
func translate(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "visitor not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "visitor already logged")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) controllers(ctx context.Context, society domain.SocietyID, flatNo string) (occupancy.Controllers, error) {
	c, err := s.occupancy.Controllers(ctx, society, flatNo)
	if err != nil {
		return occupancy.Controllers{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve flat controllers")
	}
	return c, nil
}

// accountTokens returns the device tokens of id, or nil when the account
// cannot be loaded. A missing recipient never fails a transition.
func (s *Service) accountTokens(ctx context.Context, id *domain.AccountID) []string {
	if id == nil || s.accounts == nil {
		return nil
	}
	a, err := s.accounts.FindByID(ctx, *id)
	if err != nil {
		s.logger.WarnContext(ctx, "notification recipient lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"account_id", id.String(),
			"error", err,
		)
		return nil
	}
	return a.DeviceTokens
}

func (s *Service) notify(ctx context.Context, tokens []string, title, body string, data map[string]string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notify.Message{Tokens: tokens, Title: title, Body: body, Data: data})
}
