package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dirmodels "gatehouse/internal/directory/models"
	"gatehouse/internal/otp"
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/audit"
	"gatehouse/pkg/requestcontext"
)

const (
	DefaultCodeTTL  = 5 * time.Minute
	DefaultTokenTTL = 30 * 24 * time.Hour
)

// Accounts is the slice of the directory the login flow needs.
type Accounts interface {
	FindByMobile(ctx context.Context, mobile string) (*dirmodels.Account, error)
	RegisterDeviceToken(ctx context.Context, id domain.AccountID, token string) error
}

type CodeSender interface {
	Send(ctx context.Context, to, body string) error
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	GenerateAccessToken(p domain.Principal, expiresIn time.Duration) (string, time.Time, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the mobile OTP login.
type Service struct {
	accounts       Accounts
	codes          otp.Store
	sender         CodeSender
	tokens         TokenIssuer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	codeTTL        time.Duration
	tokenTTL       time.Duration
	generateCode   func() (string, error)
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

func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.generateCode = fn
	}
}

func New(accounts Accounts, codes otp.Store, sender CodeSender, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		accounts:     accounts,
		codes:        codes,
		sender:       sender,
		tokens:       tokens,
		logger:       slog.Default(),
		codeTTL:      DefaultCodeTTL,
		tokenTTL:     DefaultTokenTTL,
		generateCode: otp.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestCode texts a login code to a registered, active mobile. Unknown and
// inactive numbers get the same silent success so callers cannot probe the
// directory.
func (s *Service) RequestCode(ctx context.Context, mobile string) error {
	mobile = normalizeMobile(mobile)
	if mobile == "" {
		return dErrors.New(dErrors.CodeValidation, "mobile is required")
	}
	account, err := s.accounts.FindByMobile(ctx, mobile)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.logger.InfoContext(ctx, "login code requested for unknown mobile",
				"request_id", requestcontext.RequestID(ctx),
			)
			return nil
		}
		return err
	}
	if !account.IsActive() {
		s.logger.InfoContext(ctx, "login code requested for inactive account",
			"request_id", requestcontext.RequestID(ctx),
			"account_id", account.ID,
		)
		return nil
	}

	code, err := s.generateCode()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate login code")
	}
	if err := s.codes.Save(ctx, mobile, code, s.codeTTL); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store login code")
	}
	body := fmt.Sprintf("%s is your gatehouse login code. It expires in %d minutes.", code, int(s.codeTTL.Minutes()))
	if err := s.sender.Send(ctx, mobile, body); err != nil {
		s.logger.ErrorContext(ctx, "failed to send login code",
			"request_id", requestcontext.RequestID(ctx),
			"account_id", account.ID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to send login code")
	}
	s.emit(ctx, audit.EventLoginCodeSent, account, "")
	return nil
}

// Session is a successful login.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	Account     *dirmodels.Account
}

// Verify exchanges a login code for an access token and registers the
// device for push notifications.
func (s *Service) Verify(ctx context.Context, mobile, code, deviceToken string) (*Session, error) {
	mobile = normalizeMobile(mobile)
	code = strings.TrimSpace(code)
	if mobile == "" || code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "mobile and otp are required")
	}
	invalid := dErrors.New(dErrors.CodeInvalidOTP, "invalid or expired OTP")

	ok, err := s.codes.Verify(ctx, mobile, code)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify login code")
	}
	account, lookupErr := s.accounts.FindByMobile(ctx, mobile)
	if !ok {
		if lookupErr == nil {
			s.emit(ctx, audit.EventLoginFailed, account, "wrong or expired code")
		}
		return nil, invalid
	}
	if lookupErr != nil {
		if dErrors.HasCode(lookupErr, dErrors.CodeNotFound) {
			return nil, invalid
		}
		return nil, lookupErr
	}
	if !account.IsActive() {
		s.emit(ctx, audit.EventLoginFailed, account, "account is not active")
		return nil, dErrors.New(dErrors.CodeForbidden, "account is not active")
	}

	token, expiresAt, err := s.tokens.GenerateAccessToken(account.Principal(), s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	if deviceToken = strings.TrimSpace(deviceToken); deviceToken != "" {
		if err := s.accounts.RegisterDeviceToken(ctx, account.ID, deviceToken); err != nil {
			s.logger.WarnContext(ctx, "failed to register device token",
				"request_id", requestcontext.RequestID(ctx),
				"account_id", account.ID,
				"error", err,
			)
		} else {
			account.AddDeviceToken(deviceToken)
		}
	}

	s.logger.InfoContext(ctx, "account logged in",
		"request_id", requestcontext.RequestID(ctx),
		"account_id", account.ID,
		"device", requestcontext.Device(ctx),
	)
	s.emit(ctx, audit.EventLoginSucceeded, account, "")
	return &Session{AccessToken: token, ExpiresAt: expiresAt, Account: account}, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, a *dirmodels.Account, reason string) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Action:    string(action),
		Timestamp: requestcontext.Now(ctx),
		ActorID:   a.ID,
		SocietyID: a.SocietyID,
		Reason:    reason,
		ClientIP:  requestcontext.ClientIP(ctx),
		Device:    requestcontext.Device(ctx),
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"action", action,
			"error", err,
		)
	}
}

func normalizeMobile(mobile string) string {
	return strings.ReplaceAll(strings.TrimSpace(mobile), " ", "")
}
