package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"gatehouse/internal/gatepass/models"
	"gatehouse/internal/otp"
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/audit"
	"gatehouse/pkg/platform/sentinel"
	"gatehouse/pkg/requestcontext"
)

const (
	typeOTPVerified     = "OTP_VERIFIED"
	typeOTPGuestEntered = "OTP_GUEST_ENTERED"

	maxCodeCollisions = 5
)

// GenerateGuestCode returns a uniformly random six digit code in
// [100000, 999999].
func GenerateGuestCode() (string, error) {
	return otp.Generate()
}

// IssueGuestPassRequest names the guest a controller pre-approves.
type IssueGuestPassRequest struct {
	GuestName   string
	GuestMobile string
}

// IssueGuestPass creates an APPROVED guest record with a fresh code valid for
// the configured TTL. Only a current controller of the caller's own flat may
// issue. Nobody is notified; the code is returned to the issuer and, when a
// code sender is configured, texted to the guest.
func (s *Service) IssueGuestPass(ctx context.Context, actor domain.Principal, req IssueGuestPassRequest) (_ *models.VisitorLog, err error) {
	ctx, finish := s.startOp(ctx, "issue_guest_pass")
	defer func() { finish(err) }()

	if strings.TrimSpace(req.GuestName) == "" || strings.TrimSpace(req.GuestMobile) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "guestName and guestMobile are required")
	}
	flatNo := domain.NormalizeFlat(actor.FlatNo)
	if flatNo == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "account is not attached to a flat")
	}
	controllers, err := s.controllers(ctx, actor.SocietyID, flatNo)
	if err != nil {
		return nil, err
	}
	if !controllers.Contains(actor.AccountID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the current flat controller can issue guest passes")
	}

	now := requestcontext.Now(ctx)
	var v *models.VisitorLog
	for attempt := 1; ; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate guest code")
		}
		v, err = models.NewGuestVisitor(domain.NewVisitorID(), actor.SocietyID, flatNo, actor.AccountID,
			req.GuestName, req.GuestMobile, code, now, s.guestPassTTL)
		if err != nil {
			return nil, err
		}
		err = s.transact(ctx, func(ctx context.Context) error {
			if err := s.store.Create(ctx, v); err != nil {
				return err
			}
			return s.recordAudit(ctx, audit.EventGuestPassIssued, actor, v, "")
		})
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) || attempt == maxCodeCollisions {
			return nil, translate(err, "failed to issue guest pass")
		}
	}

	s.logger.InfoContext(ctx, "guest pass issued",
		"request_id", requestcontext.RequestID(ctx),
		"visitor_id", v.ID,
		"flat_no", v.FlatNo,
		"expires_at", v.Pass.ExpiresAt,
	)
	s.sendCode(ctx, v)
	return v, nil
}

func (s *Service) sendCode(ctx context.Context, v *models.VisitorLog) {
	if s.codeSender == nil {
		return
	}
	body := fmt.Sprintf("Your gate pass code for Flat %s is %s. Valid until %s.",
		v.FlatNo, v.Pass.Code, v.Pass.ExpiresAt.Format("02 Jan 15:04 MST"))
	if err := s.codeSender.Send(ctx, v.PersonMobile, body); err != nil {
		s.logger.WarnContext(ctx, "failed to text guest code",
			"request_id", requestcontext.RequestID(ctx),
			"visitor_id", v.ID,
			"error", err,
		)
	}
}

// GuestArrival is what the guard sees after a successful redemption.
type GuestArrival struct {
	Visitor      *models.VisitorLog
	ResidentName string
}

// RedeemGuestPass verifies a code at the guard's gate. The code must belong
// to an APPROVED record of the guard's society with an ACTIVE pass. A pass
// found past its expiry is flipped to EXPIRED, exactly once, and the call
// fails with Expired; later attempts see InvalidOtp. Redemption does not
// admit the guest.
func (s *Service) RedeemGuestPass(ctx context.Context, actor domain.Principal, code string) (_ *GuestArrival, err error) {
	ctx, finish := s.startOp(ctx, "redeem_guest_pass")
	defer func() { finish(err) }()

	code = strings.TrimSpace(code)
	invalid := dErrors.New(dErrors.CodeInvalidOTP, "invalid or expired OTP")
	if !isGuestCode(code) {
		s.metrics.IncrementRedemption("invalid")
		return nil, invalid
	}

	found, err := s.store.FindActiveGuestPass(ctx, actor.SocietyID, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementRedemption("invalid")
			return nil, invalid
		}
		return nil, translate(err, "failed to look up guest pass")
	}

	now := requestcontext.Now(ctx)
	if found.PassExpired(now) {
		_, err := s.transition(ctx, actor, found.ID, audit.EventGuestPassExpired,
			func(v *models.VisitorLog) error { return v.CanExpire(now) },
			func(v *models.VisitorLog) { v.ApplyExpire(now) })
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvalidOTP) {
				s.metrics.IncrementRedemption("invalid")
				return nil, invalid
			}
			return nil, err
		}
		s.metrics.IncrementRedemption("expired")
		return nil, dErrors.New(dErrors.CodeExpired, "OTP expired")
	}

	v, err := s.transition(ctx, actor, found.ID, audit.EventGuestPassVerified,
		func(v *models.VisitorLog) error { return v.CanRedeem(now) },
		func(v *models.VisitorLog) { v.ApplyRedeem(now) })
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidOTP) {
			s.metrics.IncrementRedemption("invalid")
		}
		return nil, err
	}
	s.metrics.IncrementRedemption("verified")

	arrival := &GuestArrival{Visitor: v}
	var tokens []string
	if issuer, err := s.accounts.FindByID(ctx, v.Pass.IssuedBy); err == nil {
		arrival.ResidentName = issuer.Name
		tokens = issuer.DeviceTokens
	} else {
		s.logger.WarnContext(ctx, "guest pass issuer lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"visitor_id", v.ID,
			"error", err,
		)
	}
	s.notify(ctx, tokens, "Guest Arrived",
		fmt.Sprintf("%s has verified OTP at the gate", v.PersonName),
		visitorData(typeOTPVerified, v))
	return arrival, nil
}

// AllowOtpEntry admits a guest whose code was redeemed and is still valid.
// It consumes the pass. A pass that expired after redemption is flipped to
// EXPIRED and the call fails with Expired.
func (s *Service) AllowOtpEntry(ctx context.Context, actor domain.Principal, id domain.VisitorID) (_ *models.VisitorLog, err error) {
	ctx, finish := s.startOp(ctx, "allow_otp_entry", attribute.String("visitor_id", id.String()))
	defer func() { finish(err) }()

	if _, err := s.loadInSociety(ctx, actor, id); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	v, err := s.transition(ctx, actor, id, audit.EventGuestEntered,
		func(v *models.VisitorLog) error { return v.CanAllowGuestEntry(now) },
		func(v *models.VisitorLog) { v.ApplyGuestEntry(actor.AccountID, now) })
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeExpired) {
			return nil, s.expirePass(ctx, actor, id, now, err)
		}
		return nil, err
	}
	s.notify(ctx, s.accountTokens(ctx, &v.Pass.IssuedBy), "Guest Entered",
		fmt.Sprintf("%s has entered the society", v.PersonName),
		visitorData(typeOTPGuestEntered, v))
	return v, nil
}

// expirePass flips a pass found past its expiry to EXPIRED and returns
// expired. A concurrent flip leaves the pass as it is.
func (s *Service) expirePass(ctx context.Context, actor domain.Principal, id domain.VisitorID, now time.Time, expired error) error {
	_, err := s.transition(ctx, actor, id, audit.EventGuestPassExpired,
		func(v *models.VisitorLog) error { return v.CanExpire(now) },
		func(v *models.VisitorLog) { v.ApplyExpire(now) })
	if err != nil && !dErrors.HasCode(err, dErrors.CodeInvalidOTP) {
		return err
	}
	return expired
}

func isGuestCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
