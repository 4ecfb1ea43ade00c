package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"gatehouse/internal/gatepass/models"
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/audit"
	"gatehouse/pkg/platform/sentinel"
	"gatehouse/pkg/requestcontext"
)

// Push payload types understood by the mobile apps.
const (
	typeVisitorArrived  = "VISITOR_ARRIVED"
	typeVisitorApproved = "VISITOR_APPROVED"
	typeVisitorRejected = "VISITOR_REJECTED"
	typeVisitorEntered  = "VISITOR_ENTERED"
	typeVisitorExited   = "VISITOR_EXITED"
)

// CreateVisitorRequest is a guard-logged arrival.
type CreateVisitorRequest struct {
	FlatNo          string
	PersonName      string
	PersonMobile    string
	Purpose         string
	VehicleNo       string
	EntryType       string
	DeliveryCompany string
	ParcelType      string
	Photo           []byte
}

// CreateVisitorEntry logs an arrival as PENDING and asks the flat's current
// controllers to decide. The arrival notification goes to controllers only.
func (s *Service) CreateVisitorEntry(ctx context.Context, actor domain.Principal, req CreateVisitorRequest) (_ *models.VisitorLog, err error) {
	ctx, finish := s.startOp(ctx, "create", attribute.String("flat_no", req.FlatNo))
	defer func() { finish(err) }()

	entryType, err := models.ParseEntryType(req.EntryType)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	v, err := models.NewPendingVisitor(domain.NewVisitorID(), models.NewVisitorEntry{
		SocietyID:       actor.SocietyID,
		GuardID:         actor.AccountID,
		FlatNo:          req.FlatNo,
		PersonName:      req.PersonName,
		PersonMobile:    req.PersonMobile,
		Purpose:         req.Purpose,
		VehicleNo:       req.VehicleNo,
		EntryType:       entryType,
		DeliveryCompany: req.DeliveryCompany,
		ParcelType:      req.ParcelType,
	}, now)
	if err != nil {
		return nil, err
	}

	controllers, err := s.controllers(ctx, actor.SocietyID, v.FlatNo)
	if err != nil {
		return nil, err
	}
	if controllers.Empty() {
		return nil, dErrors.New(dErrors.CodeNotFound, "no resident found for this flat")
	}
	resident := controllers.Accounts[0].ID
	v.ResidentID = &resident

	if len(req.Photo) > 0 {
		if s.photos == nil {
			return nil, dErrors.New(dErrors.CodeValidation, "photo upload is not enabled")
		}
		url, err := s.photos.Put(ctx, req.Photo)
		if err != nil {
			return nil, err
		}
		v.PhotoURL = url
	}

	err = s.transact(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, v); err != nil {
			return err
		}
		return s.recordAudit(ctx, audit.EventVisitorCreated, actor, v, "")
	})
	if err != nil {
		s.discardPhoto(ctx, v.PhotoURL)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "visitor is already waiting for this flat")
		}
		return nil, translate(err, "failed to create visitor")
	}
	s.metrics.IncrementTransition(string(v.Status))

	s.logger.InfoContext(ctx, "visitor logged",
		"request_id", requestcontext.RequestID(ctx),
		"visitor_id", v.ID,
		"flat_no", v.FlatNo,
		"controller", controllers.Kind,
	)
	s.notify(ctx, controllers.Tokens(), "Visitor Arrived",
		fmt.Sprintf("%s is waiting at the gate for Flat %s", v.PersonName, v.FlatNo),
		visitorData(typeVisitorArrived, v))
	return v, nil
}

// Approve lets a current controller of the visitor's flat admit them.
func (s *Service) Approve(ctx context.Context, actor domain.Principal, id domain.VisitorID) (*models.VisitorLog, error) {
	return s.decide(ctx, actor, id, true)
}

// Reject lets a current controller of the visitor's flat turn them away.
func (s *Service) Reject(ctx context.Context, actor domain.Principal, id domain.VisitorID) (*models.VisitorLog, error) {
	return s.decide(ctx, actor, id, false)
}

// decide checks existence, then state, then authority. Authority is resolved
// at call time, so a controller replaced after the arrival can no longer act.
func (s *Service) decide(ctx context.Context, actor domain.Principal, id domain.VisitorID, approve bool) (_ *models.VisitorLog, err error) {
	op, action := "approve", audit.EventVisitorApproved
	if !approve {
		op, action = "reject", audit.EventVisitorRejected
	}
	ctx, finish := s.startOp(ctx, op, attribute.String("visitor_id", id.String()))
	defer func() { finish(err) }()

	v, err := s.loadInSociety(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := v.CanDecide(); err != nil {
		return nil, err
	}
	controllers, err := s.controllers(ctx, v.SocietyID, v.FlatNo)
	if err != nil {
		return nil, err
	}
	if !controllers.Contains(actor.AccountID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the current flat controller can decide on this visitor")
	}

	now := requestcontext.Now(ctx)
	updated, err := s.transition(ctx, actor, id, action, (*models.VisitorLog).CanDecide, func(v *models.VisitorLog) {
		if approve {
			v.ApplyApprove(actor.AccountID, now)
		} else {
			v.ApplyReject(actor.AccountID, now)
		}
	})
	if err != nil {
		return nil, err
	}

	title, body, kind := "Visitor Approved", "%s for Flat %s has been approved", typeVisitorApproved
	if !approve {
		title, body, kind = "Visitor Rejected", "%s for Flat %s has been rejected", typeVisitorRejected
	}
	s.notify(ctx, s.accountTokens(ctx, updated.GuardID), title,
		fmt.Sprintf(body, updated.PersonName, updated.FlatNo), visitorData(kind, updated))
	return updated, nil
}

// MarkEntered admits an APPROVED visitor through the regular flow.
func (s *Service) MarkEntered(ctx context.Context, actor domain.Principal, id domain.VisitorID) (_ *models.VisitorLog, err error) {
	ctx, finish := s.startOp(ctx, "enter", attribute.String("visitor_id", id.String()))
	defer func() { finish(err) }()

	if _, err := s.loadInSociety(ctx, actor, id); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	v, err := s.transition(ctx, actor, id, audit.EventVisitorEntered, (*models.VisitorLog).CanEnter, func(v *models.VisitorLog) {
		v.ApplyEnter(actor.AccountID, now)
	})
	if err != nil {
		return nil, err
	}
	s.notifyBothParties(ctx, v, "Visitor Entered",
		fmt.Sprintf("%s has entered the society", v.PersonName), typeVisitorEntered)
	return v, nil
}

// MarkExited records an ENTERED visitor leaving.
func (s *Service) MarkExited(ctx context.Context, actor domain.Principal, id domain.VisitorID) (_ *models.VisitorLog, err error) {
	ctx, finish := s.startOp(ctx, "exit", attribute.String("visitor_id", id.String()))
	defer func() { finish(err) }()

	if _, err := s.loadInSociety(ctx, actor, id); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	v, err := s.transition(ctx, actor, id, audit.EventVisitorExited, (*models.VisitorLog).CanExit, func(v *models.VisitorLog) {
		v.ApplyExit(now)
	})
	if err != nil {
		return nil, err
	}
	s.notifyBothParties(ctx, v, "Visitor Exited",
		fmt.Sprintf("%s has exited the society", v.PersonName), typeVisitorExited)
	return v, nil
}

// notifyBothParties sends one message to the flat's current controllers and
// the guard who logged the visitor. Both lookups run concurrently; a failed
// lookup only narrows the audience.
func (s *Service) notifyBothParties(ctx context.Context, v *models.VisitorLog, title, body, kind string) {
	var controllerTokens, guardTokens []string
	var g errgroup.Group
	g.Go(func() error {
		c, err := s.occupancy.Controllers(ctx, v.SocietyID, v.FlatNo)
		if err != nil {
			return err
		}
		controllerTokens = c.Tokens()
		return nil
	})
	g.Go(func() error {
		guardTokens = s.accountTokens(ctx, v.GuardID)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.WarnContext(ctx, "controller lookup for notification failed",
			"request_id", requestcontext.RequestID(ctx),
			"visitor_id", v.ID,
			"error", err,
		)
	}
	tokens := append(controllerTokens, guardTokens...)
	s.notify(ctx, tokens, title, body, visitorData(kind, v))
}

func visitorData(kind string, v *models.VisitorLog) map[string]string {
	return map[string]string{
		"type":      kind,
		"visitorId": v.ID.String(),
		"flatNo":    v.FlatNo,
		"status":    string(v.Status),
	}
}

// discardPhoto removes a photo whose record never committed.
func (s *Service) discardPhoto(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if err := s.photos.Delete(ctx, url); err != nil {
		s.logger.WarnContext(ctx, "failed to discard orphaned photo",
			"request_id", requestcontext.RequestID(ctx),
			"photo_url", url,
			"error", err,
		)
	}
}
