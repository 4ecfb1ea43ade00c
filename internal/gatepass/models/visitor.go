package models

import (
	"strings"
	"time"

	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
)

// Status is the gate-pass lifecycle state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusEntered  Status = "ENTERED"
	StatusExited   Status = "EXITED"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusEntered},
	StatusEntered:  {StatusExited},
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusApproved, StatusRejected, StatusEntered, StatusExited:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "status must be one of PENDING, APPROVED, REJECTED, ENTERED, EXITED")
}

// CanTransitionTo reports whether next is a legal edge from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

type EntryType string

const (
	EntryVisitor   EntryType = "VISITOR"
	EntryDelivery  EntryType = "DELIVERY"
	EntryEmergency EntryType = "EMERGENCY"
	EntryGuest     EntryType = "GUEST"
)

func ParseEntryType(s string) (EntryType, error) {
	if strings.TrimSpace(s) == "" {
		return EntryVisitor, nil
	}
	et := EntryType(strings.ToUpper(strings.TrimSpace(s)))
	switch et {
	case EntryVisitor, EntryDelivery, EntryEmergency, EntryGuest:
		return et, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "entryType must be one of VISITOR, DELIVERY, EMERGENCY, GUEST")
}

// OTPStatus is the guest pass code state. ACTIVE moves to USED or EXPIRED
// and never back.
type OTPStatus string

const (
	OTPActive  OTPStatus = "ACTIVE"
	OTPUsed    OTPStatus = "USED"
	OTPExpired OTPStatus = "EXPIRED"
)

// GuestPass is the code sub-entity of a controller-issued guest record.
type GuestPass struct {
	Code       string           `json:"-"`
	Status     OTPStatus        `json:"otpStatus"`
	ExpiresAt  time.Time        `json:"otpExpiresAt"`
	IssuedBy   domain.AccountID `json:"issuedBy"`
	VerifiedAt *time.Time       `json:"otpVerifiedAt,omitempty"`
}

// VisitorLog is one physical visit or delivery attempt. It is never deleted.
//
// Invariants:
//   - status only moves along the edges of the transition table
//   - ApprovedBy, once set, never changes
//   - guard-created records start PENDING without a pass; guest records start
//     APPROVED with a pass
type VisitorLog struct {
	ID              domain.VisitorID  `json:"id"`
	SocietyID       domain.SocietyID  `json:"societyId"`
	FlatNo          string            `json:"flatNo"`
	PersonName      string            `json:"personName"`
	PersonMobile    string            `json:"personMobile,omitempty"`
	Purpose         string            `json:"purpose,omitempty"`
	VehicleNo       string            `json:"vehicleNo,omitempty"`
	PhotoURL        string            `json:"photoUrl,omitempty"`
	EntryType       EntryType         `json:"entryType"`
	DeliveryCompany string            `json:"deliveryCompany,omitempty"`
	ParcelType      string            `json:"parcelType,omitempty"`
	GuardID         *domain.AccountID `json:"guardId,omitempty"`
	ResidentID      *domain.AccountID `json:"residentId,omitempty"`
	ApprovedBy      *domain.AccountID `json:"approvedBy,omitempty"`
	Status          Status            `json:"status"`
	Pass            *GuestPass        `json:"guestPass,omitempty"`
	CheckInAt       *time.Time        `json:"checkInAt,omitempty"`
	CheckOutAt      *time.Time        `json:"checkOutAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// NewVisitorEntry is the input of a guard-logged arrival.
type NewVisitorEntry struct {
	SocietyID       domain.SocietyID
	GuardID         domain.AccountID
	ResidentID      domain.AccountID
	FlatNo          string
	PersonName      string
	PersonMobile    string
	Purpose         string
	VehicleNo       string
	PhotoURL        string
	EntryType       EntryType
	DeliveryCompany string
	ParcelType      string
}

// NewPendingVisitor builds a PENDING guard-created record.
func NewPendingVisitor(id domain.VisitorID, in NewVisitorEntry, now time.Time) (*VisitorLog, error) {
	name := strings.TrimSpace(in.PersonName)
	flat := domain.NormalizeFlat(in.FlatNo)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "personName is required")
	}
	if flat == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "flatNo is required")
	}
	if in.EntryType == EntryGuest {
		return nil, dErrors.New(dErrors.CodeValidation, "guest entries are created through a guest pass")
	}
	if in.EntryType != EntryDelivery && (in.DeliveryCompany != "" || in.ParcelType != "") {
		return nil, dErrors.New(dErrors.CodeValidation, "deliveryCompany and parcelType apply to DELIVERY entries only")
	}
	guard, resident := in.GuardID, in.ResidentID
	return &VisitorLog{
		ID:              id,
		SocietyID:       in.SocietyID,
		FlatNo:          flat,
		PersonName:      name,
		PersonMobile:    strings.TrimSpace(in.PersonMobile),
		Purpose:         strings.TrimSpace(in.Purpose),
		VehicleNo:       strings.ToUpper(strings.TrimSpace(in.VehicleNo)),
		PhotoURL:        in.PhotoURL,
		EntryType:       in.EntryType,
		DeliveryCompany: strings.TrimSpace(in.DeliveryCompany),
		ParcelType:      strings.TrimSpace(in.ParcelType),
		GuardID:         &guard,
		ResidentID:      &resident,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NewGuestVisitor builds an APPROVED guest record holding an ACTIVE pass.
// The issuing controller is recorded as resident and approver.
func NewGuestVisitor(id domain.VisitorID, society domain.SocietyID, flatNo string, issuer domain.AccountID,
	guestName, guestMobile, code string, now time.Time, ttl time.Duration) (*VisitorLog, error) {
	guestName = strings.TrimSpace(guestName)
	guestMobile = strings.TrimSpace(guestMobile)
	if guestName == "" || guestMobile == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "guestName and guestMobile are required")
	}
	resident, approver := issuer, issuer
	return &VisitorLog{
		ID:           id,
		SocietyID:    society,
		FlatNo:       domain.NormalizeFlat(flatNo),
		PersonName:   guestName,
		PersonMobile: guestMobile,
		EntryType:    EntryGuest,
		ResidentID:   &resident,
		ApprovedBy:   &approver,
		Status:       StatusApproved,
		Pass: &GuestPass{
			Code:      code,
			Status:    OTPActive,
			ExpiresAt: now.Add(ttl),
			IssuedBy:  issuer,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (v *VisitorLog) checkTransition(next Status) error {
	if !v.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidState, "visitor is "+string(v.Status)+", cannot become "+string(next))
	}
	return nil
}

// CanDecide checks the record awaits an approve or reject decision.
func (v *VisitorLog) CanDecide() error {
	if v.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidState, "visitor already processed")
	}
	return nil
}

func (v *VisitorLog) ApplyApprove(by domain.AccountID, now time.Time) {
	v.Status = StatusApproved
	if v.ApprovedBy == nil {
		v.ApprovedBy = &by
	}
	v.UpdatedAt = now
}

func (v *VisitorLog) ApplyReject(by domain.AccountID, now time.Time) {
	v.Status = StatusRejected
	if v.ApprovedBy == nil {
		v.ApprovedBy = &by
	}
	v.UpdatedAt = now
}

// CanEnter checks a guard may admit the visitor through the regular flow.
// Guest records enter through AllowOtpEntry instead.
func (v *VisitorLog) CanEnter() error {
	if err := v.checkTransition(StatusEntered); err != nil {
		return err
	}
	if v.Pass != nil {
		return dErrors.New(dErrors.CodeInvalidState, "guest pass holders enter with their code")
	}
	return nil
}

func (v *VisitorLog) ApplyEnter(guard domain.AccountID, now time.Time) {
	v.Status = StatusEntered
	v.CheckInAt = &now
	if v.GuardID == nil {
		v.GuardID = &guard
	}
	v.UpdatedAt = now
}

func (v *VisitorLog) CanExit() error {
	return v.checkTransition(StatusExited)
}

func (v *VisitorLog) ApplyExit(now time.Time) {
	v.Status = StatusExited
	v.CheckOutAt = &now
	v.UpdatedAt = now
}

// PassOpen reports whether the record carries a redeemable pass: ACTIVE
// code on an APPROVED record.
func (v *VisitorLog) PassOpen() bool {
	return v.Pass != nil && v.Pass.Status == OTPActive && v.Status == StatusApproved
}

// PassExpired reports whether an open pass is past its expiry at now.
func (v *VisitorLog) PassExpired(now time.Time) bool {
	return v.Pass != nil && now.After(v.Pass.ExpiresAt)
}

// CanRedeem checks the code can be verified at the gate at now. An expired
// pass must be flipped with ApplyExpire, not redeemed.
func (v *VisitorLog) CanRedeem(now time.Time) error {
	if !v.PassOpen() {
		return dErrors.New(dErrors.CodeInvalidOTP, "invalid or expired OTP")
	}
	if v.PassExpired(now) {
		return dErrors.New(dErrors.CodeExpired, "OTP expired")
	}
	return nil
}

// ApplyRedeem records the first successful verification. Verifying again
// keeps the original time.
func (v *VisitorLog) ApplyRedeem(now time.Time) {
	if v.Pass.VerifiedAt == nil {
		v.Pass.VerifiedAt = &now
	}
	v.UpdatedAt = now
}

// CanExpire checks an open pass has run out and may be flipped to EXPIRED.
func (v *VisitorLog) CanExpire(now time.Time) error {
	if !v.PassOpen() {
		return dErrors.New(dErrors.CodeInvalidOTP, "invalid or expired OTP")
	}
	if !v.PassExpired(now) {
		return dErrors.New(dErrors.CodeInvalidState, "OTP has not expired")
	}
	return nil
}

func (v *VisitorLog) ApplyExpire(now time.Time) {
	v.Pass.Status = OTPExpired
	v.UpdatedAt = now
}

// CanAllowGuestEntry checks a redeemed, still valid pass may be consumed.
// An expired pass reports Expired; callers flip it with ApplyExpire.
func (v *VisitorLog) CanAllowGuestEntry(now time.Time) error {
	if v.Pass == nil {
		return dErrors.New(dErrors.CodeInvalidState, "visitor has no guest pass")
	}
	if !v.PassOpen() {
		return dErrors.New(dErrors.CodeInvalidState, "guest OTP not verified or already entered")
	}
	if v.Pass.VerifiedAt == nil {
		return dErrors.New(dErrors.CodeInvalidState, "guest OTP not verified or already entered")
	}
	if v.PassExpired(now) {
		return dErrors.New(dErrors.CodeExpired, "OTP expired")
	}
	return nil
}

func (v *VisitorLog) ApplyGuestEntry(guard domain.AccountID, now time.Time) {
	v.Status = StatusEntered
	v.Pass.Status = OTPUsed
	v.CheckInAt = &now
	if v.GuardID == nil {
		v.GuardID = &guard
	}
	v.UpdatedAt = now
}

// Clone returns a deep copy.
func (v *VisitorLog) Clone() *VisitorLog {
	c := *v
	c.GuardID = cloneID(v.GuardID)
	c.ResidentID = cloneID(v.ResidentID)
	c.ApprovedBy = cloneID(v.ApprovedBy)
	c.CheckInAt = cloneTime(v.CheckInAt)
	c.CheckOutAt = cloneTime(v.CheckOutAt)
	if v.Pass != nil {
		p := *v.Pass
		p.VerifiedAt = cloneTime(v.Pass.VerifiedAt)
		c.Pass = &p
	}
	return &c
}

func cloneID(id *domain.AccountID) *domain.AccountID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
