package handler

import (
	"encoding/base64"
	"strings"

	"gatehouse/internal/gatepass/service"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/validation"
)

type createVisitorRequest struct {
	FlatNo          string `json:"flatNo" validate:"required,max=32"`
	PersonName      string `json:"personName" validate:"required,max=120"`
	PersonMobile    string `json:"personMobile" validate:"omitempty,max=20"`
	Purpose         string `json:"purpose" validate:"omitempty,max=255"`
	VehicleNo       string `json:"vehicleNo" validate:"omitempty,max=32"`
	EntryType       string `json:"entryType" validate:"omitempty,max=16"`
	DeliveryCompany string `json:"deliveryCompany" validate:"omitempty,max=120"`
	ParcelType      string `json:"parcelType" validate:"omitempty,max=64"`
	// Photo is the base64 encoded image, standard or data-URL form.
	Photo string `json:"photo"`

	decodedPhoto []byte
}

func (r *createVisitorRequest) Validate() error {
	r.FlatNo = strings.TrimSpace(r.FlatNo)
	r.PersonName = strings.TrimSpace(r.PersonName)
	r.PersonMobile = strings.TrimSpace(r.PersonMobile)
	r.EntryType = strings.ToUpper(strings.TrimSpace(r.EntryType))
	if err := validation.Struct(r); err != nil {
		return err
	}
	if r.Photo == "" {
		return nil
	}
	raw := r.Photo
	if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i > 0 {
		raw = raw[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "photo must be base64 encoded")
	}
	r.decodedPhoto = data
	return nil
}

func (r *createVisitorRequest) toService() service.CreateVisitorRequest {
	return service.CreateVisitorRequest{
		FlatNo:          r.FlatNo,
		PersonName:      r.PersonName,
		PersonMobile:    r.PersonMobile,
		Purpose:         r.Purpose,
		VehicleNo:       r.VehicleNo,
		EntryType:       r.EntryType,
		DeliveryCompany: r.DeliveryCompany,
		ParcelType:      r.ParcelType,
		Photo:           r.decodedPhoto,
	}
}

type issueGuestPassRequest struct {
	GuestName   string `json:"guestName" validate:"required,max=120"`
	GuestMobile string `json:"guestMobile" validate:"required,max=20"`
}

func (r *issueGuestPassRequest) Validate() error {
	r.GuestName = strings.TrimSpace(r.GuestName)
	r.GuestMobile = strings.TrimSpace(r.GuestMobile)
	return validation.Struct(r)
}

// redeemGuestPassRequest only requires a code; malformed codes are reported
// as invalid by the service so every bad guess looks the same.
type redeemGuestPassRequest struct {
	OTP string `json:"otp" validate:"required"`
}

func (r *redeemGuestPassRequest) Validate() error {
	r.OTP = strings.TrimSpace(r.OTP)
	return validation.Struct(r)
}
