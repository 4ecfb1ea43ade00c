package jwttoken

import (
	"gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	authmw "gatehouse/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims parses the string claims into typed identifiers.
func ToMiddlewareClaims(claims *Claims) (*authmw.Claims, error) {
	accountID, err := domain.ParseAccountID(claims.AccountID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	societyID, err := domain.ParseSocietyID(claims.SocietyID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token society")
	}
	roles, err := domain.ParseRoleSet(claims.Roles)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token roles")
	}
	return &authmw.Claims{
		AccountID: accountID,
		SocietyID: societyID,
		Roles:     roles,
		FlatNo:    claims.FlatNo,
	}, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
