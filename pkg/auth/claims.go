package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose separates session tokens from the single-use links sent by email.
type Purpose string

const (
	PurposeAccess       Purpose = "access"
	PurposeRecovery     Purpose = "recovery"
	PurposeConfirmation Purpose = "confirmation"
)

func (p Purpose) IsValid() bool {
	switch p {
	case PurposeAccess, PurposeRecovery, PurposeConfirmation:
		return true
	}
	return false
}

// TokenPayload captures the data available when minting a JWT.
type TokenPayload struct {
	UserID uuid.UUID
	Email  string
	// JTI doubles as the refresh-session key for access tokens.
	JTI string
}

// Claims represents the typed JWT issued to clients.
type Claims struct {
	UserID  uuid.UUID `json:"user_id"`
	Email   string    `json:"email"`
	Purpose Purpose   `json:"purpose"`
	jwt.RegisteredClaims
}
