package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the payload of externally issued access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}
