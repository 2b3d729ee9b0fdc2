package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-booking-api/internal/models"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
)

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(AuthConfig{Secret: "secret", Issuer: "studio-auth"})
	user := &models.User{ID: "stu-1", Role: models.RoleStudent, Email: "a@example.com"}

	token, err := svc.IssueToken(user, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{Secret: "secret", Issuer: "studio-auth"})
	user := &models.User{ID: "stu-1", Role: models.RoleStudent}

	expired, err := svc.IssueToken(user, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	other, err := NewAuthService(AuthConfig{Secret: "other", Issuer: "studio-auth"}).IssueToken(user, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(other)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	wrongIssuer, err := NewAuthService(AuthConfig{Secret: "secret", Issuer: "elsewhere"}).IssueToken(user, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(wrongIssuer)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID:           "stu-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "studio-auth", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := noRole.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
