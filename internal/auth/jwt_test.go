package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/doorlist/backend/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	t.Parallel()
	svc := NewJWTService("test-secret", 24)
	userID := uuid.New()

	token, err := svc.Generate(userID, "door@example.com", models.RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, "door@example.com", claims.Email)
	require.Equal(t, models.RoleAdmin, claims.Role)
	require.NotEmpty(t, claims.ID, "each token carries a unique jti")
}

func TestJWTValidateRejections(t *testing.T) {
	t.Parallel()
	svc := NewJWTService("test-secret", 24)

	t.Run("expired token", func(t *testing.T) {
		expired := NewJWTService("test-secret", -1)
		token, err := expired.Generate(uuid.New(), "late@example.com", models.RoleUser)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService("other-secret", 24)
		token, err := other.Generate(uuid.New(), "forged@example.com", models.RoleSuperAdmin)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage string", func(t *testing.T) {
		_, err := svc.Validate("not.a.token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned token", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			UserID: uuid.New(),
			Email:  "none@example.com",
			Role:   models.RoleAdmin,
		})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
