package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/config"
	"github.com/lorawan-monitor/lorawan-kpi-monitor/internal/models"
)

func newTestManager(accessTTL time.Duration) *JWTManager {
	return NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: time.Hour,
	})
}

func testUser() *models.User {
	return &models.User{
		ID:       uuid.New(),
		Username: "operator",
		IsAdmin:  true,
	}
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	m := newTestManager(time.Minute)
	user := testUser()

	access, refresh, err := m.GenerateTokenPair(user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	claims, err := m.ValidateToken(access)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, "operator", claims.Username)
	require.True(t, claims.IsAdmin)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := newTestManager(-time.Minute)
	access, _, err := m.GenerateTokenPair(testUser())
	require.NoError(t, err)

	_, err = m.ValidateToken(access)
	require.Error(t, err)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m := newTestManager(time.Minute)
	access, _, err := m.GenerateTokenPair(testUser())
	require.NoError(t, err)

	other := NewJWTManager(&config.JWTConfig{
		Secret:          "other-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	_, err = other.ValidateToken(access)
	require.Error(t, err)
}

func TestRefreshSubject(t *testing.T) {
	m := newTestManager(time.Minute)
	_, refresh, err := m.GenerateTokenPair(testUser())
	require.NoError(t, err)

	subject, err := m.RefreshSubject(refresh)
	require.NoError(t, err)
	require.Equal(t, "operator", subject)
}

func TestRefreshSubjectRejectsGarbage(t *testing.T) {
	m := newTestManager(time.Minute)
	_, err := m.RefreshSubject("not-a-token")
	require.Error(t, err)
}
