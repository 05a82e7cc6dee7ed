package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmesh/playmesh/internal/config"
)

func testService(expiration time.Duration) *Service {
	cfg := &config.Config{}
	cfg.Security.AgentTokenSecret = "test-secret"
	cfg.Security.AgentTokenExpiration = expiration
	return NewService(cfg)
}

func TestMintAndValidate(t *testing.T) {
	svc := testService(time.Hour)

	token, err := svc.Mint("host:abc")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "host:abc", claims.HostID)
	assert.Equal(t, "host:abc", claims.Subject)
	assert.Equal(t, "playmesh", claims.Issuer)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := testService(-time.Minute)

	token, err := svc.Mint("host:abc")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := GenerateAgentToken("other-secret", "host:abc", time.Hour)
	require.NoError(t, err)

	_, err = testService(time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	_, err := testService(time.Hour).ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateAgentToken_RequiresInputs(t *testing.T) {
	_, err := GenerateAgentToken("", "host:abc", time.Hour)
	assert.Error(t, err)

	_, err = GenerateAgentToken("secret", "", time.Hour)
	assert.Error(t, err)
}
