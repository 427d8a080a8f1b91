package token

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-service/internal/config"
	"account-service/internal/errs"
)

func testConfig() config.TokenConfig {
	return config.TokenConfig{
		Issuer:                   "account-service",
		Audience:                 "account-service-clients",
		AccessTokenValidityDays:  1,
		RefreshTokenValidityDays: 30,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewServiceWithKeys(testConfig(), key, &key.PublicKey)
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	svc := newTestService(t)

	ext := map[string]any{"userId": "profile-1", "email": "a@x.com"}
	tokenString, err := svc.Issue("cred-1", "session-key", 1, ext)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := svc.Validate(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "cred-1", claims.Subject)
	assert.Equal(t, "session-key", claims.Key)
	assert.Equal(t, "account-service", claims.Issuer)
	assert.Equal(t, "account-service-clients", claims.Audience[0])
	assert.Equal(t, "profile-1", claims.Ext["userId"])
	assert.Equal(t, "a@x.com", claims.Ext["email"])
}

func TestValidateAroundExpiry(t *testing.T) {
	svc := newTestService(t)

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return issuedAt })

	const validityDays = 2
	tokenString, err := svc.Issue("cred-1", "key", validityDays, map[string]any{"userId": "p"})
	require.NoError(t, err)

	// One day before expiry the token still validates.
	svc.SetClock(func() time.Time { return issuedAt.Add((validityDays - 1) * 24 * time.Hour) })
	_, err = svc.Validate(tokenString)
	assert.NoError(t, err)

	// One day past expiry it fails with the distinct expired kind.
	svc.SetClock(func() time.Time { return issuedAt.Add((validityDays + 1) * 24 * time.Hour) })
	_, err = svc.Validate(tokenString)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindExpiredToken))
}

func TestDecodeIgnoringExpiryAfterExpiry(t *testing.T) {
	svc := newTestService(t)

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return issuedAt })

	ext := map[string]any{"userId": "profile-1", "email": "a@x.com"}
	tokenString, err := svc.Issue("cred-1", "session-key", 1, ext)
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return issuedAt.Add(10 * 24 * time.Hour) })
	_, err = svc.Validate(tokenString)
	require.True(t, errs.Is(err, errs.KindExpiredToken))

	claims, err := svc.DecodeIgnoringExpiry(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "cred-1", claims.Subject)
	assert.Equal(t, "session-key", claims.Key)
	assert.Equal(t, "account-service", claims.Issuer)
	assert.Equal(t, "profile-1", claims.Ext["userId"])
	assert.Equal(t, "a@x.com", claims.Ext["email"])
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	svc := newTestService(t)

	tokenString, err := svc.Issue("cred-1", "key", 1, map[string]any{"userId": "p"})
	require.NoError(t, err)

	_, err = svc.Validate(tokenString + "x")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindInvalidToken))

	// A token signed by someone else's key is invalid, not expired.
	other := newTestService(t)
	foreign, err := other.Issue("cred-1", "key", 1, map[string]any{"userId": "p"})
	require.NoError(t, err)
	_, err = svc.Validate(foreign)
	assert.True(t, errs.Is(err, errs.KindInvalidToken))
}

func TestIssueSessionPair(t *testing.T) {
	svc := newTestService(t)

	ext := map[string]any{"userId": "profile-1", "email": "a@x.com"}
	pair, err := svc.IssueSessionPair("cred-1", "access-key", "refresh-key", ext)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := svc.Validate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-key", access.Key)

	refresh, err := svc.Validate(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-key", refresh.Key)
}

func TestValidateShape(t *testing.T) {
	svc := newTestService(t)

	tokenString, err := svc.Issue("cred-1", "key", 1, map[string]any{"userId": "p"})
	require.NoError(t, err)
	claims, err := svc.Validate(tokenString)
	require.NoError(t, err)
	assert.NoError(t, svc.ValidateShape(claims))

	mutations := []func(c *Claims){
		func(c *Claims) { c.Issuer = "" },
		func(c *Claims) { c.Subject = "" },
		func(c *Claims) { c.Audience = nil },
		func(c *Claims) { c.Key = "" },
		func(c *Claims) { c.Ext = nil },
		func(c *Claims) { c.Issuer = "someone-else" },
		func(c *Claims) { c.Audience[0] = "other-audience" },
	}
	for _, mutate := range mutations {
		broken, err := svc.Validate(tokenString)
		require.NoError(t, err)
		mutate(broken)
		err = svc.ValidateShape(broken)
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.KindAuthFailure))
	}
	assert.Error(t, svc.ValidateShape(nil))
}
