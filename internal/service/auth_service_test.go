package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-service/internal/config"
	"account-service/internal/errs"
	"account-service/internal/hashing"
	"account-service/internal/model"
	"account-service/internal/repository"
	"account-service/internal/token"
)

// ---------- in-memory fakes ----------

type memCredentialStore struct {
	mu    sync.Mutex
	items map[string]*model.Credential
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{items: make(map[string]*model.Credential)}
}

func (s *memCredentialStore) Create(_ context.Context, c *model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.Email == c.Email {
			return fmt.Errorf("email already registered: %w", repository.ErrDuplicate)
		}
	}
	if c.CredentialID == "" {
		c.CredentialID = uuid.New().String()
	}
	s.items[c.CredentialID] = c
	return nil
}

// blindEmailCredentialStore simulates the window where a concurrent
// registration has committed after this one's duplicate pre-check ran: email
// lookups miss, but the store's uniqueness constraint still holds.
type blindEmailCredentialStore struct {
	*memCredentialStore
}

func (s *blindEmailCredentialStore) FindOne(ctx context.Context, query repository.Filter) (*model.Credential, error) {
	if _, ok := query["email"]; ok {
		return nil, nil
	}
	return s.memCredentialStore.FindOne(ctx, query)
}

func (s *memCredentialStore) FindOne(_ context.Context, query repository.Filter) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := query["id"].(string); ok {
		return s.items[id], nil
	}
	if email, ok := query["email"].(string); ok {
		for _, c := range s.items {
			if c.Email == email {
				return c, nil
			}
		}
	}
	return nil, nil
}

func (s *memCredentialStore) FindMany(_ context.Context, _ repository.Filter) ([]*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Credential, 0, len(s.items))
	for _, c := range s.items {
		out = append(out, c)
	}
	return out, nil
}

func (s *memCredentialStore) Update(ctx context.Context, query repository.Filter, patch repository.Patch) (*model.Credential, error) {
	c, err := s.FindOne(ctx, query)
	if err != nil || c == nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for col, value := range patch {
		switch col {
		case "password_hash":
			c.PasswordHash = value.(string)
		case "session_public_key":
			c.SessionPublicKey = value.(string)
		case "session_private_key":
			c.SessionPrivateKey = value.(string)
		case "login_attempts":
			c.LoginAttempts = value.(int)
		}
	}
	return c, nil
}

func (s *memCredentialStore) Delete(ctx context.Context, query repository.Filter) (*model.Credential, error) {
	c, err := s.FindOne(ctx, query)
	if err != nil || c == nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, c.CredentialID)
	return c, nil
}

type memProfileStore struct {
	mu    sync.Mutex
	items map[string]*model.Profile
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{items: make(map[string]*model.Profile)}
}

func (s *memProfileStore) Create(_ context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ProfileID == "" {
		p.ProfileID = uuid.New().String()
	}
	s.items[p.ProfileID] = p
	return nil
}

func (s *memProfileStore) FindOne(_ context.Context, query repository.Filter) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := query["id"].(string); ok {
		return s.items[id], nil
	}
	if credentialID, ok := query["credentialId"].(string); ok {
		for _, p := range s.items {
			if p.CredentialID == credentialID {
				return p, nil
			}
		}
	}
	return nil, nil
}

func (s *memProfileStore) FindMany(_ context.Context, query repository.Filter) ([]*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Profile, 0, len(s.items))
	for _, p := range s.items {
		if email, ok := query["email"].(string); ok && p.Email != email {
			continue
		}
		if surname, ok := query["surname"].(string); ok && p.Surname != surname {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *memProfileStore) Update(ctx context.Context, query repository.Filter, patch repository.Patch) (*model.Profile, error) {
	p, err := s.FindOne(ctx, query)
	if err != nil || p == nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for col, value := range patch {
		switch col {
		case "surname":
			p.Surname = value.(string)
		case "pin_encrypted":
			p.PinEncrypted = value.(string)
		case "pin_key_id":
			p.PinKeyID = value.(string)
		}
	}
	return p, nil
}

func (s *memProfileStore) Delete(ctx context.Context, query repository.Filter) (*model.Profile, error) {
	p, err := s.FindOne(ctx, query)
	if err != nil || p == nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, p.ProfileID)
	return p, nil
}

// memSessionCache mirrors the Redis-backed cache: Put snapshots the profile
// so later store writes do not leak through without an Invalidate.
type memSessionCache struct {
	mu          sync.Mutex
	profiles    map[string]*model.Profile
	invalidated []string
}

func newMemSessionCache() *memSessionCache {
	return &memSessionCache{profiles: make(map[string]*model.Profile)}
}

func (c *memSessionCache) Put(_ context.Context, credentialID, _, _ string, profile *model.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if profile == nil {
		c.profiles[credentialID] = nil
		return
	}
	snapshot := *profile
	c.profiles[credentialID] = &snapshot
}

func (c *memSessionCache) GetProfile(_ context.Context, credentialID string) (*model.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	profile, ok := c.profiles[credentialID]
	return profile, ok && profile != nil
}

func (c *memSessionCache) Invalidate(_ context.Context, credentialID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, credentialID)
	c.invalidated = append(c.invalidated, credentialID)
	return nil
}

// ---------- fixture ----------

type authFixture struct {
	service     *AuthService
	tokens      *token.Service
	credentials *memCredentialStore
	profiles    *memProfileStore
	sessions    *memSessionCache
	cfg         *config.Config
	hasher      *hashing.Hasher
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Hashing.BcryptCost = 4
	cfg.Token = config.TokenConfig{
		Issuer:                   "account-service",
		Audience:                 "account-service-clients",
		AccessTokenValidityDays:  1,
		RefreshTokenValidityDays: 30,
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := token.NewServiceWithKeys(cfg.Token, key, &key.PublicKey)

	credentials := newMemCredentialStore()
	profiles := newMemProfileStore()
	sessions := newMemSessionCache()
	hasher := hashing.NewHasher(cfg)

	svc := NewAuthService(AuthServiceDeps{
		Config:      cfg,
		Credentials: credentials,
		Profiles:    profiles,
		Hasher:      hasher,
		Tokens:      tokens,
		Sessions:    sessions,
	})
	return &authFixture{
		service:     svc,
		tokens:      tokens,
		credentials: credentials,
		profiles:    profiles,
		sessions:    sessions,
		cfg:         cfg,
		hasher:      hasher,
	}
}

func register(t *testing.T, fx *authFixture, email, password string) *model.CredentialSummary {
	t.Helper()
	summary, err := fx.service.Register(context.Background(), &RegisterRequest{
		Email:    email,
		Password: password,
		Surname:  "Doe",
		Pin:      "0000",
	})
	require.NoError(t, err)
	return summary
}

// ---------- tests ----------

func TestRegisterThenLogin(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	summary := register(t, fx, "a@x.com", "secret1")
	require.NotEmpty(t, summary.ID)
	assert.Equal(t, "a@x.com", summary.Email)

	result, err := fx.service.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token.AccessToken)
	require.NotEmpty(t, result.Token.RefreshToken)
	assert.Equal(t, "a@x.com", result.UserData.Email)

	// The access token embeds the profile identity and the stored session key.
	claims, err := fx.tokens.Validate(result.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, summary.ID, claims.Subject)
	assert.Equal(t, result.UserData.ProfileID, claims.Ext["userId"])
	assert.Equal(t, "a@x.com", claims.Ext["email"])

	credential, err := fx.credentials.FindOne(ctx, repository.Filter{"id": summary.ID})
	require.NoError(t, err)
	assert.Equal(t, claims.Key, credential.SessionPublicKey)
	assert.NotEmpty(t, credential.SessionPrivateKey)
	assert.NotEqual(t, credential.SessionPublicKey, credential.SessionPrivateKey)
	assert.Equal(t, 0, credential.LoginAttempts)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	fx := newAuthFixture(t)

	register(t, fx, "a@x.com", "secret1")
	_, err := fx.service.Register(context.Background(), &RegisterRequest{
		Email:    "a@x.com",
		Password: "different7",
		Surname:  "Smith",
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindDuplicateAccount))
}

func TestRegisterValidation(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	cases := []RegisterRequest{
		{Email: "not-an-email", Password: "secret1", Surname: "Doe"},
		{Email: "a@x.com", Password: "short", Surname: "Doe"},
		{Email: "a@x.com", Password: "secret1", Surname: ""},
		{Email: "a@x.com", Password: "secret1", Surname: "<script>alert(1)</script>"},
		{Email: "a@x.com", Password: "secret1", Surname: "<Doe>"},
	}
	for _, req := range cases {
		r := req
		_, err := fx.service.Register(ctx, &r)
		require.Error(t, err)
		assert.True(t, errs.Is(err, errs.KindValidation), "input %+v", req)
	}
}

func TestRegisterDuplicateWhenPrecheckMisses(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	svc := NewAuthService(AuthServiceDeps{
		Config:      fx.cfg,
		Credentials: &blindEmailCredentialStore{memCredentialStore: fx.credentials},
		Profiles:    fx.profiles,
		Hasher:      fx.hasher,
		Tokens:      fx.tokens,
	})

	_, err := svc.Register(ctx, &RegisterRequest{Email: "a@x.com", Password: "secret1", Surname: "Doe"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, &RegisterRequest{Email: "a@x.com", Password: "different7", Surname: "Smith"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindDuplicateAccount))
}

func TestLoginWrongPassword(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	summary := register(t, fx, "a@x.com", "secret1")

	_, err := fx.service.Login(ctx, "a@x.com", "wrong")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindInvalidCredentials))

	credential, err := fx.credentials.FindOne(ctx, repository.Filter{"id": summary.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, credential.LoginAttempts)
	assert.Empty(t, credential.SessionPublicKey)

	_, err = fx.service.Login(ctx, "a@x.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, 2, credential.LoginAttempts)

	// A successful login resets the counter.
	_, err = fx.service.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, 0, credential.LoginAttempts)
}

func TestLoginUnknownEmail(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.service.Login(context.Background(), "nobody@x.com", "secret1")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindInvalidCredentials))
}

func TestLoginMintsFreshSessionKeys(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	summary := register(t, fx, "a@x.com", "secret1")

	_, err := fx.service.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	credential, _ := fx.credentials.FindOne(ctx, repository.Filter{"id": summary.ID})
	firstKey := credential.SessionPublicKey

	_, err = fx.service.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEqual(t, firstKey, credential.SessionPublicKey)
}

func TestCurrentUser(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	summary := register(t, fx, "a@x.com", "secret1")

	profile, err := fx.service.CurrentUser(ctx, summary.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "a@x.com", profile.Email)
	assert.Equal(t, "Doe", profile.Surname)

	missing, err := fx.service.CurrentUser(ctx, "no-such-credential")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCurrentUserFreshAfterProfileUpdate(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	summary := register(t, fx, "a@x.com", "secret1")
	result, err := fx.service.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	// Login primed the session cache with a profile snapshot.
	cached, err := fx.service.CurrentUser(ctx, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, "Doe", cached.Surname)

	profileSvc := NewProfileService(fx.profiles, nil, fx.sessions, nil)
	_, err = profileSvc.Update(ctx, result.UserData.ProfileID, &UpdateRequest{Surname: "Smith"})
	require.NoError(t, err)
	assert.Contains(t, fx.sessions.invalidated, summary.ID)

	fresh, err := fx.service.CurrentUser(ctx, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, "Smith", fresh.Surname)
}

func TestLogoutIsIdempotent(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	summary := register(t, fx, "a@x.com", "secret1")
	_, err := fx.service.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	first, err := fx.service.Logout(ctx, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, &model.LogoutAck{AuthID: summary.ID, LoggedOut: true}, first)

	credential, _ := fx.credentials.FindOne(ctx, repository.Filter{"id": summary.ID})
	assert.Empty(t, credential.SessionPublicKey)
	assert.Empty(t, credential.SessionPrivateKey)
	assert.Equal(t, 0, credential.LoginAttempts)

	second, err := fx.service.Logout(ctx, summary.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
