package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-service/internal/audit"
	"account-service/internal/config"
	"account-service/internal/encryption"
	"account-service/internal/errs"
	"account-service/internal/events"
	"account-service/internal/hashing"
	"account-service/internal/model"
	"account-service/internal/repository"
	"account-service/internal/search"
	"account-service/internal/token"
	"account-service/internal/util"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const minPasswordLength = 6

// SessionCache is the per-login session side channel consulted before the
// primary store; *redis.SessionCache is the production implementation.
type SessionCache interface {
	Put(ctx context.Context, credentialID, publicKey, privateKey string, profile *model.Profile)
	GetProfile(ctx context.Context, credentialID string) (*model.Profile, bool)
	Invalidate(ctx context.Context, credentialID string) error
}

type nopSessionCache struct{}

func (nopSessionCache) Put(context.Context, string, string, string, *model.Profile) {}
func (nopSessionCache) GetProfile(context.Context, string) (*model.Profile, bool)   { return nil, false }
func (nopSessionCache) Invalidate(context.Context, string) error                    { return nil }

// sessionKeyBytes is the entropy of each per-login session key; the stored
// value is its hex encoding (twice as many characters).
const sessionKeyBytes = 64

// AuthService orchestrates registration, login, identity lookup and logout
// over the credential and profile stores. Token minting is delegated to the
// token service; event publishing, audit and the session cache are
// best-effort side channels that never fail the main path.
type AuthService struct {
	config      *config.Config
	credentials repository.CredentialStore
	profiles    repository.ProfileStore
	hasher      *hashing.Hasher
	tokens      *token.Service
	sessions    SessionCache
	publisher   events.Publisher
	auditor     *audit.Recorder
	index       *search.ProfileIndex
	cipher      *encryption.Manager
}

type AuthServiceDeps struct {
	Config      *config.Config
	Credentials repository.CredentialStore
	Profiles    repository.ProfileStore
	Hasher      *hashing.Hasher
	Tokens      *token.Service
	Sessions    SessionCache
	Publisher   events.Publisher
	Auditor     *audit.Recorder
	Index       *search.ProfileIndex
	Cipher      *encryption.Manager
}

func NewAuthService(deps AuthServiceDeps) *AuthService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = nopSessionCache{}
	}
	return &AuthService{
		config:      deps.Config,
		credentials: deps.Credentials,
		profiles:    deps.Profiles,
		hasher:      deps.Hasher,
		tokens:      deps.Tokens,
		sessions:    sessions,
		publisher:   publisher,
		auditor:     deps.Auditor,
		index:       deps.Index,
		cipher:      deps.Cipher,
	}
}

// RegisterRequest carries the registration form fields. Pin is optional and
// stored encrypted.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Surname  string `json:"surname"`
	Pin      string `json:"rsaPin"`
}

func (r *RegisterRequest) validate() error {
	r.Email = strings.TrimSpace(r.Email)
	surname := strings.TrimSpace(r.Surname)

	if !emailPattern.MatchString(r.Email) {
		return errs.New(errs.KindValidation, "A valid email is required")
	}
	if len(r.Password) < minPasswordLength {
		return errs.New(errs.KindValidation, fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if surname == "" {
		return errs.New(errs.KindValidation, "Surname is required")
	}
	// Checked before escaping; escaping rewrites the very characters the
	// check looks for.
	if util.ContainsSuspicious(r.Email) || util.ContainsSuspicious(surname) {
		return errs.New(errs.KindValidation, "Input contains invalid characters")
	}
	r.Surname = util.SanitizeInput(surname)
	return nil
}

// Register creates the credential and its linked profile. The two writes are
// independent; a profile write failure leaves the credential in place and
// surfaces as an internal error.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*model.CredentialSummary, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	existing, err := s.credentials.FindOne(ctx, repository.Filter{"email": req.Email})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}
	if existing != nil {
		return nil, errs.New(errs.KindDuplicateAccount, "User already registered")
	}

	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}

	credential := &model.Credential{
		CredentialID: uuid.New().String(),
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := s.credentials.Create(ctx, credential); err != nil {
		// The FindOne pre-check above races with concurrent registrations;
		// the store's conditional email claim is the authority.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errs.New(errs.KindDuplicateAccount, "User already registered")
		}
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}

	profile := &model.Profile{
		ProfileID:    uuid.New().String(),
		CredentialID: credential.CredentialID,
		Email:        credential.Email,
		Surname:      req.Surname,
	}
	if req.Pin != "" && s.cipher != nil {
		envelope, keyID, err := s.cipher.Encrypt(ctx, req.Pin)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
		}
		profile.PinEncrypted = envelope
		profile.PinKeyID = keyID
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		util.Error("profile creation failed after credential write",
			zap.String("credential_id", credential.CredentialID),
			zap.Error(err))
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}

	s.index.Index(ctx, profile)
	s.emit(ctx, model.EventRegistered, credential.CredentialID, credential.Email)

	return credential.Summary(), nil
}

// Login verifies the password and mints a fresh session. A wrong password
// bumps the informational loginAttempts counter; a success resets it and
// replaces the credential's session key pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.LoginResult, error) {
	email = strings.TrimSpace(email)

	credential, err := s.credentials.FindOne(ctx, repository.Filter{"email": email})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}
	if credential == nil {
		return nil, errs.New(errs.KindInvalidCredentials, "Invalid email or password")
	}

	if err := s.hasher.VerifyPassword(password, credential.PasswordHash); err != nil {
		if _, uerr := s.credentials.Update(ctx,
			repository.Filter{"id": credential.CredentialID},
			repository.Patch{"login_attempts": credential.LoginAttempts + 1},
		); uerr != nil {
			util.Warn("failed to record login attempt",
				zap.String("credential_id", credential.CredentialID),
				zap.Error(uerr))
		}
		s.emit(ctx, model.EventLoginFailed, credential.CredentialID, credential.Email)
		return nil, errs.New(errs.KindInvalidCredentials, "Invalid email or password")
	}

	accessKey, err := randomHex(sessionKeyBytes)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}
	refreshKey, err := randomHex(sessionKeyBytes)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}

	if _, err := s.credentials.Update(ctx,
		repository.Filter{"id": credential.CredentialID},
		repository.Patch{
			"session_public_key":  accessKey,
			"session_private_key": refreshKey,
			"login_attempts":      0,
		},
	); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}

	profile, err := s.profiles.FindOne(ctx, repository.Filter{"credentialId": credential.CredentialID})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}
	if profile == nil {
		return nil, errs.New(errs.KindInternal, "Internal Error")
	}

	ext := map[string]any{
		"userId": profile.ProfileID,
		"email":  profile.Email,
	}
	pair, err := s.tokens.IssueSessionPair(credential.CredentialID, accessKey, refreshKey, ext)
	if err != nil {
		return nil, err
	}

	s.sessions.Put(ctx, credential.CredentialID, accessKey, refreshKey, profile)
	s.emit(ctx, model.EventLoginSucceeded, credential.CredentialID, credential.Email)

	return &model.LoginResult{Token: pair, UserData: profile}, nil
}

// CurrentUser resolves the profile for an authenticated credential. Returns
// (nil, nil) when the credential has no profile.
func (s *AuthService) CurrentUser(ctx context.Context, credentialID string) (*model.Profile, error) {
	if cached, ok := s.sessions.GetProfile(ctx, credentialID); ok {
		return cached, nil
	}
	profile, err := s.profiles.FindOne(ctx, repository.Filter{"credentialId": credentialID})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}
	return profile, nil
}

// Logout clears the credential's session keys and resets the attempt counter.
// Idempotent; already issued tokens remain valid until natural expiry.
func (s *AuthService) Logout(ctx context.Context, credentialID string) (*model.LogoutAck, error) {
	updated, err := s.credentials.Update(ctx,
		repository.Filter{"id": credentialID},
		repository.Patch{
			"session_public_key":  "",
			"session_private_key": "",
			"login_attempts":      0,
		},
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}

	if err := s.sessions.Invalidate(ctx, credentialID); err != nil {
		util.Warn("session cache invalidation failed",
			zap.String("credential_id", credentialID),
			zap.Error(err))
	}
	if updated != nil {
		s.emit(ctx, model.EventLoggedOut, credentialID, updated.Email)
	}

	return &model.LogoutAck{AuthID: credentialID, LoggedOut: true}, nil
}

func (s *AuthService) emit(ctx context.Context, eventType, credentialID, email string) {
	event := &model.AccountEvent{
		EventID:      uuid.New().String(),
		Type:         eventType,
		CredentialID: credentialID,
		Email:        email,
		OccurredAt:   time.Now().UTC(),
	}
	s.publisher.Publish(ctx, event)
	s.auditor.Record(event)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
