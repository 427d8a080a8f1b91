// Package token issues and validates the RS256-signed session tokens. The
// signing key pair is loaded once from PEM files at startup; any service
// holding only the public key can validate tokens without being able to mint
// them.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"account-service/internal/config"
	"account-service/internal/errs"
	"account-service/internal/model"
	"account-service/internal/util"
)

// Claims is the wire shape of every issued token. Key carries the per-login
// session key ("prm" on the wire); Ext carries the profile id and email.
type Claims struct {
	Key string         `json:"prm"`
	Ext map[string]any `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	cfg        config.TokenConfig
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	now        func() time.Time
}

// NewService loads the key pair from the configured PEM paths. Unreadable or
// malformed key files are a startup failure; nothing can be issued or
// validated without them.
func NewService(cfg config.TokenConfig) (*Service, error) {
	privPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", cfg.PrivateKeyPath, err)
	}
	pubPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key %s: %w", cfg.PublicKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	util.Info("Token service initialized",
		zap.String("issuer", cfg.Issuer),
		zap.String("audience", cfg.Audience),
		zap.Int("access_validity_days", cfg.AccessTokenValidityDays),
		zap.Int("refresh_validity_days", cfg.RefreshTokenValidityDays),
	)

	return NewServiceWithKeys(cfg, privateKey, publicKey), nil
}

// NewServiceWithKeys builds a service around an already parsed key pair.
func NewServiceWithKeys(cfg config.TokenConfig, privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey) *Service {
	return &Service{
		cfg:        cfg,
		privateKey: privateKey,
		publicKey:  publicKey,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Used by tests to step across expiry.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Issue signs a token for the given subject. Expiry is iat + validityDays
// whole days.
func (s *Service) Issue(subject, key string, validityDays int, ext map[string]any) (string, error) {
	iat := s.now().UTC()
	claims := &Claims{
		Key: key,
		Ext: ext,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(time.Duration(validityDays) * 24 * time.Hour)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		util.Error("Token signing failed", zap.Error(err))
		return "", errs.Wrap(errs.KindInternal, "Token generation failure", err)
	}
	return signed, nil
}

// Validate verifies signature and expiry and returns the decoded claims.
// Expired-but-authentic tokens are reported distinctly so clients can be told
// to refresh.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.Wrap(errs.KindExpiredToken, "Token is expired", err)
		}
		return nil, errs.Wrap(errs.KindInvalidToken, "Token is not valid", err)
	}
	return claims, nil
}

// DecodeIgnoringExpiry checks the signature but skips claim validation, so
// expired tokens can still be inspected (e.g. during a refresh flow).
func (s *Service) DecodeIgnoringExpiry(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidToken, "Token is not valid", err)
	}
	return claims, nil
}

// IssueSessionPair mints the access/refresh pair for one login. Each token
// embeds its own session key; both share subject, issuer, audience and ext.
func (s *Service) IssueSessionPair(subjectID, accessKey, refreshKey string, ext map[string]any) (*model.TokenPair, error) {
	accessToken, err := s.Issue(subjectID, accessKey, s.cfg.AccessTokenValidityDays, ext)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.Issue(subjectID, refreshKey, s.cfg.RefreshTokenValidityDays, ext)
	if err != nil {
		return nil, err
	}
	return &model.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// ValidateShape rejects claims missing issuer, subject, audience, session key
// or extension data, or carrying an issuer/audience this service did not
// configure.
func (s *Service) ValidateShape(claims *Claims) error {
	if claims == nil ||
		claims.Issuer == "" ||
		claims.Subject == "" ||
		len(claims.Audience) == 0 ||
		claims.Key == "" ||
		claims.Ext == nil ||
		claims.Issuer != s.cfg.Issuer ||
		claims.Audience[0] != s.cfg.Audience {
		return errs.New(errs.KindAuthFailure, "Invalid Token")
	}
	return nil
}

func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	return s.publicKey, nil
}
