package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"account-service/internal/encryption"
	"account-service/internal/errs"
	"account-service/internal/model"
	"account-service/internal/repository"
	"account-service/internal/search"
	"account-service/internal/util"
)

// ProfileService serves the /users CRUD surface. Reads prefer the search
// index when the caller filters; the primary store stays authoritative.
type ProfileService struct {
	profiles repository.ProfileStore
	index    *search.ProfileIndex
	sessions SessionCache
	cipher   *encryption.Manager
}

func NewProfileService(profiles repository.ProfileStore, index *search.ProfileIndex, sessions SessionCache, cipher *encryption.Manager) *ProfileService {
	if sessions == nil {
		sessions = nopSessionCache{}
	}
	return &ProfileService{profiles: profiles, index: index, sessions: sessions, cipher: cipher}
}

// listFilterFields are the query parameters accepted by List; anything else
// is ignored rather than rejected.
var listFilterFields = map[string]string{
	"email":        "email",
	"surname":      "surname",
	"credentialId": "credential_id",
}

// List returns profiles matching the given query filters. Filtered queries go
// through Elasticsearch first and fall back to a store scan when the index is
// unavailable.
func (s *ProfileService) List(ctx context.Context, params map[string]string) ([]*model.Profile, error) {
	filters := make(map[string]string)
	storeFilter := repository.Filter{}
	for param, indexed := range listFilterFields {
		if value := strings.TrimSpace(params[param]); value != "" {
			filters[indexed] = value
			storeFilter[param] = value
		}
	}

	if len(filters) > 0 && s.index != nil {
		ids, err := s.index.Search(ctx, filters, 0)
		if err == nil {
			return s.resolveIDs(ctx, ids)
		}
		util.Warn("profile search failed, falling back to store scan", zap.Error(err))
	}

	profiles, err := s.profiles.FindMany(ctx, storeFilter)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}
	return profiles, nil
}

func (s *ProfileService) resolveIDs(ctx context.Context, ids []string) ([]*model.Profile, error) {
	profiles := make([]*model.Profile, 0, len(ids))
	for _, id := range ids {
		profile, err := s.profiles.FindOne(ctx, repository.Filter{"id": id})
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
		}
		if profile != nil {
			profiles = append(profiles, profile)
		}
	}
	return profiles, nil
}

// Get returns the profile with the given id.
func (s *ProfileService) Get(ctx context.Context, profileID string) (*model.Profile, error) {
	profile, err := s.profiles.FindOne(ctx, repository.Filter{"id": profileID})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}
	if profile == nil {
		return nil, errs.New(errs.KindNotFound, "User not found")
	}
	return profile, nil
}

// UpdateRequest carries the mutable profile fields; zero values are left
// untouched.
type UpdateRequest struct {
	Surname string `json:"surname"`
	Pin     string `json:"rsaPin"`
}

// Update applies a partial update and returns the updated profile.
func (s *ProfileService) Update(ctx context.Context, profileID string, req *UpdateRequest) (*model.Profile, error) {
	patch := repository.Patch{}
	if surname := strings.TrimSpace(req.Surname); surname != "" {
		if util.ContainsSuspicious(surname) {
			return nil, errs.New(errs.KindValidation, "Input contains invalid characters")
		}
		patch["surname"] = util.SanitizeInput(surname)
	}
	if req.Pin != "" && s.cipher != nil {
		envelope, keyID, err := s.cipher.Encrypt(ctx, req.Pin)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
		}
		patch["pin_encrypted"] = envelope
		patch["pin_key_id"] = keyID
	}
	if len(patch) == 0 {
		return nil, errs.New(errs.KindValidation, "No updatable fields supplied")
	}

	profile, err := s.profiles.Update(ctx, repository.Filter{"id": profileID}, patch)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}
	if profile == nil {
		return nil, errs.New(errs.KindNotFound, "User not found")
	}

	s.index.Index(ctx, profile)
	// The login-time snapshot served by current-user must not outlive this
	// write.
	if err := s.sessions.Invalidate(ctx, profile.CredentialID); err != nil {
		util.Warn("session cache invalidation failed",
			zap.String("credential_id", profile.CredentialID),
			zap.Error(err))
	}
	return profile, nil
}

// Delete removes the profile and returns the deleted record.
func (s *ProfileService) Delete(ctx context.Context, profileID string) (*model.Profile, error) {
	profile, err := s.profiles.Delete(ctx, repository.Filter{"id": profileID})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "Internal Error", err)
	}
	if profile == nil {
		return nil, errs.New(errs.KindNotFound, "User not found")
	}

	s.index.Remove(ctx, profileID)
	if err := s.sessions.Invalidate(ctx, profile.CredentialID); err != nil {
		util.Warn("session cache invalidation failed",
			zap.String("credential_id", profile.CredentialID),
			zap.Error(err))
	}
	return profile, nil
}
