package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-service/internal/bucketing"
	"account-service/internal/model"
	"account-service/internal/repository"
	"account-service/internal/util"
)

var profileColumns = map[string]bool{
	"surname":       true,
	"pin_encrypted": true,
	"pin_key_id":    true,
}

// ProfileStore implements repository.ProfileStore on ScyllaDB. Canonical rows
// are keyed by profile_id with a credential_id index for current-user
// lookups.
type ProfileStore struct {
	client    *ScyllaClient
	bucketing *bucketing.BucketingManager
}

func NewProfileStore(client *ScyllaClient, bucketing *bucketing.BucketingManager) *ProfileStore {
	return &ProfileStore{client: client, bucketing: bucketing}
}

func (s *ProfileStore) Create(ctx context.Context, profile *model.Profile) error {
	if profile.ProfileID == "" {
		profile.ProfileID = uuid.New().String()
	}
	profile.EmailBucket = s.bucketing.EmailBucket(profile.Email)
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	batch := s.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(stmtInsertProfile,
		profile.ProfileID, profile.EmailBucket, profile.CredentialID,
		profile.Email, profile.Surname, profile.PinEncrypted, profile.PinKeyID,
		profile.CreatedAt, profile.UpdatedAt)
	batch.Query(stmtInsertProfileByCredential,
		profile.CredentialID, profile.ProfileID)

	if err := s.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create profile",
			zap.String("profile_id", profile.ProfileID),
			zap.String("credential_id", profile.CredentialID),
			zap.Error(err))
		return fmt.Errorf("failed to create profile: %w", err)
	}

	util.Info("Profile created",
		zap.String("profile_id", profile.ProfileID),
		zap.String("credential_id", profile.CredentialID))
	return nil
}

func (s *ProfileStore) FindOne(ctx context.Context, query repository.Filter) (*model.Profile, error) {
	id, err := s.resolveID(ctx, query)
	if err != nil || id == "" {
		return nil, err
	}
	return s.getByID(ctx, id)
}

// FindMany lists profiles. Surname/email filters are applied on the scan;
// large deployments serve filtered listings from the search index instead
// (see internal/search).
func (s *ProfileStore) FindMany(ctx context.Context, query repository.Filter) ([]*model.Profile, error) {
	if id, ok := query["id"].(string); ok {
		profile, err := s.getByID(ctx, id)
		if err != nil || profile == nil {
			return nil, err
		}
		return []*model.Profile{profile}, nil
	}

	iter := s.client.Query(`
        SELECT profile_id, email_bucket, credential_id, email, surname,
            pin_encrypted, pin_key_id, created_at, updated_at
        FROM profiles`).WithContext(ctx).Iter()

	var out []*model.Profile
	for {
		profile, ok := scanProfile(iter)
		if !ok {
			break
		}
		if matchesProfile(profile, query) {
			out = append(out, profile)
		}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return out, nil
}

func (s *ProfileStore) Update(ctx context.Context, query repository.Filter, patch repository.Patch) (*model.Profile, error) {
	profile, err := s.FindOne(ctx, query)
	if err != nil || profile == nil {
		return nil, err
	}

	assignments, values, err := buildAssignments(patch, profileColumns)
	if err != nil {
		return nil, err
	}
	values = append(values, profile.ProfileID)

	stmt := fmt.Sprintf(`UPDATE profiles SET %s WHERE profile_id = ?`, assignments)
	if err := s.client.Query(stmt, values...).WithContext(ctx).Exec(); err != nil {
		util.Error("Failed to update profile",
			zap.String("profile_id", profile.ProfileID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return s.getByID(ctx, profile.ProfileID)
}

func (s *ProfileStore) Delete(ctx context.Context, query repository.Filter) (*model.Profile, error) {
	profile, err := s.FindOne(ctx, query)
	if err != nil || profile == nil {
		return nil, err
	}

	batch := s.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(stmtDeleteProfile, profile.ProfileID)
	batch.Query(stmtDeleteProfileByCredential, profile.CredentialID)

	if err := s.client.ExecuteBatch(batch); err != nil {
		return nil, fmt.Errorf("failed to delete profile: %w", err)
	}

	util.Info("Profile deleted", zap.String("profile_id", profile.ProfileID))
	return profile, nil
}

// resolveID translates the portable "id" and "credentialId" filter fields
// onto this backend's key columns.
func (s *ProfileStore) resolveID(ctx context.Context, query repository.Filter) (string, error) {
	if id, ok := query["id"].(string); ok {
		return id, nil
	}
	credentialID, ok := query["credentialId"].(string)
	if !ok {
		return "", fmt.Errorf("unsupported profile filter: %v", filterKeys(query))
	}

	var id string
	q := s.client.Query(stmtSelectProfileIDByCredential, credentialID).WithContext(ctx)
	if err := s.client.ScanWithRetry(q, &id); err != nil {
		if err == gocql.ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve profile by credential: %w", err)
	}
	return id, nil
}

func (s *ProfileStore) getByID(ctx context.Context, id string) (*model.Profile, error) {
	q := s.client.Query(stmtSelectProfileByID, id).WithContext(ctx)

	profile := &model.Profile{}
	var updatedAt time.Time
	err := s.client.ScanWithRetry(q,
		&profile.ProfileID, &profile.EmailBucket, &profile.CredentialID,
		&profile.Email, &profile.Surname, &profile.PinEncrypted, &profile.PinKeyID,
		&profile.CreatedAt, &updatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("Failed to get profile", zap.String("profile_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if !updatedAt.IsZero() {
		profile.UpdatedAt = &updatedAt
	}
	return profile, nil
}

func scanProfile(iter *gocql.Iter) (*model.Profile, bool) {
	profile := &model.Profile{}
	var updatedAt time.Time
	ok := iter.Scan(
		&profile.ProfileID, &profile.EmailBucket, &profile.CredentialID,
		&profile.Email, &profile.Surname, &profile.PinEncrypted, &profile.PinKeyID,
		&profile.CreatedAt, &updatedAt)
	if ok && !updatedAt.IsZero() {
		profile.UpdatedAt = &updatedAt
	}
	return profile, ok
}

func matchesProfile(profile *model.Profile, query repository.Filter) bool {
	for key, want := range query {
		switch key {
		case "email":
			if profile.Email != want {
				return false
			}
		case "surname":
			if profile.Surname != want {
				return false
			}
		case "credentialId":
			if profile.CredentialID != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}
