package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-service/internal/errs"
	"account-service/internal/model"
	"account-service/internal/repository"
)

func newProfileFixture(t *testing.T) (*ProfileService, *memProfileStore) {
	t.Helper()
	profiles := newMemProfileStore()
	return NewProfileService(profiles, nil, nil, nil), profiles
}

func seedProfile(t *testing.T, store *memProfileStore, email, surname string) *model.Profile {
	t.Helper()
	p := &model.Profile{CredentialID: "cred-" + email, Email: email, Surname: surname}
	require.NoError(t, store.Create(context.Background(), p))
	return p
}

func TestProfileGet(t *testing.T) {
	svc, store := newProfileFixture(t)
	seeded := seedProfile(t, store, "a@x.com", "Doe")

	profile, err := svc.Get(context.Background(), seeded.ProfileID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", profile.Email)

	_, err = svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestProfileListFallsBackToStore(t *testing.T) {
	svc, store := newProfileFixture(t)
	seedProfile(t, store, "a@x.com", "Doe")
	seedProfile(t, store, "b@x.com", "Smith")

	all, err := svc.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// With no search index the filter is applied by the store scan.
	filtered, err := svc.List(context.Background(), map[string]string{"surname": "Doe"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "a@x.com", filtered[0].Email)
}

func TestProfileUpdate(t *testing.T) {
	svc, store := newProfileFixture(t)
	seeded := seedProfile(t, store, "a@x.com", "Doe")

	updated, err := svc.Update(context.Background(), seeded.ProfileID, &UpdateRequest{Surname: "Smith"})
	require.NoError(t, err)
	assert.Equal(t, "Smith", updated.Surname)

	_, err = svc.Update(context.Background(), "missing", &UpdateRequest{Surname: "Smith"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))

	_, err = svc.Update(context.Background(), seeded.ProfileID, &UpdateRequest{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))
}

func TestProfileUpdateRejectsMarkupSurname(t *testing.T) {
	svc, store := newProfileFixture(t)
	seeded := seedProfile(t, store, "a@x.com", "Doe")

	// No "script" substring; only the raw angle brackets give this away.
	_, err := svc.Update(context.Background(), seeded.ProfileID, &UpdateRequest{Surname: "<Doe>"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindValidation))

	current, err := store.FindOne(context.Background(), repository.Filter{"id": seeded.ProfileID})
	require.NoError(t, err)
	assert.Equal(t, "Doe", current.Surname)
}

func TestProfileUpdateInvalidatesSession(t *testing.T) {
	profiles := newMemProfileStore()
	sessions := newMemSessionCache()
	svc := NewProfileService(profiles, nil, sessions, nil)

	seeded := seedProfile(t, profiles, "a@x.com", "Doe")
	sessions.Put(context.Background(), seeded.CredentialID, "pub", "priv", seeded)

	_, err := svc.Update(context.Background(), seeded.ProfileID, &UpdateRequest{Surname: "Smith"})
	require.NoError(t, err)

	assert.Contains(t, sessions.invalidated, seeded.CredentialID)
	_, ok := sessions.GetProfile(context.Background(), seeded.CredentialID)
	assert.False(t, ok)
}

func TestProfileDelete(t *testing.T) {
	svc, store := newProfileFixture(t)
	seeded := seedProfile(t, store, "a@x.com", "Doe")

	deleted, err := svc.Delete(context.Background(), seeded.ProfileID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ProfileID, deleted.ProfileID)

	_, err = svc.Delete(context.Background(), seeded.ProfileID)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}
