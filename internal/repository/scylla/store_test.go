package scylla

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-service/internal/model"
	"account-service/internal/repository"
)

func TestBuildAssignmentsDeterministicOrder(t *testing.T) {
	patch := repository.Patch{
		"session_private_key": "b",
		"login_attempts":      0,
		"session_public_key":  "a",
	}

	assignments, values, err := buildAssignments(patch, credentialColumns)
	require.NoError(t, err)
	assert.Equal(t,
		"login_attempts = ?, session_private_key = ?, session_public_key = ?, updated_at = ?",
		assignments)
	require.Len(t, values, 4)
	assert.Equal(t, 0, values[0])
	assert.Equal(t, "b", values[1])
	assert.Equal(t, "a", values[2])
}

func TestBuildAssignmentsRejectsUnknownColumn(t *testing.T) {
	_, _, err := buildAssignments(repository.Patch{"email": "x@y.com"}, credentialColumns)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "email"))

	_, _, err = buildAssignments(repository.Patch{"password_hash": "h"}, profileColumns)
	assert.Error(t, err)
}

// The email index row is the uniqueness authority for registration; the
// claim must be conditional so concurrent inserts for one address cannot
// both apply.
func TestEmailClaimIsConditional(t *testing.T) {
	assert.Contains(t, stmtClaimEmail, "IF NOT EXISTS")
	assert.Contains(t, stmtClaimEmail, "credentials_by_email")
	assert.NotContains(t, stmtInsertCredential, "IF NOT EXISTS")
}

func TestMatchesProfile(t *testing.T) {
	profile := &model.Profile{
		ProfileID:    "p1",
		CredentialID: "c1",
		Email:        "a@x.com",
		Surname:      "Doe",
	}

	assert.True(t, matchesProfile(profile, repository.Filter{}))
	assert.True(t, matchesProfile(profile, repository.Filter{"email": "a@x.com"}))
	assert.True(t, matchesProfile(profile, repository.Filter{"surname": "Doe", "credentialId": "c1"}))
	assert.False(t, matchesProfile(profile, repository.Filter{"email": "b@x.com"}))
	assert.False(t, matchesProfile(profile, repository.Filter{"unknown": "x"}))
}
