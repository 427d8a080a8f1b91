// Package repository defines the storage contract shared by every entity
// store. Backends translate the portable "id" filter field into their own
// identifier columns; callers never see backend keys.
package repository

import (
	"context"
	"errors"

	"account-service/internal/model"
)

// ErrDuplicate is returned by Create when a uniqueness constraint rejects the
// write (e.g. a second credential claiming an already-registered email).
var ErrDuplicate = errors.New("duplicate record")

// Filter selects records by field value. Supported fields are per store; the
// "id" field always addresses the entity's opaque identifier.
type Filter map[string]any

// Patch lists the fields to overwrite on Update. Keys are storage column
// names; unknown keys are rejected by the backend.
type Patch map[string]any

// Store is the generic create/find/update/delete contract over one entity
// type. FindOne and Update return (nil, nil) when nothing matches; Delete
// returns the removed entity, nil when nothing matched.
type Store[T any] interface {
	Create(ctx context.Context, entity *T) error
	FindOne(ctx context.Context, query Filter) (*T, error)
	FindMany(ctx context.Context, query Filter) ([]*T, error)
	Update(ctx context.Context, query Filter, patch Patch) (*T, error)
	Delete(ctx context.Context, query Filter) (*T, error)
}

// CredentialStore persists one credential record per account.
type CredentialStore = Store[model.Credential]

// ProfileStore persists one profile record per account.
type ProfileStore = Store[model.Profile]
