package scylla

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-service/internal/bucketing"
	"account-service/internal/model"
	"account-service/internal/repository"
	"account-service/internal/util"
)

// credentialColumns are the fields Update may patch. updated_at is stamped
// automatically.
var credentialColumns = map[string]bool{
	"password_hash":       true,
	"session_public_key":  true,
	"session_private_key": true,
	"login_attempts":      true,
}

// CredentialStore implements repository.CredentialStore on ScyllaDB. The
// canonical row lives in credentials keyed by credential_id; an email index
// partitioned by murmur3 bucket supports login lookups.
type CredentialStore struct {
	client    *ScyllaClient
	bucketing *bucketing.BucketingManager
}

func NewCredentialStore(client *ScyllaClient, bucketing *bucketing.BucketingManager) *CredentialStore {
	return &CredentialStore{client: client, bucketing: bucketing}
}

// Create claims the email index row with a lightweight transaction before
// writing the canonical credentials row. Two concurrent registrations for the
// same address race on the conditional insert; the loser gets
// repository.ErrDuplicate. The LWT cannot ride in a batch with the
// credentials write, so a failed canonical write releases the claim instead.
func (s *CredentialStore) Create(ctx context.Context, cred *model.Credential) error {
	if cred.CredentialID == "" {
		cred.CredentialID = uuid.New().String()
	}
	cred.EmailBucket = s.bucketing.EmailBucket(cred.Email)
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	previous := make(map[string]interface{})
	applied, err := s.client.Query(stmtClaimEmail,
		cred.EmailBucket, cred.Email, cred.CredentialID).
		WithContext(ctx).MapScanCAS(previous)
	if err != nil {
		util.Error("Failed to claim email",
			zap.String("credential_id", cred.CredentialID),
			zap.Error(err))
		return fmt.Errorf("failed to claim email: %w", err)
	}
	if !applied {
		return fmt.Errorf("email already registered: %w", repository.ErrDuplicate)
	}

	err = s.client.Query(stmtInsertCredential,
		cred.CredentialID, cred.EmailBucket, cred.Email, cred.PasswordHash,
		cred.SessionPublicKey, cred.SessionPrivateKey, cred.LoginAttempts,
		cred.CreatedAt, cred.UpdatedAt).WithContext(ctx).Exec()
	if err != nil {
		if rerr := s.client.Query(stmtDeleteCredentialByEmail,
			cred.EmailBucket, cred.Email).WithContext(ctx).Exec(); rerr != nil {
			util.Warn("failed to release email claim",
				zap.String("email", cred.Email),
				zap.Error(rerr))
		}
		util.Error("Failed to create credential",
			zap.String("credential_id", cred.CredentialID),
			zap.Error(err))
		return fmt.Errorf("failed to create credential: %w", err)
	}

	util.Info("Credential created",
		zap.String("credential_id", cred.CredentialID),
		zap.Int("email_bucket", cred.EmailBucket))
	return nil
}

func (s *CredentialStore) FindOne(ctx context.Context, query repository.Filter) (*model.Credential, error) {
	id, err := s.resolveID(ctx, query)
	if err != nil || id == "" {
		return nil, err
	}
	return s.getByID(ctx, id)
}

func (s *CredentialStore) FindMany(ctx context.Context, query repository.Filter) ([]*model.Credential, error) {
	if len(query) > 0 {
		cred, err := s.FindOne(ctx, query)
		if err != nil || cred == nil {
			return nil, err
		}
		return []*model.Credential{cred}, nil
	}

	iter := s.client.Query(`
        SELECT credential_id, email_bucket, email, password_hash,
            session_public_key, session_private_key, login_attempts,
            created_at, updated_at
        FROM credentials`).WithContext(ctx).Iter()

	var out []*model.Credential
	for {
		cred, ok := scanCredential(iter)
		if !ok {
			break
		}
		out = append(out, cred)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return out, nil
}

func (s *CredentialStore) Update(ctx context.Context, query repository.Filter, patch repository.Patch) (*model.Credential, error) {
	cred, err := s.FindOne(ctx, query)
	if err != nil || cred == nil {
		return nil, err
	}

	assignments, values, err := buildAssignments(patch, credentialColumns)
	if err != nil {
		return nil, err
	}
	values = append(values, cred.CredentialID)

	stmt := fmt.Sprintf(`UPDATE credentials SET %s WHERE credential_id = ?`, assignments)
	if err := s.client.Query(stmt, values...).WithContext(ctx).Exec(); err != nil {
		util.Error("Failed to update credential",
			zap.String("credential_id", cred.CredentialID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to update credential: %w", err)
	}

	return s.getByID(ctx, cred.CredentialID)
}

func (s *CredentialStore) Delete(ctx context.Context, query repository.Filter) (*model.Credential, error) {
	cred, err := s.FindOne(ctx, query)
	if err != nil || cred == nil {
		return nil, err
	}

	batch := s.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(stmtDeleteCredential, cred.CredentialID)
	batch.Query(stmtDeleteCredentialByEmail, cred.EmailBucket, cred.Email)

	if err := s.client.ExecuteBatch(batch); err != nil {
		return nil, fmt.Errorf("failed to delete credential: %w", err)
	}

	util.Info("Credential deleted", zap.String("credential_id", cred.CredentialID))
	return cred, nil
}

// resolveID is the identifier translation adapter: it maps the portable "id"
// and "email" filter fields onto this backend's key columns. Empty result
// with nil error means no match.
func (s *CredentialStore) resolveID(ctx context.Context, query repository.Filter) (string, error) {
	if id, ok := query["id"].(string); ok {
		return id, nil
	}
	email, ok := query["email"].(string)
	if !ok {
		return "", fmt.Errorf("unsupported credential filter: %v", filterKeys(query))
	}

	var id string
	q := s.client.Query(stmtSelectCredentialIDByEmail, s.bucketing.EmailBucket(email), email).WithContext(ctx)
	if err := s.client.ScanWithRetry(q, &id); err != nil {
		if err == gocql.ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve credential by email: %w", err)
	}
	return id, nil
}

func (s *CredentialStore) getByID(ctx context.Context, id string) (*model.Credential, error) {
	cred := &model.Credential{}
	var updatedAt time.Time

	q := s.client.Query(stmtSelectCredentialByID, id).WithContext(ctx)
	err := s.client.ScanWithRetry(q,
		&cred.CredentialID, &cred.EmailBucket, &cred.Email, &cred.PasswordHash,
		&cred.SessionPublicKey, &cred.SessionPrivateKey, &cred.LoginAttempts,
		&cred.CreatedAt, &updatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("Failed to get credential", zap.String("credential_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if !updatedAt.IsZero() {
		cred.UpdatedAt = &updatedAt
	}
	return cred, nil
}

func scanCredential(iter *gocql.Iter) (*model.Credential, bool) {
	cred := &model.Credential{}
	var updatedAt time.Time
	ok := iter.Scan(
		&cred.CredentialID, &cred.EmailBucket, &cred.Email, &cred.PasswordHash,
		&cred.SessionPublicKey, &cred.SessionPrivateKey, &cred.LoginAttempts,
		&cred.CreatedAt, &updatedAt)
	if ok && !updatedAt.IsZero() {
		cred.UpdatedAt = &updatedAt
	}
	return cred, ok
}

// buildAssignments renders "col = ?, ..." for the patch in deterministic
// order, rejecting unknown columns, and appends updated_at.
func buildAssignments(patch repository.Patch, allowed map[string]bool) (string, []interface{}, error) {
	cols := make([]string, 0, len(patch))
	for col := range patch {
		if !allowed[col] {
			return "", nil, fmt.Errorf("column not updatable: %s", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	assignments := ""
	values := make([]interface{}, 0, len(cols)+1)
	for _, col := range cols {
		if assignments != "" {
			assignments += ", "
		}
		assignments += col + " = ?"
		values = append(values, patch[col])
	}
	if assignments != "" {
		assignments += ", "
	}
	assignments += "updated_at = ?"
	values = append(values, time.Now().UTC())
	return assignments, values, nil
}

func filterKeys(query repository.Filter) []string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
