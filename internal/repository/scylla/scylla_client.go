package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"account-service/internal/config"
	"account-service/internal/util"
)

// Hot-path statements. Each call builds its own gocql.Query from these
// strings; gocql prepares a statement once per session and serves later
// executions from its cache, and a per-call query carries no shared mutable
// state between goroutines.
const (
	stmtInsertCredential = `
        INSERT INTO credentials (
            credential_id, email_bucket, email, password_hash,
            session_public_key, session_private_key, login_attempts,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// LWT claim on the email index row; registration uniqueness hangs off
	// this single conditional insert.
	stmtClaimEmail = `
        INSERT INTO credentials_by_email (email_bucket, email, credential_id)
        VALUES (?, ?, ?) IF NOT EXISTS`

	stmtSelectCredentialByID = `
        SELECT credential_id, email_bucket, email, password_hash,
            session_public_key, session_private_key, login_attempts,
            created_at, updated_at
        FROM credentials WHERE credential_id = ?`

	stmtSelectCredentialIDByEmail = `
        SELECT credential_id FROM credentials_by_email
        WHERE email_bucket = ? AND email = ?`

	stmtDeleteCredential = `
        DELETE FROM credentials WHERE credential_id = ?`

	stmtDeleteCredentialByEmail = `
        DELETE FROM credentials_by_email WHERE email_bucket = ? AND email = ?`

	stmtInsertProfile = `
        INSERT INTO profiles (
            profile_id, email_bucket, credential_id, email, surname,
            pin_encrypted, pin_key_id, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmtInsertProfileByCredential = `
        INSERT INTO profiles_by_credential (credential_id, profile_id)
        VALUES (?, ?)`

	stmtSelectProfileByID = `
        SELECT profile_id, email_bucket, credential_id, email, surname,
            pin_encrypted, pin_key_id, created_at, updated_at
        FROM profiles WHERE profile_id = ?`

	stmtSelectProfileIDByCredential = `
        SELECT profile_id FROM profiles_by_credential WHERE credential_id = ?`

	stmtDeleteProfile = `
        DELETE FROM profiles WHERE profile_id = ?`

	stmtDeleteProfileByCredential = `
        DELETE FROM profiles_by_credential WHERE credential_id = ?`
)

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

// ScanWithRetry retries transient scan failures with linear backoff.
func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		err := query.Scan(dest...)
		if err == nil {
			return nil
		}
		if err == gocql.ErrNotFound {
			return err
		}
		lastErr = err
		if i < 2 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return lastErr
}
