package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"account-service/internal/client"
	"account-service/internal/model"
	"account-service/internal/util"
)

const sessionKeyPrefix = "session:"

// SessionCache keeps the session key pair minted at login next to a profile
// snapshot, keyed by credential id. Everything here is best-effort: a cache
// miss or a Redis outage falls back to the primary store, never to a failure.
type SessionCache struct {
	redis *client.RedisClient
	ttl   time.Duration
}

type sessionEntry struct {
	PublicKey  string         `json:"publicKey"`
	PrivateKey string         `json:"privateKey"`
	Profile    *model.Profile `json:"profile,omitempty"`
}

func NewSessionCache(redisClient *client.RedisClient, ttl time.Duration) *SessionCache {
	return &SessionCache{redis: redisClient, ttl: ttl}
}

func sessionKey(credentialID string) string {
	return sessionKeyPrefix + credentialID
}

// Put stores the freshly minted session keys and profile snapshot. The TTL
// matches the access token validity so stale entries age out on their own.
func (c *SessionCache) Put(ctx context.Context, credentialID, publicKey, privateKey string, profile *model.Profile) {
	if c == nil || c.redis == nil {
		return
	}
	entry := sessionEntry{PublicKey: publicKey, PrivateKey: privateKey, Profile: profile}
	raw, err := json.Marshal(entry)
	if err != nil {
		util.Warn("failed to marshal session entry", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, sessionKey(credentialID), raw, c.ttl); err != nil {
		util.Warn("failed to cache session",
			zap.String("credential_id", credentialID),
			zap.Error(err))
	}
}

// GetKeys returns the cached session key pair, or ("", "", false) on a miss.
func (c *SessionCache) GetKeys(ctx context.Context, credentialID string) (publicKey, privateKey string, ok bool) {
	entry, found := c.get(ctx, credentialID)
	if !found {
		return "", "", false
	}
	return entry.PublicKey, entry.PrivateKey, true
}

// GetProfile returns the cached profile snapshot if present.
func (c *SessionCache) GetProfile(ctx context.Context, credentialID string) (*model.Profile, bool) {
	entry, found := c.get(ctx, credentialID)
	if !found || entry.Profile == nil {
		return nil, false
	}
	return entry.Profile, true
}

func (c *SessionCache) get(ctx context.Context, credentialID string) (*sessionEntry, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, sessionKey(credentialID))
	if err != nil {
		if !errors.Is(err, client.ErrKeyNotFound) {
			util.Warn("session cache read failed",
				zap.String("credential_id", credentialID),
				zap.Error(err))
		}
		return nil, false
	}
	entry := &sessionEntry{}
	if err := json.Unmarshal([]byte(raw), entry); err != nil {
		util.Warn("corrupt session cache entry", zap.String("credential_id", credentialID))
		return nil, false
	}
	return entry, true
}

// Invalidate drops the cached session; called on logout and credential
// deletion.
func (c *SessionCache) Invalidate(ctx context.Context, credentialID string) error {
	if c == nil || c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, sessionKey(credentialID)); err != nil {
		return fmt.Errorf("failed to invalidate session for %s: %w", credentialID, err)
	}
	return nil
}
