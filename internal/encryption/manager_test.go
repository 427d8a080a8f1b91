package encryption

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-service/internal/config"
)

func newLocalManager() *Manager {
	cfg := &config.Config{}
	cfg.KMS.Enabled = false
	return NewManager(cfg, nil)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := newLocalManager()
	ctx := context.Background()

	envelope, keyID, err := m.Encrypt(ctx, "0000")
	require.NoError(t, err)
	require.NotEmpty(t, keyID)
	assert.NotContains(t, envelope, "0000")

	plaintext, err := m.Decrypt(ctx, envelope)
	require.NoError(t, err)
	assert.Equal(t, "0000", plaintext)

	// Decryption still works after the cached data key is dropped.
	m.ClearCache()
	plaintext, err = m.Decrypt(ctx, envelope)
	require.NoError(t, err)
	assert.Equal(t, "0000", plaintext)
}

func TestEncryptProducesFreshEnvelopes(t *testing.T) {
	m := newLocalManager()
	ctx := context.Background()

	first, _, err := m.Encrypt(ctx, "1234")
	require.NoError(t, err)
	second, _, err := m.Encrypt(ctx, "1234")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	m := newLocalManager()
	ctx := context.Background()

	_, err := m.Decrypt(ctx, "not json")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	corrupt, err := json.Marshal(&EncryptedField{
		Ciphertext:   "AAAA",
		EncryptedDEK: "AAAA",
		KeyID:        "k",
		Version:      "v1",
	})
	require.NoError(t, err)
	_, err = m.Decrypt(ctx, string(corrupt))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
