package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oms/backend/internal/infrastructure/config"
)

func TestNewS3LabelStore_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3LabelStore(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		cfg := &config.StorageConfig{
			AccessKey: "test-key",
			SecretKey: "test-secret",
		}
		_, err := NewS3LabelStore(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing access key returns error", func(t *testing.T) {
		cfg := &config.StorageConfig{
			Bucket:    "test-bucket",
			SecretKey: "test-secret",
		}
		_, err := NewS3LabelStore(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key is required")
	})

	t.Run("missing secret key returns error", func(t *testing.T) {
		cfg := &config.StorageConfig{
			Bucket:    "test-bucket",
			AccessKey: "test-key",
		}
		_, err := NewS3LabelStore(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})

	t.Run("valid config constructs", func(t *testing.T) {
		cfg := &config.StorageConfig{
			Bucket:    "labels",
			AccessKey: "test-key",
			SecretKey: "test-secret",
			Endpoint:  "localhost:9000",
		}
		store, err := NewS3LabelStore(cfg, WithPresignExpiration(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "labels", store.Bucket())
		assert.Equal(t, time.Hour, store.presignExpiration)
	})
}

func TestLabelKey(t *testing.T) {
	assert.Equal(t, "labels/AWB123.pdf", labelKey("AWB123"))
}

func TestMemoryLabelStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLabelStore()

	_, err := store.StoreLabel(ctx, "", []byte("pdf"))
	require.Error(t, err)
	_, err = store.StoreLabel(ctx, "AWB1", nil)
	require.Error(t, err)

	key, err := store.StoreLabel(ctx, "AWB1", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "labels/AWB1.pdf", key)

	ok, err := store.HasLabel(ctx, "AWB1")
	require.NoError(t, err)
	assert.True(t, ok)

	url, expiresAt, err := store.LabelURL(ctx, "AWB1", 10*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "labels/AWB1.pdf")
	assert.True(t, expiresAt.After(time.Now()))

	_, _, err = store.LabelURL(ctx, "AWB404", time.Minute)
	require.Error(t, err)

	require.NoError(t, store.DeleteLabel(ctx, "AWB1"))
	ok, err = store.HasLabel(ctx, "AWB1")
	require.NoError(t, err)
	assert.False(t, ok)
}
