package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/anonkl/internal/storage/implementations/file"
	"github.com/inferloop/anonkl/pkg/interfaces"
)

func TestFactorySupportedTypes(t *testing.T) {
	factory := NewFactory(logrus.New())

	assert.Equal(t, []string{"file", "s3"}, factory.GetSupportedTypes())
	assert.True(t, factory.IsSupported("s3"))
	assert.False(t, factory.IsSupported("redis"))
}

func TestFactoryCreatesFileStore(t *testing.T) {
	factory := NewFactory(logrus.New())
	base := filepath.Join(t.TempDir(), "artifacts")

	store, err := factory.CreateArtifactStore(context.Background(), &Config{
		File: file.FileStorageConfig{BasePath: base, CreateDirs: true},
	})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "file", store.Name())
	location, err := store.Put(context.Background(), "a.csv", strings.NewReader("x"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "a.csv"), location)
}

func TestFactoryUnsupportedType(t *testing.T) {
	factory := NewFactory(logrus.New())

	_, err := factory.CreateArtifactStore(context.Background(), &Config{Type: "redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestFactoryS3RequiresBucket(t *testing.T) {
	factory := NewFactory(logrus.New())

	_, err := factory.CreateArtifactStore(context.Background(), &Config{Type: "s3"})
	require.Error(t, err)
}

func TestFactoryRegisterStorage(t *testing.T) {
	factory := NewFactory(logrus.New())

	require.Error(t, factory.RegisterStorage("", nil))
	require.Error(t, factory.RegisterStorage("memory", nil))

	require.NoError(t, factory.RegisterStorage("memory", func(config *Config, logger *logrus.Logger) (interfaces.ArtifactStore, error) {
		return discardStore{}, nil
	}))

	store, err := factory.CreateArtifactStore(context.Background(), &Config{Type: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "discard", store.Name())
}

func TestFactoryReportStoreDisabled(t *testing.T) {
	store, err := NewFactory(logrus.New()).CreateReportStore(context.Background(), &Config{})
	require.NoError(t, err)
	assert.Nil(t, store)
}

type discardStore struct{}

func (discardStore) Name() string { return "discard" }

func (discardStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := io.Copy(io.Discard, body)
	return key, err
}

func (discardStore) Close() error { return nil }
