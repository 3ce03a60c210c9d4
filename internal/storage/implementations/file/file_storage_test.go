package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileStorageInvalidConfig(t *testing.T) {
	_, err := NewFileStorage(nil, logrus.New())
	require.Error(t, err)

	_, err = NewFileStorage(&FileStorageConfig{}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BasePath is required")
}

func TestFileStoragePut(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out")
	storage, err := NewFileStorage(&FileStorageConfig{BasePath: base, CreateDirs: true}, logrus.New())
	require.NoError(t, err)
	require.NoError(t, storage.Connect(context.Background()))
	defer storage.Close()

	location, err := storage.Put(context.Background(), "runs/dados_anonimizados_k2_l1.csv",
		strings.NewReader("nome;cpf\n*;*\n"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "runs", "dados_anonimizados_k2_l1.csv"), location)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "nome;cpf\n*;*\n", string(data))

	entries, err := os.ReadDir(filepath.Join(base, "runs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStorageMissingDirectory(t *testing.T) {
	storage, err := NewFileStorage(&FileStorageConfig{BasePath: filepath.Join(t.TempDir(), "missing")}, logrus.New())
	require.NoError(t, err)

	err = storage.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Base path does not exist")
}

func TestFileStorageRejectsEscapingKeys(t *testing.T) {
	storage, err := NewFileStorage(&FileStorageConfig{BasePath: t.TempDir()}, logrus.New())
	require.NoError(t, err)
	require.NoError(t, storage.Connect(context.Background()))

	_, err = storage.Put(context.Background(), "../escape.csv", strings.NewReader("x"), "text/csv")
	assert.Error(t, err)
}

func TestFileStoragePutNotConnected(t *testing.T) {
	storage, err := NewFileStorage(&FileStorageConfig{BasePath: t.TempDir()}, logrus.New())
	require.NoError(t, err)

	_, err = storage.Put(context.Background(), "a.csv", strings.NewReader("x"), "text/csv")
	assert.Error(t, err)
}
