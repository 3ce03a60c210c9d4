package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/internal/storage/implementations/file"
	"github.com/inferloop/anonkl/internal/storage/implementations/postgres"
	"github.com/inferloop/anonkl/internal/storage/implementations/s3"
	"github.com/inferloop/anonkl/pkg/constants"
	"github.com/inferloop/anonkl/pkg/errors"
	"github.com/inferloop/anonkl/pkg/interfaces"
)

// Config selects and configures the artifact and report stores.
type Config struct {
	// Type is the artifact store: file or s3
	Type string `json:"type" mapstructure:"type"`

	File file.FileStorageConfig `json:"file" mapstructure:"file"`
	S3   s3.S3Config            `json:"s3" mapstructure:"s3"`

	// Postgres enables the run report store when Host is set
	Postgres postgres.PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// connector is implemented by stores that need a connection before use.
type connector interface {
	Connect(ctx context.Context) error
}

// ArtifactCreateFunc builds an artifact store from configuration.
type ArtifactCreateFunc func(config *Config, logger *logrus.Logger) (interfaces.ArtifactStore, error)

// Factory creates artifact and report stores by type
type Factory struct {
	creators map[string]ArtifactCreateFunc
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewFactory creates a new storage factory
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}

	factory := &Factory{
		creators: make(map[string]ArtifactCreateFunc),
		logger:   logger,
	}

	factory.registerDefaults()

	return factory
}

// CreateArtifactStore creates and connects the configured artifact store.
func (f *Factory) CreateArtifactStore(ctx context.Context, config *Config) (interfaces.ArtifactStore, error) {
	if config == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidInput, "storage config cannot be nil")
	}

	storageType := config.Type
	if storageType == "" {
		storageType = constants.StorageTypeFile
	}

	f.mu.RLock()
	createFunc, exists := f.creators[storageType]
	f.mu.RUnlock()

	if !exists {
		return nil, errors.NewStorageError("UNSUPPORTED_TYPE", fmt.Sprintf("Storage type '%s' is not supported", storageType))
	}

	store, err := createFunc(config, f.logger)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, "CREATION_FAILED", fmt.Sprintf("Failed to create %s storage", storageType))
	}

	if c, ok := store.(connector); ok {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	f.logger.WithFields(logrus.Fields{
		"storage_type": storageType,
	}).Info("Created artifact store")

	return store, nil
}

// CreateReportStore connects the Postgres report store. It returns nil when
// no Postgres host is configured.
func (f *Factory) CreateReportStore(ctx context.Context, config *Config) (interfaces.ReportStore, error) {
	if config == nil || config.Postgres.Host == "" {
		return nil, nil
	}

	pgConfig := config.Postgres
	store, err := postgres.NewPostgresStorage(&pgConfig, f.logger)
	if err != nil {
		return nil, err
	}
	if err := store.Connect(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// GetSupportedTypes returns all supported artifact store types
func (f *Factory) GetSupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for storageType := range f.creators {
		types = append(types, storageType)
	}
	sort.Strings(types)

	return types
}

// RegisterStorage registers a new artifact store type
func (f *Factory) RegisterStorage(storageType string, createFunc ArtifactCreateFunc) error {
	if storageType == "" {
		return errors.NewValidationError("INVALID_TYPE", "Storage type cannot be empty")
	}

	if createFunc == nil {
		return errors.NewValidationError("INVALID_CREATOR", "Storage create function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[storageType] = createFunc

	f.logger.WithFields(logrus.Fields{
		"storage_type": storageType,
	}).Debug("Registered storage type")

	return nil
}

// IsSupported checks if a storage type is supported
func (f *Factory) IsSupported(storageType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, exists := f.creators[storageType]
	return exists
}

func (f *Factory) registerDefaults() {
	f.RegisterStorage(constants.StorageTypeFile, func(config *Config, logger *logrus.Logger) (interfaces.ArtifactStore, error) {
		fileConfig := config.File
		if fileConfig.BasePath == "" {
			fileConfig.BasePath = constants.DefaultOutputDirectory
		}
		return file.NewFileStorage(&fileConfig, logger)
	})

	f.RegisterStorage(constants.StorageTypeS3, func(config *Config, logger *logrus.Logger) (interfaces.ArtifactStore, error) {
		s3Config := config.S3
		return s3.NewS3Storage(&s3Config, logger)
	})
}
