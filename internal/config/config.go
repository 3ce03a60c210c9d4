package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/inferloop/anonkl/internal/export"
	"github.com/inferloop/anonkl/internal/ingest"
	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/internal/storage"
	"github.com/inferloop/anonkl/pkg/constants"
	"github.com/inferloop/anonkl/pkg/errors"
	"github.com/inferloop/anonkl/pkg/models"
)

// Config is the file/env configuration shared by the CLI and the server.
type Config struct {
	K                  int            `mapstructure:"k"`
	L                  int            `mapstructure:"l"`
	MaxLevel           map[string]int `mapstructure:"max_level"`
	SuppressViolations bool           `mapstructure:"suppress_violations"`

	Input   InputConfig    `mapstructure:"input"`
	Output  OutputConfig   `mapstructure:"output"`
	Storage storage.Config `mapstructure:"storage"`
	Log     LogConfig      `mapstructure:"log"`
	Server  ServerConfig   `mapstructure:"server"`
}

type InputConfig struct {
	Separator string `mapstructure:"separator"`
	Duplicate int    `mapstructure:"duplicate"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory"`

	// Format is csv, json or a comma-separated list of both
	Format   string `mapstructure:"format"`
	Charts   bool   `mapstructure:"charts"`
	Compress bool   `mapstructure:"compress"`
	Prefix   string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`

	// CORSOrigins enables CORS for these origins
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoadConfig reads cfgFile, or config.yaml under ~/.anonkl when empty, and
// overlays ANONKL_* environment variables. A missing default file is not an
// error.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, "."+constants.AppName))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("k", constants.DefaultK)
	v.SetDefault("l", constants.DefaultL)
	v.SetDefault("max_level.localidade", constants.LocationDepth)
	v.SetDefault("max_level.data_nascimento", constants.BirthDateDepth)
	v.SetDefault("suppress_violations", false)

	v.SetDefault("input.separator", string(constants.DefaultSeparator))
	v.SetDefault("input.duplicate", constants.DefaultDuplicate)

	v.SetDefault("output.directory", constants.DefaultOutputDirectory)
	v.SetDefault("output.format", constants.FormatCSV+","+constants.FormatJSON)
	v.SetDefault("output.charts", true)
	v.SetDefault("output.compress", false)
	v.SetDefault("output.prefix", "")

	v.SetDefault("storage.type", constants.StorageTypeFile)
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.max_retries", 3)
	v.SetDefault("storage.s3.timeout", constants.DefaultStorageTimeout)
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.database", constants.AppName)
	v.SetDefault("storage.postgres.username", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.ssl_mode", "disable")
	v.SetDefault("storage.postgres.max_connections", constants.DefaultMaxConnections)
	v.SetDefault("storage.postgres.connect_timeout", constants.DefaultConnectionTimeout)

	v.SetDefault("log.level", constants.DefaultLogLevel)
	v.SetDefault("log.format", constants.DefaultLogFormat)

	v.SetDefault("server.host", constants.DefaultHost)
	v.SetDefault("server.port", constants.DefaultPort)
	v.SetDefault("server.metrics_port", constants.DefaultMetricsPort)
	v.SetDefault("server.cors_origins", []string{})
}

// RunConfig converts the anonymization keys.
func (c *Config) RunConfig() (privacy.RunConfig, error) {
	run := privacy.RunConfig{
		K:                  c.K,
		L:                  c.L,
		SuppressViolations: c.SuppressViolations,
	}

	if len(c.MaxLevel) > 0 {
		run.MaxLevels = make(map[models.Attribute]int, len(c.MaxLevel))
		for name, level := range c.MaxLevel {
			attr := models.Attribute(name)
			if attr != models.AttributeLocation && attr != models.AttributeBirthDate {
				return run, errors.NewConfigurationError(errors.CodeInvalidInput,
					fmt.Sprintf("max_level.%s is not a quasi-identifier", name))
			}
			run.MaxLevels[attr] = level
		}
	}

	return run, nil
}

// LoadOptions converts the input keys.
func (c *Config) LoadOptions() (ingest.LoadOptions, error) {
	options := ingest.DefaultLoadOptions()

	if c.Input.Separator != "" {
		separator, err := ParseSeparator(c.Input.Separator)
		if err != nil {
			return options, err
		}
		options.Separator = separator
	}
	if c.Input.Duplicate > 0 {
		options.Duplicate = c.Input.Duplicate
	}

	return options, nil
}

// ExportConfig converts the output keys.
func (c *Config) ExportConfig() (*export.ExportConfig, error) {
	exportConfig := export.DefaultExportConfig()
	exportConfig.EnableCharts = c.Output.Charts
	exportConfig.EnableCompression = c.Output.Compress
	exportConfig.Prefix = c.Output.Prefix

	if c.Output.Format != "" {
		exportConfig.Formats = nil
		for _, format := range strings.Split(c.Output.Format, ",") {
			format = strings.ToLower(strings.TrimSpace(format))
			if format == "" {
				continue
			}
			exportConfig.Formats = append(exportConfig.Formats, export.ExportFormat(format))
		}
	}

	if c.Input.Separator != "" {
		separator, err := ParseSeparator(c.Input.Separator)
		if err != nil {
			return nil, err
		}
		exportConfig.Separator = separator
	}

	return exportConfig, nil
}

// StorageConfig returns the storage keys with output.directory applied to
// the file store.
func (c *Config) StorageConfig() *storage.Config {
	storageConfig := c.Storage
	if storageConfig.File.BasePath == "" {
		storageConfig.File.BasePath = c.Output.Directory
	}
	storageConfig.File.CreateDirs = true
	return &storageConfig
}

// ParseSeparator accepts a single character or the names "tab" and
// "semicolon".
func ParseSeparator(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "tab", `\t`:
		return '\t', nil
	case "semicolon":
		return ';', nil
	case "comma":
		return ',', nil
	}

	runes := []rune(value)
	if len(runes) != 1 {
		return 0, errors.NewConfigurationError(errors.CodeInvalidInput,
			fmt.Sprintf("separator must be a single character, got %q", value))
	}
	return runes[0], nil
}

// SaveConfig writes config as YAML to cfgFile, or to the default path when
// empty.
func SaveConfig(config *Config, cfgFile string) error {
	if cfgFile == "" {
		cfgFile = GetDefaultConfigPath()
		if err := os.MkdirAll(filepath.Dir(cfgFile), 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}

	v := viper.New()
	v.Set("k", config.K)
	v.Set("l", config.L)
	v.Set("max_level", config.MaxLevel)
	v.Set("suppress_violations", config.SuppressViolations)
	v.Set("input", map[string]interface{}{
		"separator": config.Input.Separator,
		"duplicate": config.Input.Duplicate,
	})
	v.Set("output", map[string]interface{}{
		"directory": config.Output.Directory,
		"format":    config.Output.Format,
		"charts":    config.Output.Charts,
		"compress":  config.Output.Compress,
		"prefix":    config.Output.Prefix,
	})
	v.Set("log", map[string]interface{}{
		"level":  config.Log.Level,
		"format": config.Log.Format,
	})

	return v.WriteConfigAs(cfgFile)
}

// GetDefaultConfigPath returns ~/.anonkl/config.yaml
func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+constants.AppName, "config.yaml")
}
