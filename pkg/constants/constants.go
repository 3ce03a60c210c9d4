package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "anonkl"
	AppDescription = "k-anonymity and l-diversity anonymizer for health records"
	AppVersion     = "0.1.0"

	// API constants
	APIVersion = "v1"
	APIPrefix  = "/api/v1"

	// Default configuration values
	DefaultPort            = 8080
	DefaultMetricsPort     = 9090
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxRequestBytes = 32 << 20

	// Storage defaults
	DefaultStorageTimeout    = 30 * time.Second
	DefaultMaxConnections    = 10
	DefaultConnectionTimeout = 10 * time.Second
	DefaultOutputDirectory   = "."

	// Input defaults
	DefaultSeparator = ';'
	DefaultDuplicate = 1
)

// Anonymization constants
const (
	// SuppressedValue replaces direct identifiers and fully generalized
	// quasi-identifiers.
	SuppressedValue = "*"

	// NoInformation is the generalized race/color category.
	NoInformation = "Sem informação"

	LocationDepth  = 3
	BirthDateDepth = 3
	RaceColorDepth = 1

	DefaultK = 2
	DefaultL = 1
)

// KnownRaceColors is the closed set of race/color categories kept at level 0.
var KnownRaceColors = []string{"PARDA", "BRANCA", "PRETA", "AMARELA", "INDÍGENA"}

// Environment variables
const (
	EnvPrefix   = "ANONKL"
	EnvLogLevel = "ANONKL_LOG_LEVEL"
	EnvConfig   = "ANONKL_CONFIG"
)

// Export formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatPNG  = "png"
)

// Storage types
const (
	StorageTypeFile     = "file"
	StorageTypeS3       = "s3"
	StorageTypePostgres = "postgres"
)

// Run statuses
const (
	StatusSuccess    = "success"
	StatusFailure    = "failure"
	StatusSuppressed = "suppressed"
	StatusEmpty      = "empty"
)

// HTTP headers and content types
const (
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
	HeaderRunID       = "X-Anonkl-Run-Id"
	HeaderRunStatus   = "X-Anonkl-Status"
	HeaderPrecision   = "X-Anonkl-Precision"

	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv; charset=utf-8"
)
