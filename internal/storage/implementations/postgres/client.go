package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/pkg/errors"
	"github.com/inferloop/anonkl/pkg/models"
)

// PostgresConfig holds configuration for the run report store
type PostgresConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	Database        string        `json:"database" mapstructure:"database"`
	Username        string        `json:"username" mapstructure:"username"`
	Password        string        `json:"password" mapstructure:"password"`
	SSLMode         string        `json:"ssl_mode" mapstructure:"ssl_mode"`
	Table           string        `json:"table" mapstructure:"table"`
	ConnectTimeout  time.Duration `json:"connect_timeout" mapstructure:"connect_timeout"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

const defaultTable = "anonymization_runs"

// PostgresStorage stores run reports in PostgreSQL.
type PostgresStorage struct {
	config *PostgresConfig
	db     *sql.DB
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

// NewPostgresStorage creates a new report store instance
func NewPostgresStorage(config *PostgresConfig, logger *logrus.Logger) (*PostgresStorage, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Postgres config cannot be nil")
	}
	if config.Host == "" || config.Database == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "Postgres host and database are required")
	}
	if config.Table == "" {
		config.Table = defaultTable
	}
	if !validIdentifier(config.Table) {
		return nil, errors.NewStorageError("INVALID_CONFIG", fmt.Sprintf("invalid table name %q", config.Table))
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &PostgresStorage{
		config: config,
		logger: logger,
	}, nil
}

// Name returns the storage type
func (ps *PostgresStorage) Name() string {
	return "postgres"
}

// Connect opens the pool, pings the server and creates the runs table.
func (ps *PostgresStorage) Connect(ctx context.Context) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.db != nil {
		return nil
	}

	db, err := sql.Open("postgres", ps.connectionString())
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to open database connection")
	}

	if ps.config.MaxConnections > 0 {
		db.SetMaxOpenConns(ps.config.MaxConnections)
	}
	if ps.config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(ps.config.MaxIdleConns)
	}
	if ps.config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(ps.config.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(ctx, ps.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, "PING_FAILED", "Failed to ping database")
	}

	if _, err := db.ExecContext(ctx, ps.schema()); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, "SCHEMA_INIT_FAILED", "Failed to initialize schema")
	}

	ps.db = db

	ps.logger.WithFields(logrus.Fields{
		"host":     ps.config.Host,
		"port":     ps.config.Port,
		"database": ps.config.Database,
		"table":    ps.config.Table,
	}).Info("Connected to PostgreSQL")

	return nil
}

// SaveRun inserts a report, replacing any earlier row with the same run id.
func (ps *PostgresStorage) SaveRun(ctx context.Context, report *models.RunReport) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.closed || ps.db == nil {
		return errors.NewStorageError("NOT_CONNECTED", "Postgres not connected")
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (run_id, k, l, status, k_satisfied, l_satisfied, level, records, classes,
		suppressed_records, malformed_values, precision, precision_defined, average_class_size,
		started_at, duration_ms, artifacts)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (run_id) DO UPDATE SET
		status = EXCLUDED.status,
		k_satisfied = EXCLUDED.k_satisfied,
		l_satisfied = EXCLUDED.l_satisfied,
		level = EXCLUDED.level,
		records = EXCLUDED.records,
		classes = EXCLUDED.classes,
		suppressed_records = EXCLUDED.suppressed_records,
		malformed_values = EXCLUDED.malformed_values,
		precision = EXCLUDED.precision,
		precision_defined = EXCLUDED.precision_defined,
		average_class_size = EXCLUDED.average_class_size,
		duration_ms = EXCLUDED.duration_ms,
		artifacts = EXCLUDED.artifacts`, pq.QuoteIdentifier(ps.config.Table))

	_, err := ps.db.ExecContext(ctx, query,
		report.RunID, report.K, report.L, report.Status, report.KSatisfied, report.LSatisfied,
		report.Level, report.Records, report.Classes, report.SuppressedRecords, report.MalformedValues,
		report.Precision, report.PrecisionDefined, report.AverageClassSize,
		report.StartedAt, report.DurationMillis, pq.Array(report.Artifacts),
	)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("Failed to save run %s", report.RunID))
	}

	ps.logger.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"status": report.Status,
	}).Debug("Run report saved")

	return nil
}

// ListRuns returns up to limit reports, most recent first.
func (ps *PostgresStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunReport, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.closed || ps.db == nil {
		return nil, errors.NewStorageError("NOT_CONNECTED", "Postgres not connected")
	}
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
	SELECT run_id, k, l, status, k_satisfied, l_satisfied, level, records, classes,
		suppressed_records, malformed_values, precision, precision_defined, average_class_size,
		started_at, duration_ms, artifacts
	FROM %s
	ORDER BY started_at DESC
	LIMIT $1`, pq.QuoteIdentifier(ps.config.Table))

	rows, err := ps.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to list runs")
	}
	defer rows.Close()

	var reports []*models.RunReport
	for rows.Next() {
		report := &models.RunReport{}
		var artifacts pq.StringArray
		if err := rows.Scan(
			&report.RunID, &report.K, &report.L, &report.Status, &report.KSatisfied, &report.LSatisfied,
			&report.Level, &report.Records, &report.Classes, &report.SuppressedRecords, &report.MalformedValues,
			&report.Precision, &report.PrecisionDefined, &report.AverageClassSize,
			&report.StartedAt, &report.DurationMillis, &artifacts,
		); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to scan run")
		}
		report.Artifacts = []string(artifacts)
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to list runs")
	}

	return reports, nil
}

// Close closes the database connection
func (ps *PostgresStorage) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil
	}
	ps.closed = true

	if ps.db != nil {
		if err := ps.db.Close(); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "Failed to close database connection")
		}
		ps.db = nil
	}

	ps.logger.Info("PostgreSQL connection closed")
	return nil
}

func (ps *PostgresStorage) connectionString() string {
	parts := []string{
		"host=" + quoteValue(ps.config.Host),
		fmt.Sprintf("port=%d", ps.config.Port),
		"dbname=" + quoteValue(ps.config.Database),
		"sslmode=" + quoteValue(ps.config.SSLMode),
	}
	if ps.config.Username != "" {
		parts = append(parts, "user="+quoteValue(ps.config.Username))
	}
	if ps.config.Password != "" {
		parts = append(parts, "password="+quoteValue(ps.config.Password))
	}
	return strings.Join(parts, " ")
}

func (ps *PostgresStorage) schema() string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		run_id VARCHAR(64) PRIMARY KEY,
		k INTEGER NOT NULL,
		l INTEGER NOT NULL,
		status VARCHAR(16) NOT NULL,
		k_satisfied BOOLEAN NOT NULL,
		l_satisfied BOOLEAN NOT NULL,
		level INTEGER NOT NULL,
		records INTEGER NOT NULL,
		classes INTEGER NOT NULL,
		suppressed_records INTEGER NOT NULL DEFAULT 0,
		malformed_values INTEGER NOT NULL DEFAULT 0,
		precision DOUBLE PRECISION NOT NULL,
		precision_defined BOOLEAN NOT NULL,
		average_class_size DOUBLE PRECISION NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL,
		artifacts TEXT[]
	)`, pq.QuoteIdentifier(ps.config.Table))
}

// quoteValue quotes a libpq keyword value when it contains spaces or quotes.
func quoteValue(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}

func validIdentifier(name string) bool {
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return name != ""
}
