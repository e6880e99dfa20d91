package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrInvalidTableName is returned when a table name contains invalid characters
	ErrInvalidTableName = errors.New("table name must contain only lowercase letters, numbers, and underscores, and start with a letter")

	// validTableNamePattern validates PostgreSQL-safe identifiers
	validTableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

var (
	createLeasesTableSQL = `
CREATE TABLE IF NOT EXISTS %s_election_leases (
    election_name   VARCHAR       NOT NULL,
    participant_id  VARCHAR       NOT NULL,
    acquired_at     TIMESTAMPTZ   NOT NULL,
    expires_at      TIMESTAMPTZ   NOT NULL,
    metadata        JSONB         NOT NULL DEFAULT '{}'::jsonb,

    PRIMARY KEY (election_name)
);`

	createExpiresIndexSQL = `
CREATE INDEX IF NOT EXISTS %s
ON %s_election_leases (expires_at);`
)

// maxTableNameLength leaves room for the "_election_leases_expires_idx" suffix within
// PostgreSQL's 63 byte identifier limit.
const maxTableNameLength = 34

// ValidateTableName checks if the table name prefix is valid for use as a PostgreSQL identifier.
func ValidateTableName(tableName string) error {
	if tableName == "" {
		return errors.New("table name cannot be empty")
	}

	if len(tableName) > maxTableNameLength {
		return fmt.Errorf("table name must be %d characters or less", maxTableNameLength)
	}

	if !validTableNamePattern.MatchString(tableName) {
		return ErrInvalidTableName
	}

	return nil
}

// Migrate creates the election leases table with its indexes.
func Migrate(ctx context.Context, db *sql.DB, tableName string) error {
	if err := ValidateTableName(tableName); err != nil {
		return err
	}

	if err := createLeasesTable(ctx, db, tableName); err != nil {
		return err
	}

	if err := createExpiresIndex(ctx, db, tableName); err != nil {
		return err
	}

	return nil
}

func createLeasesTable(ctx context.Context, db *sql.DB, tableName string) error {
	var query = fmt.Sprintf(createLeasesTableSQL, tableName)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create election leases table: %w", err)
	}
	return nil
}

func createExpiresIndex(ctx context.Context, db *sql.DB, tableName string) error {
	var (
		indexName = fmt.Sprintf("%s_election_leases_expires_idx", tableName)
		query     = fmt.Sprintf(createExpiresIndexSQL, indexName, tableName)
	)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create election leases index: %w", err)
	}
	return nil
}
