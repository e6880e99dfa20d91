package election

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-coordination/database"
)

// PostgresStore persists leases in a "<table>_election_leases" table, one row per election.
// Acquisition is a single guarded upsert.
type PostgresStore struct {
	db      *sql.DB
	queries *database.Queries
	table   string
	opts    storeOptions
}

var _ LeaseStore = (*PostgresStore)(nil)

// NewPostgresStore creates a store over db. Call Migrate before first use.
func NewPostgresStore(db *sql.DB, tableName string, opts ...StoreOption) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if err := database.ValidateTableName(tableName); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	var o = defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &PostgresStore{
		db:      db,
		queries: database.NewQueries(db, tableName),
		table:   tableName,
		opts:    o,
	}, nil
}

// Migrate creates the lease table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := database.Migrate(ctx, s.db, s.table); err != nil {
		return fmt.Errorf("failed to migrate lease table: %w", err)
	}
	return nil
}

func (s *PostgresStore) TryAcquireLease(ctx context.Context, election, participant string, duration time.Duration, metadata map[string]string) (*LeaderInfo, error) {
	if err := validateLeaseArgs(election, participant, duration); err != nil {
		return nil, err
	}

	var now = s.opts.clock.Now()
	var record, err = s.queries.TryAcquireLease(ctx, &database.LeaseRecord{
		ElectionName:  election,
		ParticipantID: participant,
		AcquiredAt:    now,
		ExpiresAt:     now.Add(duration),
		Metadata:      metadata,
	})
	if err != nil {
		return nil, err
	}

	return fromRecord(record), nil
}

func (s *PostgresStore) TryRenewLease(ctx context.Context, election, participant string, duration time.Duration, metadata map[string]string) (*LeaderInfo, error) {
	if err := validateLeaseArgs(election, participant, duration); err != nil {
		return nil, err
	}

	var now = s.opts.clock.Now()
	var record, err = s.queries.RenewLease(ctx, election, participant, now, now.Add(duration), metadata)
	if err != nil {
		return nil, err
	}

	return fromRecord(record), nil
}

func (s *PostgresStore) ReleaseLease(ctx context.Context, election, participant string) (bool, error) {
	if err := validateElection(election); err != nil {
		return false, err
	}
	if participant == "" {
		return false, ErrInvalidParticipant
	}

	return s.queries.ReleaseLease(ctx, election, participant)
}

func (s *PostgresStore) GetCurrentLease(ctx context.Context, election string) (*LeaderInfo, error) {
	if err := validateElection(election); err != nil {
		return nil, err
	}

	var record, err = s.queries.GetLease(ctx, election, s.opts.clock.Now())
	if err != nil {
		return nil, err
	}

	return fromRecord(record), nil
}

func (s *PostgresStore) HasValidLease(ctx context.Context, election string) (bool, error) {
	var lease, err = s.GetCurrentLease(ctx, election)
	if err != nil {
		return false, err
	}
	return lease != nil, nil
}

// ListLeases returns the live lease of every election in the table, keyed by election name.
func (s *PostgresStore) ListLeases(ctx context.Context) (map[string]LeaderInfo, error) {
	var records, err = s.queries.ListLeases(ctx, s.opts.clock.Now())
	if err != nil {
		return nil, err
	}

	var leases = make(map[string]LeaderInfo, len(records))
	for _, record := range records {
		leases[record.ElectionName] = *fromRecord(record)
	}

	return leases, nil
}

// PurgeExpired deletes expired lease rows and returns how many were removed.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.queries.PurgeExpired(ctx, s.opts.clock.Now())
}

func fromRecord(record *database.LeaseRecord) *LeaderInfo {
	if record == nil {
		return nil
	}
	var lease = NewLeaderInfo(record.ParticipantID, record.AcquiredAt, record.ExpiresAt, record.Metadata)
	return &lease
}
