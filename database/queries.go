package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DBTX is an interface that both sql.DB and sql.Tx implement.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries provides table-aware database operations.
type Queries struct {
	db        DBTX
	tableName string
}

// NewQueries creates a new Queries instance with the given table name.
func NewQueries(db DBTX, tableName string) *Queries {
	return &Queries{
		db:        db,
		tableName: tableName,
	}
}

var (
	// acquireLeaseSQL only writes when there is no row, the row has expired, or the row
	// already belongs to the caller. A live lease held by the caller keeps its acquired_at.
	acquireLeaseSQL = `
INSERT INTO %[1]s_election_leases AS l (election_name, participant_id, acquired_at, expires_at, metadata)
VALUES ($1, $2, $3, $4, $5::jsonb)
ON CONFLICT (election_name)
DO UPDATE SET
    participant_id = EXCLUDED.participant_id,
    acquired_at = CASE
        WHEN l.participant_id = EXCLUDED.participant_id AND l.expires_at > EXCLUDED.acquired_at THEN l.acquired_at
        ELSE EXCLUDED.acquired_at
    END,
    expires_at = EXCLUDED.expires_at,
    metadata = EXCLUDED.metadata
WHERE l.expires_at <= EXCLUDED.acquired_at OR l.participant_id = EXCLUDED.participant_id
RETURNING election_name, participant_id, acquired_at, expires_at, metadata;`

	renewLeaseSQL = `
UPDATE %[1]s_election_leases
SET expires_at = $4,
    metadata = COALESCE($5::jsonb, metadata)
WHERE election_name = $1 AND participant_id = $2 AND expires_at > $3
RETURNING election_name, participant_id, acquired_at, expires_at, metadata;`

	releaseLeaseSQL = `
DELETE FROM %[1]s_election_leases
WHERE election_name = $1 AND participant_id = $2;`

	getLeaseSQL = `
SELECT election_name, participant_id, acquired_at, expires_at, metadata
FROM %[1]s_election_leases
WHERE election_name = $1 AND expires_at > $2;`

	listLeasesSQL = `
SELECT election_name, participant_id, acquired_at, expires_at, metadata
FROM %[1]s_election_leases
WHERE expires_at > $1
ORDER BY election_name ASC;`

	purgeExpiredSQL = `
DELETE FROM %[1]s_election_leases
WHERE expires_at <= $1;`
)

// TryAcquireLease claims the election for the participant as a single conditional upsert.
// It returns nil when another participant holds a live lease.
func (q *Queries) TryAcquireLease(ctx context.Context, lease *LeaseRecord) (*LeaseRecord, error) {
	var metadata, err = encodeMetadata(lease.Metadata)
	if err != nil {
		return nil, err
	}

	var query = fmt.Sprintf(acquireLeaseSQL, q.tableName)
	var row = q.db.QueryRowContext(ctx, query,
		lease.ElectionName, lease.ParticipantID, lease.AcquiredAt, lease.ExpiresAt, metadata,
	)

	var record, scanErr = scanLease(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("failed to acquire lease: %w", scanErr)
	}

	return record, nil
}

// RenewLease extends a live lease held by the participant. A nil metadata keeps the stored
// metadata. It returns nil when the participant does not hold a live lease.
func (q *Queries) RenewLease(ctx context.Context, electionName, participantID string, now, expiresAt time.Time, metadata map[string]string) (*LeaseRecord, error) {
	var encoded any
	if metadata != nil {
		var raw, err = encodeMetadata(metadata)
		if err != nil {
			return nil, err
		}
		encoded = raw
	}

	var query = fmt.Sprintf(renewLeaseSQL, q.tableName)
	var row = q.db.QueryRowContext(ctx, query, electionName, participantID, now, expiresAt, encoded)

	var record, err = scanLease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to renew lease: %w", err)
	}

	return record, nil
}

// ReleaseLease deletes the election's lease if the participant holds it.
func (q *Queries) ReleaseLease(ctx context.Context, electionName, participantID string) (bool, error) {
	var query = fmt.Sprintf(releaseLeaseSQL, q.tableName)
	var result, err = q.db.ExecContext(ctx, query, electionName, participantID)
	if err != nil {
		return false, fmt.Errorf("failed to release lease: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read released rows: %w", err)
	}

	return affected > 0, nil
}

// GetLease retrieves the election's live lease, or nil if none exists at now.
func (q *Queries) GetLease(ctx context.Context, electionName string, now time.Time) (*LeaseRecord, error) {
	var query = fmt.Sprintf(getLeaseSQL, q.tableName)
	var record, err = scanLease(q.db.QueryRowContext(ctx, query, electionName, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}

	return record, nil
}

// ListLeases returns all live leases ordered by election name.
func (q *Queries) ListLeases(ctx context.Context, now time.Time) ([]*LeaseRecord, error) {
	var (
		query     = fmt.Sprintf(listLeasesSQL, q.tableName)
		rows, err = q.db.QueryContext(ctx, query, now)
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}
	defer rows.Close()

	var leases []*LeaseRecord
	for rows.Next() {
		var lease, err = scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lease: %w", err)
		}
		leases = append(leases, lease)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return leases, nil
}

// PurgeExpired deletes every lease that expired at or before now.
func (q *Queries) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var query = fmt.Sprintf(purgeExpiredSQL, q.tableName)
	var result, err = q.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired leases: %w", err)
	}

	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLease(row scanner) (*LeaseRecord, error) {
	var (
		lease    LeaseRecord
		metadata []byte
	)
	if err := row.Scan(&lease.ElectionName, &lease.ParticipantID, &lease.AcquiredAt, &lease.ExpiresAt, &metadata); err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &lease.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode lease metadata: %w", err)
		}
	}

	return &lease, nil
}

// encodeMetadata renders metadata as a JSON string; lib/pq sends []byte as bytea.
func encodeMetadata(metadata map[string]string) (string, error) {
	if metadata == nil {
		return "{}", nil
	}

	var raw, err = json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode lease metadata: %w", err)
	}

	return string(raw), nil
}
