package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/altinn-access/go-core/pkg/types"
)

// PostgresRepository implements the ledger on PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a ledger backed by the given database.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const changeColumns = `
	id, change_type, altinn_app_id, resource_id, resource_type,
	offered_by_party_id, covered_by_party_id, covered_by_user_id,
	performed_by_user_id, blob_storage_policy_path, blob_storage_version_id, created
`

// Insert appends a change row and returns it with the assigned id.
func (r *PostgresRepository) Insert(ctx context.Context, change *types.DelegationChange) (*types.DelegationChange, error) {
	if err := change.Validate(); err != nil {
		return nil, fmt.Errorf("invalid delegation change: %w", err)
	}

	query := `
		INSERT INTO delegation_changes (
			change_type, altinn_app_id, resource_id, resource_type,
			offered_by_party_id, covered_by_party_id, covered_by_user_id,
			performed_by_user_id, blob_storage_policy_path, blob_storage_version_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + changeColumns

	row := r.db.QueryRowContext(ctx, query,
		string(change.Type),
		nullString(change.AltinnAppID),
		nullString(change.ResourceID),
		nullString(change.ResourceType),
		change.OfferedByPartyID,
		nullInt(change.CoveredByPartyID),
		nullInt(change.CoveredByUserID),
		change.PerformedByUserID,
		change.BlobStoragePolicyPath,
		change.BlobStorageVersionID,
	)

	inserted, err := scanChange(row)
	if err != nil {
		return nil, fmt.Errorf("insert delegation change: %w", err)
	}
	return inserted, nil
}

// GetCurrent returns the latest row for one tuple, or (nil, nil).
func (r *PostgresRepository) GetCurrent(ctx context.Context, resourceKey string, offeredByPartyID, coveredByPartyID, coveredByUserID int) (*types.DelegationChange, error) {
	query := `
		SELECT ` + changeColumns + `
		FROM delegation_changes
		WHERE COALESCE(altinn_app_id, resource_id) = $1
		  AND offered_by_party_id = $2
		  AND COALESCE(covered_by_party_id, 0) = $3
		  AND COALESCE(covered_by_user_id, 0) = $4
		ORDER BY id DESC
		LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, resourceKey, offeredByPartyID, coveredByPartyID, coveredByUserID)
	change, err := scanChange(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current delegation change: %w", err)
	}
	return change, nil
}

// GetAllCurrent returns the latest row per matching tuple.
func (r *PostgresRepository) GetAllCurrent(ctx context.Context, query ChangeQuery) ([]*types.DelegationChange, error) {
	if len(query.OfferedByPartyIDs) == 0 {
		return nil, fmt.Errorf("offeredByPartyIds is required")
	}

	stmt := `
		SELECT DISTINCT ON (
			COALESCE(altinn_app_id, resource_id), offered_by_party_id,
			COALESCE(covered_by_party_id, 0), COALESCE(covered_by_user_id, 0)
		) ` + changeColumns + `
		FROM delegation_changes
		WHERE offered_by_party_id = ANY($1)
		  AND ($2::text[] IS NULL OR COALESCE(altinn_app_id, resource_id) = ANY($2))
		  AND (
			($3::int[] IS NULL AND $4::int[] IS NULL)
			OR covered_by_party_id = ANY($3)
			OR covered_by_user_id = ANY($4)
		  )
		ORDER BY
			COALESCE(altinn_app_id, resource_id), offered_by_party_id,
			COALESCE(covered_by_party_id, 0), COALESCE(covered_by_user_id, 0),
			id DESC`

	rows, err := r.db.QueryContext(ctx, stmt,
		pq.Array(query.OfferedByPartyIDs),
		nullStringArray(query.ResourceKeys),
		nullIntArray(query.CoveredByPartyIDs),
		nullIntArray(query.CoveredByUserIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("get current delegation changes: %w", err)
	}
	defer rows.Close()

	return scanChanges(rows)
}

// GetAll returns the full history for one tuple, oldest first.
func (r *PostgresRepository) GetAll(ctx context.Context, resourceKey string, offeredByPartyID, coveredByPartyID, coveredByUserID int) ([]*types.DelegationChange, error) {
	query := `
		SELECT ` + changeColumns + `
		FROM delegation_changes
		WHERE COALESCE(altinn_app_id, resource_id) = $1
		  AND offered_by_party_id = $2
		  AND COALESCE(covered_by_party_id, 0) = $3
		  AND COALESCE(covered_by_user_id, 0) = $4
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, resourceKey, offeredByPartyID, coveredByPartyID, coveredByUserID)
	if err != nil {
		return nil, fmt.Errorf("get delegation change history: %w", err)
	}
	defer rows.Close()

	return scanChanges(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChange(row rowScanner) (*types.DelegationChange, error) {
	var (
		change           types.DelegationChange
		changeType       string
		appID            sql.NullString
		resourceID       sql.NullString
		resourceType     sql.NullString
		coveredByPartyID sql.NullInt64
		coveredByUserID  sql.NullInt64
	)
	err := row.Scan(
		&change.DelegationChangeID,
		&changeType,
		&appID,
		&resourceID,
		&resourceType,
		&change.OfferedByPartyID,
		&coveredByPartyID,
		&coveredByUserID,
		&change.PerformedByUserID,
		&change.BlobStoragePolicyPath,
		&change.BlobStorageVersionID,
		&change.Created,
	)
	if err != nil {
		return nil, err
	}

	change.Type = types.DelegationChangeType(changeType)
	change.AltinnAppID = appID.String
	change.ResourceID = resourceID.String
	change.ResourceType = resourceType.String
	change.CoveredByPartyID = int(coveredByPartyID.Int64)
	change.CoveredByUserID = int(coveredByUserID.Int64)
	return &change, nil
}

func scanChanges(rows *sql.Rows) ([]*types.DelegationChange, error) {
	var result []*types.DelegationChange
	for rows.Next() {
		change, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delegation change: %w", err)
		}
		result = append(result, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delegation changes: %w", err)
	}
	return result, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int) interface{} {
	if i <= 0 {
		return nil
	}
	return i
}

func nullStringArray(values []string) interface{} {
	if len(values) == 0 {
		return nil
	}
	return pq.Array(values)
}

func nullIntArray(values []int) interface{} {
	if len(values) == 0 {
		return nil
	}
	return pq.Array(values)
}
