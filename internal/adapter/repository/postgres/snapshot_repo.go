package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"

	"github.com/patrimo/valuation-backend/internal/domain"
)

// snapshotRepository implements domain.SnapshotRepository
type snapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *DB) domain.SnapshotRepository {
	return &snapshotRepository{db: db}
}

// Create persists the Processing shell before any fetch begins.
func (r *snapshotRepository) Create(ctx context.Context, snapshot *domain.Snapshot) error {
	query := `
		INSERT INTO snapshots (id, user_account_id, status, currency, start_time)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.ID,
		snapshot.UserAccountID,
		string(snapshot.Status),
		snapshot.Currency,
		snapshot.StartTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// AttachRates persists the resolved Xccy rates. Identity pairs never reach
// this table.
func (r *snapshotRepository) AttachRates(ctx context.Context, snapshotID uuid.UUID, rates domain.RateSet) error {
	query := `
		INSERT INTO snapshot_rates (snapshot_id, domestic_currency, foreign_currency, rate)
		VALUES ($1, $2, $3, $4)
	`

	for _, rate := range rates.Rates() {
		_, err := r.db.ExecContext(ctx, query,
			snapshotID,
			rate.Domestic,
			rate.Foreign,
			rate.Rate.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot rate: %w", err)
		}
	}

	return nil
}

// Complete persists the full entry tree and the Success transition in one
// database transaction.
func (r *snapshotRepository) Complete(ctx context.Context, snapshot *domain.Snapshot) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	insertEntryQuery := `
		INSERT INTO snapshot_entries (snapshot_id, linked_account_id, success, failure_message, failure_classification, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	insertLineErrorQuery := `
		INSERT INTO snapshot_line_errors (entry_id, line_item, message, position)
		VALUES ($1, $2, $3, $4)
	`
	insertSubAccountQuery := `
		INSERT INTO snapshot_sub_accounts (entry_id, sub_account_id, currency, description, type, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	insertItemQuery := `
		INSERT INTO snapshot_items (sub_account_row_id, kind, name, subtype, asset_class, units, value, snapshot_value, raw, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for entryPos, entry := range snapshot.Entries {
		var failureMessage, failureClassification sql.NullString
		if entry.Failure != nil {
			failureMessage = sql.NullString{String: entry.Failure.Message, Valid: true}
			failureClassification = sql.NullString{String: entry.Failure.Classification, Valid: true}
		}

		var entryID int64
		err = dbTx.QueryRowContext(ctx, insertEntryQuery,
			snapshot.ID,
			entry.LinkedAccountID,
			entry.Success,
			failureMessage,
			failureClassification,
			entryPos,
		).Scan(&entryID)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot entry: %w", err)
		}

		for errPos, lineErr := range entry.LineErrors {
			_, err = dbTx.ExecContext(ctx, insertLineErrorQuery,
				entryID,
				string(lineErr.LineItem),
				lineErr.Message,
				errPos,
			)
			if err != nil {
				return fmt.Errorf("failed to insert line error: %w", err)
			}
		}

		for subPos, sub := range entry.SubAccounts {
			var subRowID int64
			err = dbTx.QueryRowContext(ctx, insertSubAccountQuery,
				entryID,
				sub.SubAccount.ID,
				sub.SubAccount.Currency,
				sub.SubAccount.Description,
				string(sub.SubAccount.Type),
				subPos,
			).Scan(&subRowID)
			if err != nil {
				return fmt.Errorf("failed to insert sub-account: %w", err)
			}

			for itemPos, item := range sub.Items {
				var units sql.NullString
				if item.Units != nil {
					units = sql.NullString{String: item.Units.String(), Valid: true}
				}
				raw := pqtype.NullRawMessage{RawMessage: item.Raw, Valid: len(item.Raw) > 0}

				_, err = dbTx.ExecContext(ctx, insertItemQuery,
					subRowID,
					string(item.Kind),
					item.Name,
					item.Subtype,
					item.AssetClass,
					units,
					item.Value.String(),
					item.SnapshotValue.String(),
					raw,
					itemPos,
				)
				if err != nil {
					return fmt.Errorf("failed to insert item: %w", err)
				}
			}
		}
	}

	// The status transition is conditional so a terminal snapshot is never
	// overwritten.
	updateQuery := `
		UPDATE snapshots
		SET status = $1, end_time = $2
		WHERE id = $3 AND status = $4
	`
	result, err := dbTx.ExecContext(ctx, updateQuery,
		string(domain.SnapshotStatusSuccess),
		snapshot.EndTime,
		snapshot.ID,
		string(domain.SnapshotStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to update snapshot status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrSnapshotFinished
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// MarkFailed moves a still-Processing snapshot to Failed.
func (r *snapshotRepository) MarkFailed(ctx context.Context, snapshotID uuid.UUID, at time.Time) error {
	query := `
		UPDATE snapshots
		SET status = $1, end_time = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query,
		string(domain.SnapshotStatusFailed),
		at,
		snapshotID,
		string(domain.SnapshotStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to mark snapshot failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrSnapshotFinished
	}

	return nil
}

// PriorSuccessful retrieves fully-loaded successful snapshots ordered most
// recent first, ties broken by id descending.
func (r *snapshotRepository) PriorSuccessful(ctx context.Context, userAccountID int64, before time.Time, limit int) ([]*domain.Snapshot, error) {
	query := `
		SELECT id, user_account_id, status, currency, start_time, end_time
		FROM snapshots
		WHERE user_account_id = $1 AND status = $2 AND end_time < $3
		ORDER BY end_time DESC, id DESC
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query,
		userAccountID,
		string(domain.SnapshotStatusSuccess),
		before,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list prior snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*domain.Snapshot
	for rows.Next() {
		var snap domain.Snapshot
		var status string
		var endTime sql.NullTime
		if err := rows.Scan(
			&snap.ID,
			&snap.UserAccountID,
			&status,
			&snap.Currency,
			&snap.StartTime,
			&endTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.Status = domain.SnapshotStatus(status)
		if endTime.Valid {
			t := endTime.Time
			snap.EndTime = &t
		}
		snapshots = append(snapshots, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	for _, snap := range snapshots {
		if err := r.loadTree(ctx, snap); err != nil {
			return nil, err
		}
		if err := r.loadRates(ctx, snap); err != nil {
			return nil, err
		}
	}

	return snapshots, nil
}

// loadTree loads a snapshot's entries, sub-accounts and items in stored
// order.
func (r *snapshotRepository) loadTree(ctx context.Context, snap *domain.Snapshot) error {
	entryQuery := `
		SELECT id, linked_account_id, success, failure_message, failure_classification
		FROM snapshot_entries
		WHERE snapshot_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, entryQuery, snap.ID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot entries: %w", err)
	}
	defer rows.Close()

	entryIndex := make(map[int64]int)
	for rows.Next() {
		var entryID int64
		var entry domain.LinkedAccountSnapshotEntry
		var failureMessage, failureClassification sql.NullString
		if err := rows.Scan(
			&entryID,
			&entry.LinkedAccountID,
			&entry.Success,
			&failureMessage,
			&failureClassification,
		); err != nil {
			return fmt.Errorf("failed to scan snapshot entry: %w", err)
		}
		if failureMessage.Valid {
			entry.Failure = &domain.FailureDetail{
				Message:        failureMessage.String,
				Classification: failureClassification.String,
			}
		}
		snap.Entries = append(snap.Entries, entry)
		entryIndex[entryID] = len(snap.Entries) - 1
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate snapshot entries: %w", err)
	}

	subQuery := `
		SELECT sa.id, sa.entry_id, sa.sub_account_id, sa.currency, sa.description, sa.type
		FROM snapshot_sub_accounts sa
		JOIN snapshot_entries e ON sa.entry_id = e.id
		WHERE e.snapshot_id = $1
		ORDER BY e.position, sa.position
	`

	subRows, err := r.db.QueryContext(ctx, subQuery, snap.ID)
	if err != nil {
		return fmt.Errorf("failed to load sub-accounts: %w", err)
	}
	defer subRows.Close()

	// sub-account row id → (entry index, sub-account index)
	type subRef struct{ entry, sub int }
	subIndex := make(map[int64]subRef)
	for subRows.Next() {
		var rowID, entryID int64
		var sub domain.SubAccount
		var subType string
		if err := subRows.Scan(&rowID, &entryID, &sub.ID, &sub.Currency, &sub.Description, &subType); err != nil {
			return fmt.Errorf("failed to scan sub-account: %w", err)
		}
		sub.Type = domain.SubAccountType(subType)

		ei := entryIndex[entryID]
		snap.Entries[ei].SubAccounts = append(snap.Entries[ei].SubAccounts, domain.SubAccountEntry{SubAccount: sub})
		subIndex[rowID] = subRef{entry: ei, sub: len(snap.Entries[ei].SubAccounts) - 1}
	}
	if err := subRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate sub-accounts: %w", err)
	}

	itemQuery := `
		SELECT i.sub_account_row_id, i.kind, i.name, i.subtype, i.asset_class, i.units, i.value, i.snapshot_value, i.raw
		FROM snapshot_items i
		JOIN snapshot_sub_accounts sa ON i.sub_account_row_id = sa.id
		JOIN snapshot_entries e ON sa.entry_id = e.id
		WHERE e.snapshot_id = $1
		ORDER BY e.position, sa.position, i.position
	`

	itemRows, err := r.db.QueryContext(ctx, itemQuery, snap.ID)
	if err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var subRowID int64
		var item domain.Item
		var kind string
		var units sql.NullString
		var valueStr, snapshotValueStr string
		var raw pqtype.NullRawMessage
		if err := itemRows.Scan(
			&subRowID,
			&kind,
			&item.Name,
			&item.Subtype,
			&item.AssetClass,
			&units,
			&valueStr,
			&snapshotValueStr,
			&raw,
		); err != nil {
			return fmt.Errorf("failed to scan item: %w", err)
		}

		item.Kind = domain.ItemKind(kind)
		if units.Valid {
			u, err := decimal.NewFromString(units.String)
			if err != nil {
				return fmt.Errorf("failed to parse units: %w", err)
			}
			item.Units = &u
		}
		value, err := decimal.NewFromString(valueStr)
		if err != nil {
			return fmt.Errorf("failed to parse value: %w", err)
		}
		item.Value = value
		snapshotValue, err := decimal.NewFromString(snapshotValueStr)
		if err != nil {
			return fmt.Errorf("failed to parse snapshot_value: %w", err)
		}
		item.SnapshotValue = snapshotValue
		if raw.Valid {
			item.Raw = json.RawMessage(raw.RawMessage)
		}

		ref := subIndex[subRowID]
		sub := &snap.Entries[ref.entry].SubAccounts[ref.sub]
		sub.Items = append(sub.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate items: %w", err)
	}

	return nil
}

// loadRates loads the snapshot's resolved rates.
func (r *snapshotRepository) loadRates(ctx context.Context, snap *domain.Snapshot) error {
	query := `
		SELECT domestic_currency, foreign_currency, rate
		FROM snapshot_rates
		WHERE snapshot_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, snap.ID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot rates: %w", err)
	}
	defer rows.Close()

	snap.Rates = domain.RateSet{}
	for rows.Next() {
		var pair domain.XccyPair
		var rateStr string
		if err := rows.Scan(&pair.Domestic, &pair.Foreign, &rateStr); err != nil {
			return fmt.Errorf("failed to scan rate: %w", err)
		}
		rate, err := decimal.NewFromString(rateStr)
		if err != nil {
			return fmt.Errorf("failed to parse rate: %w", err)
		}
		snap.Rates[pair] = rate
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate rates: %w", err)
	}

	return nil
}
