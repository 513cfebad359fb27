package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/patrimo/valuation-backend/internal/domain"
)

// historyRepository implements domain.HistoryRepository
type historyRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) domain.HistoryRepository {
	return &historyRepository{db: db}
}

// Create persists the entry shell and its total value with available=false.
func (r *historyRepository) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	query := `
		INSERT INTO history_entries (id, user_account_id, source_snapshot_id, effective_at, currency, available, total_value)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserAccountID,
		entry.SourceSnapshotID,
		entry.EffectiveAt,
		entry.Currency,
		entry.Total.Value.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	return nil
}

// AddRecords persists every granularity's records, changes included, in one
// database transaction. The availability gate stays closed.
func (r *historyRepository) AddRecords(ctx context.Context, entry *domain.HistoryEntry) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	updateTotalQuery := `
		UPDATE history_entries
		SET total_change_amount = $1, total_change_percent = $2,
		    one_day_change_amount = $3, one_day_change_percent = $4
		WHERE id = $5
	`
	changeAmount, changePercent := changeColumns(entry.Total.Change)
	oneDayAmount, oneDayPercent := changeColumns(entry.Total.OneDayChange)
	if _, err := dbTx.ExecContext(ctx, updateTotalQuery,
		changeAmount, changePercent, oneDayAmount, oneDayPercent, entry.ID,
	); err != nil {
		return fmt.Errorf("failed to update total record: %w", err)
	}

	insertLinkedAccountQuery := `
		INSERT INTO history_linked_account_records (entry_id, linked_account_id, value, change_amount, change_percent)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, rec := range entry.LinkedAccounts {
		amount, percent := changeColumns(rec.Change)
		if _, err := dbTx.ExecContext(ctx, insertLinkedAccountQuery,
			entry.ID, rec.LinkedAccountID, rec.Value.String(), amount, percent,
		); err != nil {
			return fmt.Errorf("failed to insert linked account record: %w", err)
		}
	}

	insertSubAccountQuery := `
		INSERT INTO history_sub_account_records (entry_id, linked_account_id, sub_account_id, value, native_value, native_currency, change_amount, change_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, rec := range entry.SubAccounts {
		amount, percent := changeColumns(rec.Change)
		if _, err := dbTx.ExecContext(ctx, insertSubAccountQuery,
			entry.ID, rec.LinkedAccountID, rec.SubAccountID,
			rec.Value.String(), rec.NativeValue.String(), rec.NativeCurrency,
			amount, percent,
		); err != nil {
			return fmt.Errorf("failed to insert sub-account record: %w", err)
		}
	}

	insertItemQuery := `
		INSERT INTO history_item_records (entry_id, linked_account_id, sub_account_id, kind, name, value, change_amount, change_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, rec := range entry.Items {
		amount, percent := changeColumns(rec.Change)
		if _, err := dbTx.ExecContext(ctx, insertItemQuery,
			entry.ID, rec.LinkedAccountID, rec.SubAccountID,
			string(rec.Kind), rec.Name, rec.Value.String(),
			amount, percent,
		); err != nil {
			return fmt.Errorf("failed to insert item record: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// MarkAvailable flips the availability gate exactly once.
func (r *historyRepository) MarkAvailable(ctx context.Context, entryID uuid.UUID) error {
	query := `
		UPDATE history_entries
		SET available = TRUE
		WHERE id = $1 AND NOT available
	`

	result, err := r.db.ExecContext(ctx, query, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark history entry available: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("history entry %s already available or missing", entryID)
	}

	return nil
}

// LatestAvailable retrieves the most recent available entry effective before
// the given time, fully loaded for keyed baseline lookups.
func (r *historyRepository) LatestAvailable(ctx context.Context, userAccountID int64, before time.Time) (*domain.HistoryEntry, error) {
	query := `
		SELECT id, user_account_id, source_snapshot_id, effective_at, currency, available,
		       total_value, total_change_amount, total_change_percent,
		       one_day_change_amount, one_day_change_percent
		FROM history_entries
		WHERE user_account_id = $1 AND available AND effective_at < $2
		ORDER BY effective_at DESC, id DESC
		LIMIT 1
	`

	var entry domain.HistoryEntry
	var totalValueStr string
	var changeAmount, changePercent, oneDayAmount, oneDayPercent sql.NullString

	err := r.db.QueryRowContext(ctx, query, userAccountID, before).Scan(
		&entry.ID,
		&entry.UserAccountID,
		&entry.SourceSnapshotID,
		&entry.EffectiveAt,
		&entry.Currency,
		&entry.Available,
		&totalValueStr,
		&changeAmount,
		&changePercent,
		&oneDayAmount,
		&oneDayPercent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoHistory
		}
		return nil, fmt.Errorf("failed to get latest history entry: %w", err)
	}

	totalValue, err := decimal.NewFromString(totalValueStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total_value: %w", err)
	}
	entry.Total.Value = totalValue
	entry.Total.Change, err = parseChange(changeAmount, changePercent)
	if err != nil {
		return nil, err
	}
	entry.Total.OneDayChange, err = parseChange(oneDayAmount, oneDayPercent)
	if err != nil {
		return nil, err
	}

	if err := r.loadRecords(ctx, &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

// loadRecords loads the per-granularity records of an entry.
func (r *historyRepository) loadRecords(ctx context.Context, entry *domain.HistoryEntry) error {
	laQuery := `
		SELECT linked_account_id, value, change_amount, change_percent
		FROM history_linked_account_records
		WHERE entry_id = $1
		ORDER BY linked_account_id
	`

	laRows, err := r.db.QueryContext(ctx, laQuery, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to load linked account records: %w", err)
	}
	defer laRows.Close()

	for laRows.Next() {
		var rec domain.LinkedAccountValuationRecord
		var valueStr string
		var amount, percent sql.NullString
		if err := laRows.Scan(&rec.LinkedAccountID, &valueStr, &amount, &percent); err != nil {
			return fmt.Errorf("failed to scan linked account record: %w", err)
		}
		if rec.Value, err = decimal.NewFromString(valueStr); err != nil {
			return fmt.Errorf("failed to parse linked account value: %w", err)
		}
		if rec.Change, err = parseChange(amount, percent); err != nil {
			return err
		}
		entry.LinkedAccounts = append(entry.LinkedAccounts, rec)
	}
	if err := laRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate linked account records: %w", err)
	}

	saQuery := `
		SELECT linked_account_id, sub_account_id, value, native_value, native_currency, change_amount, change_percent
		FROM history_sub_account_records
		WHERE entry_id = $1
		ORDER BY linked_account_id, sub_account_id
	`

	saRows, err := r.db.QueryContext(ctx, saQuery, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to load sub-account records: %w", err)
	}
	defer saRows.Close()

	for saRows.Next() {
		var rec domain.SubAccountValuationRecord
		var valueStr, nativeValueStr string
		var amount, percent sql.NullString
		if err := saRows.Scan(&rec.LinkedAccountID, &rec.SubAccountID, &valueStr, &nativeValueStr, &rec.NativeCurrency, &amount, &percent); err != nil {
			return fmt.Errorf("failed to scan sub-account record: %w", err)
		}
		if rec.Value, err = decimal.NewFromString(valueStr); err != nil {
			return fmt.Errorf("failed to parse sub-account value: %w", err)
		}
		if rec.NativeValue, err = decimal.NewFromString(nativeValueStr); err != nil {
			return fmt.Errorf("failed to parse sub-account native value: %w", err)
		}
		if rec.Change, err = parseChange(amount, percent); err != nil {
			return err
		}
		entry.SubAccounts = append(entry.SubAccounts, rec)
	}
	if err := saRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate sub-account records: %w", err)
	}

	itemQuery := `
		SELECT linked_account_id, sub_account_id, kind, name, value, change_amount, change_percent
		FROM history_item_records
		WHERE entry_id = $1
		ORDER BY linked_account_id, sub_account_id, name
	`

	itemRows, err := r.db.QueryContext(ctx, itemQuery, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to load item records: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var rec domain.ItemValuationRecord
		var kind, valueStr string
		var amount, percent sql.NullString
		if err := itemRows.Scan(&rec.LinkedAccountID, &rec.SubAccountID, &kind, &rec.Name, &valueStr, &amount, &percent); err != nil {
			return fmt.Errorf("failed to scan item record: %w", err)
		}
		rec.Kind = domain.ItemKind(kind)
		if rec.Value, err = decimal.NewFromString(valueStr); err != nil {
			return fmt.Errorf("failed to parse item value: %w", err)
		}
		if rec.Change, err = parseChange(amount, percent); err != nil {
			return err
		}
		entry.Items = append(entry.Items, rec)
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate item records: %w", err)
	}

	return nil
}

// changeColumns splits a change into its nullable column values.
func changeColumns(change *domain.ValuationChange) (amount, percent sql.NullString) {
	if change == nil {
		return sql.NullString{}, sql.NullString{}
	}
	amount = sql.NullString{String: change.Amount.String(), Valid: true}
	if change.Percent != nil {
		percent = sql.NullString{String: change.Percent.String(), Valid: true}
	}
	return amount, percent
}

// parseChange rebuilds a change from its nullable column values.
func parseChange(amount, percent sql.NullString) (*domain.ValuationChange, error) {
	if !amount.Valid {
		return nil, nil
	}
	value, err := decimal.NewFromString(amount.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse change amount: %w", err)
	}
	change := &domain.ValuationChange{Amount: value}
	if percent.Valid {
		pct, err := decimal.NewFromString(percent.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse change percent: %w", err)
		}
		change.Percent = &pct
	}
	return change, nil
}
