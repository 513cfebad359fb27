package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValuationRequest is the wire request that triggers one valuation workflow
// run. An empty LinkedAccountIDs means "all active linked accounts".
type ValuationRequest struct {
	UserAccountID    int64   `json:"user_account_id"`
	LinkedAccountIDs []int64 `json:"linked_account_ids,omitempty"`
}

// Validate ensures the request adheres to domain rules.
func (r *ValuationRequest) Validate() error {
	if r.UserAccountID <= 0 {
		return errors.New("user_account_id must be positive")
	}
	for _, id := range r.LinkedAccountIDs {
		if id <= 0 {
			return errors.New("linked_account_ids must be positive")
		}
	}
	return nil
}

// ValuationResponse is the wire response of one valuation workflow run.
type ValuationResponse struct {
	HistoryEntryID       uuid.UUID        `json:"history_entry_id"`
	UserAccountValuation decimal.Decimal  `json:"user_account_valuation"`
	ValuationCurrency    string           `json:"valuation_currency"`
	ValuationDate        time.Time        `json:"valuation_date"`
	ValuationChange      *ValuationChange `json:"valuation_change,omitempty"`
}
