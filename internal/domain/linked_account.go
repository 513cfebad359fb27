package domain

import (
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// LineItem identifies one category of financial data requested from a provider.
type LineItem string

const (
	LineItemBalances    LineItem = "balances"
	LineItemAssets      LineItem = "assets"
	LineItemLiabilities LineItem = "liabilities"
)

// LinkedAccount represents one external provider connection belonging to a
// user account.
type LinkedAccount struct {
	ID            int64
	UserAccountID int64
	ProviderID    string
	Name          string
	Deleted       bool
	Frozen        bool
}

// LinkedAccountRequest carries everything one provider call needs.
// Immutable once built.
type LinkedAccountRequest struct {
	LinkedAccountID int64
	ProviderID      string
	Credentials     json.RawMessage // decrypted opaque payload, resolved externally
	LineItems       []LineItem
	Currency        string // target (snapshot) currency
}

// Validate ensures the request adheres to domain rules.
func (r *LinkedAccountRequest) Validate() error {
	if r.LinkedAccountID == 0 {
		return errors.New("linked account request must reference a linked account")
	}
	if r.ProviderID == "" {
		return errors.New("linked account request must name a provider")
	}
	if r.Currency == "" {
		return errors.New("linked account request must carry a target currency")
	}
	if len(r.LineItems) == 0 {
		return errors.New("linked account request must ask for at least one line item")
	}
	return nil
}

// FailureDetail is the structured error attached to a failed provider call.
type FailureDetail struct {
	Message        string `json:"message"`
	Classification string `json:"classification,omitempty"`
}

// LineItemError is a structured error scoped to a single line item of an
// otherwise answered provider call.
type LineItemError struct {
	LineItem LineItem `json:"line_item"`
	Message  string   `json:"message"`
}

// BalanceEntry describes one sub-account surfaced by a provider. Balance
// entries are the only way a sub-account comes into existence in a snapshot.
type BalanceEntry struct {
	SubAccountID string
	Currency     string
	Description  string
	Type         SubAccountType
}

// ProviderItem is the closed variant of value-bearing provider lines.
// Exactly two cases exist: AssetEntry and LiabilityEntry. Consumers switch on
// the concrete type and must treat any other implementation as a protocol
// violation.
type ProviderItem interface {
	providerItem()
	// OwnerSubAccountID names the sub-account the item belongs to. The
	// sub-account must already have been surfaced by a balance entry.
	OwnerSubAccountID() string
	ItemName() string
}

// AssetEntry is one asset line reported by a provider, valued in the owning
// sub-account's currency.
type AssetEntry struct {
	SubAccountID string
	Name         string
	Type         string // e.g. "cash", "equity"
	AssetClass   string
	Units        *decimal.Decimal
	Value        decimal.Decimal
	Raw          json.RawMessage // provider-specific opaque data
}

func (AssetEntry) providerItem() {}

// OwnerSubAccountID implements ProviderItem.
func (a AssetEntry) OwnerSubAccountID() string { return a.SubAccountID }

// ItemName implements ProviderItem.
func (a AssetEntry) ItemName() string { return a.Name }

// LiabilityEntry is one liability line reported by a provider, valued in the
// owning sub-account's currency.
type LiabilityEntry struct {
	SubAccountID string
	Name         string
	Type         string // e.g. "mortgage", "credit_card"
	Value        decimal.Decimal
	Raw          json.RawMessage
}

func (LiabilityEntry) providerItem() {}

// OwnerSubAccountID implements ProviderItem.
func (l LiabilityEntry) OwnerSubAccountID() string { return l.SubAccountID }

// ItemName implements ProviderItem.
func (l LiabilityEntry) ItemName() string { return l.Name }

// ProviderPayload is the successful response of one provider call. Slices
// preserve provider-reported ordering.
type ProviderPayload struct {
	Balances    []BalanceEntry
	Assets      []AssetEntry
	Liabilities []LiabilityEntry
	LineErrors  []LineItemError
}

// LinkedAccountResult pairs a request with the outcome of its provider call.
// Exactly one of Payload/Failure is set.
type LinkedAccountResult struct {
	Request LinkedAccountRequest
	Payload *ProviderPayload
	Failure *FailureDetail
}

// Success reports whether the provider call produced a payload.
func (r LinkedAccountResult) Success() bool { return r.Failure == nil }

// FailedResult builds the result for a provider call that produced no data.
func FailedResult(req LinkedAccountRequest, detail FailureDetail) LinkedAccountResult {
	return LinkedAccountResult{Request: req, Failure: &detail}
}
