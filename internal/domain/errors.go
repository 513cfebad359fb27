package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSnapshotFinished is returned when a terminal snapshot is finished
	// again. Status transitions are monotonic.
	ErrSnapshotFinished = errors.New("snapshot already in a terminal status")

	// ErrNonTerminalStatus is returned when Finish is asked to move a
	// snapshot to a non-terminal status.
	ErrNonTerminalStatus = errors.New("finish requires a terminal status")

	// ErrNoHistory is returned by history lookups when no available entry
	// exists. A missing baseline is expected, not a failure.
	ErrNoHistory = errors.New("no available history entry")

	// ErrLinkedAccountNotFound is returned when a linked account id does not
	// resolve to a stored row.
	ErrLinkedAccountNotFound = errors.New("linked account not found")

	// ErrUnknownProvider is returned by the provider registry for an
	// unregistered provider id.
	ErrUnknownProvider = errors.New("unknown provider")
)

// MissingRatesError is the fatal configuration error raised when FX
// resolution leaves any requested pair uncovered. It lists every missing
// pair, not just the first.
type MissingRatesError struct {
	Pairs []XccyPair
}

func (e *MissingRatesError) Error() string {
	names := make([]string, len(e.Pairs))
	for i, p := range e.Pairs {
		names[i] = p.String()
	}
	return "unresolved exchange rates: " + strings.Join(names, ", ")
}

// ProtocolViolationError marks a defect in the traversal protocol, such as an
// item referencing a sub-account no balance entry created, or an unknown item
// variant. It is fatal and never converted into per-account failure data.
type ProtocolViolationError struct {
	LinkedAccountID int64
	SubAccountID    string
	Reason          string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("traversal protocol violation (linked account %d, sub-account %q): %s",
		e.LinkedAccountID, e.SubAccountID, e.Reason)
}

// ProviderError is a structured error returned by provider adapters. The
// fetcher converts it into FailureDetail; it never crosses account
// boundaries.
type ProviderError struct {
	Message        string
	Classification string
}

func (e *ProviderError) Error() string {
	if e.Classification != "" {
		return e.Classification + ": " + e.Message
	}
	return e.Message
}
