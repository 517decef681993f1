// Package ledgererr defines the error taxonomy raised by the ledger engine.
//
// Every guard failure is an *Error carrying a Kind (the broad class the caller
// reacts to) and a Code (the specific invariant). Codes are exposed as
// sentinels so callers can match with errors.Is:
//
//	if errors.Is(err, ledgererr.ErrUnbalancedEntry) { ... }
//
// Message always names the failed invariant in plain words so it can be shown
// to an operator verbatim.
package ledgererr

import (
	"errors"
	"fmt"
)

// Kind is the broad class of a ledger error.
type Kind string

const (
	KindValidation    Kind = "ValidationError"
	KindInvariant     Kind = "InvariantViolation"
	KindStateConflict Kind = "StateConflict"
	KindNotFound      Kind = "NotFound"
)

// Error is a guard failure raised inside a ledger transaction.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return e.Message + ": " + e.Detail
}

// Is matches any *Error with the same Code, so a sentinel matches its
// detailed copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// With returns a copy of e with a formatted detail appended to the message.
func (e *Error) With(format string, args ...any) *Error {
	cp := *e
	cp.Detail = fmt.Sprintf(format, args...)
	return &cp
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation errors: malformed input.
var (
	ErrUnbalancedEntry    = newError(KindValidation, "UnbalancedEntry", "Journal entry does not balance")
	ErrInvalidLineAmounts = newError(KindValidation, "InvalidLineAmounts", "Journal line must have exactly one positive side (debit or credit)")
	ErrEmptyEntry         = newError(KindValidation, "EmptyEntry", "Journal entry has no lines")
	ErrInvalidAccount     = newError(KindValidation, "InvalidAccount", "Invalid account definition")
	ErrUnknownTag         = newError(KindValidation, "UnknownTag", "Unknown account tag")
	ErrInvalidPeriod      = newError(KindValidation, "InvalidPeriod", "Period begin must be before its end")
	ErrInvalidStatement   = newError(KindValidation, "InvalidStatement", "Only read statements may be executed directly")
	ErrAccountInactive    = newError(KindValidation, "AccountInactive", "Account is inactive")
	ErrInvalidAmount      = newError(KindValidation, "InvalidAmount", "Invalid amount")
	ErrInvalidEntry       = newError(KindValidation, "InvalidEntry", "Invalid journal entry")
	ErrInvalidItem        = newError(KindValidation, "InvalidItem", "Invalid statement item")
)

// Invariant violations: the write would corrupt the books.
var (
	ErrControlAccountHasActivity = newError(KindInvariant, "ControlAccountHasActivity", "Control account already has posted entries or a non-zero balance")
	ErrControlAccountPosting     = newError(KindInvariant, "ControlAccountPosting", "Control accounts cannot receive postings")
	ErrControlAccountCycle       = newError(KindInvariant, "ControlAccountCycle", "Account hierarchy cannot contain a cycle")
	ErrPostedEntryImmutable      = newError(KindInvariant, "PostedEntryImmutable", "Posted journal entries are immutable")
	ErrImmutableTag              = newError(KindInvariant, "ImmutableTag", "Account tags cannot be updated; remove and add instead")
	ErrDuplicateUniqueTag        = newError(KindInvariant, "DuplicateUniqueTag", "Tag may only be assigned to one account")
	ErrDuplicateTag              = newError(KindInvariant, "DuplicateTag", "Account already has this tag")
	ErrDuplicateAccount          = newError(KindInvariant, "DuplicateAccount", "Account code already exists")
	ErrAccountInUse              = newError(KindInvariant, "AccountInUse", "Account is referenced by ledger records")
	ErrAccountHasChildren        = newError(KindInvariant, "AccountHasChildren", "Account is the control account of other accounts")
	ErrNotCashAccount            = newError(KindInvariant, "NotCashAccount", "Account is not tagged as a cash equivalent")
)

// State conflicts: the operation is not allowed in the current lifecycle state.
var (
	ErrDraftReconciliationExists = newError(KindStateConflict, "DraftReconciliationExists", "A draft reconciliation exists for this account")
	ErrDependentFiscalYearExists = newError(KindStateConflict, "DependentFiscalYearExists", "A later fiscal year must be reversed first")
	ErrUnpostedEntriesInPeriod   = newError(KindStateConflict, "UnpostedEntriesInPeriod", "Fiscal year has unposted journal entries")
	ErrFiscalYearNotOpen         = newError(KindStateConflict, "FiscalYearNotOpen", "Fiscal year is not open")
	ErrFiscalYearNotClosed       = newError(KindStateConflict, "FiscalYearNotClosed", "Fiscal year is not closed")
	ErrOverlappingFiscalYear     = newError(KindStateConflict, "OverlappingFiscalYear", "Fiscal year overlaps an existing fiscal year")
	ErrFiscalYearClosed          = newError(KindStateConflict, "FiscalYearClosed", "Entry time falls inside a closed fiscal year")
	ErrReconciliationCompleted   = newError(KindStateConflict, "ReconciliationCompleted", "Reconciliation is completed and read-only")
	ErrReadOnlyTransaction       = newError(KindStateConflict, "ReadOnlyTransaction", "Transaction is read-only")
	ErrTransactionDone           = newError(KindStateConflict, "TransactionDone", "Transaction has already been committed or rolled back")
)

// Not found errors: a referenced row does not exist.
var (
	ErrAccountNotFound        = newError(KindNotFound, "AccountNotFound", "Account not found")
	ErrEntryNotFound          = newError(KindNotFound, "EntryNotFound", "Journal entry not found")
	ErrLineNotFound           = newError(KindNotFound, "LineNotFound", "Journal line not found")
	ErrFiscalYearNotFound     = newError(KindNotFound, "FiscalYearNotFound", "Fiscal year not found")
	ErrReconciliationNotFound = newError(KindNotFound, "ReconciliationNotFound", "Reconciliation not found")
	ErrStatementItemNotFound  = newError(KindNotFound, "StatementItemNotFound", "Statement item not found")
	ErrCashCountNotFound      = newError(KindNotFound, "CashCountNotFound", "Cash count not found")
	ErrTaggedAccountMissing   = newError(KindNotFound, "TaggedAccountMissing", "No account carries the required tag")
)

// KindOf returns the Kind of err, or "" if err is not a ledger error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// CodeOf returns the Code of err, or "" if err is not a ledger error.
func CodeOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsNotFound reports whether err is any NotFound ledger error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
