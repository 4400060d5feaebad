package market

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind or Code rather than matching error strings.
// Use errors.As to extract *Error, or errors.Is against the Err* sentinels.
type Kind string

const (
	KindPrecondition  Kind = "Precondition"
	KindArithmetic    Kind = "Arithmetic"
	KindConfiguration Kind = "Configuration"
	KindConflict      Kind = "Conflict"
	KindDecode        Kind = "Decode"
	KindInternal      Kind = "Internal"
)

// Code is the stable numeric identifier reported to clients.
//
// Program codes start at 6000 and keep the order of the deployed program, so
// existing clients decode them unchanged. Account-validation codes reuse the
// framework ranges (100, 2000, 3000); host codes are below 100.
type Code uint32

const (
	CodeInvalidFee Code = 6000 + iota
	CodeInvalidRoyalty
	CodeInvalidURI
	CodeInvalidPrice
	CodeNotActive
	CodeInsufficientFunds
	CodeUnauthorized
	CodeArithmeticOverflow
	CodeInsufficientBalance
	CodeSelfPurchase
	CodeFeeOverflow
	CodeAlreadyInitialized
	CodeMintAlreadyInitialized
	CodeListingActive
)

const (
	CodeInstructionNotFound          Code = 101
	CodeInstructionDidNotDeserialize Code = 102

	CodeConstraintMut    Code = 2000
	CodeConstraintHasOne Code = 2001
	CodeConstraintSigner Code = 2002
	CodeConstraintSeeds  Code = 2006
	CodeConstraintOwner  Code = 2004
	CodeConstraintMint   Code = 2014

	CodeAccountDiscriminatorMismatch Code = 3002
	CodeAccountDidNotDeserialize     Code = 3003
	CodeNotEnoughAccounts            Code = 3005
	CodeAccountOwnedByWrongProgram   Code = 3007
	CodeInvalidProgramID             Code = 3008
	CodeAccountNotInitialized        Code = 3012
)

const (
	CodeInvalidSignature Code = 1 + iota
	CodeMalformedTransaction
	CodeStaleTransaction
	CodeDuplicateTransaction
	CodeAccessViolation
	CodeInvalidProgram
	CodeBumpExhausted
	CodeInsufficientFundsForFee
	CodeFaucetDisabled
	CodeWriteConflict
	CodeInternal
)

type codeInfo struct {
	name string
	kind Kind
	msg  string
}

var codes = map[Code]codeInfo{
	CodeInvalidFee:             {"InvalidFee", KindPrecondition, "invalid platform fee"},
	CodeInvalidRoyalty:         {"InvalidRoyalty", KindPrecondition, "invalid royalty percentage"},
	CodeInvalidURI:             {"InvalidUri", KindPrecondition, "invalid metadata uri"},
	CodeInvalidPrice:           {"InvalidPrice", KindPrecondition, "invalid price"},
	CodeNotActive:              {"NotActive", KindPrecondition, "prompt not for sale"},
	CodeInsufficientFunds:      {"InsufficientFunds", KindPrecondition, "insufficient funds"},
	CodeUnauthorized:           {"Unauthorized", KindPrecondition, "unauthorized"},
	CodeArithmeticOverflow:     {"ArithmeticOverflow", KindArithmetic, "arithmetic overflow"},
	CodeInsufficientBalance:    {"InsufficientBalance", KindPrecondition, "insufficient token balance"},
	CodeSelfPurchase:           {"SelfPurchase", KindPrecondition, "buyer is the seller"},
	CodeFeeOverflow:            {"FeeOverflow", KindArithmetic, "platform fee and royalty exceed the price"},
	CodeAlreadyInitialized:     {"AlreadyInitialized", KindConfiguration, "config already initialized"},
	CodeMintAlreadyInitialized: {"MintAlreadyInitialized", KindConfiguration, "mint already initialized"},
	CodeListingActive:          {"ListingActive", KindPrecondition, "listing is already active"},

	CodeInstructionNotFound:          {"InstructionFallbackNotFound", KindDecode, "unknown instruction"},
	CodeInstructionDidNotDeserialize: {"InstructionDidNotDeserialize", KindDecode, "instruction data did not deserialize"},

	CodeConstraintMut:    {"ConstraintMut", KindPrecondition, "account must be writable"},
	CodeConstraintHasOne: {"ConstraintHasOne", KindPrecondition, "account does not match record"},
	CodeConstraintSigner: {"ConstraintSigner", KindPrecondition, "account must sign"},
	CodeConstraintSeeds:  {"ConstraintSeeds", KindPrecondition, "account is not the derived address"},
	CodeConstraintOwner:  {"ConstraintOwner", KindPrecondition, "token account has the wrong owner"},
	CodeConstraintMint:   {"ConstraintMint", KindPrecondition, "token account has the wrong mint"},

	CodeAccountDiscriminatorMismatch: {"AccountDiscriminatorMismatch", KindDecode, "account discriminator mismatch"},
	CodeAccountDidNotDeserialize:     {"AccountDidNotDeserialize", KindDecode, "account did not deserialize"},
	CodeNotEnoughAccounts:            {"AccountNotEnoughKeys", KindPrecondition, "not enough account keys"},
	CodeAccountOwnedByWrongProgram:   {"AccountOwnedByWrongProgram", KindPrecondition, "account owned by another program"},
	CodeInvalidProgramID:             {"InvalidProgramId", KindPrecondition, "unexpected program account"},
	CodeAccountNotInitialized:        {"AccountNotInitialized", KindPrecondition, "account not initialized"},

	CodeInvalidSignature:        {"InvalidSignature", KindPrecondition, "missing or invalid signature"},
	CodeMalformedTransaction:    {"MalformedTransaction", KindDecode, "malformed transaction"},
	CodeStaleTransaction:        {"BlockhashNotFound", KindConflict, "recent hash expired or unknown"},
	CodeDuplicateTransaction:    {"AlreadyProcessed", KindConflict, "transaction already processed"},
	CodeAccessViolation:         {"AccessViolation", KindConflict, "account not in the transaction access list"},
	CodeInvalidProgram:          {"InvalidProgram", KindPrecondition, "instruction targets another program"},
	CodeBumpExhausted:           {"BumpExhausted", KindConfiguration, "no valid derived address"},
	CodeInsufficientFundsForFee: {"InsufficientFundsForFee", KindPrecondition, "fee payer cannot cover the network fee"},
	CodeFaucetDisabled:          {"FaucetDisabled", KindConfiguration, "airdrops are disabled"},
	CodeWriteConflict:           {"AccountInUse", KindConflict, "account changed by a concurrent transaction"},
	CodeInternal:                {"Internal", KindInternal, "internal error"},
}

// String returns the code's stable name.
func (c Code) String() string {
	if info, ok := codes[c]; ok {
		return info.name
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// Kind returns the category of c. Unknown codes are internal.
func (c Code) Kind() Kind {
	if info, ok := codes[c]; ok {
		return info.kind
	}
	return KindInternal
}

// Error is the structured error returned by every marketplace operation.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *Error carrying the same code, so sentinels compare by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func sentinel(c Code) *Error {
	return &Error{Kind: c.Kind(), Code: c, Message: codes[c].msg}
}

var (
	ErrInvalidFee             = sentinel(CodeInvalidFee)
	ErrInvalidRoyalty         = sentinel(CodeInvalidRoyalty)
	ErrInvalidURI             = sentinel(CodeInvalidURI)
	ErrInvalidPrice           = sentinel(CodeInvalidPrice)
	ErrNotActive              = sentinel(CodeNotActive)
	ErrInsufficientFunds      = sentinel(CodeInsufficientFunds)
	ErrUnauthorized           = sentinel(CodeUnauthorized)
	ErrArithmeticOverflow     = sentinel(CodeArithmeticOverflow)
	ErrInsufficientBalance    = sentinel(CodeInsufficientBalance)
	ErrSelfPurchase           = sentinel(CodeSelfPurchase)
	ErrFeeOverflow            = sentinel(CodeFeeOverflow)
	ErrAlreadyInitialized     = sentinel(CodeAlreadyInitialized)
	ErrMintAlreadyInitialized = sentinel(CodeMintAlreadyInitialized)
	ErrListingActive          = sentinel(CodeListingActive)
	ErrAccountNotInitialized  = sentinel(CodeAccountNotInitialized)
	ErrStaleTransaction       = sentinel(CodeStaleTransaction)
	ErrDuplicateTransaction   = sentinel(CodeDuplicateTransaction)
	ErrAccessViolation        = sentinel(CodeAccessViolation)
	ErrWriteConflict          = sentinel(CodeWriteConflict)
)

// New returns an error for code with a formatted detail message.
func New(code Code, format string, args ...any) error {
	return &Error{Kind: code.Kind(), Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap is New with a cause.
func Wrap(code Code, cause error, format string, args ...any) error {
	if cause == nil {
		return New(code, format, args...)
	}
	return &Error{Kind: code.Kind(), Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// FromCode rebuilds an error received over the wire.
func FromCode(code Code, msg string) *Error {
	return &Error{Kind: code.Kind(), Code: code, Message: msg}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// CodeOf returns the code carried by err, or CodeInternal for foreign errors
// and 0 for nil.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var e *Error
	if !errors.As(err, &e) {
		return CodeInternal
	}
	return e.Code
}
