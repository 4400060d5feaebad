package ledger

import "errors"

var (
	ErrAccountNotFound     = errors.New("ledger: account not found")
	ErrAccountExists       = errors.New("ledger: account already exists")
	ErrAccessViolation     = errors.New("ledger: address not in access list")
	ErrReadOnly            = errors.New("ledger: address is read-only in this transaction")
	ErrMissingSignature    = errors.New("ledger: missing required signature")
	ErrInsufficientFunds   = errors.New("ledger: insufficient lamports")
	ErrInsufficientBalance = errors.New("ledger: insufficient token balance")
	ErrMintMismatch        = errors.New("ledger: token account mint mismatch")
	ErrOwnerMismatch       = errors.New("ledger: token account owner mismatch")
	ErrAuthorityMismatch   = errors.New("ledger: mint authority mismatch")
	ErrWrongOwner          = errors.New("ledger: record owned by another program")
	ErrNotAssociated       = errors.New("ledger: not the associated token address")
	ErrNotMetadataAddress  = errors.New("ledger: not the token metadata address")
	ErrInvalidMetadata     = errors.New("ledger: invalid token metadata")
	ErrOverflow            = errors.New("ledger: amount overflow")
	ErrConflict            = errors.New("ledger: address modified by a concurrent commit")
	ErrTxDone              = errors.New("ledger: transaction already committed or discarded")
	ErrNotEmpty            = errors.New("ledger: restore target is not empty")
)
