package program

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/ledger"
	"promphub.io/market/market"
	"promphub.io/market/pda"
	"promphub.io/market/txn"
)

// accounts is the positional account list of one instruction.
type accounts struct {
	tx    *ledger.Tx
	metas []txn.AccountMeta
}

func (a accounts) need(n int) error {
	if len(a.metas) < n {
		return market.New(market.CodeNotEnoughAccounts, "have %d, need %d", len(a.metas), n)
	}
	return nil
}

func (a accounts) key(i int) solana.PublicKey { return a.metas[i].PublicKey }

func (a accounts) writable(i int, name string) (solana.PublicKey, error) {
	if !a.metas[i].IsWritable {
		return solana.PublicKey{}, market.New(market.CodeConstraintMut, "%s %s", name, a.key(i))
	}
	return a.key(i), nil
}

func (a accounts) signer(i int, name string) (solana.PublicKey, error) {
	k, err := a.writable(i, name)
	if err != nil {
		return k, err
	}
	if !a.metas[i].IsSigner || !a.tx.IsSigner(k) {
		return solana.PublicKey{}, market.New(market.CodeConstraintSigner, "%s %s", name, k)
	}
	return k, nil
}

func (a accounts) program(i int, want solana.PublicKey) error {
	if !a.key(i).Equals(want) {
		return market.New(market.CodeInvalidProgramID, "account %d is %s, want %s", i, a.key(i), want)
	}
	return nil
}

// derived checks that addr is the canonical derived address for tag and
// fields and returns its bump.
func (p *Program) derived(addr solana.PublicKey, name, tag string, fields ...[]byte) (uint8, error) {
	want, bump, err := pda.Derive(p.ID, tag, fields...)
	if err != nil {
		return 0, market.Wrap(market.CodeBumpExhausted, err, "%s", name)
	}
	if !want.Equals(addr) {
		return 0, market.New(market.CodeConstraintSeeds, "%s is %s, want %s", name, addr, want)
	}
	return bump, nil
}

// record loads program-owned record data. ok is false when no record exists.
func (p *Program) record(tx *ledger.Tx, addr solana.PublicKey, name string) (data []byte, ok bool, err error) {
	r, err := tx.Record(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, hostErr(err, name)
	}
	if !r.Owner.Equals(p.ID) {
		return nil, false, market.New(market.CodeAccountOwnedByWrongProgram, "%s owned by %s", name, r.Owner)
	}
	return r.Data, true, nil
}

func (p *Program) mustRecord(tx *ledger.Tx, addr solana.PublicKey, name string) ([]byte, error) {
	data, ok, err := p.record(tx, addr, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, market.New(market.CodeAccountNotInitialized, "%s %s", name, addr)
	}
	return data, nil
}

func (p *Program) loadConfig(tx *ledger.Tx, addr solana.PublicKey) (*market.Config, error) {
	data, err := p.mustRecord(tx, addr, "config")
	if err != nil {
		return nil, err
	}
	return market.DecodeConfig(data)
}

func (p *Program) loadAsset(tx *ledger.Tx, addr solana.PublicKey) (*market.Asset, error) {
	data, err := p.mustRecord(tx, addr, "asset")
	if err != nil {
		return nil, err
	}
	return market.DecodeAsset(data)
}

func (p *Program) loadListing(tx *ledger.Tx, addr solana.PublicKey) (*market.Listing, error) {
	data, err := p.mustRecord(tx, addr, "listing")
	if err != nil {
		return nil, err
	}
	return market.DecodeListing(data)
}

// save creates or overwrites a program record.
func (p *Program) save(tx *ledger.Tx, addr solana.PublicKey, data []byte) error {
	_, exists, err := p.record(tx, addr, "record")
	if err != nil {
		return err
	}
	if exists {
		err = tx.WriteRecord(addr, p.ID, data)
	} else {
		err = tx.CreateRecord(addr, p.ID, data)
	}
	return hostErr(err, "save")
}

// tokenAccount returns the token account at addr after checking its mint
// and owner. When create is set, a missing associated account is opened.
func tokenAccount(tx *ledger.Tx, addr, mint, owner solana.PublicKey, name string, create bool) (*ledger.TokenAccount, error) {
	acct, err := tx.TokenAccount(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) && create {
		if err := tx.CreateTokenAccount(addr, mint, owner); err != nil {
			return nil, hostErr(err, name)
		}
		acct, err = tx.TokenAccount(addr)
	}
	if err != nil {
		return nil, hostErr(err, name)
	}
	if !acct.Mint.Equals(mint) {
		return nil, market.New(market.CodeConstraintMint, "%s holds %s, want %s", name, acct.Mint, mint)
	}
	if !acct.Owner.Equals(owner) {
		return nil, market.New(market.CodeConstraintOwner, "%s owned by %s, want %s", name, acct.Owner, owner)
	}
	return acct, nil
}

func hasOne(got, want solana.PublicKey, name string) error {
	if !got.Equals(want) {
		return market.New(market.CodeConstraintHasOne, "%s is %s, record has %s", name, got, want)
	}
	return nil
}

// hostErr translates ledger failures into the marketplace taxonomy.
func hostErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var me *market.Error
	if errors.As(err, &me) {
		return err
	}
	code := market.CodeInternal
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		code = market.CodeInsufficientFunds
	case errors.Is(err, ledger.ErrInsufficientBalance):
		code = market.CodeInsufficientBalance
	case errors.Is(err, ledger.ErrMissingSignature):
		code = market.CodeConstraintSigner
	case errors.Is(err, ledger.ErrReadOnly):
		code = market.CodeConstraintMut
	case errors.Is(err, ledger.ErrAccessViolation):
		code = market.CodeAccessViolation
	case errors.Is(err, ledger.ErrMintMismatch):
		code = market.CodeConstraintMint
	case errors.Is(err, ledger.ErrOwnerMismatch), errors.Is(err, ledger.ErrAuthorityMismatch):
		code = market.CodeConstraintOwner
	case errors.Is(err, ledger.ErrWrongOwner):
		code = market.CodeAccountOwnedByWrongProgram
	case errors.Is(err, ledger.ErrNotAssociated), errors.Is(err, ledger.ErrNotMetadataAddress):
		code = market.CodeConstraintSeeds
	case errors.Is(err, ledger.ErrInvalidMetadata):
		code = market.CodeInvalidURI
	case errors.Is(err, ledger.ErrAccountNotFound):
		code = market.CodeAccountNotInitialized
	case errors.Is(err, ledger.ErrOverflow):
		code = market.CodeArithmeticOverflow
	}
	return market.Wrap(code, err, "%s: %v", what, err)
}
