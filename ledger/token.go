package ledger

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
	"promphub.io/market/safemath"
)

func (tx *Tx) putValue(k []byte, v any) error {
	b, err := codec.Marshal(v)
	if err != nil {
		return err
	}
	tx.put(k, b)
	return nil
}

// Mint returns the mint at addr.
func (tx *Tx) Mint(addr solana.PublicKey) (*Mint, error) {
	if err := tx.checkRead(addr); err != nil {
		return nil, err
	}
	b, err := tx.get(key(prefixMint, addr))
	if err != nil {
		return nil, err
	}
	return decodeValue[Mint](b)
}

// CreateMint initializes a fresh mint. The mint address must sign, which
// proves the caller holds a new unique identity. A zero freeze authority
// leaves the mint without one.
func (tx *Tx) CreateMint(addr, authority, freezeAuthority solana.PublicKey, decimals uint8) error {
	if err := tx.checkWrite(addr); err != nil {
		return err
	}
	if !tx.IsSigner(addr) {
		return accessErr(ErrMissingSignature, addr)
	}
	if _, err := tx.get(key(prefixMint, addr)); err == nil {
		return accessErr(ErrAccountExists, addr)
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	return tx.putValue(key(prefixMint, addr), Mint{Authority: authority, FreezeAuthority: freezeAuthority, Decimals: decimals})
}

// MintTo issues amount new units of mint into dest. The mint authority
// must sign.
func (tx *Tx) MintTo(mint, dest, authority solana.PublicKey, amount uint64) error {
	if err := tx.checkWrite(mint); err != nil {
		return err
	}
	if err := tx.checkWrite(dest); err != nil {
		return err
	}
	if !tx.IsSigner(authority) {
		return accessErr(ErrMissingSignature, authority)
	}
	m, err := tx.Mint(mint)
	if err != nil {
		return err
	}
	if !m.Authority.Equals(authority) {
		return accessErr(ErrAuthorityMismatch, mint)
	}
	acct, err := tx.TokenAccount(dest)
	if err != nil {
		return err
	}
	if !acct.Mint.Equals(mint) {
		return accessErr(ErrMintMismatch, dest)
	}
	if m.Supply, err = safemath.Add(m.Supply, amount); err != nil {
		return ErrOverflow
	}
	if acct.Amount, err = safemath.Add(acct.Amount, amount); err != nil {
		return ErrOverflow
	}
	if err := tx.putValue(key(prefixMint, mint), *m); err != nil {
		return err
	}
	return tx.putValue(key(prefixToken, dest), *acct)
}

// TokenAccount returns the token account at addr.
func (tx *Tx) TokenAccount(addr solana.PublicKey) (*TokenAccount, error) {
	if err := tx.checkRead(addr); err != nil {
		return nil, err
	}
	b, err := tx.get(key(prefixToken, addr))
	if err != nil {
		return nil, err
	}
	return decodeValue[TokenAccount](b)
}

// CreateTokenAccount opens the associated token account of owner for mint.
// addr must be that associated address; owner may be a derived address.
func (tx *Tx) CreateTokenAccount(addr, mint, owner solana.PublicKey) error {
	if err := tx.checkWrite(addr); err != nil {
		return err
	}
	if _, err := tx.Mint(mint); err != nil {
		return err
	}
	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return err
	}
	if !want.Equals(addr) {
		return accessErr(ErrNotAssociated, addr)
	}
	if _, err := tx.get(key(prefixToken, addr)); err == nil {
		return accessErr(ErrAccountExists, addr)
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	return tx.putValue(key(prefixToken, addr), TokenAccount{Mint: mint, Owner: owner})
}

// TransferTokens moves amount units between two accounts of the same mint.
// authority must own from and must have signed, directly or through
// SignAsProgram.
func (tx *Tx) TransferTokens(from, to, authority solana.PublicKey, amount uint64) error {
	if err := tx.checkWrite(from); err != nil {
		return err
	}
	if err := tx.checkWrite(to); err != nil {
		return err
	}
	if !tx.IsSigner(authority) {
		return accessErr(ErrMissingSignature, authority)
	}
	src, err := tx.TokenAccount(from)
	if err != nil {
		return err
	}
	dst, err := tx.TokenAccount(to)
	if err != nil {
		return err
	}
	if !src.Owner.Equals(authority) {
		return accessErr(ErrOwnerMismatch, from)
	}
	if !src.Mint.Equals(dst.Mint) {
		return accessErr(ErrMintMismatch, to)
	}
	if src.Amount < amount {
		return ErrInsufficientBalance
	}
	if from.Equals(to) || amount == 0 {
		return nil
	}
	src.Amount -= amount
	if dst.Amount, err = safemath.Add(dst.Amount, amount); err != nil {
		return ErrOverflow
	}
	if err := tx.putValue(key(prefixToken, from), *src); err != nil {
		return err
	}
	return tx.putValue(key(prefixToken, to), *dst)
}
