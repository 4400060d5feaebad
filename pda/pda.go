// Package pda derives the program-owned addresses of the marketplace.
//
// Addresses follow the host ledger's program-derived-address scheme: the
// seeds, a one-byte bump and the program id are hashed with sha256, and the
// bump is decremented from 255 until the result is not a valid ed25519
// point. The same inputs always yield the same (address, bump).
package pda

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed tags. They are part of the ledger layout and must never change.
const (
	SeedConfig  = "config"
	SeedAsset   = "prompt"
	SeedListing = "listing"
	SeedEscrow  = "escrow"
)

var (
	ErrBumpExhausted = errors.New("pda: no off-curve address for any bump")
	ErrBumpMismatch  = errors.New("pda: stored bump does not reproduce address")
)

// Derive finds the canonical program address for tag and fields.
func Derive(programID solana.PublicKey, tag string, fields ...[]byte) (solana.PublicKey, uint8, error) {
	seeds := make([][]byte, 0, len(fields)+1)
	seeds = append(seeds, []byte(tag))
	seeds = append(seeds, fields...)
	addr, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: %s: %v", ErrBumpExhausted, tag, err)
	}
	return addr, bump, nil
}

// Verify recomputes the address for a stored bump.
func Verify(programID, want solana.PublicKey, bump uint8, tag string, fields ...[]byte) error {
	got, err := solana.CreateProgramAddress(Seeds(bump, tag, fields...), programID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBumpMismatch, err)
	}
	if !got.Equals(want) {
		return ErrBumpMismatch
	}
	return nil
}

// Seeds returns the full seed list, bump included, used to sign on behalf of
// a derived address.
func Seeds(bump uint8, tag string, fields ...[]byte) [][]byte {
	seeds := make([][]byte, 0, len(fields)+2)
	seeds = append(seeds, []byte(tag))
	seeds = append(seeds, fields...)
	return append(seeds, []byte{bump})
}

func Config(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive(programID, SeedConfig)
}

func Asset(programID, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive(programID, SeedAsset, mint[:])
}

func Listing(programID, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive(programID, SeedListing, mint[:])
}

// EscrowAuthority is the derived owner of the escrow token account for mint.
func EscrowAuthority(programID, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive(programID, SeedEscrow, mint[:])
}

// TokenAccount is the associated token account holding mint for owner.
// Owners may be derived (off-curve) addresses.
func TokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: token account: %v", ErrBumpExhausted, err)
	}
	return addr, nil
}

// Metadata is the token metadata address of mint, derived under the token
// metadata program.
func Metadata(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindTokenMetadataAddress(mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: metadata: %v", ErrBumpExhausted, err)
	}
	return addr, nil
}

// MintAddresses bundles every derived address that belongs to one mint.
type MintAddresses struct {
	Mint            solana.PublicKey
	Asset           solana.PublicKey
	AssetBump       uint8
	Listing         solana.PublicKey
	ListingBump     uint8
	EscrowAuthority solana.PublicKey
	EscrowBump      uint8
	EscrowToken     solana.PublicKey
	Metadata        solana.PublicKey
}

// ForMint derives all addresses for mint.
func ForMint(programID, mint solana.PublicKey) (MintAddresses, error) {
	m := MintAddresses{Mint: mint}
	var err error
	if m.Asset, m.AssetBump, err = Asset(programID, mint); err != nil {
		return MintAddresses{}, err
	}
	if m.Listing, m.ListingBump, err = Listing(programID, mint); err != nil {
		return MintAddresses{}, err
	}
	if m.EscrowAuthority, m.EscrowBump, err = EscrowAuthority(programID, mint); err != nil {
		return MintAddresses{}, err
	}
	if m.EscrowToken, err = TokenAccount(m.EscrowAuthority, mint); err != nil {
		return MintAddresses{}, err
	}
	if m.Metadata, err = Metadata(mint); err != nil {
		return MintAddresses{}, err
	}
	return m, nil
}
