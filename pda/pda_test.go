package pda

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
)

var testProgram = solana.MustPublicKeyFromBase58("CBrB6yQSi9pcxKuRR1uPjj6NLipfpZKYYT71c3gaFf1Y")

func TestDeriveIsDeterministic(t *testing.T) {
	mint := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	a1, b1, err := Listing(testProgram, mint)
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	a2, b2, err := Derive(testProgram, SeedListing, mint[:])
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if !a1.Equals(a2) || b1 != b2 {
		t.Fatalf("derivation not deterministic: %s/%d vs %s/%d", a1, b1, a2, b2)
	}
	if solana.IsOnCurve(a1[:]) {
		t.Fatalf("derived address %s is on curve", a1)
	}
	if err := Verify(testProgram, a1, b1, SeedListing, mint[:]); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsWrongBump(t *testing.T) {
	addr, bump, err := Config(testProgram)
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	err = Verify(testProgram, addr, bump-1, SeedConfig)
	if !errors.Is(err, ErrBumpMismatch) {
		t.Fatalf("expected ErrBumpMismatch, got %v", err)
	}
}

func TestTagsSeparateAddresses(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	m, err := ForMint(testProgram, mint)
	if err != nil {
		t.Fatalf("ForMint: %v", err)
	}
	seen := map[solana.PublicKey]string{}
	for name, a := range map[string]solana.PublicKey{
		"asset":    m.Asset,
		"listing":  m.Listing,
		"escrow":   m.EscrowAuthority,
		"token":    m.EscrowToken,
		"metadata": m.Metadata,
	} {
		if prev, ok := seen[a]; ok {
			t.Fatalf("%s collides with %s", name, prev)
		}
		seen[a] = name
	}
	other, err := ForMint(testProgram, solana.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("ForMint: %v", err)
	}
	if other.Listing.Equals(m.Listing) {
		t.Fatalf("distinct mints share a listing address")
	}
}

func TestTokenAccountMatchesAssociatedAddress(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	got, err := TokenAccount(owner, mint)
	if err != nil {
		t.Fatalf("TokenAccount: %v", err)
	}
	want, _, err := solana.FindProgramAddress([][]byte{owner[:], solana.TokenProgramID[:], mint[:]}, solana.SPLAssociatedTokenAccountProgramID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if !got.Equals(want) {
		t.Fatalf("token account %s, want %s", got, want)
	}
}

func TestMetadataAddress(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	got, err := Metadata(mint)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	want, _, err := solana.FindProgramAddress([][]byte{[]byte("metadata"), solana.TokenMetadataProgramID[:], mint[:]}, solana.TokenMetadataProgramID)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if !got.Equals(want) {
		t.Fatalf("metadata address = %s, want %s", got, want)
	}
}
