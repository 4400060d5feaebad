package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const deriveDomain = "promphub-wallet-v1"

// PrivateKeyFromSeed expands an Ed25519 seed into a wallet key.
func PrivateKeyFromSeed(seed []byte) (solana.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return solana.PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}

// AddressFromSeed returns the account address controlled by seed.
func AddressFromSeed(seed []byte) (solana.PublicKey, error) {
	k, err := PrivateKeyFromSeed(seed)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return k.PublicKey(), nil
}

// DeriveRoleSeed deterministically derives a role-specific seed from a wallet seed.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(deriveDomain))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	sum := h.Sum(nil)
	out := make([]byte, ed25519.SeedSize)
	copy(out, sum[:ed25519.SeedSize])
	return out, nil
}
