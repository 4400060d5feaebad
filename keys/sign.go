package keys

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SignMessage signs an off-ledger message, for example to prove ownership of
// an address to a storefront.
func SignMessage(key solana.PrivateKey, message []byte) (solana.Signature, error) {
	if len(key) != 64 {
		return solana.Signature{}, fmt.Errorf("private key must be 64 bytes, got %d", len(key))
	}
	return key.Sign(message)
}

func VerifyMessage(addr solana.PublicKey, message []byte, sig solana.Signature) bool {
	return sig.Verify(addr, message)
}
