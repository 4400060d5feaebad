package keys

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

// WriteKeypairFile writes key in the solana-keygen JSON format: an array of
// the 64 private key bytes.
func WriteKeypairFile(path string, key solana.PrivateKey) error {
	if len(key) != 64 {
		return fmt.Errorf("private key must be 64 bytes, got %d", len(key))
	}
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ReadKeypairFile reads a solana-keygen JSON key file.
func ReadKeypairFile(path string) (solana.PrivateKey, error) {
	return solana.PrivateKeyFromSolanaKeygenFile(path)
}

// ImportKeypair stores the seed half of a solana-keygen key file as wallet name.
func (ks *KeyStore) ImportKeypair(name, path string, overwrite bool) (solana.PublicKey, string, error) {
	key, err := ReadKeypairFile(path)
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	if len(key) != 64 {
		return solana.PublicKey{}, "", fmt.Errorf("%s: private key must be 64 bytes", path)
	}
	return ks.InitializeRootKey(name, []byte(key[:32]), overwrite)
}
