package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/gagliardetto/solana-go"
)

const (
	walletFile = "wallet.key"
	rolesDir   = "roles"
	keyExt     = ".key"
)

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// KeyStore is a directory of hex-encoded wallet seeds. Each wallet owns a
// subdirectory holding wallet.key and, once derived, roles/<role>.key.
type KeyStore struct {
	Directory string
}

// KeyEntry summarizes one stored wallet for listings.
type KeyEntry struct {
	Name    string
	Address solana.PublicKey
	Roles   []string
}

// GetDefaultDirectory is ~/.promphub/keys.
func GetDefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".promphub", "keys"), nil
}

// CreateKeyStore opens the store at directory, or at the default location
// when directory is empty. Nothing touches the disk until a key is written.
func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory != "" {
		return &KeyStore{Directory: directory}, nil
	}
	dir, err := GetDefaultDirectory()
	if err != nil {
		return nil, err
	}
	return &KeyStore{Directory: dir}, nil
}

func CheckKeyName(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid key name %q: use letters, digits, '-' or '_'", name)
	}
	return nil
}

func CheckRole(role string) error {
	if !identPattern.MatchString(role) {
		return fmt.Errorf("invalid role %q: use letters, digits, '-' or '_'", role)
	}
	return nil
}

// keyPath resolves the seed file of a wallet, or of one of its roles.
func (ks *KeyStore) keyPath(name, role string) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	if role == "" {
		return filepath.Join(ks.Directory, name, walletFile), nil
	}
	if err := CheckRole(role); err != nil {
		return "", err
	}
	return filepath.Join(ks.Directory, name, rolesDir, role+keyExt), nil
}

// ParseSeedHex accepts a 32-byte seed as hex, with or without 0x and
// surrounding whitespace.
func ParseSeedHex(s string) ([]byte, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if n := len(seed); n != ed25519.SeedSize {
		return nil, fmt.Errorf("seed: got %d bytes, want %d", n, ed25519.SeedSize)
	}
	return seed, nil
}

func readSeedFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(b))
}

// writeSeedFile stages the seed in a 0600 temp file next to path and then
// moves it into place, so a reader never sees a partial key. Without
// overwrite an existing key is left alone and fs.ErrExist is returned.
func writeSeedFile(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("seed: got %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".seed-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(hex.EncodeToString(seed) + "\n")
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if overwrite {
		return os.Rename(tmp.Name(), path)
	}
	return os.Link(tmp.Name(), path)
}

// InitializeRootKey stores seed as wallet name, generating a random seed
// when seed is nil.
func (ks *KeyStore) InitializeRootKey(name string, seed []byte, overwrite bool) (solana.PublicKey, string, error) {
	path, err := ks.keyPath(name, "")
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	if seed == nil {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return solana.PublicKey{}, "", err
		}
	}
	addr, err := AddressFromSeed(seed)
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	if err := writeSeedFile(path, seed, overwrite); err != nil {
		return solana.PublicKey{}, "", err
	}
	return addr, path, nil
}

// DeriveKeyFromRole writes the role key of wallet from. The same wallet and
// role always produce the same key.
func (ks *KeyStore) DeriveKeyFromRole(from, role string, overwrite bool) (solana.PublicKey, string, error) {
	if role == "" {
		return solana.PublicKey{}, "", CheckRole(role)
	}
	path, err := ks.keyPath(from, role)
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	root, err := ks.LoadSeed("", from, "", "")
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	addr, err := AddressFromSeed(seed)
	if err != nil {
		return solana.PublicKey{}, "", err
	}
	if err := writeSeedFile(path, seed, overwrite); err != nil {
		return solana.PublicKey{}, "", err
	}
	return addr, path, nil
}

func (ks *KeyStore) LoadPrivateKey(name, role string) (solana.PrivateKey, error) {
	seed, err := ks.LoadSeed("", name, role, "")
	if err != nil {
		return nil, err
	}
	return PrivateKeyFromSeed(seed)
}

// LoadSeed takes the first source given: seedHex, then keyFile, then the
// stored wallet name with its optional role.
func (ks *KeyStore) LoadSeed(seedHex, name, role, keyFile string) ([]byte, error) {
	switch {
	case seedHex != "":
		return ParseSeedHex(seedHex)
	case keyFile != "":
		return readSeedFile(keyFile)
	case name != "":
		path, err := ks.keyPath(name, role)
		if err != nil {
			return nil, err
		}
		return readSeedFile(path)
	}
	return nil, errors.New("no wallet provided")
}

// ListKeys returns the readable wallets in name order. A missing store
// lists nothing.
func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	dirs, err := os.ReadDir(ks.Directory)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []KeyEntry
	for _, d := range dirs {
		if !d.IsDir() || CheckKeyName(d.Name()) != nil {
			continue
		}
		seed, err := ks.LoadSeed("", d.Name(), "", "")
		if err != nil {
			continue
		}
		addr, err := AddressFromSeed(seed)
		if err != nil {
			continue
		}
		out = append(out, KeyEntry{Name: d.Name(), Address: addr, Roles: ks.roles(d.Name())})
	}
	return out, nil
}

func (ks *KeyStore) roles(name string) []string {
	files, err := os.ReadDir(filepath.Join(ks.Directory, name, rolesDir))
	if err != nil {
		return nil
	}
	var roles []string
	for _, f := range files {
		role, ok := strings.CutSuffix(f.Name(), keyExt)
		if ok && f.Type().IsRegular() && CheckRole(role) == nil {
			roles = append(roles, role)
		}
	}
	slices.Sort(roles)
	return roles
}
