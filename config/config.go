// Package config loads the daemon configuration: a TOML file, then
// MARKET_* environment overrides, then validation.
//
// Example:
//
//	program_id = "CBrB6yQSi9pcxKuRR1uPjj6NLipfpZKYYT71c3gaFf1Y"
//
//	[store]
//	backend = "sqlite"
//	options = { path = "/var/lib/marketd/ledger.db", busy_timeout_ms = "5000" }
//
//	[archive]
//	dir = "/var/lib/marketd/snapshots"
//	every = 100
//
//	[listen]
//	grpc = ":7070"
//	ws = ":7071"
//
//	[events]
//	nats_url = "nats://127.0.0.1:4222"
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/gagliardetto/solana-go"

	"promphub.io/market/chain"
	"promphub.io/market/market"
	"promphub.io/market/program"
)

type Config struct {
	ProgramID string        `toml:"program_id"`
	Store     StoreConfig   `toml:"store"`
	Archive   ArchiveConfig `toml:"archive"`
	Listen    ListenConfig  `toml:"listen"`
	Chain     ChainConfig   `toml:"chain"`
	Policy    PolicyConfig  `toml:"policy"`
	Events    EventsConfig  `toml:"events"`
	Log       LogConfig     `toml:"log"`
}

// StoreConfig selects a record store backend from the store registry.
// Options are backend-specific.
type StoreConfig struct {
	Backend string            `toml:"backend"`
	Options map[string]string `toml:"options,omitempty"`
}

// ArchiveConfig enables snapshot archiving when Dir is set. Every is the
// number of heights between snapshots. Mirrors are extra directories that
// receive a copy of every snapshot.
type ArchiveConfig struct {
	Dir     string   `toml:"dir,omitempty"`
	Every   uint64   `toml:"every"`
	Mirrors []string `toml:"mirrors,omitempty"`
}

type ListenConfig struct {
	GRPC      string `toml:"grpc"`
	ABCI      string `toml:"abci,omitempty"`
	WebSocket string `toml:"ws,omitempty"`
}

// ChainConfig tunes the runtime. FaucetMaxSOL caps one airdrop in SOL
// (empty means no cap). TendermintRPC is where transactions are broadcast
// when the node runs under consensus.
type ChainConfig struct {
	FeePerSignature uint64 `toml:"fee_per_signature"`
	Faucet          bool   `toml:"faucet"`
	FaucetMaxSOL    string `toml:"faucet_max_sol,omitempty"`
	TendermintRPC   string `toml:"tendermint_rpc,omitempty"`
}

type PolicyConfig struct {
	MaxFeeBps         uint64 `toml:"max_fee_bps"`
	MaxRoyaltyBps     uint64 `toml:"max_royalty_bps"`
	AllowSelfPurchase bool   `toml:"allow_self_purchase"`
}

type EventsConfig struct {
	NATSURL string `toml:"nats_url,omitempty"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() Config {
	return Config{
		ProgramID: program.DefaultProgramID.String(),
		Store:     StoreConfig{Backend: "memory"},
		Archive:   ArchiveConfig{Every: 100},
		Listen:    ListenConfig{GRPC: ":7070"},
		Chain:     ChainConfig{FeePerSignature: chain.DefaultFeePerSignature},
		Policy:    PolicyConfig{MaxFeeBps: market.MaxBps, MaxRoyaltyBps: market.MaxBps},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("config: %s: unknown key %q", path, undecoded[0].String())
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// WriteFile saves cfg as TOML, creating parent directories.
func (c Config) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"MARKET_PROGRAM_ID":     &c.ProgramID,
		"MARKET_STORE_BACKEND":  &c.Store.Backend,
		"MARKET_ARCHIVE_DIR":    &c.Archive.Dir,
		"MARKET_GRPC_ADDR":      &c.Listen.GRPC,
		"MARKET_ABCI_ADDR":      &c.Listen.ABCI,
		"MARKET_WS_ADDR":        &c.Listen.WebSocket,
		"MARKET_NATS_URL":       &c.Events.NATSURL,
		"MARKET_TENDERMINT_RPC": &c.Chain.TendermintRPC,
		"MARKET_LOG_LEVEL":      &c.Log.Level,
		"MARKET_LOG_FORMAT":     &c.Log.Format,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("MARKET_STORE_PATH"); v != "" {
		if c.Store.Options == nil {
			c.Store.Options = map[string]string{}
		}
		c.Store.Options["path"] = v
	}
	if v := os.Getenv("MARKET_FEE_PER_SIGNATURE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MARKET_FEE_PER_SIGNATURE: %w", err)
		}
		c.Chain.FeePerSignature = n
	}
	if v := os.Getenv("MARKET_FAUCET"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MARKET_FAUCET: %w", err)
		}
		c.Chain.Faucet = b
	}
	return nil
}

func (c Config) Validate() error {
	if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("config: invalid program_id %q: %w", c.ProgramID, err)
	}
	if c.Store.Backend == "" {
		return errors.New("config: store.backend is required")
	}
	if c.Archive.Dir != "" && c.Archive.Every == 0 {
		return errors.New("config: archive.every must be positive when archive.dir is set")
	}
	if len(c.Archive.Mirrors) > 0 && c.Archive.Dir == "" {
		return errors.New("config: archive.mirrors requires archive.dir")
	}
	if c.Listen.GRPC == "" {
		return errors.New("config: listen.grpc is required")
	}
	if c.Policy.MaxFeeBps > market.MaxBps || c.Policy.MaxRoyaltyBps > market.MaxBps {
		return fmt.Errorf("config: policy limits must not exceed %d bps", market.MaxBps)
	}
	if c.Chain.Faucet && c.Listen.ABCI != "" {
		return errors.New("config: chain.faucet cannot be used with listen.abci")
	}
	if c.Chain.FaucetMaxSOL != "" {
		if _, err := market.ParseSOL(c.Chain.FaucetMaxSOL); err != nil {
			return fmt.Errorf("config: chain.faucet_max_sol: %w", err)
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: invalid log.format %q", c.Log.Format)
	}
	return nil
}

func (c Config) ProgramKey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.ProgramID)
}

func (c Config) ProgramPolicy() program.Policy {
	return program.Policy{
		MaxFeeBps:         c.Policy.MaxFeeBps,
		MaxRoyaltyBps:     c.Policy.MaxRoyaltyBps,
		AllowSelfPurchase: c.Policy.AllowSelfPurchase,
	}
}

// ChainOptions returns the runtime options; logger and publisher are left
// for the caller.
func (c Config) ChainOptions() chain.Options {
	opts := chain.Options{FeePerSignature: c.Chain.FeePerSignature, Faucet: c.Chain.Faucet}
	if c.Chain.FaucetMaxSOL != "" {
		opts.FaucetMax, _ = market.ParseSOL(c.Chain.FaucetMaxSOL)
	}
	return opts
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("config: invalid log.level %q", s)
	}
	return l, nil
}

// Logger builds the daemon logger writing to w.
func (l LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
