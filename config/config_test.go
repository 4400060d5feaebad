package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"promphub.io/market/chain"
	"promphub.io/market/program"
)

var envKeys = []string{
	"MARKET_PROGRAM_ID", "MARKET_STORE_BACKEND", "MARKET_STORE_PATH", "MARKET_ARCHIVE_DIR",
	"MARKET_GRPC_ADDR", "MARKET_ABCI_ADDR", "MARKET_WS_ADDR", "MARKET_NATS_URL",
	"MARKET_LOG_LEVEL", "MARKET_LOG_FORMAT", "MARKET_FEE_PER_SIGNATURE", "MARKET_FAUCET",
	"MARKET_TENDERMINT_RPC",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "marketd.toml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "memory" || cfg.Listen.GRPC != ":7070" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.ProgramKey().Equals(program.DefaultProgramID) {
		t.Fatalf("program id = %s", cfg.ProgramKey())
	}
	if cfg.ProgramPolicy() != program.DefaultPolicy() {
		t.Fatalf("policy = %+v", cfg.ProgramPolicy())
	}
	if cfg.ChainOptions().FeePerSignature != chain.DefaultFeePerSignature {
		t.Fatalf("fee per signature = %d", cfg.ChainOptions().FeePerSignature)
	}
}

func TestLoadFile(t *testing.T) {
	clearAllEnv(t)
	p := writeConfig(t, `
[store]
backend = "sqlite"
options = { path = "/tmp/ledger.db", busy_timeout_ms = "2000" }

[archive]
dir = "/tmp/snapshots"
every = 10
mirrors = ["/mnt/backup/snapshots"]

[chain]
fee_per_signature = 1000
faucet = true
faucet_max_sol = "2.5"

[policy]
max_fee_bps = 1000
allow_self_purchase = true

[log]
level = "debug"
format = "json"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Options["path"] != "/tmp/ledger.db" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Archive.Every != 10 || cfg.Archive.Dir != "/tmp/snapshots" || len(cfg.Archive.Mirrors) != 1 {
		t.Fatalf("archive = %+v", cfg.Archive)
	}
	opts := cfg.ChainOptions()
	if !opts.Faucet || opts.FaucetMax != 2_500_000_000 || opts.FeePerSignature != 1000 {
		t.Fatalf("chain options = %+v", opts)
	}
	pol := cfg.ProgramPolicy()
	if pol.MaxFeeBps != 1000 || pol.MaxRoyaltyBps != 10000 || !pol.AllowSelfPurchase {
		t.Fatalf("policy = %+v", pol)
	}
	// Unset keys keep their defaults.
	if cfg.Listen.GRPC != ":7070" {
		t.Fatalf("grpc = %q", cfg.Listen.GRPC)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg Config)
	}{
		{
			name: "store",
			env:  map[string]string{"MARKET_STORE_BACKEND": "sqlite", "MARKET_STORE_PATH": "/data/l.db"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Store.Backend != "sqlite" || cfg.Store.Options["path"] != "/data/l.db" {
					t.Errorf("store = %+v", cfg.Store)
				}
			},
		},
		{
			name: "listeners",
			env:  map[string]string{"MARKET_GRPC_ADDR": ":9000", "MARKET_WS_ADDR": ":9001", "MARKET_ABCI_ADDR": "tcp://0.0.0.0:26658"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Listen.GRPC != ":9000" || cfg.Listen.WebSocket != ":9001" || cfg.Listen.ABCI != "tcp://0.0.0.0:26658" {
					t.Errorf("listen = %+v", cfg.Listen)
				}
			},
		},
		{
			name: "chain",
			env:  map[string]string{"MARKET_FEE_PER_SIGNATURE": "0", "MARKET_FAUCET": "true"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Chain.FeePerSignature != 0 || !cfg.Chain.Faucet {
					t.Errorf("chain = %+v", cfg.Chain)
				}
			},
		},
		{
			name: "events and logging",
			env:  map[string]string{"MARKET_NATS_URL": "nats://n:4222", "MARKET_LOG_LEVEL": "warn"},
			check: func(t *testing.T, cfg Config) {
				if cfg.Events.NATSURL != "nats://n:4222" || cfg.Log.Level != "warn" {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{name: "unknown key", body: "colour = \"blue\"\n", want: "unknown key"},
		{name: "bad program id", body: "program_id = \"not-base58-0OIl\"\n", want: "program_id"},
		{name: "fee limit", body: "[policy]\nmax_fee_bps = 10001\n", want: "policy"},
		{name: "archive every", body: "[archive]\ndir = \"/tmp/a\"\nevery = 0\n", want: "archive.every"},
		{name: "mirrors without dir", body: "[archive]\nmirrors = [\"/a\"]\n", want: "archive.mirrors"},
		{name: "log level", body: "[log]\nlevel = \"loud\"\n", want: "log.level"},
		{name: "log format", body: "[log]\nformat = \"xml\"\n", want: "log.format"},
		{name: "faucet max", body: "[chain]\nfaucet_max_sol = \"lots\"\n", want: "faucet_max_sol"},
		{name: "empty backend", body: "[store]\nbackend = \"\"\n", want: "store.backend"},
		{name: "faucet under consensus", body: "[listen]\nabci = \"tcp://127.0.0.1:26658\"\n[chain]\nfaucet = true\n", want: "chain.faucet"},
		{name: "bad env fee", env: map[string]string{"MARKET_FEE_PER_SIGNATURE": "-1"}, want: "MARKET_FEE_PER_SIGNATURE"},
		{name: "bad env faucet", env: map[string]string{"MARKET_FAUCET": "maybe"}, want: "MARKET_FAUCET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	clearAllEnv(t)
	cfg := Default()
	cfg.Store = StoreConfig{Backend: "sqlite", Options: map[string]string{"path": "x.db"}}
	cfg.Events.NATSURL = "nats://127.0.0.1:4222"
	p := filepath.Join(t.TempDir(), "sub", "marketd.toml")
	if err := cfg.WriteFile(p); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Store.Options["path"] != "x.db" || got.Events.NATSURL != cfg.Events.NATSURL || got.ProgramID != cfg.ProgramID {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := LogConfig{Level: "warn", Format: "json"}.Logger(&buf)
	if err != nil {
		t.Fatalf("Logger: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("log output = %q", out)
	}
}
