package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"promphub.io/market/chain"
	"promphub.io/market/client"
	"promphub.io/market/ledger"
	"promphub.io/market/program"
	"promphub.io/market/store/memory"
)

var _ client.Backend = (*chain.Runtime)(nil)

type harness struct {
	t    *testing.T
	dir  string
	node client.Backend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("MARKET_WALLET", "")
	rt, err := chain.New(ledger.New(memory.New()), program.New(program.DefaultProgramID, program.DefaultPolicy()),
		chain.Options{FeePerSignature: chain.DefaultFeePerSignature, Faucet: true})
	if err != nil {
		t.Fatalf("chain.New: %v", err)
	}
	return &harness{t: t, dir: t.TempDir(), node: rt}
}

func (h *harness) exec(args ...string) (string, error) {
	var buf bytes.Buffer
	root := newRootCmd(&cli{backend: h.node})
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--keys-dir", h.dir}, args...))
	err := root.Execute()
	return buf.String(), err
}

func (h *harness) ok(args ...string) string {
	h.t.Helper()
	out, err := h.exec(args...)
	if err != nil {
		h.t.Fatalf("marketctl %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func (h *harness) okJSON(v any, args ...string) {
	h.t.Helper()
	out := h.ok(append([]string{"--json"}, args...)...)
	if err := json.Unmarshal([]byte(out), v); err != nil {
		h.t.Fatalf("decode %q: %v", out, err)
	}
}

func TestMarketplaceCommands(t *testing.T) {
	h := newHarness(t)
	for _, w := range []string{"admin", "creator", "buyer"} {
		h.ok("--wallet", w, "keys", "init")
		h.ok("--wallet", w, "airdrop", "2")
	}
	h.ok("--wallet", "admin", "init", "1000")

	var created map[string]string
	h.okJSON(&created, "--wallet", "creator", "create", "ipfs://prompt", "--royalty", "500")
	mint := created["Mint"]
	if mint == "" || created["Signature"] == "" {
		t.Fatalf("create output = %v", created)
	}
	h.ok("--wallet", "creator", "list", mint, "1.5")

	quote := h.ok("--wallet", "buyer", "quote", mint)
	for _, want := range []string{"0.15 SOL", "0.075 SOL", "1.275 SOL"} {
		if !strings.Contains(quote, want) {
			t.Fatalf("quote missing %q:\n%s", want, quote)
		}
	}

	h.ok("--wallet", "buyer", "buy", mint)

	var shown struct {
		Listing struct {
			IsActive bool   `json:"is_active"`
			Seller   string `json:"seller"`
		} `json:"listing"`
		Escrow uint64 `json:"escrow"`
	}
	h.okJSON(&shown, "--wallet", "buyer", "show", "listing", mint)
	if shown.Listing.IsActive || shown.Escrow != 0 {
		t.Fatalf("listing after sale = %+v", shown)
	}

	var bal map[string]any
	h.okJSON(&bal, "--wallet", "buyer", "balance")
	if bal["Balance"] != "0.499995 SOL" {
		t.Fatalf("buyer balance = %v", bal)
	}

	var cfg struct {
		FeeBps uint64 `json:"fee_bps"`
	}
	h.okJSON(&cfg, "--wallet", "buyer", "show", "config")
	if cfg.FeeBps != 1000 {
		t.Fatalf("config = %+v", cfg)
	}
	if out := h.ok("--wallet", "buyer", "show", "asset", mint); !strings.Contains(out, "ipfs://prompt") {
		t.Fatalf("show asset:\n%s", out)
	}
	if out := h.ok("--wallet", "buyer", "show", "metadata", mint); !strings.Contains(out, "PROMPT") || !strings.Contains(out, "verified=true") {
		t.Fatalf("show metadata:\n%s", out)
	}

	if _, err := h.exec("--wallet", "creator", "close-config"); err == nil || !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("close-config by creator: %v", err)
	}
	h.ok("--wallet", "admin", "close-config")
}

func TestCreateWithRoleMint(t *testing.T) {
	h := newHarness(t)
	h.ok("--wallet", "alice", "keys", "init")
	h.ok("--wallet", "alice", "airdrop", "1")
	h.ok("--wallet", "alice", "keys", "derive", "mint1")

	var role map[string]string
	h.okJSON(&role, "--wallet", "alice", "--role", "mint1", "keys", "show")
	var created map[string]string
	h.okJSON(&created, "--wallet", "alice", "create", "ar://x", "--mint-role", "mint1")
	if created["Mint"] != role["address"] {
		t.Fatalf("mint %s, want role address %s", created["Mint"], role["address"])
	}
	if _, err := h.exec("--wallet", "alice", "create", "ar://y", "--mint-role", "mint1"); err == nil {
		t.Fatalf("expected reuse of a mint to fail")
	}
}

func TestKeysCommands(t *testing.T) {
	h := newHarness(t)
	h.ok("--wallet", "alice", "keys", "init", "--seed", strings.Repeat("ab", 32))
	h.ok("--wallet", "bob", "keys", "init")
	h.ok("--wallet", "alice", "keys", "derive", "buyer")
	if _, err := h.exec("--wallet", "alice", "keys", "init"); err == nil {
		t.Fatalf("expected init over an existing wallet to fail")
	}

	out := h.ok("keys", "list")
	if !strings.Contains(out, "alice") || !strings.Contains(out, "bob") || !strings.Contains(out, "buyer") {
		t.Fatalf("keys list:\n%s", out)
	}

	var addr map[string]string
	h.okJSON(&addr, "--wallet", "alice", "keys", "show")
	var signed map[string]string
	h.okJSON(&signed, "--wallet", "alice", "keys", "sign", "hello")
	h.ok("keys", "verify", addr["address"], "hello", signed["Signature"])
	if _, err := h.exec("keys", "verify", addr["address"], "bye", signed["Signature"]); err == nil {
		t.Fatalf("expected verify of another message to fail")
	}

	path := filepath.Join(t.TempDir(), "id.json")
	h.ok("--wallet", "alice", "keys", "export", path)
	var fromFile map[string]string
	h.okJSON(&fromFile, "--keypair", path, "keys", "show")
	if fromFile["address"] != addr["address"] {
		t.Fatalf("exported key address %s, want %s", fromFile["address"], addr["address"])
	}
	h.ok("--wallet", "carol", "keys", "import", path)
	var carol map[string]string
	h.okJSON(&carol, "--wallet", "carol", "keys", "show")
	if carol["address"] != addr["address"] {
		t.Fatalf("imported address %s", carol["address"])
	}
}

func TestCommandErrors(t *testing.T) {
	h := newHarness(t)
	if _, err := h.exec("--wallet", "nobody", "balance"); err == nil || !strings.Contains(err.Error(), "keys init") {
		t.Fatalf("missing wallet: %v", err)
	}
	h.ok("--wallet", "alice", "keys", "init")
	for _, args := range [][]string{
		{"--wallet", "alice", "airdrop", "lots"},
		{"--wallet", "alice", "list", "not-a-mint", "1"},
		{"--wallet", "alice", "init", "ten"},
		{"--wallet", "alice", "--program", "bad", "show", "config"},
		{"--wallet", "alice", "show", "config"},
	} {
		if _, err := h.exec(args...); err == nil {
			t.Fatalf("marketctl %v: expected error", args)
		}
	}
}
