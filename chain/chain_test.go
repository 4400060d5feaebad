package chain

import (
	"bytes"
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/ledger"
	"promphub.io/market/market"
	"promphub.io/market/pda"
	"promphub.io/market/program"
	"promphub.io/market/store/memory"
	"promphub.io/market/txn"
)

const sol = market.LamportsPerSOL

type recorder struct {
	topics []string
}

func (r *recorder) Publish(ctx context.Context, topic string, event any) error {
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recorder) Close() error { return nil }

type env struct {
	t   *testing.T
	ctx context.Context
	rt  *Runtime
	pub *recorder
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	pub := &recorder{}
	opts.Publisher = pub
	rt, err := New(ledger.New(memory.New()), program.New(program.DefaultProgramID, program.DefaultPolicy()), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &env{t: t, ctx: context.Background(), rt: rt, pub: pub}
}

func (e *env) wallet(lamports uint64) solana.PrivateKey {
	e.t.Helper()
	k := solana.NewWallet().PrivateKey
	if lamports > 0 {
		if _, err := e.rt.Ledger().Credit(k.PublicKey(), lamports); err != nil {
			e.t.Fatalf("Credit: %v", err)
		}
	}
	return k
}

func (e *env) raw(payer solana.PrivateKey, ixs []txn.Instruction, extra ...solana.PrivateKey) []byte {
	e.t.Helper()
	recent, err := e.rt.LatestHash(e.ctx)
	if err != nil {
		e.t.Fatalf("LatestHash: %v", err)
	}
	return e.rawAt(recent, payer, ixs, extra...)
}

func (e *env) rawAt(recent solana.Hash, payer solana.PrivateKey, ixs []txn.Instruction, extra ...solana.PrivateKey) []byte {
	e.t.Helper()
	tx, err := txn.New(payer.PublicKey(), recent, ixs, append([]solana.PrivateKey{payer}, extra...)...)
	if err != nil {
		e.t.Fatalf("txn.New: %v", err)
	}
	b, err := tx.Encode()
	if err != nil {
		e.t.Fatalf("Encode: %v", err)
	}
	return b
}

func (e *env) submit(raw []byte) *Receipt {
	e.t.Helper()
	rc, err := e.rt.Submit(e.ctx, raw)
	if err != nil {
		e.t.Fatalf("Submit: %v", err)
	}
	return rc
}

func (e *env) balance(k solana.PrivateKey) uint64 {
	e.t.Helper()
	v, err := e.rt.Balance(e.ctx, k.PublicKey())
	if err != nil {
		e.t.Fatalf("Balance: %v", err)
	}
	return v
}

func (e *env) snapshot() []byte {
	e.t.Helper()
	b, err := e.rt.Ledger().Snapshot()
	if err != nil {
		e.t.Fatalf("Snapshot: %v", err)
	}
	return b
}

func must(t *testing.T, ix txn.Instruction, err error) []txn.Instruction {
	t.Helper()
	if err != nil {
		t.Fatalf("build instruction: %v", err)
	}
	return []txn.Instruction{ix}
}

func expectCode(t *testing.T, err error, want market.Code) {
	t.Helper()
	if got := market.CodeOf(err); got != want {
		t.Fatalf("expected %s, got %v", want, err)
	}
}

func TestSaleThroughRuntime(t *testing.T) {
	e := newEnv(t, Options{FeePerSignature: DefaultFeePerSignature})
	id := program.DefaultProgramID
	admin, creator, buyer := e.wallet(sol), e.wallet(sol), e.wallet(2*sol)
	mint := solana.NewWallet().PrivateKey

	ix, err := program.NewInitialize(id, admin.PublicKey(), 1000)
	e.submit(e.raw(admin, must(t, ix, err)))

	ix, err = program.NewCreateAsset(id, creator.PublicKey(), mint.PublicKey(), "ipfs://prompt", 500)
	rc := e.submit(e.raw(creator, must(t, ix, err), mint))
	if rc.Fee != 2*DefaultFeePerSignature {
		t.Fatalf("two signatures should cost %d, got %d", 2*DefaultFeePerSignature, rc.Fee)
	}

	ix, err = program.NewList(id, creator.PublicKey(), mint.PublicKey(), sol)
	e.submit(e.raw(creator, must(t, ix, err)))

	before := e.balance(buyer)
	ix, err = program.NewBuy(id, program.BuyAccounts{
		Buyer: buyer.PublicKey(), Seller: creator.PublicKey(), Admin: admin.PublicKey(),
		Creator: creator.PublicKey(), Mint: mint.PublicKey(),
	})
	rc = e.submit(e.raw(buyer, must(t, ix, err)))

	if got := before - e.balance(buyer); got != sol+DefaultFeePerSignature {
		t.Fatalf("buyer paid %d", got)
	}
	addrs, err := pda.ForMint(id, mint.PublicKey())
	if err != nil {
		t.Fatalf("ForMint: %v", err)
	}
	if v, _ := e.rt.TokenBalance(e.ctx, addrs.EscrowToken); v != 0 {
		t.Fatalf("escrow holds %d", v)
	}
	buyerToken, _ := pda.TokenAccount(buyer.PublicKey(), mint.PublicKey())
	if v, _ := e.rt.TokenBalance(e.ctx, buyerToken); v != 1 {
		t.Fatalf("buyer holds %d", v)
	}
	data, err := e.rt.AccountData(e.ctx, addrs.Listing)
	if err != nil {
		t.Fatalf("AccountData: %v", err)
	}
	l, err := market.DecodeListing(data)
	if err != nil || l.IsActive {
		t.Fatalf("listing = %+v, %v", l, err)
	}

	if e.rt.Height() != 4 || rc.Slot != 4 {
		t.Fatalf("height = %d, slot = %d", e.rt.Height(), rc.Slot)
	}
	want := []string{market.TopicConfig, market.TopicAssetCreated, market.TopicAssetListed, market.TopicAssetSold}
	if len(e.pub.topics) != len(want) {
		t.Fatalf("published %v", e.pub.topics)
	}
	for i := range want {
		if e.pub.topics[i] != want[i] {
			t.Fatalf("published %v, want %v", e.pub.topics, want)
		}
	}

	enc, err := rc.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := DecodeReceipt(enc)
	if err != nil || back.Signature != rc.Signature || len(back.Logs) != len(rc.Logs) {
		t.Fatalf("DecodeReceipt = %+v, %v", back, err)
	}
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	e := newEnv(t, Options{FeePerSignature: DefaultFeePerSignature})
	id := program.DefaultProgramID
	admin := e.wallet(sol)

	// initialize followed by an invalid close from a stranger: both or nothing.
	stranger := e.wallet(sol)
	initIx, err := program.NewInitialize(id, admin.PublicKey(), 100)
	if err != nil {
		t.Fatalf("NewInitialize: %v", err)
	}
	closeIx, err := program.NewCloseConfig(id, stranger.PublicKey())
	if err != nil {
		t.Fatalf("NewCloseConfig: %v", err)
	}
	before := e.snapshot()
	_, err = e.rt.Submit(e.ctx, e.raw(admin, []txn.Instruction{initIx, closeIx}, stranger))
	expectCode(t, err, market.CodeUnauthorized)
	if !bytes.Equal(before, e.snapshot()) {
		t.Fatalf("failed transaction changed state")
	}
	if len(e.pub.topics) != 0 {
		t.Fatalf("failed transaction published %v", e.pub.topics)
	}
	if e.rt.Height() != 0 {
		t.Fatalf("failed transaction sealed a slot")
	}
}

func TestReplayProtection(t *testing.T) {
	e := newEnv(t, Options{})
	id := program.DefaultProgramID
	admin := e.wallet(sol)
	ix, err := program.NewInitialize(id, admin.PublicKey(), 100)
	raw := e.raw(admin, must(t, ix, err))
	e.submit(raw)

	_, err = e.rt.Submit(e.ctx, raw)
	expectCode(t, err, market.CodeDuplicateTransaction)
	_, err = e.rt.Check(raw)
	expectCode(t, err, market.CodeDuplicateTransaction)

	// Same instruction, fresh hash: a distinct transaction that the program rejects.
	_, err = e.rt.Submit(e.ctx, e.raw(admin, must(t, ix, nil)))
	expectCode(t, err, market.CodeAlreadyInitialized)
}

// A transaction executed but not yet sealed must stay a duplicate in any
// state that contains its effects.
func TestExecutedSignatureSurvivesRestore(t *testing.T) {
	e := newEnv(t, Options{})
	id := program.DefaultProgramID
	admin, seller := e.wallet(sol), e.wallet(sol)
	mint := solana.NewWallet().PrivateKey

	ix, err := program.NewInitialize(id, admin.PublicKey(), 100)
	e.submit(e.raw(admin, must(t, ix, err)))
	ix, err = program.NewCreateAsset(id, seller.PublicKey(), mint.PublicKey(), "ipfs://prompt", 0)
	e.submit(e.raw(seller, must(t, ix, err), mint))

	ix, err = program.NewList(id, seller.PublicKey(), mint.PublicKey(), sol)
	list := e.raw(seller, must(t, ix, err))
	if _, err := e.rt.Execute(e.ctx, list); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	_, _, snap, err := e.rt.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	kv := memory.New()
	if err := ledger.Restore(kv, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	rt, err := New(ledger.New(kv), program.New(id, program.DefaultPolicy()), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	again := &env{t: t, ctx: e.ctx, rt: rt, pub: &recorder{}}
	ix, err = program.NewDelist(id, seller.PublicKey(), mint.PublicKey())
	again.submit(again.raw(seller, must(t, ix, err)))

	_, err = rt.Submit(e.ctx, list)
	expectCode(t, err, market.CodeDuplicateTransaction)
	m, err := pda.ForMint(id, mint.PublicKey())
	if err != nil {
		t.Fatalf("ForMint: %v", err)
	}
	data, err := rt.AccountData(e.ctx, m.Listing)
	if err != nil {
		t.Fatalf("AccountData: %v", err)
	}
	l, err := market.DecodeListing(data)
	if err != nil {
		t.Fatalf("DecodeListing: %v", err)
	}
	if l.IsActive {
		t.Fatalf("replayed list reactivated the listing")
	}
}

func TestSealPrunesExpiredSignatures(t *testing.T) {
	e := newEnv(t, Options{})
	admin := e.wallet(sol)
	ix, err := program.NewInitialize(program.DefaultProgramID, admin.PublicKey(), 100)
	e.submit(e.raw(admin, must(t, ix, err)))

	tracked, err := e.rt.Ledger().MetaPrefix(metaSeen)
	if err != nil || len(tracked) != 1 {
		t.Fatalf("tracked signatures = %d, %v", len(tracked), err)
	}
	for i := 0; i < RecentHashWindow; i++ {
		if _, _, err := e.rt.Seal(); err != nil {
			t.Fatalf("Seal: %v", err)
		}
	}
	tracked, err = e.rt.Ledger().MetaPrefix(metaSeen)
	if err != nil || len(tracked) != 0 {
		t.Fatalf("expired signatures kept: %d, %v", len(tracked), err)
	}
	if len(e.rt.seen) != 0 {
		t.Fatalf("in-memory signatures kept: %d", len(e.rt.seen))
	}
}

func TestRecentHashWindow(t *testing.T) {
	e := newEnv(t, Options{})
	genesis, _ := e.rt.LatestHash(e.ctx)
	if genesis != GenesisHash(program.DefaultProgramID) {
		t.Fatalf("fresh runtime is not at genesis")
	}
	payer := e.wallet(sol)
	ix, err := program.NewCloseConfig(program.DefaultProgramID, payer.PublicKey())
	ixs := must(t, ix, err)

	_, err = e.rt.Check(e.rawAt(solana.Hash{1}, payer, ixs))
	expectCode(t, err, market.CodeStaleTransaction)

	for i := 0; i < RecentHashWindow-1; i++ {
		if _, _, err := e.rt.Seal(); err != nil {
			t.Fatalf("Seal: %v", err)
		}
	}
	if _, err := e.rt.Check(e.rawAt(genesis, payer, ixs)); err != nil {
		t.Fatalf("genesis should still be recent: %v", err)
	}
	if _, _, err := e.rt.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	_, err = e.rt.Check(e.rawAt(genesis, payer, ixs))
	expectCode(t, err, market.CodeStaleTransaction)
}

func TestCheckRejectsBadInput(t *testing.T) {
	e := newEnv(t, Options{FeePerSignature: DefaultFeePerSignature})
	admin := e.wallet(sol)
	ix, err := program.NewInitialize(program.DefaultProgramID, admin.PublicKey(), 100)
	ixs := must(t, ix, err)

	_, err = e.rt.Check([]byte{1, 2, 3})
	expectCode(t, err, market.CodeMalformedTransaction)

	raw := e.raw(admin, ixs)
	tx, err := txn.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tx.Signatures[0][0] ^= 0xff
	tampered, _ := tx.Encode()
	_, err = e.rt.Check(tampered)
	expectCode(t, err, market.CodeInvalidSignature)

	foreign := ix
	foreign.ProgramID = solana.SystemProgramID
	_, err = e.rt.Check(e.raw(admin, []txn.Instruction{foreign}))
	expectCode(t, err, market.CodeInvalidProgram)

	broke := e.wallet(DefaultFeePerSignature - 1)
	ix, err = program.NewInitialize(program.DefaultProgramID, broke.PublicKey(), 100)
	_, err = e.rt.Check(e.raw(broke, must(t, ix, err)))
	expectCode(t, err, market.CodeInsufficientFundsForFee)
	_, err = e.rt.Submit(e.ctx, e.raw(broke, must(t, ix, nil)))
	expectCode(t, err, market.CodeInsufficientFundsForFee)
}

func TestRestartResumesChain(t *testing.T) {
	l := ledger.New(memory.New())
	p := program.New(program.DefaultProgramID, program.DefaultPolicy())
	rt, err := New(l, p, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e := &env{t: t, ctx: context.Background(), rt: rt, pub: &recorder{}}
	admin := e.wallet(sol)
	ix, err := program.NewInitialize(p.ID, admin.PublicKey(), 100)
	raw := e.raw(admin, must(t, ix, err))
	e.submit(raw)
	hash, _ := rt.LatestHash(e.ctx)

	again, err := New(l, p, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if again.Height() != 1 {
		t.Fatalf("height = %d", again.Height())
	}
	if h, _ := again.LatestHash(e.ctx); h != hash {
		t.Fatalf("hash = %s, want %s", h, hash)
	}
	_, err = again.Check(raw)
	expectCode(t, err, market.CodeDuplicateTransaction)
}

func TestSealIsDeterministic(t *testing.T) {
	a, b := newEnv(t, Options{}), newEnv(t, Options{})
	admin := solana.NewWallet().PrivateKey
	ix, err := program.NewInitialize(program.DefaultProgramID, admin.PublicKey(), 100)
	raw := a.raw(admin, must(t, ix, err))
	for _, e := range []*env{a, b} {
		e.submit(raw)
	}
	ha, _ := a.rt.LatestHash(a.ctx)
	hb, _ := b.rt.LatestHash(b.ctx)
	if ha != hb {
		t.Fatalf("same history, different hashes: %s %s", ha, hb)
	}
	if _, _, err := a.rt.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if h, _ := a.rt.LatestHash(a.ctx); h == ha {
		t.Fatalf("empty seal must still advance the hash")
	}
}

func TestAirdrop(t *testing.T) {
	off := newEnv(t, Options{})
	k := solana.NewWallet().PublicKey()
	_, err := off.rt.Airdrop(off.ctx, k, 1)
	expectCode(t, err, market.CodeFaucetDisabled)

	on := newEnv(t, Options{Faucet: true, FaucetMax: 10 * sol})
	v, err := on.rt.Airdrop(on.ctx, k, sol)
	if err != nil || v != sol {
		t.Fatalf("Airdrop = %d, %v", v, err)
	}
	_, err = on.rt.Airdrop(on.ctx, k, 11*sol)
	expectCode(t, err, market.CodeFaucetDisabled)
	if got, _ := on.rt.Balance(on.ctx, k); got != sol {
		t.Fatalf("balance = %d", got)
	}
}

func TestExternalRuntimeRefusesDirectSubmission(t *testing.T) {
	e := newEnv(t, Options{External: true})
	if _, err := e.rt.SendTransaction(e.ctx, nil); err != ErrReadOnly {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if _, err := e.rt.Airdrop(e.ctx, solana.NewWallet().PublicKey(), 1); err != ErrReadOnly {
		t.Fatalf("expected ErrReadOnly from Airdrop, got %v", err)
	}
}

func TestAccountDataMissing(t *testing.T) {
	e := newEnv(t, Options{})
	_, err := e.rt.AccountData(e.ctx, solana.NewWallet().PublicKey())
	expectCode(t, err, market.CodeAccountNotInitialized)
}
