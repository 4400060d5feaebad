// Package chain runs marketplace transactions against the host ledger.
//
// A Runtime totally orders execution: each transaction is verified, charged
// its network fee and applied atomically. Executed transactions are folded
// into a pending digest that Seal turns into the next chain hash. Recent
// chain hashes form the replay window a transaction must reference.
package chain

import (
	"context"
	"crypto/sha256"
	"errors"
	"hash"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/events"
	"promphub.io/market/ledger"
	"promphub.io/market/market"
	"promphub.io/market/program"
	"promphub.io/market/safemath"
	"promphub.io/market/txn"
)

const (
	// RecentHashWindow is how many sealed hashes a transaction may reference.
	RecentHashWindow = 150
	// DefaultFeePerSignature is the network fee in lamports per signature.
	DefaultFeePerSignature = 5000
)

var ErrReadOnly = errors.New("chain: transactions are ordered by the consensus engine")

type Options struct {
	FeePerSignature uint64
	// Faucet enables Airdrop. FaucetMax caps one request; zero is unlimited.
	Faucet    bool
	FaucetMax uint64
	// External marks a runtime driven by a consensus engine. SendTransaction
	// is refused; the engine calls Execute and Seal.
	External  bool
	Logger    *slog.Logger
	Publisher events.Publisher
}

type Runtime struct {
	ledger  *ledger.Ledger
	program *program.Program
	opts    Options
	log     *slog.Logger
	pub     events.Publisher

	mu      sync.Mutex
	st      *state
	recent  map[solana.Hash]bool
	seen    map[solana.Signature]solana.Hash
	pending hash.Hash
	count   int
}

// New loads the chain head from l, or starts at genesis.
func New(l *ledger.Ledger, p *program.Program, opts Options) (*Runtime, error) {
	st, err := loadState(l, p.ID)
	if err != nil {
		return nil, err
	}
	seen, err := loadSeen(l)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	r := &Runtime{
		ledger:  l,
		program: p,
		opts:    opts,
		log:     opts.Logger,
		pub:     opts.Publisher,
		pending: sha256.New(),
		seen:    seen,
	}
	r.adopt(st)
	return r, nil
}

func (r *Runtime) adopt(st *state) {
	r.st = st
	r.recent = make(map[solana.Hash]bool, len(st.Recent))
	for _, h := range st.Recent {
		r.recent[h] = true
	}
}

// Reload rereads the chain head from the ledger after its store was
// replaced, for example by a restored snapshot. Pending work is dropped.
func (r *Runtime) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, err := loadState(r.ledger, r.program.ID)
	if err != nil {
		return err
	}
	seen, err := loadSeen(r.ledger)
	if err != nil {
		return err
	}
	r.adopt(st)
	r.seen = seen
	r.pending.Reset()
	r.count = 0
	return nil
}

func (r *Runtime) Ledger() *ledger.Ledger   { return r.ledger }
func (r *Runtime) Program() *program.Program { return r.program }

// Check validates raw without changing state.
func (r *Runtime) Check(raw []byte) (*txn.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, err := r.check(raw)
	if err != nil {
		return nil, err
	}
	fee, err := r.fee(tx)
	if err != nil {
		return nil, err
	}
	balance, err := r.ledger.Lamports(tx.Message.FeePayer)
	if err != nil {
		return nil, market.Wrap(market.CodeInternal, err, "fee payer balance")
	}
	if balance < fee {
		return nil, market.New(market.CodeInsufficientFundsForFee, "fee payer %s has %d, fee is %d", tx.Message.FeePayer, balance, fee)
	}
	return tx, nil
}

func (r *Runtime) check(raw []byte) (*txn.Transaction, error) {
	tx, err := txn.Decode(raw)
	if err != nil {
		return nil, market.Wrap(market.CodeMalformedTransaction, err, "%v", err)
	}
	if err := tx.Verify(); err != nil {
		if errors.Is(err, txn.ErrNoInstructions) {
			return nil, market.Wrap(market.CodeMalformedTransaction, err, "%v", err)
		}
		return nil, market.Wrap(market.CodeInvalidSignature, err, "%v", err)
	}
	for _, ix := range tx.Message.Instructions {
		if !ix.ProgramID.Equals(r.program.ID) {
			return nil, market.New(market.CodeInvalidProgram, "instruction for %s", ix.ProgramID)
		}
	}
	if !r.recent[tx.Message.RecentHash] {
		return nil, market.New(market.CodeStaleTransaction, "recent hash %s is not in the last %d", tx.Message.RecentHash, RecentHashWindow)
	}
	if _, ok := r.seen[tx.ID()]; ok {
		return nil, market.New(market.CodeDuplicateTransaction, "%s", tx.ID())
	}
	return tx, nil
}

func (r *Runtime) fee(tx *txn.Transaction) (uint64, error) {
	fee, err := safemath.Mul(r.opts.FeePerSignature, uint64(len(tx.Signatures)))
	if err != nil {
		return 0, market.Wrap(market.CodeArithmeticOverflow, err, "network fee")
	}
	return fee, nil
}

// Execute applies raw atomically and records it in the pending slot.
// Committed events are published after the state change is durable.
func (r *Runtime) Execute(ctx context.Context, raw []byte) (*Receipt, error) {
	r.mu.Lock()
	rc, err := r.execute(raw)
	r.mu.Unlock()
	return r.finish(ctx, rc, err)
}

func (r *Runtime) finish(ctx context.Context, rc *Receipt, err error) (*Receipt, error) {
	if err != nil {
		r.log.Info("transaction rejected", "code", market.CodeOf(err).String(), "err", err)
		return nil, err
	}
	r.log.Debug("transaction committed", "signature", rc.Signature, "slot", rc.Slot, "fee", rc.Fee, "events", len(rc.Events))
	r.publish(ctx, rc.Events)
	return rc, nil
}

// execute runs with r.mu held.
func (r *Runtime) execute(raw []byte) (*Receipt, error) {
	tx, err := r.check(raw)
	if err != nil {
		return nil, err
	}
	fee, err := r.fee(tx)
	if err != nil {
		return nil, err
	}
	msg := tx.Message
	ltx := r.ledger.Begin(ledger.AccessList(msg.AccessList()), msg.Signers())
	if err := ltx.Burn(msg.FeePayer, fee); err != nil {
		ltx.Discard()
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, market.New(market.CodeInsufficientFundsForFee, "fee payer %s cannot pay %d", msg.FeePayer, fee)
		}
		return nil, market.Wrap(market.CodeInternal, err, "charge fee")
	}

	rc := &Receipt{Signature: tx.ID(), Slot: r.st.Height + 1, Fee: fee}
	for _, ix := range msg.Instructions {
		res, err := r.program.Process(ltx, ix)
		if err != nil {
			ltx.Discard()
			return nil, err
		}
		rc.Logs = append(rc.Logs, res.Logs...)
		rc.Events = append(rc.Events, res.Events...)
	}
	ltx.PutMeta(seenName(rc.Signature), msg.RecentHash[:])
	cs, err := ltx.Commit()
	if errors.Is(err, ledger.ErrConflict) {
		return nil, market.Wrap(market.CodeWriteConflict, err, "%v", err)
	}
	if err != nil {
		return nil, market.Wrap(market.CodeInternal, err, "commit")
	}

	r.seen[rc.Signature] = msg.RecentHash
	d := cs.Digest()
	r.pending.Write(rc.Signature[:])
	r.pending.Write(d[:])
	r.count++
	return rc, nil
}

func (r *Runtime) publish(ctx context.Context, evs []market.Event) {
	for _, e := range evs {
		if err := r.pub.Publish(ctx, e.Topic(), e); err != nil {
			r.log.Warn("publish event failed", "topic", e.Topic(), "err", err)
		}
	}
}

// Seal closes the pending slot: the height advances and the new chain hash
// is sha256(previous hash || pending digest). Hashes older than the window
// expire together with the signatures that referenced them.
func (r *Runtime) Seal() (uint64, solana.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seal()
}

// seal runs with r.mu held.
func (r *Runtime) seal() (uint64, solana.Hash, error) {
	h := sha256.New()
	h.Write(r.st.Hash[:])
	h.Write(r.pending.Sum(nil))
	var next solana.Hash
	copy(next[:], h.Sum(nil))

	st := &state{Height: r.st.Height + 1, Hash: next}
	st.Recent = append(append([]solana.Hash{}, r.st.Recent...), next)
	if len(st.Recent) > RecentHashWindow {
		st.Recent = st.Recent[len(st.Recent)-RecentHashWindow:]
	}
	recent := make(map[solana.Hash]bool, len(st.Recent))
	for _, rh := range st.Recent {
		recent[rh] = true
	}
	b, err := st.encode()
	if err != nil {
		return 0, solana.Hash{}, err
	}
	batch := map[string][]byte{metaChain: b}
	var expired []solana.Signature
	for sig, rh := range r.seen {
		if !recent[rh] {
			batch[seenName(sig)] = nil
			expired = append(expired, sig)
		}
	}
	if err := r.ledger.SetMeta(batch); err != nil {
		return 0, solana.Hash{}, err
	}

	for _, sig := range expired {
		delete(r.seen, sig)
	}
	r.adopt(st)
	r.log.Debug("slot sealed", "height", st.Height, "hash", next, "transactions", r.count)
	r.pending.Reset()
	r.count = 0
	return st.Height, next, nil
}

// Snapshot returns the ledger snapshot together with the height and hash it
// was sealed at. Submit seals under the same lock as it executes, so a
// standalone node never snapshots unsealed work. Under consensus, Execute
// and Seal are separate calls and callers snapshot right after Seal.
func (r *Runtime) Snapshot() (uint64, solana.Hash, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := r.ledger.Snapshot()
	if err != nil {
		return 0, solana.Hash{}, nil, err
	}
	return r.st.Height, r.st.Hash, data, nil
}

// Submit executes raw and seals it into its own slot as one step.
func (r *Runtime) Submit(ctx context.Context, raw []byte) (*Receipt, error) {
	r.mu.Lock()
	rc, err := r.execute(raw)
	if err == nil {
		if _, _, serr := r.seal(); serr != nil {
			r.mu.Unlock()
			return nil, serr
		}
	}
	r.mu.Unlock()
	return r.finish(ctx, rc, err)
}

// SendTransaction submits raw and returns its signature.
func (r *Runtime) SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	if r.opts.External {
		return solana.Signature{}, ErrReadOnly
	}
	rc, err := r.Submit(ctx, raw)
	if err != nil {
		return solana.Signature{}, err
	}
	return rc.Signature, nil
}

// Height is the number of sealed slots.
func (r *Runtime) Height() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.Height
}

func (r *Runtime) LatestHash(ctx context.Context) (solana.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.Hash, nil
}

// AccountData returns the raw data of the program record at addr.
func (r *Runtime) AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	rec, err := r.ledger.Record(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, market.New(market.CodeAccountNotInitialized, "no record at %s", addr)
	}
	if err != nil {
		return nil, market.Wrap(market.CodeInternal, err, "read %s", addr)
	}
	if !rec.Owner.Equals(r.program.ID) {
		return nil, market.New(market.CodeAccountOwnedByWrongProgram, "%s owned by %s", addr, rec.Owner)
	}
	return rec.Data, nil
}

// TokenMetadata returns the stored token metadata at addr. Decode it with
// ledger.DecodeTokenMetadata.
func (r *Runtime) TokenMetadata(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	md, err := r.ledger.Metadata(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, market.New(market.CodeAccountNotInitialized, "no token metadata at %s", addr)
	}
	if err != nil {
		return nil, market.Wrap(market.CodeInternal, err, "read %s", addr)
	}
	b, err := md.Encode()
	if err != nil {
		return nil, market.Wrap(market.CodeInternal, err, "encode %s", addr)
	}
	return b, nil
}

func (r *Runtime) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	v, err := r.ledger.Lamports(addr)
	if err != nil {
		return 0, market.Wrap(market.CodeInternal, err, "read %s", addr)
	}
	return v, nil
}

// TokenBalance returns the amount held by the token account at addr; a
// missing account holds zero.
func (r *Runtime) TokenBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	acct, err := r.ledger.TokenAccount(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, market.Wrap(market.CodeInternal, err, "read %s", addr)
	}
	return acct.Amount, nil
}

// Airdrop credits lamports from the development faucet and returns the new
// balance.
func (r *Runtime) Airdrop(ctx context.Context, addr solana.PublicKey, amount uint64) (uint64, error) {
	if r.opts.External {
		return 0, ErrReadOnly
	}
	if !r.opts.Faucet {
		return 0, market.New(market.CodeFaucetDisabled, "faucet is disabled")
	}
	if r.opts.FaucetMax > 0 && amount > r.opts.FaucetMax {
		return 0, market.New(market.CodeFaucetDisabled, "request %d exceeds faucet limit %d", amount, r.opts.FaucetMax)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, err := r.ledger.Credit(addr, amount)
	if errors.Is(err, ledger.ErrOverflow) {
		return 0, market.Wrap(market.CodeArithmeticOverflow, err, "credit %s", addr)
	}
	if err != nil {
		return 0, market.Wrap(market.CodeInternal, err, "credit %s", addr)
	}
	r.log.Info("airdrop", "address", addr, "amount", amount, "balance", v)
	return v, nil
}
