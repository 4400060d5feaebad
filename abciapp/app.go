// Package abciapp runs the marketplace ledger as a Tendermint ABCI
// application: the consensus engine orders transactions, every validator
// executes them through the same chain.Runtime and the runtime's chain hash
// becomes the block app hash.
package abciapp

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/ipfs/go-cid"
	abci "github.com/tendermint/tendermint/abci/types"

	"promphub.io/market/chain"
	"promphub.io/market/cidutil"
	"promphub.io/market/ledger"
	"promphub.io/market/market"
	"promphub.io/market/storage"
)

const (
	// AppVersion is reported in Info and bumped on state machine changes.
	AppVersion uint64 = 1

	// SnapshotFormat is the only snapshot encoding understood: the ledger
	// snapshot bytes split into fixed-size chunks.
	SnapshotFormat uint32 = 1

	DefaultChunkSize = 8 << 20

	codespace = "market"
)

// Options configure an App.
type Options struct {
	// Archive receives a snapshot every SnapshotEvery heights and serves
	// state sync. Nil disables both.
	Archive       storage.SnapshotArchive
	SnapshotEvery uint64
	ChunkSize     int
	Logger        *slog.Logger
}

// GenesisState is the JSON app_state of genesis.json.
type GenesisState struct {
	// Balances maps base58 addresses to lamports.
	Balances map[string]uint64 `json:"balances"`
}

type App struct {
	abci.BaseApplication

	rt   *chain.Runtime
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	restore *restoreState
}

type restoreState struct {
	id      cid.Cid
	height  uint64
	appHash []byte
	chunks  [][]byte
	have    int
}

var _ abci.Application = (*App)(nil)

// New wraps rt, which should be created with chain.Options.External set.
func New(rt *chain.Runtime, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.SnapshotEvery == 0 {
		opts.SnapshotEvery = 100
	}
	return &App{rt: rt, opts: opts, log: opts.Logger.With("component", "abci")}
}

func (a *App) Runtime() *chain.Runtime { return a.rt }

func (a *App) Info(req abci.RequestInfo) abci.ResponseInfo {
	h := a.rt.Height()
	res := abci.ResponseInfo{
		Data:            "promphub-market",
		AppVersion:      AppVersion,
		LastBlockHeight: int64(h),
	}
	if h > 0 {
		hash, _ := a.rt.LatestHash(context.Background())
		res.LastBlockAppHash = hash[:]
	}
	return res
}

func (a *App) InitChain(req abci.RequestInitChain) abci.ResponseInitChain {
	if len(req.AppStateBytes) == 0 {
		return abci.ResponseInitChain{}
	}
	var gs GenesisState
	if err := json.Unmarshal(req.AppStateBytes, &gs); err != nil {
		panic(fmt.Errorf("abciapp: decode app_state: %w", err))
	}
	addrs := make([]string, 0, len(gs.Balances))
	for addr := range gs.Balances {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, s := range addrs {
		addr, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			panic(fmt.Errorf("abciapp: genesis address %q: %w", s, err))
		}
		if _, err := a.rt.Ledger().Credit(addr, gs.Balances[s]); err != nil {
			panic(fmt.Errorf("abciapp: genesis credit %s: %w", s, err))
		}
	}
	a.log.Info("genesis applied", "chain_id", req.ChainId, "accounts", len(addrs))
	return abci.ResponseInitChain{}
}

// describe splits err into an ABCI code and log line.
func describe(err error) (uint32, string) {
	var e *market.Error
	if errors.As(err, &e) {
		return uint32(e.Code), e.Message
	}
	return uint32(market.CodeInternal), err.Error()
}

func (a *App) CheckTx(req abci.RequestCheckTx) abci.ResponseCheckTx {
	tx, err := a.rt.Check(req.Tx)
	if err != nil {
		code, log := describe(err)
		return abci.ResponseCheckTx{Code: code, Log: log, Codespace: codespace}
	}
	return abci.ResponseCheckTx{Code: abci.CodeTypeOK, Sender: tx.Message.FeePayer.String()}
}

func (a *App) DeliverTx(req abci.RequestDeliverTx) abci.ResponseDeliverTx {
	rc, err := a.rt.Execute(context.Background(), req.Tx)
	if err != nil {
		code, log := describe(err)
		return abci.ResponseDeliverTx{Code: code, Log: log, Codespace: codespace}
	}
	data, err := rc.Encode()
	if err != nil {
		code, log := describe(market.Wrap(market.CodeInternal, err, "encode receipt"))
		return abci.ResponseDeliverTx{Code: code, Log: log, Codespace: codespace}
	}
	return abci.ResponseDeliverTx{
		Code:   abci.CodeTypeOK,
		Data:   data,
		Log:    strings.Join(rc.Logs, "\n"),
		Events: txEvents(rc),
	}
}

func txEvents(rc *chain.Receipt) []abci.Event {
	sig := []byte(rc.Signature.String())
	out := make([]abci.Event, 0, len(rc.Events)+1)
	out = append(out, abci.Event{Type: "tx", Attributes: []abci.EventAttribute{
		{Key: []byte("signature"), Value: sig, Index: true},
	}})
	for _, e := range rc.Events {
		body, err := json.Marshal(e)
		if err != nil {
			continue
		}
		out = append(out, abci.Event{Type: e.Topic(), Attributes: []abci.EventAttribute{
			{Key: []byte("signature"), Value: sig, Index: true},
			{Key: []byte("data"), Value: body},
		}})
	}
	return out
}

// Commit seals the block. A seal failure leaves the node unable to agree
// with its peers, so it panics.
func (a *App) Commit() abci.ResponseCommit {
	height, hash, err := a.rt.Seal()
	if err != nil {
		panic(fmt.Errorf("abciapp: seal: %w", err))
	}
	if a.opts.Archive != nil && height%a.opts.SnapshotEvery == 0 {
		if _, err := Checkpoint(a.rt, a.opts.Archive, a.log); err != nil {
			a.log.Warn("archive snapshot failed", "height", height, "err", err)
		}
	}
	return abci.ResponseCommit{Data: hash[:]}
}

func parseAddress(b []byte) (solana.PublicKey, error) {
	if len(b) == 32 {
		return solana.PublicKeyFromBytes(b), nil
	}
	return solana.PublicKeyFromBase58(string(b))
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// Query serves committed state:
//
//	/height            -> u64 LE
//	/account  <addr>   -> record data
//	/balance  <addr>   -> u64 LE lamports
//	/token    <addr>   -> u64 LE token amount
//	/metadata <addr>   -> token metadata
//
// addr is 32 raw bytes or base58 text.
func (a *App) Query(req abci.RequestQuery) abci.ResponseQuery {
	ctx := context.Background()
	res := abci.ResponseQuery{Height: int64(a.rt.Height()), Key: req.Data}
	fail := func(err error) abci.ResponseQuery {
		res.Code, res.Log = describe(err)
		res.Codespace = codespace
		return res
	}
	if req.Path == "/height" {
		res.Value = u64(a.rt.Height())
		return res
	}
	addr, err := parseAddress(req.Data)
	if err != nil {
		return fail(market.Wrap(market.CodeMalformedTransaction, err, "query address"))
	}
	switch req.Path {
	case "/account":
		res.Value, err = a.rt.AccountData(ctx, addr)
	case "/balance":
		var v uint64
		v, err = a.rt.Balance(ctx, addr)
		res.Value = u64(v)
	case "/token":
		var v uint64
		v, err = a.rt.TokenBalance(ctx, addr)
		res.Value = u64(v)
	case "/metadata":
		res.Value, err = a.rt.TokenMetadata(ctx, addr)
	default:
		err = market.New(market.CodeInternal, "unknown query path %q", req.Path)
	}
	if err != nil {
		res.Value = nil
		return fail(err)
	}
	return res
}

func (a *App) ListSnapshots(req abci.RequestListSnapshots) abci.ResponseListSnapshots {
	if a.opts.Archive == nil {
		return abci.ResponseListSnapshots{}
	}
	head, data, err := storage.Latest(a.opts.Archive)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.log.Warn("list snapshots", "err", err)
		}
		return abci.ResponseListSnapshots{}
	}
	id, err := cid.Decode(head.CID)
	if err != nil {
		return abci.ResponseListSnapshots{}
	}
	digest, err := cidutil.Digest(id)
	if err != nil {
		return abci.ResponseListSnapshots{}
	}
	return abci.ResponseListSnapshots{Snapshots: []*abci.Snapshot{{
		Height:   head.Height,
		Format:   SnapshotFormat,
		Chunks:   uint32(a.chunkCount(len(data))),
		Hash:     digest,
		Metadata: id.Bytes(),
	}}}
}

func (a *App) chunkCount(n int) int {
	if n == 0 {
		return 1
	}
	return (n + a.opts.ChunkSize - 1) / a.opts.ChunkSize
}

func (a *App) LoadSnapshotChunk(req abci.RequestLoadSnapshotChunk) abci.ResponseLoadSnapshotChunk {
	if a.opts.Archive == nil || req.Format != SnapshotFormat {
		return abci.ResponseLoadSnapshotChunk{}
	}
	head, data, err := storage.Latest(a.opts.Archive)
	if err != nil || head.Height != req.Height {
		return abci.ResponseLoadSnapshotChunk{}
	}
	start := int(req.Chunk) * a.opts.ChunkSize
	if start > len(data) {
		return abci.ResponseLoadSnapshotChunk{}
	}
	end := start + a.opts.ChunkSize
	if end > len(data) {
		end = len(data)
	}
	return abci.ResponseLoadSnapshotChunk{Chunk: data[start:end]}
}

func (a *App) OfferSnapshot(req abci.RequestOfferSnapshot) abci.ResponseOfferSnapshot {
	s := req.Snapshot
	if s == nil {
		return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_REJECT}
	}
	if s.Format != SnapshotFormat {
		return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_REJECT_FORMAT}
	}
	id, err := cid.Cast(s.Metadata)
	if err != nil || s.Chunks == 0 {
		return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_REJECT}
	}
	if digest, err := cidutil.Digest(id); err != nil || string(digest) != string(s.Hash) {
		return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_REJECT}
	}
	empty, err := ledger.IsEmpty(a.rt.Ledger().KV())
	if err != nil || !empty {
		return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_ABORT}
	}

	a.mu.Lock()
	a.restore = &restoreState{
		id:      id,
		height:  s.Height,
		appHash: req.AppHash,
		chunks:  make([][]byte, s.Chunks),
	}
	a.mu.Unlock()
	a.log.Info("snapshot offered", "height", s.Height, "cid", id, "chunks", s.Chunks)
	return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_ACCEPT}
}

func (a *App) ApplySnapshotChunk(req abci.RequestApplySnapshotChunk) abci.ResponseApplySnapshotChunk {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.restore
	if r == nil {
		return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ABORT}
	}
	if int(req.Index) >= len(r.chunks) {
		a.restore = nil
		return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_REJECT_SNAPSHOT}
	}
	if r.chunks[req.Index] == nil {
		r.have++
	}
	r.chunks[req.Index] = append([]byte{}, req.Chunk...)
	if r.have < len(r.chunks) {
		return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ACCEPT}
	}

	var data []byte
	for _, c := range r.chunks {
		data = append(data, c...)
	}
	got, err := cidutil.Sum(data)
	if err != nil || got != r.id {
		a.log.Warn("snapshot content mismatch", "want", r.id, "got", got)
		a.restore = nil
		return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_REJECT_SNAPSHOT}
	}
	if err := ledger.Restore(a.rt.Ledger().KV(), data); err != nil {
		a.log.Error("restore snapshot", "err", err)
		a.restore = nil
		return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ABORT}
	}
	if err := a.rt.Reload(); err != nil {
		a.log.Error("reload after restore", "err", err)
		a.restore = nil
		return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ABORT}
	}
	hash, _ := a.rt.LatestHash(context.Background())
	if a.rt.Height() != r.height || (len(r.appHash) > 0 && string(hash[:]) != string(r.appHash)) {
		a.log.Error("restored state does not match snapshot", "height", a.rt.Height(), "want_height", r.height)
		a.restore = nil
		return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ABORT}
	}
	a.log.Info("snapshot restored", "height", r.height, "cid", r.id)
	a.restore = nil
	return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ACCEPT}
}
