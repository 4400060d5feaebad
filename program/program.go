// Package program is the marketplace's transition engine.
//
// Process decodes one instruction, validates its account list the way the
// deployed program's account constraints do, and applies the operation to a
// ledger transaction. It never commits; the caller commits or discards the
// transaction as a whole, so a failed operation leaves no trace.
package program

import (
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"promphub.io/market/codec"
	"promphub.io/market/ledger"
	"promphub.io/market/market"
	"promphub.io/market/txn"
)

// DefaultProgramID is the address of the deployed marketplace program.
var DefaultProgramID = solana.MustPublicKeyFromBase58("CBrB6yQSi9pcxKuRR1uPjj6NLipfpZKYYT71c3gaFf1Y")

// Policy holds the operator-tunable limits.
type Policy struct {
	MaxFeeBps     uint64
	MaxRoyaltyBps uint64
	// AllowSelfPurchase lets a seller buy back their own listing.
	AllowSelfPurchase bool
}

func DefaultPolicy() Policy {
	return Policy{MaxFeeBps: market.MaxBps, MaxRoyaltyBps: market.MaxBps}
}

type Program struct {
	ID     solana.PublicKey
	Policy Policy
}

func New(id solana.PublicKey, policy Policy) *Program {
	if policy.MaxFeeBps == 0 || policy.MaxFeeBps > market.MaxBps {
		policy.MaxFeeBps = market.MaxBps
	}
	if policy.MaxRoyaltyBps == 0 || policy.MaxRoyaltyBps > market.MaxBps {
		policy.MaxRoyaltyBps = market.MaxBps
	}
	return &Program{ID: id, Policy: policy}
}

// Result is what a successful instruction produced.
type Result struct {
	Events []market.Event
	Logs   []string
}

func (r *Result) logf(format string, args ...any) {
	r.Logs = append(r.Logs, "Program log: "+fmt.Sprintf(format, args...))
}

func (r *Result) emit(e market.Event) error {
	b, err := market.EncodeEvent(e)
	if err != nil {
		return market.Wrap(market.CodeInternal, err, "encode %s", e.EventName())
	}
	r.Events = append(r.Events, e)
	if b != nil {
		r.Logs = append(r.Logs, "Program data: "+base64.StdEncoding.EncodeToString(b))
	}
	return nil
}

type handler func(p *Program, tx *ledger.Tx, a accounts, args []byte, r *Result) error

var handlers = map[codec.Discriminator]struct {
	name string
	fn   handler
}{
	codec.InstructionDiscriminator(InstructionInitialize):  {"Initialize", (*Program).initialize},
	codec.InstructionDiscriminator(InstructionCloseConfig): {"CloseConfig", (*Program).closeConfig},
	codec.InstructionDiscriminator(InstructionCreateAsset): {"CreatePrompt", (*Program).createAsset},
	codec.InstructionDiscriminator(InstructionList):        {"ListPrompt", (*Program).list},
	codec.InstructionDiscriminator(InstructionDelist):      {"DelistPrompt", (*Program).delist},
	codec.InstructionDiscriminator(InstructionBuy):         {"BuyPrompt", (*Program).buy},
}

// Process executes ix against tx.
func (p *Program) Process(tx *ledger.Tx, ix txn.Instruction) (*Result, error) {
	if !ix.ProgramID.Equals(p.ID) {
		return nil, market.New(market.CodeInvalidProgram, "instruction for %s", ix.ProgramID)
	}
	d, args, err := codec.Split(ix.Data)
	if err != nil {
		return nil, market.Wrap(market.CodeInstructionNotFound, err, "instruction data is %d bytes", len(ix.Data))
	}
	h, ok := handlers[d]
	if !ok {
		return nil, market.New(market.CodeInstructionNotFound, "discriminator %s", d)
	}
	r := &Result{}
	r.logf("Instruction: %s", h.name)
	if err := h.fn(p, tx, accounts{tx: tx, metas: ix.Accounts}, args, r); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeArgs(args []byte, v any) error {
	if err := codec.Unmarshal(args, v); err != nil {
		return market.Wrap(market.CodeInstructionDidNotDeserialize, err, "%v", err)
	}
	return nil
}
