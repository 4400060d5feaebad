package abciapp

import (
	"context"

	"github.com/gagliardetto/solana-go"
	abci "github.com/tendermint/tendermint/abci/types"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	coretypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"

	"promphub.io/market/chain"
	"promphub.io/market/market"
)

// Broadcaster submits a transaction to the consensus engine and waits for
// its block. *rpchttp.HTTP implements it.
type Broadcaster interface {
	BroadcastTxCommit(ctx context.Context, tx tmtypes.Tx) (*coretypes.ResultBroadcastTxCommit, error)
}

// NewHTTPBroadcaster connects to a Tendermint RPC endpoint such as
// "http://127.0.0.1:26657".
func NewHTTPBroadcaster(remote string) (Broadcaster, error) {
	c, err := rpchttp.New(remote, "/websocket")
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Gateway is the client backend of a node running under consensus. Reads
// come from the local runtime; writes go through the Broadcaster so every
// validator executes them in the same order.
type Gateway struct {
	*chain.Runtime
	Broadcaster Broadcaster
}

func (g *Gateway) SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	if g.Broadcaster == nil {
		return solana.Signature{}, chain.ErrReadOnly
	}
	res, err := g.Broadcaster.BroadcastTxCommit(ctx, tmtypes.Tx(raw))
	if err != nil {
		return solana.Signature{}, market.Wrap(market.CodeInternal, err, "broadcast")
	}
	if res.CheckTx.Code != abci.CodeTypeOK {
		return solana.Signature{}, market.FromCode(market.Code(res.CheckTx.Code), res.CheckTx.Log)
	}
	if res.DeliverTx.Code != abci.CodeTypeOK {
		return solana.Signature{}, market.FromCode(market.Code(res.DeliverTx.Code), res.DeliverTx.Log)
	}
	rc, err := chain.DecodeReceipt(res.DeliverTx.Data)
	if err != nil {
		return solana.Signature{}, market.Wrap(market.CodeInternal, err, "decode receipt at height %d", res.Height)
	}
	return rc.Signature, nil
}
