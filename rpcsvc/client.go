package rpcsvc

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client implements client.Backend over the Market gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client MarketClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra options, e.g. a context dialer for tests.
	Options []grpc.DialOption
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Options...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewMarketClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

func (c *Client) SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.SendTransaction(ctx, wrapperspb.Bytes(raw))
	if err != nil {
		return solana.Signature{}, mapRPC(err)
	}
	sig, err := solana.SignatureFromBase58(reply.GetValue())
	if err != nil {
		return solana.Signature{}, fmt.Errorf("rpcsvc: bad signature in reply: %w", err)
	}
	return sig, nil
}

func (c *Client) LatestHash(ctx context.Context) (solana.Hash, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.GetLatestHash(ctx, &emptypb.Empty{})
	if err != nil {
		return solana.Hash{}, mapRPC(err)
	}
	h, err := solana.HashFromBase58(reply.GetValue())
	if err != nil {
		return solana.Hash{}, fmt.Errorf("rpcsvc: bad hash in reply: %w", err)
	}
	return h, nil
}

func (c *Client) AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.GetAccountData(ctx, wrapperspb.String(addr.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.GetBalance(ctx, wrapperspb.String(addr.String()))
	if err != nil {
		return 0, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) TokenBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.GetTokenBalance(ctx, wrapperspb.String(addr.String()))
	if err != nil {
		return 0, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) TokenMetadata(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	reply, err := c.client.GetTokenMetadata(ctx, wrapperspb.String(addr.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) Airdrop(ctx context.Context, addr solana.PublicKey, amount uint64) (uint64, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	req := make([]byte, solana.PublicKeyLength+8)
	copy(req, addr[:])
	binary.LittleEndian.PutUint64(req[solana.PublicKeyLength:], amount)
	reply, err := c.client.RequestAirdrop(ctx, wrapperspb.Bytes(req))
	if err != nil {
		return 0, mapRPC(err)
	}
	return reply.GetValue(), nil
}
