package rpcsvc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"promphub.io/market/chain"
	"promphub.io/market/client"
	"promphub.io/market/ledger"
	"promphub.io/market/market"
	"promphub.io/market/program"
	"promphub.io/market/store/memory"
)

var _ client.Backend = (*Client)(nil)

func startServer(t *testing.T, opts chain.Options) (*chain.Runtime, *Client) {
	t.Helper()
	rt, err := chain.New(ledger.New(memory.New()), program.New(program.DefaultProgramID, program.DefaultPolicy()), opts)
	if err != nil {
		t.Fatalf("chain.New: %v", err)
	}

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterMarketServer(srv, &Server{Backend: rt})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	c, err := Dial("bufnet", DialOptions{Timeout: 2 * time.Second, Options: []grpc.DialOption{grpc.WithContextDialer(dialer)}})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	c.Timeout = 5 * time.Second
	t.Cleanup(func() { c.Close() })
	return rt, c
}

func TestMarketOverGRPC(t *testing.T) {
	ctx := context.Background()
	rt, rpc := startServer(t, chain.Options{FeePerSignature: chain.DefaultFeePerSignature, Faucet: true})

	newClient := func(lamports uint64) *client.Client {
		k, err := solana.NewRandomPrivateKey()
		if err != nil {
			t.Fatalf("NewRandomPrivateKey: %v", err)
		}
		v, err := rpc.Airdrop(ctx, k.PublicKey(), lamports)
		if err != nil || v != lamports {
			t.Fatalf("Airdrop = %d, %v", v, err)
		}
		return client.New(rpc, program.DefaultProgramID, k)
	}
	admin, seller, buyer := newClient(market.LamportsPerSOL), newClient(market.LamportsPerSOL), newClient(market.LamportsPerSOL)

	want, _ := rt.LatestHash(ctx)
	got, err := rpc.LatestHash(ctx)
	if err != nil || got != want {
		t.Fatalf("LatestHash = %s, %v; want %s", got, err, want)
	}

	if _, err := admin.Initialize(ctx, 250); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	mint, sig, err := seller.CreateAsset(ctx, "ipfs://over-grpc", 100)
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if sig == (solana.Signature{}) {
		t.Fatalf("empty signature")
	}
	md, err := buyer.FetchMetadata(ctx, mint)
	if err != nil || md.URI != "ipfs://over-grpc" || md.SellerFeeBasisPoints != 100 {
		t.Fatalf("FetchMetadata = %+v, %v", md, err)
	}
	if _, err := buyer.FetchMetadata(ctx, solana.NewWallet().PublicKey()); market.CodeOf(err) != market.CodeAccountNotInitialized {
		t.Fatalf("expected AccountNotInitialized, got %v", err)
	}
	if _, err := seller.List(ctx, mint, 1_000_000); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := buyer.Buy(ctx, mint); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if n, err := buyer.TokenBalance(ctx, buyer.Address(), mint); err != nil || n != 1 {
		t.Fatalf("TokenBalance = %d, %v", n, err)
	}

	// Errors keep their code across the wire.
	_, err = buyer.Buy(ctx, mint)
	if !errors.Is(err, market.ErrNotActive) {
		t.Fatalf("expected NotActive, got %v", err)
	}
	if !market.IsKind(err, market.KindPrecondition) {
		t.Fatalf("kind lost: %v", err)
	}
	_, err = seller.List(ctx, mint, 0)
	if market.CodeOf(err) != market.CodeInvalidPrice {
		t.Fatalf("expected InvalidPrice, got %v", err)
	}
}

func TestErrorMapping(t *testing.T) {
	err := mapErr(market.New(market.CodeStaleTransaction, "hash gone"))
	st, _ := status.FromError(err)
	if st.Code() != codes.Aborted {
		t.Fatalf("conflict kind mapped to %s", st.Code())
	}
	back := mapRPC(err)
	var me *market.Error
	if !errors.As(back, &me) || me.Code != market.CodeStaleTransaction || me.Message != "hash gone" {
		t.Fatalf("mapRPC = %v", back)
	}

	if got := mapRPC(mapErr(chain.ErrReadOnly)); got != chain.ErrReadOnly {
		t.Fatalf("read-only mapped to %v", got)
	}
	plain := errors.New("disk on fire")
	st, _ = status.FromError(mapErr(plain))
	if st.Code() != codes.Internal {
		t.Fatalf("plain error mapped to %s", st.Code())
	}
}

func TestServerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	_, rpc := startServer(t, chain.Options{})

	_, err := rpc.client.GetBalance(ctx, wrapperspb.String("not base58!"))
	if st, _ := status.FromError(err); st.Code() != codes.InvalidArgument {
		t.Fatalf("bad address: %v", err)
	}
	_, err = rpc.client.RequestAirdrop(ctx, wrapperspb.Bytes([]byte{1, 2, 3}))
	if st, _ := status.FromError(err); st.Code() != codes.InvalidArgument {
		t.Fatalf("short airdrop request: %v", err)
	}
	_, err = rpc.Airdrop(ctx, solana.NewWallet().PublicKey(), 1)
	if market.CodeOf(err) != market.CodeFaucetDisabled {
		t.Fatalf("faucet off: %v", err)
	}
	_, err = rpc.SendTransaction(ctx, []byte("garbage"))
	if market.CodeOf(err) != market.CodeMalformedTransaction {
		t.Fatalf("garbage transaction: %v", err)
	}
}

func TestNilBackend(t *testing.T) {
	var s *Server
	if _, err := s.GetLatestHash(context.Background(), nil); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("nil server: %v", err)
	}
}
