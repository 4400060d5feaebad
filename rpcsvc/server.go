package rpcsvc

import (
	"context"
	"encoding/binary"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"promphub.io/market/client"
)

// Server exposes a client.Backend over the Market gRPC service.
type Server struct {
	UnimplementedMarketServer
	Backend client.Backend
	Log     *slog.Logger
}

func (s *Server) backend() (client.Backend, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	return s.Backend, nil
}

func (s *Server) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

func parseAddress(v string) (solana.PublicKey, error) {
	k, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, status.Error(codes.InvalidArgument, "invalid address")
	}
	return k, nil
}

func (s *Server) SendTransaction(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	sig, err := b.SendTransaction(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	s.logger().Debug("transaction accepted", "signature", sig)
	return wrapperspb.String(sig.String()), nil
}

func (s *Server) GetAccountData(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	addr, err := parseAddress(in.GetValue())
	if err != nil {
		return nil, err
	}
	data, err := b.AccountData(ctx, addr)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(data), nil
}

func (s *Server) GetBalance(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	addr, err := parseAddress(in.GetValue())
	if err != nil {
		return nil, err
	}
	v, err := b.Balance(ctx, addr)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.UInt64(v), nil
}

func (s *Server) GetTokenBalance(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	addr, err := parseAddress(in.GetValue())
	if err != nil {
		return nil, err
	}
	v, err := b.TokenBalance(ctx, addr)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.UInt64(v), nil
}

func (s *Server) GetTokenMetadata(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	addr, err := parseAddress(in.GetValue())
	if err != nil {
		return nil, err
	}
	data, err := b.TokenMetadata(ctx, addr)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(data), nil
}

func (s *Server) GetLatestHash(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	h, err := b.LatestHash(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.String(h.String()), nil
}

func (s *Server) RequestAirdrop(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.UInt64Value, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	req := in.GetValue()
	if len(req) != solana.PublicKeyLength+8 {
		return nil, status.Error(codes.InvalidArgument, "airdrop request must be address followed by u64 amount")
	}
	addr := solana.PublicKeyFromBytes(req[:solana.PublicKeyLength])
	v, err := b.Airdrop(ctx, addr, binary.LittleEndian.Uint64(req[solana.PublicKeyLength:]))
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.UInt64(v), nil
}
