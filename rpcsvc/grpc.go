package rpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "promphub.market.v1.Market"

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

// MarketServer is the server API for the Market gRPC service.
//
// The service uses protobuf well-known types only, so no protoc/codegen
// toolchain is needed. Addresses and hashes travel base58-encoded.
type MarketServer interface {
	SendTransaction(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	GetAccountData(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	GetBalance(context.Context, *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error)
	GetTokenBalance(context.Context, *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error)
	// GetTokenMetadata returns the borsh-encoded token metadata stored at
	// an address.
	GetTokenMetadata(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	GetLatestHash(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	// RequestAirdrop takes a 32-byte address followed by a little-endian
	// u64 amount and returns the new balance.
	RequestAirdrop(context.Context, *wrapperspb.BytesValue) (*wrapperspb.UInt64Value, error)
}

// UnimplementedMarketServer can be embedded to have forward compatible implementations.
type UnimplementedMarketServer struct{}

func (UnimplementedMarketServer) SendTransaction(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method SendTransaction not implemented")
}
func (UnimplementedMarketServer) GetAccountData(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAccountData not implemented")
}
func (UnimplementedMarketServer) GetBalance(context.Context, *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method GetBalance not implemented")
}
func (UnimplementedMarketServer) GetTokenBalance(context.Context, *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTokenBalance not implemented")
}
func (UnimplementedMarketServer) GetTokenMetadata(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTokenMetadata not implemented")
}
func (UnimplementedMarketServer) GetLatestHash(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetLatestHash not implemented")
}
func (UnimplementedMarketServer) RequestAirdrop(context.Context, *wrapperspb.BytesValue) (*wrapperspb.UInt64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestAirdrop not implemented")
}

// RegisterMarketServer registers the Market service on a gRPC server.
func RegisterMarketServer(s grpc.ServiceRegistrar, srv MarketServer) {
	s.RegisterService(&Market_ServiceDesc, srv)
}

// MarketClient is the client API for the Market gRPC service.
type MarketClient interface {
	SendTransaction(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	GetAccountData(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	GetBalance(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error)
	GetTokenBalance(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error)
	GetTokenMetadata(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	GetLatestHash(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	RequestAirdrop(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error)
}

type marketClient struct{ cc grpc.ClientConnInterface }

func NewMarketClient(cc grpc.ClientConnInterface) MarketClient { return &marketClient{cc: cc} }

func invoke[Out any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Out, error) {
	out := new(Out)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *marketClient) SendTransaction(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, "SendTransaction", in, opts...)
}

func (c *marketClient) GetAccountData(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke[wrapperspb.BytesValue](ctx, c.cc, "GetAccountData", in, opts...)
}

func (c *marketClient) GetBalance(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error) {
	return invoke[wrapperspb.UInt64Value](ctx, c.cc, "GetBalance", in, opts...)
}

func (c *marketClient) GetTokenBalance(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error) {
	return invoke[wrapperspb.UInt64Value](ctx, c.cc, "GetTokenBalance", in, opts...)
}

func (c *marketClient) GetTokenMetadata(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke[wrapperspb.BytesValue](ctx, c.cc, "GetTokenMetadata", in, opts...)
}

func (c *marketClient) GetLatestHash(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, "GetLatestHash", in, opts...)
}

func (c *marketClient) RequestAirdrop(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.UInt64Value, error) {
	return invoke[wrapperspb.UInt64Value](ctx, c.cc, "RequestAirdrop", in, opts...)
}

// unary adapts a typed MarketServer method to a grpc.MethodHandler.
func unary[In, Out any](method string, call func(MarketServer, context.Context, *In) (*Out, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			out, err := call(srv.(MarketServer), ctx, req.(*In))
			if err != nil {
				return nil, err
			}
			return out, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, handler)
	}
}

// Market_ServiceDesc is the grpc.ServiceDesc for the Market service.
var Market_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MarketServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendTransaction", Handler: unary("SendTransaction", MarketServer.SendTransaction)},
		{MethodName: "GetAccountData", Handler: unary("GetAccountData", MarketServer.GetAccountData)},
		{MethodName: "GetBalance", Handler: unary("GetBalance", MarketServer.GetBalance)},
		{MethodName: "GetTokenBalance", Handler: unary("GetTokenBalance", MarketServer.GetTokenBalance)},
		{MethodName: "GetTokenMetadata", Handler: unary("GetTokenMetadata", MarketServer.GetTokenMetadata)},
		{MethodName: "GetLatestHash", Handler: unary("GetLatestHash", MarketServer.GetLatestHash)},
		{MethodName: "RequestAirdrop", Handler: unary("RequestAirdrop", MarketServer.RequestAirdrop)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "market.proto",
}
