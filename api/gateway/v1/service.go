package gatewayv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	MarketDataServiceName = "bbgo.MarketDataService"
	UserDataServiceName   = "bbgo.UserDataService"
	TradingServiceName    = "bbgo.TradingService"

	MethodSubscribe         = "/" + MarketDataServiceName + "/Subscribe"
	MethodQueryKLines       = "/" + MarketDataServiceName + "/QueryKLines"
	MethodSubscribeUserData = "/" + UserDataServiceName + "/SubscribeUserData"
	MethodSubmitOrder       = "/" + TradingServiceName + "/SubmitOrder"
	MethodCancelOrder       = "/" + TradingServiceName + "/CancelOrder"
	MethodQueryOrder        = "/" + TradingServiceName + "/QueryOrder"
	MethodQueryOrders       = "/" + TradingServiceName + "/QueryOrders"
	MethodQueryTrades       = "/" + TradingServiceName + "/QueryTrades"
)

// EventStream is the server side of a SubscribeResponse stream.
type EventStream interface {
	Send(*SubscribeResponse) error
	grpc.ServerStream
}

// EventReceiver is the client side of a SubscribeResponse stream.
type EventReceiver interface {
	Recv() (*SubscribeResponse, error)
	grpc.ClientStream
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(m *SubscribeResponse) error {
	return s.ServerStream.SendMsg(m)
}

type eventReceiver struct {
	grpc.ClientStream
}

func (r *eventReceiver) Recv() (*SubscribeResponse, error) {
	m := new(SubscribeResponse)
	if err := r.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func openEventStream(ctx context.Context, cc grpc.ClientConnInterface, desc *grpc.StreamDesc, method string, in Message, opts ...grpc.CallOption) (EventReceiver, error) {
	stream, err := cc.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &eventReceiver{stream}, nil
}

// unaryHandler adapts a typed unary method to grpc.MethodHandler.
func unaryHandler[Req any, Resp any](method string, call func(srv any, ctx context.Context, req *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// MarketDataService

type MarketDataServiceClient interface {
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (EventReceiver, error)
	QueryKLines(ctx context.Context, in *QueryKLinesRequest, opts ...grpc.CallOption) (*QueryKLinesResponse, error)
}

type marketDataServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMarketDataServiceClient(cc grpc.ClientConnInterface) MarketDataServiceClient {
	return &marketDataServiceClient{cc}
}

func (c *marketDataServiceClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (EventReceiver, error) {
	return openEventStream(ctx, c.cc, &MarketDataServiceDesc.Streams[0], MethodSubscribe, in, opts...)
}

func (c *marketDataServiceClient) QueryKLines(ctx context.Context, in *QueryKLinesRequest, opts ...grpc.CallOption) (*QueryKLinesResponse, error) {
	out := new(QueryKLinesResponse)
	if err := c.cc.Invoke(ctx, MethodQueryKLines, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// MarketDataServiceServer is implemented by market-data servers, which must
// embed UnimplementedMarketDataServiceServer.
type MarketDataServiceServer interface {
	Subscribe(*SubscribeRequest, EventStream) error
	QueryKLines(context.Context, *QueryKLinesRequest) (*QueryKLinesResponse, error)
	mustEmbedUnimplementedMarketDataServiceServer()
}

type UnimplementedMarketDataServiceServer struct{}

func (UnimplementedMarketDataServiceServer) Subscribe(*SubscribeRequest, EventStream) error {
	return status.Error(codes.Unimplemented, "method Subscribe not implemented")
}

func (UnimplementedMarketDataServiceServer) QueryKLines(context.Context, *QueryKLinesRequest) (*QueryKLinesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method QueryKLines not implemented")
}

func (UnimplementedMarketDataServiceServer) mustEmbedUnimplementedMarketDataServiceServer() {}

func RegisterMarketDataServiceServer(s grpc.ServiceRegistrar, srv MarketDataServiceServer) {
	s.RegisterService(&MarketDataServiceDesc, srv)
}

var MarketDataServiceDesc = grpc.ServiceDesc{
	ServiceName: MarketDataServiceName,
	HandlerType: (*MarketDataServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "QueryKLines",
			Handler: unaryHandler(MethodQueryKLines, func(srv any, ctx context.Context, in *QueryKLinesRequest) (*QueryKLinesResponse, error) {
				return srv.(MarketDataServiceServer).QueryKLines(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Subscribe",
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(SubscribeRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(MarketDataServiceServer).Subscribe(in, &eventStream{stream})
			},
			ServerStreams: true,
		},
	},
	Metadata: "bbgo.proto",
}

// UserDataService

type UserDataServiceClient interface {
	SubscribeUserData(ctx context.Context, in *Empty, opts ...grpc.CallOption) (EventReceiver, error)
}

type userDataServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewUserDataServiceClient(cc grpc.ClientConnInterface) UserDataServiceClient {
	return &userDataServiceClient{cc}
}

func (c *userDataServiceClient) SubscribeUserData(ctx context.Context, in *Empty, opts ...grpc.CallOption) (EventReceiver, error) {
	return openEventStream(ctx, c.cc, &UserDataServiceDesc.Streams[0], MethodSubscribeUserData, in, opts...)
}

type UserDataServiceServer interface {
	SubscribeUserData(*Empty, EventStream) error
	mustEmbedUnimplementedUserDataServiceServer()
}

type UnimplementedUserDataServiceServer struct{}

func (UnimplementedUserDataServiceServer) SubscribeUserData(*Empty, EventStream) error {
	return status.Error(codes.Unimplemented, "method SubscribeUserData not implemented")
}

func (UnimplementedUserDataServiceServer) mustEmbedUnimplementedUserDataServiceServer() {}

func RegisterUserDataServiceServer(s grpc.ServiceRegistrar, srv UserDataServiceServer) {
	s.RegisterService(&UserDataServiceDesc, srv)
}

var UserDataServiceDesc = grpc.ServiceDesc{
	ServiceName: UserDataServiceName,
	HandlerType: (*UserDataServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "SubscribeUserData",
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(UserDataServiceServer).SubscribeUserData(in, &eventStream{stream})
			},
			ServerStreams: true,
		},
	},
	Metadata: "bbgo.proto",
}

// TradingService

type TradingServiceClient interface {
	SubmitOrder(ctx context.Context, in *SubmitOrderRequest, opts ...grpc.CallOption) (*SubmitOrderResponse, error)
	CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error)
	QueryOrder(ctx context.Context, in *QueryOrderRequest, opts ...grpc.CallOption) (*QueryOrderResponse, error)
	QueryOrders(ctx context.Context, in *QueryOrdersRequest, opts ...grpc.CallOption) (*QueryOrdersResponse, error)
	QueryTrades(ctx context.Context, in *QueryTradesRequest, opts ...grpc.CallOption) (*QueryTradesResponse, error)
}

type tradingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTradingServiceClient(cc grpc.ClientConnInterface) TradingServiceClient {
	return &tradingServiceClient{cc}
}

func (c *tradingServiceClient) SubmitOrder(ctx context.Context, in *SubmitOrderRequest, opts ...grpc.CallOption) (*SubmitOrderResponse, error) {
	out := new(SubmitOrderResponse)
	if err := c.cc.Invoke(ctx, MethodSubmitOrder, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tradingServiceClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error) {
	out := new(CancelOrderResponse)
	if err := c.cc.Invoke(ctx, MethodCancelOrder, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tradingServiceClient) QueryOrder(ctx context.Context, in *QueryOrderRequest, opts ...grpc.CallOption) (*QueryOrderResponse, error) {
	out := new(QueryOrderResponse)
	if err := c.cc.Invoke(ctx, MethodQueryOrder, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tradingServiceClient) QueryOrders(ctx context.Context, in *QueryOrdersRequest, opts ...grpc.CallOption) (*QueryOrdersResponse, error) {
	out := new(QueryOrdersResponse)
	if err := c.cc.Invoke(ctx, MethodQueryOrders, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tradingServiceClient) QueryTrades(ctx context.Context, in *QueryTradesRequest, opts ...grpc.CallOption) (*QueryTradesResponse, error) {
	out := new(QueryTradesResponse)
	if err := c.cc.Invoke(ctx, MethodQueryTrades, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type TradingServiceServer interface {
	SubmitOrder(context.Context, *SubmitOrderRequest) (*SubmitOrderResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
	QueryOrder(context.Context, *QueryOrderRequest) (*QueryOrderResponse, error)
	QueryOrders(context.Context, *QueryOrdersRequest) (*QueryOrdersResponse, error)
	QueryTrades(context.Context, *QueryTradesRequest) (*QueryTradesResponse, error)
	mustEmbedUnimplementedTradingServiceServer()
}

type UnimplementedTradingServiceServer struct{}

func (UnimplementedTradingServiceServer) SubmitOrder(context.Context, *SubmitOrderRequest) (*SubmitOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitOrder not implemented")
}

func (UnimplementedTradingServiceServer) CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelOrder not implemented")
}

func (UnimplementedTradingServiceServer) QueryOrder(context.Context, *QueryOrderRequest) (*QueryOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method QueryOrder not implemented")
}

func (UnimplementedTradingServiceServer) QueryOrders(context.Context, *QueryOrdersRequest) (*QueryOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method QueryOrders not implemented")
}

func (UnimplementedTradingServiceServer) QueryTrades(context.Context, *QueryTradesRequest) (*QueryTradesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method QueryTrades not implemented")
}

func (UnimplementedTradingServiceServer) mustEmbedUnimplementedTradingServiceServer() {}

func RegisterTradingServiceServer(s grpc.ServiceRegistrar, srv TradingServiceServer) {
	s.RegisterService(&TradingServiceDesc, srv)
}

var TradingServiceDesc = grpc.ServiceDesc{
	ServiceName: TradingServiceName,
	HandlerType: (*TradingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitOrder",
			Handler: unaryHandler(MethodSubmitOrder, func(srv any, ctx context.Context, in *SubmitOrderRequest) (*SubmitOrderResponse, error) {
				return srv.(TradingServiceServer).SubmitOrder(ctx, in)
			}),
		},
		{
			MethodName: "CancelOrder",
			Handler: unaryHandler(MethodCancelOrder, func(srv any, ctx context.Context, in *CancelOrderRequest) (*CancelOrderResponse, error) {
				return srv.(TradingServiceServer).CancelOrder(ctx, in)
			}),
		},
		{
			MethodName: "QueryOrder",
			Handler: unaryHandler(MethodQueryOrder, func(srv any, ctx context.Context, in *QueryOrderRequest) (*QueryOrderResponse, error) {
				return srv.(TradingServiceServer).QueryOrder(ctx, in)
			}),
		},
		{
			MethodName: "QueryOrders",
			Handler: unaryHandler(MethodQueryOrders, func(srv any, ctx context.Context, in *QueryOrdersRequest) (*QueryOrdersResponse, error) {
				return srv.(TradingServiceServer).QueryOrders(ctx, in)
			}),
		},
		{
			MethodName: "QueryTrades",
			Handler: unaryHandler(MethodQueryTrades, func(srv any, ctx context.Context, in *QueryTradesRequest) (*QueryTradesResponse, error) {
				return srv.(TradingServiceServer).QueryTrades(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bbgo.proto",
}
