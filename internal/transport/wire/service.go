package wire

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service path every backend worker registers
// under; method dispatch within the service happens via CallRequest's own
// MethodName field rather than distinct gRPC methods, since the set of
// backend operations is data-driven (see internal/router) rather than
// fixed at compile time.
const ServiceName = "arcadegateway.v1.Backend"

// BackendClient is the minimal client-side surface the rpcclient package
// (component G) drives. A concrete implementation wraps a *grpc.ClientConn
// from the transport pool (component E).
type BackendClient interface {
	Call(ctx context.Context, req *CallRequest, opts ...grpc.CallOption) (*CallResponse, error)
	StreamCall(ctx context.Context, opts ...grpc.CallOption) (BackendStreamClient, error)
}

// BackendStreamClient is a bidirectional stream of CallRequest/CallResponse
// for pushing several frames over one HTTP/2 stream without a round trip
// per frame. It is reached through rpcclient.Client.StreamCall.
type BackendStreamClient interface {
	Send(*CallRequest) error
	Recv() (*CallResponse, error)
	CloseSend() error
}

const (
	callMethod       = "/" + ServiceName + "/Call"
	streamCallMethod = "/" + ServiceName + "/StreamCall"
)

type client struct {
	cc *grpc.ClientConn
}

// NewBackendClient builds a BackendClient over an existing connection from
// the transport pool.
func NewBackendClient(cc *grpc.ClientConn) BackendClient {
	return &client{cc: cc}
}

func (c *client) Call(ctx context.Context, req *CallRequest, opts ...grpc.CallOption) (*CallResponse, error) {
	resp := new(CallResponse)
	opts = append(opts, grpc.ForceCodec(Codec{}))
	if err := c.cc.Invoke(ctx, callMethod, req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *client) StreamCall(ctx context.Context, opts ...grpc.CallOption) (BackendStreamClient, error) {
	opts = append(opts, grpc.ForceCodec(Codec{}))
	desc := &grpc.StreamDesc{StreamName: "StreamCall", ClientStreams: true, ServerStreams: true}
	stream, err := c.cc.NewStream(ctx, desc, streamCallMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &streamClient{stream: stream}, nil
}

type streamClient struct {
	stream grpc.ClientStream
}

func (s *streamClient) Send(req *CallRequest) error { return s.stream.SendMsg(req) }

func (s *streamClient) Recv() (*CallResponse, error) {
	resp := new(CallResponse)
	if err := s.stream.RecvMsg(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *streamClient) CloseSend() error { return s.stream.CloseSend() }
