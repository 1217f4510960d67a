// Package wire defines the gateway-to-backend RPC envelope and a JSON
// codec for it. Generated protobuf stubs would normally carry this
// traffic, but without a protoc/buf toolchain available this package
// hand-rolls the same "opaque service/method/payload envelope over
// google.golang.org/grpc" shape the original common/grpc/grpc_client.py
// used: callers address an RPC by (service_name, method_name) strings and
// a byte payload, not a statically generated stub per backend service.
package wire

import (
	"encoding/json"
	"fmt"
)

// CallRequest is the unary RPC envelope sent to a backend worker.
type CallRequest struct {
	ServiceName string            `json:"service_name"`
	MethodName  string            `json:"method_name"`
	Payload     []byte            `json:"payload"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CallResponse is the unary RPC envelope returned by a backend worker.
type CallResponse struct {
	Code    int32  `json:"code"`
	Message string `json:"message,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

// Codec implements google.golang.org/grpc/encoding.Codec over plain JSON,
// so CallRequest/CallResponse can ride genuine gRPC/HTTP2 transport
// (flow control, keepalive, multiplexing) without protobuf code
// generation. It is named "arcade-json" and applied per call with
// grpc.ForceCodec rather than registered globally or over the default
// "proto" codec, so any future migration to real generated stubs on the
// same ClientConn is non-breaking.
type Codec struct{}

const Name = "arcade-json"

func (Codec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal: %w", err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: unmarshal: %w", err)
	}
	return nil
}

func (Codec) Name() string { return Name }
