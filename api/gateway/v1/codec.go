package gatewayv1

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
)

// Codec is a gRPC codec for the gateway schema. It keeps the "proto"
// content subtype so existing protobuf producers and consumers interoperate,
// and delegates generated messages (health checks) to the protobuf runtime.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case Message:
		return Marshal(m)
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("codec: cannot marshal %T", v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case Message:
		return Unmarshal(data, m)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("codec: cannot unmarshal into %T", v)
}

// ServerCodec installs Codec on a gRPC server.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(Codec{})
}

// ClientCodec installs Codec on every call of a client connection.
func ClientCodec() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{}))
}
