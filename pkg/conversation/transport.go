package conversation

import "context"

// Request is what the store hands to a Transport for one exchange.
// SessionID is empty until the service has issued one.
type Request struct {
	Message   string
	SessionID string
}

// Reply is a successful answer from the chat service.
type Reply struct {
	Response  string
	SessionID string
}

// Transport performs exactly one round trip to the chat service per call.
// Implementations must not retry.
type Transport interface {
	Send(ctx context.Context, req Request) (Reply, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request) (Reply, error)

func (f TransportFunc) Send(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}
