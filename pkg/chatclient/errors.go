package chatclient

import (
	"fmt"
)

// TransportError means the request never produced an HTTP response:
// connection refused, DNS failure, timeout or cancellation.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chat request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the service answered, but not with a usable reply.
// StatusCode is zero when the status was fine and the body was not.
type ProtocolError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat service returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("invalid chat service response: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
