package webchat

import (
	"github.com/go-go-golems/twin/pkg/conversation"
)

const (
	FrameSubmit   = "submit"
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// ClientFrame is a message sent by the browser.
type ClientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerFrame is a message sent to the browser.
type ServerFrame struct {
	Type     string                 `json:"type"`
	Snapshot *conversation.Snapshot `json:"snapshot,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func snapshotFrame(snap conversation.Snapshot) ServerFrame {
	return ServerFrame{Type: FrameSnapshot, Snapshot: &snap}
}

func errorFrame(msg string) ServerFrame {
	return ServerFrame{Type: FrameError, Error: msg}
}
