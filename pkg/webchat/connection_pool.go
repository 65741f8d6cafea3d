package webchat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnectionPool tracks the open widget connections. Writes to a
// connection are serialized by the pool; a connection whose write fails is
// dropped and closed.
type ConnectionPool struct {
	mu           sync.Mutex
	conns        map[wsConn]*sync.Mutex
	writeTimeout time.Duration
}

func NewConnectionPool(writeTimeout time.Duration) *ConnectionPool {
	return &ConnectionPool{
		conns:        map[wsConn]*sync.Mutex{},
		writeTimeout: writeTimeout,
	}
}

func (cp *ConnectionPool) Add(conn wsConn) {
	if conn == nil {
		return
	}
	cp.mu.Lock()
	if _, ok := cp.conns[conn]; !ok {
		cp.conns[conn] = &sync.Mutex{}
	}
	cp.mu.Unlock()
}

func (cp *ConnectionPool) Remove(conn wsConn) {
	if conn == nil {
		return
	}
	cp.mu.Lock()
	delete(cp.conns, conn)
	cp.mu.Unlock()
	_ = conn.Close()
}

// Send writes frame to conn as a JSON text message.
func (cp *ConnectionPool) Send(conn wsConn, frame ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "failed to encode frame")
	}

	cp.mu.Lock()
	writeMu, ok := cp.conns[conn]
	cp.mu.Unlock()
	if !ok {
		return errors.New("connection is not in the pool")
	}

	writeMu.Lock()
	if cp.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(cp.writeTimeout))
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	writeMu.Unlock()

	if err != nil {
		log.Warn().Err(err).Str("component", "webchat").Str("frame", frame.Type).Msg("ws send failed, dropping connection")
		cp.Remove(conn)
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

func (cp *ConnectionPool) Count() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.conns)
}

func (cp *ConnectionPool) CloseAll() {
	cp.mu.Lock()
	conns := make([]wsConn, 0, len(cp.conns))
	for conn := range cp.conns {
		conns = append(conns, conn)
		delete(cp.conns, conn)
	}
	cp.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
