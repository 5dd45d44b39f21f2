package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// mockConn implements wsConnection. Reads block until a frame is fed via
// feed or the connection is closed; writes are captured for assertions.
type mockConn struct {
	mu          sync.Mutex
	inbound     chan []byte
	written     chan []byte
	pings       chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
	writeErr    error
	pongHandler func(string) error
}

func newMockConn() *mockConn {
	return &mockConn{
		inbound: make(chan []byte, 16),
		written: make(chan []byte, 64),
		pings:   make(chan struct{}, 16),
		closed:  make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.inbound:
		return websocket.TextMessage, data, nil
	case <-m.closed:
		return 0, nil, errors.New("mock: connection closed")
	}
}

func (m *mockConn) WriteMessage(_ int, data []byte) error {
	m.mu.Lock()
	err := m.writeErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case m.written <- data:
	default:
	}
	return nil
}

func (m *mockConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	if messageType == websocket.PingMessage {
		select {
		case m.pings <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }

func (m *mockConn) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	m.pongHandler = h
	m.mu.Unlock()
}

func (m *mockConn) SetPingHandler(func(string) error) {}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *mockConn) failWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// pong invokes the registered pong handler, as gorilla does on an inbound
// pong control frame.
func (m *mockConn) pong() {
	m.mu.Lock()
	h := m.pongHandler
	m.mu.Unlock()
	if h != nil {
		_ = h("")
	}
}

// nextFrame returns the next frame written to the socket, decoded.
func (m *mockConn) nextFrame(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-m.written:
		var v map[string]any
		require.NoError(t, json.Unmarshal(data, &v))
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written to socket")
		return nil
	}
}
