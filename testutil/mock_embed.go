package testutil

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// MockEmbedServer simulates a websocket embedding service for testing.
// Frames follow the wsembed protocol: {"op","id","text"} in and
// {"op":"result","id","embedding"|"error"} out.
type MockEmbedServer struct {
	listener net.Listener
	server   *http.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	mode     string
	vectors  map[string][]float32
	requests int32
}

// Failure modes define how the mock server behaves.
const (
	ModeNormal     = "normal"
	ModeError      = "error"      // reply with an error frame
	ModeSilent     = "silent"     // read requests but never reply
	ModeDisconnect = "disconnect" // close the connection on the first request
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewMockEmbedServer creates a mock server in ModeNormal.
func NewMockEmbedServer() *MockEmbedServer {
	return &MockEmbedServer{
		mode:    ModeNormal,
		vectors: make(map[string][]float32),
	}
}

// Start begins listening on a dynamic port.
func (m *MockEmbedServer) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	m.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleWebSocket)
	m.server = &http.Server{Handler: mux}

	go func() {
		_ = m.server.Serve(m.listener)
	}()
	return nil
}

// Stop closes every connection and shuts the server down.
func (m *MockEmbedServer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		_ = c.Close()
	}
	m.conns = nil
	if m.server != nil {
		_ = m.server.Close()
	}
	return nil
}

// URL returns the ws:// address of the server.
func (m *MockEmbedServer) URL() string {
	if m.listener == nil {
		return ""
	}
	return "ws://" + m.listener.Addr().String() + "/"
}

// SetFailureMode configures how the server responds to requests.
func (m *MockEmbedServer) SetFailureMode(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// SetVector fixes the embedding returned for text. Unknown text gets a
// deterministic vector derived from its length and first byte.
func (m *MockEmbedServer) SetVector(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vec
}

// Requests returns the number of embed and ping frames received.
func (m *MockEmbedServer) Requests() int {
	return int(atomic.LoadInt32(&m.requests))
}

type embedFrame struct {
	Op        string    `json:"op"`
	ID        int       `json:"id"`
	Text      string    `json:"text,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (m *MockEmbedServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()
	defer conn.Close()

	for {
		var in embedFrame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		atomic.AddInt32(&m.requests, 1)

		m.mu.Lock()
		mode := m.mode
		vec, known := m.vectors[in.Text]
		m.mu.Unlock()

		out := embedFrame{Op: "result", ID: in.ID}
		switch mode {
		case ModeSilent:
			continue
		case ModeDisconnect:
			return
		case ModeError:
			out.Error = "model not loaded"
		default:
			switch {
			case in.Op == "ping":
				out.Op = "pong"
			case known:
				out.Embedding = vec
			default:
				out.Embedding = derivedVector(in.Text)
			}
		}
		if err := conn.WriteJSON(out); err != nil {
			return
		}
	}
}

func derivedVector(text string) []float32 {
	text = strings.TrimSpace(text)
	if text == "" {
		return []float32{0, 0, 1}
	}
	return []float32{float32(len(text)), float32(text[0]), 1}
}
