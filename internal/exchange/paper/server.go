package paper

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"tradeguard/internal/core"
)

// pushMessage is the wire frame the paper venue's push server broadcasts to
// every connected stream consumer — the paper-trading analogue of a real
// exchange's user-data/market-data websocket feed.
type pushMessage struct {
	Kind     string               `json:"kind"` // "fill" or "snapshot"
	Fill     *core.FillEvent      `json:"fill,omitempty"`
	Symbol   string               `json:"symbol,omitempty"`
	Snapshot *core.MarketSnapshot `json:"snapshot,omitempty"`
}

// pushServer is a minimal websocket broadcast server: every client that
// connects receives every message published after it joined.
type pushServer struct {
	mu       sync.Mutex
	upgrader websocket.Upgrader
	conns    map[*websocket.Conn]struct{}
	listener net.Listener
	logger   core.ILogger
}

func newPushServer(logger core.ILogger) (*pushServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &pushServer{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		conns:    make(map[*websocket.Conn]struct{}),
		listener: ln,
		logger:   logger.WithField("component", "paper_exchange_push_server"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	go func() {
		_ = http.Serve(ln, mux)
	}()
	return s, nil
}

func (s *pushServer) addr() string { return s.listener.Addr().String() }

func (s *pushServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("push server upgrade failed", "error", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	// Drain and discard any client frames; this feed is one-directional.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *pushServer) broadcast(msg pushMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.WriteMessage(websocket.TextMessage, body)
	}
}

func (s *pushServer) close() {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.listener.Close()
}
