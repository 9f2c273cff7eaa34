package paper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"tradeguard/internal/core"
)

// StartFillStream dials the paper venue's push server and forwards every
// "fill" frame to callback until ctx is canceled. Grounded on the
// teacher's pkg/websocket.Client reconnect-on-read-loop shape, simplified
// to a single best-effort connection since the paper venue never drops.
func (e *Exchange) StartFillStream(ctx context.Context, callback func(core.FillEvent)) error {
	conn, err := e.dial()
	if err != nil {
		return fmt.Errorf("fill stream dial: %w", err)
	}
	go e.readLoop(ctx, conn, func(msg pushMessage) {
		if msg.Kind == "fill" && msg.Fill != nil {
			callback(*msg.Fill)
		}
	})
	return nil
}

// StartSnapshotStream dials the same push feed and forwards "snapshot"
// frames for the requested symbols; an empty list forwards every symbol.
func (e *Exchange) StartSnapshotStream(ctx context.Context, symbols []string, callback func(string, core.MarketSnapshot)) error {
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}
	conn, err := e.dial()
	if err != nil {
		return fmt.Errorf("snapshot stream dial: %w", err)
	}
	go e.readLoop(ctx, conn, func(msg pushMessage) {
		if msg.Kind == "snapshot" && msg.Snapshot != nil && (len(wanted) == 0 || wanted[msg.Symbol]) {
			callback(msg.Symbol, *msg.Snapshot)
		}
	})
	return nil
}

func (e *Exchange) dial() (*websocket.Conn, error) {
	url := "ws://" + e.server.addr() + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

func (e *Exchange) readLoop(ctx context.Context, conn *websocket.Conn, handle func(pushMessage)) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		_, body, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg pushMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			e.logger.Warn("paper exchange stream: malformed frame", "error", err)
			continue
		}
		handle(msg)
	}
}
