package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

// wsRequest is one operation frame from the client. The type names the
// operation (matching the HTTP endpoints) and the id correlates the
// eventual response; operations can be issued concurrently and finish out
// of order because every one behind the first waits in the automation
// queue.
type wsRequest struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// wsResponse is the reply frame for one request id. Successes echo the
// request type and carry the result; failures use type "error" with the
// typed code in error and the human explanation in detail.
type wsResponse struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// handleWebSocket serves the persistent local-trading channel. Frames are
// JSON requests {id, type, params}; supported types are balance,
// positions, export and trade. Each operation runs through the same queue
// and deadlines as its HTTP counterpart.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Loopback service; the browser origin is whatever local
		// dashboard the operator runs.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()
	s.log.Info().Str("remote", r.RemoteAddr).Msg("WebSocket session opened")

	for {
		var req wsRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				s.log.Info().Msg("WebSocket session closed")
			} else {
				s.log.Warn().Err(err).Msg("WebSocket read failed")
			}
			return
		}

		// Run each op in its own goroutine; the queue serializes the
		// actual GUI work, and responses carry the request id so the
		// client can match them up.
		go func(req wsRequest) {
			resp := s.dispatchOp(ctx, req)
			if err := wsjson.Write(ctx, conn, resp); err != nil {
				s.log.Warn().Err(err).Str("type", req.Type).Msg("WebSocket write failed")
			}
		}(req)
	}
}

// dispatchOp executes one frame and builds its response.
func (s *Server) dispatchOp(ctx context.Context, req wsRequest) wsResponse {
	result, err := s.executeOp(ctx, req)
	if err != nil {
		name := string(domain.CodeOf(err))
		if name == "" {
			name = err.Error()
		}
		return wsResponse{
			Type:   "error",
			ID:     req.ID,
			Error:  name,
			Detail: domain.DetailOf(err),
		}
	}
	return wsResponse{Type: req.Type, ID: req.ID, Result: result}
}

func (s *Server) executeOp(ctx context.Context, req wsRequest) (any, error) {
	switch req.Type {
	case "balance":
		return s.runBalance(ctx)
	case "positions":
		return s.runPositions(ctx)
	case "export":
		var p exportRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, fmt.Errorf("invalid export params: %w", err)
		}
		kind, ok := domain.ParseExportKind(p.Kind)
		if !ok {
			return nil, fmt.Errorf("kind must be holdings, trades or orders, got %q", p.Kind)
		}
		return s.runExport(ctx, kind)
	case "trade":
		var p tradeRequest
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, fmt.Errorf("invalid trade params: %w", err)
		}
		intent, err := s.intent(p)
		if err != nil {
			return nil, err
		}
		return s.runTrade(ctx, intent)
	}
	return nil, fmt.Errorf("unknown operation type %q", req.Type)
}
