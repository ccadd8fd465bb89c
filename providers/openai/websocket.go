package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/voicebridge/logger"
)

// WebSocket connection constants
const (
	wsDialTimeout      = 10 * time.Second
	wsWriteWait        = 10 * time.Second
	wsMaxMessageSize   = 64 * 1024 * 1024 // 64MB for audio
	wsCloseGracePeriod = 5 * time.Second
)

// realtimeWebSocket manages the WebSocket connection to the Realtime API.
// A connection is established exactly once; there is no retry and no
// reconnection, a failed or dropped connection ends the session.
type realtimeWebSocket struct {
	conn      *websocket.Conn
	url       string
	apiKey    string
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// newRealtimeWebSocket creates a WebSocket manager for one session.
func newRealtimeWebSocket(model, apiKey string) *realtimeWebSocket {
	wsURL := fmt.Sprintf("%s?model=%s", realtimeEndpoint, model)

	return &realtimeWebSocket{
		url:       wsURL,
		apiKey:    apiKey,
		closeChan: make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (ws *realtimeWebSocket) Connect(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return fmt.Errorf("websocket is closed")
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+ws.apiKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: wsDialTimeout,
	}

	logger.Debug("OpenAI Realtime: connecting to WebSocket", "url", ws.url)

	conn, resp, err := dialer.DialContext(ctx, ws.url, headers)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			logger.Error("OpenAI Realtime: WebSocket dial failed",
				"error", logger.RedactSensitiveData(err.Error()),
				"status", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	conn.SetReadLimit(wsMaxMessageSize)
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	ws.conn = conn
	logger.Info("OpenAI Realtime: WebSocket connected successfully")

	return nil
}

// Send sends a message to the WebSocket.
func (ws *realtimeWebSocket) Send(msg interface{}) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed || ws.conn == nil {
		return fmt.Errorf("websocket is not connected")
	}

	if err := ws.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// Receive reads a message from the WebSocket with context support.
func (ws *realtimeWebSocket) Receive(ctx context.Context) ([]byte, error) {
	ws.mu.Lock()
	if ws.closed || ws.conn == nil {
		ws.mu.Unlock()
		return nil, fmt.Errorf("websocket is not connected")
	}
	conn := ws.conn
	ws.mu.Unlock()

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		_, data, err := conn.ReadMessage()
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		return result.data, result.err
	}
}

// ReceiveLoop continuously reads messages and sends them to the provided channel.
// It returns when the connection is closed or an error occurs.
func (ws *realtimeWebSocket) ReceiveLoop(ctx context.Context, msgCh chan<- []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ws.closeChan:
			return nil
		default:
		}

		data, err := ws.Receive(ctx)
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		select {
		case msgCh <- data:
		case <-ctx.Done():
			return ctx.Err()
		case <-ws.closeChan:
			return nil
		}
	}
}

// Close closes the WebSocket connection gracefully.
func (ws *realtimeWebSocket) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return nil
	}

	ws.closed = true
	close(ws.closeChan)

	if ws.conn == nil {
		return nil
	}

	// Send close message
	_ = ws.conn.SetWriteDeadline(time.Now().Add(wsCloseGracePeriod))
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.conn.WriteMessage(websocket.CloseMessage, closeMsg)

	return ws.conn.Close()
}
