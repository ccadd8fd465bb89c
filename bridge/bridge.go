// Package bridge serves the media socket: it accepts websocket calls,
// opens one provider session per call, and shuttles audio between the
// two until either side hangs up.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/voicebridge/logger"
	"github.com/AltairaLabs/voicebridge/providers"
)

const (
	// defaultReadHeaderTimeout prevents Slowloris attacks.
	defaultReadHeaderTimeout = 10 * time.Second

	connectTimeout = 30 * time.Second
	writeWait      = 10 * time.Second
)

// controlMessage is the text-frame protocol on the media socket. Audio
// flows downstream as binary frames; clear flushes the caller's playback
// queue on barge-in.
type controlMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// SessionOpener creates a provider session for a call. Defaults to
// providers.New; tests substitute a stub.
type SessionOpener func(cfg providers.Config, handlers providers.Handlers) (providers.Session, error)

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithAddr sets the listen address for ListenAndServe.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.addr = addr }
}

// WithSessionOpener overrides how provider sessions are created.
func WithSessionOpener(opener SessionOpener) ServerOption {
	return func(s *Server) { s.opener = opener }
}

// Server bridges media socket calls to provider sessions. Each websocket
// connection is one call with its own session; the server owns nothing
// shared between calls except the registry.
type Server struct {
	cfg     providers.Config
	opener  SessionOpener
	addr    string
	calls   *registry
	httpSrv *http.Server

	upgrader websocket.Upgrader
}

// NewServer creates a bridge server. The provider config is the template
// for every call; CallID is filled in per call.
func NewServer(cfg providers.Config, opts ...ServerOption) *Server {
	s := &Server{
		cfg:    cfg,
		opener: providers.New,
		calls:  newRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns an http.Handler serving the media socket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.Handle)
	return mux
}

// ListenAndServe runs the server until the context is cancelled, then
// shuts down and closes every live session.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	logger.Info("bridge server listening", "addr", s.addr, "variant", s.cfg.Variant)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.httpSrv.Shutdown(shutdownCtx)
		s.calls.closeAll()
		return err
	case err := <-errCh:
		s.calls.closeAll()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Serve runs the server on the given listener until the context is
// cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.httpSrv.Shutdown(shutdownCtx)
		s.calls.closeAll()
		return err
	case err := <-errCh:
		s.calls.closeAll()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Handle upgrades one media socket connection and runs the call to
// completion.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	callID := s.calls.nextCallID()
	started := time.Now()
	// The request context dies with the hijacked HTTP request; the call
	// outlives it.
	ctx := logger.WithCallID(context.Background(), callID)
	ctx = logger.WithProvider(ctx, s.cfg.Variant)
	if s.cfg.Model != "" {
		ctx = logger.WithModel(ctx, s.cfg.Model)
	}
	logger.InfoContext(ctx, "call started", "remote", r.RemoteAddr)

	// All conn writes go through writeMu so a clear frame sent on
	// barge-in is never reordered after a later audio delta.
	var writeMu sync.Mutex

	writeBinary := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.BinaryMessage, data)
	}
	writeControl := func(msg controlMessage) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	cfg := s.cfg
	cfg.CallID = callID

	var cleanup func(session providers.Session)
	var cleanupOnce sync.Once
	cleanup = func(session providers.Session) {
		cleanupOnce.Do(func() {
			if session != nil {
				_ = session.Close()
			}
			_ = conn.Close()
			s.calls.remove(callID, time.Since(started).Seconds())
			logger.InfoContext(ctx, "call ended", "duration", time.Since(started).Round(time.Millisecond))
		})
	}

	handlers := providers.Handlers{
		OnAudio: func(pcm []byte) {
			if err := writeBinary(pcm); err != nil {
				logger.DebugContext(ctx, "audio write failed", "error", err)
			}
		},
		OnBargeIn: func() {
			logger.InfoContext(ctx, "barge-in, sending clear")
			if err := writeControl(controlMessage{Type: "clear"}); err != nil {
				logger.DebugContext(ctx, "clear write failed", "error", err)
			}
		},
		OnTranscript: func(role, text string) {
			logger.InfoContext(ctx, "transcript", "role", role, "text", text)
		},
		OnError: func(err error) {
			logger.ErrorContext(ctx, "provider session failed", "error", err)
		},
	}

	session, err := s.opener(cfg, handlers)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create provider session", "error", err)
		_ = conn.Close()
		return
	}

	s.calls.add(callID, session)
	defer cleanup(session)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err = session.Connect(connectCtx)
	cancel()
	if err != nil {
		logger.ErrorContext(ctx, "provider connect failed", "error", err)
		return
	}

	s.readLoop(ctx, conn, session)
}

// readLoop pumps caller audio into the provider session until the socket
// closes.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, session providers.Session) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WarnContext(ctx, "media socket read failed", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := session.SendAudio(data); err != nil {
				logger.WarnContext(ctx, "send audio failed", "error", err)
				return
			}
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.DebugContext(ctx, "ignoring invalid control frame", "error", err)
				continue
			}
			if msg.Type != "audio" {
				logger.DebugContext(ctx, "ignoring control frame", "type", msg.Type)
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				logger.DebugContext(ctx, "ignoring invalid audio frame", "error", err)
				continue
			}
			if err := session.SendAudio(pcm); err != nil {
				logger.WarnContext(ctx, "send audio failed", "error", err)
				return
			}
		}
	}
}

// ActiveCalls returns the number of live calls.
func (s *Server) ActiveCalls() int {
	return s.calls.count()
}
