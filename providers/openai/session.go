package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/AltairaLabs/voicebridge/logger"
	"github.com/AltairaLabs/voicebridge/metrics/prometheus"
	"github.com/AltairaLabs/voicebridge/providers"
)

const variantName = "openai"

func init() {
	providers.RegisterSessionFactory(variantName, func(cfg providers.Config, handlers providers.Handlers) (providers.Session, error) {
		return New(cfg, handlers)
	})
}

// Session is one Realtime API conversation. It connects once, configures
// the session, and dispatches server events to the handlers until the
// connection drops or Close is called.
type Session struct {
	cfg      providers.Config
	handlers providers.Handlers
	ws       *realtimeWebSocket

	state     atomic.Int32
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates an unconnected Realtime session.
func New(cfg providers.Config, handlers providers.Handlers) (*Session, error) {
	if cfg.Credential == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	return &Session{
		cfg:      cfg,
		handlers: handlers,
		ws:       newRealtimeWebSocket(cfg.Model, cfg.Credential),
	}, nil
}

// State returns the session lifecycle state.
func (s *Session) State() providers.State {
	return providers.State(s.state.Load())
}

func (s *Session) setState(state providers.State) {
	s.state.Store(int32(state))
	logger.Debug("OpenAI Realtime: session state changed",
		"call_id", s.cfg.CallID,
		"state", state.String())
}

// Connect dials the Realtime API, sends the session configuration and
// starts the event dispatch loop. A single attempt; any failure leaves the
// session closed.
func (s *Session) Connect(ctx context.Context) error {
	switch s.State() {
	case providers.StateDisconnected:
	case providers.StateClosed, providers.StateClosing:
		return providers.ErrSessionClosed
	default:
		return fmt.Errorf("openai: session already connecting")
	}

	s.setState(providers.StateConnecting)

	if err := s.ws.Connect(ctx); err != nil {
		s.setState(providers.StateClosed)
		return fmt.Errorf("openai: %w", err)
	}

	s.setState(providers.StateConfiguringSession)

	update := SessionUpdateEvent{
		ClientEvent: ClientEvent{Type: "session.update"},
		Session:     newSessionConfig(s.cfg.Model, s.cfg.SystemPrompt, s.cfg.Voice),
	}
	if err := s.ws.Send(update); err != nil {
		_ = s.ws.Close()
		s.setState(providers.StateClosed)
		return fmt.Errorf("openai: failed to configure session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(runCtx)

	logger.Info("OpenAI Realtime: session configured",
		"call_id", s.cfg.CallID,
		"model", s.cfg.Model)
	return nil
}

// SendAudio forwards one chunk of 16-bit PCM to the input audio buffer.
// Audio sent before the session is active is silently dropped.
func (s *Session) SendAudio(pcm []byte) error {
	if s.State() != providers.StateActive {
		prometheus.RecordProviderAudioDropped(variantName)
		return nil
	}

	event := InputAudioBufferAppendEvent{
		ClientEvent: ClientEvent{Type: "input_audio_buffer.append"},
		Audio:       base64.StdEncoding.EncodeToString(pcm),
	}
	if err := s.ws.Send(event); err != nil {
		return fmt.Errorf("openai: failed to send audio: %w", err)
	}
	prometheus.RecordProviderAudio(variantName, "sent", len(pcm))
	return nil
}

// Close tears the session down. Idempotent and safe from any state.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setState(providers.StateClosing)
		if s.cancel != nil {
			s.cancel()
		}
		_ = s.ws.Close()
		s.setState(providers.StateClosed)
		logger.Info("OpenAI Realtime: session closed", "call_id", s.cfg.CallID)
	})
	return nil
}

// run dispatches server events until the connection drops or the session
// is closed. The message channel is unbuffered so the receive loop cannot
// report an error while events are still undelivered.
func (s *Session) run(ctx context.Context) {
	msgCh := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ws.ReceiveLoop(ctx, msgCh)
	}()

	for {
		select {
		case data := <-msgCh:
			s.dispatch(data)
		case err := <-errCh:
			if s.State() == providers.StateClosing || s.State() == providers.StateClosed {
				return
			}
			if err == nil {
				// Remote closed the connection cleanly mid-call.
				err = errors.New("connection closed by server")
				logger.Info("OpenAI Realtime: server closed the connection",
					"call_id", s.cfg.CallID)
			} else {
				logger.Warn("OpenAI Realtime: receive failed",
					"call_id", s.cfg.CallID,
					"error", err)
			}
			s.setState(providers.StateClosed)
			if s.handlers.OnError != nil {
				s.handlers.OnError(err)
			}
			return
		}
	}
}

// dispatch routes one server event to the appropriate handler.
func (s *Session) dispatch(data []byte) {
	event, err := ParseServerEvent(data)
	if err != nil {
		logger.Warn("OpenAI Realtime: unparseable server event",
			"call_id", s.cfg.CallID,
			"error", err)
		return
	}

	switch e := event.(type) {
	case *SessionUpdatedEvent:
		logger.Info("OpenAI Realtime: session updated, triggering greeting",
			"call_id", s.cfg.CallID)
		s.triggerGreeting()
		s.setState(providers.StateActive)

	case *ResponseAudioDeltaEvent:
		audio, err := base64.StdEncoding.DecodeString(e.Delta)
		if err != nil {
			logger.Warn("OpenAI Realtime: invalid audio delta",
				"call_id", s.cfg.CallID,
				"error", err)
			return
		}
		prometheus.RecordProviderAudio(variantName, "received", len(audio))
		if s.handlers.OnAudio != nil {
			s.handlers.OnAudio(audio)
		}

	case *InputAudioBufferSpeechStartedEvent:
		logger.Info("OpenAI Realtime: user speech started, barge-in",
			"call_id", s.cfg.CallID)
		prometheus.RecordBargeIn(variantName)
		if s.handlers.OnBargeIn != nil {
			s.handlers.OnBargeIn()
		}

	case *InputAudioBufferSpeechStoppedEvent:
		// Explicitly request a response in case the server-side
		// create_response turn detection does not fire.
		logger.Debug("OpenAI Realtime: user speech stopped, requesting response",
			"call_id", s.cfg.CallID)
		if err := s.ws.Send(ResponseCreateEvent{ClientEvent: ClientEvent{Type: "response.create"}}); err != nil {
			logger.Warn("OpenAI Realtime: failed to request response",
				"call_id", s.cfg.CallID,
				"error", err)
		}

	case *InputAudioTranscriptionCompletedEvent:
		if e.Transcript != "" && s.handlers.OnTranscript != nil {
			s.handlers.OnTranscript("user", e.Transcript)
		}

	case *ResponseAudioTranscriptDoneEvent:
		if e.Transcript != "" && s.handlers.OnTranscript != nil {
			s.handlers.OnTranscript("assistant", e.Transcript)
		}

	case *ErrorEvent:
		// Auth failures echo the API key in the message.
		logger.Error("OpenAI Realtime: server error",
			"call_id", s.cfg.CallID,
			"code", e.Error.Code,
			"message", logger.RedactSensitiveData(e.Error.Message))

	case *ServerEvent:
		logger.Debug("OpenAI Realtime: unhandled event",
			"call_id", s.cfg.CallID,
			"type", e.Type)
	}
}

// triggerGreeting seeds the conversation so the assistant speaks first.
func (s *Session) triggerGreeting() {
	item := ConversationItemCreateEvent{
		ClientEvent: ClientEvent{Type: "conversation.item.create"},
		Item: ConversationItem{
			Type: "message",
			Role: "user",
			Content: []ConversationContent{
				{Type: "input_text", Text: greetingPrompt},
			},
		},
	}
	if err := s.ws.Send(item); err != nil {
		logger.Warn("OpenAI Realtime: failed to send greeting item",
			"call_id", s.cfg.CallID,
			"error", err)
		return
	}
	if err := s.ws.Send(ResponseCreateEvent{ClientEvent: ClientEvent{Type: "response.create"}}); err != nil {
		logger.Warn("OpenAI Realtime: failed to request greeting response",
			"call_id", s.cfg.CallID,
			"error", err)
	}
}
