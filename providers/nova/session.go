package nova

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/AltairaLabs/voicebridge/credentials"
	"github.com/AltairaLabs/voicebridge/logger"
	"github.com/AltairaLabs/voicebridge/metrics/prometheus"
	"github.com/AltairaLabs/voicebridge/providers"
)

const variantName = "nova"

func init() {
	providers.RegisterSessionFactory(variantName, func(cfg providers.Config, handlers providers.Handlers) (providers.Session, error) {
		return New(cfg, handlers)
	})
}

// Session is one Nova Sonic conversation over a bidirectional Bedrock
// stream. Prompt and content block names are fresh UUIDs per session.
type Session struct {
	cfg      providers.Config
	handlers providers.Handlers
	stream   *bidiStream

	promptName    string
	systemContent string
	audioContent  string

	state     atomic.Int32
	speaking  atomic.Bool
	closeOnce sync.Once
}

// New creates an unconnected Nova Sonic session. Credentials come from the
// default AWS chain, or from assuming cfg.RoleARN when set.
func New(cfg providers.Config, handlers providers.Handlers) (*Session, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModelID
	}

	var (
		cred *credentials.AWSCredential
		err  error
	)
	if cfg.RoleARN != "" {
		cred, err = credentials.NewAWSCredentialWithRole(context.Background(), cfg.Region, cfg.RoleARN)
	} else {
		cred, err = credentials.NewAWSCredential(context.Background(), cfg.Region)
	}
	if err != nil {
		return nil, fmt.Errorf("nova: %w", err)
	}

	return newSession(cfg, handlers, newBidiStream(cred.Region(), cfg.Model, cred)), nil
}

// newSession wires a session to a prepared stream. Split out for tests.
func newSession(cfg providers.Config, handlers providers.Handlers, stream *bidiStream) *Session {
	return &Session{
		cfg:           cfg,
		handlers:      handlers,
		stream:        stream,
		promptName:    uuid.New().String(),
		systemContent: uuid.New().String(),
		audioContent:  uuid.New().String(),
	}
}

// State returns the session lifecycle state.
func (s *Session) State() providers.State {
	return providers.State(s.state.Load())
}

func (s *Session) setState(state providers.State) {
	s.state.Store(int32(state))
	logger.Debug("Nova Sonic: session state changed",
		"call_id", s.cfg.CallID,
		"state", state.String())
}

// Connect opens the stream and performs the session setup sequence:
// sessionStart, promptStart, the system prompt content triple, the
// interactive audio content block, then the greeting triple. A single
// attempt; any failure leaves the session closed.
func (s *Session) Connect(ctx context.Context) error {
	switch s.State() {
	case providers.StateDisconnected:
	case providers.StateClosed, providers.StateClosing:
		return providers.ErrSessionClosed
	default:
		return fmt.Errorf("nova: session already connecting")
	}

	s.setState(providers.StateConnecting)

	if err := s.stream.Open(ctx); err != nil {
		s.setState(providers.StateClosed)
		return fmt.Errorf("nova: %w", err)
	}

	s.setState(providers.StateConfiguringSession)

	setup := []Envelope{
		newSessionStart(),
		newPromptStart(s.promptName, s.cfg.Voice),
		newTextContentStart(s.promptName, s.systemContent, "SYSTEM", false),
		newTextInput(s.promptName, s.systemContent, s.cfg.SystemPrompt),
		newContentEnd(s.promptName, s.systemContent),
		newAudioContentStart(s.promptName, s.audioContent),
	}
	for _, event := range setup {
		if err := s.stream.Send(event); err != nil {
			_ = s.stream.Close()
			s.setState(providers.StateClosed)
			return fmt.Errorf("nova: failed to configure session: %w", err)
		}
	}

	go s.run()

	if err := s.triggerGreeting(); err != nil {
		_ = s.stream.Close()
		s.setState(providers.StateClosed)
		return fmt.Errorf("nova: %w", err)
	}

	s.setState(providers.StateActive)
	logger.Info("Nova Sonic: session configured",
		"call_id", s.cfg.CallID,
		"model", s.cfg.Model)
	return nil
}

// triggerGreeting sends a user text content triple so the assistant speaks
// first.
func (s *Session) triggerGreeting() error {
	greetingContent := uuid.New().String()
	triple := []Envelope{
		newTextContentStart(s.promptName, greetingContent, "USER", true),
		newTextInput(s.promptName, greetingContent, greetingPrompt),
		newContentEnd(s.promptName, greetingContent),
	}
	for _, event := range triple {
		if err := s.stream.Send(event); err != nil {
			return fmt.Errorf("failed to trigger greeting: %w", err)
		}
	}
	return nil
}

// SendAudio forwards one chunk of 16-bit PCM into the open audio content
// block. Audio sent before the session is active is silently dropped.
func (s *Session) SendAudio(pcm []byte) error {
	if s.State() != providers.StateActive {
		prometheus.RecordProviderAudioDropped(variantName)
		return nil
	}

	event := Envelope{Event: Payload{
		AudioInput: &AudioInputEvent{
			PromptName:  s.promptName,
			ContentName: s.audioContent,
			Content:     base64.StdEncoding.EncodeToString(pcm),
		},
	}}
	if err := s.stream.Send(event); err != nil {
		return fmt.Errorf("nova: failed to send audio: %w", err)
	}
	prometheus.RecordProviderAudio(variantName, "sent", len(pcm))
	return nil
}

// Close tears the session down: close the audio block, end the prompt and
// session, then release the stream. Idempotent and safe mid-conversation.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setState(providers.StateClosing)

		teardown := []Envelope{
			newContentEnd(s.promptName, s.audioContent),
			{Event: Payload{PromptEnd: &PromptEndEvent{PromptName: s.promptName}}},
			{Event: Payload{SessionEnd: &SessionEndEvent{}}},
		}
		for _, event := range teardown {
			if err := s.stream.Send(event); err != nil {
				logger.Warn("Nova Sonic: teardown event failed",
					"call_id", s.cfg.CallID,
					"error", err)
				break
			}
		}

		_ = s.stream.Close()
		s.setState(providers.StateClosed)
		logger.Info("Nova Sonic: session closed", "call_id", s.cfg.CallID)
	})
	return nil
}

// run reads server events until the stream ends or the session is closed.
func (s *Session) run() {
	for {
		envelope, err := s.stream.Receive()
		if err != nil {
			if s.State() == providers.StateClosing || s.State() == providers.StateClosed {
				return
			}
			if errors.Is(err, io.EOF) {
				logger.Info("Nova Sonic: stream ended", "call_id", s.cfg.CallID)
			} else {
				logger.Warn("Nova Sonic: receive failed",
					"call_id", s.cfg.CallID,
					"error", err)
			}
			s.setState(providers.StateClosed)
			if s.handlers.OnError != nil {
				s.handlers.OnError(err)
			}
			return
		}
		s.dispatch(envelope)
	}
}

// dispatch routes one server event to the appropriate handler.
func (s *Session) dispatch(envelope Envelope) {
	event := envelope.Event

	switch {
	case event.AudioOutput != nil:
		audio, err := base64.StdEncoding.DecodeString(event.AudioOutput.Content)
		if err != nil {
			logger.Warn("Nova Sonic: invalid audio output",
				"call_id", s.cfg.CallID,
				"error", err)
			return
		}
		s.speaking.Store(true)
		prometheus.RecordProviderAudio(variantName, "received", len(audio))
		if s.handlers.OnAudio != nil {
			s.handlers.OnAudio(audio)
		}

	case event.TextOutput != nil:
		text := event.TextOutput.Content
		if text == "" {
			return
		}
		role := event.TextOutput.Role
		logger.Debug("Nova Sonic: transcript",
			"call_id", s.cfg.CallID,
			"role", role)
		if s.handlers.OnTranscript != nil {
			s.handlers.OnTranscript(normalizeRole(role), text)
		}

	case event.ContentStart != nil:
		// A user content block opening while the assistant is mid-output
		// means the service heard the user speak over it.
		if event.ContentStart.Role == "USER" && s.speaking.Swap(false) {
			logger.Info("Nova Sonic: user speech during output, barge-in",
				"call_id", s.cfg.CallID)
			prometheus.RecordBargeIn(variantName)
			if s.handlers.OnBargeIn != nil {
				s.handlers.OnBargeIn()
			}
		}

	case event.ContentEnd != nil:
		s.speaking.Store(false)
	}
}

// normalizeRole maps Nova's upper-case roles onto the common contract.
func normalizeRole(role string) string {
	switch role {
	case "USER":
		return "user"
	case "ASSISTANT":
		return "assistant"
	default:
		return role
	}
}
