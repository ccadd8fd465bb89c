// Package providers defines the contract between the relay bridge and a
// cloud conversational-AI voice service, plus a registry of session
// factories. Concrete variants live in subpackages and register themselves
// via init; import providers/all to get every variant.
package providers

import (
	"context"
	"errors"
	"fmt"
)

// State is the lifecycle state of a provider session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConfiguringSession
	StateActive
	StateClosing
	StateClosed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConfiguringSession:
		return "configuring_session"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

var (
	// ErrSessionClosed is returned by Connect on a session that has already
	// been closed. A closed session is never reconnected; callers create a
	// fresh one.
	ErrSessionClosed = errors.New("provider session closed")

	// ErrNotConnected is returned by operations that require an established
	// connection before Connect has been called.
	ErrNotConnected = errors.New("provider session not connected")
)

// Handlers receives events from the provider. OnAudio and OnBargeIn drive
// the media path; OnTranscript and OnError are observability. Any handler
// may be nil. Handlers are invoked from the session's receive goroutine and
// must not block.
type Handlers struct {
	// OnAudio delivers a decoded chunk of 16-bit little-endian PCM at the
	// provider's output rate.
	OnAudio func(pcm []byte)

	// OnBargeIn fires when the provider detects the user speaking over
	// assistant output. The playback path must be flushed.
	OnBargeIn func()

	// OnTranscript delivers a completed transcript with its role
	// ("user" or "assistant").
	OnTranscript func(role, text string)

	// OnError reports a fatal session error. The session transitions to
	// closed; no events follow.
	OnError func(err error)
}

// Session is one conversation with a voice provider. Connect establishes
// and configures the upstream connection exactly once; there is no retry
// and no reconnection. SendAudio before the session is active is silently
// dropped. Close is idempotent and safe from any state.
type Session interface {
	Connect(ctx context.Context) error
	SendAudio(pcm []byte) error
	Close() error
	State() State
}

// Config holds the settings needed to create a session of any variant.
type Config struct {
	// Variant selects the provider implementation, e.g. "openai" or "nova".
	Variant string

	// Credential is the bearer credential for token-authenticated variants.
	// AWS-authenticated variants use the default credential chain instead.
	Credential string

	// Model is the provider model identifier.
	Model string

	// Region is the AWS region for Bedrock-hosted variants.
	Region string

	// RoleARN, when set, makes AWS-authenticated variants assume that IAM
	// role instead of using the default credential chain directly.
	RoleARN string

	// SystemPrompt is the conversation's system instructions.
	SystemPrompt string

	// Voice overrides the variant's default voice when set.
	Voice string

	// CallID tags the session's log lines and metrics.
	CallID string
}

// SessionFactory creates a session for one variant.
type SessionFactory func(cfg Config, handlers Handlers) (Session, error)

var sessionFactories = make(map[string]SessionFactory)

// RegisterSessionFactory registers a factory for a variant name. Called
// from variant package init functions.
func RegisterSessionFactory(variant string, factory SessionFactory) {
	sessionFactories[variant] = factory
}

// New creates a session for the configured variant.
func New(cfg Config, handlers Handlers) (Session, error) {
	factory, ok := sessionFactories[cfg.Variant]
	if !ok {
		return nil, &UnsupportedVariantError{Variant: cfg.Variant}
	}
	return factory(cfg, handlers)
}

// Variants returns the registered variant names.
func Variants() []string {
	names := make([]string, 0, len(sessionFactories))
	for name := range sessionFactories {
		names = append(names, name)
	}
	return names
}

// UnsupportedVariantError is returned when a variant name is not recognized.
type UnsupportedVariantError struct {
	Variant string
}

func (e *UnsupportedVariantError) Error() string {
	return "unsupported provider variant: " + e.Variant
}
