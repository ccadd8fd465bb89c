package nova

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/voicebridge/credentials"
	"github.com/AltairaLabs/voicebridge/providers"
)

// fakeBedrock accepts one bidirectional stream: it decodes every input
// event and lets tests inject output events.
type fakeBedrock struct {
	t      *testing.T
	server *httptest.Server
	outCh  chan Envelope

	mu       sync.Mutex
	received []Envelope
}

func newFakeBedrock(t *testing.T) *fakeBedrock {
	f := &fakeBedrock{t: t, outCh: make(chan Envelope, 16)}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		if err := rc.EnableFullDuplex(); err != nil {
			t.Errorf("full duplex unavailable: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.amazon.eventstream")
		w.WriteHeader(http.StatusOK)
		_ = rc.Flush()

		// Input side: decode chunk frames into envelopes.
		done := make(chan struct{})
		go func() {
			defer close(done)
			scanner := newEventScanner(r.Body)
			for scanner.Scan() {
				var envelope Envelope
				if err := json.Unmarshal([]byte(scanner.Data()), &envelope); err != nil {
					t.Errorf("client sent invalid event: %v", err)
					continue
				}
				f.mu.Lock()
				f.received = append(f.received, envelope)
				f.mu.Unlock()
			}
		}()

		// Output side: encode injected envelopes as chunk frames.
		encoder := eventstream.NewEncoder()
		for {
			select {
			case envelope := <-f.outCh:
				data, err := json.Marshal(envelope)
				require.NoError(t, err)
				payload, err := json.Marshal(chunkPayload{
					Bytes: base64.StdEncoding.EncodeToString(data),
				})
				require.NoError(t, err)
				msg := eventstream.Message{
					Headers: eventstream.Headers{
						{Name: ":event-type", Value: eventstream.StringValue("chunk")},
						{Name: ":message-type", Value: eventstream.StringValue("event")},
					},
					Payload: payload,
				}
				if err := encoder.Encode(w, msg); err != nil {
					return
				}
				_ = rc.Flush()
			case <-done:
				return
			}
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

// find returns the first received envelope matching the predicate.
func (f *fakeBedrock) find(t *testing.T, name string, match func(Envelope) bool) Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, envelope := range f.received {
			if match(envelope) {
				f.mu.Unlock()
				return envelope
			}
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client never sent %s", name)
	return Envelope{}
}

func newTestNovaSession(t *testing.T, f *fakeBedrock, handlers providers.Handlers) *Session {
	t.Helper()
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: awscreds.NewStaticCredentialsProvider("AKIAEXAMPLE", "secret", ""),
	}
	cred := credentials.NewAWSCredentialWithConfig(cfg, "us-east-1")

	stream := newBidiStream("us-east-1", DefaultModelID, cred)
	stream.endpoint = f.server.URL

	return newSession(providers.Config{
		Variant:      "nova",
		Model:        DefaultModelID,
		Region:       "us-east-1",
		SystemPrompt: "Be concise.",
		CallID:       "call-1",
	}, handlers, stream)
}

func TestConnectSendsSetupSequence(t *testing.T) {
	f := newFakeBedrock(t)
	session := newTestNovaSession(t, f, providers.Handlers{})

	require.NoError(t, session.Connect(context.Background()))
	defer session.Close()

	assert.Equal(t, providers.StateActive, session.State())

	start := f.find(t, "sessionStart", func(e Envelope) bool { return e.Event.SessionStart != nil })
	assert.Equal(t, 1024, start.Event.SessionStart.InferenceConfiguration.MaxTokens)

	prompt := f.find(t, "promptStart", func(e Envelope) bool { return e.Event.PromptStart != nil })
	assert.Equal(t, session.promptName, prompt.Event.PromptStart.PromptName)
	assert.Equal(t, 24000, prompt.Event.PromptStart.AudioOutputConfiguration.SampleRateHertz)

	system := f.find(t, "system contentStart", func(e Envelope) bool {
		return e.Event.ContentStart != nil && e.Event.ContentStart.Role == "SYSTEM"
	})
	assert.False(t, system.Event.ContentStart.Interactive)

	systemText := f.find(t, "system textInput", func(e Envelope) bool {
		return e.Event.TextInput != nil && e.Event.TextInput.Content == "Be concise."
	})
	assert.Equal(t, session.systemContent, systemText.Event.TextInput.ContentName)

	audio := f.find(t, "audio contentStart", func(e Envelope) bool {
		return e.Event.ContentStart != nil && e.Event.ContentStart.Type == "AUDIO"
	})
	assert.True(t, audio.Event.ContentStart.Interactive)
	assert.Equal(t, session.audioContent, audio.Event.ContentStart.ContentName)

	greeting := f.find(t, "greeting textInput", func(e Envelope) bool {
		return e.Event.TextInput != nil && e.Event.TextInput.Content == greetingPrompt
	})
	assert.NotEqual(t, session.systemContent, greeting.Event.TextInput.ContentName)
}

func TestSendAudioRoutesToAudioContent(t *testing.T) {
	f := newFakeBedrock(t)
	session := newTestNovaSession(t, f, providers.Handlers{})

	// Before connect: silently dropped.
	require.NoError(t, session.SendAudio([]byte{1, 2}))

	require.NoError(t, session.Connect(context.Background()))
	defer session.Close()

	pcm := []byte{0, 1, 0, 2}
	require.NoError(t, session.SendAudio(pcm))

	input := f.find(t, "audioInput", func(e Envelope) bool { return e.Event.AudioInput != nil })
	assert.Equal(t, session.audioContent, input.Event.AudioInput.ContentName)

	decoded, err := base64.StdEncoding.DecodeString(input.Event.AudioInput.Content)
	require.NoError(t, err)
	assert.Equal(t, pcm, decoded)
}

func TestServerEventsReachHandlers(t *testing.T) {
	f := newFakeBedrock(t)

	audioCh := make(chan []byte, 4)
	transcriptCh := make(chan string, 4)
	bargeInCh := make(chan struct{}, 1)

	session := newTestNovaSession(t, f, providers.Handlers{
		OnAudio:      func(pcm []byte) { audioCh <- pcm },
		OnTranscript: func(role, text string) { transcriptCh <- role + ":" + text },
		OnBargeIn:    func() { bargeInCh <- struct{}{} },
	})

	require.NoError(t, session.Connect(context.Background()))
	defer session.Close()

	pcm := []byte{9, 8, 7, 6}
	f.outCh <- Envelope{Event: Payload{AudioOutput: &AudioOutputEvent{
		Content: base64.StdEncoding.EncodeToString(pcm),
	}}}
	select {
	case got := <-audioCh:
		assert.Equal(t, pcm, got)
	case <-time.After(2 * time.Second):
		t.Fatal("OnAudio never fired")
	}

	f.outCh <- Envelope{Event: Payload{TextOutput: &TextOutputEvent{
		Role:    "ASSISTANT",
		Content: "hello there",
	}}}
	select {
	case got := <-transcriptCh:
		assert.Equal(t, "assistant:hello there", got)
	case <-time.After(2 * time.Second):
		t.Fatal("OnTranscript never fired")
	}

	// A USER content block opening right after assistant audio is a
	// barge-in.
	f.outCh <- Envelope{Event: Payload{ContentStart: &ContentStartEvent{
		Role: "USER",
		Type: "AUDIO",
	}}}
	select {
	case <-bargeInCh:
	case <-time.After(2 * time.Second):
		t.Fatal("OnBargeIn never fired")
	}
}

func TestStreamSurvivesConnectContextCancel(t *testing.T) {
	f := newFakeBedrock(t)

	audioCh := make(chan []byte, 4)
	session := newTestNovaSession(t, f, providers.Handlers{
		OnAudio: func(pcm []byte) { audioCh <- pcm },
	})

	// Callers bound Connect with a deadline and cancel it as soon as the
	// call returns. The stream must keep flowing past that point.
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, session.Connect(ctx))
	cancel()
	defer session.Close()

	pcm := []byte{4, 3, 2, 1}
	f.outCh <- Envelope{Event: Payload{AudioOutput: &AudioOutputEvent{
		Content: base64.StdEncoding.EncodeToString(pcm),
	}}}
	select {
	case got := <-audioCh:
		assert.Equal(t, pcm, got)
	case <-time.After(2 * time.Second):
		t.Fatal("audio stopped after connect context cancellation")
	}

	assert.Equal(t, providers.StateActive, session.State())

	require.NoError(t, session.SendAudio([]byte{1, 2, 3, 4}))
	f.find(t, "audioInput", func(e Envelope) bool { return e.Event.AudioInput != nil })
}

func TestBargeInRequiresActiveOutput(t *testing.T) {
	f := newFakeBedrock(t)

	bargeInCh := make(chan struct{}, 1)
	session := newTestNovaSession(t, f, providers.Handlers{
		OnBargeIn: func() { bargeInCh <- struct{}{} },
	})

	require.NoError(t, session.Connect(context.Background()))
	defer session.Close()

	// No assistant audio yet: a USER content block is just the normal
	// turn flow, not a barge-in.
	f.outCh <- Envelope{Event: Payload{ContentStart: &ContentStartEvent{
		Role: "USER",
		Type: "AUDIO",
	}}}

	select {
	case <-bargeInCh:
		t.Fatal("barge-in fired without assistant output")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseSendsTeardownSequence(t *testing.T) {
	f := newFakeBedrock(t)
	session := newTestNovaSession(t, f, providers.Handlers{})

	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.Close())
	require.NoError(t, session.Close())

	assert.Equal(t, providers.StateClosed, session.State())

	f.find(t, "audio contentEnd", func(e Envelope) bool {
		return e.Event.ContentEnd != nil && e.Event.ContentEnd.ContentName == session.audioContent
	})
	f.find(t, "promptEnd", func(e Envelope) bool { return e.Event.PromptEnd != nil })
	f.find(t, "sessionEnd", func(e Envelope) bool { return e.Event.SessionEnd != nil })

	// A closed session never reconnects.
	assert.ErrorIs(t, session.Connect(context.Background()), providers.ErrSessionClosed)
}
