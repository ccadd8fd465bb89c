// Package openai implements the OpenAI Realtime API voice session variant.
package openai

import "encoding/json"

const (
	// realtimeEndpoint is the base WebSocket endpoint for the Realtime API.
	realtimeEndpoint = "wss://api.openai.com/v1/realtime"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-realtime"

	// DefaultVoice is the assistant voice when none is configured.
	DefaultVoice = "alloy"

	// sampleRate is the PCM rate for both directions.
	sampleRate = 24000

	// Server VAD tuning.
	vadThreshold         = 0.5
	vadPrefixPaddingMs   = 300
	vadSilenceDurationMs = 500
)

// greetingPrompt seeds the conversation so the assistant speaks first.
const greetingPrompt = "Greet the user briefly and ask how you can help."

// Client Events - sent from client to server

// ClientEvent is the base structure for all client events.
type ClientEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

// SessionUpdateEvent updates session configuration.
type SessionUpdateEvent struct {
	ClientEvent
	Session SessionConfig `json:"session"`
}

// SessionConfig is the session configuration sent in session.update.
type SessionConfig struct {
	Type             string      `json:"type"` // "realtime"
	Model            string      `json:"model,omitempty"`
	OutputModalities []string    `json:"output_modalities,omitempty"`
	Instructions     string      `json:"instructions,omitempty"`
	Audio            AudioConfig `json:"audio"`
}

// AudioConfig carries the input and output audio settings.
type AudioConfig struct {
	Input  AudioInputConfig  `json:"input"`
	Output AudioOutputConfig `json:"output"`
}

// AudioInputConfig configures inbound audio handling.
type AudioInputConfig struct {
	NoiseReduction *NoiseReductionConfig `json:"noise_reduction,omitempty"`
	Format         AudioFormat           `json:"format"`
	Transcription  *TranscriptionConfig  `json:"transcription,omitempty"`
	TurnDetection  *TurnDetectionConfig  `json:"turn_detection,omitempty"`
}

// AudioOutputConfig configures outbound audio.
type AudioOutputConfig struct {
	Format AudioFormat `json:"format"`
	Voice  string      `json:"voice,omitempty"`
}

// AudioFormat describes a PCM stream format.
type AudioFormat struct {
	Type string `json:"type"` // "audio/pcm"
	Rate int    `json:"rate,omitempty"`
}

// NoiseReductionConfig selects the input noise reduction profile.
type NoiseReductionConfig struct {
	Type string `json:"type"` // "near_field", "far_field"
}

// TranscriptionConfig configures input audio transcription.
type TranscriptionConfig struct {
	Model string `json:"model"` // "whisper-1"
}

// TurnDetectionConfig configures server-side VAD.
type TurnDetectionConfig struct {
	Type              string  `json:"type"` // "server_vad"
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response"`
	InterruptResponse bool    `json:"interrupt_response"`
}

// InputAudioBufferAppendEvent appends audio to the input buffer.
type InputAudioBufferAppendEvent struct {
	ClientEvent
	Audio string `json:"audio"` // Base64-encoded audio data
}

// ConversationItemCreateEvent adds an item to the conversation.
type ConversationItemCreateEvent struct {
	ClientEvent
	Item ConversationItem `json:"item"`
}

// ConversationItem represents an item in the conversation.
type ConversationItem struct {
	Type    string                `json:"type"` // "message"
	Role    string                `json:"role,omitempty"`
	Content []ConversationContent `json:"content,omitempty"`
}

// ConversationContent represents content within a conversation item.
type ConversationContent struct {
	Type string `json:"type"` // "input_text"
	Text string `json:"text,omitempty"`
}

// ResponseCreateEvent triggers a response from the model.
type ResponseCreateEvent struct {
	ClientEvent
}

// Server Events - received from server

// ServerEvent is the base structure for all server events.
type ServerEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

// ErrorEvent indicates an error occurred.
type ErrorEvent struct {
	ServerEvent
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// SessionCreatedEvent is sent when the session is established.
type SessionCreatedEvent struct {
	ServerEvent
}

// SessionUpdatedEvent confirms a session update.
type SessionUpdatedEvent struct {
	ServerEvent
}

// InputAudioBufferSpeechStartedEvent indicates speech was detected.
type InputAudioBufferSpeechStartedEvent struct {
	ServerEvent
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

// InputAudioBufferSpeechStoppedEvent indicates speech ended.
type InputAudioBufferSpeechStoppedEvent struct {
	ServerEvent
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

// InputAudioTranscriptionCompletedEvent provides the user's transcript.
type InputAudioTranscriptionCompletedEvent struct {
	ServerEvent
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// ResponseAudioDeltaEvent provides streaming audio. The Realtime API emits
// this as response.audio.delta or response.output_audio.delta depending on
// API generation; both carry the same payload.
type ResponseAudioDeltaEvent struct {
	ServerEvent
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"` // Base64-encoded audio
}

// ResponseAudioDoneEvent indicates audio streaming completed.
type ResponseAudioDoneEvent struct {
	ServerEvent
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
}

// ResponseAudioTranscriptDoneEvent provides the assistant's transcript.
type ResponseAudioTranscriptDoneEvent struct {
	ServerEvent
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// ParseServerEvent parses a raw JSON message into the appropriate event type.
func ParseServerEvent(data []byte) (interface{}, error) {
	// First, parse just the type
	var base ServerEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}

	// Then parse into the specific type
	switch base.Type {
	case "error":
		var e ErrorEvent
		return &e, json.Unmarshal(data, &e)
	case "session.created":
		var e SessionCreatedEvent
		return &e, json.Unmarshal(data, &e)
	case "session.updated":
		var e SessionUpdatedEvent
		return &e, json.Unmarshal(data, &e)
	case "input_audio_buffer.speech_started":
		var e InputAudioBufferSpeechStartedEvent
		return &e, json.Unmarshal(data, &e)
	case "input_audio_buffer.speech_stopped":
		var e InputAudioBufferSpeechStoppedEvent
		return &e, json.Unmarshal(data, &e)
	case "conversation.item.input_audio_transcription.completed":
		var e InputAudioTranscriptionCompletedEvent
		return &e, json.Unmarshal(data, &e)
	case "response.audio.delta", "response.output_audio.delta":
		var e ResponseAudioDeltaEvent
		return &e, json.Unmarshal(data, &e)
	case "response.audio.done", "response.output_audio.done":
		var e ResponseAudioDoneEvent
		return &e, json.Unmarshal(data, &e)
	case "response.audio_transcript.done", "response.output_audio_transcript.done":
		var e ResponseAudioTranscriptDoneEvent
		return &e, json.Unmarshal(data, &e)
	default:
		// Return the base event for unknown types
		return &base, nil
	}
}

// newSessionConfig builds the session.update payload for a call.
func newSessionConfig(model, instructions, voice string) SessionConfig {
	if voice == "" {
		voice = DefaultVoice
	}
	return SessionConfig{
		Type:             "realtime",
		Model:            model,
		OutputModalities: []string{"audio"},
		Instructions:     instructions,
		Audio: AudioConfig{
			Input: AudioInputConfig{
				NoiseReduction: &NoiseReductionConfig{Type: "near_field"},
				Format:         AudioFormat{Type: "audio/pcm", Rate: sampleRate},
				Transcription:  &TranscriptionConfig{Model: "whisper-1"},
				TurnDetection: &TurnDetectionConfig{
					Type:              "server_vad",
					Threshold:         vadThreshold,
					PrefixPaddingMs:   vadPrefixPaddingMs,
					SilenceDurationMs: vadSilenceDurationMs,
					CreateResponse:    true,
					InterruptResponse: true,
				},
			},
			Output: AudioOutputConfig{
				Format: AudioFormat{Type: "audio/pcm", Rate: sampleRate},
				Voice:  voice,
			},
		},
	}
}
