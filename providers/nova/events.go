// Package nova implements the Amazon Nova Sonic voice session variant over
// Bedrock's bidirectional streaming API.
package nova

import "encoding/json"

const (
	// DefaultModelID is used when no model is configured.
	DefaultModelID = "amazon.nova-2-sonic-v1:0"

	// DefaultVoice is the assistant voice when none is configured.
	DefaultVoice = "matthew"

	// Audio format for both directions.
	sampleRate    = 24000
	sampleSizeBit = 16
	channelCount  = 1

	// Inference configuration.
	inferenceMaxTokens   = 1024
	inferenceTopP        = 0.9
	inferenceTemperature = 0.7
)

// greetingPrompt seeds the conversation so the assistant speaks first.
const greetingPrompt = "Greet the user briefly and ask how you can help."

// Envelope wraps every event in both directions as {"event": {...}} with
// exactly one payload field set.
type Envelope struct {
	Event Payload `json:"event"`
}

// Payload is the tagged union of Nova Sonic event types.
type Payload struct {
	// Client events
	SessionStart *SessionStartEvent `json:"sessionStart,omitempty"`
	PromptStart  *PromptStartEvent  `json:"promptStart,omitempty"`
	ContentStart *ContentStartEvent `json:"contentStart,omitempty"`
	TextInput    *TextInputEvent    `json:"textInput,omitempty"`
	AudioInput   *AudioInputEvent   `json:"audioInput,omitempty"`
	ContentEnd   *ContentEndEvent   `json:"contentEnd,omitempty"`
	PromptEnd    *PromptEndEvent    `json:"promptEnd,omitempty"`
	SessionEnd   *SessionEndEvent   `json:"sessionEnd,omitempty"`

	// Server events
	AudioOutput     *AudioOutputEvent `json:"audioOutput,omitempty"`
	TextOutput      *TextOutputEvent  `json:"textOutput,omitempty"`
	CompletionStart *json.RawMessage  `json:"completionStart,omitempty"`
	CompletionEnd   *json.RawMessage  `json:"completionEnd,omitempty"`
	UsageEvent      *json.RawMessage  `json:"usageEvent,omitempty"`
}

// SessionStartEvent opens the stream with inference settings.
type SessionStartEvent struct {
	InferenceConfiguration InferenceConfiguration `json:"inferenceConfiguration"`
}

// InferenceConfiguration carries the generation parameters.
type InferenceConfiguration struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

// PromptStartEvent opens a prompt and declares the output formats.
type PromptStartEvent struct {
	PromptName               string             `json:"promptName"`
	TextOutputConfiguration  TextConfiguration  `json:"textOutputConfiguration"`
	AudioOutputConfiguration AudioConfiguration `json:"audioOutputConfiguration"`
}

// TextConfiguration declares a text media type.
type TextConfiguration struct {
	MediaType string `json:"mediaType"`
}

// AudioConfiguration declares a PCM audio stream format.
type AudioConfiguration struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	VoiceID         string `json:"voiceId,omitempty"`
	Encoding        string `json:"encoding"`
	AudioType       string `json:"audioType"`
}

// ContentStartEvent opens a content block within a prompt.
type ContentStartEvent struct {
	PromptName              string              `json:"promptName,omitempty"`
	ContentName             string              `json:"contentName,omitempty"`
	Type                    string              `json:"type,omitempty"` // "TEXT", "AUDIO"
	Interactive             bool                `json:"interactive,omitempty"`
	Role                    string              `json:"role,omitempty"` // "SYSTEM", "USER", "ASSISTANT"
	TextInputConfiguration  *TextConfiguration  `json:"textInputConfiguration,omitempty"`
	AudioInputConfiguration *AudioConfiguration `json:"audioInputConfiguration,omitempty"`
}

// TextInputEvent carries text content.
type TextInputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// AudioInputEvent carries one base64 audio chunk.
type AudioInputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

// ContentEndEvent closes a content block.
type ContentEndEvent struct {
	PromptName  string `json:"promptName,omitempty"`
	ContentName string `json:"contentName,omitempty"`
}

// PromptEndEvent closes a prompt.
type PromptEndEvent struct {
	PromptName string `json:"promptName"`
}

// SessionEndEvent closes the stream.
type SessionEndEvent struct{}

// AudioOutputEvent carries one base64 chunk of assistant audio.
type AudioOutputEvent struct {
	PromptName  string `json:"promptName,omitempty"`
	ContentName string `json:"contentName,omitempty"`
	Content     string `json:"content"`
}

// TextOutputEvent carries a transcript fragment.
type TextOutputEvent struct {
	PromptName  string `json:"promptName,omitempty"`
	ContentName string `json:"contentName,omitempty"`
	Role        string `json:"role,omitempty"`
	Content     string `json:"content"`
}

// newSessionStart builds the opening event.
func newSessionStart() Envelope {
	return Envelope{Event: Payload{
		SessionStart: &SessionStartEvent{
			InferenceConfiguration: InferenceConfiguration{
				MaxTokens:   inferenceMaxTokens,
				TopP:        inferenceTopP,
				Temperature: inferenceTemperature,
			},
		},
	}}
}

// newPromptStart declares the prompt and its audio output format.
func newPromptStart(promptName, voice string) Envelope {
	if voice == "" {
		voice = DefaultVoice
	}
	return Envelope{Event: Payload{
		PromptStart: &PromptStartEvent{
			PromptName:              promptName,
			TextOutputConfiguration: TextConfiguration{MediaType: "text/plain"},
			AudioOutputConfiguration: AudioConfiguration{
				MediaType:       "audio/lpcm",
				SampleRateHertz: sampleRate,
				SampleSizeBits:  sampleSizeBit,
				ChannelCount:    channelCount,
				VoiceID:         voice,
				Encoding:        "base64",
				AudioType:       "SPEECH",
			},
		},
	}}
}

// newTextContentStart opens a text content block.
func newTextContentStart(promptName, contentName, role string, interactive bool) Envelope {
	return Envelope{Event: Payload{
		ContentStart: &ContentStartEvent{
			PromptName:             promptName,
			ContentName:            contentName,
			Type:                   "TEXT",
			Interactive:            interactive,
			Role:                   role,
			TextInputConfiguration: &TextConfiguration{MediaType: "text/plain"},
		},
	}}
}

// newAudioContentStart opens the interactive audio input block.
func newAudioContentStart(promptName, contentName string) Envelope {
	return Envelope{Event: Payload{
		ContentStart: &ContentStartEvent{
			PromptName:  promptName,
			ContentName: contentName,
			Type:        "AUDIO",
			Interactive: true,
			Role:        "USER",
			AudioInputConfiguration: &AudioConfiguration{
				MediaType:       "audio/lpcm",
				SampleRateHertz: sampleRate,
				SampleSizeBits:  sampleSizeBit,
				ChannelCount:    channelCount,
				AudioType:       "SPEECH",
				Encoding:        "base64",
			},
		},
	}}
}

// newTextInput carries a text payload within an open content block.
func newTextInput(promptName, contentName, content string) Envelope {
	return Envelope{Event: Payload{
		TextInput: &TextInputEvent{
			PromptName:  promptName,
			ContentName: contentName,
			Content:     content,
		},
	}}
}

// newContentEnd closes a content block.
func newContentEnd(promptName, contentName string) Envelope {
	return Envelope{Event: Payload{
		ContentEnd: &ContentEndEvent{
			PromptName:  promptName,
			ContentName: contentName,
		},
	}}
}
