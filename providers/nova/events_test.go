package nova

import (
	"encoding/json"
	"testing"
)

func TestSessionStartEvent(t *testing.T) {
	data, err := json.Marshal(newSessionStart())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var parsed map[string]map[string]map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	inference := parsed["event"]["sessionStart"]["inferenceConfiguration"].(map[string]interface{})
	if inference["maxTokens"] != float64(1024) {
		t.Errorf("maxTokens = %v, want 1024", inference["maxTokens"])
	}
	if inference["topP"] != 0.9 {
		t.Errorf("topP = %v, want 0.9", inference["topP"])
	}
	if inference["temperature"] != 0.7 {
		t.Errorf("temperature = %v, want 0.7", inference["temperature"])
	}
}

func TestPromptStartEvent(t *testing.T) {
	data, err := json.Marshal(newPromptStart("prompt-1", ""))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var envelope map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	var prompt PromptStartEvent
	if err := json.Unmarshal(envelope["event"]["promptStart"], &prompt); err != nil {
		t.Fatalf("promptStart unmarshal failed: %v", err)
	}

	if prompt.PromptName != "prompt-1" {
		t.Errorf("promptName = %q", prompt.PromptName)
	}
	audio := prompt.AudioOutputConfiguration
	if audio.MediaType != "audio/lpcm" || audio.SampleRateHertz != 24000 ||
		audio.SampleSizeBits != 16 || audio.ChannelCount != 1 {
		t.Errorf("audio output config = %+v", audio)
	}
	if audio.VoiceID != DefaultVoice {
		t.Errorf("voiceId = %q, want %q", audio.VoiceID, DefaultVoice)
	}
	if audio.Encoding != "base64" || audio.AudioType != "SPEECH" {
		t.Errorf("encoding/audioType = %q/%q", audio.Encoding, audio.AudioType)
	}
}

func TestContentStartEvents(t *testing.T) {
	system := newTextContentStart("p", "c1", "SYSTEM", false).Event.ContentStart
	if system.Type != "TEXT" || system.Interactive || system.Role != "SYSTEM" {
		t.Errorf("system content start = %+v", system)
	}
	if system.TextInputConfiguration.MediaType != "text/plain" {
		t.Errorf("text media type = %q", system.TextInputConfiguration.MediaType)
	}

	audio := newAudioContentStart("p", "c2").Event.ContentStart
	if audio.Type != "AUDIO" || !audio.Interactive || audio.Role != "USER" {
		t.Errorf("audio content start = %+v", audio)
	}
	cfg := audio.AudioInputConfiguration
	if cfg.SampleRateHertz != 24000 || cfg.SampleSizeBits != 16 || cfg.ChannelCount != 1 {
		t.Errorf("audio input config = %+v", cfg)
	}
}

func TestSessionEndShape(t *testing.T) {
	data, err := json.Marshal(Envelope{Event: Payload{SessionEnd: &SessionEndEvent{}}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"event":{"sessionEnd":{}}}` {
		t.Errorf("sessionEnd = %s", data)
	}
}

func TestEnvelopeParsesServerEvents(t *testing.T) {
	raw := `{"event":{"textOutput":{"role":"ASSISTANT","content":"hello"}}}`

	var envelope Envelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if envelope.Event.TextOutput == nil {
		t.Fatal("textOutput not parsed")
	}
	if envelope.Event.TextOutput.Role != "ASSISTANT" || envelope.Event.TextOutput.Content != "hello" {
		t.Errorf("textOutput = %+v", envelope.Event.TextOutput)
	}
	if envelope.Event.AudioOutput != nil {
		t.Error("audioOutput should be nil")
	}
}
