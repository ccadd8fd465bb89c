package openai

import (
	"encoding/json"
	"testing"
)

func TestParseServerEvent(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		wantType interface{}
	}{
		{
			name:     "error event",
			json:     `{"type":"error","error":{"type":"invalid_request_error","code":"bad","message":"oops"}}`,
			wantType: &ErrorEvent{},
		},
		{
			name:     "session created",
			json:     `{"type":"session.created"}`,
			wantType: &SessionCreatedEvent{},
		},
		{
			name:     "session updated",
			json:     `{"type":"session.updated"}`,
			wantType: &SessionUpdatedEvent{},
		},
		{
			name:     "speech started",
			json:     `{"type":"input_audio_buffer.speech_started","audio_start_ms":120,"item_id":"item_1"}`,
			wantType: &InputAudioBufferSpeechStartedEvent{},
		},
		{
			name:     "speech stopped",
			json:     `{"type":"input_audio_buffer.speech_stopped","audio_end_ms":860,"item_id":"item_1"}`,
			wantType: &InputAudioBufferSpeechStoppedEvent{},
		},
		{
			name:     "audio delta",
			json:     `{"type":"response.audio.delta","delta":"AAAA"}`,
			wantType: &ResponseAudioDeltaEvent{},
		},
		{
			name:     "output audio delta alias",
			json:     `{"type":"response.output_audio.delta","delta":"AAAA"}`,
			wantType: &ResponseAudioDeltaEvent{},
		},
		{
			name:     "transcript done",
			json:     `{"type":"response.audio_transcript.done","transcript":"hello"}`,
			wantType: &ResponseAudioTranscriptDoneEvent{},
		},
		{
			name:     "input transcription completed",
			json:     `{"type":"conversation.item.input_audio_transcription.completed","transcript":"hi"}`,
			wantType: &InputAudioTranscriptionCompletedEvent{},
		},
		{
			name:     "unknown type falls back to base",
			json:     `{"type":"rate_limits.updated"}`,
			wantType: &ServerEvent{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseServerEvent([]byte(tt.json))
			if err != nil {
				t.Fatalf("ParseServerEvent failed: %v", err)
			}

			if gotType, wantType := typeName(event), typeName(tt.wantType); gotType != wantType {
				t.Errorf("event type = %s, want %s", gotType, wantType)
			}
		})
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case *ErrorEvent:
		return "ErrorEvent"
	case *SessionCreatedEvent:
		return "SessionCreatedEvent"
	case *SessionUpdatedEvent:
		return "SessionUpdatedEvent"
	case *InputAudioBufferSpeechStartedEvent:
		return "InputAudioBufferSpeechStartedEvent"
	case *InputAudioBufferSpeechStoppedEvent:
		return "InputAudioBufferSpeechStoppedEvent"
	case *InputAudioTranscriptionCompletedEvent:
		return "InputAudioTranscriptionCompletedEvent"
	case *ResponseAudioDeltaEvent:
		return "ResponseAudioDeltaEvent"
	case *ResponseAudioDoneEvent:
		return "ResponseAudioDoneEvent"
	case *ResponseAudioTranscriptDoneEvent:
		return "ResponseAudioTranscriptDoneEvent"
	case *ServerEvent:
		return "ServerEvent"
	default:
		return "unknown"
	}
}

func TestParseServerEventInvalidJSON(t *testing.T) {
	if _, err := ParseServerEvent([]byte("{not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestNewSessionConfig(t *testing.T) {
	cfg := newSessionConfig("gpt-realtime", "Be concise.", "")

	data, err := json.Marshal(SessionUpdateEvent{
		ClientEvent: ClientEvent{Type: "session.update"},
		Session:     cfg,
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	session := parsed["session"].(map[string]interface{})
	if session["type"] != "realtime" {
		t.Errorf("session.type = %v, want realtime", session["type"])
	}
	if session["instructions"] != "Be concise." {
		t.Errorf("instructions = %v", session["instructions"])
	}

	audio := session["audio"].(map[string]interface{})
	input := audio["input"].(map[string]interface{})
	format := input["format"].(map[string]interface{})
	if format["type"] != "audio/pcm" || format["rate"] != float64(24000) {
		t.Errorf("input format = %v", format)
	}

	vad := input["turn_detection"].(map[string]interface{})
	if vad["type"] != "server_vad" {
		t.Errorf("turn_detection.type = %v", vad["type"])
	}
	if vad["threshold"] != 0.5 {
		t.Errorf("threshold = %v, want 0.5", vad["threshold"])
	}
	if vad["prefix_padding_ms"] != float64(300) {
		t.Errorf("prefix_padding_ms = %v, want 300", vad["prefix_padding_ms"])
	}
	if vad["silence_duration_ms"] != float64(500) {
		t.Errorf("silence_duration_ms = %v, want 500", vad["silence_duration_ms"])
	}
	if vad["create_response"] != true || vad["interrupt_response"] != true {
		t.Errorf("response flags = %v / %v", vad["create_response"], vad["interrupt_response"])
	}

	output := audio["output"].(map[string]interface{})
	if output["voice"] != DefaultVoice {
		t.Errorf("voice = %v, want %s", output["voice"], DefaultVoice)
	}
}
