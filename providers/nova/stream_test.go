package nova

import (
	"bytes"
	"encoding/base64"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
)

// encodeChunkFrame creates a single binary event-stream frame with a
// base64-encoded JSON payload.
func encodeChunkFrame(t *testing.T, data string) []byte {
	t.Helper()
	encoded := base64.StdEncoding.EncodeToString([]byte(data))
	payload := []byte(`{"bytes":"` + encoded + `"}`)

	msg := eventstream.Message{
		Headers: eventstream.Headers{
			{Name: ":event-type", Value: eventstream.StringValue("chunk")},
			{Name: ":content-type", Value: eventstream.StringValue("application/json")},
			{Name: ":message-type", Value: eventstream.StringValue("event")},
		},
		Payload: payload,
	}

	var buf bytes.Buffer
	encoder := eventstream.NewEncoder()
	if err := encoder.Encode(&buf, msg); err != nil {
		t.Fatalf("failed to encode event: %v", err)
	}
	return buf.Bytes()
}

func TestEventScannerSingleEvent(t *testing.T) {
	event := `{"event":{"textOutput":{"content":"hello"}}}`
	data := encodeChunkFrame(t, event)

	scanner := newEventScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		t.Fatalf("expected Scan to return true, got false; err: %v", scanner.Err())
	}
	if scanner.Data() != event {
		t.Errorf("expected data %q, got %q", event, scanner.Data())
	}
	if scanner.Scan() {
		t.Error("expected Scan to return false after last event")
	}
	if scanner.Err() != nil {
		t.Errorf("expected no error, got %v", scanner.Err())
	}
}

func TestEventScannerMultipleEvents(t *testing.T) {
	events := []string{
		`{"event":{"completionStart":{}}}`,
		`{"event":{"audioOutput":{"content":"AAAA"}}}`,
		`{"event":{"textOutput":{"role":"ASSISTANT","content":"hi"}}}`,
		`{"event":{"completionEnd":{}}}`,
	}

	var buf bytes.Buffer
	for _, event := range events {
		buf.Write(encodeChunkFrame(t, event))
	}

	scanner := newEventScanner(bytes.NewReader(buf.Bytes()))

	var scanned []string
	for scanner.Scan() {
		scanned = append(scanned, scanner.Data())
	}

	if scanner.Err() != nil {
		t.Fatalf("unexpected error: %v", scanner.Err())
	}
	if len(scanned) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(scanned))
	}
	for i, expected := range events {
		if scanned[i] != expected {
			t.Errorf("event %d: expected %q, got %q", i, expected, scanned[i])
		}
	}
}

func TestEventScannerEmptyReader(t *testing.T) {
	scanner := newEventScanner(bytes.NewReader(nil))

	if scanner.Scan() {
		t.Error("expected Scan to return false on empty reader")
	}
	if scanner.Err() != nil {
		t.Errorf("expected no error on empty reader, got %v", scanner.Err())
	}
}

func TestEventScannerExceptionEvent(t *testing.T) {
	msg := eventstream.Message{
		Headers: eventstream.Headers{
			{Name: ":event-type", Value: eventstream.StringValue("exception")},
			{Name: ":message-type", Value: eventstream.StringValue("exception")},
		},
		Payload: []byte(`{"message":"throttling"}`),
	}

	var buf bytes.Buffer
	encoder := eventstream.NewEncoder()
	if err := encoder.Encode(&buf, msg); err != nil {
		t.Fatalf("failed to encode exception: %v", err)
	}

	scanner := newEventScanner(bytes.NewReader(buf.Bytes()))

	if scanner.Scan() {
		t.Error("expected Scan to return false on exception event")
	}
	if scanner.Err() == nil {
		t.Fatal("expected an error for exception event")
	}
}

func TestSendReceiveRoundTrip(t *testing.T) {
	// Wire a stream's input pipe straight into a scanner to verify the
	// chunk framing round-trips an envelope.
	pipeR, pipeW := io.Pipe()
	stream := &bidiStream{
		pipeW:   pipeW,
		encoder: eventstream.NewEncoder(),
	}

	go func() {
		if err := stream.Send(newSessionStart()); err != nil {
			t.Errorf("Send failed: %v", err)
		}
		_ = pipeW.Close()
	}()

	scanner := newEventScanner(pipeR)
	if !scanner.Scan() {
		t.Fatalf("no frame decoded; err: %v", scanner.Err())
	}

	want := `"maxTokens":1024`
	if !bytes.Contains([]byte(scanner.Data()), []byte(want)) {
		t.Errorf("decoded event %q does not contain %q", scanner.Data(), want)
	}
}

func TestSendAfterClose(t *testing.T) {
	_, pipeW := io.Pipe()
	stream := &bidiStream{
		pipeW:   pipeW,
		encoder: eventstream.NewEncoder(),
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := stream.Send(newSessionStart()); err == nil {
		t.Error("Send after Close should fail")
	}
}
