package nova

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"

	"github.com/AltairaLabs/voicebridge/credentials"
	"github.com/AltairaLabs/voicebridge/logger"
)

const (
	exceptionType = "exception"

	// streamDialTimeout bounds the response header wait when opening the
	// bidirectional stream.
	streamDialTimeout = 30 * time.Second
)

// chunkPayload is the JSON payload inside each binary event frame: the
// actual event JSON rides base64-encoded in the "bytes" field.
type chunkPayload struct {
	Bytes string `json:"bytes"`
}

// bidiStream is one invoke-with-bidirectional-stream call: input events are
// eventstream-encoded onto the request body pipe, output events decoded
// from the response body.
type bidiStream struct {
	endpoint string
	modelID  string
	cred     *credentials.AWSCredential
	client   *http.Client

	writeMu sync.Mutex
	pipeW   *io.PipeWriter
	encoder *eventstream.Encoder
	resp    *http.Response
	scanner *eventScanner
	cancel  context.CancelFunc
	closed  bool
}

// newBidiStream prepares an unopened stream for one model invocation.
func newBidiStream(region, modelID string, cred *credentials.AWSCredential) *bidiStream {
	return &bidiStream{
		endpoint: credentials.BedrockEndpoint(region),
		modelID:  modelID,
		cred:     cred,
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: streamDialTimeout,
				ForceAttemptHTTP2:     true,
			},
		},
		encoder: eventstream.NewEncoder(),
	}
}

// Open signs and issues the streaming request. The call returns once
// response headers arrive; events flow in both directions afterwards.
//
// ctx bounds only signing and the header wait. The request itself runs on
// a stream-owned context cancelled by Close: callers routinely cancel the
// connect context once Open returns, and the response body must outlive it.
func (s *bidiStream) Open(ctx context.Context) error {
	pipeR, pipeW := io.Pipe()

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	url := fmt.Sprintf("%s/model/%s/invoke-with-bidirectional-stream", s.endpoint, s.modelID)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, url, pipeR)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/vnd.amazon.eventstream")
	req.Header.Set("Accept", "application/vnd.amazon.eventstream")

	if err := s.cred.ApplyStreaming(ctx, req); err != nil {
		cancel()
		_ = pipeW.Close()
		return fmt.Errorf("failed to sign stream request: %w", err)
	}

	logger.Debug("Nova Sonic: opening bidirectional stream", "url", url)

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		_ = pipeW.Close()
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		_ = pipeW.Close()
		cancel()
		return fmt.Errorf("stream rejected: status %d: %s", resp.StatusCode, body)
	}

	s.pipeW = pipeW
	s.resp = resp
	s.scanner = newEventScanner(resp.Body)

	logger.Info("Nova Sonic: bidirectional stream open", "model", s.modelID)
	return nil
}

// Send encodes one event as a chunk frame on the input stream.
func (s *bidiStream) Send(event Envelope) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	payload, err := json.Marshal(chunkPayload{
		Bytes: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal chunk payload: %w", err)
	}

	msg := eventstream.Message{
		Headers: eventstream.Headers{
			{Name: ":event-type", Value: eventstream.StringValue("chunk")},
			{Name: ":content-type", Value: eventstream.StringValue("application/json")},
			{Name: ":message-type", Value: eventstream.StringValue("event")},
		},
		Payload: payload,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed || s.pipeW == nil {
		return fmt.Errorf("stream is not open")
	}

	var buf bytes.Buffer
	if err := s.encoder.Encode(&buf, msg); err != nil {
		return fmt.Errorf("failed to encode event frame: %w", err)
	}
	if _, err := s.pipeW.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write event frame: %w", err)
	}
	return nil
}

// Receive blocks for the next decoded event from the response stream.
// Returns io.EOF when the stream ends cleanly.
func (s *bidiStream) Receive() (Envelope, error) {
	if s.scanner == nil {
		return Envelope{}, fmt.Errorf("stream is not open")
	}

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return Envelope{}, err
		}
		return Envelope{}, io.EOF
	}

	var envelope Envelope
	if err := json.Unmarshal([]byte(s.scanner.Data()), &envelope); err != nil {
		return Envelope{}, fmt.Errorf("failed to parse event: %w", err)
	}
	return envelope, nil
}

// Close ends the input stream and releases the response. Safe to call more
// than once.
func (s *bidiStream) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.pipeW != nil {
		_ = s.pipeW.Close()
	}
	if s.resp != nil {
		_ = s.resp.Body.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// eventScanner decodes AWS binary event-stream frames. Each frame's payload
// is JSON like {"bytes":"<base64>"} where the decoded bytes are a Nova
// Sonic event envelope.
type eventScanner struct {
	decoder *eventstream.Decoder
	reader  io.Reader
	buf     []byte
	data    string
	err     error
}

// newEventScanner creates a scanner that reads AWS binary event-stream frames.
func newEventScanner(r io.Reader) *eventScanner {
	return &eventScanner{
		decoder: eventstream.NewDecoder(),
		reader:  r,
		buf:     make([]byte, 0, 4096),
	}
}

// Scan reads the next event-stream frame. Returns true if a data event was
// successfully decoded, false on EOF or error.
func (s *eventScanner) Scan() bool {
	for {
		msg, err := s.decoder.Decode(s.reader, s.buf)
		if err != nil {
			if err != io.EOF {
				s.err = fmt.Errorf("failed to decode event-stream frame: %w", err)
			}
			return false
		}

		if s.isExceptionEvent(msg) {
			s.err = fmt.Errorf("bedrock stream exception: %s", string(msg.Payload))
			return false
		}

		data, ok := s.decodePayload(msg)
		if !ok {
			continue
		}
		s.data = data
		return true
	}
}

// isExceptionEvent checks if the message is an exception event.
func (s *eventScanner) isExceptionEvent(msg eventstream.Message) bool {
	if val := msg.Headers.Get(":event-type"); val != nil {
		if str, ok := val.(eventstream.StringValue); ok && string(str) == exceptionType {
			return true
		}
	}
	if val := msg.Headers.Get(":message-type"); val != nil {
		if str, ok := val.(eventstream.StringValue); ok && string(str) == exceptionType {
			return true
		}
	}
	return false
}

// decodePayload extracts the event JSON from a frame. Returns the decoded
// string and true if successful, or empty and false to skip.
func (s *eventScanner) decodePayload(msg eventstream.Message) (string, bool) {
	var payload chunkPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return "", false
	}
	if payload.Bytes == "" {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(payload.Bytes)
	if err != nil {
		s.err = fmt.Errorf("failed to decode base64 payload: %w", err)
		return "", false
	}
	return string(decoded), true
}

// Data returns the decoded event JSON from the last scanned frame.
func (s *eventScanner) Data() string {
	return s.data
}

// Err returns any error encountered during scanning.
func (s *eventScanner) Err() error {
	return s.err
}
