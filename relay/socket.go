package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/voicebridge/logger"
	"github.com/AltairaLabs/voicebridge/metrics/prometheus"
)

const (
	// frameDuration is the pacing interval for playback frames.
	frameDuration = 20 * time.Millisecond

	// maxPlaybackQueue bounds the playback queue; the oldest frame is
	// dropped when a new one arrives at capacity.
	maxPlaybackQueue = 50

	// initialBufferCount is how many frames must be queued before
	// playback starts, absorbing network jitter at stream start.
	initialBufferCount = 2

	socketDialTimeout = 10 * time.Second
	socketWriteWait   = 10 * time.Second
)

// controlMessage is the text-frame protocol on the media socket.
type controlMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// MediaSocket is the client end of a media socket: binary frames carry raw
// PCM in both directions, text frames carry JSON control messages. It
// serves as both AudioSource (frames received from the socket, paced and
// buffered for playback) and AudioSink (frames pushed to the socket).
//
// A {"type":"clear"} control frame flushes the playback queue, cutting off
// assistant audio on barge-in.
type MediaSocket struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	queueMu  sync.Mutex
	queue    [][]byte
	started  bool
	notifyCh chan struct{}

	limiter *rate.Limiter

	closeOnce sync.Once
	closedCh  chan struct{}
	readErr   error
}

// DialMediaSocket connects to a media socket server and starts the read
// loop.
func DialMediaSocket(ctx context.Context, url string) (*MediaSocket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: socketDialTimeout}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial media socket %q: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	s := &MediaSocket{
		conn:     conn,
		notifyCh: make(chan struct{}, 1),
		limiter:  rate.NewLimiter(rate.Every(frameDuration), 1),
		closedCh: make(chan struct{}),
	}
	go s.readLoop()

	logger.Info("media socket connected", "url", url)
	return s, nil
}

// readLoop consumes socket messages: binary frames and base64 audio
// control frames feed the playback queue, clear frames flush it.
func (s *MediaSocket) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.queueMu.Lock()
			s.readErr = err
			s.queueMu.Unlock()
			s.Close()
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.enqueue(data)
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Debug("ignoring invalid control frame", "error", err)
				continue
			}
			switch msg.Type {
			case "audio":
				audio, err := base64.StdEncoding.DecodeString(msg.Data)
				if err != nil {
					logger.Debug("ignoring invalid audio frame", "error", err)
					continue
				}
				s.enqueue(audio)
			case "clear":
				logger.Info("clear received, flushing playback queue")
				s.Flush()
			default:
				logger.Debug("ignoring unknown control frame", "type", msg.Type)
			}
		}
	}
}

// enqueue adds a frame to the playback queue, dropping the oldest frame
// when the queue is full.
func (s *MediaSocket) enqueue(frame []byte) {
	s.queueMu.Lock()
	if len(s.queue) >= maxPlaybackQueue {
		s.queue = s.queue[1:]
		prometheus.RecordPlaybackDrop()
	}
	s.queue = append(s.queue, frame)
	if !s.started && len(s.queue) >= initialBufferCount {
		s.started = true
	}
	s.queueMu.Unlock()

	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// ReadFrame returns the next playback frame, paced to one frame per 20 ms.
// It blocks until the initial buffer has filled and a frame is available,
// or until the context is cancelled or the socket closes.
func (s *MediaSocket) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		s.queueMu.Lock()
		if s.started && len(s.queue) > 0 {
			frame := s.queue[0]
			s.queue = s.queue[1:]
			s.queueMu.Unlock()

			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return frame, nil
		}
		readErr := s.readErr
		s.queueMu.Unlock()

		if readErr != nil {
			return nil, fmt.Errorf("media socket closed: %w", readErr)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closedCh:
			return nil, fmt.Errorf("media socket closed")
		case <-s.notifyCh:
		}
	}
}

// WriteFrame sends one PCM frame as a binary message.
func (s *MediaSocket) WriteFrame(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Flush discards every queued playback frame. The next frames buffer again
// before playback resumes.
func (s *MediaSocket) Flush() {
	s.queueMu.Lock()
	flushed := len(s.queue)
	s.queue = nil
	s.started = false
	s.queueMu.Unlock()

	if flushed > 0 {
		logger.Debug("playback queue flushed", "frames", flushed)
	}
}

// Close shuts the socket down. Safe to call more than once.
func (s *MediaSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closedCh)

		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}
