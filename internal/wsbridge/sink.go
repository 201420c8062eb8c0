package wsbridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// sinkPayload is the wire format consumers expect.
type sinkPayload struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Sink pushes transcriptions to an external WebSocket endpoint. The
// connection is optional infrastructure: if the far side is down, the
// sink reconnects in the background and the pipeline keeps running.
type Sink struct {
	logger    *logrus.Logger
	url       string
	prefix    string
	reconnect time.Duration

	out chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSink(url, prefix string, logger *logrus.Logger) *Sink {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sink{
		logger:    logger,
		url:       url,
		prefix:    prefix,
		reconnect: 10 * time.Second,
		out:       make(chan string, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the sender loop.
func (s *Sink) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Send queues one transcription. When the outgoing queue is full the
// oldest entry is dropped; a dead consumer must not stall dictation.
func (s *Sink) Send(text string) {
	for {
		select {
		case s.out <- text:
			return
		default:
		}
		select {
		case old := <-s.out:
			s.logger.Warnf("sink queue full, dropping %q", truncate(old, 40))
		default:
		}
	}
}

func (s *Sink) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sink) loop() {
	defer s.wg.Done()
	var conn *websocket.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		if conn == nil {
			c, err := s.dial()
			if err != nil {
				s.logger.Warnf("sink connect %s: %v (retrying in %s)", s.url, err, s.reconnect)
				select {
				case <-time.After(s.reconnect):
					continue
				case <-s.ctx.Done():
					return
				}
			}
			conn = c
			s.logger.Infof("sink connected to %s", s.url)
		}

		select {
		case <-s.ctx.Done():
			return
		case text := <-s.out:
			payload, err := json.Marshal(sinkPayload{Source: "stt", Text: s.prefix + text})
			if err != nil {
				s.logger.Errorf("sink marshal: %v", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Warnf("sink write: %v", err)
				conn.Close()
				conn = nil
				// Put the text back so the reconnect can retry it.
				s.Send(text)
			}
		case <-time.After(30 * time.Second):
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debugf("sink ping: %v", err)
				conn.Close()
				conn = nil
			}
		}
	}
}

func (s *Sink) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	return conn, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
