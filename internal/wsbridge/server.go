// Package wsbridge carries the two WebSocket surfaces: a local control
// server accepting text commands, and a sink client pushing finished
// transcriptions to an external consumer.
package wsbridge

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// CommandToggle flips recording on or off.
	CommandToggle = "TOGGLE_RECORD"
	// CommandPing answers with PONG, a cheap liveness probe.
	CommandPing = "PING"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The server binds to loopback only; origin checks add nothing.
		return true
	},
}

// Toggler is the recording switch the control server drives.
type Toggler interface {
	ToggleRecording() (recording bool, err error)
}

// Server is the command endpoint, bound to 127.0.0.1.
type Server struct {
	logger  *logrus.Logger
	toggler Toggler
	port    int

	httpSrv *http.Server
	addr    string
}

func NewServer(port int, toggler Toggler, logger *logrus.Logger) *Server {
	return &Server{logger: logger, toggler: toggler, port: port}
}

// Start begins accepting connections. It returns once the listener is
// bound, so callers know the port is taken or free immediately.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("websocket server listen %s: %w", addr, err)
	}
	s.addr = ln.Addr().String()
	s.httpSrv = &http.Server{Handler: mux}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("websocket server: %v", err)
		}
	}()
	s.logger.Infof("websocket command server on ws://%s", s.addr)
	return nil
}

// Addr reports the bound address, useful when the port was 0.
func (s *Server) Addr() string { return s.addr }

func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	s.logger.WithField("remote", conn.RemoteAddr().String()).Debug("command client connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debugf("command client read: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		reply := s.dispatch(strings.TrimSpace(string(data)))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			s.logger.Debugf("command client write: %v", err)
			return
		}
	}
}

func (s *Server) dispatch(cmd string) string {
	switch strings.ToUpper(cmd) {
	case CommandToggle:
		recording, err := s.toggler.ToggleRecording()
		if err != nil {
			s.logger.Errorf("toggle via websocket: %v", err)
			return "ERROR " + err.Error()
		}
		if recording {
			return "OK RECORDING"
		}
		return "OK STOPPED"
	case CommandPing:
		return "PONG"
	default:
		return fmt.Sprintf("ERROR unknown command %q", cmd)
	}
}

// funcToggler adapts a closure to the Toggler interface.
type funcToggler struct {
	fn func() (bool, error)
	mu sync.Mutex
}

// TogglerFunc wraps fn as a Toggler, serializing calls.
func TogglerFunc(fn func() (bool, error)) Toggler {
	return &funcToggler{fn: fn}
}

func (f *funcToggler) ToggleRecording() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fn()
}
