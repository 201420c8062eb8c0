package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"murmur/internal/audio"
	"murmur/internal/config"
	"murmur/internal/control"
	"murmur/internal/dispatch"
	"murmur/internal/sink"
	"murmur/internal/textproc"
	"murmur/internal/wsbridge"

	"github.com/sirupsen/logrus"
)

// Server owns the daemon: the recording session, text post-processing,
// sinks, control socket, and metrics.
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	proc      *textproc.Processor
	sinks     []sink.Sink
	wsSink    *wsbridge.Sink
	startedAt time.Time
	metrics   metrics

	sessMu sync.Mutex
	sess   *session

	transcriptsMu sync.Mutex
	transcripts   []control.Transcript
}

// Serve runs the daemon until interrupted. Recording starts immediately;
// TOGGLE_RECORD and the toggle op flip it at runtime.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	proc, err := textproc.New(cfg, logger)
	if err != nil {
		return err
	}

	srv := &Server{
		cfg:         cfg,
		logger:      logger,
		proc:        proc,
		startedAt:   time.Now(),
		transcripts: make([]control.Transcript, 0, cfg.UI.StatusTail),
	}
	srv.metrics.reset()

	if cfg.Command.Enabled {
		cmdSink, err := sink.NewCommand(cfg, logger)
		if err != nil {
			return err
		}
		srv.sinks = append(srv.sinks, cmdSink)
	}
	if cfg.Output.Enabled {
		fileSink, err := sink.NewFile(cfg)
		if err != nil {
			return err
		}
		defer fileSink.Close()
		srv.sinks = append(srv.sinks, fileSink)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Rules.Watch {
		if err := proc.Watch(ctx); err != nil {
			logger.Warnf("rule watcher: %v", err)
		}
	}

	if cfg.WebSocket.SinkEnabled {
		srv.wsSink = wsbridge.NewSink(cfg.WebSocket.SinkURL, cfg.WebSocket.STTPrefix, logger)
		srv.wsSink.Start()
		defer srv.wsSink.Stop()
	}

	if cfg.WebSocket.ServerEnabled {
		wsSrv := wsbridge.NewServer(cfg.WebSocket.ServerPort, srv, logger)
		if err := wsSrv.Start(); err != nil {
			return err
		}
		defer wsSrv.Stop()
	}

	if cfg.Metrics.Enabled {
		go srv.metricsServe(ctx.Done(), cfg.Metrics.Addr, logger)
	}

	go srv.controlLoop(ctx)

	if _, err := srv.ToggleRecording(); err != nil {
		// A missing mic or model should not kill the daemon; a later
		// toggle can retry once the problem is fixed.
		logger.Errorf("initial recording start failed: %v", err)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case s := <-sigCh:
		logger.Infof("received signal %s, shutting down", s)
		cancel()
	case <-ctx.Done():
	}

	srv.stopSession()
	return nil
}

// ToggleRecording starts a session if none is running, stops the running
// one otherwise. It reports the new state.
func (s *Server) ToggleRecording() (bool, error) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if s.sess != nil {
		sess := s.sess
		s.sess = nil
		sess.stop()
		return false, nil
	}
	sess, err := startSession(s.cfg, s.logger, s.metrics.incSegments, s.handleResult, func(n int64) {
		s.metrics.droppedFrames.Add(n)
	})
	if err != nil {
		var de *audio.DeviceError
		if errors.As(err, &de) {
			s.logger.Errorf("device error: %v", de)
		}
		return false, err
	}
	s.sess = sess
	return true, nil
}

func (s *Server) stopSession() {
	s.sessMu.Lock()
	sess := s.sess
	s.sess = nil
	s.sessMu.Unlock()
	if sess != nil {
		sess.stop()
	}
}

func (s *Server) recording() (bool, string) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if s.sess == nil {
		return false, ""
	}
	return true, s.sess.id
}

// handleResult receives dispatcher results in sequence order, cleans the
// text, and fans it out to every configured sink.
func (s *Server) handleResult(res dispatch.Result) {
	s.metrics.incResults()
	if res.Err != nil {
		if errors.Is(res.Err, context.Canceled) {
			s.logger.WithField("seq", res.Seq).Debug("segment cancelled at shutdown")
			return
		}
		s.metrics.incErrors()
		s.logger.WithField("seq", res.Seq).Errorf("transcription failed: %v", res.Err)
		return
	}

	text := s.proc.Process(res.Text, s.cfg.Backend.Mode)
	if text == "" {
		s.metrics.incEmpty()
		s.logger.WithField("seq", res.Seq).Debug("segment produced no usable text")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"seq":   res.Seq,
		"audio": res.Audio.Round(10 * time.Millisecond),
	}).Infof("transcribed: %q", text)
	s.recordTranscript(text)
	s.emit(text)
}

func (s *Server) emit(text string) {
	if s.wsSink != nil {
		s.wsSink.Send(text)
	}
	for _, snk := range s.sinks {
		if err := snk.Emit(context.Background(), text); err != nil {
			s.logger.Errorf("sink: %v", err)
		}
	}
}

func (s *Server) recordTranscript(text string) {
	entry := control.Transcript{
		Text:      text,
		Timestamp: time.Now(),
	}
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	s.transcripts = append(s.transcripts, entry)
	if len(s.transcripts) > s.cfg.UI.StatusTail {
		s.transcripts = s.transcripts[len(s.transcripts)-s.cfg.UI.StatusTail:]
	}
}

func (s *Server) copyTranscripts() []control.Transcript {
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	out := make([]control.Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

func (s *Server) controlLoop(ctx context.Context) {
	ln, err := net.Listen("unix", s.cfg.Paths.SocketPath)
	if err != nil {
		s.logger.Errorf("control listen: %v", err)
		return
	}
	defer func() {
		if err := ln.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control listener close: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		return
	}
	switch req.Op {
	case "status":
		recording, sid := s.recording()
		resp := control.Status{
			Running:       true,
			Recording:     recording,
			UptimeSec:     time.Since(s.startedAt).Seconds(),
			SessionID:     sid,
			Mode:          s.cfg.Segmentation.Mode,
			Backend:       s.cfg.Backend.Mode,
			Segments:      s.metrics.segments.Load(),
			Results:       s.metrics.results.Load(),
			Errors:        s.metrics.errors.Load(),
			DroppedFrames: s.metrics.droppedFrames.Load(),
			Transcripts:   s.copyTranscripts(),
		}
		_ = json.NewEncoder(conn).Encode(resp)
	case "health":
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: true, Message: "ok"})
	case "toggle":
		recording, err := s.ToggleRecording()
		if err != nil {
			_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: false, Message: err.Error()})
			return
		}
		msg := "recording stopped"
		if recording {
			msg = "recording started"
		}
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: true, Message: msg})
	case "test-text":
		// Run a given string through the rule pipeline and sinks,
		// useful for checking filters without speaking.
		text := s.proc.Process(req.Text, s.cfg.Backend.Mode)
		if text != "" {
			s.recordTranscript(text)
			s.emit(text)
		}
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: true, Message: text})
	case "add-replacement":
		if err := s.proc.AddReplacement(req.Pattern, req.Replace); err != nil {
			_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: false, Message: err.Error()})
			return
		}
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{
			OK:      true,
			Message: fmt.Sprintf("%d replacement rules active", len(s.proc.Replacements())),
		})
	default:
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: false, Message: fmt.Sprintf("unknown op %q", req.Op)})
	}
}
