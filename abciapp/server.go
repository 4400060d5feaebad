package abciapp

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	abciserver "github.com/tendermint/tendermint/abci/server"
	abci "github.com/tendermint/tendermint/abci/types"
	tmlog "github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
)

// Server exposes an ABCI application on a socket for an out-of-process
// Tendermint node ("tcp://127.0.0.1:26658" or "unix://market.sock").
type Server struct {
	server service.Service
	addr   string
}

func NewServer(app abci.Application, addr string, log *slog.Logger) (*Server, error) {
	if app == nil {
		return nil, fmt.Errorf("ABCI application cannot be nil")
	}
	if addr == "" {
		return nil, fmt.Errorf("socket address cannot be empty")
	}
	srv := abciserver.NewSocketServer(addr, app)
	if log != nil {
		srv.SetLogger(slogLogger{log.With("component", "abci-server")})
	}
	return &Server{server: srv, addr: addr}, nil
}

func (s *Server) Start() error {
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("failed to start ABCI server: %w", err)
	}
	return nil
}

// Stop shuts the server down and removes a unix socket file.
func (s *Server) Stop() error {
	if s.server.IsRunning() {
		if err := s.server.Stop(); err != nil {
			return fmt.Errorf("failed to stop ABCI server: %w", err)
		}
	}
	if path, ok := strings.CutPrefix(s.addr, "unix://"); ok {
		if _, err := os.Stat(path); err == nil {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (s *Server) IsRunning() bool { return s.server.IsRunning() }

func (s *Server) Addr() string { return s.addr }

// slogLogger adapts slog to the Tendermint logger interface.
type slogLogger struct{ l *slog.Logger }

var _ tmlog.Logger = slogLogger{}

func (s slogLogger) Debug(msg string, keyvals ...interface{}) { s.l.Debug(msg, keyvals...) }
func (s slogLogger) Info(msg string, keyvals ...interface{})  { s.l.Info(msg, keyvals...) }
func (s slogLogger) Error(msg string, keyvals ...interface{}) { s.l.Error(msg, keyvals...) }

func (s slogLogger) With(keyvals ...interface{}) tmlog.Logger {
	return slogLogger{s.l.With(keyvals...)}
}
