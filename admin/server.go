package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	DefaultAddr         = "127.0.0.1:56789"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultConnTimeout  = 5 * time.Second
)

// Executor runs setupc without further escalation.
type Executor func(ctx context.Context, args []string, cwd string) (stdout, stderr string, err error)

type ServerConfig struct {
	Addr  string
	Token string

	// ParentPID, when positive, is the process that launched the service. The
	// service stops once it exits.
	ParentPID int

	// PollInterval bounds each accept so the parent check runs regularly.
	PollInterval time.Duration

	// ConnTimeout bounds reading the request and writing the response.
	ConnTimeout time.Duration
}

// Server is the elevated side of the escalation channel. It handles one
// request per connection, one connection at a time.
type Server struct {
	logger zerolog.Logger
	cfg    ServerConfig
	exec   Executor
}

// allow tests to fake the parent process
var parentAlive = processAlive

func NewServer(cfg ServerConfig, exec Executor, logger zerolog.Logger) (*Server, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if exec == nil {
		return nil, errors.New("admin server needs an executor")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = DefaultConnTimeout
	}
	return &Server{
		logger: logger.With().Str("component", "admin-service").Logger(),
		cfg:    cfg,
		exec:   exec,
	}, nil
}

// ListenAndServe binds the configured loopback address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("admin service listen on %s: %w", s.cfg.Addr, err)
	}
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("admin service listen on %s: not a TCP listener", s.cfg.Addr)
	}
	return s.Serve(ctx, tl)
}

// Serve handles requests on ln until ctx is done, a Shutdown request is
// received or the parent process exits. It closes ln.
func (s *Server) Serve(ctx context.Context, ln *net.TCPListener) error {
	defer func() { _ = ln.Close() }()
	s.logger.Info().Str("addr", ln.Addr().String()).Int("parent_pid", s.cfg.ParentPID).Msg("admin service listening")

	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("admin service stopped")
			return nil
		}
		if s.cfg.ParentPID > 0 && !parentAlive(s.cfg.ParentPID) {
			s.logger.Info().Int("parent_pid", s.cfg.ParentPID).Msg("parent process exited, admin service stopping")
			return nil
		}

		if err := ln.SetDeadline(time.Now().Add(s.cfg.PollInterval)); err != nil {
			return fmt.Errorf("admin service accept deadline: %w", err)
		}
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error().Err(err).Msg("accept failed")
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}

		if s.handle(ctx, conn) {
			s.logger.Info().Msg("shutdown requested, admin service stopping")
			return nil
		}
	}
}

// handle serves one connection and reports whether the service should stop.
func (s *Server) handle(ctx context.Context, conn net.Conn) bool {
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ConnTimeout))

	var env Envelope
	if err := json.NewDecoder(conn).Decode(&env); err != nil {
		s.logger.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("malformed admin request")
		s.reply(conn, failure("malformed request: "+err.Error()))
		return false
	}

	id := env.ID
	if id == "" {
		id = newRequestID()
	}
	log := s.logger.With().Str("request", id).Logger()

	if subtle.ConstantTimeCompare([]byte(env.Token), []byte(s.cfg.Token)) != 1 {
		log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("rejected request with invalid token")
		s.reply(conn, failure(ErrInvalidToken.Error()))
		return false
	}

	if env.Payload.Shutdown {
		s.reply(conn, Response{Success: true})
		return true
	}

	req := env.Payload.Execute
	if req == nil {
		s.reply(conn, failure("missing payload"))
		return false
	}
	log.Info().Strs("args", req.Args).Str("cwd", req.Cwd).Msg("executing setupc")
	stdout, stderr, err := s.exec(ctx, req.Args, req.Cwd)
	resp := Response{Success: err == nil, Stdout: stdout, Stderr: stderr}
	if err != nil {
		msg := err.Error()
		resp.Error = &msg
		log.Error().Err(err).Msg("setupc failed")
	}
	s.reply(conn, resp)
	return false
}

func (s *Server) reply(conn net.Conn, resp Response) {
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.ConnTimeout))
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("failed to write admin response")
	}
}
