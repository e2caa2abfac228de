package admin

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultConnectAttempts = 20
	DefaultConnectInterval = 500 * time.Millisecond
	DefaultDialTimeout     = 2 * time.Second

	// DefaultResponseTimeout covers a driver install, which can take a while.
	DefaultResponseTimeout = 2 * time.Minute

	defaultBreakerFailures = 3
	defaultBreakerTimeout  = 30 * time.Second
)

// ServiceCommand is the subcommand the elevated relaunch runs.
const ServiceCommand = "admin-service"

// Launcher starts the admin service with administrator rights.
type Launcher interface {
	Launch(ctx context.Context, args []string) error
}

type ClientConfig struct {
	Addr  string
	Token string

	ConnectAttempts int
	ConnectInterval time.Duration
	DialTimeout     time.Duration
	ResponseTimeout time.Duration

	// BreakerFailures consecutive transport failures make the client fail
	// fast for BreakerTimeout instead of prompting for elevation again.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// ServiceArgs are appended to the relaunched admin-service command line,
	// e.g. the config file the service should load.
	ServiceArgs []string
}

// Client sends driver commands to the admin service, launching it on first
// use.
type Client struct {
	logger   zerolog.Logger
	cfg      ClientConfig
	launcher Launcher
	breaker  *gobreaker.CircuitBreaker[*Response]

	// launchMu keeps concurrent callers from each raising an elevation prompt.
	launchMu sync.Mutex
}

func NewClient(cfg ClientConfig, launcher Launcher, logger zerolog.Logger) *Client {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Token == "" {
		cfg.Token = ProcessToken()
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = DefaultConnectAttempts
	}
	if cfg.ConnectInterval <= 0 {
		cfg.ConnectInterval = DefaultConnectInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = defaultBreakerTimeout
	}

	c := &Client{
		logger:   logger.With().Str("component", "admin-client").Logger(),
		cfg:      cfg,
		launcher: launcher,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "admin-service",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state change")
		},
		// a command that ran and failed means the channel works
		IsSuccessful: func(err error) bool {
			var ee *EscalationError
			return err == nil || (errors.As(err, &ee) && ee.remote)
		},
	})
	return c
}

// Execute runs setupc through the admin service and returns its stdout. It
// satisfies com0com.Escalator.
func (c *Client) Execute(ctx context.Context, args []string, cwd string) (string, error) {
	env := Envelope{
		Token:   c.cfg.Token,
		Payload: Payload{Execute: &ExecuteSetupc{Args: args, Cwd: cwd}},
		ID:      newRequestID(),
	}
	log := c.logger.With().Str("request", env.ID).Logger()
	log.Info().Strs("args", args).Msg("sending command to admin service")

	resp, err := c.breaker.Execute(func() (*Response, error) {
		conn, err := c.connect(ctx)
		if err != nil {
			return nil, err
		}
		return c.roundTrip(conn, env)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &EscalationError{Reason: "admin service is failing repeatedly", Err: err}
		}
		log.Error().Err(err).Msg("admin service request failed")
		return "", err
	}
	return resp.Stdout, nil
}

// Shutdown asks a running admin service to exit. It does not launch one.
func (c *Client) Shutdown(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		// nothing listening
		return nil
	}
	env := Envelope{Token: c.cfg.Token, Payload: Payload{Shutdown: true}, ID: newRequestID()}
	_, err = c.roundTrip(conn, env)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	return d.DialContext(ctx, "tcp", c.cfg.Addr)
}

// connect dials the service, launching it and polling for it when nothing
// is listening yet.
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	if conn, err := c.dial(ctx); err == nil {
		return conn, nil
	}

	c.launchMu.Lock()
	defer c.launchMu.Unlock()

	// another caller may have launched it while we waited
	if conn, err := c.dial(ctx); err == nil {
		return conn, nil
	}
	if c.launcher == nil {
		return nil, &EscalationError{Reason: "admin service is not running", Err: ErrElevationUnsupported}
	}

	c.logger.Info().Str("addr", c.cfg.Addr).Msg("launching admin service")
	if err := c.launcher.Launch(ctx, c.serviceArgs()); err != nil {
		return nil, &EscalationError{Reason: "launching admin service", Err: err}
	}

	var conn net.Conn
	op := func() error {
		cn, err := c.dial(ctx)
		if err != nil {
			return err
		}
		conn = cn
		return nil
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.ConnectInterval), uint64(c.cfg.ConnectAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrEscalationTimeout
	}
	return conn, nil
}

func (c *Client) serviceArgs() []string {
	args := []string{
		ServiceCommand,
		"--parent-pid", strconv.Itoa(os.Getpid()),
		"--token", c.cfg.Token,
		"--addr", c.cfg.Addr,
	}
	return append(args, c.cfg.ServiceArgs...)
}

// roundTrip sends env, half-closes the connection and reads the reply.
func (c *Client) roundTrip(conn net.Conn, env Envelope) (*Response, error) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(c.cfg.ResponseTimeout))

	if err := json.NewEncoder(conn).Encode(env); err != nil {
		return nil, &EscalationError{Reason: "sending request", Err: err}
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return nil, &EscalationError{Reason: "closing request stream", Err: err}
		}
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, &EscalationError{Reason: "reading response", Err: err}
	}
	if !resp.Success {
		if resp.Reason() == ErrInvalidToken.Error() {
			// the fixed address is held by a helper another process launched
			return nil, &EscalationError{
				Reason: "admin service on " + c.cfg.Addr + " belongs to another serialshare process",
				Err:    ErrInvalidToken,
				remote: true,
			}
		}
		return nil, &EscalationError{Reason: resp.Reason(), remote: true}
	}
	return &resp, nil
}

