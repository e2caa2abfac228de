package admin

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unusedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// fakeLauncher records launches and optionally starts an in-process server
// in place of the elevated relaunch.
type fakeLauncher struct {
	mu     sync.Mutex
	count  int
	args   []string
	err    error
	onCall func(args []string)
}

func (l *fakeLauncher) Launch(_ context.Context, args []string) error {
	l.mu.Lock()
	l.count++
	l.args = args
	l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.onCall != nil {
		l.onCall(args)
	}
	return nil
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func TestClientLaunchesServiceOnDemand(t *testing.T) {
	addr := unusedAddr(t)
	exec := &recordingExecutor{stdout: "done"}
	launcher := &fakeLauncher{}
	launcher.onCall = func([]string) {
		tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
		require.NoError(t, err)
		ln, err := net.ListenTCP("tcp", tcpAddr)
		require.NoError(t, err)
		serveOn(t, ln, ServerConfig{}, exec.run)
	}

	c := newTestClient(addr, launcher)
	out, err := c.Execute(context.Background(), []string{"remove", "1"}, "")
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	// the second call finds the service running
	_, err = c.Execute(context.Background(), []string{"list"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, launcher.launches())

	require.Len(t, launcher.args, 7)
	assert.Equal(t, ServiceCommand, launcher.args[0])
	assert.Equal(t, "--parent-pid", launcher.args[1])
	_, err = strconv.Atoi(launcher.args[2])
	assert.NoError(t, err)
	assert.Equal(t, []string{"--token", testToken, "--addr", addr}, launcher.args[3:])
}

func TestClientPassesServiceArgs(t *testing.T) {
	launcher := &fakeLauncher{}
	addr := unusedAddr(t)
	c := NewClient(ClientConfig{
		Addr:            addr,
		Token:           testToken,
		ConnectAttempts: 1,
		ConnectInterval: 10 * time.Millisecond,
		ServiceArgs:     []string{"--config", "/etc/serialshare.yaml"},
	}, launcher, zerolog.Nop())

	_, err := c.Execute(context.Background(), []string{"list"}, "")
	assert.ErrorIs(t, err, ErrEscalationTimeout)
	require.Len(t, launcher.args, 9)
	assert.Equal(t, []string{"--addr", addr, "--config", "/etc/serialshare.yaml"}, launcher.args[5:])
}

func TestClientTimesOutWaitingForService(t *testing.T) {
	launcher := &fakeLauncher{}
	c := newTestClient(unusedAddr(t), launcher)

	start := time.Now()
	_, err := c.Execute(context.Background(), []string{"list"}, "")
	assert.ErrorIs(t, err, ErrEscalationTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, launcher.launches())
}

func TestClientLaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{err: ErrElevationUnsupported}
	_, err := newTestClient(unusedAddr(t), launcher).Execute(context.Background(), []string{"list"}, "")
	assert.ErrorIs(t, err, ErrEscalationFailed)
	assert.ErrorIs(t, err, ErrElevationUnsupported)
}

func TestClientWithoutLauncher(t *testing.T) {
	_, err := newTestClient(unusedAddr(t), nil).Execute(context.Background(), []string{"list"}, "")
	assert.ErrorIs(t, err, ErrEscalationFailed)
}

func TestBreakerStopsRepeatedLaunches(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("user declined the prompt")}
	c := NewClient(ClientConfig{
		Addr:            unusedAddr(t),
		Token:           testToken,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}, launcher, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := c.Execute(context.Background(), []string{"list"}, "")
		require.Error(t, err)
	}
	_, err := c.Execute(context.Background(), []string{"list"}, "")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, ErrEscalationFailed)
	assert.Equal(t, 2, launcher.launches())
}

func TestClientHonorsContext(t *testing.T) {
	launcher := &fakeLauncher{}
	c := NewClient(ClientConfig{
		Addr:            unusedAddr(t),
		Token:           testToken,
		ConnectAttempts: 100,
		ConnectInterval: 50 * time.Millisecond,
	}, launcher, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Execute(ctx, []string{"list"}, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessToken(t *testing.T) {
	tok := ProcessToken()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), tok)
	assert.Equal(t, tok, ProcessToken())
}

func TestDefaultClientUsesProcessToken(t *testing.T) {
	c := NewClient(ClientConfig{}, nil, zerolog.Nop())
	assert.Equal(t, ProcessToken(), c.cfg.Token)
	assert.Equal(t, DefaultAddr, c.cfg.Addr)
	assert.Equal(t, DefaultConnectAttempts, c.cfg.ConnectAttempts)
}
