package serialshare

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	gobug "go.bug.st/serial"
)

var errMockClosed = errors.New("mock: port closed")

// mockPort behaves like a go.bug.st port opened with a short read timeout:
// Read returns (0, nil) when nothing arrives in time.
type mockPort struct {
	name    string
	readCh  chan []byte
	closed  chan struct{}
	once    sync.Once
	timeout time.Duration

	mu          sync.Mutex
	writes      [][]byte
	drains      int
	dtr, rts    bool
	errToReturn error
}

func newMockPort(name string) *mockPort {
	return &mockPort{
		name:    name,
		readCh:  make(chan []byte, 16),
		closed:  make(chan struct{}),
		timeout: 5 * time.Millisecond,
	}
}

func (m *mockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.errToReturn != nil {
		err := m.errToReturn
		m.errToReturn = nil
		m.mu.Unlock()
		return 0, err
	}
	m.mu.Unlock()

	select {
	case <-m.closed:
		return 0, errMockClosed
	default:
	}

	select {
	case b := <-m.readCh:
		return copy(p, b), nil
	case <-m.closed:
		return 0, errMockClosed
	case <-time.After(m.timeout):
		return 0, nil
	}
}

func (m *mockPort) Write(p []byte) (int, error) {
	if m.isClosed() {
		return 0, errMockClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	m.writes = append(m.writes, cp)
	return len(p), nil
}

func (m *mockPort) Drain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drains++
	return nil
}

func (m *mockPort) SetReadTimeout(d time.Duration) error { return nil }

func (m *mockPort) SetDTR(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dtr = v
	return nil
}

func (m *mockPort) SetRTS(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rts = v
	return nil
}

func (m *mockPort) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockPort) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *mockPort) written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Join(m.writes, nil)
}

func (m *mockPort) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func (m *mockPort) failNextRead(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errToReturn = err
}

// mockOpener replaces openPort for the duration of a test and remembers the
// most recent handle opened under each name.
type mockOpener struct {
	mu    sync.Mutex
	ports map[string]*mockPort
	modes map[string]*gobug.Mode
	fail  map[string]error
}

func installMockOpener(t *testing.T) *mockOpener {
	t.Helper()
	mo := &mockOpener{
		ports: make(map[string]*mockPort),
		modes: make(map[string]*gobug.Mode),
		fail:  make(map[string]error),
	}
	prev := openPort
	openPort = func(name string, mode *gobug.Mode) (portHandle, error) {
		mo.mu.Lock()
		defer mo.mu.Unlock()
		if err := mo.fail[name]; err != nil {
			return nil, err
		}
		p := newMockPort(name)
		mo.ports[name] = p
		mo.modes[name] = mode
		return p, nil
	}
	t.Cleanup(func() { openPort = prev })
	return mo
}

func (mo *mockOpener) port(name string) *mockPort {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	return mo.ports[name]
}

func (mo *mockOpener) mode(name string) *gobug.Mode {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	return mo.modes[name]
}

func (mo *mockOpener) failOpen(name string, err error) {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	mo.fail[name] = err
}
