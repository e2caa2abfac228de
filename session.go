package serialshare

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobug "go.bug.st/serial"
	"go.uber.org/atomic"
)

// subscriberBuffer is the number of received chunks buffered for the subscriber.
const subscriberBuffer = 256

// worker is the cooperative stop state of one reader or bridge goroutine. A
// fresh worker is created for every Open and every StartSharing so a goroutine
// left over from a previous cycle never observes the flag of the next one.
type worker struct {
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

func newWorker() *worker {
	w := &worker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	w.running.Store(true)
	return w
}

func (w *worker) halt() {
	if w.running.CompareAndSwap(true, false) {
		close(w.stop)
	}
}

// Session owns one physical serial port, streams received bytes to a
// subscriber and optionally bridges traffic to a virtual port.
//
// Sharing is independent of Open/Close: closing the physical port keeps an
// active bridge running so that consumers of the virtual port do not see the
// share disappear while the user reconnects.
type Session struct {
	logger zerolog.Logger

	// mu guards the physical handle, the virtual handle and every write to either.
	mu     sync.Mutex
	handle portHandle
	cfg    SessionConfig
	reader *worker

	subMu sync.Mutex
	sub   chan []byte

	// shareMu serializes StartSharing and StopSharing.
	shareMu     sync.Mutex
	sharing     atomic.Bool
	bridge      *worker
	virtual     portHandle
	virtualName string

	grace   time.Duration
	buffers *BufferPool
	metrics *Metrics
}

// NewSession returns a closed session.
func NewSession(logger zerolog.Logger) *Session {
	return &Session{
		logger:  logger.With().Str("component", "session").Logger(),
		grace:   sharingGracePeriod,
		buffers: NewBufferPool(readBufferSize),
		metrics: &Metrics{},
	}
}

// Subscribe returns the channel that receives copies of every chunk read from
// the physical port. The reader goroutine is started by Open, so subscribe
// before opening.
func (s *Session) Subscribe() <-chan []byte {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.sub == nil {
		s.sub = make(chan []byte, subscriberBuffer)
	}
	return s.sub
}

func (s *Session) subscriber() chan []byte {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.sub
}

// Open opens the physical port. Callers must Close before opening again.
func (s *Session) Open(cfg SessionConfig) error {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if err := ValidateConfig(&cfg); err != nil {
		s.metrics.OpenFailures.Add(1)
		return fmt.Errorf("invalid serial port configuration: %w", err)
	}
	mode, err := modeFor(&cfg)
	if err != nil {
		s.metrics.OpenFailures.Add(1)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return ErrPortAlreadyOpen
	}
	s.cfg = cfg

	h, err := openPort(cfg.PortName, mode)
	if err != nil {
		s.metrics.OpenFailures.Add(1)
		s.metrics.recordError()
		return &OpenError{Port: cfg.PortName, Err: err}
	}
	if err = h.SetReadTimeout(cfg.ReadTimeout); err != nil {
		s.metrics.OpenFailures.Add(1)
		return s.handleOpenError(h, err)
	}
	if cfg.FlowControl == FlowControlNone {
		// Explicitly set control lines to configured values
		if err = h.SetDTR(cfg.DTR); err != nil {
			s.metrics.OpenFailures.Add(1)
			return s.handleOpenError(h, err)
		}
		if err = h.SetRTS(cfg.RTS); err != nil {
			s.metrics.OpenFailures.Add(1)
			return s.handleOpenError(h, err)
		}
	}

	s.handle = h
	run := newWorker()
	s.reader = run
	if sub := s.subscriber(); sub != nil {
		go s.readerLoop(h, run, sub, cfg.PortName)
	} else {
		close(run.done)
	}

	s.metrics.Opens.Add(1)
	s.metrics.LastOpenTime.Store(time.Now().UnixNano())
	s.logger.Info().
		Str("port", cfg.PortName).
		Int("baud", cfg.BaudRate).
		Stringer("parity", cfg.Parity).
		Stringer("flow", cfg.FlowControl).
		Msg("opened serial port")
	return nil
}

// Close stops the reader and releases the physical port. An active share is
// left running.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reader != nil {
		s.reader.halt()
		s.reader = nil
	}
	if s.handle == nil {
		return nil
	}

	name := s.cfg.PortName
	s.metrics.Closes.Add(1)
	if err := s.closeWithoutLock(); err != nil {
		return fmt.Errorf("closing serial port %s: %w", name, err)
	}
	s.logger.Info().Str("port", name).Msg("closed serial port")
	return nil
}

// Write writes b to the physical port and waits for it to be transmitted.
func (s *Session) Write(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return ErrPortNotOpen
	}
	n, err := writeAndDrain(s.handle, b)
	if err != nil {
		s.metrics.WriteErrors.Add(1)
		s.metrics.recordError()
		return fmt.Errorf("writing to %s: %w", s.cfg.PortName, err)
	}
	s.metrics.BytesWritten.Add(int64(n))
	return nil
}

// IsOpen reports whether a physical handle is held. A reader that stopped on
// an I/O error does not clear it; the next explicit operation surfaces the
// failure.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Config returns the configuration of the last successful Open.
func (s *Session) Config() SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// IsSharing reports whether a virtual endpoint is attached.
func (s *Session) IsSharing() bool {
	return s.sharing.Load()
}

// SharedPort returns the virtual port name while sharing.
func (s *Session) SharedPort() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.virtualName
}

// StartSharing attaches the named virtual endpoint. Bytes read from the
// physical port are copied to it and bytes arriving on it are written to the
// physical port.
func (s *Session) StartSharing(virtualPort string) error {
	s.shareMu.Lock()
	defer s.shareMu.Unlock()

	if s.bridge != nil {
		return ErrSharingActive
	}

	s.mu.Lock()
	baud := s.cfg.BaudRate
	s.mu.Unlock()
	if baud <= 0 {
		baud = Baud115200.Int()
	}

	device := VirtualDeviceName(virtualPort)
	mode := &gobug.Mode{
		BaudRate: baud,
		DataBits: DataBits8.Int(),
		Parity:   ParityNone.Get(),
		StopBits: StopBits1.Get(),
	}
	v, err := openPort(device, mode)
	if err != nil {
		return &OpenError{Port: device, Err: err}
	}
	if err = v.SetReadTimeout(virtualReadTimeout); err != nil {
		if e := v.Close(); e != nil {
			err = errors.Join(err, e)
		}
		return &OpenError{Port: device, Err: err}
	}

	s.mu.Lock()
	s.virtual = v
	s.virtualName = virtualPort
	s.mu.Unlock()

	w := newWorker()
	s.bridge = w
	s.sharing.Store(true)
	go s.bridgeLoop(v, w, virtualPort)

	s.metrics.SharesStarted.Add(1)
	s.logger.Info().Str("virtual", virtualPort).Msg("port sharing started")
	return nil
}

// StopSharing detaches the virtual endpoint. It is a no-op when not sharing.
func (s *Session) StopSharing() error {
	s.shareMu.Lock()
	defer s.shareMu.Unlock()

	w := s.bridge
	if w == nil {
		return nil
	}
	s.sharing.Store(false)
	w.halt()

	select {
	case <-w.done:
	case <-time.After(s.grace):
	}

	s.mu.Lock()
	v, name := s.virtual, s.virtualName
	s.virtual = nil
	s.virtualName = ""
	s.mu.Unlock()
	s.bridge = nil

	s.metrics.SharesStopped.Add(1)
	if v != nil {
		if err := v.Close(); err != nil {
			return fmt.Errorf("closing virtual port %s: %w", name, err)
		}
	}
	s.logger.Info().Str("virtual", name).Msg("port sharing stopped")
	return nil
}

// Shutdown stops the bridge and the reader, releases both handles and closes
// the subscriber channel once the reader has exited.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	run := s.reader
	s.mu.Unlock()

	err := errors.Join(s.StopSharing(), s.Close())

	if run != nil {
		select {
		case <-run.done:
		case <-time.After(ShutdownLatency(s.Config()) + s.grace):
			s.logger.Warn().Msg("reader did not exit in time, subscriber left open")
			return err
		}
	}

	s.subMu.Lock()
	if s.sub != nil {
		close(s.sub)
		s.sub = nil
	}
	s.subMu.Unlock()
	return err
}

// readerLoop runs until its worker is halted or the port fails.
func (s *Session) readerLoop(h portHandle, run *worker, sub chan<- []byte, port string) {
	defer close(run.done)

	buf := s.buffers.Get()
	defer s.buffers.Put(buf)

	for run.running.Load() {
		n, err := h.Read(buf)
		if err != nil {
			if !run.running.Load() {
				// closed underneath us by Close
				return
			}
			s.metrics.ReadErrors.Add(1)
			s.metrics.ReaderExits.Add(1)
			s.metrics.recordError()
			s.logger.Error().Err(err).Str("port", port).Msg("serial read failed, reader stopped")
			return
		}
		if n == 0 {
			// read timeout
			continue
		}

		chunk := copyChunk(buf[:n])
		s.metrics.BytesRead.Add(int64(n))

		select {
		case sub <- chunk:
		case <-run.stop:
			s.metrics.DroppedChunks.Add(1)
			return
		}

		s.forwardToVirtual(chunk)
	}
}

// forwardToVirtual copies chunk to the virtual endpoint, best effort.
func (s *Session) forwardToVirtual(chunk []byte) {
	if !s.sharing.Load() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.virtual == nil {
		return
	}
	n, err := writeAll(s.virtual, chunk)
	if err != nil {
		s.metrics.BridgeWriteErrors.Add(1)
		s.logger.Debug().Err(err).Str("virtual", s.virtualName).Msg("forward to virtual port failed")
		return
	}
	s.metrics.BytesToVirtual.Add(int64(n))
}

// bridgeLoop forwards bytes arriving on the virtual endpoint to the physical
// port. It reads v without holding mu so the two directions never wait on
// each other; only the physical write is serialized with Write.
func (s *Session) bridgeLoop(v portHandle, w *worker, name string) {
	defer close(w.done)

	buf := s.buffers.Get()
	defer s.buffers.Put(buf)

	for w.running.Load() {
		n, err := v.Read(buf)
		if err != nil {
			if !w.running.Load() {
				return
			}
			s.metrics.BridgeExits.Add(1)
			s.metrics.recordError()
			s.logger.Error().Err(err).Str("virtual", name).Msg("virtual port read failed, bridge stopped")
			return
		}
		if n == 0 {
			continue
		}
		s.forwardToPhysical(buf[:n])
	}
}

// forwardToPhysical writes b to the physical port if one is open. While the
// physical port is closed, bytes from the virtual side are dropped.
func (s *Session) forwardToPhysical(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return
	}
	n, err := writeAndDrain(s.handle, b)
	if err != nil {
		s.metrics.BridgeWriteErrors.Add(1)
		s.logger.Debug().Err(err).Str("port", s.cfg.PortName).Msg("forward to physical port failed")
		return
	}
	s.metrics.BytesFromVirtual.Add(int64(n))
}
