package serialshare

import (
	"time"

	gobug "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// portHandle abstracts the subset of go.bug.st/serial.Port used by a Session.
type portHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	SetReadTimeout(d time.Duration) error
	SetDTR(bool) error
	SetRTS(bool) error
	Close() error
}

// allow tests to override external dependencies
var (
	openPort         = func(name string, mode *gobug.Mode) (portHandle, error) { return gobug.Open(name, mode) }
	getPortsList     = gobug.GetPortsList
	getDetailedPorts = enumerator.GetDetailedPortsList
)

// modeFor translates a SessionConfig into the driver mode. Hardware flow
// control is approximated by asserting RTS/DTR from the moment the port opens;
// go.bug.st/serial has no RTS/CTS handshake setting.
func modeFor(cfg *SessionConfig) (*gobug.Mode, error) {
	mode := &gobug.Mode{
		BaudRate: BaudRate(cfg.BaudRate).Int(),
		DataBits: DataBits(cfg.DataBits).Int(),
		Parity:   cfg.Parity.Get(),
		StopBits: cfg.StopBits.Get(),
	}
	switch cfg.FlowControl {
	case FlowControlNone:
	case FlowControlHardware:
		mode.InitialStatusBits = &gobug.ModemOutputBits{RTS: true, DTR: true}
	default:
		return nil, ErrUnsupportedFlowControl
	}
	return mode, nil
}
