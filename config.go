package serialshare

import "time"

const (
	// DefaultReadTimeout bounds every blocking read performed by the reader and
	// bridge goroutines. It is also the upper bound on shutdown latency.
	DefaultReadTimeout = 10 * time.Millisecond

	// virtualReadTimeout is used for the virtual endpoint of a share.
	virtualReadTimeout = 10 * time.Millisecond

	// sharingGracePeriod is how long StopSharing waits for the bridge goroutine
	// to observe the cleared flag before the virtual handle is released.
	sharingGracePeriod = 50 * time.Millisecond
)

// SessionConfig holds configuration for opening the physical serial port.
type SessionConfig struct {
	// PortName is the device, e.g. COM3 or /dev/ttyUSB0.
	PortName string `json:"port_name" validate:"required,portname"`

	BaudRate    int         `json:"baud_rate" validate:"baudrate"`
	DataBits    int         `json:"data_bits" validate:"min=5,max=8"`
	Parity      Parity      `json:"parity" validate:"min=0,max=4"`
	StopBits    StopBits    `json:"stop_bits" validate:"min=0,max=2"`
	FlowControl FlowControl `json:"flow_control" validate:"min=0,max=2"`

	// ReadTimeout is the underlying port read timeout. Zero selects DefaultReadTimeout.
	ReadTimeout time.Duration `json:"read_timeout" validate:"omitempty,min=1ms,max=1s"`

	DTR bool `json:"dtr"`
	RTS bool `json:"rts"`
}

// DefaultSessionConfig returns 115200 8N1 without flow control.
func DefaultSessionConfig(portName string) SessionConfig {
	return SessionConfig{
		PortName:    portName,
		BaudRate:    Baud115200.Int(),
		DataBits:    DataBits8.Int(),
		Parity:      ParityNone,
		StopBits:    StopBits1,
		FlowControl: FlowControlNone,
		ReadTimeout: DefaultReadTimeout,
		DTR:         true,
		RTS:         true,
	}
}

// ShutdownLatency is the worst case time between clearing a session's run flag
// and its reader goroutine noticing it.
func ShutdownLatency(cfg SessionConfig) time.Duration {
	if cfg.ReadTimeout <= 0 {
		return DefaultReadTimeout
	}
	return cfg.ReadTimeout
}
