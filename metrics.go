package serialshare

import (
	"sync/atomic"
	"time"
)

// Metrics tracks traffic through a session and its bridge.
type Metrics struct {
	// Connection Statistics
	Opens         atomic.Int64
	OpenFailures  atomic.Int64
	Closes        atomic.Int64
	LastOpenTime  atomic.Int64 // UnixNano of the last successful open
	SharesStarted atomic.Int64
	SharesStopped atomic.Int64
	ReaderExits   atomic.Int64 // reader goroutines that stopped on an I/O error
	BridgeExits   atomic.Int64 // bridge goroutines that stopped on an I/O error
	LastErrorTime atomic.Int64 // UnixNano

	// Physical port traffic
	BytesRead    atomic.Int64
	BytesWritten atomic.Int64
	WriteErrors  atomic.Int64
	ReadErrors   atomic.Int64

	// Bridge traffic, physical -> virtual and virtual -> physical
	BytesToVirtual    atomic.Int64
	BytesFromVirtual  atomic.Int64
	BridgeWriteErrors atomic.Int64

	// Chunks the subscriber could not take before the session stopped.
	DroppedChunks atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics suitable for the shell.
type MetricsSnapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	IsOpen            bool      `json:"is_open"`
	IsSharing         bool      `json:"is_sharing"`
	Opens             int64     `json:"opens"`
	OpenFailures      int64     `json:"open_failures"`
	Closes            int64     `json:"closes"`
	SharesStarted     int64     `json:"shares_started"`
	SharesStopped     int64     `json:"shares_stopped"`
	ReaderExits       int64     `json:"reader_exits"`
	BridgeExits       int64     `json:"bridge_exits"`
	LastOpenTime      time.Time `json:"last_open_time"`
	LastErrorTime     time.Time `json:"last_error_time"`
	BytesRead         int64     `json:"bytes_read"`
	BytesWritten      int64     `json:"bytes_written"`
	ReadErrors        int64     `json:"read_errors"`
	WriteErrors       int64     `json:"write_errors"`
	BytesToVirtual    int64     `json:"bytes_to_virtual"`
	BytesFromVirtual  int64     `json:"bytes_from_virtual"`
	BridgeWriteErrors int64     `json:"bridge_write_errors"`
	DroppedChunks     int64     `json:"dropped_chunks"`
	BufferPool        PoolStats `json:"buffer_pool"`
}

func (m *Metrics) recordError() {
	m.LastErrorTime.Store(time.Now().UnixNano())
}

// unixNano converts a stored timestamp; zero means never.
func unixNano(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

// Metrics returns a snapshot of the session counters. A reader or bridge
// that stopped on an I/O error shows up in ReaderExits or BridgeExits; the
// session does not restart it.
func (s *Session) Metrics() MetricsSnapshot {
	m := s.metrics
	return MetricsSnapshot{
		Timestamp:         time.Now(),
		IsOpen:            s.IsOpen(),
		IsSharing:         s.IsSharing(),
		Opens:             m.Opens.Load(),
		OpenFailures:      m.OpenFailures.Load(),
		Closes:            m.Closes.Load(),
		SharesStarted:     m.SharesStarted.Load(),
		SharesStopped:     m.SharesStopped.Load(),
		ReaderExits:       m.ReaderExits.Load(),
		BridgeExits:       m.BridgeExits.Load(),
		LastOpenTime:      unixNano(m.LastOpenTime.Load()),
		LastErrorTime:     unixNano(m.LastErrorTime.Load()),
		BytesRead:         m.BytesRead.Load(),
		BytesWritten:      m.BytesWritten.Load(),
		ReadErrors:        m.ReadErrors.Load(),
		WriteErrors:       m.WriteErrors.Load(),
		BytesToVirtual:    m.BytesToVirtual.Load(),
		BytesFromVirtual:  m.BytesFromVirtual.Load(),
		BridgeWriteErrors: m.BridgeWriteErrors.Load(),
		DroppedChunks:     m.DroppedChunks.Load(),
		BufferPool:        s.buffers.Stats(),
	}
}
