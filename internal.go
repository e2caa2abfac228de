package serialshare

import (
	"errors"
)

// handleOpenError closes the port and joins any error from closing with the original error
// This method assumes the mutex is already held by the caller
func (s *Session) handleOpenError(h portHandle, err error) error {
	if e := h.Close(); e != nil {
		err = errors.Join(err, e)
	}
	return &OpenError{Port: s.cfg.PortName, Err: err}
}

// closeWithoutLock performs close operations without acquiring the mutex
// This method assumes the mutex is already held by the caller
func (s *Session) closeWithoutLock() error {
	h := s.handle
	s.handle = nil
	if h != nil {
		return h.Close()
	}
	return nil
}

// writeAll writes b to h, retrying short writes a bounded number of times.
func writeAll(h portHandle, b []byte) (int, error) {
	const maxRetries = 3

	totalWritten := 0
	for retries := 0; totalWritten < len(b) && retries < maxRetries; retries++ {
		n, err := h.Write(b[totalWritten:])
		if err != nil {
			return totalWritten, err
		}
		totalWritten += n
		if n == 0 {
			// Prevent infinite loop if Write returns 0
			break
		}
	}
	if totalWritten < len(b) {
		return totalWritten, errors.New("partial write: not all bytes written")
	}
	return totalWritten, nil
}

// writeAndDrain is writeAll followed by a flush of the output buffer.
func writeAndDrain(h portHandle, b []byte) (int, error) {
	n, err := writeAll(h, b)
	if err != nil {
		return n, err
	}
	return n, h.Drain()
}
