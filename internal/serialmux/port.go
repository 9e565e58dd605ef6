package serialmux

import "io"

// SerialPorter is the minimal port surface the mux needs, so tests can run
// without hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
