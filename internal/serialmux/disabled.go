package serialmux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"tailscale.com/tsweb"
)

// ErrSerialDisabled is returned by commands sent to a DisabledSerialMux.
var ErrSerialDisabled = errors.New("no mount controller attached")

// DisabledSerialMux stands in when the station feed does not come over a
// serial line. Subscribers never see a line; their channels close on
// Unsubscribe or Close so readers unblock during shutdown.
type DisabledSerialMux struct {
	// Reason is reported by the admin routes, e.g. "station feed is ws:...".
	Reason string

	mu          sync.Mutex
	subscribers map[string]chan string
	closed      bool
}

func NewDisabledSerialMux(reason string) *DisabledSerialMux {
	return &DisabledSerialMux{
		Reason:      reason,
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledSerialMux) SendCommand(command string) error {
	return fmt.Errorf("send %q: %w", command, ErrSerialDisabled)
}

// Initialise accepts and discards startup commands.
func (d *DisabledSerialMux) Initialise(...string) error { return nil }

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

// AttachAdminRoutes registers the same debug slugs as SerialMux, answering
// 503 with the reason so operators can tell why there is no serial data.
func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	unavailable := func(w http.ResponseWriter, r *http.Request) {
		msg := ErrSerialDisabled.Error()
		if d.Reason != "" {
			msg += ": " + d.Reason
		}
		http.Error(w, msg, http.StatusServiceUnavailable)
	}
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("serial-send", "serial port disabled", unavailable)
	debug.HandleSilentFunc("serial-tail", unavailable)
}
