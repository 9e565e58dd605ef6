package serialmux

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slr.track/internal/testutil"
)

var (
	_ SerialMuxInterface = (*SerialMux[*TestableSerialPort])(nil)
	_ SerialMuxInterface = (*DisabledSerialMux)(nil)
)

func recvLine(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		require.True(t, ok, "channel closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func TestSerialMux_FanOut(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	port.AddLines(`slr/7840/status {"event":"online"}`, "second")

	assert.Equal(t, `slr/7840/status {"event":"online"}`, recvLine(t, a))
	assert.Equal(t, "second", recvLine(t, a))
	assert.Equal(t, `slr/7840/status {"event":"online"}`, recvLine(t, b))
	assert.Equal(t, "second", recvLine(t, b))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop")
	}
}

func TestSerialMux_MonitorEOF(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	port.AddLines("only")
	port.EndOfInput()

	err := mux.Monitor(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "only", recvLine(t, ch))
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	boom := errors.New("framing error")
	port.FailNextRead(boom)

	err := mux.Monitor(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSerialMux_SlowSubscriberDropsLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, slow := mux.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		port.AddLines("x")
	}
	port.EndOfInput()
	require.NoError(t, mux.Monitor(context.Background()))

	assert.Len(t, slow, subscriberBuffer)
	assert.EqualValues(t, 10, mux.Dropped())
}

func TestSerialMux_UnsubscribeAndClose(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	id, a := mux.Subscribe()
	_, b := mux.Subscribe()

	mux.Unsubscribe(id)
	_, ok := <-a
	assert.False(t, ok)
	mux.Unsubscribe(id) // second call is a no-op

	require.NoError(t, mux.Close())
	_, ok = <-b
	assert.False(t, ok)
	assert.True(t, port.Closed())
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("TRACK ON"))
	require.NoError(t, mux.SendCommand("RATE 10\n"))
	assert.Equal(t, "TRACK ON\nRATE 10\n", port.Written())

	port.WriteError = errors.New("io")
	assert.Error(t, mux.SendCommand("X"))
}

func TestSerialMux_Initialise(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.Initialise("ECHO OFF", "STREAM POS"))
	assert.Equal(t, "ECHO OFF\nSTREAM POS\n", port.Written())

	port.WriteError = errors.New("io")
	err := mux.Initialise("A")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"A"`)
}

type shortWriter struct{ *TestableSerialPort }

func (shortWriter) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestSerialMux_ShortWrite(t *testing.T) {
	mux := NewSerialMux(shortWriter{NewTestableSerialPort()})
	assert.ErrorIs(t, mux.SendCommand("abc"), ErrWriteFailed)
}

func TestSerialMux_AdminSend(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	form := url.Values{"command": {"PARK"}}
	req := testutil.LocalRequest(http.MethodPost, "/debug/serial-send", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	httpMux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "PARK\n", port.Written())

	req = testutil.LocalRequest(http.MethodGet, "/debug/serial-send", nil)
	rr = httptest.NewRecorder()
	httpMux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestSerialMux_AdminTail(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/serial-tail")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, 64)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), ": ping")

	port.AddLines("hello mount")
	var got strings.Builder
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(got.String(), "data: hello mount") && time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err == io.EOF {
			break
		}
	}
	assert.Contains(t, got.String(), "data: hello mount")
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		line, topic, payload string
		ok                   bool
	}{
		{`slr/a/status {"event":"online"}`, "slr/a/status", `{"event":"online"}`, true},
		{"  slr/a/tracking/o/pos\t{\"az\":1}  ", "slr/a/tracking/o/pos", `{"az":1}`, true},
		{"slr/a/status", "", "", false},
		{"slr/a/status   ", "", "", false},
		{" ", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		topic, payload, ok := SplitLine(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.topic, topic, tt.line)
		assert.Equal(t, tt.payload, payload, tt.line)
	}
}
