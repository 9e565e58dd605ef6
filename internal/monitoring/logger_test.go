package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	Logf("hello %d", 1)
	assert.Equal(t, []string{"hello 1"}, got)

	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("muted") })
	assert.Len(t, got, 1, "no-op logger must not reach the old sink")
}

func TestTagged(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	logf := Tagged("Session")
	logf("reset %s", "obj-1")
	assert.Equal(t, "[Session] reset obj-1", got)

	// The tagged logger follows later SetLogger calls.
	SetLogger(nil)
	got = ""
	logf("dropped")
	assert.Empty(t, got)
}
