package observation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestRecording_RollingWindow(t *testing.T) {
	rec := NewRecording(3)
	rec.Start("lageos1")
	for i := 0; i < 5; i++ {
		rec.Append(r3.Vec{X: float64(i)})
	}
	assert.Equal(t, 3, rec.Len())
	assert.Equal(t, []r3.Vec{{X: 2}, {X: 3}, {X: 4}}, rec.Points())

	rec.Start("ajisai")
	assert.Zero(t, rec.Len())
	assert.Equal(t, "ajisai", rec.ObjectID)
	assert.Empty(t, rec.Points())
}

func TestRecording_DefaultCapacity(t *testing.T) {
	rec := NewRecording(0)
	for i := 0; i < DefaultRecordingCap+10; i++ {
		rec.Append(r3.Vec{X: float64(i)})
	}
	assert.Equal(t, DefaultRecordingCap, rec.Len())
	assert.Equal(t, 10.0, rec.Points()[0].X)
}

func TestRecording_Flush(t *testing.T) {
	reg := newTestRegistry(t, nil)
	rec := NewRecording(10)
	rec.Start("lageos1")

	_, ok, err := rec.Flush(reg)
	require.NoError(t, err)
	assert.False(t, ok, "empty recording adds nothing")
	assert.Zero(t, reg.Len())

	rec.Append(r3.Vec{X: 1})
	rec.Append(r3.Vec{X: 2})
	s, ok, err := rec.Flush(reg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lageos1", s.Label)
	assert.Len(t, s.Points, 2)
	assert.Zero(t, rec.Len())
	assert.Equal(t, 1, reg.Len())
}
