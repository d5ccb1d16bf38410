package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBuffer_Wraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, line := range []string{"a", "b", "c", "d"} {
		rb.Append(line)
	}

	assert.Equal(t, 3, rb.Count())
	assert.Equal(t, []string{"b", "c", "d"}, rb.Lines())

	rb.Clear()
	assert.Nil(t, rb.Lines())
}

func TestNewRingBuffer_DefaultCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	assert.Equal(t, DefaultBufferSize, rb.size)
}

func TestTranscript_WriteSplitsLines(t *testing.T) {
	tr := NewTranscript(10)

	tr.Write("hel")
	tr.Write("lo\nwor")
	tr.Write("ld")
	assert.Equal(t, []string{"hello", "world"}, tr.Lines())

	tr.Line("next")
	assert.Equal(t, []string{"hello", "world", "next"}, tr.Lines())
}

func TestTranscript_Tail(t *testing.T) {
	tr := NewTranscript(10)
	for _, line := range []string{"1", "2", "3", "4"} {
		tr.Line(line)
	}

	assert.Equal(t, []string{"3", "4"}, tr.Tail(2))
	assert.Len(t, tr.Tail(10), 4)
	assert.Nil(t, tr.Tail(0))

	tr.Clear()
	assert.Empty(t, tr.Lines())
}
