package tui

import "strings"

// DefaultBufferSize is the default number of transcript lines kept.
const DefaultBufferSize = 10000

// RingBuffer provides fixed-size line storage with O(1) operations.
// When the buffer is full, the oldest lines are discarded.
type RingBuffer struct {
	data  []string
	size  int
	head  int // Write position (next write goes here)
	tail  int // Read position (oldest element)
	count int
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &RingBuffer{
		data: make([]string, capacity),
		size: capacity,
	}
}

// Append adds a line to the buffer, overwriting the oldest line when full.
func (rb *RingBuffer) Append(line string) {
	rb.data[rb.head] = line
	rb.head = (rb.head + 1) % rb.size

	if rb.count < rb.size {
		rb.count++
	} else {
		rb.tail = (rb.tail + 1) % rb.size
	}
}

// Lines returns all lines from oldest to newest.
func (rb *RingBuffer) Lines() []string {
	if rb.count == 0 {
		return nil
	}

	result := make([]string, rb.count)
	for i := 0; i < rb.count; i++ {
		result[i] = rb.data[(rb.tail+i)%rb.size]
	}
	return result
}

// Count returns the number of lines currently stored.
func (rb *RingBuffer) Count() int {
	return rb.count
}

// Clear removes all lines.
func (rb *RingBuffer) Clear() {
	rb.head = 0
	rb.tail = 0
	rb.count = 0
}

// Transcript accumulates the chat as plain lines. Streamed text is buffered
// until a newline arrives, so a reply can be written in arbitrary pieces.
type Transcript struct {
	buffer  *RingBuffer
	partial strings.Builder
}

// NewTranscript creates a transcript keeping at most capacity lines.
func NewTranscript(capacity int) *Transcript {
	return &Transcript{buffer: NewRingBuffer(capacity)}
}

// Line flushes any partial line and appends line.
func (t *Transcript) Line(line string) {
	t.Flush()
	t.buffer.Append(line)
}

// Write appends streamed text.
func (t *Transcript) Write(text string) {
	t.partial.WriteString(text)
	buffered := t.partial.String()

	for {
		idx := strings.Index(buffered, "\n")
		if idx == -1 {
			break
		}
		t.buffer.Append(buffered[:idx])
		buffered = buffered[idx+1:]
	}

	t.partial.Reset()
	t.partial.WriteString(buffered)
}

// Flush moves a pending partial line into the buffer.
func (t *Transcript) Flush() {
	if t.partial.Len() > 0 {
		t.buffer.Append(t.partial.String())
		t.partial.Reset()
	}
}

// Lines returns every line, including the pending partial one.
func (t *Transcript) Lines() []string {
	lines := t.buffer.Lines()
	if t.partial.Len() > 0 {
		lines = append(lines, t.partial.String())
	}
	return lines
}

// Tail returns at most the last n lines.
func (t *Transcript) Tail(n int) []string {
	lines := t.Lines()
	if n <= 0 {
		return nil
	}
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.buffer.Clear()
	t.partial.Reset()
}
