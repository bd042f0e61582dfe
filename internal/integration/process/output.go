package process

import (
	"bufio"
	"io"
	"sync"
	"time"
)

// Stream identifies the source stream of an output line.
type Stream int

const (
	// StreamStdout is standard output.
	StreamStdout Stream = iota
	// StreamStderr is standard error.
	StreamStderr
)

// String returns the stream name.
func (s Stream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Line represents a single line of process output.
type Line struct {
	// Content is the line content without the trailing newline.
	Content string

	// Stream identifies the source.
	Stream Stream

	// Timestamp is when the line was received.
	Timestamp time.Time
}

// OutputProcessor reads process streams line by line, invoking a
// callback for each line as it arrives and retaining the full output.
type OutputProcessor struct {
	mu         sync.RWMutex
	lines      []Line
	bufferSize int
}

// NewOutputProcessor creates a processor with the given scanner buffer
// size. Zero or negative selects a 64KB buffer.
func NewOutputProcessor(bufferSize int) *OutputProcessor {
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	return &OutputProcessor{
		lines:      make([]Line, 0, 128),
		bufferSize: bufferSize,
	}
}

// Process reads from r until EOF. The callback, if non-nil, is invoked
// for each line. Returns any scanner error (e.g. token too long).
func (p *OutputProcessor) Process(r io.Reader, stream Stream, callback func(Line)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, p.bufferSize), p.bufferSize)

	for scanner.Scan() {
		line := Line{
			Content:   scanner.Text(),
			Stream:    stream,
			Timestamp: time.Now(),
		}

		p.mu.Lock()
		p.lines = append(p.lines, line)
		p.mu.Unlock()

		if callback != nil {
			callback(line)
		}
	}

	return scanner.Err()
}

// Lines returns a copy of all captured lines in arrival order.
func (p *OutputProcessor) Lines() []Line {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Line, len(p.lines))
	copy(out, p.lines)
	return out
}

// StderrContent returns captured stderr as a single string.
func (p *OutputProcessor) StderrContent() string {
	return p.content(StreamStderr)
}

// StdoutContent returns captured stdout as a single string.
func (p *OutputProcessor) StdoutContent() string {
	return p.content(StreamStdout)
}

func (p *OutputProcessor) content(stream Stream) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	size := 0
	for _, line := range p.lines {
		if line.Stream == stream {
			size += len(line.Content) + 1
		}
	}
	if size == 0 {
		return ""
	}

	buf := make([]byte, 0, size)
	for _, line := range p.lines {
		if line.Stream != stream {
			continue
		}
		if len(buf) > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, line.Content...)
	}
	return string(buf)
}

// RollingLog is a fixed-capacity circular buffer of log lines. When the
// buffer is full the oldest line is evicted. Append is O(1).
type RollingLog struct {
	mu       sync.RWMutex
	lines    []string
	capacity int
	head     int
	count    int
}

// NewRollingLog creates a rolling log with the given capacity.
// Zero or negative selects a capacity of 1000.
func NewRollingLog(capacity int) *RollingLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RollingLog{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// Append adds a line, evicting the oldest if the log is full.
func (l *RollingLog) Append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := (l.head + l.count) % l.capacity
	l.lines[idx] = line

	if l.count < l.capacity {
		l.count++
	} else {
		l.head = (l.head + 1) % l.capacity
	}
}

// Lines returns the retained lines from oldest to newest.
func (l *RollingLog) Lines() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.lines[(l.head+i)%l.capacity]
	}
	return out
}

// Len returns the number of retained lines.
func (l *RollingLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Cap returns the capacity.
func (l *RollingLog) Cap() int {
	return l.capacity
}

// Clear empties the log.
func (l *RollingLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head = 0
	l.count = 0
}
