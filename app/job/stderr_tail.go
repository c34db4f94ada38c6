package job

import (
	"bytes"
	"strings"
	"sync"
)

const maxTailLine = 4 * 1024

// StderrTail keeps the last lines a worker wrote to stderr, reported when it fails. A line split
// between writes is joined back, an unterminated last line is reported as is. Thread safe.
type StderrTail struct {
	mu      sync.Mutex
	ring    []string
	next    int
	full    bool
	partial []byte
}

// NewStderrTail makes tail of size lines, zero disables it
func NewStderrTail(size int) *StderrTail {
	if size <= 0 {
		return &StderrTail{}
	}
	return &StderrTail{ring: make([]string, size)}
}

// Write satisfies io.Writer
func (t *StderrTail) Write(p []byte) (int, error) {
	if len(t.ring) == 0 {
		return len(p), nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rest := p
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			t.carry(rest)
			return len(p), nil
		}
		t.carry(rest[:idx])
		t.push(string(t.partial))
		t.partial = t.partial[:0]
		rest = rest[idx+1:]
	}
}

// Lines returns kept lines, oldest first, including the unterminated one
func (t *StderrTail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var res []string
	if t.full {
		res = append(res, t.ring[t.next:]...)
	}
	res = append(res, t.ring[:t.next]...)
	if line := strings.TrimSpace(string(t.partial)); line != "" {
		res = append(res, line)
	}
	return res
}

// String returns kept lines joined by newline
func (t *StderrTail) String() string {
	return strings.Join(t.Lines(), "\n")
}

// carry appends to the unterminated line, anything beyond maxTailLine is cut
func (t *StderrTail) carry(b []byte) {
	if room := maxTailLine - len(t.partial); room < len(b) {
		b = b[:max(room, 0)]
	}
	t.partial = append(t.partial, b...)
}

func (t *StderrTail) push(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.ring[t.next] = line
	t.next++
	if t.next == len(t.ring) {
		t.next, t.full = 0, true
	}
}
