package job

import (
	"bytes"
	"io"
	"sync"
)

// LogPrefixer is an io.Writer adding "{kind} " prefix to every line written by a worker.
// Partial lines are held until the newline arrives, so interleaved workers never split a line.
type LogPrefixer struct {
	writer  io.Writer
	prefix  []byte
	mu      sync.Mutex
	partial []byte
}

// NewLogPrefixer makes prefixer for the given worker kind
func NewLogPrefixer(writer io.Writer, kind Kind) *LogPrefixer {
	return &LogPrefixer{writer: writer, prefix: []byte("{" + kind.String() + "} ")}
}

// Write satisfies io.Writer. Always reports full length consumed unless the underlying writer fails.
func (p *LogPrefixer) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := append(p.partial, data...)
	p.partial = nil
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		if err := p.writeLine(buf[:idx+1]); err != nil {
			return 0, err
		}
		buf = buf[idx+1:]
	}
	if len(buf) > 0 {
		p.partial = append([]byte(nil), buf...)
	}
	return len(data), nil
}

// Flush writes the pending partial line, if any, terminated by newline
func (p *LogPrefixer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.partial) == 0 {
		return nil
	}
	line := append(p.partial, '\n')
	p.partial = nil
	return p.writeLine(line)
}

func (p *LogPrefixer) writeLine(line []byte) error {
	out := make([]byte, 0, len(p.prefix)+len(line))
	out = append(out, p.prefix...)
	out = append(out, line...)
	_, err := p.writer.Write(out)
	return err
}
