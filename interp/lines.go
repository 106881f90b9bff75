package interp

import (
	"bytes"
	"sync"

	"github.com/caffeineduck/creek/internal/logger"
)

const tailLines = 20

// lineLog logs interpreter text output one line at a time and remembers the
// last few lines for start-up diagnostics.
type lineLog struct {
	stream string

	mu   sync.Mutex
	buf  bytes.Buffer
	tail []string
}

func newLineLog(stream string) *lineLog {
	return &lineLog{stream: stream}
}

func (l *lineLog) Write(data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(data)
	for {
		idx := bytes.IndexByte(l.buf.Bytes(), '\n')
		if idx == -1 {
			break
		}
		line := string(bytes.TrimRight(l.buf.Next(idx+1), "\r\n"))
		l.emit(line)
	}
	return len(data), nil
}

// emit must be called with mu held.
func (l *lineLog) emit(line string) {
	if line == "" {
		return
	}
	logger.Debug("interpreter output", logger.KeyStream, l.stream, logger.KeyLine, line)
	l.tail = append(l.tail, line)
	if len(l.tail) > tailLines {
		l.tail = l.tail[len(l.tail)-tailLines:]
	}
}

// Flush emits any unterminated line.
func (l *lineLog) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

// Tail returns a copy of the remembered lines.
func (l *lineLog) Tail() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.tail...)
}
