package services

import "sync"

// DefaultLogLines is the number of lines LogStream keeps when no size is given.
const DefaultLogLines = 500

// LogStream keeps the most recent install status lines and fans new lines out
// to subscribers. Slow subscribers miss lines rather than block the writer.
type LogStream struct {
	lines []string
	subs  []chan string
	start int
	size  int
	mu    sync.RWMutex
}

// NewLogStream creates a LogStream holding at most size lines.
func NewLogStream(size int) *LogStream {
	if size <= 0 {
		size = DefaultLogLines
	}
	return &LogStream{
		lines: make([]string, 0, size),
		size:  size,
	}
}

// Append adds line, evicting the oldest one once the buffer is full.
func (l *LogStream) Append(line string) {
	l.mu.Lock()
	if len(l.lines) < l.size {
		l.lines = append(l.lines, line)
	} else {
		l.lines[l.start] = line
		l.start = (l.start + 1) % l.size
	}
	for _, ch := range l.subs {
		select {
		case ch <- line:
		default:
		}
	}
	l.mu.Unlock()
}

// Lines returns the buffered lines, oldest first.
func (l *LogStream) Lines() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.linesLocked()
}

func (l *LogStream) linesLocked() []string {
	out := make([]string, 0, len(l.lines))
	out = append(out, l.lines[l.start:]...)
	out = append(out, l.lines[:l.start]...)
	return out
}

// Clear drops the buffered lines. Subscribers stay registered.
func (l *LogStream) Clear() {
	l.mu.Lock()
	l.lines = l.lines[:0]
	l.start = 0
	l.mu.Unlock()
}

// Subscribe returns a channel receiving every line appended from now on.
func (l *LogStream) Subscribe() chan string {
	_, ch := l.Follow()
	return ch
}

// Follow returns the buffered lines and a channel receiving every later line.
// No line shows up in both.
func (l *LogStream) Follow() ([]string, chan string) {
	ch := make(chan string, 100)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, ch)
	return l.linesLocked(), ch
}

// Unsubscribe removes and closes ch.
func (l *LogStream) Unsubscribe(ch chan string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, c := range l.subs {
		if c == ch {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			close(ch)
			break
		}
	}
}
