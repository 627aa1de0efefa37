package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/crimson-sun/dumpsift/internal/model"
)

const (
	defaultMaxLineBytes = 64 * 1024
	readBufSize         = 32 * 1024
	deadlineCheckEvery  = 256
)

// Limits caps how much of one artifact is read.
type Limits struct {
	MaxBytes     int64     // 0 = unlimited
	MaxLines     int       // 0 = unlimited
	MaxLineBytes int       // longer lines are truncated; default 64KiB
	Deadline     time.Time // zero = no case time budget
}

// Line is one physical line of an artifact, without its terminator.
type Line struct {
	Text   string
	No     int   // 1-based
	Offset int64 // byte offset of the first character
	// Partial is set on a final line that had no newline, which usually
	// means the file was cut off mid-write.
	Partial bool
}

// Stream reads an artifact line by line inside a bounded working window.
// It tracks positions, enforces Limits and collects warnings. A Stream is
// owned by a single parser goroutine.
type Stream struct {
	name    string
	modTime time.Time
	r       *bufio.Reader
	limits  Limits
	now     func() time.Time

	offset   int64
	lineNo   int
	pushback []Line
	done     bool
	limitHit bool

	warnings []model.Warning
}

// NewStream wraps r for the artifact called name.
func NewStream(name string, r io.Reader, modTime time.Time, limits Limits) *Stream {
	if limits.MaxLineBytes <= 0 {
		limits.MaxLineBytes = defaultMaxLineBytes
	}
	return &Stream{
		name:    name,
		modTime: modTime,
		r:       bufio.NewReaderSize(r, readBufSize),
		limits:  limits,
		now:     time.Now,
	}
}

// Name returns the artifact's source filename.
func (s *Stream) Name() string { return s.name }

// ModTime returns the artifact's modification time, or zero.
func (s *Stream) ModTime() time.Time { return s.modTime }

// Offset returns the byte offset of the next unread line.
func (s *Stream) Offset() int64 {
	if len(s.pushback) > 0 {
		return s.pushback[len(s.pushback)-1].Offset
	}
	return s.offset
}

// LimitHit reports whether reading stopped because of a cap or the deadline.
func (s *Stream) LimitHit() bool { return s.limitHit }

// Warnings returns the warnings recorded so far.
func (s *Stream) Warnings() []model.Warning { return s.warnings }

// Warn records a warning at the given position.
func (s *Stream) Warn(kind model.WarningKind, offset int64, line int, reason string) {
	s.warnings = append(s.warnings, model.Warning{
		Kind:   kind,
		File:   s.name,
		Offset: offset,
		Line:   line,
		Reason: reason,
	})
}

// Malformed records a ParseMalformed warning.
func (s *Stream) Malformed(offset int64, line int, format string, args ...any) {
	s.Warn(model.WarnParseMalformed, offset, line, fmt.Sprintf(format, args...))
}

// Unread pushes l back so the next call to Next returns it again.
func (s *Stream) Unread(l Line) {
	s.pushback = append(s.pushback, l)
}

// Peek returns the next line without consuming it.
func (s *Stream) Peek() (Line, bool) {
	l, ok := s.Next()
	if ok {
		s.Unread(l)
	}
	return l, ok
}

// Next returns the next line. It returns false at end of input, on a read
// error or when a limit stops the stream; the reason is recorded as a
// warning.
func (s *Stream) Next() (Line, bool) {
	if n := len(s.pushback); n > 0 {
		l := s.pushback[n-1]
		s.pushback = s.pushback[:n-1]
		return l, true
	}
	if s.done {
		return Line{}, false
	}
	if !s.withinLimits() {
		s.done = true
		return Line{}, false
	}

	start := s.offset
	text, n, terminated, truncated, err := s.readLine()
	if n == 0 && err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) {
			s.Malformed(start, s.lineNo+1, "read error: %v", err)
		}
		return Line{}, false
	}
	s.offset += int64(n)
	s.lineNo++
	if truncated {
		s.Warn(model.WarnResourceLimitExceeded, start, s.lineNo,
			fmt.Sprintf("line longer than %d bytes truncated", s.limits.MaxLineBytes))
	}
	if err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) {
			s.Malformed(s.offset, s.lineNo, "read error: %v", err)
		}
	}
	return Line{Text: text, No: s.lineNo, Offset: start, Partial: !terminated}, true
}

func (s *Stream) withinLimits() bool {
	if s.limits.MaxBytes > 0 && s.offset >= s.limits.MaxBytes {
		s.stopForLimit(fmt.Sprintf("byte cap of %d reached", s.limits.MaxBytes))
		return false
	}
	if s.limits.MaxLines > 0 && s.lineNo >= s.limits.MaxLines {
		s.stopForLimit(fmt.Sprintf("line cap of %d reached", s.limits.MaxLines))
		return false
	}
	if !s.limits.Deadline.IsZero() && s.lineNo%deadlineCheckEvery == 0 && s.now().After(s.limits.Deadline) {
		s.stopForLimit("case time budget exhausted")
		return false
	}
	return true
}

func (s *Stream) stopForLimit(reason string) {
	s.limitHit = true
	s.Warn(model.WarnResourceLimitExceeded, s.offset, s.lineNo, reason)
}

// readLine reads up to and including the next newline. Bytes past
// MaxLineBytes are consumed but dropped.
func (s *Stream) readLine() (text string, n int, terminated, truncated bool, err error) {
	var b strings.Builder
	for {
		chunk, rerr := s.r.ReadSlice('\n')
		n += len(chunk)
		if room := s.limits.MaxLineBytes - b.Len(); room > 0 {
			if len(chunk) > room {
				b.Write(chunk[:room])
				truncated = true
			} else {
				b.Write(chunk)
			}
		} else if len(chunk) > 0 {
			truncated = true
		}
		if rerr == bufio.ErrBufferFull {
			continue
		}
		if rerr == nil {
			terminated = true
		}
		err = rerr
		break
	}
	text = b.String()
	if terminated {
		text = strings.TrimSuffix(text, "\n")
	}
	text = strings.TrimSuffix(text, "\r")
	return text, n, terminated, truncated, err
}
