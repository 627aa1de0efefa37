package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/dumpsift/internal/model"
)

func collect(s *Stream) []Line {
	var lines []Line
	for {
		l, ok := s.Next()
		if !ok {
			return lines
		}
		lines = append(lines, l)
	}
}

func TestStreamLinesAndOffsets(t *testing.T) {
	s := NewStream("a.txt", strings.NewReader("one\r\ntwo\nthree"), time.Time{}, Limits{})
	lines := collect(s)

	require.Len(t, lines, 3)
	assert.Equal(t, Line{Text: "one", No: 1, Offset: 0}, lines[0])
	assert.Equal(t, Line{Text: "two", No: 2, Offset: 5}, lines[1])
	assert.Equal(t, Line{Text: "three", No: 3, Offset: 9, Partial: true}, lines[2])
	assert.Empty(t, s.Warnings())
}

func TestStreamPeekAndUnread(t *testing.T) {
	s := NewStream("a.txt", strings.NewReader("a\nb\n"), time.Time{}, Limits{})

	p, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", p.Text)

	l, _ := s.Next()
	assert.Equal(t, "a", l.Text)
	l, _ = s.Next()
	assert.Equal(t, "b", l.Text)
	s.Unread(l)
	assert.Equal(t, int64(2), s.Offset())
	l, _ = s.Next()
	assert.Equal(t, "b", l.Text)

	_, ok = s.Next()
	assert.False(t, ok)
}

func TestStreamLineCap(t *testing.T) {
	s := NewStream("big.txt", strings.NewReader("1\n2\n3\n4\n5\n"), time.Time{}, Limits{MaxLines: 2})
	lines := collect(s)

	assert.Len(t, lines, 2)
	assert.True(t, s.LimitHit())
	require.Len(t, s.Warnings(), 1)
	assert.Equal(t, model.WarnResourceLimitExceeded, s.Warnings()[0].Kind)
	assert.Equal(t, "big.txt", s.Warnings()[0].File)
}

func TestStreamByteCap(t *testing.T) {
	s := NewStream("big.txt", strings.NewReader("aaaa\nbbbb\ncccc\n"), time.Time{}, Limits{MaxBytes: 6})
	lines := collect(s)

	assert.Len(t, lines, 2, "the line crossing the cap is still returned")
	assert.True(t, s.LimitHit())
}

func TestStreamLongLineTruncated(t *testing.T) {
	long := strings.Repeat("x", 100)
	s := NewStream("long.txt", strings.NewReader(long+"\nnext\n"), time.Time{}, Limits{MaxLineBytes: 10})
	lines := collect(s)

	require.Len(t, lines, 2)
	assert.Equal(t, strings.Repeat("x", 10), lines[0].Text)
	assert.False(t, lines[0].Partial)
	assert.Equal(t, "next", lines[1].Text)
	assert.Equal(t, int64(101), lines[1].Offset)
	require.Len(t, s.Warnings(), 1)
	assert.Equal(t, model.WarnResourceLimitExceeded, s.Warnings()[0].Kind)
}

func TestStreamDeadline(t *testing.T) {
	s := NewStream("slow.txt", strings.NewReader("a\nb\n"), time.Time{}, Limits{Deadline: time.Unix(1, 0)})
	_, ok := s.Next()
	assert.False(t, ok)
	assert.True(t, s.LimitHit())
}

func TestParseHeaderTime(t *testing.T) {
	ref, ok := ParseHeaderTime("2024-03-05 10:11:12")
	require.True(t, ok)
	assert.Equal(t, model.TimeLocal, ref.Kind)
	assert.Equal(t, 10, ref.Wall.Hour())

	ref, ok = ParseHeaderTime("2024-03-05 10:11:12.123456789+0900")
	require.True(t, ok)
	assert.Equal(t, model.TimeAbsolute, ref.Kind)
	assert.Equal(t, 1, ref.Wall.UTC().Hour())

	ref, ok = ParseHeaderTime("Mar 5, 2024 10:11:12 AM")
	require.True(t, ok)
	assert.Equal(t, model.TimeLocal, ref.Kind)

	_, ok = ParseHeaderTime("not a time")
	assert.False(t, ok)
}

func TestParseHeaderTimeZoneAbbreviation(t *testing.T) {
	ref, ok := ParseHeaderTime("2024-03-05 10:11:12 KST")
	require.True(t, ok)
	assert.Equal(t, model.TimeAbsolute, ref.Kind)
	assert.Equal(t, time.Date(2024, 3, 5, 1, 11, 12, 0, time.UTC), ref.Wall.UTC())

	ref, ok = ParseHeaderTime("2024-03-05 10:11:12 PDT")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 17, 11, 12, 0, time.UTC), ref.Wall.UTC())

	ref, ok = ParseHeaderTime("2024-03-05 10:11:12 XYZT")
	require.True(t, ok)
	assert.Equal(t, model.TimeLocal, ref.Kind, "unknown zones stay device-local")
	assert.Equal(t, 10, ref.Wall.Hour())
}

func TestParseSeconds(t *testing.T) {
	d, ok := ParseSeconds(" 123.456789")
	require.True(t, ok)
	assert.Equal(t, 123*time.Second+456789*time.Microsecond, d)

	_, ok = ParseSeconds("abc")
	assert.False(t, ok)
}
