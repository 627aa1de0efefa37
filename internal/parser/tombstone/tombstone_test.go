package tombstone

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/parser"
)

const complete = `*** *** *** *** *** *** *** *** *** *** *** *** *** *** *** ***
Build fingerprint: 'samsung/e3qxxx/e3q:14/UP1A.231005.007/S928BXXU1AXB1:user/release-keys'
Revision: '0'
ABI: 'arm64'
Timestamp: 2024-03-05 10:11:12.123456789+0900
Process uptime: 12s
Cmdline: com.example.app
pid: 4321, tid: 4350, name: RenderThread  >>> com.example.app <<<
uid: 10234
signal 11 (SIGSEGV), code 1 (SEGV_MAPERR), fault addr 0x0000000000000010
Abort message: 'bad surface'

backtrace:
      #00 pc 000000000004c1a0  /system/lib64/libhwui.so (android::uirenderer::RenderThread::threadLoop()+32)
      #01 pc 0000000000011c28  /system/lib64/libutils.so (android::Thread::_threadLoop(void*)+264)
`

func parse(t *testing.T, input string, mod time.Time) ([]model.RawRecord, *parser.Stream) {
	t.Helper()
	s := parser.NewStream("tombstone_03", strings.NewReader(input), mod, parser.Limits{})
	return slices.Collect((&Parser{}).Parse(s)), s
}

func TestParseComplete(t *testing.T) {
	recs, s := parse(t, complete, time.Time{})

	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, model.SourceTombstone, rec.Source)
	assert.Equal(t, model.LevelFatal, rec.Level)
	assert.Equal(t, "com.example.app", rec.Component)
	assert.Equal(t, 4321, rec.PID)
	assert.Equal(t, 4350, rec.TID)
	assert.Equal(t, model.TimeAbsolute, rec.Time.Kind)
	assert.True(t, strings.HasPrefix(rec.Text,
		"native crash in com.example.app: signal 11 (SIGSEGV), code 1 (SEGV_MAPERR), fault addr 0x0000000000000010\nAbort message: bad surface\n"))
	assert.Contains(t, rec.Text, "RenderThread::threadLoop")
	assert.Empty(t, s.Warnings())
}

func TestParseTruncated(t *testing.T) {
	cut := complete[:strings.Index(complete, "uid: 10234")+5]
	mod := time.Date(2024, 3, 5, 1, 12, 0, 0, time.UTC)
	recs, s := parse(t, cut, mod)

	require.Len(t, recs, 1, "a partial event is still emitted")
	assert.Equal(t, 4321, recs[0].PID)

	var reasons []string
	for _, w := range s.Warnings() {
		assert.Equal(t, model.WarnParseMalformed, w.Kind)
		assert.Equal(t, "tombstone_03", w.File)
		reasons = append(reasons, w.Reason)
	}
	assert.ElementsMatch(t, []string{"tombstone has no backtrace", "tombstone truncated mid-line"}, reasons)
}

func TestParseNoPidFallsBackToModTime(t *testing.T) {
	input := "*** *** *** *** *** *** *** *** *** *** *** *** *** *** *** ***\nCmdline: /system/bin/surfaceflinger\n"
	mod := time.Date(2024, 3, 5, 1, 12, 0, 0, time.UTC)
	recs, s := parse(t, input, mod)

	require.Len(t, recs, 1)
	assert.Equal(t, "/system/bin/surfaceflinger", recs[0].Component)
	assert.Equal(t, model.AbsoluteTime(mod), recs[0].Time)
	assert.Len(t, s.Warnings(), 2)
}

func TestParseIgnoresFilesWithoutBanner(t *testing.T) {
	recs, _ := parse(t, "hello\nworld\n", time.Time{})
	assert.Empty(t, recs)
}
