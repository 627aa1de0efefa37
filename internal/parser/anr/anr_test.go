package anr

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

const traces = `Subject: Input dispatching timed out (com.example.app/.MainActivity)

----- pid 4321 at 2024-03-05 10:11:12.123456789+0900 -----
Cmd line: com.example.app
Build fingerprint: 'samsung/e3qxxx/e3q:14/UP1A.231005.007/S928BXXU1AXB1:user/release-keys'

"main" prio=5 tid=1 Blocked
  | group="main" sCount=1 ucsCount=0 flags=1 obj=0x72a1e0b8 self=0xb400007
  at com.example.app.Store.load(Store.java:88)
  - waiting to lock <0x0a1b2c3d> (a java.lang.Object) held by thread 17
  at com.example.app.MainActivity.onResume(MainActivity.java:41)

"Signal Catcher" daemon prio=10 tid=6 Runnable
  at java.lang.Object.wait(Native method)

----- end 4321 -----

----- pid 900 at 2024-03-05 10:11:13 -----
Cmd line: system_server
`

func TestParseOccurrence(t *testing.T) {
	s := parser.NewStream("traces.txt", strings.NewReader(traces), time.Time{}, parser.Limits{})
	recs := slices.Collect((&Parser{}).Parse(s))

	require.Len(t, recs, 1, "app and system_server blocks are one ANR")

	rec := recs[0]
	assert.Equal(t, model.SourceANR, rec.Source)
	assert.Equal(t, "com.example.app", rec.Component)
	assert.Equal(t, 4321, rec.PID)
	assert.Equal(t, model.TimeAbsolute, rec.Time.Kind)
	assert.Equal(t, 3, rec.Line)
	assert.True(t, strings.HasPrefix(rec.Text, "ANR traces for com.example.app (pid 4321)\n"))
	assert.Contains(t, rec.Text, "Subject: Input dispatching timed out")
	assert.Contains(t, rec.Text, "Also dumped: system_server (pid 900)")
	assert.Contains(t, rec.Text, "Store.java:88")
	assert.Contains(t, rec.Text, "waiting to lock")
	assert.Contains(t, rec.Text, "Native method", "the whole dump is kept")
	assert.Contains(t, rec.Text, "----- end 4321 -----")
	assert.Contains(t, rec.Text, "Cmd line: system_server")

	require.Len(t, s.Warnings(), 1, "second block is missing its end marker")
	assert.Equal(t, model.WarnParseMalformed, s.Warnings()[0].Kind)
}

func TestParseSeparateOccurrences(t *testing.T) {
	input := strings.Join([]string{
		"Subject: Broadcast of Intent { act=android.intent.action.BOOT_COMPLETED }",
		"----- pid 10 at 2024-03-05 10:00:00 -----",
		"Cmd line: com.example.first",
		"----- end 10 -----",
		"Subject: Input dispatching timed out",
		"----- pid 20 at 2024-03-05 10:00:05 -----",
		"Cmd line: com.example.second",
		"----- end 20 -----",
		"",
		"----- pid 30 at 2024-03-05 11:30:00 -----",
		"Cmd line: com.example.later",
		"----- end 30 -----",
	}, "\n") + "\n"
	s := parser.NewStream("traces.txt", strings.NewReader(input), time.Time{}, parser.Limits{})
	recs := slices.Collect((&Parser{}).Parse(s))

	require.Len(t, recs, 2)
	assert.Equal(t, "com.example.first", recs[0].Component)
	assert.NotContains(t, recs[0].Text, "com.example.second")
	assert.Equal(t, "com.example.second", recs[1].Component)
	assert.Contains(t, recs[1].Text, "Also dumped: com.example.later (pid 30)", "a subject keeps following blocks together")
	assert.Empty(t, s.Warnings())
}

func TestParseSplitsDistantDumpsWithoutSubject(t *testing.T) {
	input := strings.Join([]string{
		"----- pid 10 at 2024-03-05 10:00:00 -----",
		"Cmd line: com.example.app",
		"----- end 10 -----",
		"----- pid 900 at 2024-03-05 10:00:02 -----",
		"Cmd line: system_server",
		"----- end 900 -----",
		"----- pid 11 at 2024-03-05 12:00:00 -----",
		"Cmd line: com.example.app",
		"----- end 11 -----",
	}, "\n") + "\n"
	s := parser.NewStream("traces.txt", strings.NewReader(input), time.Time{}, parser.Limits{})
	recs := slices.Collect((&Parser{}).Parse(s))

	require.Len(t, recs, 2)
	assert.Equal(t, 10, recs[0].PID)
	assert.Contains(t, recs[0].Text, "system_server")
	assert.Equal(t, 11, recs[1].PID)
	assert.Equal(t, 7, recs[1].Line)
}

func TestReadOccurrence(t *testing.T) {
	body := "Cmd line: com.android.phone\n----- end 77 -----\n------ SYSTEM PROPERTIES (getprop) ------\n"
	s := parser.NewStream("bugreport.txt", strings.NewReader(body), time.Time{}, parser.Limits{})
	begin := parser.Line{Text: "----- pid 77 at 2024-03-05 10:00:00 -----", No: 10, Offset: 500}

	require.True(t, IsBlockStart(begin.Text))
	rec, ok := ReadOccurrence(s, begin, "")
	require.True(t, ok)
	assert.Equal(t, "com.android.phone", rec.Component)
	assert.Equal(t, int64(500), rec.Offset)
	assert.Empty(t, s.Warnings())

	next, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "------ SYSTEM PROPERTIES (getprop) ------", next.Text, "the next section is left unread")
}
