package model

// RawRecord is the intermediate type produced by format parsers and consumed
// by the time and event normalizers.
type RawRecord struct {
	Time      TimeRef
	Source    Source
	Level     Level
	Component string
	PID       int
	TID       int
	Text      string
	Repeat    int     // further identical occurrences folded in (logcat chatty)
	Line      int     // 1-based line where the record starts
	Offset    int64   // byte offset where the record starts
	Device    *Device // set only on meta records emitted by the bugreport parser
}
