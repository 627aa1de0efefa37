package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crimson-sun/dumpsift/internal/model"
)

func TestEventDefaults(t *testing.T) {
	dev := model.NewDevice(model.DeviceInfo{Model: "SM-S928", Build: "ABC123"})
	ts := model.AbsoluteTime(time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC))
	rec := model.RawRecord{
		Source: model.SourceKernel,
		Text:   "  raw text kept as is ",
		Line:   7,
		Offset: 120,
	}

	e := Event(rec, ts, dev, "dmesg.txt", model.Order{Artifact: 2, Seq: 5})

	assert.Equal(t, model.LevelInfo, e.Level)
	assert.Equal(t, "", e.Component)
	assert.Equal(t, "  raw text kept as is ", e.Text)
	assert.Same(t, dev, e.Device)
	assert.Equal(t, ts.Wall, e.Timestamp)
	assert.Equal(t, "dmesg.txt", e.File)
	assert.Equal(t, model.Order{Artifact: 2, Seq: 5}, e.Order)
	_, signed := e.Signature()
	assert.False(t, signed)
}

func TestEventKeepsFields(t *testing.T) {
	ts := model.AbsoluteTime(time.Unix(10, 0).UTC())
	ts.Unanchored = true
	rec := model.RawRecord{
		Source:    model.SourceLogcatRadio,
		Level:     model.LevelError,
		Component: " RILJ ",
		PID:       2000,
		TID:       2001,
		Repeat:    3,
	}

	e := Event(rec, ts, nil, "radio.txt", model.Order{})

	assert.Equal(t, model.SourceLogcatRadio, e.Source)
	assert.Equal(t, model.LevelError, e.Level)
	assert.Equal(t, "RILJ", e.Component)
	assert.Equal(t, 4, e.Occurrences())
	assert.True(t, e.Unanchored)
}
