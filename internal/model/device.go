package model

import (
	"encoding/json"
	"time"
)

// DeviceInfo carries the fields extracted from a bugreport header, or supplied
// directly by the caller.
type DeviceInfo struct {
	Model          string        `json:"model" yaml:"model"`
	Build          string        `json:"build" yaml:"build"`
	Fingerprint    string        `json:"fingerprint,omitempty" yaml:"fingerprint"`
	OneUI          string        `json:"one_ui" yaml:"one_ui"`
	AndroidVersion string        `json:"android_version,omitempty" yaml:"android_version"`
	Baseband       string        `json:"baseband" yaml:"baseband"`
	Carrier        string        `json:"carrier,omitempty" yaml:"carrier"`
	Locale         string        `json:"locale,omitempty" yaml:"locale"`
	TimeZone       string        `json:"time_zone,omitempty" yaml:"time_zone"`
	DumpTime       TimeRef       `json:"-" yaml:"-"`
	Uptime         time.Duration `json:"-" yaml:"-"`
}

// Device is the write-once metadata of the device a case was captured on.
// A single *Device is shared by every event of a case; it has no setters.
type Device struct {
	info DeviceInfo
}

// NewDevice freezes info into a Device.
func NewDevice(info DeviceInfo) *Device {
	return &Device{info: info}
}

// UnknownDevice returns the defaulted metadata used when no bugreport header
// is available.
func UnknownDevice() *Device {
	return &Device{}
}

// Info returns a copy of the device fields.
func (d *Device) Info() DeviceInfo {
	if d == nil {
		return DeviceInfo{}
	}
	return d.info
}

func (d *Device) Model() string    { return d.Info().Model }
func (d *Device) Build() string    { return d.Info().Build }
func (d *Device) OneUI() string    { return d.Info().OneUI }
func (d *Device) Baseband() string { return d.Info().Baseband }
func (d *Device) TimeZone() string { return d.Info().TimeZone }

// Anchor returns the dump wall-clock reference and the uptime at dump. ok is
// false unless both were present in the header.
func (d *Device) Anchor() (wall TimeRef, uptime time.Duration, ok bool) {
	info := d.Info()
	if info.DumpTime.Kind == TimeMissing || info.Uptime <= 0 {
		return info.DumpTime, info.Uptime, false
	}
	return info.DumpTime, info.Uptime, true
}

// Ref is the short identifier written into each serialized event.
func (d *Device) Ref() string {
	info := d.Info()
	switch {
	case info.Model == "" && info.Build == "":
		return ""
	case info.Build == "":
		return info.Model
	default:
		return info.Model + "@" + info.Build
	}
}

func (d *Device) MarshalJSON() ([]byte, error) {
	info := d.Info()
	type wire struct {
		DeviceInfo
		Uptime string `json:"uptime,omitempty"`
	}
	w := wire{DeviceInfo: info}
	if info.Uptime > 0 {
		w.Uptime = info.Uptime.String()
	}
	return json.Marshal(w)
}
