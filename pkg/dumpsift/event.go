package dumpsift

import (
	"time"

	"github.com/crimson-sun/dumpsift/internal/engine/compactor"
	"github.com/crimson-sun/dumpsift/internal/engine/signature"
	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/output"
	"github.com/crimson-sun/dumpsift/internal/pipeline"
)

// Report is the result of analysing one case.
// This is the stable public type. Internal representations may evolve
// independently without breaking consumers.
type Report struct {
	CaseID    string     `json:"case_id"`
	Device    DeviceInfo `json:"device"`
	Artifacts []Artifact `json:"artifacts"`
	Events    []Event    `json:"events"`
	Groups    []Group    `json:"groups"`
	Matches   []Match    `json:"matches"`
	Incident  Incident   `json:"incident"`
	Warnings  []Warning  `json:"warnings"`
}

// DeviceInfo describes the device a case was captured on.
type DeviceInfo struct {
	Model          string `json:"model"`
	Build          string `json:"build"`
	OneUI          string `json:"one_ui"`
	AndroidVersion string `json:"android_version,omitempty"`
	Baseband       string `json:"baseband"`
	Carrier        string `json:"carrier,omitempty"`
	TimeZone       string `json:"time_zone,omitempty"`
}

// Artifact is the classifier's verdict on one input file.
type Artifact struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`       // bugreport, logcat, kernel, anr, tombstone, dropbox, unknown
	Confidence float64 `json:"confidence"` // 0.9 for filename conventions, 1 for kind hints
	Reason     string  `json:"reason"`
}

// Event is one normalized log event.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`           // UTC
	Source     string    `json:"source"`              // logcat-main, kernel, anr, tombstone, ...
	Level      string    `json:"level"`               // VERBOSE..FATAL, empty when unknown
	Component  string    `json:"component"`           // logcat tag, kernel subsystem, process
	Text       string    `json:"text"`                // compacted per verbosity
	Signature  string    `json:"signature,omitempty"` // hex fingerprint of the masked template
	PID        int       `json:"pid,omitempty"`
	TID        int       `json:"tid,omitempty"`
	Repeat     int       `json:"repeat,omitempty"`     // folded chatty repeats
	Unanchored bool      `json:"unanchored,omitempty"` // timestamp approximated
	File       string    `json:"file"`
	Line       int       `json:"line"`
}

// Group is a set of events sharing a message template.
type Group struct {
	Signature      string    `json:"signature"`
	Template       string    `json:"template"`
	Summary        string    `json:"summary"` // representative with count and span
	Count          int       `json:"count"`
	First          time.Time `json:"first"`
	Last           time.Time `json:"last"`
	Representative string    `json:"representative"`
	Component      string    `json:"component"`
	Level          string    `json:"level"`
	Subsystem      string    `json:"subsystem,omitempty"`
	Recurring      bool      `json:"recurring,omitempty"` // seen in an earlier case
}

// Match is one rule firing on one event.
type Match struct {
	RuleID    string    `json:"rule_id"`
	Severity  string    `json:"severity"`
	Subsystem string    `json:"subsystem"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Incident summarises the case.
type Incident struct {
	Start               time.Time        `json:"start"`
	End                 time.Time        `json:"end"`
	SuspectedSubsystem  string           `json:"suspected_subsystem"` // empty when nothing scored
	Subsystems          []SubsystemScore `json:"subsystems"`
	Category            string           `json:"category"`
	SecondaryCategories []string         `json:"secondary_categories,omitempty"`
	NovelGroups         int              `json:"novel_groups"`
	Spikes              int              `json:"spikes"`
}

// SubsystemScore is the weighted evidence for one subsystem.
type SubsystemScore struct {
	Subsystem string  `json:"subsystem"`
	Weight    float64 `json:"weight"`
	Rules     int     `json:"rules"`
	Groups    int     `json:"groups"`
}

// Warning is a non-fatal problem met while analysing a case.
type Warning struct {
	Kind   string `json:"kind"` // ClassificationUnknown, ParseMalformed, TimeAnchorMissing, RuleInvalid, ResourceLimitExceeded
	File   string `json:"file,omitempty"`
	Offset int64  `json:"offset,omitempty"`
	Reason string `json:"reason"`
}

func reportFromResult(res *pipeline.Result, v compactor.Verbosity) *Report {
	r := &Report{
		CaseID:    res.CaseID,
		Device:    deviceFromModel(res.Device),
		Artifacts: make([]Artifact, len(res.Artifacts)),
		Events:    make([]Event, len(res.Events)),
		Groups:    make([]Group, len(res.Groups)),
		Matches:   make([]Match, len(res.Matches)),
		Warnings:  make([]Warning, len(res.Warnings)),
	}
	for i, a := range res.Artifacts {
		r.Artifacts[i] = Artifact{Name: a.Name, Kind: string(a.Kind), Confidence: a.Confidence, Reason: a.Reason}
	}
	for i, e := range res.Events {
		r.Events[i] = eventFromModel(output.FormatEvent(e, v))
	}
	for i, g := range res.Groups {
		r.Groups[i] = groupFromModel(g)
	}
	for i, m := range res.Matches {
		r.Matches[i] = Match{
			RuleID:    m.RuleID,
			Severity:  string(m.Severity),
			Subsystem: m.Subsystem,
			Timestamp: m.Timestamp,
		}
		if m.Event != nil {
			r.Matches[i].Text = m.Event.Text
		}
	}
	for i, w := range res.Warnings {
		r.Warnings[i] = Warning{Kind: string(w.Kind), File: w.File, Offset: w.Offset, Reason: w.Reason}
	}
	if res.Incident != nil {
		r.Incident = incidentFromModel(res.Incident)
	}
	return r
}

func deviceFromModel(d *model.Device) DeviceInfo {
	info := d.Info()
	return DeviceInfo{
		Model:          info.Model,
		Build:          info.Build,
		OneUI:          info.OneUI,
		AndroidVersion: info.AndroidVersion,
		Baseband:       info.Baseband,
		Carrier:        info.Carrier,
		TimeZone:       info.TimeZone,
	}
}

func (d DeviceInfo) model() *model.Device {
	return model.NewDevice(model.DeviceInfo{
		Model:          d.Model,
		Build:          d.Build,
		OneUI:          d.OneUI,
		AndroidVersion: d.AndroidVersion,
		Baseband:       d.Baseband,
		Carrier:        d.Carrier,
		TimeZone:       d.TimeZone,
	})
}

func eventFromModel(e *model.Event) Event {
	ev := Event{
		Timestamp:  e.Timestamp,
		Source:     string(e.Source),
		Level:      e.Level.String(),
		Component:  e.Component,
		Text:       e.Text,
		PID:        e.PID,
		TID:        e.TID,
		Repeat:     e.Repeat,
		Unanchored: e.Unanchored,
		File:       e.File,
		Line:       e.Line,
	}
	if fp, ok := e.Signature(); ok {
		ev.Signature = fp.String()
	}
	return ev
}

func groupFromModel(g model.SignatureGroup) Group {
	return Group{
		Signature:      g.Fingerprint.String(),
		Template:       g.Template,
		Summary:        signature.Summary(g),
		Count:          g.Count,
		First:          g.First,
		Last:           g.Last,
		Representative: g.Representative,
		Component:      g.Component,
		Level:          g.Level.String(),
		Subsystem:      g.Subsystem,
		Recurring:      g.Recurring,
	}
}

func incidentFromModel(in *model.Incident) Incident {
	out := Incident{
		Start:               in.Start,
		End:                 in.End,
		SuspectedSubsystem:  in.SuspectedSubsystem,
		Subsystems:          make([]SubsystemScore, len(in.Subsystems)),
		Category:            in.Category.Primary,
		SecondaryCategories: in.Category.Secondary,
		NovelGroups:         in.NovelGroups,
	}
	for i, s := range in.Subsystems {
		out.Subsystems[i] = SubsystemScore{Subsystem: s.Subsystem, Weight: s.Weight, Rules: s.Rules, Groups: s.Groups}
	}
	for _, g := range in.Groups {
		out.Spikes += len(g.Spikes)
	}
	for _, r := range in.Rules {
		out.Spikes += len(r.Spikes)
	}
	return out
}
