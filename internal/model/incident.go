package model

import "time"

// Incident is the read-only summary produced by the timeline builder.
type Incident struct {
	CaseID             string           `json:"case_id"`
	Device             *Device          `json:"device"`
	Start              time.Time        `json:"start"`
	End                time.Time        `json:"end"`
	BucketWidth        time.Duration    `json:"bucket_width"`
	Buckets            []Bucket         `json:"buckets"`
	Groups             []GroupTimeline  `json:"groups"`
	Rules              []RuleTimeline   `json:"rules"`
	Subsystems         []SubsystemScore `json:"subsystems"`
	SuspectedSubsystem string           `json:"suspected_subsystem"`
	Category           IssueCategory    `json:"category"`
	NovelGroups        int              `json:"novel_groups"`
	Warnings           []Warning        `json:"warnings"`
}

// Bucket is one fixed-width time window of the timeline.
type Bucket struct {
	Start  time.Time     `json:"start"`
	Events int           `json:"events"`
	Groups []BucketCount `json:"groups,omitempty"`
	Rules  []BucketCount `json:"rules,omitempty"`
}

// BucketCount is a group's or rule's count within one bucket.
type BucketCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	Spike bool   `json:"spike,omitempty"`
}

// GroupTimeline is a signature group's activity over the timeline.
type GroupTimeline struct {
	Fingerprint    Fingerprint `json:"fingerprint"`
	Template       string      `json:"template"`
	Representative string      `json:"representative"`
	Subsystem      string      `json:"subsystem,omitempty"`
	Level          Level       `json:"level"`
	Count          int         `json:"count"`
	First          time.Time   `json:"first"`
	Last           time.Time   `json:"last"`
	PerBucket      []int       `json:"per_bucket"`
	Spikes         []int       `json:"spikes,omitempty"`
}

// RuleTimeline is a rule's activity over the timeline.
type RuleTimeline struct {
	RuleID    string    `json:"rule_id"`
	Subsystem string    `json:"subsystem"`
	Severity  Severity  `json:"severity"`
	Count     int       `json:"count"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
	PerBucket []int     `json:"per_bucket"`
	Spikes    []int     `json:"spikes,omitempty"`
}

// SubsystemScore is the weighted evidence for one subsystem.
type SubsystemScore struct {
	Subsystem string    `json:"subsystem"`
	Weight    float64   `json:"weight"`
	First     time.Time `json:"first"`
	Rules     int       `json:"rules"`
	Groups    int       `json:"groups"`
}

// IssueCategory is the keyword classification of an incident.
type IssueCategory struct {
	Primary   string              `json:"primary"`
	Secondary []string            `json:"secondary,omitempty"`
	Scores    map[string]int      `json:"scores,omitempty"`
	Reasons   map[string][]string `json:"reasons,omitempty"`
}
