package models

import "time"

// Resource is a countable monthly quota.
type Resource string

const (
	ResourceRecordings        Resource = "recordings"
	ResourceScripts           Resource = "scripts"
	ResourceExports           Resource = "exports"
	ResourceAIAnalysisMinutes Resource = "aiAnalysisMinutes"
)

// Resources lists every countable resource.
var Resources = []Resource{
	ResourceRecordings,
	ResourceScripts,
	ResourceExports,
	ResourceAIAnalysisMinutes,
}

// ParseResource validates a resource name.
func ParseResource(s string) (Resource, bool) {
	for _, r := range Resources {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

type RecordingUsage struct {
	Count         int64   `json:"count"`
	TotalDuration float64 `json:"totalDuration"`
	Limit         int64   `json:"limit"`
}

type CounterUsage struct {
	Count int64 `json:"count"`
	Limit int64 `json:"limit"`
}

type MinutesUsage struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

type BandwidthUsage struct {
	Used float64 `json:"used"`
}

// UsageLedger is one user's counters for one calendar month. Limits are
// copied from the plan when the ledger is created and not refreshed.
type UsageLedger struct {
	ID                string         `json:"id"`
	UserID            string         `json:"userId"`
	Month             string         `json:"month"`
	Recordings        RecordingUsage `json:"recordings"`
	Scripts           CounterUsage   `json:"scripts"`
	Exports           CounterUsage   `json:"exports"`
	AIAnalysisMinutes MinutesUsage   `json:"aiAnalysisMinutes"`
	Bandwidth         BandwidthUsage `json:"bandwidth"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// Usage returns the current counter and snapshotted limit for a resource.
func (l *UsageLedger) Usage(r Resource) (current, limit int64, ok bool) {
	switch r {
	case ResourceRecordings:
		return l.Recordings.Count, l.Recordings.Limit, true
	case ResourceScripts:
		return l.Scripts.Count, l.Scripts.Limit, true
	case ResourceExports:
		return l.Exports.Count, l.Exports.Limit, true
	case ResourceAIAnalysisMinutes:
		return l.AIAnalysisMinutes.Used, l.AIAnalysisMinutes.Limit, true
	}
	return 0, 0, false
}
