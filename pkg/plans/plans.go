// Package plans is the static subscription plan table: quotas, technical
// limits and feature flags for each tier. It is immutable; lookups return
// copies.
package plans

import "sort"

const (
	Free   = "free"
	Pro    = "pro"
	Studio = "studio"
)

// Resolutions, lowest first.
const (
	Resolution720p  = "720p"
	Resolution1080p = "1080p"
	Resolution4K    = "4k"
)

// Feature flag names as exposed on the wire.
const (
	FeatureAdvancedAnalysis   = "advancedAnalysis"
	FeatureAICoaching         = "aiCoaching"
	FeatureExportOptions      = "exportOptions"
	FeatureCustomBranding     = "customBranding"
	FeatureOrganizationAccess = "organizationAccess"
	FeaturePrioritySupport    = "prioritySupport"
)

// Limits are per calendar month unless noted. Durations are seconds,
// sizes are megabytes.
type Limits struct {
	Recordings           int64  `json:"recordings"`
	MaxRecordingDuration int64  `json:"maxRecordingDuration"`
	Scripts              int64  `json:"scripts"`
	Exports              int64  `json:"exports"`
	AIAnalysisMinutes    int64  `json:"aiAnalysisMinutes"`
	MaxVideoSizeMB       int64  `json:"maxVideoSize"`
	MaxResolution        string `json:"maxResolution"`
	MaxFrameRate         int    `json:"maxFrameRate"`
}

type Features struct {
	AdvancedAnalysis   bool `json:"advancedAnalysis"`
	AICoaching         bool `json:"aiCoaching"`
	ExportOptions      bool `json:"exportOptions"`
	CustomBranding     bool `json:"customBranding"`
	OrganizationAccess bool `json:"organizationAccess"`
	PrioritySupport    bool `json:"prioritySupport"`
}

// Has reports the flag for a feature name. known is false for names that
// are not features at all.
func (f Features) Has(feature string) (enabled, known bool) {
	switch feature {
	case FeatureAdvancedAnalysis:
		return f.AdvancedAnalysis, true
	case FeatureAICoaching:
		return f.AICoaching, true
	case FeatureExportOptions:
		return f.ExportOptions, true
	case FeatureCustomBranding:
		return f.CustomBranding, true
	case FeatureOrganizationAccess:
		return f.OrganizationAccess, true
	case FeaturePrioritySupport:
		return f.PrioritySupport, true
	}
	return false, false
}

// Map returns the flags keyed by wire name.
func (f Features) Map() map[string]bool {
	out := make(map[string]bool, len(allFeatures))
	for _, name := range allFeatures {
		out[name], _ = f.Has(name)
	}
	return out
}

type Plan struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Rank        int      `json:"rank"`
	Limits      Limits   `json:"limits"`
	Features    Features `json:"features"`
}

var allFeatures = []string{
	FeatureAdvancedAnalysis,
	FeatureAICoaching,
	FeatureExportOptions,
	FeatureCustomBranding,
	FeatureOrganizationAccess,
	FeaturePrioritySupport,
}

var resolutionRank = map[string]int{
	Resolution720p:  1,
	Resolution1080p: 2,
	Resolution4K:    3,
}

var table = map[string]Plan{
	Free: {
		Name:        Free,
		DisplayName: "Free",
		Rank:        1,
		Limits: Limits{
			Recordings:           5,
			MaxRecordingDuration: 120,
			Scripts:              10,
			Exports:              3,
			AIAnalysisMinutes:    10,
			MaxVideoSizeMB:       100,
			MaxResolution:        Resolution720p,
			MaxFrameRate:         30,
		},
	},
	Pro: {
		Name:        Pro,
		DisplayName: "Pro",
		Rank:        2,
		Limits: Limits{
			Recordings:           50,
			MaxRecordingDuration: 600,
			Scripts:              100,
			Exports:              50,
			AIAnalysisMinutes:    120,
			MaxVideoSizeMB:       1024,
			MaxResolution:        Resolution1080p,
			MaxFrameRate:         60,
		},
		Features: Features{
			AdvancedAnalysis: true,
			AICoaching:       true,
			ExportOptions:    true,
		},
	},
	Studio: {
		Name:        Studio,
		DisplayName: "Studio",
		Rank:        3,
		Limits: Limits{
			Recordings:           500,
			MaxRecordingDuration: 3600,
			Scripts:              1000,
			Exports:              500,
			AIAnalysisMinutes:    600,
			MaxVideoSizeMB:       5120,
			MaxResolution:        Resolution4K,
			MaxFrameRate:         60,
		},
		Features: Features{
			AdvancedAnalysis:   true,
			AICoaching:         true,
			ExportOptions:      true,
			CustomBranding:     true,
			OrganizationAccess: true,
			PrioritySupport:    true,
		},
	},
}

// Get looks a plan up by name.
func Get(name string) (Plan, bool) {
	p, ok := table[name]
	return p, ok
}

// ForUser resolves the plan whose limits apply to a stored plan name.
// Unknown names get the free plan's limits.
func ForUser(name string) Plan {
	if p, ok := table[name]; ok {
		return p
	}
	return table[Free]
}

// Rank orders plans for tier checks. Unknown names rank 0.
func Rank(name string) int {
	if p, ok := table[name]; ok {
		return p.Rank
	}
	return 0
}

// All returns every plan ordered by rank.
func All() []Plan {
	out := make([]Plan, 0, len(table))
	for _, p := range table {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// Names returns plan names ordered by rank.
func Names() []string {
	all := All()
	out := make([]string, len(all))
	for i, p := range all {
		out[i] = p.Name
	}
	return out
}

// FeatureNames returns every feature flag name.
func FeatureNames() []string {
	out := make([]string, len(allFeatures))
	copy(out, allFeatures)
	return out
}

// PlansWithFeature lists, by rank, the plans that carry a feature.
func PlansWithFeature(feature string) []string {
	out := []string{}
	for _, p := range All() {
		if enabled, _ := p.Features.Has(feature); enabled {
			out = append(out, p.Name)
		}
	}
	return out
}

// ResolutionRank orders resolutions. Unknown values rank 0.
func ResolutionRank(resolution string) int {
	return resolutionRank[resolution]
}

// IsResolution reports whether resolution is a known value.
func IsResolution(resolution string) bool {
	_, ok := resolutionRank[resolution]
	return ok
}
