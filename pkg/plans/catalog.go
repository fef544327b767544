package plans

// Catalog is the public, serializable view of the plan table.
type Catalog struct {
	Version     string   `json:"version"`
	Plans       []Plan   `json:"plans"`
	Features    []string `json:"features"`
	Resolutions []string `json:"resolutions"`
}

// CatalogVersion changes whenever a limit or flag in the table changes.
const CatalogVersion = "2026-10"

// Export builds the catalog. Every call returns fresh slices.
func Export() Catalog {
	return Catalog{
		Version:     CatalogVersion,
		Plans:       All(),
		Features:    FeatureNames(),
		Resolutions: []string{Resolution720p, Resolution1080p, Resolution4K},
	}
}
