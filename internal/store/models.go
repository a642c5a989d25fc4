package store

// Project is one catalog entry, the data behind a listing card.
type Project struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Developer    string   `json:"developer" yaml:"developer"`
	City         string   `json:"city" yaml:"city"`
	Country      string   `json:"country" yaml:"country"`
	Area         string   `json:"area,omitempty" yaml:"area"`
	PriceFrom    string   `json:"priceFrom,omitempty" yaml:"price_from"`
	UnitTypes    []string `json:"unitTypes,omitempty" yaml:"unit_types"`
	Handover     string   `json:"handover,omitempty" yaml:"handover"`
	Status       string   `json:"status,omitempty" yaml:"status"` // New Launch, Off-plan, Ready
	ThumbnailURL string   `json:"thumbnailUrl,omitempty" yaml:"thumbnail_url"`
	Tags         []string `json:"tags,omitempty" yaml:"tags"`
}
