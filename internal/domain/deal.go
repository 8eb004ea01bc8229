package domain

import "time"

// DealRecord is a structured business record handed back by the
// downstream extraction step. Classification fields (deal type,
// therapeutic area, stage) are opaque to the pipeline; it only routes
// them through deduplication.
type DealRecord struct {
	// Acquirer is the primary acquiring or licensing party.
	Acquirer string `json:"acquirer"`
	// Target is the acquired or licensing-out party.
	Target string `json:"target"`
	// AssetFocus describes the asset or program the deal is about.
	AssetFocus string `json:"asset_focus"`
	// DateAnnounced is the announcement date of the deal.
	DateAnnounced time.Time `json:"date_announced"`
	// TotalValueUSD is the total deal value in USD, zero when unknown.
	TotalValueUSD float64 `json:"total_value_usd,omitempty"`
	// SourceURL is the article the record was extracted from.
	SourceURL string `json:"source_url"`
	// RelatedURLs cross-references articles merged away during dedup.
	RelatedURLs []string `json:"related_urls,omitempty"`
	// DealType and TherapeuticArea are opaque classification labels.
	DealType        string `json:"deal_type,omitempty"`
	TherapeuticArea string `json:"therapeutic_area,omitempty"`
	// CanonicalKey is filled in by the deduplicator.
	CanonicalKey string `json:"canonical_key,omitempty"`
}
