// Package dealdup collapses extracted business records that describe
// the same underlying deal into a single surviving record.
package dealdup

import (
	"strings"
	"time"

	"github.com/dealharvest/dealharvest/internal/domain"
	"github.com/dealharvest/dealharvest/internal/logger"
)

// DefaultWindowDays is the fuzzy-match window: records with matching
// entities whose dates differ by at most this many days are treated as
// the same event reported with slightly different date parsing.
const DefaultWindowDays = 3

// defaultAuthoritativePatterns mark source URLs carrying an official
// press release rather than a secondary write-up.
var defaultAuthoritativePatterns = []string{
	"prnewswire", "businesswire", "globenewswire", "newsroom",
	"press-release", "press_release", "/press/", "investors",
}

// Config tunes the deduplicator.
type Config struct {
	// WindowDays is the fuzzy date window in days. Zero or less selects
	// DefaultWindowDays.
	WindowDays int
	// AuthoritativePatterns override the default press-release URL
	// substrings. Nil keeps the defaults.
	AuthoritativePatterns []string
}

// Deduplicator merges duplicate deal records.
type Deduplicator struct {
	windowDays int
	patterns   []string
	log        logger.Interface
}

// New creates a deduplicator from cfg.
func New(cfg Config, log logger.Interface) *Deduplicator {
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	patterns := cfg.AuthoritativePatterns
	if patterns == nil {
		patterns = defaultAuthoritativePatterns
	}

	if log == nil {
		log = logger.NewNoOp()
	}

	return &Deduplicator{
		windowDays: windowDays,
		patterns:   patterns,
		log:        log.WithComponent("dealdup"),
	}
}

// Deduplicate collapses duplicates in two tiers: exact canonical-key
// matches first, then fuzzy matches where the entity pair and asset
// agree and the dates fall within the window. Output preserves the
// input order of surviving records. Input records are not mutated;
// survivors are copies.
func (d *Deduplicator) Deduplicate(records []*domain.DealRecord) []*domain.DealRecord {
	if len(records) == 0 {
		return nil
	}

	survivors := d.mergeExact(records)
	survivors = d.mergeFuzzy(survivors)

	d.log.Info("deal dedup complete",
		"input", len(records),
		"output", len(survivors))

	return survivors
}

// mergeExact collapses records sharing a canonical key.
func (d *Deduplicator) mergeExact(records []*domain.DealRecord) []*domain.DealRecord {
	byKey := make(map[string]*domain.DealRecord, len(records))
	order := make([]string, 0, len(records))

	for _, record := range records {
		clone := cloneRecord(record)
		clone.CanonicalKey = CanonicalKey(clone)

		existing, ok := byKey[clone.CanonicalKey]
		if !ok {
			byKey[clone.CanonicalKey] = clone
			order = append(order, clone.CanonicalKey)
			continue
		}

		byKey[clone.CanonicalKey] = d.merge(existing, clone)
	}

	out := make([]*domain.DealRecord, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}

	return out
}

// mergeFuzzy collapses records with identical entity pairs whose dates
// fall within the window.
func (d *Deduplicator) mergeFuzzy(records []*domain.DealRecord) []*domain.DealRecord {
	type slot struct {
		rec *domain.DealRecord
	}

	buckets := make(map[string][]*slot)
	slots := make([]*slot, 0, len(records))

	for _, record := range records {
		key := entityPairKey(record)

		merged := false
		for _, s := range buckets[key] {
			if withinDays(s.rec.DateAnnounced, record.DateAnnounced, d.windowDays) {
				winner := d.merge(s.rec, record)
				winner.CanonicalKey = CanonicalKey(winner)
				s.rec = winner
				merged = true
				break
			}
		}
		if !merged {
			s := &slot{rec: record}
			buckets[key] = append(buckets[key], s)
			slots = append(slots, s)
		}
	}

	out := make([]*domain.DealRecord, len(slots))
	for i, s := range slots {
		out[i] = s.rec
	}

	return out
}

// merge returns the preferred record of the pair, folding the loser's
// URL into the winner's cross-references.
func (d *Deduplicator) merge(a, b *domain.DealRecord) *domain.DealRecord {
	winner, loser := a, b
	if d.prefer(b, a) {
		winner, loser = b, a
	}

	if loser.SourceURL != "" && loser.SourceURL != winner.SourceURL {
		winner.RelatedURLs = appendUnique(winner.RelatedURLs, loser.SourceURL)
	}
	for _, url := range loser.RelatedURLs {
		if url != winner.SourceURL {
			winner.RelatedURLs = appendUnique(winner.RelatedURLs, url)
		}
	}

	// fill gaps the loser can cover
	if winner.TotalValueUSD == 0 && loser.TotalValueUSD > 0 {
		winner.TotalValueUSD = loser.TotalValueUSD
	}
	if winner.DealType == "" {
		winner.DealType = loser.DealType
	}
	if winner.TherapeuticArea == "" {
		winner.TherapeuticArea = loser.TherapeuticArea
	}

	return winner
}

// prefer reports whether b should win over a: authoritative source
// first, then populated value, then larger value, then earlier date.
func (d *Deduplicator) prefer(b, a *domain.DealRecord) bool {
	authA, authB := d.isAuthoritative(a.SourceURL), d.isAuthoritative(b.SourceURL)
	if authA != authB {
		return authB
	}

	hasValueA, hasValueB := a.TotalValueUSD > 0, b.TotalValueUSD > 0
	if hasValueA != hasValueB {
		return hasValueB
	}
	if hasValueA && hasValueB && a.TotalValueUSD != b.TotalValueUSD {
		return b.TotalValueUSD > a.TotalValueUSD
	}

	return b.DateAnnounced.Before(a.DateAnnounced)
}

func (d *Deduplicator) isAuthoritative(url string) bool {
	lowered := strings.ToLower(url)
	for _, pattern := range d.patterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}

func withinDays(a, b time.Time, days int) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(days)*24*time.Hour
}

func cloneRecord(record *domain.DealRecord) *domain.DealRecord {
	clone := *record
	clone.RelatedURLs = append([]string(nil), record.RelatedURLs...)
	return &clone
}

func appendUnique(list []string, v string) []string {
	for _, item := range list {
		if item == v {
			return list
		}
	}
	return append(list, v)
}
