package dealdup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dealharvest/dealharvest/internal/domain"
)

// legalSuffixes are corporate designators stripped from entity names so
// "Acme Inc." and "Acme" hash to the same key.
var legalSuffixes = []string{
	"inc", "incorporated", "corp", "corporation", "co", "company",
	"ltd", "limited", "llc", "plc", "ag", "sa", "nv", "bv", "gmbh",
	"ab", "as", "oy", "kk", "pharmaceuticals", "pharma", "biosciences",
	"therapeutics", "holdings", "group",
}

var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// normalizeEntity canonicalizes an entity name: case folding, diacritic
// stripping, punctuation removal, legal suffix removal, and whitespace
// collapse.
func normalizeEntity(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))

	stripped, _, err := transform.String(diacriticStripper, lowered)
	if err != nil {
		stripped = lowered
	}

	var b strings.Builder
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '.' || r == ',' || r == '&' || r == '/':
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for len(words) > 1 && isLegalSuffix(words[len(words)-1]) {
		words = words[:len(words)-1]
	}

	return strings.Join(words, " ")
}

func isLegalSuffix(word string) bool {
	for _, suffix := range legalSuffixes {
		if word == suffix {
			return true
		}
	}
	return false
}

// CanonicalKey returns the deterministic identity hash for a record:
// SHA-256 over the normalized acquirer, target, asset descriptor, and
// announcement date.
func CanonicalKey(record *domain.DealRecord) string {
	parts := []string{
		normalizeEntity(record.Acquirer),
		normalizeEntity(record.Target),
		normalizeEntity(record.AssetFocus),
		record.DateAnnounced.Format("2006-01-02"),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))

	return hex.EncodeToString(sum[:])
}

// entityPairKey identifies a record's parties and topic without the
// date, for fuzzy matching across nearby announcement dates.
func entityPairKey(record *domain.DealRecord) string {
	return normalizeEntity(record.Acquirer) + "|" +
		normalizeEntity(record.Target) + "|" +
		normalizeEntity(record.AssetFocus)
}
