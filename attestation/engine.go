// Package attestation resolves conflicting and superseding review
// attestations into a single reputation signal for a registry entry.
package attestation

import "strings"

// Engine deduplicates review attestations and derives aggregate ratings.
// It holds no mutable state; one engine can serve concurrent requests.
type Engine struct {
	reviewSchema string
}

// NewEngine constructs an engine that recognizes records carrying the given
// review schema identifier.
func NewEngine(reviewSchema string) *Engine {
	return &Engine{reviewSchema: reviewSchema}
}

// Summary is the derived aggregate rating. It is recomputed on demand and
// never persisted.
type Summary struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type dedupKey struct {
	attester string
	subject  string
	version  string
}

// Deduplicate keeps, per (attester, subject, version) key, only the
// review-schema record with the greatest timestamp. Attesters are grouped
// case-insensitively and a missing version groups under the empty string.
// Equal timestamps break toward the lexicographically smallest UID so the
// winner does not depend on input order. Output order is unspecified.
func (e *Engine) Deduplicate(records []Record) []Record {
	winners := make(map[dedupKey]Record)
	for _, rec := range records {
		if !strings.EqualFold(rec.SchemaID, e.reviewSchema) {
			continue
		}
		key := dedupKey{
			attester: normalizedAttester(rec.Attester),
			subject:  rec.Subject(),
			version:  rec.Version(),
		}
		current, seen := winners[key]
		if !seen || rec.Time > current.Time || (rec.Time == current.Time && rec.UID < current.UID) {
			winners[key] = rec
		}
	}
	deduped := make([]Record, 0, len(winners))
	for _, rec := range winners {
		deduped = append(deduped, rec)
	}
	return deduped
}

// Aggregate deduplicates, drops revoked records and records without a numeric
// rating, and returns the arithmetic mean of what remains. An empty survivor
// set yields {0, 0}, never NaN.
func (e *Engine) Aggregate(records []Record) Summary {
	var sum float64
	count := 0
	for _, rec := range e.Deduplicate(records) {
		if rec.Revoked() {
			continue
		}
		value, ok := rec.Rating()
		if !ok {
			continue
		}
		sum += value
		count++
	}
	if count == 0 {
		return Summary{}
	}
	return Summary{Average: sum / float64(count), Count: count}
}
