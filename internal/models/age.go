package models

import (
	"fmt"
	"time"
)

// AgeBucket classifies how long ago an annotation line was last touched.
type AgeBucket string

// Age buckets.
const (
	AgeRecent        AgeBucket = "recent"
	AgeAging         AgeBucket = "aging"
	AgeTechnicalDebt AgeBucket = "technical-debt"
)

// Age bucket thresholds.
const (
	RecentThreshold = 14 * 24 * time.Hour
	DebtThreshold   = 90 * 24 * time.Hour
)

// BucketOf returns the age bucket of ts relative to now.
func BucketOf(ts, now time.Time) AgeBucket {
	age := now.Sub(ts)
	switch {
	case age < RecentThreshold:
		return AgeRecent
	case age < DebtThreshold:
		return AgeAging
	default:
		return AgeTechnicalDebt
	}
}

// AgeFilter is the age predicate applied by the index.
type AgeFilter string

// Age filters.
const (
	AgeFilterAll         AgeFilter = "all"
	AgeFilterOlderThan90 AgeFilter = "older-than-90-days"
	AgeFilterNewerThan7  AgeFilter = "newer-than-7-days"
)

const newerThan7Window = 7 * 24 * time.Hour

// ParseAgeFilter validates a user supplied age filter. Empty means all.
func ParseAgeFilter(s string) (AgeFilter, error) {
	switch AgeFilter(s) {
	case "", AgeFilterAll:
		return AgeFilterAll, nil
	case AgeFilterOlderThan90, AgeFilterNewerThan7:
		return AgeFilter(s), nil
	}
	return "", fmt.Errorf("unknown age filter %q", s)
}

// Allows reports whether an annotation with the given history timestamp
// passes the filter. Annotations without a timestamp count as recent.
func (f AgeFilter) Allows(ts time.Time, known bool, now time.Time) bool {
	switch f {
	case AgeFilterOlderThan90:
		return known && now.Sub(ts) >= DebtThreshold
	case AgeFilterNewerThan7:
		return !known || now.Sub(ts) < newerThan7Window
	default:
		return true
	}
}
