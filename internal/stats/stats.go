// Package stats provides the shared numeric primitives used by the
// fraud heuristics: robust central tendency, answer-pattern measures,
// distance, and fixed-offset local time conversion.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Median returns the middle value of values (average of the two middles
// for even lengths). An empty slice yields 0. The input is not mutated.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 != 0 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// FieldMatchRatio compares two answer maps over the union of their keys
// and returns the fraction of keys whose values are equal. Keys prefixed
// with "_" are metadata (GPS, device info) and excluded. An empty union
// yields 0, so two all-metadata maps never count as duplicates.
func FieldMatchRatio(a, b map[string]any) float64 {
	union := make(map[string]struct{})
	for k := range a {
		if !strings.HasPrefix(k, "_") {
			union[k] = struct{}{}
		}
	}
	for k := range b {
		if !strings.HasPrefix(k, "_") {
			union[k] = struct{}{}
		}
	}
	if len(union) == 0 {
		return 0
	}

	matches := 0
	for k := range union {
		av, aOK := a[k]
		bv, bOK := b[k]
		if aOK && bOK && answerKey(av) == answerKey(bv) {
			matches++
		}
	}
	return float64(matches) / float64(len(union))
}

// LongestRun returns the length of the longest run of consecutive equal
// answers. Answers are compared by string form, matching how they arrive
// from the form filler.
func LongestRun(responses []any) int {
	if len(responses) == 0 {
		return 0
	}

	maxRun, run := 1, 1
	for i := 1; i < len(responses); i++ {
		if answerKey(responses[i]) == answerKey(responses[i-1]) {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 1
		}
	}
	return maxRun
}

// ShannonEntropy returns the entropy in bits of the answer-frequency
// distribution, rounded to two decimals. All-identical answers yield 0;
// a uniform 5-point distribution yields ~2.32.
func ShannonEntropy(responses []any) float64 {
	if len(responses) == 0 {
		return 0
	}

	freq := make(map[string]int)
	for _, r := range responses {
		freq[answerKey(r)]++
	}

	var entropy float64
	n := float64(len(responses))
	for _, count := range freq {
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return Round2(entropy)
}

// ModalFraction returns the fraction of responses equal to the most
// common response (PIR in the survey-methodology literature).
func ModalFraction(responses []any) float64 {
	if len(responses) == 0 {
		return 0
	}

	freq := make(map[string]int)
	for _, r := range responses {
		freq[answerKey(r)]++
	}

	max := 0
	for _, count := range freq {
		if count > max {
			max = count
		}
	}
	return float64(max) / float64(len(responses))
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance in meters between two
// coordinates given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// watOffset is West Africa Time, UTC+1, no daylight saving. Local time
// arithmetic uses this fixed offset rather than the runtime's zone
// database so results never depend on host configuration.
const watOffset = time.Hour

// WATHour returns the local hour-of-day [0,24) for a UTC instant.
func WATHour(t time.Time) int {
	return t.UTC().Add(watOffset).Hour()
}

// WATWeekday returns the local day-of-week for a UTC instant. An hour
// near UTC midnight can roll into the next local day.
func WATWeekday(t time.Time) time.Weekday {
	return t.UTC().Add(watOffset).Weekday()
}

// IsWeekendWAT reports whether the instant falls on a local Saturday or
// Sunday.
func IsWeekendWAT(t time.Time) bool {
	wd := WATWeekday(t)
	return wd == time.Saturday || wd == time.Sunday
}

// answerKey normalizes an answer for equality comparison. JSON decoding
// turns all numbers into float64, so "3" and 3 stay distinct but 3 and
// 3.0 compare equal.
func answerKey(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
