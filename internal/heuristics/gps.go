package heuristics

import (
	"math"
	"sort"

	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/stats"
)

// GPSClustering detects spatial fabrication patterns. The primary signal
// is DBSCAN clustering over the enumerator's recent fixes plus the
// current one: an enumerator submitting many interviews from one spot is
// likely sitting somewhere inventing them. Teleportation between
// consecutive fixes and coordinate reuse across enumerators are
// secondary signals. A poor device accuracy radius halves the final
// score rather than zeroing it, since a weak fix weakens every distance
// computed from it without invalidating the pattern outright.
type GPSClustering struct{}

func (h *GPSClustering) Key() string               { return "gps_clustering" }
func (h *GPSClustering) Category() domain.Category { return domain.CategoryGPS }

func (h *GPSClustering) Evaluate(sub *domain.SubmissionWithContext, cfg domain.ThresholdSnapshot) domain.ScoreResult {
	if sub.GPSLatitude == nil || sub.GPSLongitude == nil {
		return domain.ScoreResult{Score: 0, Details: map[string]any{"reason": "no_gps_data"}}
	}
	lat, lon := *sub.GPSLatitude, *sub.GPSLongitude

	clusterRadiusM := cfg.Value("gps_cluster_radius_m", 50)
	clusterMinSamples := int(cfg.Value("gps_cluster_min_samples", 3))
	maxAccuracyM := cfg.Value("gps_max_accuracy_m", 50)
	teleportSpeedKmh := cfg.Value("gps_teleport_speed_kmh", 120)
	duplicateCoordThresholdM := cfg.Value("gps_duplicate_coord_threshold_m", 5)
	weight := cfg.Value("gps_weight", 25)

	var score float64
	flags := []string{}

	points := make([]geoPoint, 0, len(sub.RecentSubmissions)+1)
	for _, s := range sub.RecentSubmissions {
		if s.GPSLatitude != nil && s.GPSLongitude != nil {
			points = append(points, geoPoint{lat: *s.GPSLatitude, lon: *s.GPSLongitude})
		}
	}
	points = append(points, geoPoint{lat: lat, lon: lon})

	clusterCount := 0
	inCluster := false
	if len(points) >= clusterMinSamples {
		labels := dbscan(points, clusterRadiusM, clusterMinSamples)
		seen := make(map[int]struct{})
		for _, l := range labels {
			if l >= 0 {
				seen[l] = struct{}{}
			}
		}
		clusterCount = len(seen)

		// The current submission is the last point appended.
		inCluster = labels[len(labels)-1] >= 0
		if inCluster {
			score += weight * 0.6
			flags = append(flags, "in_spatial_cluster")
		}
	}

	teleportations := detectTeleportation(sub, teleportSpeedKmh)
	if len(teleportations) > 0 {
		score += weight * 0.2
		flags = append(flags, "teleportation_detected")
	}

	duplicateCoords := detectDuplicateCoords(sub, duplicateCoordThresholdM)
	if len(duplicateCoords) > 0 {
		score += weight * 0.2
		flags = append(flags, "duplicate_coordinates")
	}

	score = math.Min(score, weight)

	lowAccuracy := sub.GPSAccuracyM != nil && *sub.GPSAccuracyM > maxAccuracyM
	if lowAccuracy {
		score = score * 0.5
		flags = append(flags, "low_gps_accuracy")
	}

	score = stats.Round2(score)

	details := map[string]any{
		"clusterCount":    clusterCount,
		"inCluster":       inCluster,
		"teleportations":  teleportations,
		"duplicateCoords": duplicateCoords,
		"lowAccuracy":     lowAccuracy,
		"flags":           flags,
		"gpsPointCount":   len(points),
		"thresholds": map[string]any{
			"clusterRadiusM":           clusterRadiusM,
			"clusterMinSamples":        clusterMinSamples,
			"maxAccuracyM":             maxAccuracyM,
			"teleportSpeedKmh":         teleportSpeedKmh,
			"duplicateCoordThresholdM": duplicateCoordThresholdM,
		},
	}
	if sub.GPSAccuracyM != nil {
		details["accuracyM"] = *sub.GPSAccuracyM
	}

	return domain.ScoreResult{Score: score, Details: details}
}

type geoPoint struct {
	lat, lon float64
}

// DBSCAN label values before assignment.
const (
	labelUnvisited = -2
	labelNoise     = -1
)

// dbscan clusters points with Haversine distance. Returns one label per
// point: -1 for noise, 0+ for a cluster index. minSamples counts the
// point itself, so a core point needs minSamples-1 neighbors.
func dbscan(points []geoPoint, epsilonM float64, minSamples int) []int {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = labelUnvisited
	}

	regionQuery := func(idx int) []int {
		var neighbors []int
		for i := 0; i < n; i++ {
			if i == idx {
				continue
			}
			d := stats.Haversine(points[idx].lat, points[idx].lon, points[i].lat, points[i].lon)
			if d <= epsilonM {
				neighbors = append(neighbors, i)
			}
		}
		return neighbors
	}

	clusterID := 0
	for i := 0; i < n; i++ {
		if labels[i] != labelUnvisited {
			continue
		}

		neighbors := regionQuery(i)
		if len(neighbors) < minSamples-1 {
			labels[i] = labelNoise
			continue
		}

		labels[i] = clusterID
		seeds := append([]int(nil), neighbors...)
		inSeeds := make(map[int]struct{}, len(seeds))
		for _, s := range seeds {
			inSeeds[s] = struct{}{}
		}

		for j := 0; j < len(seeds); j++ {
			q := seeds[j]
			if labels[q] == labelNoise {
				labels[q] = clusterID
			}
			if labels[q] != labelUnvisited {
				continue
			}

			labels[q] = clusterID
			qNeighbors := regionQuery(q)
			if len(qNeighbors) >= minSamples-1 {
				for _, nb := range qNeighbors {
					if _, ok := inSeeds[nb]; !ok {
						seeds = append(seeds, nb)
						inSeeds[nb] = struct{}{}
					}
				}
			}
		}

		clusterID++
	}

	return labels
}

// teleportation is one impossible-speed transition between consecutive
// fixes, ordered by submission time.
type teleportation struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	SpeedKmh   float64 `json:"speedKmh"`
	DistanceKm float64 `json:"distanceKm"`
}

func detectTeleportation(sub *domain.SubmissionWithContext, speedThresholdKmh float64) []teleportation {
	type fix struct {
		at       string
		lat, lon float64
		unixMs   int64
	}

	var fixes []fix
	for _, s := range sub.RecentSubmissions {
		if s.GPSLatitude != nil && s.GPSLongitude != nil {
			fixes = append(fixes, fix{
				at:     s.SubmittedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
				lat:    *s.GPSLatitude,
				lon:    *s.GPSLongitude,
				unixMs: s.SubmittedAt.UnixMilli(),
			})
		}
	}
	fixes = append(fixes, fix{
		at:     sub.SubmittedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		lat:    *sub.GPSLatitude,
		lon:    *sub.GPSLongitude,
		unixMs: sub.SubmittedAt.UnixMilli(),
	})

	sort.Slice(fixes, func(i, j int) bool { return fixes[i].unixMs < fixes[j].unixMs })

	var found []teleportation
	for i := 1; i < len(fixes); i++ {
		prev, curr := fixes[i-1], fixes[i]
		distM := stats.Haversine(prev.lat, prev.lon, curr.lat, curr.lon)
		hours := float64(curr.unixMs-prev.unixMs) / 3_600_000
		if hours <= 0 {
			continue
		}
		speedKmh := (distM / 1000) / hours
		if speedKmh > speedThresholdKmh {
			found = append(found, teleportation{
				From:       prev.at,
				To:         curr.at,
				SpeedKmh:   math.Round(speedKmh*10) / 10,
				DistanceKm: math.Round(distM/1000*10) / 10,
			})
		}
	}
	return found
}

// duplicateCoord is a near-identical fix from a different enumerator.
type duplicateCoord struct {
	EnumeratorID   string  `json:"enumeratorId"`
	DistanceMeters float64 `json:"distanceMeters"`
	SubmissionID   string  `json:"submissionId"`
}

func detectDuplicateCoords(sub *domain.SubmissionWithContext, thresholdM float64) []duplicateCoord {
	var found []duplicateCoord
	for _, s := range sub.NearbySubmissions {
		if s.EnumeratorID == sub.EnumeratorID {
			continue
		}
		if s.GPSLatitude == nil || s.GPSLongitude == nil {
			continue
		}
		d := stats.Haversine(*sub.GPSLatitude, *sub.GPSLongitude, *s.GPSLatitude, *s.GPSLongitude)
		if d < thresholdM {
			found = append(found, duplicateCoord{
				EnumeratorID:   s.EnumeratorID,
				DistanceMeters: math.Round(d*10) / 10,
				SubmissionID:   s.ID,
			})
		}
	}
	return found
}
