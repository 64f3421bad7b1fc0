// Package label implements the heuristic that stands in for real incident data.
//
// Changing any constant or the order of adjustments changes the ground truth every
// previously trained artifact was fit against.
package label

import (
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/domain/score"
)

// Heuristic weights.
const (
	BaseRisk          = 20.0
	LateNightBonus    = 25.0
	EveningBonus      = 10.0
	DarknessWeight    = 4.0 // per lighting point below 10
	DistanceWeight    = 3.0 // per km
	IncidentWeight    = 2.0 // per past incident
	DesertedBonus     = 15.0
	DesertedThreshold = 3 // crowd density strictly below this is deserted
	NoiseStdDev       = 5.0
)

// LateNight reports whether hour falls in the 22:00–04:59 window.
func LateNight(hour int) bool { return hour >= 22 || hour <= 4 }

// Evening reports whether hour falls in the 18:00–21:59 window.
func Evening(hour int) bool { return hour >= 18 && hour < 22 }

// PreNoise returns the deterministic part of the label, before noise and clamping.
func PreNoise(v feature.Vector) float64 {
	risk := BaseRisk

	switch {
	case LateNight(v.Hour):
		risk += LateNightBonus
	case Evening(v.Hour):
		risk += EveningBonus
	}

	risk += float64(10-v.LightingScore) * DarknessWeight
	risk += v.PoliceStnDist * DistanceWeight
	risk += float64(v.PastIncidents) * IncidentWeight

	if LateNight(v.Hour) && v.CrowdDensity < DesertedThreshold {
		risk += DesertedBonus
	}
	return risk
}

// Score adds noise to the heuristic, then clamps and rounds once.
func Score(v feature.Vector, noise float64) float64 {
	return score.Normalize(PreNoise(v) + noise)
}
