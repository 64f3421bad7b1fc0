package blockrisk

import (
	"time"

	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
)

// Features is one set of model inputs.
type Features struct {
	Hour          int     `json:"hour"`            // 0..23
	LightingScore int     `json:"lighting_score"`  // 0..10, higher is brighter
	PoliceStnDist float64 `json:"police_stn_dist"` // km to the nearest police station
	PastIncidents int     `json:"past_incidents"`  // recorded incidents on the block
	CrowdDensity  int     `json:"crowd_density"`   // 0..10
}

// DefaultFeatures returns the inputs used for fields a caller leaves out.
func DefaultFeatures() Features {
	return featuresFromVector(feature.Defaults())
}

// Result is a risk score plus the inputs it was computed from.
type Result struct {
	RiskScore    float64  `json:"risk_score"` // 0..100, two decimals
	Features     Features `json:"features"`
	ModelVersion string   `json:"model_version"`
}

// Status describes the loaded model.
type Status struct {
	Loaded       bool
	State        string
	ArtifactPath string
	RunID        string
	TrainedAt    time.Time
	MSE          float64
	R2           float64
	Importances  map[string]float64
}

func (f Features) vector() feature.Vector {
	return feature.Vector{
		Hour:          f.Hour,
		LightingScore: f.LightingScore,
		PoliceStnDist: f.PoliceStnDist,
		PastIncidents: f.PastIncidents,
		CrowdDensity:  f.CrowdDensity,
	}
}

func featuresFromVector(v feature.Vector) Features {
	return Features{
		Hour:          v.Hour,
		LightingScore: v.LightingScore,
		PoliceStnDist: v.PoliceStnDist,
		PastIncidents: v.PastIncidents,
		CrowdDensity:  v.CrowdDensity,
	}
}
