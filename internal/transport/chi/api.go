package chi

import (
	"time"

	"github.com/kailas-cloud/blockrisk/internal/domain/artifact"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
)

// ErrorCode is the machine-readable half of an error body.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	ErrorCodeModelNotLoaded ErrorCode = "model_not_loaded"
	ErrorCodeInvalidInput   ErrorCode = "invalid_input"
	ErrorCodeBadRequest     ErrorCode = "bad_request"
	ErrorCodeUnauthorized   ErrorCode = "unauthorized"
	ErrorCodeInternalError  ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Message     string     `json:"message"`
	Endpoints   []string   `json:"endpoints"`
	ModelLoaded bool       `json:"model_loaded"`
	ModelPath   string     `json:"model_path"`
	State       string     `json:"state"`
	Model       *ModelInfo `json:"model,omitempty"`
}

// ModelInfo describes the loaded artifact.
type ModelInfo struct {
	RunID       string             `json:"run_id"`
	TrainedAt   time.Time          `json:"trained_at"`
	Trees       int                `json:"trees"`
	Metrics     artifact.Metrics   `json:"metrics"`
	Importances map[string]float64 `json:"importances"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string            `json:"status"`
	ModelLoaded bool              `json:"model_loaded"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	RiskScore    float64        `json:"risk_score"`
	Features     feature.Vector `json:"features"`
	ModelVersion string         `json:"model_version,omitempty"`
}

func modelInfo(a *artifact.Artifact) *ModelInfo {
	if a == nil {
		return nil
	}
	info := &ModelInfo{
		RunID:       a.RunID,
		TrainedAt:   a.TrainedAt,
		Metrics:     a.Metrics,
		Importances: a.Importances(),
	}
	if a.Model != nil {
		info.Trees = len(a.Model.Trees)
	}
	return info
}
