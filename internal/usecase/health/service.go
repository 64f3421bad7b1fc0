package health

import "context"

// Status represents the aggregated liveness status.
type Status string

// Healthy is the only liveness status. Model and cache state are reported in
// Report.ModelLoaded and Report.Checks.
const Healthy Status = "healthy"

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status      Status
	ModelLoaded bool
	Checks      map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	model ModelChecker
	cache CachePinger
}

// New creates a Service. cache can be nil.
func New(model ModelChecker, cache CachePinger) *Service {
	return &Service{model: model, cache: cache}
}

// Check never fails: it always reports liveness plus per-component results.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	loaded := s.model.ModelLoaded()
	if loaded {
		checks["model"] = CheckOK
	} else {
		checks["model"] = CheckError
	}

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks["cache"] = CheckError
		} else {
			checks["cache"] = CheckOK
		}
	}

	return Report{Status: Healthy, ModelLoaded: loaded, Checks: checks}
}
