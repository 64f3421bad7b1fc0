package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blockrisk/internal/domain"
	"github.com/kailas-cloud/blockrisk/internal/logger"
	healthuc "github.com/kailas-cloud/blockrisk/internal/usecase/health"
	predictuc "github.com/kailas-cloud/blockrisk/internal/usecase/predict"
)

const (
	statusMessage   = "Block risk prediction API"
	maxPredictBytes = 1 << 20
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the prediction API.
type Server struct {
	predict       *predictuc.Service
	health        *healthuc.Service
	prefix        string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. prefix is the path the routes are mounted
// under and only affects the endpoint list reported by Status.
func NewServer(
	predict *predictuc.Service,
	health *healthuc.Service,
	prefix string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		predict: predict,
		health:  health,
		prefix:  prefix,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrServiceUnavailable, http.StatusServiceUnavailable, ErrorCodeModelNotLoaded),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, ErrorCodeInvalidInput),
	}
	return s
}

// Routes returns the API router. The caller mounts it under the route prefix.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.Status)
	r.Get("/status", s.Status)
	r.Get("/health", s.HealthCheck)
	r.Post("/predict", s.Predict)
	r.Get("/metrics", s.Metrics)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeBadRequest, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})
	return r
}

// Status handles GET / and GET /status.
func (s *Server) Status(w http.ResponseWriter, _ *http.Request) {
	st := s.predict.Status()
	writeJSON(w, http.StatusOK, StatusResponse{
		Message:     statusMessage,
		Endpoints:   s.endpoints(),
		ModelLoaded: st.Loaded,
		ModelPath:   st.ArtifactPath,
		State:       string(st.State),
		Model:       modelInfo(st.Artifact),
	})
}

// HealthCheck handles GET /health. A missing model does not fail liveness.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      string(report.Status),
		ModelLoaded: report.ModelLoaded,
		Checks:      checks,
	})
}

// Predict handles POST /predict.
func (s *Server) Predict(w http.ResponseWriter, r *http.Request) {
	if err := s.predict.CheckReady(); err != nil {
		s.handleDomainError(w, err)
		return
	}

	raw, err := decodeObject(http.MaxBytesReader(w, r.Body, maxPredictBytes))
	if err != nil {
		logger.FromContext(r.Context()).Debug("rejected predict body", zap.Error(err))
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}

	p, err := s.predict.Predict(r.Context(), raw)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PredictResponse{
		RiskScore:    p.RiskScore,
		Features:     p.Features,
		ModelVersion: p.ModelVersion,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) endpoints() []string {
	paths := []string{"/status", "/health", "/predict", "/metrics"}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = s.prefix + p
	}
	return out
}

// decodeObject reads exactly one JSON object. Numbers stay json.Number so integer
// fields are not rounded through float64 before resolution.
func decodeObject(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is required")
		}
		return nil, errors.New("request body is not valid JSON")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("request body must be a JSON object")
	}
	if dec.More() {
		return nil, errors.New("request body must contain a single JSON object")
	}
	return obj, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// safeDomainMessage returns a client-facing message without exposing internals. The
// artifact path and the offending input field are the only details passed through.
func safeDomainMessage(err error) string {
	var ue *domain.UnavailableError
	if errors.As(err, &ue) {
		return fmt.Sprintf("Model not loaded. Path checked: %s", ue.ArtifactPath)
	}
	var ie *domain.InvalidInputError
	if errors.As(err, &ie) {
		return ie.Error()
	}
	for _, s := range []error{domain.ErrServiceUnavailable, domain.ErrInvalidInput} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
