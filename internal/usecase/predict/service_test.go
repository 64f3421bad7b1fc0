package predict

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blockrisk/internal/domain"
	"github.com/kailas-cloud/blockrisk/internal/domain/artifact"
	"github.com/kailas-cloud/blockrisk/internal/domain/feature"
	"github.com/kailas-cloud/blockrisk/internal/forest"
	"github.com/kailas-cloud/blockrisk/internal/metrics"
)

// --- Mocks ---

type mockLoader struct {
	artifact *artifact.Artifact
	err      error
	calls    int
}

func (m *mockLoader) Load() (*artifact.Artifact, error) {
	m.calls++
	return m.artifact, m.err
}

func (m *mockLoader) Path() string { return "/models/model.json.gz" }

type cacheKey struct {
	version string
	v       feature.Vector
}

type mockCache struct {
	mu     sync.Mutex
	scores map[cacheKey]float64
	sets   int
}

func (m *mockCache) Get(_ context.Context, version string, v feature.Vector) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scores[cacheKey{version, v}]
	return s, ok
}

func (m *mockCache) Set(_ context.Context, version string, v feature.Vector, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scores == nil {
		m.scores = make(map[cacheKey]float64)
	}
	m.scores[cacheKey{version, v}] = score
	m.sets++
}

// hourModel predicts low before the threshold hour and high after it.
func hourModel(threshold, low, high float64) *artifact.Artifact {
	return &artifact.Artifact{
		FormatVersion: artifact.FormatVersion,
		RunID:         "run-1",
		Schema:        feature.Names(),
		Target:        feature.Target,
		Model: &forest.Forest{
			Features: feature.Names(),
			Trees: []forest.Tree{{
				Feature:   []int{0, -1, -1},
				Threshold: []float64{threshold, 0, 0},
				Left:      []int32{1, -1, -1},
				Right:     []int32{2, -1, -1},
				Value:     []float64{0, low, high},
			}},
		},
	}
}

func readyService(t *testing.T, a *artifact.Artifact, opts Options) *Service {
	t.Helper()
	svc := New(&mockLoader{artifact: a}, opts, zap.NewNop())
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return svc
}

// --- Tests ---

func TestPredict_BeforeLoad(t *testing.T) {
	svc := New(&mockLoader{artifact: hourModel(12, 10, 90)}, Options{}, zap.NewNop())

	if st := svc.Status(); st.State != Unstarted || st.Loaded {
		t.Fatalf("expected unstarted, got %+v", st)
	}
	_, err := svc.Predict(context.Background(), map[string]any{})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "/models/model.json.gz") {
		t.Errorf("expected artifact path in error, got %q", err.Error())
	}
}

func TestLoad_FailureIsSticky(t *testing.T) {
	loader := &mockLoader{err: domain.ErrArtifactNotFound}
	svc := New(loader, Options{}, zap.NewNop())

	if err := svc.Load(context.Background()); !errors.Is(err, domain.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if err := svc.Load(context.Background()); !errors.Is(err, domain.ErrArtifactNotFound) {
		t.Fatalf("second Load: expected the first outcome, got %v", err)
	}
	if loader.calls != 1 {
		t.Errorf("expected loader to be called once, got %d", loader.calls)
	}

	for range 3 {
		st := svc.Status()
		if st.State != LoadFailed || st.Loaded || st.Artifact != nil {
			t.Fatalf("unexpected status %+v", st)
		}
	}
	if testutil.ToFloat64(metrics.ModelLoaded) != 0 {
		t.Error("expected model_loaded gauge 0")
	}

	_, err := svc.Predict(context.Background(), map[string]any{"hour": 3})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	var ue *domain.UnavailableError
	if !errors.As(err, &ue) || ue.ArtifactPath != "/models/model.json.gz" || !errors.Is(ue.Cause, domain.ErrArtifactNotFound) {
		t.Errorf("unexpected unavailable error: %#v", err)
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	loader := &mockLoader{artifact: hourModel(12, 10, 90)}
	svc := New(loader, Options{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if loader.calls != 0 || svc.Status().State != LoadFailed {
		t.Error("expected no load attempt and a failed state")
	}
}

func TestLoad_Ready(t *testing.T) {
	a := hourModel(12, 10, 90)
	svc := readyService(t, a, Options{})

	st := svc.Status()
	if st.State != Ready || !st.Loaded || st.Artifact != a || st.LoadErr != nil {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.ArtifactPath != "/models/model.json.gz" {
		t.Errorf("unexpected path %q", st.ArtifactPath)
	}
	if testutil.ToFloat64(metrics.ModelLoaded) != 1 {
		t.Error("expected model_loaded gauge 1")
	}
}

func TestPredict(t *testing.T) {
	svc := readyService(t, hourModel(12, 10, 90), Options{})

	tests := []struct {
		name  string
		raw   map[string]any
		want  float64
		hour  int
		light int
	}{
		{"empty uses defaults", map[string]any{}, 10, 12, 5},
		{"late hour", map[string]any{"hour": 23}, 90, 23, 5},
		{"partial", map[string]any{"lighting_score": 2.0}, 10, 12, 2},
		{"numeric string", map[string]any{"hour": "13"}, 90, 13, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Predict(context.Background(), tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.RiskScore != tt.want {
				t.Errorf("score = %f, want %f", got.RiskScore, tt.want)
			}
			if got.Features.Hour != tt.hour || got.Features.LightingScore != tt.light {
				t.Errorf("unexpected resolved features %+v", got.Features)
			}
			if got.ModelVersion != "run-1" || got.Cached {
				t.Errorf("unexpected metadata %+v", got)
			}
		})
	}
}

func TestPredict_ClampsAndRounds(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"above range", 130, 100},
		{"below range", -12.5, 0},
		{"rounded", 33.33333, 33.33},
		{"round half up", 47.125, 47.13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := readyService(t, hourModel(12, tt.value, tt.value), Options{})
			got, err := svc.Predict(context.Background(), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.RiskScore != tt.want {
				t.Errorf("score = %v, want %v", got.RiskScore, tt.want)
			}
		})
	}
}

func TestPredict_InvalidInput(t *testing.T) {
	svc := readyService(t, hourModel(12, 10, 90), Options{})
	before := testutil.ToFloat64(metrics.PredictionsTotal.WithLabelValues(outcomeInvalid))

	_, err := svc.Predict(context.Background(), map[string]any{"hour": "late"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	var ie *domain.InvalidInputError
	if !errors.As(err, &ie) || ie.Field != "hour" {
		t.Errorf("expected field hour, got %#v", err)
	}
	if got := testutil.ToFloat64(metrics.PredictionsTotal.WithLabelValues(outcomeInvalid)); got != before+1 {
		t.Errorf("invalid outcome counter = %f, want %f", got, before+1)
	}
}

func TestPredict_OutOfRange(t *testing.T) {
	raw := map[string]any{"hour": 30, "crowd_density": -1}

	t.Run("passes through by default", func(t *testing.T) {
		before := testutil.ToFloat64(metrics.InputOutOfRangeTotal.WithLabelValues("hour"))
		svc := readyService(t, hourModel(12, 10, 90), Options{})
		got, err := svc.Predict(context.Background(), raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.RiskScore != 90 || got.Features.Hour != 30 {
			t.Errorf("unexpected prediction %+v", got)
		}
		if after := testutil.ToFloat64(metrics.InputOutOfRangeTotal.WithLabelValues("hour")); after != before+1 {
			t.Errorf("out-of-range counter = %f, want %f", after, before+1)
		}
	})

	t.Run("rejected when configured", func(t *testing.T) {
		svc := readyService(t, hourModel(12, 10, 90), Options{RejectOutOfRange: true})
		_, err := svc.Predict(context.Background(), raw)
		var ie *domain.InvalidInputError
		if !errors.As(err, &ie) || ie.Field != "hour" {
			t.Fatalf("expected invalid hour, got %v", err)
		}
	})

	t.Run("unbounded fields accept large values", func(t *testing.T) {
		svc := readyService(t, hourModel(12, 10, 90), Options{RejectOutOfRange: true})
		if _, err := svc.Predict(context.Background(), map[string]any{"past_incidents": 5000}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestPredict_Cache(t *testing.T) {
	cache := &mockCache{}
	svc := readyService(t, hourModel(12, 10, 90), Options{Cache: cache})
	raw := map[string]any{"hour": 20}

	first, err := svc.Predict(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Cached || cache.sets != 1 {
		t.Fatalf("expected a miss and one cache write, got %+v sets=%d", first, cache.sets)
	}

	second, err := svc.Predict(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Cached || second.RiskScore != first.RiskScore || cache.sets != 1 {
		t.Errorf("expected a hit with the same score, got %+v sets=%d", second, cache.sets)
	}
}

func TestPredictVector(t *testing.T) {
	svc := readyService(t, hourModel(12, 10, 90), Options{})
	got, err := svc.PredictVector(context.Background(), feature.Vector{Hour: 1, LightingScore: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RiskScore != 10 {
		t.Errorf("score = %f, want 10", got.RiskScore)
	}
}

func TestPredict_Concurrent(t *testing.T) {
	svc := readyService(t, hourModel(12, 10, 90), Options{Cache: &mockCache{}})

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Predict(context.Background(), map[string]any{"hour": i % 24})
			if err != nil {
				errs <- err
				return
			}
			want := 10.0
			if i%24 > 12 {
				want = 90
			}
			if got.RiskScore != want {
				errs <- errors.New("unexpected score")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
