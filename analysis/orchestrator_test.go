package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"gonum.org/v1/gonum/mat"

	"stutter-detection/wav"
)

// fakeClassifier returns scripted probabilities and can fail on chosen calls.
type fakeClassifier struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
	probs  []float64
}

func (f *fakeClassifier) Classify(spec *mat.Dense) ([]float64, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()

	if f.failOn[call] {
		return nil, fmt.Errorf("%w: scripted failure", ErrClassifier)
	}
	return append([]float64(nil), f.probs...), nil
}

func (f *fakeClassifier) Classes() []string    { return append([]string(nil), DefaultClasses...) }
func (f *fakeClassifier) ModelVersion() string { return "fake_v1" }

func speechLikeWaveform(ms int) *wav.Waveform {
	samples := make([]float64, ms*testRate/1000)
	for i := range samples {
		samples[i] = 0.3 * math.Sin(2*math.Pi*180*float64(i)/float64(testRate))
	}
	return &wav.Waveform{Samples: samples, SampleRate: testRate}
}

func newTestService(t *testing.T, cfg Config, classifier Classifier) *Service {
	t.Helper()
	service, err := NewService(cfg, classifier, nil, "model.json", testLogger())
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return service
}

func TestAnalyzeWaveformFullRun(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{probs: []float64{0.1, 0.2, 0.7}}
	service := newTestService(t, DefaultConfig(), classifier)

	report, err := service.AnalyzeWaveform(context.Background(), speechLikeWaveform(7000), "test-clip")
	if err != nil {
		t.Fatalf("AnalyzeWaveform returned error: %v", err)
	}

	if report.Summary.TotalSegments != 3 {
		t.Fatalf("expected 3 segments, got %d", report.Summary.TotalSegments)
	}
	if report.Summary.SuccessfulPredictions != 3 {
		t.Fatalf("expected 3 successful predictions, got %d", report.Summary.SuccessfulPredictions)
	}
	if len(report.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(report.Events))
	}
	for _, ev := range report.Events {
		if ev.Type != "repetitions" {
			t.Fatalf("expected repetitions events, got %s", ev.Type)
		}
		if ev.ModelVersion != "fake_v1" {
			t.Fatalf("unexpected model version %s", ev.ModelVersion)
		}
		if ev.Probability != 70 {
			t.Fatalf("expected probability 70, got %d", ev.Probability)
		}
	}
	if report.Summary.DominantType != "repetitions" {
		t.Fatalf("expected dominant repetitions, got %s", report.Summary.DominantType)
	}
	if !report.Summary.HasEvents {
		t.Fatal("expected hasEvents to be set")
	}
	if len(report.ProcessingInfo.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", report.ProcessingInfo.Errors)
	}
	if report.ProcessingInfo.InputFile != "test-clip" {
		t.Fatalf("unexpected input label %s", report.ProcessingInfo.InputFile)
	}
}

func TestAnalyzeWaveformPartialFailure(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{
		probs:  []float64{0.7, 0.2, 0.1},
		failOn: map[int]bool{2: true},
	}
	service := newTestService(t, DefaultConfig(), classifier)

	report, err := service.AnalyzeWaveform(context.Background(), speechLikeWaveform(7000), "clip")
	if err != nil {
		t.Fatalf("skip policy should not fail the run: %v", err)
	}

	if report.Summary.TotalSegments != 3 {
		t.Fatalf("expected 3 total segments, got %d", report.Summary.TotalSegments)
	}
	if report.Summary.SuccessfulPredictions != 2 {
		t.Fatalf("expected 2 successful predictions, got %d", report.Summary.SuccessfulPredictions)
	}
	if len(report.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(report.Events))
	}
	if len(report.ProcessingInfo.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %v", report.ProcessingInfo.Errors)
	}
}

func TestAnalyzeWaveformAbortPolicy(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.OnWindowError = AbortRun
	classifier := &fakeClassifier{
		probs:  []float64{0.7, 0.2, 0.1},
		failOn: map[int]bool{0: true},
	}
	service := newTestService(t, cfg, classifier)

	report, err := service.AnalyzeWaveform(context.Background(), speechLikeWaveform(7000), "clip")
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults after aborting on the first window, got %v", err)
	}
	if report.Summary.SuccessfulPredictions != 0 {
		t.Fatalf("expected 0 successful predictions, got %d", report.Summary.SuccessfulPredictions)
	}
	// one failure plus two unprocessed markers plus the run error
	if len(report.ProcessingInfo.Errors) != 4 {
		t.Fatalf("expected 4 error entries, got %v", report.ProcessingInfo.Errors)
	}
}

func TestAnalyzeWaveformNoResults(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{
		probs:  []float64{0.7, 0.2, 0.1},
		failOn: map[int]bool{0: true, 1: true, 2: true},
	}
	service := newTestService(t, DefaultConfig(), classifier)

	report, err := service.AnalyzeWaveform(context.Background(), speechLikeWaveform(7000), "clip")
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
	if report == nil {
		t.Fatal("report should still be returned")
	}
	if report.Summary.Error == "" {
		t.Fatal("summary should carry the run error")
	}
	if len(report.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(report.Events))
	}
}

func TestAnalyzeWaveformCancellation(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{probs: []float64{0.7, 0.2, 0.1}}
	service := newTestService(t, DefaultConfig(), classifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := service.AnalyzeWaveform(ctx, speechLikeWaveform(7000), "clip")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if report == nil {
		t.Fatal("cancelled run should still produce a report")
	}
	if report.Summary.TotalSegments != 3 {
		t.Fatalf("counts should stay consistent, got %d segments", report.Summary.TotalSegments)
	}
}

func TestAnalyzeWaveformConcurrentMatchesSequential(t *testing.T) {
	t.Parallel()

	sequential := newTestService(t, DefaultConfig(), &fakeClassifier{probs: []float64{0.1, 0.8, 0.1}})
	seqReport, err := sequential.AnalyzeWaveform(context.Background(), speechLikeWaveform(10000), "clip")
	if err != nil {
		t.Fatalf("sequential run failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Concurrency = 4
	concurrent := newTestService(t, cfg, &fakeClassifier{probs: []float64{0.1, 0.8, 0.1}})
	conReport, err := concurrent.AnalyzeWaveform(context.Background(), speechLikeWaveform(10000), "clip")
	if err != nil {
		t.Fatalf("concurrent run failed: %v", err)
	}

	if len(seqReport.Events) != len(conReport.Events) {
		t.Fatalf("event counts differ: %d vs %d", len(seqReport.Events), len(conReport.Events))
	}
	for i := range seqReport.Events {
		if seqReport.Events[i].T0 != conReport.Events[i].T0 {
			t.Fatalf("event %d start differs: %d vs %d", i, seqReport.Events[i].T0, conReport.Events[i].T0)
		}
	}
}

func TestAnalyzeFileMissingInput(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{probs: []float64{0.7, 0.2, 0.1}}
	service := newTestService(t, DefaultConfig(), classifier)

	path := filepath.Join(t.TempDir(), "missing.wav")
	report, err := service.AnalyzeFile(context.Background(), path)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if report == nil {
		t.Fatal("expected structured report for missing input")
	}
	if len(report.ProcessingInfo.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %v", report.ProcessingInfo.Errors)
	}
	if report.Summary.Error == "" {
		t.Fatal("summary should flag the failure")
	}
}

func TestNewServicePreciseRequiresLocalizer(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = ModePrecise
	_, err := NewService(cfg, &fakeClassifier{probs: []float64{1, 0, 0}}, nil, "model.json", testLogger())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
