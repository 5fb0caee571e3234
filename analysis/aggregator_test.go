package analysis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func successOutcome(index, startMs, endMs int, class string, confidence float64) WindowOutcome {
	return WindowOutcome{
		Index:   index,
		StartMs: startMs,
		EndMs:   endMs,
		Success: &WindowSuccess{
			Probabilities:  map[string]float64{class: confidence},
			PredictedClass: class,
			Confidence:     confidence,
		},
	}
}

func TestAggregateCoarseDropsLowConfidence(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	agg := NewAggregator(cfg, nil, "knn_v1", testLogger())

	outcomes := []WindowOutcome{
		successOutcome(0, 0, 3000, "blocks", 0.9),
		successOutcome(1, 1500, 4500, "repetitions", 0.25),
		successOutcome(2, 3000, 6000, "prolongations", 0.31),
	}
	events, errs := agg.Aggregate(context.Background(), nil, outcomes)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events above the confidence floor, got %d", len(events))
	}
	if events[0].Type != "blocks" || events[1].Type != "prolongations" {
		t.Fatalf("unexpected event types: %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].StartMs != 0 || events[0].EndMs != 3000 {
		t.Fatalf("coarse event should span its window, got [%d, %d)", events[0].StartMs, events[0].EndMs)
	}
	if events[0].Source != "cnn_model" || events[0].ModelVersion != "knn_v1" {
		t.Fatalf("unexpected provenance: %s %s", events[0].Source, events[0].ModelVersion)
	}
}

func TestAggregatePartialFailure(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	agg := NewAggregator(cfg, nil, "knn_v1", testLogger())

	outcomes := []WindowOutcome{
		successOutcome(0, 0, 3000, "blocks", 0.7),
		successOutcome(1, 1500, 4500, "blocks", 0.8),
		{
			Index:   2,
			StartMs: 3000,
			EndMs:   6000,
			Failure: &WindowFailure{Stage: "classify", Reason: "model unavailable"},
		},
	}

	events, errs := agg.Aggregate(context.Background(), nil, outcomes)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if !strings.Contains(errs[0], "segment 2") {
		t.Fatalf("error should name the failed window: %q", errs[0])
	}

	summary := ComputeSummary(cfg, outcomes, events)
	if summary.TotalSegments != 3 {
		t.Fatalf("expected 3 total segments, got %d", summary.TotalSegments)
	}
	if summary.SuccessfulPredictions != 2 {
		t.Fatalf("expected 2 successful predictions, got %d", summary.SuccessfulPredictions)
	}
}

func TestSuccessFromVectorPadsShortVector(t *testing.T) {
	t.Parallel()

	classes := []string{"blocks", "prolongations", "repetitions"}
	success := SuccessFromVector(classes, []float64{0.2, 0.7}, 0, testLogger())

	if got := success.Probabilities["repetitions"]; got != 0 {
		t.Fatalf("missing class should default to 0, got %f", got)
	}
	if success.PredictedClass != "prolongations" {
		t.Fatalf("expected prolongations, got %s", success.PredictedClass)
	}
	if success.Confidence != 0.7 {
		t.Fatalf("expected confidence 0.7, got %f", success.Confidence)
	}
}

func TestSuccessFromVectorTieGoesToFirstClass(t *testing.T) {
	t.Parallel()

	classes := []string{"blocks", "prolongations", "repetitions"}
	success := SuccessFromVector(classes, []float64{0.4, 0.4, 0.2}, 0, testLogger())
	if success.PredictedClass != "blocks" {
		t.Fatalf("tie should go to the first class, got %s", success.PredictedClass)
	}
}

func TestDominantTieBreakUsesInsertionOrder(t *testing.T) {
	t.Parallel()

	dist := NewClassDistribution()
	dist.Add("repetitions")
	dist.Add("blocks")
	dist.Add("repetitions")
	dist.Add("blocks")

	if got := dist.Dominant(); got != "repetitions" {
		t.Fatalf("expected first-seen class on a tie, got %s", got)
	}
	if dist.Total() != 4 {
		t.Fatalf("expected 4 counted events, got %d", dist.Total())
	}
}

func TestClassDistributionMarshalPreservesOrder(t *testing.T) {
	t.Parallel()

	dist := NewClassDistribution()
	dist.Add("repetitions")
	dist.Add("blocks")
	dist.Add("repetitions")

	data, err := json.Marshal(dist)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"repetitions":2,"blocks":1}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}
}

func TestDominantEmptyDistribution(t *testing.T) {
	t.Parallel()

	if got := NewClassDistribution().Dominant(); got != "none" {
		t.Fatalf("expected none, got %s", got)
	}
}

func TestSeverityTiers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		confidence float64
		want       string
	}{
		{0.95, SeverityHigh},
		{0.8, SeverityHigh},
		{0.79, SeverityMedium},
		{0.6, SeverityMedium},
		{0.5, SeverityLow},
		{0.4, SeverityLow},
		{0.39, SeverityVeryLow},
		{0.0, SeverityVeryLow},
	}
	for _, tc := range cases {
		if got := SeverityForConfidence(tc.confidence); got != tc.want {
			t.Errorf("confidence %.2f: got %s, want %s", tc.confidence, got, tc.want)
		}
	}
}

func TestAggregatePreciseUsesLocalizer(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = ModePrecise

	loc := localizerFunc(func(ctx context.Context, samples []float64, rate int, probs map[string]float64) ([]SubEvent, error) {
		return []SubEvent{
			{Type: "repetitions", Confidence: 0.85, StartSec: 0.5, EndSec: 1.2},
		}, nil
	})
	agg := NewAggregator(cfg, loc, "knn_v1", testLogger())

	windows := []Window{{Index: 0, StartMs: 1500, EndMs: 4500, Samples: make([]float64, 100)}}
	outcomes := []WindowOutcome{successOutcome(0, 1500, 4500, "repetitions", 0.85)}

	events, errs := agg.Aggregate(context.Background(), windows, outcomes)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.StartMs != 2000 || ev.EndMs != 2700 {
		t.Fatalf("sub-event should map onto the recording timeline, got [%d, %d)", ev.StartMs, ev.EndMs)
	}
	if ev.Source != "cnn_model_precise" || ev.ModelVersion != "knn_v1_precise" {
		t.Fatalf("unexpected provenance: %s %s", ev.Source, ev.ModelVersion)
	}
	if ev.Severity != SeverityHigh {
		t.Fatalf("expected severity derived from confidence, got %s", ev.Severity)
	}
}

type localizerFunc func(context.Context, []float64, int, map[string]float64) ([]SubEvent, error)

func (f localizerFunc) Localize(ctx context.Context, samples []float64, rate int, probs map[string]float64) ([]SubEvent, error) {
	return f(ctx, samples, rate, probs)
}
