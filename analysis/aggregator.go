package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

// WindowSuccess carries one window's prediction.
type WindowSuccess struct {
	Probabilities  map[string]float64
	PredictedClass string
	Confidence     float64
}

// WindowFailure records why a window produced no prediction.
type WindowFailure struct {
	Stage  string
	Reason string
}

// WindowOutcome is the per-window result. Exactly one of Success and Failure
// is set.
type WindowOutcome struct {
	Index   int
	StartMs int
	EndMs   int
	Success *WindowSuccess
	Failure *WindowFailure
}

// SuccessFromVector aligns a raw probability vector with the class list and
// picks the predicted class. A short vector is padded with zeros so every
// class has an entry; ties on the maximum go to the class listed first.
func SuccessFromVector(classes []string, probs []float64, windowIndex int, logger *slog.Logger) *WindowSuccess {
	if len(probs) != len(classes) {
		logger.Warn("probability vector length mismatch, padding with zeros",
			"window", windowIndex,
			"got", len(probs),
			"expected", len(classes))
		padded := make([]float64, len(classes))
		copy(padded, probs)
		probs = padded
	}

	byClass := make(map[string]float64, len(classes))
	best := 0
	for i, class := range classes {
		byClass[class] = probs[i]
		if probs[i] > probs[best] {
			best = i
		}
	}

	return &WindowSuccess{
		Probabilities:  byClass,
		PredictedClass: classes[best],
		Confidence:     probs[best],
	}
}

// Event is one detection on the recording timeline, before wire formatting.
type Event struct {
	Type         string
	Confidence   float64
	StartMs      int
	EndMs        int
	DurationSec  float64
	Severity     string
	Source       string
	ModelVersion string
}

// Aggregator fuses per-window outcomes into a timeline of events.
type Aggregator struct {
	cfg          Config
	localizer    Localizer
	modelVersion string
	logger       *slog.Logger
}

func NewAggregator(cfg Config, localizer Localizer, modelVersion string, logger *slog.Logger) *Aggregator {
	return &Aggregator{cfg: cfg, localizer: localizer, modelVersion: modelVersion, logger: logger}
}

// Aggregate converts window outcomes into events. Failed windows contribute
// error strings naming the window, never events. Coarse mode emits one event
// per confident window; precise mode delegates each confident window to the
// localizer and maps sub-event times onto the recording timeline.
func (a *Aggregator) Aggregate(ctx context.Context, windows []Window, outcomes []WindowOutcome) ([]Event, []string) {
	var events []Event
	var errs []string

	for _, outcome := range outcomes {
		if outcome.Failure != nil {
			errs = append(errs, fmt.Sprintf("segment %d: %s: %s",
				outcome.Index, outcome.Failure.Stage, outcome.Failure.Reason))
			continue
		}
		if outcome.Success == nil {
			continue
		}

		switch a.cfg.Mode {
		case ModePrecise:
			subEvents, err := a.localizeWindow(ctx, windows, outcome)
			if err != nil {
				a.logger.Warn("localization failed for window",
					"window", outcome.Index, slog.Any("error", err))
				errs = append(errs, fmt.Sprintf("segment %d: localize: %v", outcome.Index, err))
				continue
			}
			events = append(events, subEvents...)
		default:
			if outcome.Success.Confidence < a.cfg.MinEventConfidence {
				continue
			}
			events = append(events, Event{
				Type:         outcome.Success.PredictedClass,
				Confidence:   outcome.Success.Confidence,
				StartMs:      outcome.StartMs,
				EndMs:        outcome.EndMs,
				Severity:     SeverityForConfidence(outcome.Success.Confidence),
				Source:       "cnn_model",
				ModelVersion: a.modelVersion,
			})
		}
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].StartMs < events[j].StartMs })
	return events, errs
}

func (a *Aggregator) localizeWindow(ctx context.Context, windows []Window, outcome WindowOutcome) ([]Event, error) {
	if a.localizer == nil {
		return nil, fmt.Errorf("%w: no localizer configured", ErrAggregation)
	}
	if outcome.Index < 0 || outcome.Index >= len(windows) {
		return nil, fmt.Errorf("%w: outcome references unknown window %d", ErrAggregation, outcome.Index)
	}
	window := windows[outcome.Index]

	subEvents, err := a.localizer.Localize(ctx, window.Samples, a.cfg.AnalysisRate, outcome.Success.Probabilities)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(subEvents))
	for _, sub := range subEvents {
		severity := sub.Severity
		if severity == "" {
			severity = SeverityForConfidence(sub.Confidence)
		}
		events = append(events, Event{
			Type:         sub.Type,
			Confidence:   sub.Confidence,
			StartMs:      window.StartMs + int(sub.StartSec*1000),
			EndMs:        window.StartMs + int(sub.EndSec*1000),
			DurationSec:  sub.Duration(),
			Severity:     severity,
			Source:       "cnn_model_precise",
			ModelVersion: a.modelVersion + "_precise",
		})
	}
	return events, nil
}

// ClassDistribution counts events per class while preserving first-insertion
// order, which makes dominant-class tie-breaks deterministic.
type ClassDistribution struct {
	order  []string
	counts map[string]int
}

func NewClassDistribution() *ClassDistribution {
	return &ClassDistribution{counts: make(map[string]int)}
}

func (d *ClassDistribution) Add(class string) {
	if _, ok := d.counts[class]; !ok {
		d.order = append(d.order, class)
	}
	d.counts[class]++
}

func (d *ClassDistribution) Count(class string) int { return d.counts[class] }

func (d *ClassDistribution) Total() int {
	total := 0
	for _, c := range d.counts {
		total += c
	}
	return total
}

// Dominant returns the most frequent class; on equal counts the class seen
// first wins. Returns "none" for an empty distribution.
func (d *ClassDistribution) Dominant() string {
	if len(d.order) == 0 {
		return "none"
	}
	best := d.order[0]
	for _, class := range d.order[1:] {
		if d.counts[class] > d.counts[best] {
			best = class
		}
	}
	return best
}

// MarshalJSON emits the counts as an object in insertion order.
func (d *ClassDistribution) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, class := range d.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(class)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", d.counts[class])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
