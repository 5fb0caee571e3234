package analysis

import (
	"fmt"
	"time"
)

// ReportEvent is the wire form of one detection. Times are milliseconds on
// the recording timeline; probability is the confidence as a truncated
// percentage.
type ReportEvent struct {
	Type         string  `json:"type"`
	Confidence   float64 `json:"confidence"`
	Probability  int     `json:"probability"`
	Seconds      int     `json:"seconds"`
	T0           int     `json:"t0"`
	T1           int     `json:"t1"`
	Source       string  `json:"source"`
	ModelVersion string  `json:"model_version"`
	Duration     float64 `json:"duration,omitempty"`
	Severity     string  `json:"severity,omitempty"`
}

// ProcessingDetails summarizes the run parameters for the report reader.
type ProcessingDetails struct {
	SegmentsAnalyzed int    `json:"segmentsAnalyzed"`
	EventsDetected   int    `json:"eventsDetected"`
	SegmentDuration  string `json:"segmentDuration"`
	OverlapRatio     string `json:"overlapRatio"`
	ModelType        string `json:"modelType"`
}

// Summary is the aggregate view of a run.
type Summary struct {
	SegmentCount          int                `json:"segmentCount"`
	TotalSegments         int                `json:"totalSegments"`
	SuccessfulPredictions int                `json:"successfulPredictions"`
	AverageConfidence     float64            `json:"averageConfidence"`
	DominantType          string             `json:"dominantType"`
	ClassDistribution     *ClassDistribution `json:"classDistribution"`
	HasEvents             bool               `json:"hasEvents"`
	ProcessingDetails     ProcessingDetails  `json:"processingDetails"`
	Error                 string             `json:"error,omitempty"`
}

// ProcessingInfo carries run provenance and the accumulated error strings.
type ProcessingInfo struct {
	ModelPath      string   `json:"model_path"`
	InputFile      string   `json:"input_file"`
	ProcessingTime string   `json:"processing_time"`
	Errors         []string `json:"errors"`
}

// Report is the full analysis output.
type Report struct {
	Events         []ReportEvent  `json:"events"`
	Summary        Summary        `json:"summary"`
	ProcessingInfo ProcessingInfo `json:"processing_info"`
}

// formatEvents converts timeline events into their wire form.
func formatEvents(events []Event) []ReportEvent {
	out := make([]ReportEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, ReportEvent{
			Type:         ev.Type,
			Confidence:   ev.Confidence,
			Probability:  int(ev.Confidence * 100),
			Seconds:      ev.StartMs / 1000,
			T0:           ev.StartMs,
			T1:           ev.EndMs,
			Source:       ev.Source,
			ModelVersion: ev.ModelVersion,
			Duration:     ev.DurationSec,
			Severity:     ev.Severity,
		})
	}
	return out
}

// ComputeSummary derives the aggregate view from window outcomes and the
// emitted events.
func ComputeSummary(cfg Config, outcomes []WindowOutcome, events []Event) Summary {
	successful := 0
	for _, outcome := range outcomes {
		if outcome.Success != nil {
			successful++
		}
	}

	distribution := NewClassDistribution()
	var confidenceSum float64
	for _, ev := range events {
		distribution.Add(ev.Type)
		confidenceSum += ev.Confidence
	}

	avgConfidence := 0.0
	if len(events) > 0 {
		avgConfidence = confidenceSum / float64(len(events))
	}

	segmentCount := len(events)
	if cfg.Mode == ModePrecise {
		segmentCount = len(outcomes)
	}

	return Summary{
		SegmentCount:          segmentCount,
		TotalSegments:         len(outcomes),
		SuccessfulPredictions: successful,
		AverageConfidence:     avgConfidence,
		DominantType:          distribution.Dominant(),
		ClassDistribution:     distribution,
		HasEvents:             len(events) > 0,
		ProcessingDetails: ProcessingDetails{
			SegmentsAnalyzed: len(outcomes),
			EventsDetected:   len(events),
			SegmentDuration:  fmt.Sprintf("%.1fs", cfg.SegmentDuration),
			OverlapRatio:     fmt.Sprintf("%.0f%%", cfg.OverlapRatio*100),
			ModelType:        string(cfg.Mode),
		},
	}
}

// emptySummary returns a zeroed summary for runs aborted before aggregation.
func emptySummary(cfg Config, reason string) Summary {
	return Summary{
		DominantType:      "none",
		ClassDistribution: NewClassDistribution(),
		ProcessingDetails: ProcessingDetails{
			SegmentDuration: fmt.Sprintf("%.1fs", cfg.SegmentDuration),
			OverlapRatio:    fmt.Sprintf("%.0f%%", cfg.OverlapRatio*100),
			ModelType:       string(cfg.Mode),
		},
		Error: reason,
	}
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
