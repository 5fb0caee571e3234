package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"stutter-detection/dsp"
	"stutter-detection/wav"
)

// Service runs the full pipeline: segmentation, feature extraction,
// classification, and aggregation into a report.
type Service struct {
	cfg        Config
	classifier Classifier
	localizer  Localizer
	extractor  *FeatureExtractor
	modelPath  string
	logger     *slog.Logger
}

// NewService wires the pipeline stages together. Precise mode requires a
// localizer.
func NewService(cfg Config, classifier Classifier, localizer Localizer, modelPath string, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is required", ErrValidation)
	}
	if cfg.Mode == ModePrecise && localizer == nil {
		return nil, fmt.Errorf("%w: precise mode requires a localizer", ErrValidation)
	}
	return &Service{
		cfg:        cfg,
		classifier: classifier,
		localizer:  localizer,
		extractor:  NewFeatureExtractor(cfg, logger),
		modelPath:  modelPath,
		logger:     logger,
	}, nil
}

// AnalyzeFile loads a WAV recording and analyzes it. Fatal input problems
// still produce a structured report carrying the error; the returned error
// classifies the failure for the caller.
func (s *Service) AnalyzeFile(ctx context.Context, inputPath string) (*Report, error) {
	started := time.Now()

	if _, err := os.Stat(inputPath); err != nil {
		var wrapped error
		if os.IsNotExist(err) {
			wrapped = fmt.Errorf("%w: input file %s", ErrNotFound, inputPath)
		} else if os.IsPermission(err) {
			wrapped = fmt.Errorf("%w: input file %s", ErrPermission, inputPath)
		} else {
			wrapped = fmt.Errorf("%w: input file %s: %v", ErrDecode, inputPath, err)
		}
		return s.abortReport(inputPath, started, wrapped), wrapped
	}

	waveform, err := wav.ReadWaveFile(inputPath)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrDecode, err)
		return s.abortReport(inputPath, started, wrapped), wrapped
	}
	return s.analyze(ctx, waveform, inputPath, started)
}

// AnalyzeWaveform analyzes in-memory samples, e.g. a recording received over
// a socket. The label stands in for a file path in the report.
func (s *Service) AnalyzeWaveform(ctx context.Context, waveform *wav.Waveform, label string) (*Report, error) {
	return s.analyze(ctx, waveform, label, time.Now())
}

func (s *Service) analyze(ctx context.Context, waveform *wav.Waveform, inputLabel string, started time.Time) (*Report, error) {
	waveform, err := s.toAnalysisRate(waveform)
	if err != nil {
		return s.abortReport(inputLabel, started, err), err
	}

	windows, err := SegmentWaveform(waveform, s.cfg)
	if err != nil {
		return s.abortReport(inputLabel, started, err), err
	}
	s.logger.Info("segmented recording",
		"input", inputLabel,
		"windows", len(windows),
		"duration_ms", waveform.DurationMs())

	outcomes, runErr := s.processWindows(ctx, windows)

	successful := 0
	for _, outcome := range outcomes {
		if outcome.Success != nil {
			successful++
		}
	}
	if runErr == nil && successful == 0 {
		runErr = ErrNoResults
	}

	aggregator := NewAggregator(s.cfg, s.localizer, s.classifier.ModelVersion(), s.logger)
	events, aggErrors := aggregator.Aggregate(ctx, windows, outcomes)
	if runErr != nil {
		aggErrors = append(aggErrors, runErr.Error())
	}

	report := &Report{
		Events:  formatEvents(events),
		Summary: ComputeSummary(s.cfg, outcomes, events),
		ProcessingInfo: ProcessingInfo{
			ModelPath:      s.modelPath,
			InputFile:      inputLabel,
			ProcessingTime: formatDuration(time.Since(started)),
			Errors:         aggErrors,
		},
	}
	if report.ProcessingInfo.Errors == nil {
		report.ProcessingInfo.Errors = []string{}
	}
	if runErr != nil {
		report.Summary.Error = runErr.Error()
	}
	return report, runErr
}

// toAnalysisRate resamples the recording so every downstream stage works at
// one rate. Window timestamps and localizer math all assume it.
func (s *Service) toAnalysisRate(waveform *wav.Waveform) (*wav.Waveform, error) {
	if waveform == nil || len(waveform.Samples) == 0 {
		return nil, fmt.Errorf("%w: no audio samples", ErrEmptyInput)
	}
	if waveform.SampleRate == s.cfg.AnalysisRate {
		return waveform, nil
	}
	resampled, err := dsp.Resample(waveform.Samples, waveform.SampleRate, s.cfg.AnalysisRate)
	if err != nil {
		return nil, fmt.Errorf("%w: resample to %d Hz: %v", ErrDecode, s.cfg.AnalysisRate, err)
	}
	return &wav.Waveform{Samples: resampled, SampleRate: s.cfg.AnalysisRate}, nil
}

// processWindows classifies each window, honoring the concurrency bound and
// the per-window error policy. Outcomes come back in window order regardless
// of completion order. On cancellation the remaining windows are marked
// unprocessed and ErrCancelled is returned alongside the partial outcomes.
func (s *Service) processWindows(ctx context.Context, windows []Window) ([]WindowOutcome, error) {
	outcomes := make([]WindowOutcome, len(windows))

	if s.cfg.Concurrency <= 1 {
		for i, window := range windows {
			if err := ctx.Err(); err != nil {
				s.markUnprocessed(outcomes, windows, i, "cancelled before processing")
				return outcomes, fmt.Errorf("%w: %v", ErrCancelled, err)
			}
			outcomes[i] = s.processWindow(window)
			if outcomes[i].Failure != nil && s.cfg.OnWindowError == AbortRun {
				s.markUnprocessed(outcomes, windows, i+1, fmt.Sprintf("aborted after segment %d failed", i))
				return outcomes, nil
			}
		}
		return outcomes, nil
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for worker := 0; worker < s.cfg.Concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				outcomes[i] = s.processWindow(windows[i])
			}
		}()
	}

	cancelled := false
	next := 0
dispatch:
	for ; next < len(windows); next++ {
		select {
		case indexes <- next:
		case <-ctx.Done():
			cancelled = true
			break dispatch
		}
	}
	close(indexes)
	wg.Wait()

	if cancelled {
		s.markUnprocessed(outcomes, windows, next, "cancelled before processing")
		return outcomes, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}

	if s.cfg.OnWindowError == AbortRun {
		for i := range outcomes {
			if outcomes[i].Failure != nil && outcomes[i].Failure.Stage != "unprocessed" {
				s.markUnprocessed(outcomes, windows, i+1, fmt.Sprintf("aborted after segment %d failed", i))
				break
			}
		}
	}
	return outcomes, nil
}

// markUnprocessed fills outcomes from index on with failure markers so the
// report's counts stay consistent with the window list.
func (s *Service) markUnprocessed(outcomes []WindowOutcome, windows []Window, from int, reason string) {
	for i := from; i < len(windows); i++ {
		if outcomes[i].Success != nil || outcomes[i].Failure != nil {
			continue
		}
		outcomes[i] = WindowOutcome{
			Index:   windows[i].Index,
			StartMs: windows[i].StartMs,
			EndMs:   windows[i].EndMs,
			Failure: &WindowFailure{Stage: "unprocessed", Reason: reason},
		}
	}
}

func (s *Service) processWindow(window Window) WindowOutcome {
	outcome := WindowOutcome{
		Index:   window.Index,
		StartMs: window.StartMs,
		EndMs:   window.EndMs,
	}

	spec, err := s.extractor.Extract(window.Samples, s.cfg.AnalysisRate)
	if err != nil {
		s.logger.Warn("feature extraction failed",
			"window", window.Index, slog.Any("error", err))
		outcome.Failure = &WindowFailure{Stage: "features", Reason: err.Error()}
		return outcome
	}

	probs, err := s.classifier.Classify(dsp.NormalizeUnit(spec))
	if err != nil {
		s.logger.Warn("classification failed",
			"window", window.Index, slog.Any("error", err))
		outcome.Failure = &WindowFailure{Stage: "classify", Reason: err.Error()}
		return outcome
	}

	outcome.Success = SuccessFromVector(s.classifier.Classes(), probs, window.Index, s.logger)
	return outcome
}

// abortReport builds the structured report for a run that never reached
// segmentation or classification.
func (s *Service) abortReport(inputLabel string, started time.Time, cause error) *Report {
	return &Report{
		Events:  []ReportEvent{},
		Summary: emptySummary(s.cfg, cause.Error()),
		ProcessingInfo: ProcessingInfo{
			ModelPath:      s.modelPath,
			InputFile:      inputLabel,
			ProcessingTime: formatDuration(time.Since(started)),
			Errors:         []string{cause.Error()},
		},
	}
}

// IsFatal reports whether an analysis error should fail the run rather than
// degrade it.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPermission) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrResourceExhausted) ||
		errors.Is(err, ErrNoResults)
}
