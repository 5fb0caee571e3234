package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mdobak/go-xerrors"

	"stutter-detection/analysis"
	"stutter-detection/db"
	"stutter-detection/localizer"
	"stutter-detection/models"
	"stutter-detection/narrate"
	"stutter-detection/utils"
)

type analyzeFlags struct {
	fs          *flag.FlagSet
	input       *string
	model       *string
	mode        *string
	outputDir   *string
	outputJSON  *bool
	narrate     *bool
	speak       *bool
	store       *bool
	concurrency *int
	onError     *string
}

func newAnalyzeFlags() *analyzeFlags {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	return &analyzeFlags{
		fs:          fs,
		input:       fs.String("input", "", "Path to the WAV recording to analyze"),
		model:       fs.String("model", filepath.Join("analysis", "prototypes.json"), "Path to the prototype model file"),
		mode:        fs.String("mode", "coarse", "Analysis mode (coarse or precise)"),
		outputDir:   fs.String("output-dir", "reports", "Directory for report output"),
		outputJSON:  fs.Bool("output-json", true, "Write the full report as JSON"),
		narrate:     fs.Bool("narrate", false, "Generate a plain-language narration with Gemini"),
		speak:       fs.Bool("speak", false, "Also synthesize the narration as MP3 audio (implies -narrate)"),
		store:       fs.Bool("store", false, "Persist the run to the configured database"),
		concurrency: fs.Int("concurrency", 1, "Number of windows to process in parallel"),
		onError:     fs.String("on-error", "skip", "Per-window failure policy (skip or abort)"),
	}
}

// runAnalyze runs the full pipeline on one recording and returns the process
// exit code.
func runAnalyze(ctx context.Context, args []string) int {
	logger := utils.GetLogger()
	flags := newAnalyzeFlags()
	flags.fs.Parse(args)

	if *flags.input == "" {
		fmt.Println("analyze: -input is required")
		flags.fs.Usage()
		return 1
	}

	cfg := analysis.DefaultConfig()
	cfg.Mode = analysis.Mode(*flags.mode)
	cfg.Concurrency = *flags.concurrency
	cfg.OnWindowError = analysis.WindowErrorPolicy(*flags.onError)
	if v := utils.GetEnvFloat("SEGMENT_DURATION", cfg.SegmentDuration); v > 0 {
		cfg.SegmentDuration = v
	}
	if v := utils.GetEnvFloat("OVERLAP_RATIO", cfg.OverlapRatio); v >= 0 {
		cfg.OverlapRatio = v
	}

	service, err := buildService(cfg, *flags.model, logger)
	if err != nil {
		logger.ErrorContext(ctx, "failed to build analysis service",
			slog.Any("error", xerrors.New(err)))
		return 1
	}

	started := time.Now()
	report, runErr := service.AnalyzeFile(ctx, *flags.input)
	if runErr != nil {
		logger.ErrorContext(ctx, "analysis did not complete",
			slog.String("input", *flags.input),
			slog.Any("error", xerrors.New(runErr)))
	}

	var narration string
	if (*flags.narrate || *flags.speak) && report != nil && report.Summary.HasEvents {
		narration = narrateReport(ctx, report, logger)
	}
	if *flags.speak && narration != "" {
		if path, err := speakNarration(ctx, narration, *flags.input, *flags.outputDir); err != nil {
			logger.WarnContext(ctx, "speech synthesis failed", slog.Any("error", err))
		} else {
			fmt.Printf("Narration audio written to %s\n", path)
		}
	}

	if report != nil {
		printSummary(report, narration)

		if *flags.outputJSON {
			if path, err := writeReport(report, *flags.input, *flags.outputDir); err != nil {
				logger.ErrorContext(ctx, "failed to write report",
					slog.Any("error", xerrors.New(err)))
			} else {
				fmt.Printf("Report written to %s\n", path)
			}
		}

		if *flags.store {
			storeReport(ctx, report, cfg, narration, time.Since(started), logger)
		}
	}

	return exitCode(runErr)
}

// buildService wires the classifier, localizer, and pipeline config.
func buildService(cfg analysis.Config, modelPath string, logger *slog.Logger) (*analysis.Service, error) {
	k, err := strconv.Atoi(utils.GetEnv("MODEL_K", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid MODEL_K value: %v", err)
	}

	classifier, err := analysis.NewClassifier(analysis.ClassifierConfig{
		ModelPath: modelPath,
		Format:    analysis.ModelFormat(utils.GetEnv("MODEL_FORMAT", "")),
		Neighbors: k,
	}, logger)
	if err != nil {
		return nil, err
	}

	var loc analysis.Localizer
	if cfg.Mode == analysis.ModePrecise {
		loc = localizer.FromEnv()
	}
	return analysis.NewService(cfg, classifier, loc, modelPath, logger)
}

func narrateReport(ctx context.Context, report *analysis.Report, logger *slog.Logger) string {
	client, err := narrate.NewGeminiClient()
	if err != nil {
		logger.WarnContext(ctx, "narration unavailable", slog.Any("error", err))
		return ""
	}
	defer client.Close()

	narration, err := client.NarrateReport(report)
	if err != nil {
		logger.WarnContext(ctx, "narration failed", slog.Any("error", err))
		return ""
	}
	return narration
}

// speakNarration renders the narration as MP3 next to the JSON report.
func speakNarration(ctx context.Context, narration, inputPath, outputDir string) (string, error) {
	client, err := narrate.NewTTSClient()
	if err != nil {
		return "", err
	}
	audio, err := client.Synthesize(ctx, narration)
	if err != nil {
		return "", err
	}

	if err := utils.CreateFolder(outputDir); err != nil {
		return "", fmt.Errorf("error creating output directory: %v", err)
	}
	base := filepath.Base(inputPath)
	name := base[:len(base)-len(filepath.Ext(base))]
	path := filepath.Join(outputDir, fmt.Sprintf("%s_narration.mp3", name))
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return "", fmt.Errorf("error writing narration audio: %v", err)
	}
	return path, nil
}

func printSummary(report *analysis.Report, narration string) {
	summary := report.Summary
	fmt.Printf("Analyzed %s in %s\n", report.ProcessingInfo.InputFile, report.ProcessingInfo.ProcessingTime)
	fmt.Printf("  segments: %d analyzed, %d classified\n", summary.TotalSegments, summary.SuccessfulPredictions)
	fmt.Printf("  events:   %d", len(report.Events))
	if summary.HasEvents {
		fmt.Printf(" (dominant: %s, avg confidence %.2f)", summary.DominantType, summary.AverageConfidence)
	}
	fmt.Println()

	for _, ev := range report.Events {
		fmt.Printf("  %6.2fs - %6.2fs  %-14s %3d%%  %s\n",
			float64(ev.T0)/1000, float64(ev.T1)/1000, ev.Type, ev.Probability, ev.Severity)
	}
	if len(report.ProcessingInfo.Errors) > 0 {
		fmt.Printf("  errors:   %d\n", len(report.ProcessingInfo.Errors))
		for _, msg := range report.ProcessingInfo.Errors {
			fmt.Printf("    - %s\n", msg)
		}
	}
	if narration != "" {
		fmt.Printf("\n%s\n", narration)
	}
}

func writeReport(report *analysis.Report, inputPath, outputDir string) (string, error) {
	if err := utils.CreateFolder(outputDir); err != nil {
		return "", fmt.Errorf("error creating output directory: %v", err)
	}

	base := filepath.Base(inputPath)
	name := base[:len(base)-len(filepath.Ext(base))]
	path := filepath.Join(outputDir, fmt.Sprintf("%s_analysis.json", name))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error marshaling report: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("error writing report: %v", err)
	}
	return path, nil
}

func storeReport(ctx context.Context, report *analysis.Report, cfg analysis.Config, narration string, elapsed time.Duration, logger *slog.Logger) {
	client, err := db.NewDBClient()
	if err != nil {
		logger.ErrorContext(ctx, "failed to connect to database",
			slog.Any("error", xerrors.New(err)))
		return
	}
	defer client.Close()

	reportJSON, err := json.Marshal(report)
	if err != nil {
		logger.ErrorContext(ctx, "failed to marshal report for storage",
			slog.Any("error", xerrors.New(err)))
		return
	}

	record := &models.AnalysisRecord{
		Timestamp:         time.Now(),
		InputFile:         report.ProcessingInfo.InputFile,
		Mode:              string(cfg.Mode),
		DominantType:      report.Summary.DominantType,
		EventCount:        len(report.Events),
		AverageConfidence: report.Summary.AverageConfidence,
		HasEvents:         report.Summary.HasEvents,
		LatencyMs:         elapsed.Seconds() * 1000,
		Report:            reportJSON,
		Narration:         narration,
	}
	if err := client.StoreAnalysis(record); err != nil {
		logger.ErrorContext(ctx, "failed to store analysis",
			slog.Any("error", xerrors.New(err)))
		return
	}
	log.Printf("Stored analysis record %d", record.ID)
}
