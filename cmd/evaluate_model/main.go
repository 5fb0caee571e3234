package main

// Batch evaluation over a directory of labeled recordings. Each subdirectory
// name is the true label (blocks/, prolongations/, repetitions/); every WAV
// inside is classified as a single window and scored against it.

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stutter-detection/analysis"
	"stutter-detection/dsp"
	"stutter-detection/utils"
	"stutter-detection/wav"
)

type EvaluationConfig struct {
	ModelPath  string
	DataDir    string
	K          int
	ReportPath string
	Verbose    bool
}

type ClassMetrics struct {
	ClassName     string
	TotalSamples  int
	CorrectCount  int
	Accuracy      float64
	AvgConfidence float64
	ConfidenceStd float64
	Misclassified []MisclassificationInfo
}

type MisclassificationInfo struct {
	Filename       string
	TrueLabel      string
	PredictedLabel string
	Confidence     float64
}

type EvaluationReport struct {
	Timestamp       time.Time
	ModelPath       string
	TotalSamples    int
	CorrectCount    int
	OverallAccuracy float64
	AvgConfidence   float64
	ClassMetrics    []ClassMetrics
	ConfusionMatrix map[string]map[string]int
	ProcessingTime  time.Duration
}

type evaluator struct {
	classifier analysis.Classifier
	extractor  *analysis.FeatureExtractor
	cfg        analysis.Config
}

func main() {
	config := parseFlags()
	logger := utils.GetLogger()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Println("=== Model Evaluation Pipeline ===")
	log.Printf("Model: %s\n", config.ModelPath)
	log.Printf("Evaluation data: %s\n", config.DataDir)
	log.Printf("K neighbors: %d\n", config.K)
	log.Println()

	log.Println("Loading model...")
	classifier, err := analysis.NewClassifier(analysis.ClassifierConfig{
		ModelPath: config.ModelPath,
		Neighbors: config.K,
	}, logger)
	if err != nil {
		log.Fatalf("ERROR: Failed to load model: %v", err)
	}
	log.Printf("Classes: %s\n", strings.Join(classifier.Classes(), ", "))
	log.Println()

	pipelineCfg := analysis.DefaultConfig()
	eval := &evaluator{
		classifier: classifier,
		extractor:  analysis.NewFeatureExtractor(pipelineCfg, logger),
		cfg:        pipelineCfg,
	}

	log.Println("Discovering evaluation data...")
	subdirs, err := discoverSubdirectories(config.DataDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to read evaluation directory: %v", err)
	}
	log.Printf("Found %d classes to evaluate\n", len(subdirs))
	log.Println()

	log.Println("Evaluating model performance...")
	report := eval.evaluate(subdirs, config)

	printEvaluationReport(report)

	if config.ReportPath != "" {
		if err := saveReport(report, config.ReportPath); err != nil {
			log.Printf("WARNING: Failed to save report: %v\n", err)
		} else {
			log.Printf("\nReport saved to: %s\n", config.ReportPath)
		}
	}
}

func parseFlags() EvaluationConfig {
	config := EvaluationConfig{}

	flag.StringVar(&config.ModelPath, "model", filepath.Join("analysis", "prototypes.json"),
		"Path to trained model (prototypes JSON)")
	flag.StringVar(&config.DataDir, "data-dir", "evaluation-data",
		"Directory of labeled subdirectories with WAV files")
	flag.IntVar(&config.K, "k", 5,
		"Number of nearest neighbors")
	flag.StringVar(&config.ReportPath, "report", "evaluation_report.json",
		"Path to save evaluation report (empty to skip)")
	flag.BoolVar(&config.Verbose, "verbose", false,
		"Enable verbose logging")

	flag.Parse()
	return config
}

func discoverSubdirectories(rootDir string) ([]string, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		return nil, err
	}

	var subdirs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		subdirs = append(subdirs, filepath.Join(rootDir, entry.Name()))
	}
	return subdirs, nil
}

func (e *evaluator) evaluate(subdirs []string, config EvaluationConfig) EvaluationReport {
	report := EvaluationReport{
		Timestamp:       time.Now(),
		ModelPath:       config.ModelPath,
		ConfusionMatrix: make(map[string]map[string]int),
	}

	var allMetrics []ClassMetrics
	totalCorrect := 0
	totalSamples := 0
	totalConfidence := 0.0

	for _, subdir := range subdirs {
		trueLabel := inferLabelFromDirectory(subdir)
		metrics := e.evaluateClass(subdir, trueLabel, config, &report)

		allMetrics = append(allMetrics, metrics)
		totalCorrect += metrics.CorrectCount
		totalSamples += metrics.TotalSamples
		totalConfidence += metrics.AvgConfidence * float64(metrics.TotalSamples)
	}

	report.ClassMetrics = allMetrics
	report.TotalSamples = totalSamples
	report.CorrectCount = totalCorrect
	if totalSamples > 0 {
		report.OverallAccuracy = float64(totalCorrect) / float64(totalSamples) * 100
		report.AvgConfidence = totalConfidence / float64(totalSamples)
	}
	report.ProcessingTime = time.Since(report.Timestamp)
	return report
}

func (e *evaluator) evaluateClass(classDir, trueLabel string, config EvaluationConfig, report *EvaluationReport) ClassMetrics {
	metrics := ClassMetrics{ClassName: trueLabel}

	files, err := collectAudioFiles(classDir)
	if err != nil {
		log.Printf("WARNING: Failed to read directory %s: %v\n", classDir, err)
		return metrics
	}
	if len(files) == 0 {
		log.Printf("WARNING: No audio files in %s\n", classDir)
		return metrics
	}

	var confidences []float64
	for _, filePath := range files {
		metrics.TotalSamples++

		prediction, conf, err := e.classifyFile(filePath)
		if err != nil {
			if config.Verbose {
				log.Printf("  ERROR processing %s: %v\n", filepath.Base(filePath), err)
			}
			continue
		}

		confidences = append(confidences, conf)

		if report.ConfusionMatrix[trueLabel] == nil {
			report.ConfusionMatrix[trueLabel] = make(map[string]int)
		}
		report.ConfusionMatrix[trueLabel][prediction]++

		if prediction == trueLabel {
			metrics.CorrectCount++
		} else {
			metrics.Misclassified = append(metrics.Misclassified, MisclassificationInfo{
				Filename:       filepath.Base(filePath),
				TrueLabel:      trueLabel,
				PredictedLabel: prediction,
				Confidence:     conf,
			})
		}
	}

	if metrics.TotalSamples > 0 {
		metrics.Accuracy = float64(metrics.CorrectCount) / float64(metrics.TotalSamples) * 100
	}
	if len(confidences) > 0 {
		metrics.AvgConfidence = average(confidences)
		metrics.ConfidenceStd = stddev(confidences, metrics.AvgConfidence)
	}
	return metrics
}

// classifyFile treats the recording as one window through the standard
// feature pipeline.
func (e *evaluator) classifyFile(filePath string) (string, float64, error) {
	waveform, err := wav.ReadWaveFile(filePath)
	if err != nil {
		return "", 0, err
	}

	spec, err := e.extractor.Extract(waveform.Samples, waveform.SampleRate)
	if err != nil {
		return "", 0, err
	}

	probs, err := e.classifier.Classify(dsp.NormalizeUnit(spec))
	if err != nil {
		return "", 0, err
	}

	classes := e.classifier.Classes()
	if len(probs) == 0 || len(classes) == 0 {
		return "", 0, fmt.Errorf("classification produced no probabilities")
	}

	best := 0
	for i := range probs {
		if i < len(classes) && probs[i] > probs[best] {
			best = i
		}
	}
	return classes[best], probs[best], nil
}

func collectAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) == ".wav" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func inferLabelFromDirectory(dirPath string) string {
	base := filepath.Base(dirPath)
	label := strings.ToLower(base)
	label = strings.ReplaceAll(label, " ", "_")
	label = strings.ReplaceAll(label, "-", "_")
	return strings.TrimSpace(label)
}

func printEvaluationReport(report EvaluationReport) {
	log.Println()
	log.Println(strings.Repeat("=", 80))
	log.Println("EVALUATION RESULTS")
	log.Println(strings.Repeat("=", 80))
	log.Println()

	log.Printf("Overall Accuracy: %.2f%% (%d/%d correct)\n",
		report.OverallAccuracy, report.CorrectCount, report.TotalSamples)
	log.Printf("Average Confidence: %.2f%%\n", report.AvgConfidence*100)
	log.Printf("Processing Time: %.2f seconds\n", report.ProcessingTime.Seconds())
	log.Println()

	log.Println("Per-Class Performance:")
	log.Println(strings.Repeat("-", 80))
	log.Printf("%-20s %8s %10s %12s\n", "Class", "Accuracy", "Confidence", "Samples")
	log.Println(strings.Repeat("-", 80))

	sortedMetrics := make([]ClassMetrics, len(report.ClassMetrics))
	copy(sortedMetrics, report.ClassMetrics)
	sort.Slice(sortedMetrics, func(i, j int) bool {
		return sortedMetrics[i].Accuracy > sortedMetrics[j].Accuracy
	})

	for _, m := range sortedMetrics {
		log.Printf("%-20s %7.1f%% %9.1f%% %10d\n",
			m.ClassName, m.Accuracy, m.AvgConfidence*100, m.TotalSamples)
	}
	log.Println()

	printConfusionMatrix(report.ConfusionMatrix)
	printMisclassifications(report.ClassMetrics)
}

func printConfusionMatrix(matrix map[string]map[string]int) {
	if len(matrix) == 0 {
		return
	}

	log.Println("Confusion Matrix:")
	log.Println(strings.Repeat("-", 80))

	var labels []string
	for label := range matrix {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	fmt.Printf("%-15s", "Actual \\ Pred")
	for _, label := range labels {
		fmt.Printf(" %6s", truncate(label, 6))
	}
	fmt.Println()
	log.Println(strings.Repeat("-", 80))

	for _, trueLabel := range labels {
		fmt.Printf("%-15s", truncate(trueLabel, 15))
		for _, predLabel := range labels {
			count := matrix[trueLabel][predLabel]
			if count > 0 {
				fmt.Printf(" %6d", count)
			} else {
				fmt.Printf(" %6s", ".")
			}
		}
		fmt.Println()
	}
	log.Println()
}

func printMisclassifications(metrics []ClassMetrics) {
	totalMisclassified := 0
	for _, m := range metrics {
		totalMisclassified += len(m.Misclassified)
	}
	if totalMisclassified == 0 {
		log.Println("No misclassifications")
		return
	}

	log.Printf("Misclassifications (%d total):\n", totalMisclassified)
	log.Println(strings.Repeat("-", 80))
	for _, m := range metrics {
		if len(m.Misclassified) == 0 {
			continue
		}
		log.Printf("\n%s:", m.ClassName)
		for _, misc := range m.Misclassified {
			log.Printf("  %s predicted as '%s' (%.1f%% confidence)\n",
				misc.Filename, misc.PredictedLabel, misc.Confidence*100)
		}
	}
	log.Println()
}

func saveReport(report EvaluationReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-2] + ".."
}
