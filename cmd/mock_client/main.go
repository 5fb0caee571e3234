package main

// Exercises a running server the way the recording frontend does: posts WAV
// clips to the analysis endpoint and prints the returned summaries.

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stutter-detection/analysis"
	"stutter-detection/models"
	"stutter-detection/wav"
)

func main() {
	dir := flag.String("dir", "train_data", "Directory containing WAV samples to upload (ignored if -file is set)")
	file := flag.String("file", "", "Single WAV file to upload (overrides -dir)")
	endpoint := flag.String("url", "http://localhost:5000/api/audio/analyze", "Analysis endpoint")
	speaker := flag.String("speaker", "mock-client", "Speaker label attached to each upload")
	delay := flag.Duration("delay", 2*time.Second, "Delay between uploads when using -dir")
	flag.Parse()

	files, err := resolveFiles(*file, *dir)
	if err != nil {
		log.Fatalf("failed to resolve files: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no WAV files found (file=%s dir=%s)", *file, *dir)
	}

	fmt.Printf("Uploading %d sample(s) to %s\n\n", len(files), *endpoint)
	for idx, path := range files {
		if err := uploadSample(path, *endpoint, *speaker); err != nil {
			log.Printf("upload failed for %s: %v", path, err)
		}
		if idx < len(files)-1 && *delay > 0 {
			time.Sleep(*delay)
		}
	}
}

func resolveFiles(single, dir string) ([]string, error) {
	if single != "" {
		return []string{single}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".wav" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func uploadSample(path, endpoint, speaker string) error {
	fmt.Printf("-> %s\n", filepath.Base(path))

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read wav: %w", err)
	}
	waveform, err := wav.ReadWaveFile(path)
	if err != nil {
		return fmt.Errorf("parse wav: %w", err)
	}

	record := models.RecordData{
		Audio:      base64.StdEncoding.EncodeToString(raw),
		Duration:   waveform.DurationSeconds(),
		Channels:   1,
		SampleRate: waveform.SampleRate,
		SampleSize: 16,
		Speaker:    speaker,
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post analysis request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	var report analysis.Report
	if err := json.Unmarshal(body, &report); err != nil {
		return fmt.Errorf("decode analysis response: %w", err)
	}

	fmt.Printf("   dominant=%s events=%d avgConfidence=%.2f\n",
		report.Summary.DominantType, len(report.Events), report.Summary.AverageConfidence)
	for _, ev := range report.Events {
		fmt.Printf("   [%5dms - %5dms] %s (%.0f%%)\n", ev.T0, ev.T1, ev.Type, ev.Confidence*100)
	}
	return nil
}
