package localizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"stutter-detection/analysis"
	"stutter-detection/utils"
	"stutter-detection/wav"
)

// ServiceClient delegates localization to an external analysis service over
// HTTP. The window is shipped as a WAV attachment together with the class
// probabilities, and the service answers with timed sub-events.
type ServiceClient struct {
	serviceURL string
	client     *http.Client
}

type serviceSubEvent struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Severity   string  `json:"severity"`
}

type localizeResponse struct {
	Events []serviceSubEvent `json:"events"`
}

func NewServiceClient(serviceURL string) *ServiceClient {
	if serviceURL == "" {
		serviceURL = "http://localhost:5002"
	}
	return &ServiceClient{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthCheck verifies the localization service is running.
func (sc *ServiceClient) HealthCheck() error {
	resp, err := sc.client.Get(sc.serviceURL + "/health")
	if err != nil {
		return fmt.Errorf("localization service not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("localization service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Localize posts the window audio and probabilities to the service.
func (sc *ServiceClient) Localize(ctx context.Context, samples []float64, sampleRate int, probabilities map[string]float64) ([]analysis.SubEvent, error) {
	audioPath, err := sc.writeTempWav(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	defer os.Remove(audioPath)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open window audio: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to copy audio data: %w", err)
	}
	file.Close()

	probsJSON, err := json.Marshal(probabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal probabilities: %w", err)
	}
	if err := writer.WriteField("probabilities", string(probsJSON)); err != nil {
		return nil, fmt.Errorf("failed to write probabilities field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", sc.serviceURL+"/localize", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("localization request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("localization service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var decoded localizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	subEvents := make([]analysis.SubEvent, 0, len(decoded.Events))
	for _, ev := range decoded.Events {
		subEvents = append(subEvents, analysis.SubEvent{
			Type:       ev.Type,
			Confidence: ev.Confidence,
			StartSec:   ev.StartTime,
			EndSec:     ev.EndTime,
			Severity:   ev.Severity,
		})
	}
	return subEvents, nil
}

// writeTempWav persists the window as 16-bit PCM for the multipart upload.
// The WAV encoder needs a seekable destination, so a temp file stands in for
// an in-memory buffer.
func (sc *ServiceClient) writeTempWav(samples []float64, sampleRate int) (string, error) {
	dir := os.TempDir()
	name := fmt.Sprintf("localize_window_%d.wav", utils.GenerateUniqueID())
	path := filepath.Join(dir, name)
	if err := wav.WriteWaveFile(path, samples, sampleRate); err != nil {
		return "", fmt.Errorf("failed to write window audio: %w", err)
	}
	return path, nil
}
