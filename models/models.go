package models

import (
	"encoding/json"
	"time"
)

// RecordData is the socket payload carrying a recorded clip for analysis.
// Audio is base64-encoded WAV bytes.
type RecordData struct {
	Audio      string  `json:"audio"`
	Duration   float64 `json:"duration"`
	Channels   int     `json:"channels"`
	SampleRate int     `json:"sampleRate"`
	SampleSize int     `json:"sampleSize"`
	Speaker    string  `json:"speaker,omitempty"`
}

// AnalysisRecord is a stored analysis run: where the audio came from, the
// headline result, and the full report as JSON.
type AnalysisRecord struct {
	ID                int64           `json:"id"`
	Timestamp         time.Time       `json:"timestamp"`
	InputFile         string          `json:"inputFile"`
	Speaker           string          `json:"speaker,omitempty"`
	Mode              string          `json:"mode"`
	DominantType      string          `json:"dominantType"`
	EventCount        int             `json:"eventCount"`
	AverageConfidence float64         `json:"averageConfidence"`
	HasEvents         bool            `json:"hasEvents"`
	LatencyMs         float64         `json:"latencyMs"`
	Report            json.RawMessage `json:"report"`
	Narration         string          `json:"narration,omitempty"`
}
