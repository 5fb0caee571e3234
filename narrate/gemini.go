package narrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"stutter-detection/analysis"
)

// GeminiClient turns an analysis report into a short plain-language summary
// for the person reviewing the recording.
type GeminiClient struct {
	client *genai.Client
	ctx    context.Context
}

func NewGeminiClient() (*GeminiClient, error) {
	ctx := context.Background()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %v", err)
	}

	return &GeminiClient{
		client: client,
		ctx:    ctx,
	}, nil
}

const narrationPrompt = `You are a speech analysis assistant. You receive a JSON report
describing disfluency events detected in a speech recording: blocks, prolongations,
and repetitions, each with timestamps and confidence scores.

Write a short, supportive summary for the speaker or their clinician:
- Describe what was detected, where in the recording, and how pronounced it was
- Use plain language, no jargon, no JSON field names
- Do not diagnose or give medical advice
Keep it under 150 words.`

// NarrateReport asks the model to summarize the report in plain language.
func (g *GeminiClient) NarrateReport(report *analysis.Report) (string, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %v", err)
	}

	systemInstruction := genai.NewContentFromText(narrationPrompt, genai.RoleModel)
	userContent := genai.NewContentFromText(string(reportJSON), genai.RoleUser)

	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Temperature:       genai.Ptr(float32(0.7)),
		TopP:              genai.Ptr(float32(0.8)),
		TopK:              genai.Ptr(float32(40)),
		MaxOutputTokens:   int32(250),
	}

	resp, err := g.client.Models.GenerateContent(
		g.ctx,
		"gemini-2.5-flash",
		[]*genai.Content{userContent},
		config,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate narration: %v", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty narration response")
	}
	return strings.ReplaceAll(text, "*", ""), nil
}

func (g *GeminiClient) Close() error {
	// the client has no explicit Close; resources are managed automatically
	return nil
}
