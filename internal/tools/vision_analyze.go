package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/vidcoach/internal/providers"
)

const (
	AnalyzeCapability = "analyze_sport_technique"

	defaultMaxObservations = 5
	defaultVisionMaxTokens = 2048
	defaultSportType       = "table tennis"
)

const visionSystemPrompt = `You are an experienced sports coach reviewing still frames taken from one video, in chronological order.
Describe only what is visible in the frames. Be specific about body position, timing, balance and equipment handling.
Answer with a numbered list, one observation per item, and nothing else.`

// VisionAnalyzeConfig holds configuration for the vision capability.
type VisionAnalyzeConfig struct {
	Model           string
	MaxTokens       int
	MaxObservations int
}

// VisionAnalyzeTool sends sampled frames to a multimodal model and returns a
// bounded list of technique observations.
type VisionAnalyzeTool struct {
	provider        providers.Provider
	frames          *FrameStore
	model           string
	maxTokens       int
	maxObservations int
}

func NewVisionAnalyzeTool(cfg VisionAnalyzeConfig, provider providers.Provider, frames *FrameStore) *VisionAnalyzeTool {
	t := &VisionAnalyzeTool{
		provider:        provider,
		frames:          frames,
		model:           cfg.Model,
		maxTokens:       cfg.MaxTokens,
		maxObservations: cfg.MaxObservations,
	}
	if t.maxTokens <= 0 {
		t.maxTokens = defaultVisionMaxTokens
	}
	if t.maxObservations <= 0 {
		t.maxObservations = defaultMaxObservations
	}
	return t
}

func (t *VisionAnalyzeTool) Name() string { return AnalyzeCapability }

func (t *VisionAnalyzeTool) Description() string {
	return "Analyzes sports technique from video frames using vision. " +
		"Takes frame ids from extract_video_frames and returns observations about technique, form and positioning. " +
		"Use this tool AFTER extract_video_frames. This is the final step in the analysis chain."
}

func (t *VisionAnalyzeTool) DependsOn() []string { return []string{ExtractCapability} }

func (t *VisionAnalyzeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"frames": map[string]any{
				"type":        "array",
				"description": "Frame ids returned by extract_video_frames, in order",
				"items":       map[string]any{"type": "string", "minLength": 1},
				"minItems":    1,
				"maxItems":    maxNumFrames,
			},
			"analysis_prompt": map[string]any{
				"type":        "string",
				"description": "Specific analysis request (e.g., 'analyze table tennis technique and list 5 observations')",
				"minLength":   1,
			},
			"sport_type": map[string]any{
				"type":        "string",
				"description": "Type of sport being analyzed (optional, helps context)",
			},
		},
		"required": []string{"frames", "analysis_prompt"},
	}
}

// TokenUsage is the vision call's own consumption, reported to the caller.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Analysis is the ok payload of the vision capability.
type Analysis struct {
	Observations []string   `json:"observations"`
	SportType    string     `json:"sport_type"`
	FrameCount   int        `json:"frame_count"`
	Model        string     `json:"model,omitempty"`
	TokenUsage   TokenUsage `json:"token_usage"`
}

func (t *VisionAnalyzeTool) Execute(ctx context.Context, args map[string]any) *Result {
	ids := frameIDs(args["frames"])
	prompt, _ := args["analysis_prompt"].(string)
	sport, _ := args["sport_type"].(string)
	if strings.TrimSpace(sport) == "" {
		sport = defaultSportType
	}

	msg := providers.Message{Role: providers.RoleUser}
	var positions []string
	for _, id := range ids {
		f, ok := t.frames.Get(id)
		if !ok {
			return FailResult(classified(ClassMalformedInput, "unknown frame id %q", id))
		}
		msg.Images = append(msg.Images, providers.ImageContent{MimeType: f.MimeType, Data: f.Base64()})
		positions = append(positions, fmt.Sprintf("%.0f%%", f.Position*100))
	}
	msg.Content = fmt.Sprintf("Sport: %s\nFrames at %s of the video.\n\n%s\n\nList at most %d observations.",
		sport, strings.Join(positions, ", "), strings.TrimSpace(prompt), t.maxObservations)

	resp, err := t.provider.Chat(ctx, providers.ChatRequest{
		Model:     t.model,
		System:    visionSystemPrompt,
		Messages:  []providers.Message{msg},
		MaxTokens: t.maxTokens,
	})
	if err != nil {
		return FailResult(classifyVision(err))
	}

	obs := ParseObservations(resp.Content, t.maxObservations)
	if len(obs) == 0 {
		return FailResult(classified(ClassMalformedInput, "vision model returned no observations"))
	}

	a := Analysis{
		Observations: obs,
		SportType:    sport,
		FrameCount:   len(ids),
		Model:        resp.Model,
	}
	if resp.Usage != nil {
		a.TokenUsage = TokenUsage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}
	slog.Info("frames analyzed", "frames", len(ids), "observations", len(obs),
		"input_tokens", a.TokenUsage.InputTokens, "output_tokens", a.TokenUsage.OutputTokens)
	return NewResult(a)
}

func classifyVision(err error) error {
	var httpErr *providers.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.RateLimited():
			return &CapabilityError{Class: ClassRateLimited, Err: err}
		case httpErr.Status == 400 || httpErr.Status == 413:
			return &CapabilityError{Class: ClassMalformedInput, Err: err}
		}
		return &CapabilityError{Class: ClassUpstream, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &CapabilityError{Class: ClassNetwork, Err: err}
}

// frameIDs extracts frame ids from the frames argument.
func frameIDs(v any) []string {
	raw, _ := asSlice(v)
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			ids = append(ids, strings.TrimSpace(s))
		}
	}
	return ids
}
