package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/vidcoach/internal/providers"
	"github.com/nextlevelbuilder/vidcoach/internal/transcript"
)

// PromptConfig controls system prompt construction.
type PromptConfig struct {
	MaxObservations int
	Instruction     string // appended as an operator section when set
}

const basePrompt = `You are a sports technique analyst. You work only through the capabilities you are given.

To analyze a video:
1. Download it with download_youtube_video.
2. Sample frames from the returned handle with extract_video_frames.
3. Pass the returned frame ids to analyze_sport_technique.

Request a capability only after the result it depends on has arrived; never request a step and its prerequisite in the same turn.
If a capability returns an error, read the error and decide whether to retry with different arguments or to stop and explain.
Never invent frame ids, handles or observations.`

// BuildSystemPrompt returns the orchestrator system prompt.
func BuildSystemPrompt(cfg PromptConfig) string {
	n := cfg.MaxObservations
	if n <= 0 {
		n = defaultMaxObservations
	}
	var b strings.Builder
	b.WriteString(basePrompt)
	fmt.Fprintf(&b, "\n\nWhen you have the analysis, answer with exactly %d observations as a numbered list, one per line, each specific and actionable.", n)
	if s := strings.TrimSpace(cfg.Instruction); s != "" {
		b.WriteString("\n\n## Operator instruction\n\n")
		b.WriteString(s)
	}
	return b.String()
}

// Goal builds the default goal for analyzing one video.
func Goal(url string, observations int, focus string) string {
	if observations <= 0 {
		observations = defaultMaxObservations
	}
	goal := fmt.Sprintf("Analyze the technique in the video at %s and give %d observations.", strings.TrimSpace(url), observations)
	if f := strings.TrimSpace(focus); f != "" {
		goal += " Focus on " + f + "."
	}
	return goal
}

// BuildMessages rebuilds the provider conversation from transcript turns.
// Request turns become assistant tool calls; result turns become user tool
// results carrying the JSON-encoded outcome.
func BuildMessages(turns []transcript.Turn) []providers.Message {
	msgs := make([]providers.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case transcript.RoleGoal:
			msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: t.Text})
		case transcript.RoleRequest:
			m := providers.Message{Role: providers.RoleAssistant, Content: t.Text}
			for _, r := range t.Requests {
				m.ToolCalls = append(m.ToolCalls, providers.ToolCall{ID: r.ID, Name: r.Capability, Arguments: r.Arguments})
			}
			msgs = append(msgs, m)
		case transcript.RoleResult:
			m := providers.Message{Role: providers.RoleUser}
			for _, r := range t.Results {
				m.ToolResults = append(m.ToolResults, providers.ToolResult{
					ToolCallID: r.RequestID,
					Content:    resultContent(r),
					IsError:    r.Status == transcript.StatusError,
				})
			}
			msgs = append(msgs, m)
		case transcript.RoleFinal:
			msgs = append(msgs, providers.Message{Role: providers.RoleAssistant, Content: t.Text})
		}
	}
	return msgs
}

// resultContent renders a result the way the model sees it.
func resultContent(r transcript.Result) string {
	if r.Status == transcript.StatusError {
		body := map[string]any{"error": r.Error}
		if r.Kind != "" {
			body["kind"] = r.Kind
		}
		if d, ok := r.Data.(map[string]any); ok {
			if c, ok := d["class"]; ok {
				body["class"] = c
			}
		}
		b, _ := json.Marshal(body)
		return string(b)
	}
	b, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Sprintf(`{"error":"unencodable result: %v"}`, err)
	}
	return string(b)
}
