package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/vidcoach/internal/agent"
	"github.com/nextlevelbuilder/vidcoach/internal/bus"
	"github.com/nextlevelbuilder/vidcoach/internal/config"
	"github.com/nextlevelbuilder/vidcoach/internal/store"
	"github.com/nextlevelbuilder/vidcoach/internal/transcript"
	"github.com/nextlevelbuilder/vidcoach/internal/usage"
	"github.com/nextlevelbuilder/vidcoach/pkg/protocol"
)

func TestFrameWriter_SequencesFrames(t *testing.T) {
	var buf bytes.Buffer
	b := bus.New()
	b.Subscribe("frames", frameWriter(&buf))

	publish := publishTo(b)
	publish(agent.AgentEvent{Type: protocol.AgentEventRunStarted, RunID: "r1"})
	publish(agent.AgentEvent{
		Type:    protocol.AgentEventToolCall,
		RunID:   "r1",
		Payload: agent.ToolCallPayload{RequestID: "c1", Capability: "download_youtube_video"},
	})

	sc := bufio.NewScanner(&buf)
	var frames []protocol.EventFrame
	for sc.Scan() {
		var f protocol.EventFrame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		frames = append(frames, f)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames", len(frames))
	}
	if frames[0].Seq != 1 || frames[1].Seq != 2 {
		t.Errorf("seq = %d, %d", frames[0].Seq, frames[1].Seq)
	}
	if frames[1].Type != protocol.AgentEventToolCall || frames[1].Version != protocol.ProtocolVersion {
		t.Errorf("frame = %+v", frames[1])
	}
	if !strings.Contains(string(frames[1].Payload), `"capability":"download_youtube_video"`) {
		t.Errorf("payload = %s", frames[1].Payload)
	}
}

func TestProgressWriter(t *testing.T) {
	var buf bytes.Buffer
	h := progressWriter(&buf)
	h(bus.Event{Name: protocol.AgentEventRunStarted})
	h(bus.Event{Payload: agent.ToolCallPayload{Capability: "extract_video_frames"}})
	h(bus.Event{Payload: agent.ToolResultPayload{Capability: "extract_video_frames", Status: "ok", DurationMS: 42}})
	h(bus.Event{Payload: agent.ToolResultPayload{Capability: "analyze_sport_technique", Status: "error", Error: "no frames\nfor id"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "(42ms)") {
		t.Errorf("ok line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "no frames for id") {
		t.Errorf("error line = %q", lines[2])
	}
}

func TestNewEventBus_Subscribers(t *testing.T) {
	tests := []struct {
		name          string
		frames, quiet bool
		want          int
	}{
		{"progress", false, false, 2},
		{"frames", true, false, 2},
		{"frames while quiet", true, true, 2},
		{"quiet", false, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newEventBus(tt.frames, tt.quiet).Subscribers(); got != tt.want {
				t.Errorf("Subscribers = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatRun(t *testing.T) {
	id := uuid.MustParse("01920000-0000-7000-8000-000000000001")
	view := runView{RunData: &store.RunData{
		ID:           id,
		Goal:         "Analyze https://youtu.be/x",
		Status:       store.RunStatusCompleted,
		Observations: []string{"Elbow drops early"},
		Turns:        []transcript.Turn{{Seq: 0, Role: transcript.RoleGoal, Text: "Analyze https://youtu.be/x"}},
		StartedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}

	out, err := formatRun(view, "yaml")
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	for _, want := range []string{id.String(), "status: completed", "- Elbow drops early", "round_trips: 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("yaml output missing %q:\n%s", want, out)
		}
	}

	out, err = formatRun(view, "json")
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if decoded["goal"] != "Analyze https://youtu.be/x" {
		t.Errorf("goal = %v", decoded["goal"])
	}
	if _, ok := decoded["spans"]; ok {
		t.Error("empty spans should be omitted")
	}

	if _, err := formatRun(view, "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRedactConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.APIKey = "sk-ant-0123456789abcdef"
	cfg.Store.DSN = "postgres://u:p@db/vidcoach"
	cfg.Telemetry.Headers = map[string]string{"authorization": "Bearer abc"}

	raw := redactConfig(cfg)
	provider := raw["provider"].(map[string]any)
	if got := provider["api_key"]; got != "sk-a****cdef" {
		t.Errorf("api_key = %v", got)
	}
	if got := provider["model"]; got != cfg.Provider.Model {
		t.Errorf("model should not be redacted, got %v", got)
	}
	st := raw["store"].(map[string]any)
	if strings.Contains(st["dsn"].(string), "u:p") {
		t.Errorf("dsn not redacted: %v", st["dsn"])
	}
	headers := raw["telemetry"].(map[string]any)["headers"].(map[string]any)
	if headers["authorization"] != "Bear**** abc" {
		t.Errorf("header = %v", headers["authorization"])
	}
}

func TestTruncateAndPadCell(t *testing.T) {
	if got := truncateCell("short", 10); got != "short" {
		t.Errorf("truncateCell = %q", got)
	}
	if got := truncateCell("one\ntwo   three", 40); got != "one two three" {
		t.Errorf("whitespace not collapsed: %q", got)
	}
	if got := truncateCell("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncateCell = %q", got)
	}
	// Wide runes take two cells each.
	if got := truncateCell("日本語のテキスト", 7); got != "日本..." {
		t.Errorf("wide truncate = %q", got)
	}
	if got := padCell("ab", 5); got != "ab   " {
		t.Errorf("padCell = %q", got)
	}
}

func TestBuildRunData_NotStarted(t *testing.T) {
	loop := agent.NewLoop(agent.LoopConfig{})
	run := buildRunData(loop, config.Default(), "goal", "anthropic", time.Now(), nil, agent.ErrEmptyGoal)
	if run != nil {
		t.Errorf("expected nil for a run that never started, got %+v", run)
	}
}

func TestRenderAnswer(t *testing.T) {
	out := renderAnswer(&agent.FinalAnswer{
		RunID:        "run-1",
		Observations: []string{"Contact point is late", "Weight stays on the back foot"},
		Usage:        usage.Record{InputUnits: 1200, OutputUnits: 300, RoundTrips: 4},
	}, "claude-sonnet-4-5")
	for _, want := range []string{"1.", "2.", "Contact point is late", "4 round-trips", "run-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
