package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewEventFrame(t *testing.T) {
	f, err := NewEventFrame(3, AgentEventToolCall, "run-1", map[string]any{"capability": "extract_video_frames"})
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}
	b, _ := json.Marshal(f)
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["v"] != float64(ProtocolVersion) || got["type"] != "tool.call" || got["seq"] != float64(3) {
		t.Errorf("unexpected frame: %s", b)
	}
	payload, _ := got["payload"].(map[string]any)
	if payload["capability"] != "extract_video_frames" {
		t.Errorf("payload not embedded: %s", b)
	}

	empty, _ := NewEventFrame(1, AgentEventRunFailed, "run-1", nil)
	if empty.Payload != nil {
		t.Error("nil payload should be omitted")
	}
}
