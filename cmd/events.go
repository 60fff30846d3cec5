package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/nextlevelbuilder/vidcoach/internal/agent"
	"github.com/nextlevelbuilder/vidcoach/internal/bus"
	"github.com/nextlevelbuilder/vidcoach/pkg/protocol"
)

// newEventBus builds the run event fan-out for analyze. Every event is logged
// at debug level. With asFrames set, events are also written as protocol
// frames, one JSON line each, on stderr; otherwise capability progress is
// printed unless quiet.
func newEventBus(asFrames, quiet bool) *bus.EventBus {
	b := bus.New()
	b.Subscribe("log", func(e bus.Event) {
		slog.Debug("run event", "event", e.Name, "run_id", e.RunID)
	})
	switch {
	case asFrames:
		b.Subscribe("frames", frameWriter(os.Stderr))
	case !quiet:
		b.Subscribe("progress", progressWriter(os.Stderr))
	}
	return b
}

// publishTo adapts the bus to the loop's OnEvent callback.
func publishTo(b *bus.EventBus) func(agent.AgentEvent) {
	return func(evt agent.AgentEvent) {
		b.Broadcast(bus.Event{Name: evt.Type, RunID: evt.RunID, Payload: evt.Payload})
	}
}

// frameWriter encodes each event as a sequenced protocol.EventFrame.
func frameWriter(w io.Writer) bus.EventHandler {
	var mu sync.Mutex
	var seq int64
	enc := json.NewEncoder(w)
	return func(e bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		seq++
		frame, err := protocol.NewEventFrame(seq, e.Name, e.RunID, e.Payload)
		if err != nil {
			slog.Warn("event frame encode failed", "event", e.Name, "error", err)
			return
		}
		enc.Encode(frame)
	}
}

// progressWriter prints one short line per capability call and result.
func progressWriter(w io.Writer) bus.EventHandler {
	return func(e bus.Event) {
		switch p := e.Payload.(type) {
		case agent.ToolCallPayload:
			fmt.Fprintf(w, "%s %s\n", styleMuted.Render("→"), p.Capability)
		case agent.ToolResultPayload:
			if p.Status == "ok" {
				fmt.Fprintf(w, "%s %s %s\n", styleOK.Render("✓"), p.Capability,
					styleMuted.Render(fmt.Sprintf("(%dms)", p.DurationMS)))
				return
			}
			fmt.Fprintf(w, "%s %s %s\n", styleErr.Render("✗"), p.Capability,
				styleMuted.Render(truncateCell(p.Error, 120)))
		}
	}
}
