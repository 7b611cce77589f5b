// ABOUTME: Loopback dispatcher for development and tests
// ABOUTME: Resolves slash commands synchronously and echoes everything else as a streamed agent run

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/openwire/internal/bus"
)

// LocalDispatcher is a stand-in for a real agent pipeline. Slash commands are
// answered synchronously through the sink with no bus traffic; other messages
// run a loopback "agent" that streams the echoed text as deltas on the bus
// before delivering the final reply.
type LocalDispatcher struct {
	bus    *bus.Bus
	logger *slog.Logger
}

// NewLocalDispatcher creates a loopback dispatcher publishing on b.
func NewLocalDispatcher(b *bus.Bus, logger *slog.Logger) *LocalDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalDispatcher{
		bus:    b,
		logger: logger.With("component", "local-dispatch"),
	}
}

// Dispatch implements Dispatcher.
func (d *LocalDispatcher) Dispatch(ctx context.Context, msg *Message, sink Sink) error {
	if msg.AllowCommands && strings.HasPrefix(msg.Body, "/") {
		return d.runCommand(msg, sink)
	}
	return d.runAgent(ctx, msg, sink)
}

// runCommand resolves a slash command synchronously. No lifecycle events are
// published: the run never reaches the agent.
func (d *LocalDispatcher) runCommand(msg *Message, sink Sink) error {
	cmd, rest, _ := strings.Cut(msg.Body, " ")
	d.logger.Debug("resolving command", "run_id", msg.RunID, "command", cmd)

	switch cmd {
	case "/ping":
		sink.Deliver(Reply{Kind: ReplyFinal, Text: "pong"})
	case "/echo":
		sink.Deliver(Reply{Kind: ReplyFinal, Text: strings.TrimSpace(rest)})
	case "/help":
		sink.Deliver(Reply{Kind: ReplyFinal, Text: "Commands: /ping, /echo <text>, /help"})
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

// runAgent emulates a model-backed run: lifecycle start, one delta per word,
// lifecycle end. The final text is also delivered through the sink, matching
// what a real pipeline does for history persistence.
func (d *LocalDispatcher) runAgent(ctx context.Context, msg *Message, sink Sink) error {
	d.bus.Publish(bus.Event{
		RunID:     msg.RunID,
		Stream:    bus.StreamLifecycle,
		Lifecycle: &bus.LifecycleData{Phase: bus.PhaseStart},
	})

	text := "You said: " + msg.Body
	words := strings.SplitAfter(text, " ")
	for _, w := range words {
		select {
		case <-ctx.Done():
			d.logger.Debug("run cancelled", "run_id", msg.RunID)
			d.bus.Publish(bus.Event{
				RunID:     msg.RunID,
				Stream:    bus.StreamLifecycle,
				Lifecycle: &bus.LifecycleData{Phase: bus.PhaseError, Error: "cancelled"},
			})
			return ctx.Err()
		default:
		}
		d.bus.Publish(bus.Event{
			RunID:     msg.RunID,
			Stream:    bus.StreamAssistant,
			Assistant: &bus.AssistantData{Delta: w},
		})
	}

	sink.Deliver(Reply{Kind: ReplyFinal, Text: text})
	d.bus.Publish(bus.Event{
		RunID:     msg.RunID,
		Stream:    bus.StreamLifecycle,
		Lifecycle: &bus.LifecycleData{Phase: bus.PhaseEnd},
	})
	return nil
}
