// ABOUTME: Tests for the loopback dispatcher
// ABOUTME: Verifies command handling, streamed agent runs, and cancellation

package dispatch

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/openwire/internal/bus"
)

// collectSink records delivered replies.
type collectSink struct {
	replies []Reply
}

func (s *collectSink) Deliver(reply Reply) {
	s.replies = append(s.replies, reply)
}

func TestDispatchPingCommand(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	d := NewLocalDispatcher(b, nil)

	var replies []Reply
	sink := SinkFunc(func(reply Reply) { replies = append(replies, reply) })
	err := d.Dispatch(context.Background(), &Message{
		RunID:         "run-1",
		Body:          "/ping",
		AllowCommands: true,
	}, sink)

	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "pong", replies[0].Text)
	assert.Equal(t, ReplyFinal, replies[0].Kind)
}

func TestDispatchUnknownCommand(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	d := NewLocalDispatcher(b, nil)

	err := d.Dispatch(context.Background(), &Message{
		RunID:         "run-1",
		Body:          "/bogus",
		AllowCommands: true,
	}, &collectSink{})

	assert.Error(t, err)
}

func TestDispatchCommandPublishesNoLifecycle(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	d := NewLocalDispatcher(b, nil)

	ch, subID := b.Subscribe("run-1")
	err := d.Dispatch(context.Background(), &Message{
		RunID:         "run-1",
		Body:          "/ping",
		AllowCommands: true,
	}, &collectSink{})
	require.NoError(t, err)
	b.Unsubscribe("run-1", subID)

	count := 0
	for range ch {
		count++
	}
	assert.Zero(t, count, "commands must not publish bus events")
}

func TestDispatchAgentRunStreamsDeltas(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	d := NewLocalDispatcher(b, nil)

	ch, subID := b.Subscribe("run-1")
	sink := &collectSink{}
	err := d.Dispatch(context.Background(), &Message{
		RunID: "run-1",
		Body:  "hello there",
	}, sink)
	require.NoError(t, err)
	b.Unsubscribe("run-1", subID)

	var deltas strings.Builder
	var phases []bus.Phase
	for ev := range ch {
		switch ev.Stream {
		case bus.StreamAssistant:
			deltas.WriteString(ev.Assistant.Delta)
		case bus.StreamLifecycle:
			phases = append(phases, ev.Lifecycle.Phase)
		}
	}

	assert.Equal(t, "You said: hello there", deltas.String())
	assert.Equal(t, []bus.Phase{bus.PhaseStart, bus.PhaseEnd}, phases)
	require.Len(t, sink.replies, 1)
	assert.Equal(t, "You said: hello there", sink.replies[0].Text)
}

func TestDispatchSlashWithoutCommandPermission(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	d := NewLocalDispatcher(b, nil)

	// With commands disallowed, "/ping" goes through the agent path
	sink := &collectSink{}
	err := d.Dispatch(context.Background(), &Message{
		RunID: "run-1",
		Body:  "/ping",
	}, sink)
	require.NoError(t, err)
	require.Len(t, sink.replies, 1)
	assert.Equal(t, "You said: /ping", sink.replies[0].Text)
}

func TestDispatchCancelledContext(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	d := NewLocalDispatcher(b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Dispatch(ctx, &Message{RunID: "run-1", Body: "hello"}, &collectSink{})
	assert.ErrorIs(t, err, context.Canceled)
}
