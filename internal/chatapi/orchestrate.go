// ABOUTME: Dispatch orchestration: builds the canonical message and collects final replies
// ABOUTME: Invoked exactly once per request; errors are converted, never propagated raw

package chatapi

import (
	"strings"
	"sync"
	"time"

	"github.com/2389/openwire/internal/dispatch"
)

// replySink accumulates final-kind reply fragments in delivery order.
// Interim fragments are discarded: only text the pipeline commits to belongs
// in the response.
type replySink struct {
	mu    sync.Mutex
	parts []string
}

// Deliver implements dispatch.Sink.
func (s *replySink) Deliver(reply dispatch.Reply) {
	if reply.Kind != dispatch.ReplyFinal {
		return
	}
	text := strings.TrimSpace(reply.Text)
	if text == "" {
		return
	}

	s.mu.Lock()
	s.parts = append(s.parts, text)
	s.mu.Unlock()
}

// Parts returns the accumulated fragments in delivery order.
func (s *replySink) Parts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.parts...)
}

// Text joins the accumulated fragments with a blank line.
func (s *replySink) Text() string {
	return strings.Join(s.Parts(), "\n\n")
}

// buildDispatchMessage constructs the canonical message context for the
// dispatch collaborator. The agent body carries the timestamp and system
// preamble; the plain body stays exactly what the client sent.
func buildDispatchMessage(prompt NormalizedPrompt, rc RunContext, now time.Time) *dispatch.Message {
	agentBody := "[" + now.UTC().Format(time.RFC3339) + "] " + prompt.Message
	if prompt.ExtraSystemPrompt != "" {
		agentBody = prompt.ExtraSystemPrompt + "\n\n" + agentBody
	}

	history := make([]dispatch.Turn, 0, len(prompt.History))
	for _, entry := range prompt.History {
		history = append(history, dispatch.Turn{Sender: entry.Sender, Body: entry.Body})
	}

	return &dispatch.Message{
		RunID:         rc.RunID,
		SessionKey:    rc.SessionKey,
		AgentID:       rc.AgentID,
		Body:          prompt.Message,
		AgentBody:     agentBody,
		History:       history,
		AllowCommands: true,
	}
}
