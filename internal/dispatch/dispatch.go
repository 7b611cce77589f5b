// ABOUTME: Contract between the protocol adapters and the dispatch pipeline
// ABOUTME: Defines the canonical message context, reply fragments, and Dispatcher interface

package dispatch

import "context"

// ReplyKind classifies a reply fragment delivered through a Sink.
type ReplyKind string

const (
	// ReplyFinal marks text that belongs in the final answer.
	ReplyFinal ReplyKind = "final"

	// ReplyInterim marks provisional text (progress notes, partial drafts)
	// that must not be accumulated into the final answer.
	ReplyInterim ReplyKind = "interim"
)

// Reply is one reply fragment produced by the dispatch pipeline.
type Reply struct {
	Kind ReplyKind
	Text string
}

// Sink receives reply fragments as the pipeline produces them.
// Implementations must be safe for concurrent Deliver calls.
type Sink interface {
	Deliver(reply Reply)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(reply Reply)

// Deliver implements Sink.
func (f SinkFunc) Deliver(reply Reply) { f(reply) }

// Turn is one prior conversational turn supplied as context.
type Turn struct {
	Sender string
	Body   string
}

// Message is the canonical message context consumed by a Dispatcher.
//
// Body is what the client conceptually sent. AgentBody is the variant handed
// to the agent for reasoning: the same text with a timestamp injected and any
// system preamble prepended. The two are kept separate so history and echoes
// reflect the client's words, not the augmented prompt.
type Message struct {
	RunID      string
	SessionKey string
	AgentID    string

	Body      string
	AgentBody string
	History   []Turn

	// AllowCommands permits slash-command interpretation of Body.
	AllowCommands bool
}

// Dispatcher interprets a message and produces replies. It may run a
// model-backed agent (publishing run events on the bus as it goes) or resolve
// a slash command synchronously with no bus traffic at all. Dispatch returns
// once the pipeline is idle: every reply has been delivered to the sink.
//
// Implementations must observe ctx cancellation and stop emitting promptly;
// callers tolerate a small number of late events after cancellation.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *Message, sink Sink) error
}
