// ABOUTME: Package documentation for the chat completions surface
// ABOUTME: Maps the OpenAI wire protocol onto the gateway's dispatch pipeline

// Package chatapi serves an OpenAI-compatible chat completions endpoint on
// top of the gateway's agent dispatch pipeline.
//
// A request flows through four stages: the normalizer flattens the protocol's
// messages array into a prompt, the run context resolver mints a run ID and
// session key, the orchestrator dispatches exactly once, and either the
// non-streaming builder or the streaming state machine renders the response.
// Streamed responses are closed by whichever terminal signal arrives first;
// the state machine guarantees a single terminal sentinel regardless.
package chatapi
