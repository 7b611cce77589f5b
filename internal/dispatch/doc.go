// ABOUTME: Package documentation for the dispatch collaborator contract
// ABOUTME: Describes the boundary between protocol adapters and the agent pipeline

// Package dispatch defines the contract between protocol adapters and the
// message-dispatch pipeline, plus a loopback implementation for development.
//
// Adapters construct a Message, attach a Sink for reply fragments, and call
// Dispatch exactly once per request. The pipeline is free to resolve the
// message synchronously (slash commands) or to start a model-backed run that
// streams token deltas over the event bus.
package dispatch
