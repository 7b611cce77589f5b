// ABOUTME: Package documentation for session key policy and registry
// ABOUTME: Explains how external conversations map onto gateway sessions

// Package session derives session keys for the chat-completion surface and
// persists the key-to-session binding in SQLite. A session key is stable for
// one external conversation; the registry guarantees the same key always
// resolves to the same session ID across requests and restarts.
package session
