// ABOUTME: Package documentation for bearer authentication
// ABOUTME: Covers JWT and API-key verification plus the HTTP middleware

// Package auth verifies bearer tokens presented to the gateway's HTTP API.
// Two credential forms are accepted: static API keys from config and HS256
// JWTs minted by the gateway itself. The HTTP middleware wires verification
// in front of protected endpoints and records the client identity on the
// request context.
package auth
