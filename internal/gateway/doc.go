// ABOUTME: Package documentation for the gateway orchestrator
// ABOUTME: Describes component wiring and listener modes

// Package gateway assembles the openwire-gateway server: session registry,
// event bus, dispatch pipeline, bearer auth, and the HTTP API. It serves over
// a plain TCP listener or joins a tailnet via tsnet, optionally with
// Tailscale-provisioned TLS or a public funnel.
package gateway
