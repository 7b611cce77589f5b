// ABOUTME: Package documentation for the run-scoped event bus
// ABOUTME: Explains routing-table semantics and subscriber lifecycle

// Package bus provides in-memory pub/sub for run-scoped events.
//
// Producers (the dispatch pipeline) publish assistant text deltas and
// lifecycle transitions tagged with a run ID. Consumers subscribe per run and
// only receive events for that run, so concurrent requests never see each
// other's traffic. Subscriptions are explicit resources: every Subscribe must
// be paired with an Unsubscribe on all exit paths, and Unsubscribe is
// idempotent.
package bus
