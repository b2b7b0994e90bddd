// ABOUTME: Package api is the hub's HTTP surface for agents and the dashboard
// ABOUTME: JSON handlers over the vault, pairing guard, and reconciler

// Package api serves the hub's HTTP API. Agent routes authenticate with
// an opaque bearer token and carry heartbeats and device reports;
// dashboard routes authenticate with a JWT session and manage
// credentials, bindings, and the device inventory. Both surfaces speak
// JSON and share one error envelope.
package api
