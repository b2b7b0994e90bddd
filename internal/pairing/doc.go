// ABOUTME: Package pairing binds each agent token to one physical installation
// ABOUTME: Heartbeats drive the unbound/pending/approved states and mismatch detection

// Package pairing implements the trust handshake between a token and the
// agent installation that claims it. A token starts unbound; the first
// heartbeat binds it to the reporting installation and leaves it pending
// until a human approves. A heartbeat from any other installation is
// reported as a mismatch and never disturbs the stored binding.
package pairing
