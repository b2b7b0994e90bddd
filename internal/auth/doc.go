// ABOUTME: Package auth handles both credential surfaces of the hub
// ABOUTME: Opaque hashed agent tokens and JWT dashboard sessions

// Package auth implements authentication for the two kinds of caller the
// hub serves: agents presenting opaque bearer tokens (hashed at rest,
// verified by hash lookup) and dashboard users presenting short-lived
// JWT session tokens obtained by password login.
package auth
