// ABOUTME: Package store provides persistence for netwarden hub entities
// ABOUTME: Agent tokens with bindings, devices, network state, dashboard users

// Package store defines the persistence types and interfaces for the hub,
// plus a SQLite implementation. Interfaces are split per concern (tokens,
// devices, users) so callers depend only on what they use.
package store
