// ABOUTME: Package reconcile converges stored devices onto agent reports
// ABOUTME: MAC-keyed diffing with create/update/delete plus network state upkeep

// Package reconcile applies agent device reports to the store. A full
// sync diffs the reported snapshot against the owner's stored devices by
// hardware address and applies the minimal create/update/delete set in
// one transaction; single-device operations are degenerate cases of the
// same matching rule. Devices with no hardware address cannot be
// correlated between reports and are left untouched by sync.
package reconcile
