// ABOUTME: Field validation for reported devices and partial updates
// ABOUTME: Whole-payload atomic rejection with per-field error detail

package reconcile

import (
	"fmt"
	"net/netip"
	"regexp"
	"sort"
	"strings"

	"github.com/netwarden/netwarden/internal/store"
)

// macPattern matches six colon-separated hexadecimal octets.
var macPattern = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)

// FieldErrors maps a field name to its validation failures.
type FieldErrors map[string][]string

// add appends a failure message for a field.
func (fe FieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// ValidationError rejects a whole request before any mutation happens.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// ValidMAC reports whether s is a well-formed hardware address.
func ValidMAC(s string) bool {
	return macPattern.MatchString(s)
}

// ValidIP reports whether s is a syntactically valid IPv4 or IPv6 literal.
func ValidIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// validateReported checks one reported device, recording failures under
// the given field prefix ("" for single-device requests,
// "devices[i]." inside a sync payload).
func validateReported(prefix string, rep ReportedDevice, errs FieldErrors) {
	if strings.TrimSpace(rep.Name) == "" {
		errs.add(prefix+"name", "name is required")
	}
	if rep.HardwareAddress != "" && !ValidMAC(rep.HardwareAddress) {
		errs.add(prefix+"hardwareAddress", "must be six colon-separated hex octets")
	}
	if rep.Status != "" && !store.ValidDeviceStatus(rep.Status) {
		errs.add(prefix+"status", "must be one of online, offline, away")
	}
	if rep.NetworkAddress != "" && !ValidIP(rep.NetworkAddress) {
		errs.add(prefix+"networkAddress", "must be a valid IPv4 or IPv6 address")
	}
}

// validateSync checks a whole sync payload, including duplicate hardware
// addresses, which would otherwise let one sync create two devices with
// the same address in a single owner's scope.
func validateSync(reported []ReportedDevice) error {
	errs := make(FieldErrors)
	seen := make(map[string]bool)

	for i, rep := range reported {
		prefix := fmt.Sprintf("devices[%d].", i)
		validateReported(prefix, rep, errs)

		if rep.HardwareAddress != "" && ValidMAC(rep.HardwareAddress) {
			mac := strings.ToLower(rep.HardwareAddress)
			if seen[mac] {
				errs.add(prefix+"hardwareAddress", "duplicate hardware address in payload")
			}
			seen[mac] = true
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// validateOne checks a single reported device.
func validateOne(rep ReportedDevice) error {
	errs := make(FieldErrors)
	validateReported("", rep, errs)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// validateUpdate checks the fields present in a partial update.
func validateUpdate(upd DeviceUpdate) error {
	errs := make(FieldErrors)
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		errs.add("name", "name must not be empty")
	}
	if upd.Status != nil && !store.ValidDeviceStatus(*upd.Status) {
		errs.add("status", "must be one of online, offline, away")
	}
	if upd.NetworkAddress != nil && !ValidIP(*upd.NetworkAddress) {
		errs.add("networkAddress", "must be a valid IPv4 or IPv6 address")
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
