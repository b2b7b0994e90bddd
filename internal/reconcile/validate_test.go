// ABOUTME: Tests for reported-device field validation
// ABOUTME: Table-driven checks of hardware address, status, and IP rules

package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwarden/netwarden/internal/store"
)

func TestValidMAC(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"aa:bb:cc:dd:ee:ff", true},
		{"AA:BB:CC:DD:EE:FF", true},
		{"Aa:bB:0c:1d:2e:3f", true},
		{"aa:bb:cc:dd:ee", false},
		{"aa:bb:cc:dd:ee:ff:00", false},
		{"aa-bb-cc-dd-ee-ff", false},
		{"aabbccddeeff", false},
		{"gg:bb:cc:dd:ee:ff", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, ValidMAC(tc.in), "mac %q", tc.in)
	}
}

func TestValidIP(t *testing.T) {
	assert.True(t, ValidIP("192.168.1.1"))
	assert.True(t, ValidIP("::1"))
	assert.True(t, ValidIP("fe80::1"))
	assert.False(t, ValidIP("192.168.1.256"))
	assert.False(t, ValidIP("not-an-ip"))
	assert.False(t, ValidIP(""))
}

func TestValidateOne(t *testing.T) {
	err := validateOne(ReportedDevice{
		Name:            "router",
		HardwareAddress: "aa:bb:cc:dd:ee:ff",
		Status:          store.DeviceStatusOnline,
		NetworkAddress:  "192.168.1.1",
	})
	assert.NoError(t, err)

	// Optional fields may all be empty.
	assert.NoError(t, validateOne(ReportedDevice{Name: "bare"}))

	err = validateOne(ReportedDevice{
		Name:            "   ",
		HardwareAddress: "nope",
		Status:          "sleeping",
		NetworkAddress:  "nope",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "hardwareAddress")
	assert.Contains(t, verr.Fields, "status")
	assert.Contains(t, verr.Fields, "networkAddress")
}

func TestValidateSync_FieldPrefixes(t *testing.T) {
	err := validateSync([]ReportedDevice{
		{Name: "ok", HardwareAddress: "aa:bb:cc:dd:ee:01"},
		{Name: "", HardwareAddress: "bad"},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "devices[1].name")
	assert.Contains(t, verr.Fields, "devices[1].hardwareAddress")
	assert.NotContains(t, verr.Fields, "devices[0].name")
}

func TestValidateUpdate(t *testing.T) {
	name := "renamed"
	status := store.DeviceStatusAway
	addr := "10.0.0.1"
	assert.NoError(t, validateUpdate(DeviceUpdate{Name: &name, Status: &status, NetworkAddress: &addr}))

	// An all-nil update is a valid no-op.
	assert.NoError(t, validateUpdate(DeviceUpdate{}))

	empty := " "
	badStatus := store.DeviceStatus("hibernating")
	badAddr := "localhost"
	err := validateUpdate(DeviceUpdate{Name: &empty, Status: &badStatus, NetworkAddress: &badAddr})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: FieldErrors{
		"status": {"must be one of online, offline, away"},
		"name":   {"name is required"},
	}}
	assert.Equal(t, "validation failed: name, status", err.Error())
}
