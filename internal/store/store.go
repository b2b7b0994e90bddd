// ABOUTME: Store types and interfaces for netwarden hub persistence
// ABOUTME: Defines AgentToken, Device, NetworkState, User and per-concern store interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist,
// or exists but is owned by a different user. Callers must not be able
// to distinguish the two cases.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when creating a user whose username is taken.
var ErrDuplicateUser = errors.New("username already exists")

// DeviceStatus is the reported reachability state of a device.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusAway    DeviceStatus = "away"
)

// ValidDeviceStatus reports whether s is a known device status.
func ValidDeviceStatus(s DeviceStatus) bool {
	switch s {
	case DeviceStatusOnline, DeviceStatusOffline, DeviceStatusAway:
		return true
	}
	return false
}

// AgentToken is a bearer credential issued to one user for one agent
// installation. The plaintext secret is never stored; only its SHA-256
// hash and a short display prefix survive issuance.
//
// The Agent* fields are the binding: the identity of the single physical
// installation this token is claimed by. They are null until the first
// heartbeat arrives, and Approved can only be true once AgentInstallID
// is set.
type AgentToken struct {
	ID           string
	OwnerID      string
	Name         string
	SecretHash   string
	SecretPrefix string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
	RevokedAt    *time.Time

	Approved         bool
	AgentInstallID   *string
	AgentMAC         *string
	AgentHostname    *string
	AgentIP          *string
	FirstConnectedAt *time.Time
	LastHeartbeatAt  *time.Time
}

// Revoked reports whether the token has been permanently revoked.
func (t *AgentToken) Revoked() bool { return t.RevokedAt != nil }

// Bound reports whether any agent installation has ever claimed this token.
func (t *AgentToken) Bound() bool { return t.AgentInstallID != nil }

// AgentIdentity is the self-reported identity an agent presents on every
// heartbeat. InstallID is the authoritative binding key; the remaining
// fields are descriptive metadata that may drift between heartbeats.
type AgentIdentity struct {
	InstallID string
	MAC       string
	Hostname  string
	IP        string // optional, empty if not reported
}

// TokenStore defines operations on agent tokens and their bindings.
type TokenStore interface {
	// CreateToken persists a newly issued token.
	CreateToken(ctx context.Context, token *AgentToken) error

	// GetToken retrieves a token by ID regardless of owner or revocation.
	GetToken(ctx context.Context, id string) (*AgentToken, error)

	// GetTokenForOwner retrieves a token by ID scoped to an owner.
	// Returns ErrNotFound for both missing and foreign-owned tokens.
	GetTokenForOwner(ctx context.Context, id, ownerID string) (*AgentToken, error)

	// GetActiveTokenByHash retrieves a non-revoked token by secret hash.
	GetActiveTokenByHash(ctx context.Context, hash string) (*AgentToken, error)

	// ListTokensByOwner returns all tokens belonging to an owner,
	// newest first.
	ListTokensByOwner(ctx context.Context, ownerID string) ([]*AgentToken, error)

	// TouchTokenUsed records the last authentication time. Advisory only;
	// failures are logged, never surfaced to the request that triggered it.
	TouchTokenUsed(ctx context.Context, id string, at time.Time) error

	// RevokeToken permanently revokes an owner's token. Returns ErrNotFound
	// if the token is missing, foreign-owned, or already revoked.
	RevokeToken(ctx context.Context, id, ownerID string, at time.Time) error

	// BindAgent claims an unbound token for the given identity. The write
	// is a compare-and-set on the unbound state: it returns false without
	// error when another heartbeat won the race first.
	BindAgent(ctx context.Context, id string, ident AgentIdentity, at time.Time) (bool, error)

	// UpdateAgentHeartbeat refreshes the drift-allowed identity metadata
	// and the heartbeat timestamp for the currently bound installation.
	UpdateAgentHeartbeat(ctx context.Context, id string, ident AgentIdentity, at time.Time) error

	// ApproveAgent marks an owner's bound token as approved.
	ApproveAgent(ctx context.Context, id, ownerID string) error

	// ResetAgentBinding clears the binding back to the unbound state so a
	// different installation may claim the token next.
	ResetAgentBinding(ctx context.Context, id, ownerID string) error
}

// Device is one monitored device in a user's scope, as last reported by
// that user's agent. MACAddress may be null for devices the agent cannot
// identify by hardware address; those are never matched or deleted by
// a sync.
type Device struct {
	ID         string
	OwnerID    string
	Name       string
	MACAddress *string
	Status     DeviceStatus
	LastSeenAt *time.Time
	CreatedAt  time.Time
}

// NetworkState is the one-to-one side record of a device's last-known
// network address. It exists only while its device exists.
type NetworkState struct {
	DeviceID      string
	IPAddress     *string
	Authoritative bool
	UpdatedAt     time.Time
}

// DeviceOps defines the device and network-state operations. The same
// operations are available directly on the store and inside a DeviceTx
// transaction.
type DeviceOps interface {
	ListDevices(ctx context.Context, ownerID string) ([]*Device, error)
	GetDevice(ctx context.Context, id, ownerID string) (*Device, error)
	GetDeviceByMAC(ctx context.Context, ownerID, mac string) (*Device, error)
	CreateDevice(ctx context.Context, device *Device) error
	UpdateDevice(ctx context.Context, device *Device) error

	// DeleteDevice removes an owner's device; its network state row is
	// cascade-deleted with it.
	DeleteDevice(ctx context.Context, id, ownerID string) error

	UpsertNetworkState(ctx context.Context, state *NetworkState) error
	GetNetworkState(ctx context.Context, deviceID string) (*NetworkState, error)

	// ListNetworkStates returns the network state rows for all of an
	// owner's devices, keyed by device ID.
	ListNetworkStates(ctx context.Context, ownerID string) (map[string]*NetworkState, error)
}

// DeviceStore is DeviceOps plus a transaction boundary. A full sync must
// run its read-diff-apply sequence inside a single DeviceTx call so two
// racing syncs for the same owner cannot interleave.
type DeviceStore interface {
	DeviceOps

	// DeviceTx runs fn inside one transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	DeviceTx(ctx context.Context, fn func(ops DeviceOps) error) error
}

// User is a dashboard account that owns tokens and devices.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// UserStore defines operations on dashboard users.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}
