// ABOUTME: SQLite implementation for device and network state persistence
// ABOUTME: Device operations run on a dbtx so they work inside and outside a transaction

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const deviceColumns = `id, owner_id, name, mac_address, status, last_seen_at, created_at`

// deviceOps implements DeviceOps against either *sql.DB or *sql.Tx.
type deviceOps struct {
	q      dbtx
	logger *slog.Logger
}

// ops returns device operations bound to the store's connection.
func (s *SQLiteStore) ops() *deviceOps {
	return &deviceOps{q: s.db, logger: s.logger}
}

// ListDevices returns all of an owner's devices ordered by creation time.
func (s *SQLiteStore) ListDevices(ctx context.Context, ownerID string) ([]*Device, error) {
	return s.ops().ListDevices(ctx, ownerID)
}

// GetDevice retrieves an owner's device by ID.
func (s *SQLiteStore) GetDevice(ctx context.Context, id, ownerID string) (*Device, error) {
	return s.ops().GetDevice(ctx, id, ownerID)
}

// GetDeviceByMAC retrieves an owner's device by hardware address.
func (s *SQLiteStore) GetDeviceByMAC(ctx context.Context, ownerID, mac string) (*Device, error) {
	return s.ops().GetDeviceByMAC(ctx, ownerID, mac)
}

// CreateDevice inserts a new device.
func (s *SQLiteStore) CreateDevice(ctx context.Context, device *Device) error {
	return s.ops().CreateDevice(ctx, device)
}

// UpdateDevice updates an existing device's mutable fields.
func (s *SQLiteStore) UpdateDevice(ctx context.Context, device *Device) error {
	return s.ops().UpdateDevice(ctx, device)
}

// DeleteDevice removes an owner's device and its network state.
func (s *SQLiteStore) DeleteDevice(ctx context.Context, id, ownerID string) error {
	return s.ops().DeleteDevice(ctx, id, ownerID)
}

// UpsertNetworkState creates or refreshes a device's network state row.
func (s *SQLiteStore) UpsertNetworkState(ctx context.Context, state *NetworkState) error {
	return s.ops().UpsertNetworkState(ctx, state)
}

// GetNetworkState retrieves the network state row for a device.
func (s *SQLiteStore) GetNetworkState(ctx context.Context, deviceID string) (*NetworkState, error) {
	return s.ops().GetNetworkState(ctx, deviceID)
}

// ListNetworkStates returns network state rows for an owner's devices.
func (s *SQLiteStore) ListNetworkStates(ctx context.Context, ownerID string) (map[string]*NetworkState, error) {
	return s.ops().ListNetworkStates(ctx, ownerID)
}

func (o *deviceOps) ListDevices(ctx context.Context, ownerID string) ([]*Device, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var devices []*Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

func (o *deviceOps) GetDevice(ctx context.Context, id, ownerID string) (*Device, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ? AND owner_id = ?`, id, ownerID)
	return scanDevice(row)
}

func (o *deviceOps) GetDeviceByMAC(ctx context.Context, ownerID, mac string) (*Device, error) {
	// Hardware addresses are stored lowercased; match accordingly.
	row := o.q.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE owner_id = ? AND mac_address = ?`,
		ownerID, strings.ToLower(mac))
	return scanDevice(row)
}

func (o *deviceOps) CreateDevice(ctx context.Context, device *Device) error {
	var mac any
	if device.MACAddress != nil {
		mac = strings.ToLower(*device.MACAddress)
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO devices (id, owner_id, name, mac_address, status, last_seen_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		device.ID,
		device.OwnerID,
		device.Name,
		mac,
		string(device.Status),
		formatNullTime(device.LastSeenAt),
		formatTime(device.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}

	o.logger.Debug("created device", "id", device.ID, "owner_id", device.OwnerID, "name", device.Name)
	return nil
}

func (o *deviceOps) UpdateDevice(ctx context.Context, device *Device) error {
	result, err := o.q.ExecContext(ctx, `
		UPDATE devices
		SET name = ?, status = ?, last_seen_at = ?
		WHERE id = ? AND owner_id = ?
	`,
		device.Name,
		string(device.Status),
		formatNullTime(device.LastSeenAt),
		device.ID,
		device.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	o.logger.Debug("updated device", "id", device.ID, "status", device.Status)
	return nil
}

func (o *deviceOps) DeleteDevice(ctx context.Context, id, ownerID string) error {
	result, err := o.q.ExecContext(ctx,
		`DELETE FROM devices WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	o.logger.Debug("deleted device", "id", id)
	return nil
}

func (o *deviceOps) UpsertNetworkState(ctx context.Context, state *NetworkState) error {
	var ip any
	if state.IPAddress != nil {
		ip = *state.IPAddress
	}

	_, err := o.q.ExecContext(ctx, `
		INSERT INTO network_states (device_id, ip_address, is_authoritative, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			ip_address = excluded.ip_address,
			is_authoritative = excluded.is_authoritative,
			updated_at = excluded.updated_at
	`, state.DeviceID, ip, state.Authoritative, formatTime(state.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting network state: %w", err)
	}

	o.logger.Debug("upserted network state", "device_id", state.DeviceID)
	return nil
}

func (o *deviceOps) GetNetworkState(ctx context.Context, deviceID string) (*NetworkState, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT device_id, ip_address, is_authoritative, updated_at
		FROM network_states WHERE device_id = ?
	`, deviceID)

	return scanNetworkState(row)
}

func (o *deviceOps) ListNetworkStates(ctx context.Context, ownerID string) (map[string]*NetworkState, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT ns.device_id, ns.ip_address, ns.is_authoritative, ns.updated_at
		FROM network_states ns
		JOIN devices d ON d.id = ns.device_id
		WHERE d.owner_id = ?
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying network states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	states := make(map[string]*NetworkState)
	for rows.Next() {
		state, err := scanNetworkState(rows)
		if err != nil {
			return nil, err
		}
		states[state.DeviceID] = state
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating network state rows: %w", err)
	}
	return states, nil
}

func scanDevice(row rowScanner) (*Device, error) {
	var device Device
	var mac sql.NullString
	var lastSeenAt sql.NullString
	var status, createdAt string

	err := row.Scan(
		&device.ID,
		&device.OwnerID,
		&device.Name,
		&mac,
		&status,
		&lastSeenAt,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning device row: %w", err)
	}

	device.Status = DeviceStatus(status)
	if mac.Valid {
		device.MACAddress = &mac.String
	}
	device.LastSeenAt = parseNullTime(lastSeenAt)

	device.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &device, nil
}

func scanNetworkState(row rowScanner) (*NetworkState, error) {
	var state NetworkState
	var ip sql.NullString
	var updatedAt string

	err := row.Scan(&state.DeviceID, &ip, &state.Authoritative, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning network state row: %w", err)
	}

	if ip.Valid {
		state.IPAddress = &ip.String
	}

	state.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &state, nil
}

// formatNullTime renders an optional timestamp for storage.
func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
