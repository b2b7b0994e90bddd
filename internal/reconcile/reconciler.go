// ABOUTME: Device reconciliation engine keyed on hardware address
// ABOUTME: Full sync plus single-device register, update, and delete

package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/netwarden/netwarden/internal/store"
)

// ReportedDevice is one device as the agent sees it right now.
type ReportedDevice struct {
	Name            string
	HardwareAddress string
	Status          store.DeviceStatus
	NetworkAddress  string
}

// DeviceUpdate is a partial update; nil fields are left untouched.
type DeviceUpdate struct {
	Name           *string
	Status         *store.DeviceStatus
	NetworkAddress *string
}

// SyncResult counts what one sync changed.
type SyncResult struct {
	Created int
	Updated int
	Deleted int
}

// Reconciler converges an owner's stored devices onto agent reports.
type Reconciler struct {
	devices store.DeviceStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewReconciler creates a reconciler backed by the given device store.
func NewReconciler(devices store.DeviceStore) *Reconciler {
	return &Reconciler{
		devices: devices,
		logger:  slog.Default().With("component", "reconcile"),
		now:     time.Now,
	}
}

// Sync replaces the owner's hardware-addressed device set with the
// reported snapshot. Reported devices are matched to stored ones by
// hardware address, case-insensitively: matches are updated, unmatched
// reports are created, and stored hardware-addressed devices the agent
// no longer reports are deleted along with their network state. Stored
// devices without a hardware address are invisible to this diff.
//
// The payload is validated up front and rejected whole on any failure;
// the diff itself runs in one transaction, so a sync either applies
// completely or not at all.
func (r *Reconciler) Sync(ctx context.Context, ownerID string, reported []ReportedDevice) (SyncResult, error) {
	if err := validateSync(reported); err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	err := r.devices.DeviceTx(ctx, func(ops store.DeviceOps) error {
		var txErr error
		result, txErr = r.applySync(ctx, ops, ownerID, reported)
		return txErr
	})
	if err != nil {
		return SyncResult{}, err
	}

	r.logger.Info("device sync applied",
		"owner_id", ownerID,
		"reported", len(reported),
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
	)
	return result, nil
}

func (r *Reconciler) applySync(ctx context.Context, ops store.DeviceOps, ownerID string, reported []ReportedDevice) (SyncResult, error) {
	existing, err := ops.ListDevices(ctx, ownerID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("listing devices: %w", err)
	}

	unmatched := make(map[string]*store.Device)
	for _, dev := range existing {
		if dev.MACAddress != nil {
			unmatched[strings.ToLower(*dev.MACAddress)] = dev
		}
	}

	var result SyncResult
	now := r.now().UTC()

	for _, rep := range reported {
		mac := strings.ToLower(rep.HardwareAddress)
		if mac != "" {
			if dev, ok := unmatched[mac]; ok {
				delete(unmatched, mac)
				if err := r.applyReport(ctx, ops, dev, rep, now); err != nil {
					return SyncResult{}, err
				}
				result.Updated++
				continue
			}
		}
		if _, err := r.createFromReport(ctx, ops, ownerID, rep, now); err != nil {
			return SyncResult{}, err
		}
		result.Created++
	}

	for _, dev := range unmatched {
		if err := ops.DeleteDevice(ctx, dev.ID, ownerID); err != nil {
			return SyncResult{}, fmt.Errorf("deleting device %s: %w", dev.ID, err)
		}
		result.Deleted++
	}

	return result, nil
}

// Register creates or refreshes a single device by its hardware address.
// The returned bool is true when a new device was created and false when
// an existing one with the same address was updated in place. A report
// with no hardware address always creates, since there is nothing to
// match against.
func (r *Reconciler) Register(ctx context.Context, ownerID string, rep ReportedDevice) (*store.Device, bool, error) {
	if err := validateOne(rep); err != nil {
		return nil, false, err
	}

	var (
		device  *store.Device
		created bool
	)
	err := r.devices.DeviceTx(ctx, func(ops store.DeviceOps) error {
		now := r.now().UTC()

		if rep.HardwareAddress != "" {
			existing, err := ops.GetDeviceByMAC(ctx, ownerID, rep.HardwareAddress)
			switch {
			case err == nil:
				if err := r.applyReport(ctx, ops, existing, rep, now); err != nil {
					return err
				}
				device = existing
				return nil
			case err != store.ErrNotFound:
				return fmt.Errorf("looking up device by hardware address: %w", err)
			}
		}

		dev, err := r.createFromReport(ctx, ops, ownerID, rep, now)
		if err != nil {
			return err
		}
		device = dev
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return device, created, nil
}

// Update applies a partial update to one of the owner's devices. Only
// fields present in the update are written; a present network address
// replaces the device's network state record.
func (r *Reconciler) Update(ctx context.Context, ownerID, deviceID string, upd DeviceUpdate) (*store.Device, error) {
	if err := validateUpdate(upd); err != nil {
		return nil, err
	}

	var device *store.Device
	err := r.devices.DeviceTx(ctx, func(ops store.DeviceOps) error {
		dev, err := ops.GetDevice(ctx, deviceID, ownerID)
		if err != nil {
			return err
		}

		now := r.now().UTC()
		if upd.Name != nil {
			dev.Name = *upd.Name
		}
		if upd.Status != nil {
			dev.Status = *upd.Status
		}
		dev.LastSeenAt = &now

		if err := ops.UpdateDevice(ctx, dev); err != nil {
			return fmt.Errorf("updating device: %w", err)
		}

		if upd.NetworkAddress != nil {
			addr := *upd.NetworkAddress
			state := &store.NetworkState{
				DeviceID:      dev.ID,
				IPAddress:     &addr,
				Authoritative: true,
				UpdatedAt:     now,
			}
			if err := ops.UpsertNetworkState(ctx, state); err != nil {
				return fmt.Errorf("updating network state: %w", err)
			}
		}

		device = dev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

// Delete removes one of the owner's devices and, through the store's
// cascade, its network state.
func (r *Reconciler) Delete(ctx context.Context, ownerID, deviceID string) error {
	return r.devices.DeleteDevice(ctx, deviceID, ownerID)
}

// applyReport overwrites a stored device with a fresh report and
// refreshes its network state when an address was reported.
func (r *Reconciler) applyReport(ctx context.Context, ops store.DeviceOps, dev *store.Device, rep ReportedDevice, now time.Time) error {
	dev.Name = rep.Name
	dev.Status = statusOrDefault(rep.Status)
	dev.LastSeenAt = &now

	if err := ops.UpdateDevice(ctx, dev); err != nil {
		return fmt.Errorf("updating device %s: %w", dev.ID, err)
	}
	return r.recordNetworkState(ctx, ops, dev.ID, rep.NetworkAddress, now)
}

// createFromReport inserts a new device for a report.
func (r *Reconciler) createFromReport(ctx context.Context, ops store.DeviceOps, ownerID string, rep ReportedDevice, now time.Time) (*store.Device, error) {
	dev := &store.Device{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Name:       rep.Name,
		Status:     statusOrDefault(rep.Status),
		LastSeenAt: &now,
		CreatedAt:  now,
	}
	if rep.HardwareAddress != "" {
		mac := strings.ToLower(rep.HardwareAddress)
		dev.MACAddress = &mac
	}

	if err := ops.CreateDevice(ctx, dev); err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}
	if err := r.recordNetworkState(ctx, ops, dev.ID, rep.NetworkAddress, now); err != nil {
		return nil, err
	}
	return dev, nil
}

func (r *Reconciler) recordNetworkState(ctx context.Context, ops store.DeviceOps, deviceID, addr string, now time.Time) error {
	if addr == "" {
		return nil
	}
	state := &store.NetworkState{
		DeviceID:      deviceID,
		IPAddress:     &addr,
		Authoritative: true,
		UpdatedAt:     now,
	}
	if err := ops.UpsertNetworkState(ctx, state); err != nil {
		return fmt.Errorf("recording network state for %s: %w", deviceID, err)
	}
	return nil
}

// statusOrDefault fills the online default for reports that omit status.
func statusOrDefault(s store.DeviceStatus) store.DeviceStatus {
	if s == "" {
		return store.DeviceStatusOnline
	}
	return s
}
