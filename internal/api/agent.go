// ABOUTME: Agent-facing handlers for heartbeats and device reports
// ABOUTME: All routes run behind bearer token authentication

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/netwarden/netwarden/internal/auth"
	"github.com/netwarden/netwarden/internal/reconcile"
	"github.com/netwarden/netwarden/internal/store"
)

// heartbeatRequest is the identity an agent presents on every check-in.
type heartbeatRequest struct {
	InstallationID  string `json:"installationId"`
	HardwareAddress string `json:"hardwareAddress"`
	Hostname        string `json:"hostname"`
	NetworkAddress  string `json:"networkAddress,omitempty"`
}

type heartbeatResponse struct {
	Status                   string `json:"status"`
	ServerTime               string `json:"serverTime"`
	HeartbeatIntervalSeconds int    `json:"heartbeatIntervalSeconds"`
	SyncIntervalSeconds      int    `json:"syncIntervalSeconds"`
}

// reportedDeviceRequest is one device in a register or sync payload.
type reportedDeviceRequest struct {
	Name            string `json:"name"`
	HardwareAddress string `json:"hardwareAddress,omitempty"`
	Status          string `json:"status,omitempty"`
	NetworkAddress  string `json:"networkAddress,omitempty"`
}

func (r reportedDeviceRequest) toReported() reconcile.ReportedDevice {
	return reconcile.ReportedDevice{
		Name:            r.Name,
		HardwareAddress: r.HardwareAddress,
		Status:          store.DeviceStatus(r.Status),
		NetworkAddress:  r.NetworkAddress,
	}
}

type deviceUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Status         *string `json:"status,omitempty"`
	NetworkAddress *string `json:"networkAddress,omitempty"`
}

type syncRequest struct {
	Devices []reportedDeviceRequest `json:"devices"`
}

type syncResponse struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// deviceResponse is the device representation shared by agent and
// dashboard routes.
type deviceResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	HardwareAddress *string `json:"hardwareAddress"`
	Status          string  `json:"status"`
	NetworkAddress  *string `json:"networkAddress"`
	LastSeenAt      *string `json:"lastSeenAt"`
	CreatedAt       string  `json:"createdAt"`
}

func renderDevice(dev *store.Device, state *store.NetworkState) deviceResponse {
	resp := deviceResponse{
		ID:              dev.ID,
		Name:            dev.Name,
		HardwareAddress: dev.MACAddress,
		Status:          string(dev.Status),
		CreatedAt:       dev.CreatedAt.Format(time.RFC3339),
	}
	if dev.LastSeenAt != nil {
		ts := dev.LastSeenAt.Format(time.RFC3339)
		resp.LastSeenAt = &ts
	}
	if state != nil {
		resp.NetworkAddress = state.IPAddress
	}
	return resp
}

// handleHeartbeat runs the binding state machine for the authenticated
// credential and reports the outcome plus the check-in cadence.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	errs := make(reconcile.FieldErrors)
	if req.InstallationID == "" {
		errs["installationId"] = append(errs["installationId"], "installationId is required")
	}
	if req.HardwareAddress != "" && !reconcile.ValidMAC(req.HardwareAddress) {
		errs["hardwareAddress"] = append(errs["hardwareAddress"], "must be six colon-separated hex octets")
	}
	if req.NetworkAddress != "" && !reconcile.ValidIP(req.NetworkAddress) {
		errs["networkAddress"] = append(errs["networkAddress"], "must be a valid IPv4 or IPv6 address")
	}
	if len(errs) > 0 {
		writeDomainError(w, s.logger, &reconcile.ValidationError{Fields: errs})
		return
	}

	ident := store.AgentIdentity{
		InstallID: req.InstallationID,
		MAC:       req.HardwareAddress,
		Hostname:  req.Hostname,
		IP:        req.NetworkAddress,
	}
	status, err := s.guard.Heartbeat(r.Context(), scope.Token, ident)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, heartbeatResponse{
		Status:                   string(status),
		ServerTime:               s.now().UTC().Format(time.RFC3339),
		HeartbeatIntervalSeconds: int(s.heartbeatInterval.Seconds()),
		SyncIntervalSeconds:      int(s.syncInterval.Seconds()),
	})
}

// handleRegisterDevice creates or refreshes one device. 201 means a new
// device was created, 200 means an existing one with the same hardware
// address was updated in place.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	var req reportedDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dev, created, err := s.reconciler.Register(r.Context(), scope.UserID, req.toReported())
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, s.renderDeviceWithState(r, dev))
}

// handleUpdateDevice applies a partial update to one device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	var req deviceUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := reconcile.DeviceUpdate{
		Name:           req.Name,
		NetworkAddress: req.NetworkAddress,
	}
	if req.Status != nil {
		status := store.DeviceStatus(*req.Status)
		upd.Status = &status
	}

	dev, err := s.reconciler.Update(r.Context(), scope.UserID, r.PathValue("id"), upd)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s.renderDeviceWithState(r, dev))
}

// handleDeleteDevice removes one device and its network state.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	if err := s.reconciler.Delete(r.Context(), scope.UserID, r.PathValue("id")); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "device deleted"})
}

// handleSyncDevices replaces the owner's hardware-addressed device set
// with the reported snapshot.
func (s *Server) handleSyncDevices(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reported := make([]reconcile.ReportedDevice, len(req.Devices))
	for i, d := range req.Devices {
		reported[i] = d.toReported()
	}

	result, err := s.reconciler.Sync(r.Context(), scope.UserID, reported)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse(result))
}

// renderDeviceWithState attaches the device's network state, if any.
func (s *Server) renderDeviceWithState(r *http.Request, dev *store.Device) deviceResponse {
	state, err := s.store.GetNetworkState(r.Context(), dev.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("loading network state", "device_id", dev.ID, "error", err)
		}
		state = nil
	}
	return renderDevice(dev, state)
}
