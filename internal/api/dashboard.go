// ABOUTME: Dashboard handlers for login, credentials, bindings, and devices
// ABOUTME: Login uses bcrypt with a dummy-hash comparison against timing probes

package api

import (
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/netwarden/netwarden/internal/auth"
	"github.com/netwarden/netwarden/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type createCredentialRequest struct {
	Name string `json:"name"`
}

// createCredentialResponse carries the plaintext token. This is the only
// response that ever contains it.
type createCredentialResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Token     string `json:"token"`
	Prefix    string `json:"prefix"`
	CreatedAt string `json:"createdAt"`
}

type credentialResponse struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Prefix     string        `json:"prefix"`
	CreatedAt  string        `json:"createdAt"`
	LastUsedAt *string       `json:"lastUsedAt"`
	RevokedAt  *string       `json:"revokedAt"`
	Approved   bool          `json:"approved"`
	Agent      *agentBinding `json:"agent"`
}

// agentBinding is the bound installation's identity as last reported.
type agentBinding struct {
	InstallationID   string  `json:"installationId"`
	HardwareAddress  *string `json:"hardwareAddress"`
	Hostname         *string `json:"hostname"`
	NetworkAddress   *string `json:"networkAddress"`
	FirstConnectedAt *string `json:"firstConnectedAt"`
	LastHeartbeatAt  *string `json:"lastHeartbeatAt"`
}

func renderCredential(token *store.AgentToken) credentialResponse {
	resp := credentialResponse{
		ID:         token.ID,
		Name:       token.Name,
		Prefix:     token.SecretPrefix,
		CreatedAt:  token.CreatedAt.Format(time.RFC3339),
		LastUsedAt: formatTimePtr(token.LastUsedAt),
		RevokedAt:  formatTimePtr(token.RevokedAt),
		Approved:   token.Approved,
	}
	if token.Bound() {
		resp.Agent = &agentBinding{
			InstallationID:   *token.AgentInstallID,
			HardwareAddress:  token.AgentMAC,
			Hostname:         token.AgentHostname,
			NetworkAddress:   token.AgentIP,
			FirstConnectedAt: formatTimePtr(token.FirstConnectedAt),
			LastHeartbeatAt:  formatTimePtr(token.LastHeartbeatAt),
		}
	}
	return resp
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// dummyBcryptHash keeps login timing flat when the username is unknown.
const dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// handleLogin verifies a username and password and issues a session JWT.
// Unknown usernames still pay for a bcrypt comparison so the response
// time does not reveal which part failed.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyBcryptHash), []byte(req.Password))
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	session, err := s.sessions.Issue(user.ID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	s.logger.Info("dashboard login", "username", user.Username)
	writeJSON(w, http.StatusOK, loginResponse{
		Token: session,
		User: userResponse{
			ID:          user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
		},
	})
}

// handleCreateCredential issues a new agent credential and returns its
// plaintext exactly once.
func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	var req createCredentialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	secret, token, err := s.vault.Issue(r.Context(), scope.UserID, req.Name)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, createCredentialResponse{
		ID:        token.ID,
		Name:      token.Name,
		Token:     secret,
		Prefix:    token.SecretPrefix,
		CreatedAt: token.CreatedAt.Format(time.RFC3339),
	})
}

// handleListCredentials lists the caller's credentials, newest first.
func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	tokens, err := s.store.ListTokensByOwner(r.Context(), scope.UserID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	out := make([]credentialResponse, len(tokens))
	for i, token := range tokens {
		out[i] = renderCredential(token)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRevokeCredential permanently revokes a credential.
func (s *Server) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	if err := s.vault.Revoke(r.Context(), r.PathValue("id"), scope.UserID); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "credential revoked"})
}

// handleApproveCredential approves the credential's bound installation.
func (s *Server) handleApproveCredential(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	if err := s.guard.Approve(r.Context(), r.PathValue("id"), scope.UserID); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "agent approved"})
}

// handleRejectCredential clears the binding so another installation may
// claim the credential.
func (s *Server) handleRejectCredential(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	if err := s.guard.Reject(r.Context(), r.PathValue("id"), scope.UserID); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "agent binding cleared"})
}

// handleListDevices returns the caller's device inventory with network
// addresses joined in.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	scope := auth.MustScopeFrom(r.Context())

	devices, err := s.store.ListDevices(r.Context(), scope.UserID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	states, err := s.store.ListNetworkStates(r.Context(), scope.UserID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	out := make([]deviceResponse, len(devices))
	for i, dev := range devices {
		out[i] = renderDevice(dev, states[dev.ID])
	}
	writeJSON(w, http.StatusOK, out)
}
