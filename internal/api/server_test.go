// ABOUTME: HTTP tests for the agent and dashboard API surface
// ABOUTME: Runs the real route table against a temp SQLite store

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/netwarden/netwarden/internal/auth"
	"github.com/netwarden/netwarden/internal/pairing"
	"github.com/netwarden/netwarden/internal/reconcile"
	"github.com/netwarden/netwarden/internal/store"
)

const testPassword = "correct-horse-battery"

type apiFixture struct {
	handler     http.Handler
	store       *store.SQLiteStore
	ownerID     string
	tokenID     string
	agentSecret string
	session     string
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	vault := auth.NewVault(st)
	sessions := auth.NewSessions([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	srv := New(Options{
		Addr:              "127.0.0.1:0",
		Store:             st,
		Vault:             vault,
		Sessions:          sessions,
		Guard:             pairing.NewGuard(st),
		Reconciler:        reconcile.NewReconciler(st),
		HeartbeatInterval: 30 * time.Second,
		SyncInterval:      5 * time.Minute,
	})

	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	owner := &store.User{
		ID:           uuid.New().String(),
		Username:     "alice",
		PasswordHash: string(hash),
		DisplayName:  "Alice",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateUser(ctx, owner))

	secret, token, err := vault.Issue(ctx, owner.ID, "collector")
	require.NoError(t, err)

	session, err := sessions.Issue(owner.ID)
	require.NoError(t, err)

	return &apiFixture{
		handler:     srv.Routes(),
		store:       st,
		ownerID:     owner.ID,
		tokenID:     token.ID,
		agentSecret: secret,
		session:     session,
	}
}

// do runs one request through the route table. A non-empty bearer is
// attached as the Authorization header.
func (f *apiFixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func heartbeatBody(installID string) map[string]any {
	return map[string]any{
		"installationId":  installID,
		"hardwareAddress": "aa:bb:cc:dd:ee:ff",
		"hostname":        "host-a",
		"networkAddress":  "10.0.0.5",
	}
}

func TestHealth(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["time"])
}

func TestLogin(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodPost, "/dashboard/login", "", map[string]string{
		"username": "alice",
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
}

func TestLogin_Failures(t *testing.T) {
	f := setupAPI(t)

	wrongPass := f.do(t, http.MethodPost, "/dashboard/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)

	unknownUser := f.do(t, http.MethodPost, "/dashboard/login", "", map[string]string{
		"username": "mallory",
		"password": testPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)

	// Same body for both failure modes
	assert.JSONEq(t, wrongPass.Body.String(), unknownUser.Body.String())
}

func TestAgentAuth_GenericUnauthorized(t *testing.T) {
	f := setupAPI(t)

	missing := f.do(t, http.MethodPost, "/agent/heartbeat", "", heartbeatBody("install-aaa"))
	require.Equal(t, http.StatusUnauthorized, missing.Code)

	garbage := f.do(t, http.MethodPost, "/agent/heartbeat", "0000000000000000000000000000000000000000000000000000000000000000", heartbeatBody("install-aaa"))
	require.Equal(t, http.StatusUnauthorized, garbage.Code)

	assert.JSONEq(t, `{"message":"unauthorized"}`, missing.Body.String())
	assert.JSONEq(t, missing.Body.String(), garbage.Body.String())
}

func TestHeartbeat_PairingLifecycle(t *testing.T) {
	f := setupAPI(t)

	// First heartbeat claims the credential.
	first := f.do(t, http.MethodPost, "/agent/heartbeat", f.agentSecret, heartbeatBody("install-aaa"))
	require.Equal(t, http.StatusOK, first.Code)
	body := decodeBody[map[string]any](t, first)
	assert.Equal(t, "pending_approval", body["status"])
	assert.Equal(t, float64(30), body["heartbeatIntervalSeconds"])
	assert.Equal(t, float64(300), body["syncIntervalSeconds"])

	// A different installation is a mismatch and changes nothing.
	foreign := f.do(t, http.MethodPost, "/agent/heartbeat", f.agentSecret, heartbeatBody("install-bbb"))
	require.Equal(t, http.StatusOK, foreign.Code)
	assert.Equal(t, "device_mismatch", decodeBody[map[string]any](t, foreign)["status"])

	// Approval flips the bound installation to ok.
	approve := f.do(t, http.MethodPost, "/dashboard/credentials/"+f.tokenID+"/approve", f.session, nil)
	require.Equal(t, http.StatusOK, approve.Code)

	ok := f.do(t, http.MethodPost, "/agent/heartbeat", f.agentSecret, heartbeatBody("install-aaa"))
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "ok", decodeBody[map[string]any](t, ok)["status"])
}

func TestHeartbeat_Validation(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodPost, "/agent/heartbeat", f.agentSecret, map[string]any{
		"installationId":  "",
		"hardwareAddress": "not-a-mac",
		"hostname":        "host-a",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	errs := body["errors"].(map[string]any)
	assert.Contains(t, errs, "installationId")
	assert.Contains(t, errs, "hardwareAddress")
}

func TestApprove_UnboundCredential(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodPost, "/dashboard/credentials/"+f.tokenID+"/approve", f.session, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReject_ReopensBinding(t *testing.T) {
	f := setupAPI(t)

	f.do(t, http.MethodPost, "/agent/heartbeat", f.agentSecret, heartbeatBody("install-aaa"))

	reject := f.do(t, http.MethodPost, "/dashboard/credentials/"+f.tokenID+"/reject", f.session, nil)
	require.Equal(t, http.StatusOK, reject.Code)

	// A new installation can now claim the credential.
	rec := f.do(t, http.MethodPost, "/agent/heartbeat", f.agentSecret, heartbeatBody("install-bbb"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending_approval", decodeBody[map[string]any](t, rec)["status"])
}

func TestRegisterDevice_CreateThenRefresh(t *testing.T) {
	f := setupAPI(t)

	created := f.do(t, http.MethodPost, "/agent/devices", f.agentSecret, map[string]any{
		"name":            "nas",
		"hardwareAddress": "AA:BB:CC:DD:EE:10",
		"networkAddress":  "192.168.1.20",
	})
	require.Equal(t, http.StatusCreated, created.Code)
	dev := decodeBody[map[string]any](t, created)
	assert.Equal(t, "nas", dev["name"])
	assert.Equal(t, "aa:bb:cc:dd:ee:10", dev["hardwareAddress"])
	assert.Equal(t, "online", dev["status"])
	assert.Equal(t, "192.168.1.20", dev["networkAddress"])

	refreshed := f.do(t, http.MethodPost, "/agent/devices", f.agentSecret, map[string]any{
		"name":            "nas-renamed",
		"hardwareAddress": "aa:bb:cc:dd:ee:10",
		"status":          "offline",
	})
	require.Equal(t, http.StatusOK, refreshed.Code)
	dev2 := decodeBody[map[string]any](t, refreshed)
	assert.Equal(t, dev["id"], dev2["id"])
	assert.Equal(t, "nas-renamed", dev2["name"])
	assert.Equal(t, "offline", dev2["status"])
}

func TestUpdateDevice_PartialAndNotFoundParity(t *testing.T) {
	f := setupAPI(t)

	created := f.do(t, http.MethodPost, "/agent/devices", f.agentSecret, map[string]any{
		"name":            "nas",
		"hardwareAddress": "aa:bb:cc:dd:ee:10",
	})
	require.Equal(t, http.StatusCreated, created.Code)
	id := decodeBody[map[string]any](t, created)["id"].(string)

	patched := f.do(t, http.MethodPatch, "/agent/devices/"+id, f.agentSecret, map[string]any{
		"status": "away",
	})
	require.Equal(t, http.StatusOK, patched.Code)
	dev := decodeBody[map[string]any](t, patched)
	assert.Equal(t, "nas", dev["name"])
	assert.Equal(t, "away", dev["status"])

	// Absent and foreign-owned devices are indistinguishable 404s.
	absent := f.do(t, http.MethodPatch, "/agent/devices/"+uuid.New().String(), f.agentSecret, map[string]any{
		"status": "away",
	})
	require.Equal(t, http.StatusNotFound, absent.Code)

	foreignDev := &store.Device{
		ID:        uuid.New().String(),
		OwnerID:   createSecondUser(t, f.store),
		Name:      "bobs-nas",
		Status:    store.DeviceStatusOnline,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateDevice(context.Background(), foreignDev))

	foreign := f.do(t, http.MethodPatch, "/agent/devices/"+foreignDev.ID, f.agentSecret, map[string]any{
		"status": "away",
	})
	require.Equal(t, http.StatusNotFound, foreign.Code)
	assert.JSONEq(t, absent.Body.String(), foreign.Body.String())
}

func createSecondUser(t *testing.T, st *store.SQLiteStore) string {
	t.Helper()
	user := &store.User{
		ID:           uuid.New().String(),
		Username:     "bob",
		PasswordHash: "$2a$10$hash",
		DisplayName:  "Bob",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateUser(context.Background(), user))
	return user.ID
}

func TestDeleteDevice(t *testing.T) {
	f := setupAPI(t)

	created := f.do(t, http.MethodPost, "/agent/devices", f.agentSecret, map[string]any{
		"name":            "nas",
		"hardwareAddress": "aa:bb:cc:dd:ee:10",
	})
	id := decodeBody[map[string]any](t, created)["id"].(string)

	rec := f.do(t, http.MethodDelete, "/agent/devices/"+id, f.agentSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"device deleted"}`, rec.Body.String())

	again := f.do(t, http.MethodDelete, "/agent/devices/"+id, f.agentSecret, nil)
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestSyncDevices(t *testing.T) {
	f := setupAPI(t)

	first := f.do(t, http.MethodPut, "/agent/devices/sync", f.agentSecret, map[string]any{
		"devices": []map[string]any{
			{"name": "router", "hardwareAddress": "aa:bb:cc:dd:ee:01", "networkAddress": "192.168.1.1"},
			{"name": "printer", "hardwareAddress": "aa:bb:cc:dd:ee:02"},
		},
	})
	require.Equal(t, http.StatusOK, first.Code)
	assert.JSONEq(t, `{"created":2,"updated":0,"deleted":0}`, first.Body.String())

	second := f.do(t, http.MethodPut, "/agent/devices/sync", f.agentSecret, map[string]any{
		"devices": []map[string]any{
			{"name": "router", "hardwareAddress": "aa:bb:cc:dd:ee:01"},
			{"name": "camera", "hardwareAddress": "aa:bb:cc:dd:ee:03"},
		},
	})
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, `{"created":1,"updated":1,"deleted":1}`, second.Body.String())
}

func TestSyncDevices_RejectsInvalidPayload(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodPut, "/agent/devices/sync", f.agentSecret, map[string]any{
		"devices": []map[string]any{
			{"name": "router", "hardwareAddress": "nope"},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	errs := body["errors"].(map[string]any)
	assert.Contains(t, errs, "devices[0].hardwareAddress")
}

func TestCredentialLifecycle(t *testing.T) {
	f := setupAPI(t)

	created := f.do(t, http.MethodPost, "/dashboard/credentials", f.session, map[string]string{"name": "garage-pi"})
	require.Equal(t, http.StatusCreated, created.Code)
	cred := decodeBody[map[string]any](t, created)
	plaintext := cred["token"].(string)
	assert.Len(t, plaintext, 64)
	assert.Equal(t, plaintext[:8], cred["prefix"])

	// The plaintext never appears in the list.
	list := f.do(t, http.MethodGet, "/dashboard/credentials", f.session, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.NotContains(t, list.Body.String(), plaintext)

	creds := decodeBody[[]map[string]any](t, list)
	require.Len(t, creds, 2)

	// Revocation cuts off agent access immediately.
	revoke := f.do(t, http.MethodDelete, "/dashboard/credentials/"+cred["id"].(string), f.session, nil)
	require.Equal(t, http.StatusOK, revoke.Code)

	rec := f.do(t, http.MethodPost, "/agent/heartbeat", plaintext, heartbeatBody("install-aaa"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListCredentials_IncludesBinding(t *testing.T) {
	f := setupAPI(t)

	f.do(t, http.MethodPost, "/agent/heartbeat", f.agentSecret, heartbeatBody("install-aaa"))

	list := f.do(t, http.MethodGet, "/dashboard/credentials", f.session, nil)
	require.Equal(t, http.StatusOK, list.Code)

	creds := decodeBody[[]map[string]any](t, list)
	require.Len(t, creds, 1)
	agent := creds[0]["agent"].(map[string]any)
	assert.Equal(t, "install-aaa", agent["installationId"])
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", agent["hardwareAddress"])
	assert.Equal(t, "host-a", agent["hostname"])
}

func TestListDevices_Dashboard(t *testing.T) {
	f := setupAPI(t)

	f.do(t, http.MethodPut, "/agent/devices/sync", f.agentSecret, map[string]any{
		"devices": []map[string]any{
			{"name": "router", "hardwareAddress": "aa:bb:cc:dd:ee:01", "networkAddress": "192.168.1.1"},
			{"name": "printer", "hardwareAddress": "aa:bb:cc:dd:ee:02"},
		},
	})

	list := f.do(t, http.MethodGet, "/dashboard/devices", f.session, nil)
	require.Equal(t, http.StatusOK, list.Code)

	devices := decodeBody[[]map[string]any](t, list)
	require.Len(t, devices, 2)

	byName := map[string]map[string]any{}
	for _, dev := range devices {
		byName[dev["name"].(string)] = dev
	}
	assert.Equal(t, "192.168.1.1", byName["router"]["networkAddress"])
	assert.Nil(t, byName["printer"]["networkAddress"])
}

func TestDashboardAuth_Required(t *testing.T) {
	f := setupAPI(t)

	rec := f.do(t, http.MethodGet, "/dashboard/devices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// An agent secret is not a dashboard session.
	rec = f.do(t, http.MethodGet, "/dashboard/devices", f.agentSecret, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
