// ABOUTME: SQLite implementation for agent token and binding persistence
// ABOUTME: Covers issuance records, hash lookup, revocation, and the CAS bind

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const tokenColumns = `id, owner_id, name, secret_hash, secret_prefix, created_at,
	last_used_at, revoked_at, approved, agent_install_id, agent_mac,
	agent_hostname, agent_ip, first_connected_at, last_heartbeat_at`

// CreateToken persists a newly issued token.
func (s *SQLiteStore) CreateToken(ctx context.Context, token *AgentToken) error {
	query := `
		INSERT INTO agent_tokens (id, owner_id, name, secret_hash, secret_prefix, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		token.ID,
		token.OwnerID,
		token.Name,
		token.SecretHash,
		token.SecretPrefix,
		formatTime(token.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("token hash collision for %q: %w", token.ID, err)
		}
		return fmt.Errorf("inserting token: %w", err)
	}

	s.logger.Debug("created agent token", "id", token.ID, "owner_id", token.OwnerID, "prefix", token.SecretPrefix)
	return nil
}

// GetToken retrieves a token by ID.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStore) GetToken(ctx context.Context, id string) (*AgentToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM agent_tokens WHERE id = ?`, id)
	return scanToken(row)
}

// GetTokenForOwner retrieves a token by ID scoped to an owner.
// Missing and foreign-owned tokens are both ErrNotFound.
func (s *SQLiteStore) GetTokenForOwner(ctx context.Context, id, ownerID string) (*AgentToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM agent_tokens WHERE id = ? AND owner_id = ?`, id, ownerID)
	return scanToken(row)
}

// GetActiveTokenByHash retrieves a non-revoked token by its secret hash.
// Returns ErrNotFound when no active token matches.
func (s *SQLiteStore) GetActiveTokenByHash(ctx context.Context, hash string) (*AgentToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM agent_tokens WHERE secret_hash = ? AND revoked_at IS NULL`, hash)
	return scanToken(row)
}

// ListTokensByOwner returns all of an owner's tokens, newest first.
func (s *SQLiteStore) ListTokensByOwner(ctx context.Context, ownerID string) ([]*AgentToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM agent_tokens WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*AgentToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating token rows: %w", err)
	}
	return tokens, nil
}

// TouchTokenUsed records when the token last authenticated a request.
// The timestamp is advisory; callers treat failures as log-only.
func (s *SQLiteStore) TouchTokenUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE agent_tokens SET last_used_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touching token: %w", err)
	}
	return nil
}

// RevokeToken permanently revokes an owner's token. Returns ErrNotFound
// if the token is missing, foreign-owned, or already revoked.
func (s *SQLiteStore) RevokeToken(ctx context.Context, id, ownerID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agent_tokens
		SET revoked_at = ?
		WHERE id = ? AND owner_id = ? AND revoked_at IS NULL
	`, formatTime(at), id, ownerID)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("revoked agent token", "id", id, "owner_id", ownerID)
	return nil
}

// BindAgent claims an unbound token for the presented identity. The
// WHERE clause is the compare-and-set: only one of two racing first
// heartbeats can match the unbound state, and the loser gets (false, nil).
func (s *SQLiteStore) BindAgent(ctx context.Context, id string, ident AgentIdentity, at time.Time) (bool, error) {
	now := formatTime(at)
	result, err := s.db.ExecContext(ctx, `
		UPDATE agent_tokens
		SET agent_install_id = ?, agent_mac = ?, agent_hostname = ?, agent_ip = ?,
		    first_connected_at = ?, last_heartbeat_at = ?
		WHERE id = ? AND agent_install_id IS NULL
	`, ident.InstallID, ident.MAC, ident.Hostname, nullString(ident.IP), now, now, id)
	if err != nil {
		return false, fmt.Errorf("binding agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Info("bound agent to token",
		"token_id", id,
		"install_id", ident.InstallID,
		"hostname", ident.Hostname,
	)
	return true, nil
}

// UpdateAgentHeartbeat refreshes the drift-allowed metadata and the
// heartbeat timestamp for the bound installation. The install id is part
// of the WHERE clause so a stale caller can never overwrite a binding
// that was reset or re-claimed in between.
func (s *SQLiteStore) UpdateAgentHeartbeat(ctx context.Context, id string, ident AgentIdentity, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_tokens
		SET agent_mac = ?, agent_hostname = ?, agent_ip = ?, last_heartbeat_at = ?
		WHERE id = ? AND agent_install_id = ?
	`, ident.MAC, ident.Hostname, nullString(ident.IP), formatTime(at), id, ident.InstallID)
	if err != nil {
		return fmt.Errorf("updating heartbeat: %w", err)
	}
	return nil
}

// ApproveAgent marks an owner's bound token as approved. The binding
// check lives in the WHERE clause; approving an unbound token affects
// zero rows and surfaces as ErrNotFound for the caller to classify.
func (s *SQLiteStore) ApproveAgent(ctx context.Context, id, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agent_tokens
		SET approved = 1
		WHERE id = ? AND owner_id = ? AND agent_install_id IS NOT NULL
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("approving agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("approved agent binding", "token_id", id, "owner_id", ownerID)
	return nil
}

// ResetAgentBinding clears the binding back to the unbound state,
// allowing a different installation to claim the token next.
func (s *SQLiteStore) ResetAgentBinding(ctx context.Context, id, ownerID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agent_tokens
		SET approved = 0, agent_install_id = NULL, agent_mac = NULL,
		    agent_hostname = NULL, agent_ip = NULL,
		    first_connected_at = NULL, last_heartbeat_at = NULL
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("resetting binding: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("reset agent binding", "token_id", id, "owner_id", ownerID)
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanToken scans one agent_tokens row.
func scanToken(row rowScanner) (*AgentToken, error) {
	var token AgentToken
	var createdAt string
	var lastUsedAt, revokedAt, firstConnectedAt, lastHeartbeatAt sql.NullString
	var installID, mac, hostname, ip sql.NullString

	err := row.Scan(
		&token.ID,
		&token.OwnerID,
		&token.Name,
		&token.SecretHash,
		&token.SecretPrefix,
		&createdAt,
		&lastUsedAt,
		&revokedAt,
		&token.Approved,
		&installID,
		&mac,
		&hostname,
		&ip,
		&firstConnectedAt,
		&lastHeartbeatAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning token row: %w", err)
	}

	token.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	token.LastUsedAt = parseNullTime(lastUsedAt)
	token.RevokedAt = parseNullTime(revokedAt)
	token.FirstConnectedAt = parseNullTime(firstConnectedAt)
	token.LastHeartbeatAt = parseNullTime(lastHeartbeatAt)

	if installID.Valid {
		token.AgentInstallID = &installID.String
	}
	if mac.Valid {
		token.AgentMAC = &mac.String
	}
	if hostname.Valid {
		token.AgentHostname = &hostname.String
	}
	if ip.Valid {
		token.AgentIP = &ip.String
	}

	return &token, nil
}

// formatTime renders a timestamp the way every table stores them.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored RFC3339 timestamp.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// parseNullTime parses a nullable stored timestamp, dropping unparseable
// values rather than failing the read.
func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
