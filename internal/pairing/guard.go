// ABOUTME: Heartbeat state machine for the token-to-installation binding
// ABOUTME: First heartbeat claims via CAS; foreign install ids are read-only mismatches

package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/netwarden/netwarden/internal/store"
)

// Status is the outcome of one heartbeat, surfaced verbatim to the agent.
type Status string

const (
	// StatusOK: the bound, approved installation checked in.
	StatusOK Status = "ok"
	// StatusPendingApproval: the bound installation checked in but no
	// human has approved the binding yet.
	StatusPendingApproval Status = "pending_approval"
	// StatusDeviceMismatch: a different installation presented this
	// token. The stored binding is untouched; a human must decide.
	StatusDeviceMismatch Status = "device_mismatch"
)

// ErrNotBound is returned when approving a token no agent has ever
// connected on. Approving an empty binding would approve nothing.
var ErrNotBound = errors.New("no agent has connected on this token")

// Guard runs the binding state machine for authenticated heartbeats.
type Guard struct {
	tokens store.TokenStore
	logger *slog.Logger
	now    func() time.Time
}

// NewGuard creates a guard backed by the given token store.
func NewGuard(tokens store.TokenStore) *Guard {
	return &Guard{
		tokens: tokens,
		logger: slog.Default().With("component", "pairing"),
		now:    time.Now,
	}
}

// Heartbeat processes one identity report for an authenticated token and
// returns the resulting status.
//
// An unbound token is claimed for the presented identity via a
// compare-and-set; losing the race means another heartbeat bound first,
// and the loser is classified against that winner's identity exactly as
// if it had arrived later. A bound token only accepts heartbeats from
// its own installation id; those may freely drift their hardware
// address, hostname, and network address.
func (g *Guard) Heartbeat(ctx context.Context, token *store.AgentToken, ident store.AgentIdentity) (Status, error) {
	if !token.Bound() {
		bound, err := g.tokens.BindAgent(ctx, token.ID, ident, g.now().UTC())
		if err != nil {
			return "", fmt.Errorf("binding agent: %w", err)
		}
		if bound {
			g.logger.Info("agent claimed token",
				"token_id", token.ID,
				"install_id", ident.InstallID,
				"hostname", ident.Hostname,
			)
			return StatusPendingApproval, nil
		}

		// Lost the first-connection race; reload to see the winner.
		token, err = g.tokens.GetToken(ctx, token.ID)
		if err != nil {
			return "", fmt.Errorf("reloading token after lost bind: %w", err)
		}
		if !token.Bound() {
			// Reset raced in between; treat as a mismatch this round
			// and let the agent's next heartbeat claim cleanly.
			return StatusDeviceMismatch, nil
		}
	}

	if *token.AgentInstallID != ident.InstallID {
		g.logger.Warn("heartbeat from unbound installation",
			"token_id", token.ID,
			"bound_install_id", *token.AgentInstallID,
			"presented_install_id", ident.InstallID,
			"presented_hostname", ident.Hostname,
		)
		return StatusDeviceMismatch, nil
	}

	if err := g.tokens.UpdateAgentHeartbeat(ctx, token.ID, ident, g.now().UTC()); err != nil {
		return "", fmt.Errorf("recording heartbeat: %w", err)
	}

	if token.Approved {
		return StatusOK, nil
	}
	return StatusPendingApproval, nil
}

// Approve marks an owner's bound token as approved. Returns ErrNotBound
// if no agent has ever connected, and store.ErrNotFound for a missing or
// foreign-owned token.
func (g *Guard) Approve(ctx context.Context, tokenID, ownerID string) error {
	token, err := g.tokens.GetTokenForOwner(ctx, tokenID, ownerID)
	if err != nil {
		return err
	}
	if !token.Bound() {
		return ErrNotBound
	}

	if err := g.tokens.ApproveAgent(ctx, tokenID, ownerID); err != nil {
		return err
	}

	g.logger.Info("binding approved", "token_id", tokenID, "install_id", *token.AgentInstallID)
	return nil
}

// Reject clears the binding back to the unbound state. The token stays
// valid and a different installation may claim it on its next heartbeat;
// revoking the token entirely is a separate operation.
func (g *Guard) Reject(ctx context.Context, tokenID, ownerID string) error {
	if err := g.tokens.ResetAgentBinding(ctx, tokenID, ownerID); err != nil {
		return err
	}

	g.logger.Info("binding rejected", "token_id", tokenID)
	return nil
}
