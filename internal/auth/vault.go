// ABOUTME: Issuance, verification, and revocation of opaque agent bearer tokens
// ABOUTME: Secrets are random 32-byte values, stored only as SHA-256 hashes

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/netwarden/netwarden/internal/store"
)

// ErrInvalidToken is returned for any token that cannot authenticate:
// missing, malformed, unknown, or revoked. Callers get no more detail
// than that, so the error cannot be used as an oracle.
var ErrInvalidToken = errors.New("invalid token")

// secretBytes is the entropy of a generated secret. The plaintext form
// is its hex encoding, twice this many characters.
const secretBytes = 32

// MinSecretLength is the shortest presented secret Authenticate will
// even hash. Anything shorter is rejected outright.
const MinSecretLength = 32

// touchTimeout bounds the fire-and-forget last-used write.
const touchTimeout = 5 * time.Second

// Vault issues and verifies agent bearer tokens. The plaintext secret
// exists only in the return value of Issue; every later operation works
// from the hash.
type Vault struct {
	tokens store.TokenStore
	logger *slog.Logger
	now    func() time.Time
}

// NewVault creates a vault backed by the given token store.
func NewVault(tokens store.TokenStore) *Vault {
	return &Vault{
		tokens: tokens,
		logger: slog.Default().With("component", "vault"),
		now:    time.Now,
	}
}

// Issue generates a new token for the owner and persists its record.
// The returned plaintext is shown to the caller exactly once and is not
// recoverable afterwards.
func (v *Vault) Issue(ctx context.Context, ownerID, name string) (string, *store.AgentToken, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generating secret: %w", err)
	}
	secret := hex.EncodeToString(buf)

	token := &store.AgentToken{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Name:         name,
		SecretHash:   HashSecret(secret),
		SecretPrefix: secret[:8],
		CreatedAt:    v.now().UTC(),
	}

	if err := v.tokens.CreateToken(ctx, token); err != nil {
		return "", nil, fmt.Errorf("persisting token: %w", err)
	}

	v.logger.Info("issued agent token", "id", token.ID, "owner_id", ownerID, "prefix", token.SecretPrefix)
	return secret, token, nil
}

// Authenticate verifies a presented secret against the active credential
// records. On success it records the last-used timestamp asynchronously;
// that write is advisory and can never fail the request.
func (v *Vault) Authenticate(ctx context.Context, secret string) (*store.AgentToken, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrInvalidToken
	}

	token, err := v.tokens.GetActiveTokenByHash(ctx, HashSecret(secret))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	go v.touch(token.ID)

	return token, nil
}

// touch records the last-used timestamp outside the request lifecycle.
func (v *Vault) touch(tokenID string) {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()

	if err := v.tokens.TouchTokenUsed(ctx, tokenID, v.now().UTC()); err != nil {
		v.logger.Warn("failed to record token usage", "token_id", tokenID, "error", err)
	}
}

// Revoke permanently revokes an owner's token. The token fails
// authentication from the moment the write commits.
func (v *Vault) Revoke(ctx context.Context, tokenID, ownerID string) error {
	return v.tokens.RevokeToken(ctx, tokenID, ownerID, v.now().UTC())
}

// HashSecret computes the storage hash of a plaintext secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
