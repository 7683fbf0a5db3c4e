package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/decleanup/dcu/core"
	"github.com/decleanup/dcu/internal/eth"
	"github.com/decleanup/dcu/ports"
)

// DefaultSessionTTL mirrors the 30-day sessions handed out on login.
const DefaultSessionTTL = 30 * 24 * time.Hour

// nonceBytes gives 128 bits of challenge entropy.
const nonceBytes = 16

// AuthService implements the two-step wallet login protocol: challenge
// issuance, signature verification with single-use nonce consumption,
// and session lifecycle.
type AuthService struct {
	identities ports.IdentityStore
	sessions   ports.SessionStore
	tokenizer  ports.Tokenizer
	events     ports.EventPublisher
	log        zerolog.Logger

	sessionTTL time.Duration

	// clearNonceOnFailure forces challenge re-issuance after a failed
	// signature check. Off by default: a failed attempt stays retryable
	// against the same nonce until it succeeds or is re-issued, which
	// bounds replay risk to correctly-signed submissions.
	clearNonceOnFailure bool
}

// NewAuthService creates a new authentication service
func NewAuthService(
	identities ports.IdentityStore,
	sessions ports.SessionStore,
	tokenizer ports.Tokenizer,
	events ports.EventPublisher,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		identities: identities,
		sessions:   sessions,
		tokenizer:  tokenizer,
		events:     events,
		log:        log.With().Str("service", "auth").Logger(),
		sessionTTL: DefaultSessionTTL,
	}
}

// WithSessionTTL overrides the session lifetime
func (s *AuthService) WithSessionTTL(ttl time.Duration) *AuthService {
	s.sessionTTL = ttl
	return s
}

// WithNonceClearingOnFailure switches to the stricter policy of
// invalidating the challenge after any failed signature check.
func (s *AuthService) WithNonceClearingOnFailure(clear bool) *AuthService {
	s.clearNonceOnFailure = clear
	return s
}

// Challenge creates or updates the identity for address and binds a
// fresh single-use nonce to it, invalidating any outstanding one. It
// does not reveal whether the address existed before.
func (s *AuthService) Challenge(ctx context.Context, address string) (nonce, message string, err error) {
	addr, ok := eth.CanonicalAddress(address)
	if !ok {
		return "", "", fmt.Errorf("%w: wallet address is required", core.ErrValidation)
	}

	if _, err := s.identities.UpsertIdentity(ctx, addr); err != nil {
		return "", "", fmt.Errorf("failed to upsert identity: %w", err)
	}

	nonce, err = generateNonce()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	if err := s.identities.SetNonce(ctx, addr, nonce); err != nil {
		return "", "", fmt.Errorf("failed to store nonce: %w", err)
	}

	return nonce, core.ChallengeMessage(addr, nonce), nil
}

// Login verifies a signed challenge and opens a session. The nonce is
// consumed by compare-and-set, so of two concurrent logins carrying
// valid signatures over the same nonce exactly one succeeds; the other
// observes the nonce already cleared.
func (s *AuthService) Login(ctx context.Context, address, signature, displayName string) (string, core.Identity, error) {
	addr, ok := eth.CanonicalAddress(address)
	if !ok {
		return "", core.Identity{}, fmt.Errorf("%w: wallet address is required", core.ErrValidation)
	}
	if signature == "" {
		return "", core.Identity{}, fmt.Errorf("%w: signature is required", core.ErrValidation)
	}

	identity, err := s.identities.GetIdentity(ctx, addr)
	if err != nil {
		if err == core.ErrNotFound {
			return "", core.Identity{}, core.ErrInvalidLoginAttempt
		}
		return "", core.Identity{}, fmt.Errorf("failed to load identity: %w", err)
	}
	if identity.CurrentNonce == "" {
		return "", core.Identity{}, core.ErrInvalidLoginAttempt
	}

	message := core.ChallengeMessage(addr, identity.CurrentNonce)
	if !eth.VerifyPersonalSign(addr, message, signature) {
		if s.clearNonceOnFailure {
			if _, err := s.identities.ConsumeNonce(ctx, addr, identity.CurrentNonce); err != nil {
				s.log.Warn().Err(err).Str("address", addr).Msg("failed to clear nonce after bad signature")
			}
		}
		return "", core.Identity{}, core.ErrInvalidSignature
	}

	// Commit point: winning this compare-and-set is what makes the
	// attempt the one effective login for the nonce.
	won, err := s.identities.ConsumeNonce(ctx, addr, identity.CurrentNonce)
	if err != nil {
		return "", core.Identity{}, fmt.Errorf("failed to consume nonce: %w", err)
	}
	if !won {
		return "", core.Identity{}, core.ErrInvalidLoginAttempt
	}
	identity.CurrentNonce = ""

	if displayName != "" && displayName != identity.DisplayName {
		if err := s.identities.UpdateDisplayName(ctx, addr, displayName); err != nil {
			return "", core.Identity{}, fmt.Errorf("failed to update display name: %w", err)
		}
		identity.DisplayName = displayName
	}

	now := time.Now()
	session := core.Session{
		ID:        uuid.NewString(),
		Address:   addr,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
		Active:    true,
	}

	token, err := s.tokenizer.SessionToToken(&session)
	if err != nil {
		return "", core.Identity{}, fmt.Errorf("failed to create session token: %w", err)
	}
	if err := s.sessions.CreateSession(ctx, session, s.sessionTTL); err != nil {
		return "", core.Identity{}, fmt.Errorf("failed to store session: %w", err)
	}

	s.log.Info().Str("address", addr).Str("session_id", session.ID).Msg("login succeeded")

	return token, identity, nil
}

// Validate checks a bearer token and returns the identity it belongs
// to. Unknown, expired and revoked sessions all read as the same
// invalid result. Expiry discovery is lazy: an observed-expired session
// is flipped inactive as a side effect, which is idempotent and safe
// under unbounded parallel validation.
func (s *AuthService) Validate(ctx context.Context, token string) (core.Identity, error) {
	claims, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return core.Identity{}, core.ErrSessionInvalid
	}

	session, err := s.sessions.GetSession(ctx, claims.ID)
	if err != nil {
		if err == core.ErrSessionInvalid {
			return core.Identity{}, err
		}
		return core.Identity{}, fmt.Errorf("failed to load session: %w", err)
	}

	if !session.ValidAt(time.Now()) {
		if session.Active {
			// Still marked active, so this is the first observation of
			// the expiry. The flip is idempotent.
			if err := s.sessions.DeactivateSession(ctx, session.ID); err != nil {
				s.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to deactivate expired session")
			}
		}
		return core.Identity{}, core.ErrSessionInvalid
	}

	identity, err := s.identities.GetIdentity(ctx, session.Address)
	if err != nil {
		if err == core.ErrNotFound {
			return core.Identity{}, core.ErrSessionInvalid
		}
		return core.Identity{}, fmt.Errorf("failed to load identity: %w", err)
	}

	return identity, nil
}

// Logout revokes the session carried by token. Revoking an already
// invalid session is not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return core.ErrSessionInvalid
	}

	if err := s.sessions.DeactivateSession(ctx, claims.ID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishLogout(ctx, claims.Address, claims.ID); err != nil {
			// The session is already revoked, which is the critical part.
			s.log.Warn().Err(err).Str("address", claims.Address).Msg("failed to publish logout event")
		}
	}

	return nil
}

// generateNonce generates a secure random hex nonce
func generateNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
