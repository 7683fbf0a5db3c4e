package service

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"sync"
	"testing"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/decleanup/dcu/adapters/store"
	"github.com/decleanup/dcu/adapters/tokenizer"
	"github.com/decleanup/dcu/core"
	"github.com/decleanup/dcu/internal/eth"
)

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	return wallet{
		key:     key,
		address: strings.ToLower(gethcrypto.PubkeyToAddress(key.PublicKey).Hex()),
	}
}

func (w wallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := eth.SignPersonal(message, w.key)
	require.NoError(t, err)
	return sig
}

func newAuthService(t *testing.T) (*AuthService, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	signKey, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	svc := NewAuthService(mem, mem, tokenizer.NewJWTTokenizer(signKey), nil, zerolog.Nop())
	return svc, mem
}

func TestAuthService_ChallengeAndLogin(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)

	nonce, message, err := svc.Challenge(ctx, w.address)
	require.NoError(t, err)
	require.NotEmpty(t, nonce)
	require.Contains(t, message, w.address)
	require.Contains(t, message, nonce)

	token, identity, err := svc.Login(ctx, w.address, w.sign(t, message), "")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, w.address, identity.Address)
	require.Equal(t, core.RoleUser, identity.Role)
	require.Empty(t, identity.CurrentNonce)

	validated, err := svc.Validate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, w.address, validated.Address)
}

func TestAuthService_ChallengeRejectsBadAddress(t *testing.T) {
	svc, _ := newAuthService(t)

	for _, addr := range []string{"", "not-an-address", "0x1234"} {
		_, _, err := svc.Challenge(context.Background(), addr)
		require.ErrorIs(t, err, core.ErrValidation, addr)
	}
}

func TestAuthService_LoginNonceIsSingleUse(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)

	_, message, err := svc.Challenge(ctx, w.address)
	require.NoError(t, err)
	sig := w.sign(t, message)

	_, _, err = svc.Login(ctx, w.address, sig, "")
	require.NoError(t, err)

	// Replaying the same valid signature must fail: the nonce is gone.
	_, _, err = svc.Login(ctx, w.address, sig, "")
	require.ErrorIs(t, err, core.ErrInvalidLoginAttempt)
}

func TestAuthService_ConcurrentLoginsOneWinner(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)

	_, message, err := svc.Challenge(ctx, w.address)
	require.NoError(t, err)
	sig := w.sign(t, message)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Login(ctx, w.address, sig, "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, core.ErrInvalidLoginAttempt)
		}
	}
	require.Equal(t, 1, wins)
}

func TestAuthService_BadSignatureLeavesNonceRetryable(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)
	intruder := newWallet(t)

	_, message, err := svc.Challenge(ctx, w.address)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, w.address, intruder.sign(t, message), "")
	require.ErrorIs(t, err, core.ErrInvalidSignature)

	// Default policy keeps the challenge alive after a failed check.
	_, _, err = svc.Login(ctx, w.address, w.sign(t, message), "")
	require.NoError(t, err)
}

func TestAuthService_NonceClearingOnFailurePolicy(t *testing.T) {
	svc, _ := newAuthService(t)
	svc.WithNonceClearingOnFailure(true)
	ctx := context.Background()
	w := newWallet(t)
	intruder := newWallet(t)

	_, message, err := svc.Challenge(ctx, w.address)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, w.address, intruder.sign(t, message), "")
	require.ErrorIs(t, err, core.ErrInvalidSignature)

	// Strict policy consumed the nonce; even the real signer must
	// request a fresh challenge.
	_, _, err = svc.Login(ctx, w.address, w.sign(t, message), "")
	require.ErrorIs(t, err, core.ErrInvalidLoginAttempt)
}

func TestAuthService_LoginWithoutChallenge(t *testing.T) {
	svc, _ := newAuthService(t)
	w := newWallet(t)

	_, _, err := svc.Login(context.Background(), w.address, w.sign(t, "whatever"), "")
	require.ErrorIs(t, err, core.ErrInvalidLoginAttempt)
}

func TestAuthService_LoginUpdatesDisplayName(t *testing.T) {
	svc, mem := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)

	_, message, err := svc.Challenge(ctx, w.address)
	require.NoError(t, err)

	_, identity, err := svc.Login(ctx, w.address, w.sign(t, message), "cleanup.eth")
	require.NoError(t, err)
	require.Equal(t, "cleanup.eth", identity.DisplayName)

	stored, err := mem.GetIdentity(ctx, w.address)
	require.NoError(t, err)
	require.Equal(t, "cleanup.eth", stored.DisplayName)
}

func TestAuthService_FreshChallengeInvalidatesOldOne(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)

	_, first, err := svc.Challenge(ctx, w.address)
	require.NoError(t, err)
	_, _, err = svc.Challenge(ctx, w.address)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, w.address, w.sign(t, first), "")
	require.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestAuthService_ValidateRejectsGarbage(t *testing.T) {
	svc, _ := newAuthService(t)

	for _, token := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		_, err := svc.Validate(context.Background(), token)
		require.ErrorIs(t, err, core.ErrSessionInvalid)
	}
}

func TestAuthService_ExpiredSessionIsDeactivated(t *testing.T) {
	mem := store.NewMemoryStore()
	signKey, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	tk := tokenizer.NewJWTTokenizer(signKey)
	svc := NewAuthService(mem, mem, tk, nil, zerolog.Nop())
	ctx := context.Background()
	w := newWallet(t)

	_, err = mem.UpsertIdentity(ctx, w.address)
	require.NoError(t, err)

	// Store record expired even though the token itself is still within
	// its signature lifetime.
	now := time.Now()
	session := core.Session{
		ID:        "sess-expired",
		Address:   w.address,
		IssuedAt:  now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
		Active:    true,
	}
	require.NoError(t, mem.CreateSession(ctx, session, time.Hour))

	tokenSession := session
	tokenSession.ExpiresAt = now.Add(time.Hour)
	token, err := tk.SessionToToken(&tokenSession)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, token)
	require.ErrorIs(t, err, core.ErrSessionInvalid)

	// The expiry flip persisted; the session stays invalid.
	stored, err := mem.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, stored.Active)

	_, err = svc.Validate(ctx, token)
	require.ErrorIs(t, err, core.ErrSessionInvalid)
}

func TestAuthService_LogoutRevokesSession(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()
	w := newWallet(t)

	_, message, err := svc.Challenge(ctx, w.address)
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, w.address, w.sign(t, message), "")
	require.NoError(t, err)

	_, err = svc.Validate(ctx, token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))

	_, err = svc.Validate(ctx, token)
	require.ErrorIs(t, err, core.ErrSessionInvalid)

	// Logging out twice is harmless.
	require.NoError(t, svc.Logout(ctx, token))
}
