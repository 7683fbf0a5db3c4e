package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/decleanup/dcu/adapters/store"
	"github.com/decleanup/dcu/adapters/tokenizer"
	"github.com/decleanup/dcu/core"
	"github.com/decleanup/dcu/internal/eth"
	"github.com/decleanup/dcu/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	mem    *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemoryStore()
	signKey, err := gethcrypto.GenerateKey()
	require.NoError(t, err)

	auth := service.NewAuthService(mem, mem, tokenizer.NewJWTTokenizer(signKey), nil, zerolog.Nop())
	subs := service.NewSubmissionService(mem, mem, nil, zerolog.Nop())

	return &testServer{
		router: SetupRouter(NewHandlers(auth, subs)),
		mem:    mem,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

// login drives the full challenge/verify flow for a fresh wallet and
// returns the bearer token.
func (ts *testServer) login(t *testing.T, key *ecdsa.PrivateKey) (string, string) {
	t.Helper()
	address := strings.ToLower(gethcrypto.PubkeyToAddress(key.PublicKey).Hex())

	rec := ts.do(t, http.MethodPost, "/api/auth/nonce", "", gin.H{"address": address})
	require.Equal(t, http.StatusOK, rec.Code)

	var challenge struct {
		Nonce   string `json:"nonce"`
		Message string `json:"message"`
	}
	decodeBody(t, rec, &challenge)
	require.NotEmpty(t, challenge.Nonce)

	signature, err := eth.SignPersonal(challenge.Message, key)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodPost, "/api/auth/verify", "", gin.H{
		"address":   address,
		"signature": signature,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var verified struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &verified)
	require.NotEmpty(t, verified.Token)

	return verified.Token, address
}

func (ts *testServer) loginValidator(t *testing.T) string {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	address := strings.ToLower(gethcrypto.PubkeyToAddress(key.PublicKey).Hex())

	_, err = ts.mem.UpsertIdentity(context.Background(), address)
	require.NoError(t, err)
	require.NoError(t, ts.mem.SetRole(address, core.RoleValidator))

	token, _ := ts.login(t, key)
	return token
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)

	token, address := ts.login(t, key)

	rec := ts.do(t, http.MethodGet, "/api/dashboard/data", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var dashboard struct {
		User struct {
			Address     string `json:"address"`
			Role        string `json:"role"`
			ImpactLevel string `json:"impactLevel"`
		} `json:"user"`
	}
	decodeBody(t, rec, &dashboard)
	require.Equal(t, address, dashboard.User.Address)
	require.Equal(t, string(core.RoleUser), dashboard.User.Role)
	require.Equal(t, string(core.ImpactNewbie), dashboard.User.ImpactLevel)

	rec = ts.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/dashboard/data", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejections(t *testing.T) {
	ts := newTestServer(t)
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	address := strings.ToLower(gethcrypto.PubkeyToAddress(key.PublicKey).Hex())

	t.Run("bad address", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/auth/nonce", "", gin.H{"address": "nope"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing body", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/auth/nonce", "", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("verify without challenge", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/auth/verify", "", gin.H{
			"address":   address,
			"signature": "0xdeadbeef",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong signer", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/auth/nonce", "", gin.H{"address": address})
		require.Equal(t, http.StatusOK, rec.Code)
		var challenge struct {
			Message string `json:"message"`
		}
		decodeBody(t, rec, &challenge)

		intruder, err := gethcrypto.GenerateKey()
		require.NoError(t, err)
		signature, err := eth.SignPersonal(challenge.Message, intruder)
		require.NoError(t, err)

		rec = ts.do(t, http.MethodPost, "/api/auth/verify", "", gin.H{
			"address":   address,
			"signature": signature,
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("protected route without token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/submissions", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSubmissionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	ownerToken, _ := ts.login(t, key)
	validatorToken := ts.loginValidator(t)

	rec := ts.do(t, http.MethodPost, "/api/submissions", ownerToken, gin.H{
		"beforeCid": "bafybefore",
		"afterCid":  "bafyafter",
		"latitude":  "52.2297",
		"longitude": "21.0122",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created core.Submission
	decodeBody(t, rec, &created)
	require.Equal(t, core.StatusPending, created.Status)

	t.Run("owner cannot verify", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/submissions/%s/verify", created.ID), ownerToken, gin.H{
			"decision": "VERIFIED",
		})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("validator verifies once", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/submissions/%s/verify", created.ID), validatorToken, gin.H{
			"decision": "VERIFIED",
			"notes":    "confirmed on site",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var verified core.Submission
		decodeBody(t, rec, &verified)
		require.Equal(t, core.StatusVerified, verified.Status)
		require.True(t, verified.EligibleForClaim)

		rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/submissions/%s/verify", created.ID), validatorToken, gin.H{
			"decision": "REJECTED",
		})
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("owner claims once", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/rewards/claim", ownerToken, gin.H{
			"submissionId": created.ID,
			"level":        1,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var result struct {
			Tier    string `json:"tier"`
			Message string `json:"message"`
		}
		decodeBody(t, rec, &result)
		require.Equal(t, string(core.ImpactNewbie), result.Tier)
		require.NotEmpty(t, result.Message)

		rec = ts.do(t, http.MethodPost, "/api/rewards/claim", ownerToken, gin.H{
			"submissionId": created.ID,
			"level":        2,
		})
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("listing is scoped", func(t *testing.T) {
		otherKey, err := gethcrypto.GenerateKey()
		require.NoError(t, err)
		otherToken, _ := ts.login(t, otherKey)

		rec := ts.do(t, http.MethodGet, "/api/submissions", otherToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var listing struct {
			Total int `json:"total"`
		}
		decodeBody(t, rec, &listing)
		require.Equal(t, 0, listing.Total)

		rec = ts.do(t, http.MethodGet, "/api/submissions?status=VERIFIED", validatorToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decodeBody(t, rec, &listing)
		require.Equal(t, 1, listing.Total)
	})

	t.Run("foreign submission is hidden", func(t *testing.T) {
		otherKey, err := gethcrypto.GenerateKey()
		require.NoError(t, err)
		otherToken, _ := ts.login(t, otherKey)

		rec := ts.do(t, http.MethodGet, "/api/submissions/"+created.ID, otherToken, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("bad list params", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/submissions?sort=owner", validatorToken, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		rec = ts.do(t, http.MethodGet, "/api/submissions?limit=-1", validatorToken, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestClaimValidation(t *testing.T) {
	ts := newTestServer(t)
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	token, _ := ts.login(t, key)

	t.Run("unknown submission", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/rewards/claim", token, gin.H{
			"submissionId": "missing",
			"level":        1,
		})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("level out of range", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/submissions", token, gin.H{
			"beforeCid": "bafybefore",
			"afterCid":  "bafyafter",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		var created core.Submission
		decodeBody(t, rec, &created)

		rec = ts.do(t, http.MethodPost, "/api/rewards/claim", token, gin.H{
			"submissionId": created.ID,
			"level":        42,
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
