package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"gitbounty/core/state"
	"gitbounty/native/bounty"
	"gitbounty/oracle"
	"gitbounty/storage"
)

type acceptAllVerifier struct {
	requestID [32]byte
}

func (v *acceptAllVerifier) Initiate([20]byte, [32]byte, [20]byte, []string, uint8, uint64) ([32]byte, error) {
	return v.requestID, nil
}

type testEnv struct {
	server  *Server
	handler http.Handler
	engine  *bounty.Engine
	manager *state.Manager
	pauses  *state.PauseRegistry
	secrets *oracle.SecretStore
	issuer  [20]byte
}

func newTestEnv(t *testing.T, auth *Authenticator) *testEnv {
	t.Helper()
	var owner, issuer, coordAddr [20]byte
	owner[0] = 0x01
	issuer[0] = 0x10
	coordAddr[0] = 0xC0

	manager := state.NewManager(storage.NewMemDB())
	pauses := state.NewPauseRegistry()
	engine := bounty.NewEngine(owner)
	engine.SetState(manager)
	engine.SetPauses(pauses)
	engine.SetNowFunc(func() int64 { return 1_000_000 })
	var requestID [32]byte
	requestID[0] = 0xA1
	require.NoError(t, engine.SetCoordinator(owner, &acceptAllVerifier{requestID: requestID}, coordAddr))
	require.NoError(t, manager.Mint(issuer, "BNTY", big.NewInt(10_000)))

	secrets := oracle.NewSecretStore()
	server := NewServer(engine, manager, pauses, secrets, auth, nil)
	return &testEnv{
		server:  server,
		handler: server.Router(),
		engine:  engine,
		manager: manager,
		pauses:  pauses,
		secrets: secrets,
		issuer:  issuer,
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) fund(t *testing.T) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/v1/bounty/fund", map[string]string{
		"from":      hex.EncodeToString(env.issuer[:]),
		"token":     "BNTY",
		"amount":    "1000",
		"repoOwner": "o",
		"repoName":  "r",
		"issueId":   "101",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	key, ok := view["key"].(string)
	require.True(t, ok)
	return key
}

func TestFundAndGetBounty(t *testing.T) {
	env := newTestEnv(t, nil)
	key := env.fund(t)

	rec := env.do(t, http.MethodGet, "/v1/bounty/"+key, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "open", view["status"])
	require.Equal(t, "1000", view["amount"])
	require.Equal(t, "o", view["repoOwner"])
}

func TestFundErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fund(t)

	// Duplicate triple conflicts.
	rec := env.do(t, http.MethodPost, "/v1/bounty/fund", map[string]string{
		"from":      hex.EncodeToString(env.issuer[:]),
		"token":     "BNTY",
		"amount":    "500",
		"repoOwner": "o",
		"repoName":  "r",
		"issueId":   "101",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	// Unparseable amount is a client error.
	rec = env.do(t, http.MethodPost, "/v1/bounty/fund", map[string]string{
		"from":      hex.EncodeToString(env.issuer[:]),
		"token":     "BNTY",
		"amount":    "not-a-number",
		"repoOwner": "o",
		"repoName":  "r",
		"issueId":   "102",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Broke issuer maps to 402.
	var broke [20]byte
	broke[0] = 0x66
	rec = env.do(t, http.MethodPost, "/v1/bounty/fund", map[string]string{
		"from":      hex.EncodeToString(broke[:]),
		"token":     "BNTY",
		"amount":    "1000",
		"repoOwner": "o",
		"repoName":  "r",
		"issueId":   "103",
	}, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestClaimBounty(t *testing.T) {
	env := newTestEnv(t, nil)
	key := env.fund(t)
	var claimant [20]byte
	claimant[0] = 0x20

	rec := env.do(t, http.MethodPost, "/v1/bounty/claim", map[string]string{
		"from":      hex.EncodeToString(claimant[:]),
		"key":       key,
		"prNumber":  "42",
		"repoOwner": "o",
		"repoName":  "r",
		"issueId":   "101",
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "verifying", view["status"])
	require.NotEmpty(t, view["activeRequestId"])

	// Locked bounty rejects a second claimant.
	rec = env.do(t, http.MethodPost, "/v1/bounty/claim", map[string]string{
		"from":      hex.EncodeToString(claimant[:]),
		"key":       key,
		"prNumber":  "43",
		"repoOwner": "o",
		"repoName":  "r",
		"issueId":   "101",
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefundBeforeTimelock(t *testing.T) {
	env := newTestEnv(t, nil)
	key := env.fund(t)

	rec := env.do(t, http.MethodPost, "/v1/bounty/refund", map[string]string{
		"from": hex.EncodeToString(env.issuer[:]),
		"key":  key,
	}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	// Non-issuer is forbidden outright.
	var stranger [20]byte
	stranger[0] = 0x99
	rec = env.do(t, http.MethodPost, "/v1/bounty/refund", map[string]string{
		"from": hex.EncodeToString(stranger[:]),
		"key":  key,
	}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetUnknownBounty(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/bounty/"+fmt.Sprintf("%064x", 0xFF), nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/bounty/not-hex", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalanceEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/v1/balance/"+hex.EncodeToString(env.issuer[:])+"?token=bnty", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "10000", view["balance"])
	require.Equal(t, "BNTY", view["token"])

	rec = env.do(t, http.MethodGet, "/v1/balance/"+hex.EncodeToString(env.issuer[:]), nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPauseBlocksMutations(t *testing.T) {
	env := newTestEnv(t, nil)
	env.pauses.SetPaused(bounty.ModuleName, true)
	rec := env.do(t, http.MethodPost, "/v1/bounty/fund", map[string]string{
		"from":      hex.EncodeToString(env.issuer[:]),
		"token":     "BNTY",
		"amount":    "1000",
		"repoOwner": "o",
		"repoName":  "r",
		"issueId":   "101",
	}, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func signTestToken(t *testing.T, secret, scope string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":   "gitbounty-ops",
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAdminRoutesRequireJWT(t *testing.T) {
	const secret = "test-admin-secret"
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: secret, Issuer: "gitbounty-ops"}, nil)
	env := newTestEnv(t, auth)
	body := map[string]interface{}{"slot": 1, "version": 5, "value": "ghp_token"}

	rec := env.do(t, http.MethodPost, "/v1/admin/secrets", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/secrets", body, map[string]string{
		"Authorization": "Bearer " + signTestToken(t, secret, "bounty.read"),
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/secrets", body, map[string]string{
		"Authorization": "Bearer " + signTestToken(t, "wrong-secret", "bounty.admin"),
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/secrets", body, map[string]string{
		"Authorization": "Bearer " + signTestToken(t, secret, "bounty.admin"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	slot, version := env.engine.SecretsCoordinates()
	require.Equal(t, uint8(1), slot)
	require.Equal(t, uint64(5), version)
	value, ok := env.secrets.Get(1, 5)
	require.True(t, ok)
	require.Equal(t, "ghp_token", value)
}

func TestAdminPauseRoute(t *testing.T) {
	env := newTestEnv(t, nil) // auth disabled: local-development mode
	rec := env.do(t, http.MethodPost, "/v1/admin/pause", map[string]interface{}{
		"module": bounty.ModuleName,
		"paused": true,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.pauses.IsPaused(bounty.ModuleName))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
