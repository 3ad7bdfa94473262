package server

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantmike/EIPs/pkg/engine"
	ledgermemory "github.com/grantmike/EIPs/pkg/ledger/memory"
	registrymemory "github.com/grantmike/EIPs/pkg/registry/memory"
	"github.com/grantmike/EIPs/pkg/signer"
	"github.com/grantmike/EIPs/pkg/testutil"
	"github.com/grantmike/EIPs/pkg/types"
)

const testRelayer = "0xCCcCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"

type testServer struct {
	server *Server
	ledger *ledgermemory.MemoryLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	reg := registrymemory.NewMemoryRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	lgr := ledgermemory.NewMemoryLedger()

	eng, err := engine.NewEngine(engine.Config{
		DomainSeparator: testutil.TestDomainSeparator(t),
		Registry:        reg,
		Ledger:          lgr,
	})
	require.NoError(t, err)

	return &testServer{
		server: NewServer(Config{
			Port:     8080,
			Engine:   eng,
			Ledger:   lgr,
			Registry: reg,
		}),
		ledger: lgr,
	}
}

func (ts *testServer) signedRequest(t *testing.T) (*types.Authorization, TransferRequest) {
	t.Helper()

	key := testutil.NewSignerKey(t)
	require.NoError(t, ts.ledger.SetBalance(signer.AddressOf(key), big.NewInt(1000)))

	domain := testutil.TestDomainSeparator(t)
	auth := testutil.NewAuthorization(t, key, testutil.TestTokenAddress, 100, 5)
	auth.ValidAfter = big.NewInt(0)
	auth.ValidBefore = big.NewInt(time.Now().Add(time.Hour).Unix())
	sig := testutil.SignAuthorization(t, key, domain, auth)

	return auth, TransferRequest{
		Relayer:   testRelayer,
		Signature: "0x" + hex.EncodeToString(sig),
		Authorization: AuthorizationDTO{
			From:         auth.From.Hex(),
			To:           auth.To.Hex(),
			Value:        auth.Value.String(),
			RelayerValue: auth.RelayerValue.String(),
			ValidAfter:   auth.ValidAfter.String(),
			ValidBefore:  auth.ValidBefore.String(),
			Nonce:        auth.Nonce.Hex(),
		},
	}
}

func (ts *testServer) post(t *testing.T, req TransferRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/v1/transfer", bytes.NewReader(body))
	ts.server.GetHandler().ServeHTTP(rec, httpReq)
	return rec
}

func TestServer_TransferSettles(t *testing.T) {
	ts := newTestServer(t)
	auth, req := ts.signedRequest(t)

	rec := ts.post(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TransferResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "settled", resp.Status)
	assert.Equal(t, auth.From.Hex(), resp.Authorizer)
	assert.NotEmpty(t, resp.RequestID)
}

func TestServer_ReplayReturnsConflict(t *testing.T) {
	ts := newTestServer(t)
	_, req := ts.signedRequest(t)

	require.Equal(t, http.StatusOK, ts.post(t, req).Code)

	rec := ts.post(t, req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "already_used", resp.Reason)
}

func TestServer_InvalidSignatureReturnsUnauthorized(t *testing.T) {
	ts := newTestServer(t)
	_, req := ts.signedRequest(t)
	req.Authorization.Value = "101" // breaks the signature binding

	rec := ts.post(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_signature", resp.Reason)
}

func TestServer_InsufficientFundsReturnsPaymentRequired(t *testing.T) {
	ts := newTestServer(t)
	auth, req := ts.signedRequest(t)
	require.NoError(t, ts.ledger.SetBalance(auth.From, big.NewInt(1)))

	rec := ts.post(t, req)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestServer_MalformedRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := map[string]func(*TransferRequest){
		"bad relayer address": func(r *TransferRequest) { r.Relayer = "not-an-address" },
		"bad from address":    func(r *TransferRequest) { r.Authorization.From = "0x123" },
		"bad value":           func(r *TransferRequest) { r.Authorization.Value = "1.5" },
		"negative value":      func(r *TransferRequest) { r.Authorization.Value = "-1" },
		"bad nonce":           func(r *TransferRequest) { r.Authorization.Nonce = "0xzz" },
		"bad signature hex":   func(r *TransferRequest) { r.Signature = "0xzz" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			_, req := ts.signedRequest(t)
			mutate(&req)
			rec := ts.post(t, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	t.Run("invalid json body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpReq := httptest.NewRequest(http.MethodPost, "/v1/transfer", bytes.NewReader([]byte("{")))
		ts.server.GetHandler().ServeHTTP(rec, httpReq)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_AuthorizationState(t *testing.T) {
	ts := newTestServer(t)
	auth, req := ts.signedRequest(t)

	url := fmt.Sprintf("/v1/authorizations/%s/%s", auth.From.Hex(), auth.Nonce.Hex())

	rec := httptest.NewRecorder()
	ts.server.GetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state AuthorizationStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.False(t, state.Consumed)

	require.Equal(t, http.StatusOK, ts.post(t, req).Code)

	rec = httptest.NewRecorder()
	ts.server.GetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.Consumed)
}

func TestServer_Balance(t *testing.T) {
	ts := newTestServer(t)
	auth, _ := ts.signedRequest(t)

	rec := httptest.NewRecorder()
	ts.server.GetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/balances/"+auth.From.Hex(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1000", resp.Balance)
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.server.GetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
