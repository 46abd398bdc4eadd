package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tokensale/core"
	"tokensale/core/clock"
	"tokensale/core/types"
	"tokensale/crypto"
	"tokensale/native/sale"
	"tokensale/native/token"
	"tokensale/rpc/middleware"
	"tokensale/storage"
)

const (
	testJWTSecret = "rpc-test-secret"
	testJWTIssuer = "rpc-tests"
)

var (
	controllerAddr = [20]byte{0x5a}
	ownerAddr      = [20]byte{0x0a}
	walletAddr     = [20]byte{0x0b}
	buyerAddr      = [20]byte{0x01}
	otherAddr      = [20]byte{0x02}
)

type testEnv struct {
	server *Server
	node   *core.Node
	clock  *clock.Manual
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewManual(types.BlockTime{Height: 10, Timestamp: 1_000})
	node, err := core.NewNode(core.Options{
		DB:    storage.NewMemDB(),
		Token: token.Metadata{Symbol: "SALE", Name: "Sale", Decimals: 18},
		Sale: sale.Config{
			Self:   controllerAddr,
			Owner:  ownerAddr,
			Wallet: walletAddr,
			Params: sale.Params{
				StartBlock:       10,
				EndBlock:         20,
				StartRate:        big.NewInt(100),
				EndRate:          big.NewInt(50),
				PreferentialRate: big.NewInt(200),
				Cap:              big.NewInt(10_000),

				FoundationShareBps: sale.DefaultFoundationShareBps,
			},
		},
		Clock: clk,
	})
	require.NoError(t, err)
	srv, err := NewServer(node, ServerConfig{JWTSecret: testJWTSecret, JWTIssuer: testJWTIssuer}, nil)
	require.NoError(t, err)
	return &testEnv{server: srv, node: node, clock: clk}
}

func tokenFor(t *testing.T, addr [20]byte) string {
	t.Helper()
	signed, err := middleware.IssueToken(testJWTSecret, testJWTIssuer, crypto.FormatAddress(addr), time.Minute, time.Now())
	require.NoError(t, err)
	return signed
}

func marshalParam(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// call posts a JSON-RPC request through the full router. bearer may be empty.
func (e *testEnv) call(t *testing.T, method string, params interface{}, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := RPCRequest{JSONRPC: jsonRPCVersion, Method: method, ID: 1}
	if params != nil {
		req.Params = []json.RawMessage{marshalParam(t, params)}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}
	recorder := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(recorder, httpReq)
	return recorder
}

func decodeRPCResponse(t *testing.T, rec *httptest.ResponseRecorder) (json.RawMessage, *RPCError) {
	t.Helper()
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Result, resp.Error
}

func addr(a [20]byte) string { return crypto.FormatAddress(a) }
