package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"synthvault/native/synth"
	"synthvault/oracle"
	"synthvault/storage"
	"synthvault/token"
)

type testStack struct {
	router     http.Handler
	engine     *synth.Engine
	feed       *oracle.StaticFeed
	collateral *token.Ledger

	moduleAddr common.Address
	weth       common.Address
	wethFeed   common.Address
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	st := &testStack{
		moduleAddr: common.BytesToAddress([]byte{0x01}),
		weth:       common.BytesToAddress([]byte{0x02}),
		wethFeed:   common.BytesToAddress([]byte{0x03}),
	}

	db := storage.NewMemDB()
	registry, err := synth.NewRegistry([]common.Address{st.weth}, []common.Address{st.wethFeed})
	require.NoError(t, err)

	st.feed = oracle.NewStaticFeed(8)
	require.NoError(t, st.feed.SetPrice(st.wethFeed, big.NewInt(2_000_00000000)))

	st.collateral = token.NewLedger(db, "weth", st.moduleAddr)
	debtToken := token.NewLedger(db, "susd", st.moduleAddr)

	st.engine = synth.NewEngine(st.moduleAddr, registry, synth.DefaultRiskParameters())
	st.engine.SetState(synth.NewPositionStore(db))
	st.engine.SetOracle(st.feed)
	st.engine.SetDebtToken(debtToken)
	st.engine.SetCollateralToken(st.weth, st.collateral)

	st.router = NewServer(st.engine, st.feed, nil).Router()
	return st
}

func (st *testStack) post(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	st.router.ServeHTTP(rec, req)
	return rec
}

func (st *testStack) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	st.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

func wadAmount(n int64) string {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18)).String()
}

func TestHealthz(t *testing.T) {
	st := newTestStack(t)
	rec := st.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestDepositAndPositionEndpoints(t *testing.T) {
	st := newTestStack(t)
	user := common.BytesToAddress([]byte{0x10})
	require.NoError(t, st.collateral.Mint(user, new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))))

	rec := st.post(t, "/v1/deposit", map[string]string{
		"account": user.Hex(),
		"asset":   st.weth.Hex(),
		"amount":  wadAmount(10),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = st.get(t, "/v1/position/"+user.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	var position struct {
		Collateral map[string]string `json:"collateral"`
		Debt       string            `json:"debt"`
	}
	decodeBody(t, rec, &position)
	require.Equal(t, wadAmount(10), position.Collateral[fmt.Sprintf("0x%x", st.weth.Bytes())])
	require.Equal(t, "0", position.Debt)
}

func TestHealthEndpointTracksPriceMoves(t *testing.T) {
	st := newTestStack(t)
	user := common.BytesToAddress([]byte{0x10})
	require.NoError(t, st.collateral.Mint(user, new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))))

	rec := st.post(t, "/v1/deposit-and-mint", map[string]string{
		"account":          user.Hex(),
		"asset":            st.weth.Hex(),
		"collateralAmount": wadAmount(10),
		"debtAmount":       wadAmount(8_000),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var health struct {
		HealthFactor string `json:"healthFactor"`
		Liquidatable bool   `json:"liquidatable"`
	}
	rec = st.get(t, "/v1/health/"+user.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &health)
	require.False(t, health.Liquidatable)
	require.Equal(t, "1250000000000000000", health.HealthFactor)

	rec = st.post(t, "/v1/oracle/price", map[string]string{
		"feed":  st.wethFeed.Hex(),
		"price": "100000000000", // $1000 in 8-decimal feed units
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = st.get(t, "/v1/health/"+user.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &health)
	require.True(t, health.Liquidatable)
	require.Equal(t, "625000000000000000", health.HealthFactor)
}

func TestLiquidateEndpoint(t *testing.T) {
	st := newTestStack(t)
	target := common.BytesToAddress([]byte{0x10})
	liquidator := common.BytesToAddress([]byte{0x11})
	require.NoError(t, st.collateral.Mint(target, new(big.Int).Mul(big.NewInt(16), big.NewInt(1e18))))
	require.NoError(t, st.collateral.Mint(liquidator, new(big.Int).Mul(big.NewInt(50), big.NewInt(1e18))))

	rec := st.post(t, "/v1/deposit-and-mint", map[string]string{
		"account":          target.Hex(),
		"asset":            st.weth.Hex(),
		"collateralAmount": wadAmount(16),
		"debtAmount":       wadAmount(10_000),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = st.post(t, "/v1/deposit-and-mint", map[string]string{
		"account":          liquidator.Hex(),
		"asset":            st.weth.Hex(),
		"collateralAmount": wadAmount(50),
		"debtAmount":       wadAmount(5_000),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, st.feed.SetPrice(st.wethFeed, big.NewInt(1_000_00000000)))

	rec = st.post(t, "/v1/liquidate", map[string]string{
		"liquidator":  liquidator.Hex(),
		"target":      target.Hex(),
		"asset":       st.weth.Hex(),
		"debtToCover": wadAmount(5_000),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Seized string `json:"seized"`
	}
	decodeBody(t, rec, &result)
	require.Equal(t, "5500000000000000000", result.Seized)
}

func TestQuoteEndpoints(t *testing.T) {
	st := newTestStack(t)

	rec := st.get(t, "/v1/value/"+st.weth.Hex()+"?amount="+wadAmount(3))
	require.Equal(t, http.StatusOK, rec.Code)
	var value struct {
		Usd string `json:"usd"`
	}
	decodeBody(t, rec, &value)
	require.Equal(t, wadAmount(6_000), value.Usd)

	rec = st.get(t, "/v1/quote/"+st.weth.Hex()+"?usd="+wadAmount(100))
	require.Equal(t, http.StatusOK, rec.Code)
	var quote struct {
		TokenAmount string `json:"tokenAmount"`
	}
	decodeBody(t, rec, &quote)
	require.Equal(t, "50000000000000000", quote.TokenAmount)
}

func TestErrorStatusMapping(t *testing.T) {
	st := newTestStack(t)
	user := common.BytesToAddress([]byte{0x10})
	require.NoError(t, st.collateral.Mint(user, new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))))

	// Malformed account address.
	rec := st.get(t, "/v1/position/not-an-address")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unsupported collateral asset.
	rec = st.post(t, "/v1/deposit", map[string]string{
		"account": user.Hex(),
		"asset":   common.BytesToAddress([]byte{0x99}).Hex(),
		"amount":  wadAmount(1),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Solvency violation surfaces as a conflict.
	rec = st.post(t, "/v1/deposit-and-mint", map[string]string{
		"account":          user.Hex(),
		"asset":            st.weth.Hex(),
		"collateralAmount": wadAmount(1),
		"debtAmount":       wadAmount(50_000),
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Negative price rejected at the adapter boundary.
	rec = st.post(t, "/v1/oracle/price", map[string]string{
		"feed":  st.wethFeed.Hex(),
		"price": "-5",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
