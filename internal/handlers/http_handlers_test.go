package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raosunjoy/HomeChance-Lottery/internal/blockchain"
	"github.com/raosunjoy/HomeChance-Lottery/internal/metrics"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
	"github.com/raosunjoy/HomeChance-Lottery/internal/randomness"
	"github.com/raosunjoy/HomeChance-Lottery/internal/service"
	"github.com/raosunjoy/HomeChance-Lottery/internal/storage"
)

type server struct {
	router *gin.Engine
	ledger *blockchain.Ledger
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := blockchain.NewLedger()
	require.NoError(t, ledger.CreateMint("token-mint", "seller"))
	require.NoError(t, ledger.CreateMint("nft-mint", "seller"))

	oracle, err := randomness.NewOracle(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	deriver, err := raffle.NewAuthorityDeriver(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)

	engine, err := raffle.NewEngine(raffle.EngineConfig{
		Chain:      ledger,
		Randomness: oracle,
		Authority:  deriver,
		Charity:    "charity",
	})
	require.NoError(t, err)

	store, err := storage.NewSqliteStorage(filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	collector := metrics.NewCollector()
	router := gin.New()
	NewHTTPHandler(service.New(engine, store, collector), oracle, ledger, collector).RegisterRoutes(router)
	NewLedgerHandler(ledger).RegisterRoutes(router)

	return &server{router: router, ledger: ledger}
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type raffleEnvelope struct {
	Raffle    raffle.Raffle   `json:"raffle"`
	Event     json.RawMessage `json:"event"`
	RequestID string          `json:"request_id"`
}

func createBody(id string, allowFractional bool) gin.H {
	return gin.H{
		"id":               id,
		"asset_id":         "house-1",
		"seller":           "seller",
		"unit_price":       1,
		"allow_fractional": allowFractional,
		"nft_mint":         "nft-mint",
		"token_mint":       "token-mint",
	}
}

func (s *server) fundBuyer(t *testing.T, name string) {
	t.Helper()

	w := s.do(t, http.MethodPost, "/ledger/fund", gin.H{"account": name, "amount": 20_000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/ledger/token-accounts", gin.H{"address": name + "-token", "mint": "token-mint", "owner": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreateAndGetRaffle(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/raffles", createBody("r-1", false))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[raffle.Raffle](t, w)
	assert.Equal(t, raffle.StatusOpen, created.Status)
	assert.Equal(t, raffle.TotalTickets, created.Capacity)

	w = s.do(t, http.MethodPost, "/raffles", createBody("r-1", false))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "raffle_exists", decode[errorResponse](t, w).Code)

	w = s.do(t, http.MethodGet, "/raffles/r-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.Escrow, decode[raffle.Raffle](t, w).Escrow)

	w = s.do(t, http.MethodGet, "/raffles?status=open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]raffle.Raffle](t, w)["raffles"], 1)

	w = s.do(t, http.MethodGet, "/raffles/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "raffle_not_found", decode[errorResponse](t, w).Code)
}

func TestRejectedRequests(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/raffles", createBody("r-1", false)).Code)
	s.fundBuyer(t, "amy")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name: "missing fields", method: http.MethodPost, path: "/raffles",
			body: gin.H{"id": "r-2"}, status: http.StatusBadRequest, code: "invalid_request",
		},
		{
			name: "zero price", method: http.MethodPost, path: "/raffles",
			body: gin.H{"id": "r-2", "seller": "seller", "unit_price": 0, "nft_mint": "n", "token_mint": "t"}, status: http.StatusBadRequest, code: "invalid_request",
		},
		{
			name: "zero tickets", method: http.MethodPost, path: "/raffles/r-1/tickets",
			body: gin.H{"buyer": "amy", "num_tickets": 0, "token_account": "amy-token"}, status: http.StatusBadRequest, code: "invalid_ticket_count",
		},
		{
			name: "over capacity", method: http.MethodPost, path: "/raffles/r-1/tickets",
			body: gin.H{"buyer": "amy", "num_tickets": 10_001, "token_account": "amy-token"}, status: http.StatusUnprocessableEntity, code: "ticket_limit_exceeded",
		},
		{
			name: "foreign token account", method: http.MethodPost, path: "/raffles/r-1/tickets",
			body: gin.H{"buyer": "bob", "num_tickets": 1, "token_account": "amy-token"}, status: http.StatusForbidden, code: "invalid_token_account_owner",
		},
		{
			name: "randomness before sell out", method: http.MethodPost, path: "/raffles/r-1/randomness/request",
			status: http.StatusConflict, code: "not_enough_tickets",
		},
		{
			name: "payout while open", method: http.MethodPost, path: "/raffles/r-1/payout/fractional-plain",
			body: gin.H{"caller": "seller"}, status: http.StatusConflict, code: "raffle_not_closed",
		},
		{
			name: "policy by stranger", method: http.MethodPost, path: "/raffles/r-1/fractional-policy",
			body: gin.H{"caller": "mallory", "allow_fractional": true}, status: http.StatusForbidden, code: "not_seller",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[errorResponse](t, w).Code)
		})
	}

	w := s.do(t, http.MethodGet, "/raffles/r-1", nil)
	assert.Zero(t, decode[raffle.Raffle](t, w).Sold)
}

func TestFullSaleOverHTTP(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/raffles", createBody("r-1", false)).Code)
	s.fundBuyer(t, "amy")
	s.fundBuyer(t, "bob")

	w := s.do(t, http.MethodPost, "/raffles/r-1/tickets", gin.H{"buyer": "amy", "num_tickets": 7_000, "token_account": "amy-token"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/raffles/r-1/tickets", gin.H{"buyer": "bob", "num_tickets": 3_000, "token_account": "bob-token"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, raffle.StatusAwaitingRandomness, decode[raffleEnvelope](t, w).Raffle.Status)

	w = s.do(t, http.MethodPost, "/raffles/r-1/randomness/request", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	requestID := decode[raffleEnvelope](t, w).RequestID
	require.NotEmpty(t, requestID)

	w = s.do(t, http.MethodPost, "/raffles/r-1/randomness/fulfill", gin.H{"request_id": "other"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "randomness_request_mismatch", decode[errorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/raffles/r-1/randomness/fulfill", gin.H{"request_id": requestID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	closed := decode[raffleEnvelope](t, w).Raffle
	assert.Equal(t, raffle.StatusClosedFull, closed.Status)
	require.NotNil(t, closed.Winner)
	assert.Contains(t, []raffle.AccountID{"amy", "bob"}, *closed.Winner)

	w = s.do(t, http.MethodPost, "/raffles/r-1/randomness/fulfill", gin.H{"request_id": requestID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "raffle_completed", decode[errorResponse](t, w).Code)

	w = s.do(t, http.MethodGet, "/raffles/r-1/escrow", nil)
	require.Equal(t, http.StatusOK, w.Code)
	escrow := decode[map[string]any](t, w)
	assert.EqualValues(t, 10_000, escrow["balance"])
	assert.EqualValues(t, 10_000, escrow["expected"])

	w = s.do(t, http.MethodPost, "/raffles/r-1/payout/full", gin.H{
		"caller": "seller", "property_transfer_confirmed": false,
		"seller_nft_account": "seller-nft", "winner_nft_account": "winner-nft",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "transfer_not_confirmed", decode[errorResponse](t, w).Code)
}

func TestUndersoldRefundOverHTTP(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/raffles", createBody("r-1", false)).Code)
	s.fundBuyer(t, "amy")

	w := s.do(t, http.MethodPost, "/raffles/r-1/tickets", gin.H{"buyer": "amy", "num_tickets": 40, "token_account": "amy-token"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, uint64(19_960), s.ledger.Balance("amy"))

	w = s.do(t, http.MethodPost, "/raffles/r-1/close", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, raffle.StatusClosedPartial, decode[raffleEnvelope](t, w).Raffle.Status)

	w = s.do(t, http.MethodPost, "/raffles/r-1/payout/fractional-plain", gin.H{"caller": "seller"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "holders_not_processed", decode[errorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/raffles/r-1/holders/amy/settle", gin.H{"holder_account": "bob", "holder_token_account": "amy-token"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "invalid_holder_account", decode[errorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/raffles/r-1/holders/amy/settle", gin.H{"holder_account": "amy", "holder_token_account": "amy-token"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, uint64(20_000), s.ledger.Balance("amy"))

	w = s.do(t, http.MethodPost, "/raffles/r-1/holders/amy/settle", gin.H{"holder_account": "amy", "holder_token_account": "amy-token"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "holder_not_found", decode[errorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/raffles/r-1/payout/fractional-plain", gin.H{"caller": "seller"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, raffle.StatusPaidOut, decode[raffleEnvelope](t, w).Raffle.Status)

	w = s.do(t, http.MethodGet, "/raffles/r-1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]storage.EventRecord](t, w)["events"], 4)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil).Code)

	w := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `homechance_http_requests_total{method="GET",path="/healthz",status="200"} 1`))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{raffle.ErrRaffleCompleted, http.StatusConflict, "raffle_completed"},
		{fmt.Errorf("wrapped: %w", raffle.ErrMathOverflow), http.StatusUnprocessableEntity, "math_overflow"},
		{raffle.ErrNotSeller, http.StatusForbidden, "not_seller"},
		{raffle.ErrHolderNotFound, http.StatusNotFound, "holder_not_found"},
		{raffle.ErrInvalidPrice, http.StatusBadRequest, "invalid_ticket_price"},
		{storage.ErrRaffleExists, http.StatusConflict, "raffle_exists"},
		{fmt.Errorf("transfer ticket payment: %w", blockchain.ErrInsufficientFunds), http.StatusUnprocessableEntity, "insufficient_funds"},
		{randomness.ErrRequestNotFound, http.StatusNotFound, "randomness_request_not_found"},
		{context.Canceled, http.StatusInternalServerError, "internal"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := statusOf(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
