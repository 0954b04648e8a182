// Package handlers exposes the raffle service over HTTP.
package handlers

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/raosunjoy/HomeChance-Lottery/internal/logger"
	"github.com/raosunjoy/HomeChance-Lottery/internal/metrics"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
	"github.com/raosunjoy/HomeChance-Lottery/internal/randomness"
	"github.com/raosunjoy/HomeChance-Lottery/internal/service"
)

// Oracle answers randomness requests issued by the engine.
type Oracle interface {
	Fulfill(ctx context.Context, requestID string) (randomness.Request, error)
	PublicKey() ed25519.PublicKey
}

// Balances reads native balances from the value ledger.
type Balances interface {
	Balance(account raffle.AccountID) uint64
}

// HTTPHandler holds the dependencies of the HTTP handlers.
type HTTPHandler struct {
	service  *service.Service
	oracle   Oracle
	balances Balances
	metrics  *metrics.Collector
}

// NewHTTPHandler creates a new HTTPHandler. collector may be nil.
func NewHTTPHandler(service *service.Service, oracle Oracle, balances Balances, collector *metrics.Collector) *HTTPHandler {
	return &HTTPHandler{
		service:  service,
		oracle:   oracle,
		balances: balances,
		metrics:  collector,
	}
}

// RegisterRoutes registers all the raffle routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.Metrics())

	router.GET("/healthz", h.Health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	raffles := router.Group("/raffles")
	raffles.POST("", h.CreateRaffle)
	raffles.GET("", h.ListRaffles)
	raffles.GET("/:id", h.GetRaffle)
	raffles.GET("/:id/events", h.GetEvents)
	raffles.GET("/:id/holders", h.GetHolderStatuses)
	raffles.GET("/:id/escrow", h.GetEscrow)
	raffles.POST("/:id/fractional-policy", h.SetFractionalPolicy)
	raffles.POST("/:id/tickets", h.PurchaseTickets)
	raffles.POST("/:id/randomness/request", h.RequestRandomness)
	raffles.POST("/:id/randomness/fulfill", h.FulfillRandomness)
	raffles.POST("/:id/close", h.CloseUndersold)
	raffles.POST("/:id/holders/:buyer/settle", h.SettleHolder)
	raffles.POST("/:id/payout/full", h.PayoutFull)
	raffles.POST("/:id/payout/fractional-minted", h.PayoutFractionalMinted)
	raffles.POST("/:id/payout/fractional-plain", h.PayoutFractionalPlain)
}

// Metrics records the method, route, status and latency of every request.
func (h *HTTPHandler) Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.metrics == nil {
			c.Next()
			return
		}

		started := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		h.metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(started))
	}
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createRaffleRequest struct {
	ID              string `json:"id" binding:"required"`
	AssetID         string `json:"asset_id"`
	Seller          string `json:"seller" binding:"required"`
	UnitPrice       uint64 `json:"unit_price" binding:"required"`
	AllowFractional bool   `json:"allow_fractional"`
	NFTMint         string `json:"nft_mint" binding:"required"`
	TokenMint       string `json:"token_mint" binding:"required"`
}

// CreateRaffle handles the creation of a new raffle.
func (h *HTTPHandler) CreateRaffle(c *gin.Context) {
	var req createRaffleRequest
	if !bind(c, &req) {
		return
	}

	r, err := h.service.Create(c.Request.Context(), raffle.CreateRequest{
		ID:              req.ID,
		AssetID:         req.AssetID,
		Seller:          raffle.AccountID(req.Seller),
		UnitPrice:       req.UnitPrice,
		AllowFractional: req.AllowFractional,
		NFTMint:         raffle.AccountID(req.NFTMint),
		TokenMint:       raffle.AccountID(req.TokenMint),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// ListRaffles lists raffles, optionally filtered by the status query parameter.
func (h *HTTPHandler) ListRaffles(c *gin.Context) {
	raffles, err := h.service.List(c.Request.Context(), raffle.Status(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raffles": raffles})
}

func (h *HTTPHandler) GetRaffle(c *gin.Context) {
	r, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *HTTPHandler) GetEvents(c *gin.Context) {
	events, err := h.service.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *HTTPHandler) GetHolderStatuses(c *gin.Context) {
	statuses, err := h.service.HolderStatuses(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"holders": statuses})
}

// GetEscrow reports the escrow balance next to the balance the raffle ledger implies.
func (h *HTTPHandler) GetEscrow(c *gin.Context) {
	r, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	expected, err := raffle.ExpectedEscrowBalance(r)
	if err != nil {
		respondError(c, err)
		return
	}
	proceeds, err := raffle.Proceeds(r)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"escrow":   r.Escrow,
		"balance":  h.balances.Balance(r.Escrow),
		"expected": expected,
		"proceeds": proceeds,
	})
}

type fractionalPolicyRequest struct {
	Caller          string `json:"caller" binding:"required"`
	AllowFractional *bool  `json:"allow_fractional" binding:"required"`
}

func (h *HTTPHandler) SetFractionalPolicy(c *gin.Context) {
	var req fractionalPolicyRequest
	if !bind(c, &req) {
		return
	}

	r, err := h.service.SetFractionalPolicy(c.Request.Context(), c.Param("id"), raffle.AccountID(req.Caller), *req.AllowFractional)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type purchaseRequest struct {
	Buyer        string `json:"buyer" binding:"required"`
	Tickets      uint64 `json:"num_tickets"`
	TokenAccount string `json:"token_account" binding:"required"`
	Channel      string `json:"channel"`
}

// PurchaseTickets handles a ticket purchase for the buyer.
func (h *HTTPHandler) PurchaseTickets(c *gin.Context) {
	var req purchaseRequest
	if !bind(c, &req) {
		return
	}

	r, event, err := h.service.Purchase(c.Request.Context(), c.Param("id"), raffle.PurchaseRequest{
		Buyer:        raffle.AccountID(req.Buyer),
		Count:        req.Tickets,
		TokenAccount: raffle.AccountID(req.TokenAccount),
		Channel:      raffle.PaymentChannel(req.Channel),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raffle": r, "event": event})
}

func (h *HTTPHandler) RequestRandomness(c *gin.Context) {
	r, requestID, err := h.service.RequestRandomness(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"raffle": r, "request_id": requestID})
}

type fulfillRequest struct {
	RequestID string `json:"request_id" binding:"required"`
}

// FulfillRandomness asks the oracle to answer the raffle's outstanding request, verifies the
// proof and delivers the value to the engine.
func (h *HTTPHandler) FulfillRandomness(c *gin.Context) {
	var req fulfillRequest
	if !bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")

	current, err := h.service.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if current.RandomnessRequest != req.RequestID {
		c.JSON(http.StatusConflict, errorResponse{Error: "randomness request does not belong to this raffle", Code: "randomness_request_mismatch"})
		return
	}

	answer, err := h.oracle.Fulfill(ctx, req.RequestID)
	if err != nil {
		respondError(c, err)
		return
	}
	if answer.RaffleID != id || !randomness.Verify(h.oracle.PublicKey(), answer) {
		logger.Warn("rejecting unverifiable randomness", zap.String("raffle_id", id), zap.String("request_id", req.RequestID))
		c.JSON(http.StatusBadGateway, errorResponse{Error: "randomness proof verification failed", Code: "randomness_unverified"})
		return
	}

	r, event, err := h.service.FulfillRandomness(ctx, id, answer.Fulfillment.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raffle": r, "event": event, "randomness": answer})
}

func (h *HTTPHandler) CloseUndersold(c *gin.Context) {
	r, event, err := h.service.CloseUndersold(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raffle": r, "event": event})
}

type settleRequest struct {
	HolderAccount      string `json:"holder_account" binding:"required"`
	HolderTokenAccount string `json:"holder_token_account" binding:"required"`
	Caller             string `json:"caller"`
}

// SettleHolder refunds or mints the fractional share of one holder of an undersold raffle.
func (h *HTTPHandler) SettleHolder(c *gin.Context) {
	var req settleRequest
	if !bind(c, &req) {
		return
	}

	r, event, err := h.service.SettleHolder(c.Request.Context(), c.Param("id"), raffle.SettleRequest{
		Buyer:              raffle.AccountID(c.Param("buyer")),
		HolderAccount:      raffle.AccountID(req.HolderAccount),
		HolderTokenAccount: raffle.AccountID(req.HolderTokenAccount),
		Caller:             raffle.AccountID(req.Caller),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raffle": r, "event": event})
}

type payoutFullRequest struct {
	Caller           string `json:"caller" binding:"required"`
	Confirmed        bool   `json:"property_transfer_confirmed"`
	SellerNFTAccount string `json:"seller_nft_account" binding:"required"`
	WinnerNFTAccount string `json:"winner_nft_account" binding:"required"`
}

func (h *HTTPHandler) PayoutFull(c *gin.Context) {
	var req payoutFullRequest
	if !bind(c, &req) {
		return
	}

	r, event, err := h.service.PayoutFull(c.Request.Context(), c.Param("id"), raffle.PayoutFullRequest{
		Caller:           raffle.AccountID(req.Caller),
		Confirmed:        req.Confirmed,
		SellerNFTAccount: raffle.AccountID(req.SellerNFTAccount),
		WinnerNFTAccount: raffle.AccountID(req.WinnerNFTAccount),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raffle": r, "event": event})
}

type payoutFractionalMintedRequest struct {
	Caller             string `json:"caller" binding:"required"`
	SellerTokenAccount string `json:"seller_token_account" binding:"required"`
}

func (h *HTTPHandler) PayoutFractionalMinted(c *gin.Context) {
	var req payoutFractionalMintedRequest
	if !bind(c, &req) {
		return
	}

	r, event, err := h.service.PayoutFractionalMinted(c.Request.Context(), c.Param("id"), raffle.PayoutFractionalMintedRequest{
		Caller:             raffle.AccountID(req.Caller),
		SellerTokenAccount: raffle.AccountID(req.SellerTokenAccount),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raffle": r, "event": event})
}

type payoutFractionalPlainRequest struct {
	Caller string `json:"caller" binding:"required"`
}

func (h *HTTPHandler) PayoutFractionalPlain(c *gin.Context) {
	var req payoutFractionalPlainRequest
	if !bind(c, &req) {
		return
	}

	r, event, err := h.service.PayoutFractionalPlain(c.Request.Context(), c.Param("id"), raffle.PayoutFractionalPlainRequest{
		Caller: raffle.AccountID(req.Caller),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raffle": r, "event": event})
}

// bind decodes the JSON body into req and answers 400 when it is malformed.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: strings.TrimSpace(err.Error()), Code: "invalid_request"})
		return false
	}
	return true
}
