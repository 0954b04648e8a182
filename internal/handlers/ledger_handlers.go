package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

// LedgerAdmin manages accounts of the in-memory value ledger.
type LedgerAdmin interface {
	Balances
	Fund(account raffle.AccountID, amount uint64) error
	CreateMint(address, authority raffle.AccountID) error
	CreateTokenAccount(address, mint, owner raffle.AccountID) error
}

// LedgerHandler serves the funding and account routes of a development ledger.
type LedgerHandler struct {
	ledger LedgerAdmin
}

func NewLedgerHandler(ledger LedgerAdmin) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

func (h *LedgerHandler) RegisterRoutes(router *gin.Engine) {
	ledger := router.Group("/ledger")
	ledger.POST("/fund", h.Fund)
	ledger.POST("/mints", h.CreateMint)
	ledger.POST("/token-accounts", h.CreateTokenAccount)
	ledger.GET("/accounts/:account", h.GetBalance)
}

type fundRequest struct {
	Account string `json:"account" binding:"required"`
	Amount  uint64 `json:"amount" binding:"required"`
}

func (h *LedgerHandler) Fund(c *gin.Context) {
	var req fundRequest
	if !bind(c, &req) {
		return
	}

	account := raffle.AccountID(req.Account)
	if err := h.ledger.Fund(account, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "balance": h.ledger.Balance(account)})
}

type mintRequest struct {
	Address   string `json:"address" binding:"required"`
	Authority string `json:"authority" binding:"required"`
}

func (h *LedgerHandler) CreateMint(c *gin.Context) {
	var req mintRequest
	if !bind(c, &req) {
		return
	}

	if err := h.ledger.CreateMint(raffle.AccountID(req.Address), raffle.AccountID(req.Authority)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

type tokenAccountRequest struct {
	Address string `json:"address" binding:"required"`
	Mint    string `json:"mint" binding:"required"`
	Owner   string `json:"owner" binding:"required"`
}

func (h *LedgerHandler) CreateTokenAccount(c *gin.Context) {
	var req tokenAccountRequest
	if !bind(c, &req) {
		return
	}

	err := h.ledger.CreateTokenAccount(raffle.AccountID(req.Address), raffle.AccountID(req.Mint), raffle.AccountID(req.Owner))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *LedgerHandler) GetBalance(c *gin.Context) {
	account := raffle.AccountID(c.Param("account"))
	c.JSON(http.StatusOK, gin.H{"account": account, "balance": h.ledger.Balance(account)})
}
