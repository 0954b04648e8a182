package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/raosunjoy/HomeChance-Lottery/internal/blockchain"
	"github.com/raosunjoy/HomeChance-Lottery/internal/logger"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
	"github.com/raosunjoy/HomeChance-Lottery/internal/randomness"
	"github.com/raosunjoy/HomeChance-Lottery/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusOf maps a failure onto an HTTP status and a stable error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, raffle.ErrState):
		return http.StatusConflict, raffle.Code(err)
	case errors.Is(err, raffle.ErrArithmetic):
		return http.StatusUnprocessableEntity, raffle.Code(err)
	case errors.Is(err, raffle.ErrBinding):
		return http.StatusForbidden, raffle.Code(err)
	case errors.Is(err, raffle.ErrNotFound):
		return http.StatusNotFound, raffle.Code(err)
	case errors.Is(err, raffle.ErrInvalid):
		return http.StatusBadRequest, raffle.Code(err)
	case errors.Is(err, storage.ErrRaffleExists):
		return http.StatusConflict, "raffle_exists"
	case errors.Is(err, randomness.ErrRequestNotFound):
		return http.StatusNotFound, "randomness_request_not_found"
	case errors.Is(err, blockchain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, blockchain.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, blockchain.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, blockchain.ErrAccountExists):
		return http.StatusConflict, "account_exists"
	case errors.Is(err, blockchain.ErrMintMismatch):
		return http.StatusForbidden, "mint_mismatch"
	case errors.Is(err, blockchain.ErrOverflow):
		return http.StatusUnprocessableEntity, "balance_overflow"
	}
	return http.StatusInternalServerError, "internal"
}

func respondError(c *gin.Context, err error) {
	status, code := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, errorResponse{Error: "internal error", Code: code})
		return
	}
	c.JSON(status, errorResponse{Error: err.Error(), Code: code})
}
