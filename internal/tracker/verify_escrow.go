package tracker

import (
	"go.uber.org/zap"

	"github.com/raosunjoy/HomeChance-Lottery/internal/logger"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

type EscrowMismatch struct {
	RaffleID string           `json:"raffle_id"`
	Escrow   raffle.AccountID `json:"escrow"`
	Expected uint64           `json:"expected"`
	Actual   uint64           `json:"actual"`
}

// VerifyEscrows compares every raffle's escrow balance with the balance its ledger implies.
func (t *Tracker) VerifyEscrows() ([]EscrowMismatch, error) {
	logger.Debug("verify escrows: loading raffles...")

	raffles, err := retry(t.ctx, func() ([]*raffle.Raffle, error) {
		return t.storage.ListRaffles(t.ctx, "")
	})
	if err != nil {
		logger.Error("verify escrows: failed to list raffles", zap.Error(err))
		return nil, err
	}

	mismatches := make([]EscrowMismatch, 0)
	for _, r := range raffles {
		expected, err := raffle.ExpectedEscrowBalance(r)
		if err != nil {
			logger.Error("verify escrows: cannot compute expected balance", zap.String("raffle_id", r.ID), zap.Error(err))
			return nil, err
		}

		actual := t.balances.Balance(r.Escrow)
		if actual == expected {
			continue
		}

		logger.Warn("verify escrows: balance mismatch",
			zap.String("raffle_id", r.ID),
			zap.String("escrow", string(r.Escrow)),
			zap.Uint64("expected", expected),
			zap.Uint64("actual", actual),
		)
		if t.metrics != nil {
			t.metrics.RecordEscrowMismatch()
		}
		mismatches = append(mismatches, EscrowMismatch{RaffleID: r.ID, Escrow: r.Escrow, Expected: expected, Actual: actual})
	}

	logger.Debug("verify escrows... done", zap.Int("raffles", len(raffles)), zap.Int("mismatches", len(mismatches)))
	return mismatches, nil
}
