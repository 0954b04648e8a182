package tracker

import (
	"go.uber.org/zap"

	"github.com/raosunjoy/HomeChance-Lottery/internal/logger"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
	"github.com/raosunjoy/HomeChance-Lottery/internal/storage"
)

// synchronize folds pending events batch by batch until the log is drained.
func (t *Tracker) synchronize() error {
	for {
		processed, err := t.synchronizeBatch()
		if err != nil {
			return err
		}
		if processed < t.batch {
			return nil
		}
	}
}

func (t *Tracker) synchronizeBatch() (int, error) {
	pendingEvents, err := retry(t.ctx, func() ([]*storage.EventRecord, error) {
		return t.storage.GetPendingEvents(t.ctx, Consumer, t.batch)
	})
	if err != nil {
		logger.Debug("cannot get pending events, exiting...")
		return 0, err
	}
	if len(pendingEvents) == 0 {
		t.recordPass(0, 0)
		return 0, nil
	}

	raffleBuyers := make(map[string][]string)
	for _, record := range pendingEvents {
		if record.Buyer != "" {
			raffleBuyers[record.RaffleID] = append(raffleBuyers[record.RaffleID], record.Buyer)
		}
	}

	statuses := make(map[holderKey]*storage.HolderStatus)
	for raffleID, buyers := range raffleBuyers {
		existing, err := t.storage.GetHolderStatusesByBuyers(t.ctx, raffleID, buyers)
		if err != nil {
			return 0, err
		}
		for _, status := range existing {
			statuses[holderKey{raffleID: status.RaffleID, buyer: status.Buyer}] = status
		}
	}

	changed := make(map[holderKey]*storage.HolderStatus)
	skipped := 0
	for _, record := range pendingEvents {
		event, err := record.Event()
		if err != nil {
			logger.Warn("tracker: skipping undecodable event", zap.Int64("sequence", record.Sequence), zap.Error(err))
			skipped++
			continue
		}

		key := holderKey{raffleID: record.RaffleID, buyer: record.Buyer}
		if key.buyer == "" {
			continue
		}

		status, ok := statuses[key]
		if !ok {
			status = &storage.HolderStatus{RaffleID: key.raffleID, Buyer: key.buyer}
			statuses[key] = status
		}
		if record.Sequence <= status.LastSequence {
			continue
		}

		fold(status, event)
		status.LastSequence = record.Sequence
		changed[key] = status
	}

	next := make([]*storage.HolderStatus, 0, len(changed))
	for _, status := range changed {
		next = append(next, status)
	}

	if err := t.storage.UpdateHolderStatuses(t.ctx, next); err != nil {
		logger.Debug("cannot update holder statuses, exiting...")
		return 0, err
	}

	last := pendingEvents[len(pendingEvents)-1].Sequence
	if err := t.storage.UpdateEventTouch(t.ctx, &storage.EventTouch{Consumer: Consumer, Sequence: last}); err != nil {
		return 0, err
	}

	logger.Debug("tracker: events folded",
		zap.Int("events", len(pendingEvents)),
		zap.Int("statuses", len(next)),
		zap.Int("skipped", skipped),
		zap.Int64("touch", last),
	)
	t.recordPass(len(pendingEvents), last)
	return len(pendingEvents), nil
}

type holderKey struct {
	raffleID string
	buyer    string
}

func fold(status *storage.HolderStatus, event raffle.Event) {
	switch e := event.(type) {
	case *raffle.TicketPurchased:
		status.Tickets += e.Tickets
		status.Spent += e.Cost
	case *raffle.RaffleClosed:
		status.Won = true
	case *raffle.HolderProcessed:
		status.Settled = true
		if e.RefundedAmount != nil {
			status.Refunded += *e.RefundedAmount
		}
		if e.OwedAmount != nil {
			status.Owed += *e.OwedAmount
		}
		if e.TokensMinted != nil {
			status.TokensMinted += *e.TokensMinted
		}
	}
}

func (t *Tracker) recordPass(processed int, touch int64) {
	if t.metrics != nil {
		t.metrics.RecordTrackerPass(processed, touch)
	}
}
