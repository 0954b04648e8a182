// Package service serializes raffle operations per raffle and persists each outcome together with
// the events it produced.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raosunjoy/HomeChance-Lottery/internal/logger"
	"github.com/raosunjoy/HomeChance-Lottery/internal/metrics"
	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
	"github.com/raosunjoy/HomeChance-Lottery/internal/storage"
)

type Service struct {
	engine  *raffle.Engine
	storage storage.Storage
	metrics *metrics.Collector
	locks   sync.Map
}

// New builds a Service. collector may be nil.
func New(engine *raffle.Engine, storage storage.Storage, collector *metrics.Collector) *Service {
	return &Service{engine: engine, storage: storage, metrics: collector}
}

func (s *Service) lock(id string) func() {
	value, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// mutate runs fn on a copy of the stored raffle and persists the copy with the returned events.
// The stored raffle is untouched when fn fails.
func (s *Service) mutate(ctx context.Context, operation, id string, fn func(r *raffle.Raffle) ([]raffle.Event, error)) (r *raffle.Raffle, err error) {
	logger.Debug(operation+"...", zap.String("raffle_id", id))
	started := time.Now()
	defer func() { s.record(operation, started, err) }()

	unlock := s.lock(id)
	defer unlock()

	current, err := s.storage.GetRaffle(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	events, err := fn(next)
	if err != nil {
		logger.Debug(operation+" rejected", zap.String("raffle_id", id), zap.String("code", raffle.Code(err)), zap.Error(err))
		return nil, err
	}

	if _, err := s.storage.SaveRaffle(ctx, next, events); err != nil {
		// value movements of fn are already committed on the chain
		logger.Error("raffle state not persisted after chain execution",
			zap.String("raffle_id", id),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return nil, err
	}

	for _, event := range events {
		if s.metrics != nil {
			s.metrics.RecordEvent(event)
		}
		logger.Info("raffle event", zap.String("raffle_id", id), zap.String("kind", string(event.Kind())))
	}

	logger.Debug(operation+"... done", zap.String("raffle_id", id), zap.String("status", string(next.Status)))
	return next, nil
}

func (s *Service) record(operation string, started time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordOperation(operation, time.Since(started), err)
	}
}

func (s *Service) Create(ctx context.Context, req raffle.CreateRequest) (r *raffle.Raffle, err error) {
	logger.Debug("create raffle...", zap.String("raffle_id", req.ID), zap.String("seller", string(req.Seller)))
	started := time.Now()
	defer func() { s.record("create", started, err) }()

	unlock := s.lock(req.ID)
	defer unlock()

	if _, err := s.storage.GetRaffle(ctx, req.ID); err == nil {
		return nil, storage.ErrRaffleExists
	} else if !errors.Is(err, raffle.ErrRaffleNotFound) {
		return nil, err
	}

	r, err = s.engine.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.storage.CreateRaffle(ctx, r); err != nil {
		return nil, err
	}

	logger.Info("raffle created", zap.String("raffle_id", r.ID), zap.String("escrow", string(r.Escrow)), zap.Uint64("unit_price", r.UnitPrice))
	return r, nil
}

func (s *Service) SetFractionalPolicy(ctx context.Context, id string, caller raffle.AccountID, allow bool) (*raffle.Raffle, error) {
	return s.mutate(ctx, "set_fractional_policy", id, func(r *raffle.Raffle) ([]raffle.Event, error) {
		return nil, s.engine.SetFractionalPolicy(ctx, r, caller, allow)
	})
}

func (s *Service) Purchase(ctx context.Context, id string, req raffle.PurchaseRequest) (*raffle.Raffle, *raffle.TicketPurchased, error) {
	var event *raffle.TicketPurchased
	r, err := s.mutate(ctx, "purchase", id, func(r *raffle.Raffle) ([]raffle.Event, error) {
		var err error
		if event, err = s.engine.Purchase(ctx, r, req); err != nil {
			return nil, err
		}
		return []raffle.Event{event}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return r, event, nil
}

func (s *Service) RequestRandomness(ctx context.Context, id string) (*raffle.Raffle, string, error) {
	var requestID string
	r, err := s.mutate(ctx, "request_randomness", id, func(r *raffle.Raffle) ([]raffle.Event, error) {
		var err error
		requestID, err = s.engine.RequestRandomness(ctx, r)
		return nil, err
	})
	if err != nil {
		return nil, "", err
	}
	return r, requestID, nil
}

func (s *Service) FulfillRandomness(ctx context.Context, id string, value uint64) (*raffle.Raffle, *raffle.RaffleClosed, error) {
	var event *raffle.RaffleClosed
	r, err := s.mutate(ctx, "fulfill_randomness", id, func(r *raffle.Raffle) ([]raffle.Event, error) {
		var err error
		if event, err = s.engine.FulfillRandomness(ctx, r, value); err != nil {
			return nil, err
		}
		return []raffle.Event{event}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return r, event, nil
}

func (s *Service) CloseUndersold(ctx context.Context, id string) (*raffle.Raffle, *raffle.RaffleClosed, error) {
	var event *raffle.RaffleClosed
	r, err := s.mutate(ctx, "close_undersold", id, func(r *raffle.Raffle) ([]raffle.Event, error) {
		var err error
		if event, err = s.engine.CloseUndersold(ctx, r); err != nil {
			return nil, err
		}
		return []raffle.Event{event}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return r, event, nil
}

func (s *Service) SettleHolder(ctx context.Context, id string, req raffle.SettleRequest) (*raffle.Raffle, *raffle.HolderProcessed, error) {
	var event *raffle.HolderProcessed
	r, err := s.mutate(ctx, "settle_holder", id, func(r *raffle.Raffle) ([]raffle.Event, error) {
		var err error
		if event, err = s.engine.SettleHolder(ctx, r, req); err != nil {
			return nil, err
		}
		return []raffle.Event{event}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return r, event, nil
}

func (s *Service) PayoutFull(ctx context.Context, id string, req raffle.PayoutFullRequest) (*raffle.Raffle, *raffle.PayoutProcessed, error) {
	return s.payout(ctx, "payout_full", id, func(r *raffle.Raffle) (*raffle.PayoutProcessed, error) {
		return s.engine.PayoutFull(ctx, r, req)
	})
}

func (s *Service) PayoutFractionalMinted(ctx context.Context, id string, req raffle.PayoutFractionalMintedRequest) (*raffle.Raffle, *raffle.PayoutProcessed, error) {
	return s.payout(ctx, "payout_fractional_minted", id, func(r *raffle.Raffle) (*raffle.PayoutProcessed, error) {
		return s.engine.PayoutFractionalMinted(ctx, r, req)
	})
}

func (s *Service) PayoutFractionalPlain(ctx context.Context, id string, req raffle.PayoutFractionalPlainRequest) (*raffle.Raffle, *raffle.PayoutProcessed, error) {
	return s.payout(ctx, "payout_fractional_plain", id, func(r *raffle.Raffle) (*raffle.PayoutProcessed, error) {
		return s.engine.PayoutFractionalPlain(ctx, r, req)
	})
}

func (s *Service) payout(ctx context.Context, operation, id string, fn func(r *raffle.Raffle) (*raffle.PayoutProcessed, error)) (*raffle.Raffle, *raffle.PayoutProcessed, error) {
	var event *raffle.PayoutProcessed
	r, err := s.mutate(ctx, operation, id, func(r *raffle.Raffle) ([]raffle.Event, error) {
		var err error
		if event, err = fn(r); err != nil {
			return nil, err
		}
		return []raffle.Event{event}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("raffle paid out",
		zap.String("raffle_id", id),
		zap.Uint64("seller_payout", event.SellerPayout),
		zap.Uint64("platform_revenue", event.PlatformRevenue),
		zap.Uint64("charity_contribution", event.CharityContribution),
	)
	return r, event, nil
}

func (s *Service) Get(ctx context.Context, id string) (*raffle.Raffle, error) {
	return s.storage.GetRaffle(ctx, id)
}

func (s *Service) List(ctx context.Context, status raffle.Status) ([]*raffle.Raffle, error) {
	return s.storage.ListRaffles(ctx, status)
}

func (s *Service) Events(ctx context.Context, id string) ([]*storage.EventRecord, error) {
	if _, err := s.storage.GetRaffle(ctx, id); err != nil {
		return nil, err
	}
	return s.storage.GetEvents(ctx, id)
}

func (s *Service) HolderStatuses(ctx context.Context, id string) ([]*storage.HolderStatus, error) {
	if _, err := s.storage.GetRaffle(ctx, id); err != nil {
		return nil, err
	}
	return s.storage.GetHolderStatuses(ctx, id)
}
