package storage

import (
	"context"
	"errors"

	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

var ErrRaffleExists = errors.New("raffle already exists")

type Storage interface {
	// raffle
	CreateRaffle(ctx context.Context, r *raffle.Raffle) error
	GetRaffle(ctx context.Context, id string) (*raffle.Raffle, error)
	ListRaffles(ctx context.Context, status raffle.Status) ([]*raffle.Raffle, error)
	SaveRaffle(ctx context.Context, r *raffle.Raffle, events []raffle.Event) ([]*EventRecord, error)

	// event log
	GetEvents(ctx context.Context, raffleID string) ([]*EventRecord, error)
	GetPendingEvents(ctx context.Context, consumer string, limit int) ([]*EventRecord, error)

	// event touch
	GetEventTouch(ctx context.Context, consumer string) (int64, error)
	UpdateEventTouch(ctx context.Context, touch *EventTouch) error

	// holder status
	GetHolderStatuses(ctx context.Context, raffleID string) ([]*HolderStatus, error)
	GetHolderStatusesByBuyers(ctx context.Context, raffleID string, buyers []string) ([]*HolderStatus, error)
	UpdateHolderStatuses(ctx context.Context, statuses []*HolderStatus) error

	Close() error
}
