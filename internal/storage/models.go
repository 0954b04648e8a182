package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/raosunjoy/HomeChance-Lottery/internal/raffle"
)

type RaffleRecord struct {
	ID                string `gorm:"primaryKey"`
	AssetID           string
	Seller            string `gorm:"index;not null"`
	Escrow            string `gorm:"not null"`
	UnitPrice         uint64 `gorm:"not null"`
	Capacity          uint64 `gorm:"not null"`
	Sold              uint64 `gorm:"default:0"`
	Settled           uint64 `gorm:"default:0"`
	Refunded          uint64 `gorm:"default:0"`
	External          uint64 `gorm:"default:0"`
	TokensMinted      uint64 `gorm:"default:0"`
	Winner            *string
	RandomValue       *string // decimal, sqlite integers are signed
	RandomnessRequest string
	Status            string `gorm:"index;not null"`
	AllowFractional   bool
	NFTMint           string         `gorm:"not null"`
	TokenMint         string         `gorm:"not null"`
	Holders           []HolderRecord `gorm:"foreignKey:RaffleID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time      `gorm:"autoCreateTime:false"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime:false"`
}

type HolderRecord struct {
	RaffleID     string `gorm:"primaryKey"`
	Buyer        string `gorm:"primaryKey"`
	Position     int    `gorm:"not null"`
	Tickets      uint64 `gorm:"not null"`
	TokenAccount string `gorm:"not null"`
	Extended     bool
	KYCVerified  bool
	Channel      string
}

// EventRecord is one entry of the append-only event log. Sequence orders entries globally.
type EventRecord struct {
	Sequence     int64     `gorm:"primaryKey;autoIncrement" json:"sequence"`
	EventID      string    `gorm:"uniqueIndex;not null" json:"event_id"`
	RaffleID     string    `gorm:"index;not null" json:"raffle_id"`
	Kind         string    `gorm:"index;not null" json:"kind"`
	Buyer        string    `gorm:"index" json:"buyer,omitempty"`
	Tickets      uint64    `gorm:"default:0" json:"tickets,omitempty"`
	Amount       uint64    `gorm:"default:0" json:"amount,omitempty"`
	TokensMinted uint64    `gorm:"default:0" json:"tokens_minted,omitempty"`
	Payload      string    `gorm:"type:text;not null" json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
}

// HolderStatus is the per buyer projection folded from the event log.
type HolderStatus struct {
	RaffleID     string `gorm:"primaryKey" json:"raffle_id"`
	Buyer        string `gorm:"primaryKey" json:"buyer"`
	Tickets      uint64 `gorm:"default:0" json:"tickets"`
	Spent        uint64 `gorm:"default:0" json:"spent"`
	Refunded     uint64 `gorm:"default:0" json:"refunded"`
	Owed         uint64 `gorm:"default:0" json:"owed"`
	TokensMinted uint64 `gorm:"default:0" json:"tokens_minted"`
	Settled      bool   `gorm:"default:false" json:"settled"`
	Won          bool   `gorm:"default:false" json:"won"`
	LastSequence int64  `gorm:"default:0" json:"last_sequence"`
}

type EventTouch struct {
	Consumer string `gorm:"primaryKey"`
	Sequence int64  `gorm:"not null"`
}

func newRaffleRecord(r *raffle.Raffle) *RaffleRecord {
	record := &RaffleRecord{
		ID:                r.ID,
		AssetID:           r.AssetID,
		Seller:            string(r.Seller),
		Escrow:            string(r.Escrow),
		UnitPrice:         r.UnitPrice,
		Capacity:          r.Capacity,
		Sold:              r.Sold,
		Settled:           r.Settled,
		Refunded:          r.Refunded,
		External:          r.External,
		TokensMinted:      r.TokensMinted,
		RandomnessRequest: r.RandomnessRequest,
		Status:            string(r.Status),
		AllowFractional:   r.AllowFractional,
		NFTMint:           string(r.NFTMint),
		TokenMint:         string(r.TokenMint),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.Winner != nil {
		winner := string(*r.Winner)
		record.Winner = &winner
	}
	if r.RandomValue != nil {
		value := strconv.FormatUint(*r.RandomValue, 10)
		record.RandomValue = &value
	}

	record.Holders = make([]HolderRecord, 0, len(r.Holders))
	for i, h := range r.Holders {
		holder := HolderRecord{
			RaffleID:     r.ID,
			Buyer:        string(h.Buyer),
			Position:     i,
			Tickets:      h.Tickets,
			TokenAccount: string(h.TokenAccount),
		}
		if h.Extension != nil {
			holder.Extended = true
			holder.KYCVerified = h.Extension.KYCVerified
			holder.Channel = string(h.Extension.Channel)
		}
		record.Holders = append(record.Holders, holder)
	}
	return record
}

// Raffle converts the record back. Holders must be loaded ordered by position.
func (record *RaffleRecord) Raffle() (*raffle.Raffle, error) {
	r := &raffle.Raffle{
		ID:                record.ID,
		AssetID:           record.AssetID,
		Seller:            raffle.AccountID(record.Seller),
		Escrow:            raffle.AccountID(record.Escrow),
		UnitPrice:         record.UnitPrice,
		Capacity:          record.Capacity,
		Sold:              record.Sold,
		Settled:           record.Settled,
		Refunded:          record.Refunded,
		External:          record.External,
		TokensMinted:      record.TokensMinted,
		RandomnessRequest: record.RandomnessRequest,
		Status:            raffle.Status(record.Status),
		AllowFractional:   record.AllowFractional,
		NFTMint:           raffle.AccountID(record.NFTMint),
		TokenMint:         raffle.AccountID(record.TokenMint),
		Holders:           make([]raffle.TicketHolder, 0, len(record.Holders)),
		CreatedAt:         record.CreatedAt.UTC(),
		UpdatedAt:         record.UpdatedAt.UTC(),
	}
	if record.Winner != nil {
		winner := raffle.AccountID(*record.Winner)
		r.Winner = &winner
	}
	if record.RandomValue != nil {
		value, err := strconv.ParseUint(*record.RandomValue, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("raffle %s random value: %w", record.ID, err)
		}
		r.RandomValue = &value
	}

	for _, h := range record.Holders {
		holder := raffle.TicketHolder{
			Buyer:        raffle.AccountID(h.Buyer),
			Tickets:      h.Tickets,
			TokenAccount: raffle.AccountID(h.TokenAccount),
		}
		if h.Extended {
			holder.Extension = &raffle.HolderExtension{KYCVerified: h.KYCVerified, Channel: raffle.PaymentChannel(h.Channel)}
		}
		r.Holders = append(r.Holders, holder)
	}
	return r, nil
}

// NewEventRecord flattens event into a log entry with a fresh event id.
func NewEventRecord(event raffle.Event, createdAt time.Time) (*EventRecord, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event.Kind(), err)
	}

	record := &EventRecord{
		EventID:   uuid.NewString(),
		RaffleID:  event.Raffle(),
		Kind:      string(event.Kind()),
		Payload:   string(payload),
		CreatedAt: createdAt.UTC(),
	}

	switch e := event.(type) {
	case *raffle.TicketPurchased:
		record.Buyer = string(e.Buyer)
		record.Tickets = e.Tickets
		record.Amount = e.Cost
	case *raffle.RaffleClosed:
		if e.Winner != nil {
			record.Buyer = string(*e.Winner)
		}
	case *raffle.HolderProcessed:
		record.Buyer = string(e.Buyer)
		record.Tickets = e.Tickets
		switch {
		case e.RefundedAmount != nil:
			record.Amount = *e.RefundedAmount
		case e.OwedAmount != nil:
			record.Amount = *e.OwedAmount
		}
		if e.TokensMinted != nil {
			record.TokensMinted = *e.TokensMinted
		}
	case *raffle.PayoutProcessed:
		record.Amount = e.SellerPayout
		if e.Winner != nil {
			record.Buyer = string(*e.Winner)
		}
		if e.SellerTokensMinted != nil {
			record.TokensMinted = *e.SellerTokensMinted
		}
	}
	return record, nil
}

// Event decodes the typed event stored in the record payload.
func (record *EventRecord) Event() (raffle.Event, error) {
	var event raffle.Event
	switch raffle.EventKind(record.Kind) {
	case raffle.EventTicketPurchased:
		event = &raffle.TicketPurchased{}
	case raffle.EventRaffleClosed:
		event = &raffle.RaffleClosed{}
	case raffle.EventHolderProcessed:
		event = &raffle.HolderProcessed{}
	case raffle.EventPayoutProcessed:
		event = &raffle.PayoutProcessed{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", record.Kind)
	}

	if err := json.Unmarshal([]byte(record.Payload), event); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", record.EventID, err)
	}
	return event, nil
}
