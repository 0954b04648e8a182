// Package raffle implements the lifecycle state machine and settlement engine of a
// single-asset ticket raffle: the ticket ledger, the randomness gate, weighted winner
// selection, per-holder settlement of undersold raffles and the seller/platform/charity
// payout split.
package raffle

import (
	"math"
	"slices"
	"time"
)

const (
	// TotalTickets is the fixed ticket capacity of every raffle.
	TotalTickets uint64 = 10_000
	// FractionalSupply is the fixed supply of the fractional ownership token.
	FractionalSupply uint64 = 1_000_000
	// MaxProceeds bounds UnitPrice*TotalTickets. Every amount a raffle moves or records
	// stays within a signed 64-bit integer.
	MaxProceeds uint64 = math.MaxInt64
)

// AccountID is an opaque account reference compared by value.
type AccountID string

// Status is the closure state of a raffle.
type Status string

const (
	StatusOpen               Status = "open"
	StatusAwaitingRandomness Status = "awaiting_randomness"
	StatusClosedFull         Status = "closed_full"
	StatusClosedPartial      Status = "closed_partial"
	StatusPaidOut            Status = "paid_out"
)

// PaymentChannel tags how a holder paid for tickets.
type PaymentChannel string

const (
	ChannelOnChain  PaymentChannel = "on_chain"
	ChannelExternal PaymentChannel = "external"
)

// HolderExtension carries compliance and payment channel data for holders recorded by an
// engine running with a compliance verifier or accepting externally settled payments.
type HolderExtension struct {
	KYCVerified bool           `json:"kyc_verified"`
	Channel     PaymentChannel `json:"channel"`
}

// TicketHolder is a buyer's aggregated ticket position.
type TicketHolder struct {
	Buyer        AccountID        `json:"buyer"`
	Tickets      uint64           `json:"tickets"`
	TokenAccount AccountID        `json:"token_account"`
	Extension    *HolderExtension `json:"extension,omitempty"`
}

// Channel returns the holder's payment channel, defaulting to on-chain.
func (h TicketHolder) Channel() PaymentChannel {
	if h.Extension == nil || h.Extension.Channel == "" {
		return ChannelOnChain
	}
	return h.Extension.Channel
}

// Raffle is the persisted state of one offering.
//
// Sold counts every ticket ever sold. Settled counts tickets whose holder record was
// drained by settlement, so Sold always equals the outstanding holder tickets plus Settled.
// Refunded is the part of Settled whose value was returned, External the tickets paid
// through an externally settled channel whose value was never moved into escrow.
type Raffle struct {
	ID                string         `json:"id"`
	AssetID           string         `json:"asset_id"`
	Seller            AccountID      `json:"seller"`
	Escrow            AccountID      `json:"escrow"`
	UnitPrice         uint64         `json:"unit_price"`
	Capacity          uint64         `json:"capacity"`
	Sold              uint64         `json:"tickets_sold"`
	Settled           uint64         `json:"tickets_settled"`
	Refunded          uint64         `json:"tickets_refunded"`
	External          uint64         `json:"tickets_external"`
	TokensMinted      uint64         `json:"tokens_minted"`
	Winner            *AccountID     `json:"winner,omitempty"`
	RandomValue       *uint64        `json:"random_value,omitempty"`
	RandomnessRequest string         `json:"randomness_request,omitempty"`
	Status            Status         `json:"status"`
	AllowFractional   bool           `json:"allow_fractional"`
	NFTMint           AccountID      `json:"nft_mint"`
	TokenMint         AccountID      `json:"token_mint"`
	Holders           []TicketHolder `json:"holders"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// IsCompleted reports whether the raffle has been closed by either path.
func (r *Raffle) IsCompleted() bool {
	switch r.Status {
	case StatusClosedFull, StatusClosedPartial, StatusPaidOut:
		return true
	}
	return false
}

// IsFullSale reports whether every ticket has been sold.
func (r *Raffle) IsFullSale() bool {
	return r.Sold == r.Capacity
}

// Remaining returns the number of unsold tickets.
func (r *Raffle) Remaining() uint64 {
	return r.Capacity - r.Sold
}

// Holder returns the holder record of buyer and its position in arrival order.
func (r *Raffle) Holder(buyer AccountID) (TicketHolder, int, bool) {
	i := slices.IndexFunc(r.Holders, func(h TicketHolder) bool { return h.Buyer == buyer })
	if i < 0 {
		return TicketHolder{}, -1, false
	}
	return r.Holders[i], i, true
}

// OutstandingTickets sums the ticket counts of holders not yet settled.
func (r *Raffle) OutstandingTickets() uint64 {
	var total uint64
	for _, h := range r.Holders {
		total += h.Tickets
	}
	return total
}

// Clone returns a deep copy that can be mutated without touching r.
func (r *Raffle) Clone() *Raffle {
	c := *r
	if r.Winner != nil {
		w := *r.Winner
		c.Winner = &w
	}
	if r.RandomValue != nil {
		v := *r.RandomValue
		c.RandomValue = &v
	}
	c.Holders = make([]TicketHolder, len(r.Holders))
	for i, h := range r.Holders {
		if h.Extension != nil {
			ext := *h.Extension
			h.Extension = &ext
		}
		c.Holders[i] = h
	}
	return &c
}

// TokensPerTicket is the fractional allocation of a single ticket. Integer division; any
// remainder of FractionalSupply/capacity is never minted.
func (r *Raffle) TokensPerTicket() uint64 {
	if r.Capacity == 0 {
		return 0
	}
	return FractionalSupply / r.Capacity
}
