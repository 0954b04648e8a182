package raffle

// EventKind names a notification for off-chain observers.
type EventKind string

const (
	EventTicketPurchased EventKind = "ticket_purchased"
	EventRaffleClosed    EventKind = "raffle_closed"
	EventPayoutProcessed EventKind = "payout_processed"
	EventHolderProcessed EventKind = "holder_processed"
)

type Event interface {
	Kind() EventKind
	Raffle() string
}

type TicketPurchased struct {
	RaffleID string         `json:"raffle_id"`
	Buyer    AccountID      `json:"buyer"`
	Tickets  uint64         `json:"num_tickets"`
	Channel  PaymentChannel `json:"channel"`
	Cost     uint64         `json:"cost"`
}

type RaffleClosed struct {
	RaffleID string     `json:"raffle_id"`
	FullSale bool       `json:"is_full_sale"`
	Winner   *AccountID `json:"winner,omitempty"`
}

// PayoutProcessed reports the split of a terminal payout. ExternalOwed is the part of the
// split backed by externally settled payments and therefore not moved out of escrow.
type PayoutProcessed struct {
	RaffleID            string     `json:"raffle_id"`
	SellerPayout        uint64     `json:"seller_payout"`
	PlatformRevenue     uint64     `json:"platform_revenue"`
	CharityContribution uint64     `json:"charity_contribution"`
	SellerTokensMinted  *uint64    `json:"seller_tokens_minted,omitempty"`
	Winner              *AccountID `json:"winner,omitempty"`
	ExternalOwed        Split      `json:"external_owed"`
}

type HolderProcessed struct {
	RaffleID       string    `json:"raffle_id"`
	Buyer          AccountID `json:"buyer"`
	Tickets        uint64    `json:"num_tickets"`
	RefundedAmount *uint64   `json:"refunded_amount,omitempty"`
	TokensMinted   *uint64   `json:"tokens_minted,omitempty"`
	OwedAmount     *uint64   `json:"owed_amount,omitempty"`
}

func (e *TicketPurchased) Kind() EventKind { return EventTicketPurchased }
func (e *TicketPurchased) Raffle() string  { return e.RaffleID }
func (e *RaffleClosed) Kind() EventKind    { return EventRaffleClosed }
func (e *RaffleClosed) Raffle() string     { return e.RaffleID }
func (e *PayoutProcessed) Kind() EventKind { return EventPayoutProcessed }
func (e *PayoutProcessed) Raffle() string  { return e.RaffleID }
func (e *HolderProcessed) Kind() EventKind { return EventHolderProcessed }
func (e *HolderProcessed) Raffle() string  { return e.RaffleID }
