package raffle

import "errors"

// Error categories. Every specific raffle error matches exactly one of them with errors.Is.
var (
	ErrState      = errors.New("raffle state violation")
	ErrArithmetic = errors.New("capacity or arithmetic violation")
	ErrBinding    = errors.New("account binding mismatch")
	ErrNotFound   = errors.New("missing entity")
	ErrInvalid    = errors.New("invalid argument")
)

// Error is a named raffle failure.
type Error struct {
	Code     string
	category error
	message  string
}

func newError(code string, category error, message string) *Error {
	return &Error{Code: code, category: category, message: message}
}

func (e *Error) Error() string {
	return e.message
}

// Is matches the error's category so callers can branch on either level.
func (e *Error) Is(target error) bool {
	return target == e.category
}

// Category returns the category sentinel of e.
func (e *Error) Category() error {
	return e.category
}

// state violations
var (
	ErrRaffleCompleted            = newError("raffle_completed", ErrState, "raffle is already completed")
	ErrRaffleNotClosed            = newError("raffle_not_closed", ErrState, "raffle not yet closed")
	ErrNotEnoughTickets           = newError("not_enough_tickets", ErrState, "not enough tickets sold to select winner")
	ErrUseFulfillRandomness       = newError("use_fulfill_randomness", ErrState, "full sale raffle must be closed through randomness fulfillment")
	ErrRandomnessAlreadyFulfilled = newError("randomness_fulfilled", ErrState, "randomness already fulfilled")
	ErrHoldersNotProcessed        = newError("holders_not_processed", ErrState, "ticket holders not yet processed")
	ErrNotFullSale                = newError("not_full_sale", ErrState, "not a full sale")
	ErrFullSale                   = newError("full_sale", ErrState, "full sale")
	ErrFractionalAllowed          = newError("fractional_allowed", ErrState, "fractional ownership is allowed, use the fractional minted payout")
	ErrFractionalNotAllowed       = newError("fractional_not_allowed", ErrState, "fractional ownership is not allowed, use the fractional plain payout")
	ErrSalesStarted               = newError("sales_started", ErrState, "fractional policy cannot change after tickets are sold")
	ErrAlreadyPaidOut             = newError("already_paid_out", ErrState, "raffle payout already processed")
	ErrTransferNotConfirmed       = newError("transfer_not_confirmed", ErrState, "property transfer not confirmed")
	ErrInvalidTransition          = newError("invalid_transition", ErrState, "invalid raffle status transition")
)

// capacity and arithmetic violations
var (
	ErrTicketLimitExceeded = newError("ticket_limit_exceeded", ErrArithmetic, "ticket limit exceeded")
	ErrMathOverflow        = newError("math_overflow", ErrArithmetic, "math overflow")
	ErrMintBoundExceeded   = newError("mint_bound_exceeded", ErrArithmetic, "fractional supply exceeded")
	ErrPriceTooHigh        = newError("ticket_price_too_high", ErrArithmetic, "ticket price times capacity exceeds the maximum raffle proceeds")
)

// identity and binding mismatches
var (
	ErrInvalidEscrow             = newError("invalid_escrow", ErrBinding, "invalid escrow account")
	ErrInvalidHolderAccount      = newError("invalid_holder_account", ErrBinding, "invalid holder account")
	ErrInvalidHolderTokenAccount = newError("invalid_holder_token_account", ErrBinding, "invalid holder token account")
	ErrInvalidTokenAccountMint   = newError("invalid_token_account_mint", ErrBinding, "token account mint does not match raffle mint")
	ErrInvalidTokenAccountOwner  = newError("invalid_token_account_owner", ErrBinding, "token account owner does not match expected owner")
	ErrInvalidTokenAccountAmount = newError("invalid_token_account_amount", ErrBinding, "token account does not hold exactly 1 token")
	ErrInvalidMintAuthority      = newError("invalid_mint_authority", ErrBinding, "caller is not the mint authority of the fractional token")
	ErrNotSeller                 = newError("not_seller", ErrBinding, "caller is not the raffle seller")
	ErrComplianceNotVerified     = newError("compliance_not_verified", ErrBinding, "buyer has not passed compliance verification")
	ErrPaymentChannelMismatch    = newError("payment_channel_mismatch", ErrBinding, "payment channel differs from the holder's recorded channel")
)

// missing entities
var (
	ErrHolderNotFound  = newError("holder_not_found", ErrNotFound, "no ticket holder found")
	ErrNoWinner        = newError("no_winner", ErrNotFound, "no winner selected")
	ErrEmptyTicketPool = newError("empty_ticket_pool", ErrNotFound, "no tickets to select from")
	ErrRaffleNotFound  = newError("raffle_not_found", ErrNotFound, "raffle not found")
)

// invalid arguments
var (
	ErrInvalidRaffleID    = newError("invalid_raffle_id", ErrInvalid, "raffle id is required")
	ErrInvalidPrice       = newError("invalid_ticket_price", ErrInvalid, "ticket price must be positive")
	ErrInvalidTicketCount = newError("invalid_ticket_count", ErrInvalid, "ticket count must be positive")
	ErrInvalidChannel     = newError("invalid_payment_channel", ErrInvalid, "unknown payment channel")
	ErrInvalidAccount     = newError("invalid_account", ErrInvalid, "account reference is required")
)

// Code returns the stable code of a raffle error, or "internal" for anything else.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
