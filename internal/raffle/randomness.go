package raffle

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

var errNoRandomnessSource = errors.New("randomness source is not configured")

// RequestRandomness issues an outbound randomness request for a sold out raffle. Repeated
// requests before fulfillment are allowed; only the first fulfillment takes effect.
func (e *Engine) RequestRandomness(ctx context.Context, r *Raffle) (string, error) {
	if r.IsCompleted() {
		return "", ErrRaffleCompleted
	}
	if !r.IsFullSale() {
		return "", ErrNotEnoughTickets
	}
	if e.randomness == nil {
		return "", errNoRandomnessSource
	}

	id, err := e.randomness.Request(ctx, r.ID, randomnessSeed(r))
	if err != nil {
		return "", fmt.Errorf("request randomness: %w", err)
	}

	r.RandomnessRequest = id
	e.touch(r)
	return id, nil
}

// FulfillRandomness consumes value, selects the winner and closes the raffle as a full sale.
func (e *Engine) FulfillRandomness(_ context.Context, r *Raffle, value uint64) (*RaffleClosed, error) {
	if r.IsCompleted() {
		return nil, ErrRaffleCompleted
	}
	if !r.IsFullSale() {
		return nil, ErrNotEnoughTickets
	}
	if r.RandomValue != nil {
		return nil, ErrRandomnessAlreadyFulfilled
	}

	winner, err := SelectWinner(value, r.Holders)
	if err != nil {
		return nil, err
	}
	if err := r.transition(StatusClosedFull); err != nil {
		return nil, err
	}

	r.RandomValue = &value
	r.Winner = &winner
	e.touch(r)

	return &RaffleClosed{RaffleID: r.ID, FullSale: true, Winner: &winner}, nil
}

// randomnessSeed commits the request to the raffle identity and its final holder table.
func randomnessSeed(r *Raffle) []byte {
	h := sha256.New()
	h.Write([]byte(r.ID))

	var buf [8]byte
	for _, holder := range r.Holders {
		h.Write([]byte(holder.Buyer))
		binary.BigEndian.PutUint64(buf[:], holder.Tickets)
		h.Write(buf[:])
	}
	return h.Sum(nil)
}
