package raffle

import "context"

var transitions = map[Status][]Status{
	StatusOpen:               {StatusAwaitingRandomness, StatusClosedPartial},
	StatusAwaitingRandomness: {StatusClosedFull},
	StatusClosedFull:         {StatusPaidOut},
	StatusClosedPartial:      {StatusPaidOut},
}

// CanTransition reports whether the closure state machine permits from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (r *Raffle) transition(to Status) error {
	if !CanTransition(r.Status, to) {
		return ErrInvalidTransition
	}
	r.Status = to
	return nil
}

// CloseUndersold closes a raffle that did not sell out, moving it to the settlement queue.
func (e *Engine) CloseUndersold(_ context.Context, r *Raffle) (*RaffleClosed, error) {
	if r.IsCompleted() {
		return nil, ErrRaffleCompleted
	}
	if r.IsFullSale() {
		return nil, ErrUseFulfillRandomness
	}

	if err := r.transition(StatusClosedPartial); err != nil {
		return nil, err
	}
	e.touch(r)

	return &RaffleClosed{RaffleID: r.ID, FullSale: false}, nil
}
