package raffle

// SelectWinner maps value onto the holders' contiguous ticket ranges in arrival order. A holder
// with k tickets owns k of the total slots, so every ticket carries equal weight.
func SelectWinner(value uint64, holders []TicketHolder) (AccountID, error) {
	var total uint64
	for _, h := range holders {
		var err error
		if total, err = checkedAdd(total, h.Tickets); err != nil {
			return "", err
		}
	}
	if total == 0 {
		return "", ErrEmptyTicketPool
	}

	index := value % total
	var cumulative uint64
	for _, h := range holders {
		cumulative += h.Tickets
		if index < cumulative {
			return h.Buyer, nil
		}
	}

	return "", ErrEmptyTicketPool
}

// TicketRange returns the half-open slot range [start, end) buyer occupies in holders.
func TicketRange(holders []TicketHolder, buyer AccountID) (start, end uint64, err error) {
	var cumulative uint64
	for _, h := range holders {
		if h.Buyer == buyer {
			return cumulative, cumulative + h.Tickets, nil
		}
		cumulative += h.Tickets
	}
	return 0, 0, ErrHolderNotFound
}
