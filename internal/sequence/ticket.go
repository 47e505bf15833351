package sequence

// Ticket identifies the beat an asynchronous collaborator (audio decoder,
// pose estimator) was asked about. Results carrying a stale ticket are
// dropped.
type Ticket struct {
	Address    Address
	Generation uint64
}

// Window is the half-open range [Start, End) of flat beat indices currently
// visible. The zero Window accepts the whole grid.
type Window struct {
	Start, End int
}

// Contains reports whether flat index i is visible.
func (w Window) Contains(i int) bool {
	if w == (Window{}) {
		return true
	}
	return i >= w.Start && i < w.End
}

// Ticket issues a ticket for addr in the current generation.
func (s *Store) Ticket(addr Address) Ticket {
	return Ticket{Address: addr, Generation: s.generation}
}

// Accept reports whether a result for t may still be applied: the store
// has not been replaced since, the address still exists and it lies in
// the visible window.
func (s *Store) Accept(t Ticket, w Window) bool {
	if t.Generation != s.generation {
		return false
	}
	i, ok := s.Current().Index(t.Address)
	if !ok {
		return false
	}
	return w.Contains(i)
}
