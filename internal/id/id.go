package id

// Sequence hands out increasing transaction IDs. It is independent of how
// many transactions currently exist, so an ID is never handed out twice
// unless the sequence is explicitly reset.
type Sequence struct {
	last int
}

// Next returns the next unused ID. The first ID is 1.
func (s *Sequence) Next() int {
	s.last++
	return s.last
}

// Observe records that id is in use, so later calls to Next skip past it.
func (s *Sequence) Observe(id int) {
	if id > s.last {
		s.last = id
	}
}

// Last returns the most recently issued or observed ID, 0 if none.
func (s *Sequence) Last() int {
	return s.last
}

// Reset forgets every issued ID.
func (s *Sequence) Reset() {
	s.last = 0
}
