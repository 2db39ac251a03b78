package reject

// Combined is the rejection of a stage composed from one that rejects with A
// and one that rejects with B. Exactly one side is set.
type Combined[A, B Rejection] struct {
	first    A
	second   B
	isSecond bool
}

// First wraps a rejection from the A side.
func First[A, B Rejection](a A) Combined[A, B] {
	return Combined[A, B]{first: a}
}

// Second wraps a rejection from the B side.
func Second[A, B Rejection](b B) Combined[A, B] {
	return Combined[A, B]{second: b, isSecond: true}
}

// First returns the A-side rejection, if that is the side that was set.
func (c Combined[A, B]) First() (A, bool) {
	return c.first, !c.isSecond
}

// Second returns the B-side rejection, if that is the side that was set.
func (c Combined[A, B]) Second() (B, bool) {
	return c.second, c.isSecond
}

func (c Combined[A, B]) inner() Rejection {
	if c.isSecond {
		return c.second
	}
	return c.first
}

func (c Combined[A, B]) Status() int   { return c.inner().Status() }
func (c Combined[A, B]) Error() string { return c.inner().Error() }
func (c Combined[A, B]) Unwrap() error { return c.inner() }
