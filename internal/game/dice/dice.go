// Package dice provides the randomness abstraction behind gameplay decisions such as
// power-up spawn rolls and power-up type selection.
package dice

// Source is the randomness provider for gameplay rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
	// Float64 returns a random float in [0.0, 1.0).
	Float64() float64
}

// Chance reports whether a roll against probability p succeeds.
//
// Postcondition: Always false when p <= 0; always true when p >= 1.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float64() < p
}

// Pick returns a uniformly chosen element of options.
//
// Precondition: options must be non-empty.
func Pick[T any](src Source, options []T) T {
	if len(options) == 0 {
		panic("dice: Pick called with no options")
	}
	return options[src.Intn(len(options))]
}
