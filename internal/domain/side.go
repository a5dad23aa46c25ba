package domain

import "fmt"

// Side is a binary outcome.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// SideOf maps a boolean prediction to a side.
func SideOf(yes bool) Side {
	if yes {
		return SideYes
	}
	return SideNo
}

// IsYes reports whether s is the yes side.
func (s Side) IsYes() bool {
	return s == SideYes
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Valid reports whether s is yes or no.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// ParseSide parses "yes" or "no".
func ParseSide(v string) (Side, error) {
	s := Side(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown side %q", ErrValidation, v)
	}
	return s, nil
}

// SwapDirection selects the input and output reserves of a swap.
type SwapDirection string

const (
	YesToNo SwapDirection = "yes_to_no"
	NoToYes SwapDirection = "no_to_yes"
)

// Valid reports whether d is a known direction.
func (d SwapDirection) Valid() bool {
	return d == YesToNo || d == NoToYes
}

// Input returns the side paid into the pool.
func (d SwapDirection) Input() Side {
	if d == YesToNo {
		return SideYes
	}
	return SideNo
}

// Output returns the side paid out of the pool.
func (d SwapDirection) Output() Side {
	return d.Input().Opposite()
}

// DirectionFrom returns the direction that pays side in.
func DirectionFrom(in Side) SwapDirection {
	if in == SideYes {
		return YesToNo
	}
	return NoToYes
}

// ParseSwapDirection parses "yes_to_no" or "no_to_yes".
func ParseSwapDirection(v string) (SwapDirection, error) {
	d := SwapDirection(v)
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown swap direction %q", ErrValidation, v)
	}
	return d, nil
}
