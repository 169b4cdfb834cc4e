package game

// Role distinguishes the dealer seat from player seats. Dealer-specific
// rules live at the few points where they genuinely differ: hole-card
// visibility, turn order, and the H17 drawing policy.
type Role int

const (
	RolePlayer Role = iota
	RoleDealer
)

// String returns the string representation of a role
func (r Role) String() string {
	switch r {
	case RoleDealer:
		return "dealer"
	default:
		return "player"
	}
}

// Seat represents a participant in the game. The dealer occupies a seat
// with RoleDealer and always has exactly one hand; player seats gain extra
// hands by splitting.
type Seat struct {
	ID        string
	Name      string
	Role      Role
	Hands     []*Hand
	HandIndex int
}

func newSeat(id, name string, role Role) *Seat {
	return &Seat{
		ID:    id,
		Name:  name,
		Role:  role,
		Hands: []*Hand{newHand()},
	}
}

// CurrentHand returns the hand currently being played.
func (s *Seat) CurrentHand() *Hand {
	return s.Hands[s.HandIndex]
}

// HasMultipleHands reports whether the seat has split.
func (s *Seat) HasMultipleHands() bool {
	return len(s.Hands) > 1
}

// AllHandsFinished reports whether every hand of the seat is resolved.
func (s *Seat) AllHandsFinished() bool {
	for _, h := range s.Hands {
		if !h.Finished() {
			return false
		}
	}
	return true
}
