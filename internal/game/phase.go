package game

// Phase represents the lifecycle stage of a game
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseDealing
	PhasePlaying
	PhaseDealerTurn
	PhaseResults
	PhaseEnded
)

// String returns the string representation of a phase
func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseDealing:
		return "dealing"
	case PhasePlaying:
		return "playing"
	case PhaseDealerTurn:
		return "dealer_turn"
	case PhaseResults:
		return "results"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Terminal reports whether play is over
func (p Phase) Terminal() bool {
	return p == PhaseResults || p == PhaseEnded
}

// HandStatus represents the resolution state of a single hand
type HandStatus int

const (
	StatusActive HandStatus = iota
	StatusStand
	StatusBust
	StatusBlackjack
	StatusSplitAces
	StatusSurrender
)

// String returns the string representation of a hand status
func (s HandStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusStand:
		return "stand"
	case StatusBust:
		return "bust"
	case StatusBlackjack:
		return "blackjack"
	case StatusSplitAces:
		return "split_aces"
	case StatusSurrender:
		return "surrender"
	default:
		return "unknown"
	}
}

// Result is the settled outcome of one hand against the dealer
type Result int

const (
	ResultWin Result = iota
	ResultLose
	ResultPush
	ResultSurrender
)

// String returns the string representation of a result
func (r Result) String() string {
	switch r {
	case ResultWin:
		return "win"
	case ResultLose:
		return "lose"
	case ResultPush:
		return "push"
	case ResultSurrender:
		return "surrender"
	default:
		return "unknown"
	}
}
