package games

import (
	"fmt"

	"github.com/MJE43/rps-canvas/internal/engine"
)

// Choice is one of the three Rock-Paper-Scissors moves. The zero value is not a
// valid move.
type Choice uint8

const (
	Rock Choice = iota + 1
	Paper
	Scissors
)

var choices = [...]Choice{Rock, Paper, Scissors}

// Choices returns the moves in display order.
func Choices() []Choice {
	out := make([]Choice, len(choices))
	copy(out, choices[:])
	return out
}

func (c Choice) String() string {
	switch c {
	case Rock:
		return "rock"
	case Paper:
		return "paper"
	case Scissors:
		return "scissors"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the three moves.
func (c Choice) Valid() bool {
	return c >= Rock && c <= Scissors
}

// Beats reports whether c defeats other: rock beats scissors, paper beats
// rock, scissors beats paper.
func (c Choice) Beats(other Choice) bool {
	switch c {
	case Rock:
		return other == Scissors
	case Paper:
		return other == Rock
	case Scissors:
		return other == Paper
	default:
		return false
	}
}

// ParseChoice maps a lower-case move name to a Choice.
func ParseChoice(s string) (Choice, bool) {
	for _, c := range choices {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// MarshalText encodes the move name.
func (c Choice) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("games: invalid choice %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a move name.
func (c *Choice) UnmarshalText(text []byte) error {
	parsed, ok := ParseChoice(string(text))
	if !ok {
		return fmt.Errorf("games: unknown choice %q", text)
	}
	*c = parsed
	return nil
}

// Outcome is the result from the first player's point of view.
type Outcome uint8

const (
	Win Outcome = iota + 1
	Lose
	Draw
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Lose:
		return "lose"
	case Draw:
		return "draw"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome name.
func (o Outcome) MarshalText() ([]byte, error) {
	if o < Win || o > Draw {
		return nil, fmt.Errorf("games: invalid outcome %d", uint8(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, v := range []Outcome{Win, Lose, Draw} {
		if v.String() == string(text) {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("games: unknown outcome %q", text)
}

// Decide returns the outcome of a against b.
func Decide(a, b Choice) Outcome {
	switch {
	case a == b:
		return Draw
	case a.Beats(b):
		return Win
	default:
		return Lose
	}
}

// Result is one resolved round.
type Result struct {
	User    Choice  `json:"user"`
	Counter Choice  `json:"counter"`
	Outcome Outcome `json:"outcome"`
}

// DrawCounter picks a counter move uniformly from src.
func DrawCounter(src engine.Source) Choice {
	idx := int(src.Float() * float64(len(choices)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(choices) {
		idx = len(choices) - 1
	}
	return choices[idx]
}

// Resolve plays user against a counter move drawn from src.
func Resolve(user Choice, src engine.Source) Result {
	counter := DrawCounter(src)
	return Result{
		User:    user,
		Counter: counter,
		Outcome: Decide(user, counter),
	}
}

// FloatFor returns a float that DrawCounter maps to c. It is the midpoint of c's
// third of [0, 1).
func FloatFor(c Choice) float64 {
	for i, candidate := range choices {
		if candidate == c {
			return (float64(i) + 0.5) / float64(len(choices))
		}
	}
	return 0
}
