// README: Resolution outcomes and the confidence policy that collapses candidates to a single match.
package resolver

import (
	"errors"
	"fmt"

	"routebot/internal/maps"
)

type OutcomeKind int

const (
	NoMatch OutcomeKind = iota
	SingleMatch
	Ambiguous
)

func (k OutcomeKind) String() string {
	switch k {
	case NoMatch:
		return "no_match"
	case SingleMatch:
		return "single_match"
	case Ambiguous:
		return "ambiguous"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is a tagged result: Match is set for SingleMatch, Candidates (1..3, ranked) for Ambiguous.
type Outcome struct {
	Kind       OutcomeKind
	Match      maps.Candidate
	Candidates []maps.Candidate
}

// Policy decides when the top candidate is trusted without asking the user.
// The top candidate wins when its confidence is >= Threshold and every other
// candidate trails it by more than Margin.
type Policy struct {
	Threshold float64
	Margin    float64
}

var ErrInvalidPolicy = errors.New("invalid resolver policy")

func (p Policy) Validate() error {
	if p.Threshold < 0 || p.Margin < 0 {
		return fmt.Errorf("%w: threshold=%v margin=%v", ErrInvalidPolicy, p.Threshold, p.Margin)
	}
	return nil
}
