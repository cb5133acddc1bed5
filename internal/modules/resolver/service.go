// README: CandidateResolver turns a free-text query into NoMatch, SingleMatch or a short ranked list.
package resolver

import (
	"context"

	"routebot/internal/maps"
)

type Searcher interface {
	Search(ctx context.Context, query string) ([]maps.Candidate, error)
}

type Service struct {
	search Searcher
	policy Policy
}

func NewService(search Searcher, policy Policy) (*Service, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Service{search: search, policy: policy}, nil
}

// Resolve returns provider errors unchanged.
func (s *Service) Resolve(ctx context.Context, query string) (Outcome, error) {
	cands, err := s.search.Search(ctx, query)
	if err != nil {
		return Outcome{}, err
	}
	return s.policy.Decide(cands), nil
}

// Decide is pure: identical input always gives the identical outcome.
// Provider order is authoritative; confidence ties never reorder candidates.
func (p Policy) Decide(cands []maps.Candidate) Outcome {
	if len(cands) == 0 {
		return Outcome{Kind: NoMatch}
	}
	if len(cands) > maps.MaxCandidates {
		cands = cands[:maps.MaxCandidates]
	}

	top := cands[0]
	if top.Confidence >= p.Threshold && p.clearLead(top, cands[1:]) {
		top.Rank = 1
		return Outcome{Kind: SingleMatch, Match: top}
	}

	ranked := make([]maps.Candidate, len(cands))
	for i, c := range cands {
		c.Rank = i + 1
		ranked[i] = c
	}
	return Outcome{Kind: Ambiguous, Candidates: ranked}
}

func (p Policy) clearLead(top maps.Candidate, rest []maps.Candidate) bool {
	for _, c := range rest {
		if top.Confidence-c.Confidence <= p.Margin {
			return false
		}
	}
	return true
}
