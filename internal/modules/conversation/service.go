// README: Orchestrator; applies one inbound event to a user's session and produces the outbound response.
package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"routebot/internal/infra"
	"routebot/internal/maps"
	"routebot/internal/modules/resolver"
	"routebot/internal/types"
)

type Resolver interface {
	Resolve(ctx context.Context, query string) (resolver.Outcome, error)
}

type Router interface {
	Route(ctx context.Context, origin, destination types.Coordinate) (maps.RouteResult, error)
}

type Service struct {
	store    *Store
	resolver Resolver
	router   Router
	cmd      Commands
	msg      messages
	logger   zerolog.Logger
	metrics  *infra.Metrics
}

func NewService(store *Store, res Resolver, router Router, cmd Commands, logger zerolog.Logger, metrics *infra.Metrics) *Service {
	return &Service{
		store:    store,
		resolver: res,
		router:   router,
		cmd:      cmd,
		msg:      messages{cmd: cmd},
		logger:   logger.With().Str("component", "conversation").Logger(),
		metrics:  metrics,
	}
}

func (s *Service) Commands() Commands {
	return s.cmd
}

// HandleText parses raw chat text against the user's current state and handles it.
func (s *Service) HandleText(ctx context.Context, id types.UserID, text string) Response {
	unlock := s.store.Lock(id)
	defer unlock()

	state := StateIdle
	if sess, ok := s.store.Get(id); ok {
		state = sess.State
	}
	return s.handleLocked(ctx, id, s.cmd.Parse(text, state))
}

// Handle applies ev for id. Turns for the same user never overlap.
func (s *Service) Handle(ctx context.Context, id types.UserID, ev Event) Response {
	unlock := s.store.Lock(id)
	defer unlock()
	return s.handleLocked(ctx, id, ev)
}

// ExpiryNotice is the text pushed to users whose session the sweeper evicted.
func (s *Service) ExpiryNotice() Response {
	return Response{Text: s.msg.expired(), State: StateIdle, ErrKind: KindSession, Err: ErrSessionExpired}
}

// Snapshot returns a copy of the user's live session.
func (s *Service) Snapshot(id types.UserID) (Session, bool) {
	unlock := s.store.Lock(id)
	defer unlock()
	return s.store.Get(id)
}

func (s *Service) handleLocked(ctx context.Context, id types.UserID, ev Event) Response {
	logger := s.logger.With().Str("user_id", string(id)).Str("event", ev.Kind.String()).Logger()
	ctx = logger.WithContext(ctx)
	s.metrics.IncEvent(ev.Kind.String())

	resp := s.dispatch(ctx, id, ev)
	s.metrics.IncResponse(string(resp.ErrKind))
	if resp.Err != nil {
		logger.Info().Err(resp.Err).Str("kind", string(resp.ErrKind)).Str("state", string(resp.State)).Msg("turn ended with error")
	}
	return resp
}

func (s *Service) dispatch(ctx context.Context, id types.UserID, ev Event) Response {
	now := s.store.now()
	sess, ok := s.store.Get(id)
	if ok && s.store.Expired(sess, now) {
		s.store.Delete(id)
		s.metrics.IncExpired()
		ok = false
		if ev.Kind != EventStart && ev.Kind != EventHelp {
			return s.fail(StateIdle, ErrSessionExpired, s.msg.expired())
		}
	}

	switch ev.Kind {
	case EventHelp:
		state := StateIdle
		if ok {
			state = sess.State
		}
		return Response{Text: s.msg.help(), State: state}
	case EventStart:
		// A repeated start restarts the flow in place; there is never a second session.
		if !ok {
			sess = newSession(id, now)
		}
		sess.clearSlots()
		sess.LastActivity = now
		s.moveTo(ctx, &sess, StateAwaitingOrigin)
		s.store.Put(sess)
		return Response{Text: s.msg.askOrigin(), State: sess.State}
	case EventCancel:
		if !ok {
			return s.fail(StateIdle, ErrNoActiveSession, s.msg.noSession())
		}
		s.store.Delete(id)
		s.transition(ctx, sess.State, StateCancelled)
		return Response{Text: s.msg.cancelled(), State: StateCancelled}
	}

	if !ok || sess.State == StateIdle {
		return s.fail(StateIdle, ErrNoActiveSession, s.msg.noSession())
	}

	sess.LastActivity = now
	resp := s.step(ctx, &sess, ev)

	if err := sess.Validate(); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("session left inconsistent, discarding")
		s.store.Delete(id)
		return s.fail(StateIdle, ErrNoActiveSession, s.msg.noSession())
	}
	if sess.State == StateIdle {
		s.store.Delete(id)
	} else {
		s.store.Put(sess)
	}
	resp.State = sess.State
	return resp
}

// step runs the transition for a live, non-idle session.
func (s *Service) step(ctx context.Context, sess *Session, ev Event) Response {
	switch sess.State {
	case StateAwaitingOrigin, StateAwaitingDestination:
		if ev.Kind != EventText {
			return s.fail(sess.State, ErrUnexpectedInput, s.msg.inputError(ErrUnexpectedInput, sess.State))
		}
		return s.collect(ctx, sess, ev.Text)
	case StateAwaitingOriginChoice, StateAwaitingDestinationChoice:
		switch ev.Kind {
		case EventSelect:
			return s.choose(ctx, sess, ev.Choice)
		case EventBack:
			return s.back(ctx, sess)
		default:
			r := s.fail(sess.State, ErrUnexpectedInput, s.msg.inputError(ErrUnexpectedInput, sess.State))
			r.Options = s.msg.options(s.pending(sess).Candidates)
			return r
		}
	case StateReady:
		// Only reachable after a transient routing failure; any input retries.
		return s.finish(ctx, sess, "")
	default:
		return s.fail(sess.State, ErrNoActiveSession, s.msg.noSession())
	}
}

func (s *Service) collect(ctx context.Context, sess *Session, text string) Response {
	text = strings.TrimSpace(text)
	if text == "" {
		return s.fail(sess.State, ErrEmptyQuery, s.msg.inputError(ErrEmptyQuery, sess.State))
	}
	out, err := s.resolver.Resolve(ctx, text)
	if err != nil {
		return s.fail(sess.State, err, s.msg.providerError(err, sess.State))
	}

	origin := sess.State == StateAwaitingOrigin
	switch out.Kind {
	case resolver.SingleMatch:
		return s.accept(ctx, sess, out.Match)
	case resolver.Ambiguous:
		if origin {
			sess.Origin = Pending(out.Candidates)
			s.moveTo(ctx, sess, StateAwaitingOriginChoice)
			return Response{Text: s.msg.pickOrigin(), Options: s.msg.options(out.Candidates)}
		}
		sess.Destination = Pending(out.Candidates)
		s.moveTo(ctx, sess, StateAwaitingDestinationChoice)
		return Response{Text: s.msg.pickDestination(), Options: s.msg.options(out.Candidates)}
	default:
		return Response{Text: s.msg.notFound()}
	}
}

func (s *Service) choose(ctx context.Context, sess *Session, n int) Response {
	cands := s.pending(sess).Candidates
	if n < 1 || n > len(cands) {
		r := s.fail(sess.State, ErrInvalidSelection, s.msg.inputError(ErrInvalidSelection, sess.State))
		r.Options = s.msg.options(cands)
		return r
	}
	return s.accept(ctx, sess, cands[n-1])
}

// accept resolves the slot being collected and advances; a resolved destination routes immediately.
func (s *Service) accept(ctx context.Context, sess *Session, c maps.Candidate) Response {
	switch sess.State {
	case StateAwaitingOrigin, StateAwaitingOriginChoice:
		sess.Origin = Resolved(c.Name, c.Coordinate)
		s.moveTo(ctx, sess, StateAwaitingDestination)
		return Response{Text: s.msg.askDestination(c.Name)}
	default:
		sess.Destination = Resolved(c.Name, c.Coordinate)
		s.moveTo(ctx, sess, StateReady)
		return s.finish(ctx, sess, s.msg.destinationSet(c.Name))
	}
}

func (s *Service) back(ctx context.Context, sess *Session) Response {
	if sess.State == StateAwaitingOriginChoice {
		sess.Origin = Unset()
		s.moveTo(ctx, sess, StateAwaitingOrigin)
		return Response{Text: s.msg.reaskOrigin()}
	}
	sess.Destination = Unset()
	s.moveTo(ctx, sess, StateAwaitingDestination)
	return Response{Text: s.msg.reaskDestination()}
}

// finish routes a Ready session. Success and route-level failures end the
// request (Idle); transient provider failures keep Ready so the slots survive.
func (s *Service) finish(ctx context.Context, sess *Session, prefix string) Response {
	res, err := s.router.Route(ctx, sess.Origin.Coordinate, sess.Destination.Coordinate)
	if err != nil {
		kind := Classify(err)
		if kind == KindRoute {
			sess.clearSlots()
			s.moveTo(ctx, sess, StateIdle)
			return Response{Text: prefix + s.msg.routeError(err), ErrKind: kind, Err: err}
		}
		return s.fail(sess.State, err, prefix+s.msg.providerError(err, sess.State))
	}

	text := prefix + s.msg.result(sess.Origin.Name, sess.Destination.Name, res)
	sess.clearSlots()
	s.moveTo(ctx, sess, StateIdle)
	return Response{Text: text, Route: &res}
}

func (s *Service) pending(sess *Session) Slot {
	if sess.State == StateAwaitingOriginChoice {
		return sess.Origin
	}
	return sess.Destination
}

func (s *Service) moveTo(ctx context.Context, sess *Session, to State) {
	s.transition(ctx, sess.State, to)
	sess.State = to
}

func (s *Service) transition(ctx context.Context, from, to State) {
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		zerolog.Ctx(ctx).Error().Str("from", string(from)).Str("to", string(to)).Msg("unexpected state transition")
	}
	s.metrics.IncTransition(string(from), string(to))
}

func (s *Service) fail(state State, err error, text string) Response {
	kind := Classify(err)
	if kind == KindProvider && !errors.Is(err, maps.ErrProviderRateLimited) && !errors.Is(err, maps.ErrProviderUnavailable) {
		err = errors.Join(maps.ErrProviderUnavailable, err)
	}
	return Response{Text: text, State: state, ErrKind: kind, Err: err}
}
