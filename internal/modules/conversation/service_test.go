package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routebot/internal/maps"
	"routebot/internal/modules/resolver"
	"routebot/internal/types"
)

var (
	benThanh   = types.Coordinate{Lat: 10.7725, Lng: 106.6980}
	tanSonNhat = types.Coordinate{Lat: 10.8185, Lng: 106.6588}
)

func candidate(name string, rank int) maps.Candidate {
	return maps.Candidate{Name: name, Rank: rank, Coordinate: types.Coordinate{Lat: 21, Lng: 105.8}}
}

// scriptGeocoder answers from a fixed table and can be made slow or failing per query.
type scriptGeocoder struct {
	places map[string][]maps.Place
	errs   map[string]error
	delay  map[string]time.Duration

	inflight    int32
	maxInflight int32
}

func (g *scriptGeocoder) Geocode(ctx context.Context, query string, limit int) ([]maps.Place, error) {
	n := atomic.AddInt32(&g.inflight, 1)
	defer atomic.AddInt32(&g.inflight, -1)
	for {
		m := atomic.LoadInt32(&g.maxInflight)
		if n <= m || atomic.CompareAndSwapInt32(&g.maxInflight, m, n) {
			break
		}
	}
	if d := g.delay[query]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := g.errs[query]; err != nil {
		return nil, err
	}
	return g.places[query], nil
}

type scriptRouter struct {
	mu    sync.Mutex
	legs  []maps.Leg
	errs  []error
	calls int
}

func (r *scriptRouter) Route(context.Context, types.Coordinate, types.Coordinate) (maps.Leg, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	r.calls++
	if i < len(r.errs) && r.errs[i] != nil {
		return maps.Leg{}, r.errs[i]
	}
	if i < len(r.legs) {
		return r.legs[i], nil
	}
	return maps.Leg{DistanceMeters: 7412, DurationSeconds: 1265}, nil
}

type harness struct {
	svc    *Service
	store  *Store
	clock  *fakeClock
	geo    *scriptGeocoder
	router *scriptRouter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	geo := &scriptGeocoder{
		places: map[string][]maps.Place{
			"Hanoi": {
				{Name: "Hà Nội", Coordinate: types.Coordinate{Lat: 21.0285, Lng: 105.8542}, Confidence: 0.6},
				{Name: "Hanoi Station", Coordinate: types.Coordinate{Lat: 21.0245, Lng: 105.8412}, Confidence: 0.55},
				{Name: "Hanoi Tower", Coordinate: types.Coordinate{Lat: 21.0190, Lng: 105.8440}, Confidence: 0.5},
			},
			"Ben Thanh":     {{Name: "Chợ Bến Thành — Lê Lợi", Coordinate: benThanh, Confidence: 0.9}},
			"Cho Ben Thanh": {{Name: "Bến Thành Market", Coordinate: benThanh, Confidence: 0.9}},
			"Tan Son Nhat":  {{Name: "Tan Son Nhat Airport", Coordinate: tanSonNhat, Confidence: 0.95}},
		},
		errs:  map[string]error{},
		delay: map[string]time.Duration{},
	}
	router := &scriptRouter{}
	clock := newFakeClock()
	store := newTestStore(30*time.Minute, clock)

	geocode := maps.NewGeocodeClient(geo, 50*time.Millisecond, nil)
	res, err := resolver.NewService(geocode, resolver.Policy{Threshold: 0.7, Margin: 0.15})
	require.NoError(t, err)
	routing := maps.NewRoutingClient(router, maps.OSMDirectionsLink, time.Second, 0, nil)

	svc := NewService(store, res, routing, DefaultCommands, zerolog.Nop(), nil)
	return &harness{svc: svc, store: store, clock: clock, geo: geo, router: router}
}

func (h *harness) say(t *testing.T, user types.UserID, text string) Response {
	t.Helper()
	resp := h.svc.HandleText(context.Background(), user, text)
	if sess, ok := h.store.Get(user); ok {
		require.Equal(t, sess.State, resp.State, "response state must match stored session")
		require.NoError(t, sess.Validate())
	} else {
		require.Contains(t, []State{StateIdle, StateCancelled}, resp.State)
	}
	return resp
}

func TestHappyPathWithSingleMatches(t *testing.T) {
	h := newHarness(t)

	resp := h.say(t, "u1", "/route")
	assert.Equal(t, StateAwaitingOrigin, resp.State)

	resp = h.say(t, "u1", "Ben Thanh")
	assert.Equal(t, StateAwaitingDestination, resp.State)
	sess, _ := h.store.Get("u1")
	assert.Equal(t, SlotResolved, sess.Origin.Kind)
	assert.Equal(t, benThanh, sess.Origin.Coordinate)

	resp = h.say(t, "u1", "Tan Son Nhat")
	assert.Equal(t, StateIdle, resp.State)
	assert.Equal(t, KindNone, resp.ErrKind)
	require.NotNil(t, resp.Route)
	assert.GreaterOrEqual(t, resp.Route.DistanceMeters, 0.0)
	assert.GreaterOrEqual(t, resp.Route.DurationSeconds, 0.0)
	assert.Contains(t, resp.Text, "Chợ Bến Thành → Tan Son Nhat Airport")
	assert.Contains(t, resp.Text, "7.4 km")
	assert.Contains(t, resp.Text, "21 min")
	assert.Contains(t, resp.Text, "openstreetmap.org/directions")
	assert.Zero(t, h.store.Len(), "completed sessions are destroyed")
}

func TestAmbiguousOriginSelection(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")

	resp := h.say(t, "u1", "Hanoi")
	require.Equal(t, StateAwaitingOriginChoice, resp.State)
	require.Len(t, resp.Options, 4)
	assert.Equal(t, "1. Hà Nội", resp.Options[0].Label)
	assert.Equal(t, "3", resp.Options[2].Value)
	assert.Equal(t, "back", resp.Options[3].Value)

	resp = h.say(t, "u1", "2")
	assert.Equal(t, StateAwaitingDestination, resp.State)
	sess, _ := h.store.Get("u1")
	assert.Equal(t, types.Coordinate{Lat: 21.0245, Lng: 105.8412}, sess.Origin.Coordinate)
	assert.Equal(t, "Hanoi Station", sess.Origin.Name)
}

func TestAmbiguousDestinationSelectionRoutes(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Ben Thanh")

	resp := h.say(t, "u1", "Hanoi")
	require.Equal(t, StateAwaitingDestinationChoice, resp.State)

	resp = h.say(t, "u1", "1")
	assert.Equal(t, StateIdle, resp.State)
	require.NotNil(t, resp.Route)
	assert.Contains(t, resp.Text, "Destination: Hà Nội")
}

func TestOutOfRangeSelectionKeepsChoiceState(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Hanoi")

	for _, text := range []string{"5", "0"} {
		resp := h.say(t, "u1", text)
		assert.Equal(t, StateAwaitingOriginChoice, resp.State)
		assert.Equal(t, KindInput, resp.ErrKind)
		assert.ErrorIs(t, resp.Err, ErrInvalidSelection)
		assert.Len(t, resp.Options, 4)
	}
	sess, _ := h.store.Get("u1")
	assert.Equal(t, SlotPending, sess.Origin.Kind)
}

func TestFreeTextInChoiceStateReprompts(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Hanoi")

	resp := h.say(t, "u1", "the second one")
	assert.Equal(t, StateAwaitingOriginChoice, resp.State)
	assert.Equal(t, KindInput, resp.ErrKind)
	assert.ErrorIs(t, resp.Err, ErrUnexpectedInput)
	assert.Len(t, resp.Options, 4)
}

func TestBackReturnsToTextEntry(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Hanoi")

	resp := h.say(t, "u1", "back")
	assert.Equal(t, StateAwaitingOrigin, resp.State)
	sess, _ := h.store.Get("u1")
	assert.Equal(t, SlotUnset, sess.Origin.Kind)

	h.say(t, "u1", "Ben Thanh")
	h.say(t, "u1", "Hanoi")
	resp = h.say(t, "u1", "back")
	assert.Equal(t, StateAwaitingDestination, resp.State)
	sess, _ = h.store.Get("u1")
	assert.Equal(t, SlotResolved, sess.Origin.Kind)
	assert.Equal(t, SlotUnset, sess.Destination.Kind)
}

func TestNoMatchStaysInState(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")

	resp := h.say(t, "u1", "Atlantis")
	assert.Equal(t, StateAwaitingOrigin, resp.State)
	assert.Equal(t, KindNone, resp.ErrKind)
	assert.Contains(t, resp.Text, "couldn't find")
}

func TestEmptyQueryIsInputError(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")

	resp := h.svc.Handle(context.Background(), "u1", TextEvent("   "))
	assert.Equal(t, StateAwaitingOrigin, resp.State)
	assert.ErrorIs(t, resp.Err, ErrEmptyQuery)
}

func TestSelectionOutsideChoiceStateIsInputError(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")

	resp := h.svc.Handle(context.Background(), "u1", SelectEvent(1))
	assert.Equal(t, StateAwaitingOrigin, resp.State)
	assert.Equal(t, KindInput, resp.ErrKind)
}

func TestRestartIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Ben Thanh")

	resp := h.say(t, "u1", "/route")
	assert.Equal(t, StateAwaitingOrigin, resp.State)
	assert.Equal(t, 1, h.store.Len())
	sess, _ := h.store.Get("u1")
	assert.Equal(t, SlotUnset, sess.Origin.Kind)
	assert.Equal(t, SlotUnset, sess.Destination.Kind)
}

func TestCancelDestroysSession(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Hanoi")

	resp := h.say(t, "u1", "/cancel")
	assert.Equal(t, StateCancelled, resp.State)
	assert.Zero(t, h.store.Len())

	resp = h.say(t, "u1", "2")
	assert.Equal(t, StateIdle, resp.State)
	assert.Equal(t, KindSession, resp.ErrKind)
	assert.ErrorIs(t, resp.Err, ErrNoActiveSession)
}

func TestEventsWithoutSession(t *testing.T) {
	h := newHarness(t)

	for _, ev := range []Event{TextEvent("Ben Thanh"), SelectEvent(1), CancelEvent(), BackEvent()} {
		resp := h.svc.Handle(context.Background(), "ghost", ev)
		assert.Equal(t, StateIdle, resp.State, ev.Kind.String())
		assert.ErrorIs(t, resp.Err, ErrNoActiveSession, ev.Kind.String())
	}
	resp := h.svc.Handle(context.Background(), "ghost", HelpEvent())
	assert.Equal(t, KindNone, resp.ErrKind)
	assert.Contains(t, resp.Text, "/route")
	assert.Zero(t, h.store.Len(), "no state is created for non-start events")
}

func TestGeocodeTimeoutPreservesState(t *testing.T) {
	h := newHarness(t)
	h.geo.delay["Slow Place"] = time.Second
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Ben Thanh")

	resp := h.say(t, "u1", "Slow Place")
	assert.Equal(t, StateAwaitingDestination, resp.State)
	assert.Equal(t, KindProvider, resp.ErrKind)
	assert.ErrorIs(t, resp.Err, maps.ErrProviderUnavailable)

	sess, ok := h.store.Get("u1")
	require.True(t, ok)
	assert.Equal(t, SlotResolved, sess.Origin.Kind)
	assert.Equal(t, benThanh, sess.Origin.Coordinate)
}

func TestRateLimitedGeocode(t *testing.T) {
	h := newHarness(t)
	h.geo.errs["Busy"] = fmtRateLimited()
	h.say(t, "u1", "/route")

	resp := h.say(t, "u1", "Busy")
	assert.Equal(t, StateAwaitingOrigin, resp.State)
	assert.Equal(t, KindProvider, resp.ErrKind)
	assert.ErrorIs(t, resp.Err, maps.ErrProviderRateLimited)
	assert.Contains(t, resp.Text, "busy")
}

func fmtRateLimited() error {
	return errors.Join(maps.ErrProviderRateLimited, errors.New("429"))
}

func TestSameCoordinateIsDegenerateRoute(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Ben Thanh")

	resp := h.say(t, "u1", "Cho Ben Thanh")
	assert.Equal(t, StateIdle, resp.State)
	assert.Equal(t, KindRoute, resp.ErrKind)
	assert.ErrorIs(t, resp.Err, maps.ErrDegenerateRoute)
	assert.Zero(t, h.router.calls, "degenerate pairs never reach the provider")
	assert.Zero(t, h.store.Len())
}

func TestNoRouteFoundResets(t *testing.T) {
	h := newHarness(t)
	h.router.errs = []error{maps.ErrNoRouteFound}
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Ben Thanh")

	resp := h.say(t, "u1", "Tan Son Nhat")
	assert.Equal(t, StateIdle, resp.State)
	assert.Equal(t, KindRoute, resp.ErrKind)
	assert.ErrorIs(t, resp.Err, maps.ErrNoRouteFound)
	assert.Zero(t, h.store.Len())
}

func TestTransientRoutingFailureKeepsReadyAndRetries(t *testing.T) {
	h := newHarness(t)
	h.router.errs = []error{errors.New("connection reset")}
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Ben Thanh")

	resp := h.say(t, "u1", "Tan Son Nhat")
	assert.Equal(t, StateReady, resp.State)
	assert.Equal(t, KindProvider, resp.ErrKind)
	assert.ErrorIs(t, resp.Err, maps.ErrProviderUnavailable)
	sess, _ := h.store.Get("u1")
	assert.Equal(t, SlotResolved, sess.Destination.Kind)

	resp = h.say(t, "u1", "retry please")
	assert.Equal(t, StateIdle, resp.State)
	require.NotNil(t, resp.Route)
	assert.Equal(t, 2, h.router.calls)
}

func TestIdleTimeoutEvictsSession(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")

	h.clock.Advance(31 * time.Minute)
	assert.Equal(t, []types.UserID{"u1"}, h.store.Sweep())

	resp := h.say(t, "u1", "Ben Thanh")
	assert.Equal(t, StateIdle, resp.State)
	assert.ErrorIs(t, resp.Err, ErrNoActiveSession)
}

func TestExpiredSessionDetectedBeforeSweep(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Hanoi")

	h.clock.Advance(31 * time.Minute)
	resp := h.say(t, "u1", "1")
	assert.Equal(t, StateIdle, resp.State)
	assert.Equal(t, KindSession, resp.ErrKind)
	assert.ErrorIs(t, resp.Err, ErrSessionExpired)
	assert.Zero(t, h.store.Len())

	resp = h.say(t, "u1", "/route")
	assert.Equal(t, StateAwaitingOrigin, resp.State)
}

func TestActivityExtendsSession(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")
	h.clock.Advance(20 * time.Minute)
	h.say(t, "u1", "Hanoi")
	h.clock.Advance(20 * time.Minute)

	assert.Empty(t, h.store.Sweep())
	resp := h.say(t, "u1", "1")
	assert.Equal(t, StateAwaitingDestination, resp.State)
}

func TestSameUserTurnsAreSerialized(t *testing.T) {
	h := newHarness(t)
	h.geo.delay["Ben Thanh"] = 20 * time.Millisecond
	h.say(t, "u1", "/route")

	var wg sync.WaitGroup
	responses := make([]Response, 2)
	for i := range responses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = h.svc.HandleText(context.Background(), "u1", "Ben Thanh")
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&h.geo.maxInflight))
	// The first turn resolves the origin; the second is read as the destination,
	// which is the same point, so the request ends as a degenerate route.
	states := []State{responses[0].State, responses[1].State}
	assert.ElementsMatch(t, []State{StateAwaitingDestination, StateIdle}, states)
}

func TestDifferentUsersRunConcurrently(t *testing.T) {
	h := newHarness(t)
	h.geo.delay["Ben Thanh"] = 30 * time.Millisecond
	users := []types.UserID{"a", "b", "c", "d"}
	for _, u := range users {
		h.say(t, u, "/route")
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u types.UserID) {
			defer wg.Done()
			resp := h.svc.HandleText(context.Background(), u, "Ben Thanh")
			assert.Equal(t, StateAwaitingDestination, resp.State)
		}(u)
	}
	wg.Wait()

	assert.Greater(t, atomic.LoadInt32(&h.geo.maxInflight), int32(1))
}

func TestRenderAddsOptions(t *testing.T) {
	out := Render(Response{Text: "Pick one", Options: []QuickReply{{Label: "1. A", Value: "1"}, {Label: "2. B", Value: "2"}}})
	assert.Equal(t, "Pick one\n1. A\n2. B", out)
	assert.Equal(t, "plain", Render(Response{Text: "plain"}))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindNone, Classify(nil))
	assert.Equal(t, KindInput, Classify(ErrInvalidSelection))
	assert.Equal(t, KindSession, Classify(ErrSessionExpired))
	assert.Equal(t, KindRoute, Classify(maps.ErrDegenerateRoute))
	assert.Equal(t, KindProvider, Classify(maps.ErrProviderRateLimited))
	assert.Equal(t, KindProvider, Classify(errors.New("unclassified")))
}

func TestHelpMidFlowKeepsState(t *testing.T) {
	h := newHarness(t)
	h.say(t, "u1", "/route")
	h.say(t, "u1", "Hanoi")

	resp := h.say(t, "u1", "/help")
	assert.Equal(t, StateAwaitingOriginChoice, resp.State)
	sess, ok := h.store.Get("u1")
	require.True(t, ok)
	assert.Len(t, sess.Origin.Candidates, 3, "help must not touch pending candidates")
}

func TestExpiryNotice(t *testing.T) {
	h := newHarness(t)
	resp := h.svc.ExpiryNotice()
	assert.Equal(t, StateIdle, resp.State)
	assert.Equal(t, KindSession, resp.ErrKind)
	assert.ErrorIs(t, resp.Err, ErrSessionExpired)
	assert.NotEmpty(t, resp.Text)
}
