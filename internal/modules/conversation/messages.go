// README: Response shape, message templates and plain-text rendering for chat transports.
package conversation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"routebot/internal/maps"
)

type QuickReply struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Response always carries the state the session ended the turn in.
type Response struct {
	Text    string
	Options []QuickReply
	State   State
	ErrKind ErrorKind
	Err     error
	Route   *maps.RouteResult
}

// Render flattens options into numbered lines for text-only transports.
func Render(r Response) string {
	if len(r.Options) == 0 {
		return r.Text
	}
	var b strings.Builder
	b.WriteString(r.Text)
	for _, o := range r.Options {
		b.WriteString("\n")
		b.WriteString(o.Label)
	}
	return b.String()
}

type messages struct {
	cmd Commands
}

func (m messages) help() string {
	return fmt.Sprintf(`Route & ETA bot
  1. Send %[1]s to start
  2. Type where you are leaving from (place name, street, address)
  3. Pick the right place from the list if asked
  4. Do the same for the destination
  5. Get distance, travel time and a directions link
Send %[2]s at any time to stop.`, m.cmd.StartKeyword(), m.cmd.CancelKeyword())
}

func (m messages) askOrigin() string {
	return "Let's plan a route. Where are you leaving from?"
}

func (m messages) askDestination(origin string) string {
	return fmt.Sprintf("Starting point: %s\nWhere are you going?", origin)
}

func (m messages) destinationSet(destination string) string {
	return fmt.Sprintf("Destination: %s\n", destination)
}

func (m messages) notFound() string {
	return "I couldn't find that place. Try adding more detail (street, ward, district, city)."
}

func (m messages) pickOrigin() string {
	return "I found several places. Which one is your starting point?"
}

func (m messages) pickDestination() string {
	return "I found several places. Which one is your destination?"
}

func (m messages) reaskOrigin() string {
	return "OK, type your starting point again."
}

func (m messages) reaskDestination() string {
	return "OK, type your destination again."
}

func (m messages) cancelled() string {
	return fmt.Sprintf("Cancelled. Send %s to start again.", m.cmd.StartKeyword())
}

func (m messages) noSession() string {
	return fmt.Sprintf("There is no route in progress. Send %s to start.", m.cmd.StartKeyword())
}

func (m messages) expired() string {
	return fmt.Sprintf("Your previous request timed out. Send %s to start again.", m.cmd.StartKeyword())
}

func (m messages) inputError(err error, state State) string {
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return "Please type a place name."
	case errors.Is(err, ErrInvalidSelection):
		return fmt.Sprintf("That is not one of the options. Reply with a number from the list or %q to type again.", m.cmd.BackKeyword())
	case state.IsChoice():
		return fmt.Sprintf("Please pick one of the places below or reply %q to type again.", m.cmd.BackKeyword())
	default:
		return "Please type a place name."
	}
}

func (m messages) providerError(err error, state State) string {
	retry := "Please send your last message again in a moment."
	if state == StateReady {
		retry = "Send any message to try the route again."
	}
	if errors.Is(err, maps.ErrProviderRateLimited) {
		return "The map service is busy right now. " + retry
	}
	return "Sorry, the map service is unavailable right now. " + retry
}

func (m messages) routeError(err error) string {
	if errors.Is(err, maps.ErrDegenerateRoute) {
		return fmt.Sprintf("The starting point and destination are the same place. Send %s to plan another trip.", m.cmd.StartKeyword())
	}
	return fmt.Sprintf("Sorry, I couldn't find a driving route between those places. Send %s to try other places.", m.cmd.StartKeyword())
}

func (m messages) result(origin, destination string, r maps.RouteResult) string {
	km := r.DistanceMeters / 1000
	minutes := int(math.Round(r.DurationSeconds / 60))
	return fmt.Sprintf("Route: %s → %s\nDistance: %.1f km   ETA: %d min\nDirections: %s\nSend %s to plan another trip.",
		maps.ShortName(origin), maps.ShortName(destination), km, minutes, r.MapLink, m.cmd.StartKeyword())
}

func (m messages) options(cands []maps.Candidate) []QuickReply {
	out := make([]QuickReply, 0, len(cands)+1)
	for _, c := range cands {
		v := strconv.Itoa(c.Rank)
		out = append(out, QuickReply{Label: v + ". " + c.Name, Value: v})
	}
	out = append(out, QuickReply{Label: "↩ " + m.cmd.BackKeyword() + ": type again", Value: m.cmd.BackKeyword()})
	return out
}
