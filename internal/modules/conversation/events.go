// README: Inbound chat events and the keyword parser that maps raw text onto them.
package conversation

import (
	"strconv"
	"strings"
)

type EventKind int

const (
	EventStart EventKind = iota
	EventCancel
	EventText
	EventSelect
	EventBack
	EventHelp
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventCancel:
		return "cancel"
	case EventText:
		return "text"
	case EventSelect:
		return "select"
	case EventBack:
		return "back"
	case EventHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, bool) {
	for k := EventStart; k <= EventHelp; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Event is tagged by Kind: Text is set for EventText, Choice (1-based) for EventSelect.
type Event struct {
	Kind   EventKind
	Text   string
	Choice int
}

func StartEvent() Event { return Event{Kind: EventStart} }
func CancelEvent() Event { return Event{Kind: EventCancel} }
func TextEvent(text string) Event { return Event{Kind: EventText, Text: text} }
func SelectEvent(n int) Event { return Event{Kind: EventSelect, Choice: n} }
func BackEvent() Event { return Event{Kind: EventBack} }
func HelpEvent() Event { return Event{Kind: EventHelp} }

// Commands is the keyword vocabulary, matched case-insensitively against the whole message.
type Commands struct {
	Start  []string `yaml:"start"`
	Cancel []string `yaml:"cancel"`
	Help   []string `yaml:"help"`
	Back   []string `yaml:"back"`
}

var DefaultCommands = Commands{
	Start:  []string{"/route", "/start", "route"},
	Cancel: []string{"/cancel", "cancel"},
	Help:   []string{"/help", "help"},
	Back:   []string{"/back", "back"},
}

// Parse maps raw text to an event. Digits and the back keyword only count as
// selection/back while state is a *Choice state; otherwise they are free text.
func (c Commands) Parse(text string, state State) Event {
	t := strings.TrimSpace(text)
	switch {
	case matches(c.Start, t):
		return StartEvent()
	case matches(c.Cancel, t):
		return CancelEvent()
	case matches(c.Help, t):
		return HelpEvent()
	}
	if state.IsChoice() {
		if matches(c.Back, t) {
			return BackEvent()
		}
		if n, ok := parseChoice(t); ok {
			return SelectEvent(n)
		}
	}
	return TextEvent(t)
}

// StartKeyword is the keyword shown to users in prompts.
func (c Commands) StartKeyword() string {
	return first(c.Start, "/route")
}

func (c Commands) CancelKeyword() string {
	return first(c.Cancel, "/cancel")
}

func (c Commands) BackKeyword() string {
	return first(c.Back, "back")
}

func matches(keywords []string, t string) bool {
	for _, k := range keywords {
		if strings.EqualFold(k, t) {
			return true
		}
	}
	return false
}

func parseChoice(t string) (int, bool) {
	if t == "" || len(t) > 3 {
		return 0, false
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(t)
	return n, err == nil
}

func first(list []string, def string) string {
	if len(list) > 0 && list[0] != "" {
		return list[0]
	}
	return def
}
