// README: Console chat transport; a line-oriented REPL over any reader/writer pair.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"routebot/internal/modules/conversation"
	"routebot/internal/types"
)

type Chat interface {
	HandleText(ctx context.Context, id types.UserID, text string) conversation.Response
}

type Console struct {
	chat  Chat
	user  types.UserID
	in    io.Reader
	out   io.Writer
	you   *color.Color
	bot   *color.Color
	fault *color.Color

	mu sync.Mutex // guards out; Print is also called from the sweeper
}

// New builds a console session for user. Colors are applied only when colored is true.
func New(chat Chat, user types.UserID, in io.Reader, out io.Writer, colored bool) *Console {
	c := &Console{
		chat:  chat,
		user:  user,
		in:    in,
		out:   out,
		you:   color.New(color.FgCyan, color.Bold),
		bot:   color.New(color.FgGreen),
		fault: color.New(color.FgYellow),
	}
	for _, col := range []*color.Color{c.you, c.bot, c.fault} {
		if colored {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Run reads one message per line until EOF, "quit"/"exit", or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(c.in)
	for {
		c.mu.Lock()
		c.you.Fprint(c.out, "you> ")
		c.mu.Unlock()
		if !scanner.Scan() {
			c.mu.Lock()
			fmt.Fprintln(c.out)
			c.mu.Unlock()
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		c.Print(c.chat.HandleText(ctx, c.user, line))
	}
}

// Print writes one bot response; used for sweeper notices too.
func (c *Console) Print(resp conversation.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col := c.bot
	if resp.ErrKind != conversation.KindNone {
		col = c.fault
	}
	for _, line := range strings.Split(conversation.Render(resp), "\n") {
		col.Fprintln(c.out, "bot> "+line)
	}
}
