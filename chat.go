package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/concertbot/server/internal/agent/model"
	errx "github.com/concertbot/server/internal/core/error"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the agent in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			session, intro, err := a.svc.StartSession(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.svc.EndSession(ctx, session.ID) }()

			out := &console{w: cmd.OutOrStdout()}
			out.reply(intro)

			pushed, unsubscribe, err := a.svc.Subscribe(ctx, session.ID)
			if err != nil {
				return err
			}
			defer unsubscribe()
			go func() {
				for r := range pushed {
					out.reply(r)
				}
			}()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					break
				}
				reply, err := a.svc.HandleMessage(ctx, session.ID, line)
				if err != nil {
					out.printf("! %s\n", errx.MessageOf(err))
					continue
				}
				out.reply(reply)
			}
			return scanner.Err()
		},
	}
}

// console serializes writes from the prompt loop and the push goroutine.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) reply(r *model.Reply) {
	if r.Kind != model.ReplyListing || r.Listing == nil {
		c.printf("bot> %s\n", r.Text)
		return
	}
	c.printf("%s", renderListing(r.Listing))
}

func renderListing(l *model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "bot> %s\n", l.Title)
	if len(l.Concerts) == 0 {
		fmt.Fprintf(&b, "     %s\n", l.EmptyText)
		return b.String()
	}
	for _, c := range l.Concerts {
		fmt.Fprintf(&b, "     - %s | %s %s | %s, %s | %s\n", c.Name, c.Date, c.Time, c.Venue, c.Location, c.Genre)
	}
	if l.Note != "" {
		fmt.Fprintf(&b, "     %s\n", l.Note)
	}
	return b.String()
}
