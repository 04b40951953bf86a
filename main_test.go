package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/concertbot/server/internal/agent/model"
)

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "chat"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("missing %q command: %v", name, err)
		}
	}
}

func TestConsoleReply(t *testing.T) {
	var buf bytes.Buffer
	c := &console{w: &buf}

	c.reply(model.TextReply("", "hello"))
	c.reply(model.ListingReply(model.IntentSearchByLocation, &model.Listing{
		Title: "Bob's Concerts in Denver",
		Concerts: []model.ConcertRecord{{
			Name: "Foo Fighters Live", Date: "2025-03-20", Time: "20:00:00",
			Venue: "Ball Arena", Location: "Denver, CO", Genre: "Rock",
		}},
		Note: "Enjoy!",
	}))
	c.reply(model.ListingReply("", &model.Listing{Title: "Nothing", EmptyText: "Sorry Bob, no concerts found matching your criteria."}))

	out := buf.String()
	for _, want := range []string{
		"bot> hello\n",
		"bot> Bob's Concerts in Denver\n",
		"- Foo Fighters Live | 2025-03-20 20:00:00 | Ball Arena, Denver, CO | Rock",
		"Enjoy!",
		"Sorry Bob, no concerts found",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
