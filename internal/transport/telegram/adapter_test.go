package telegram

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	kit "printbot/internal/transport"
)

func TestChunkText(t *testing.T) {
	short := "Printed 10%\nEstimated time left: 0:10:00"
	if got := chunkText(short, textLimit); len(got) != 1 || got[0] != short {
		t.Fatalf("short text split: %q", got)
	}

	long := strings.Repeat(strings.Repeat("x", 30)+"\n", 10)
	parts := chunkText(long, 100)
	if len(parts) < 3 {
		t.Fatalf("expected several parts, got %d", len(parts))
	}
	for i, p := range parts {
		if utf8.RuneCountInString(p) > 100 {
			t.Fatalf("part %d too long: %d", i, len(p))
		}
		if p == "" || strings.HasSuffix(p, "\n") {
			t.Fatalf("part %d has trailing newline or is empty: %q", i, p)
		}
	}
	if got := strings.Join(parts, "\n"); got != strings.TrimRight(long, "\n") {
		t.Fatal("parts do not reassemble the input")
	}
}

func TestChunkTextWithoutNewlines(t *testing.T) {
	parts := chunkText(strings.Repeat("é", 250), 100)
	if len(parts) != 3 || utf8.RuneCountInString(parts[2]) != 50 {
		t.Fatalf("parts = %d", len(parts))
	}
}

func TestClipCaption(t *testing.T) {
	if got := clipCaption("Printed 20mm"); got != "Printed 20mm" {
		t.Fatalf("short caption changed: %q", got)
	}
	got := clipCaption(strings.Repeat("é", captionLimit+50))
	if n := utf8.RuneCountInString(got); n != captionLimit {
		t.Fatalf("caption runes = %d; want %d", n, captionLimit)
	}
	if !utf8.ValidString(got) || !strings.HasSuffix(got, "…") {
		t.Fatal("caption is not clipped cleanly")
	}
}

func TestMenuEntries(t *testing.T) {
	menu := menuEntries([]kit.BotCommand{
		{Command: "status", Description: "Printer status"},
		{Command: ""},
		{Command: "help"},
	})
	if len(menu) != 2 || menu[1].Description != "help" {
		t.Fatalf("menu = %+v", menu)
	}
	if menuSum(menu) == menuSum(menu[:1]) {
		t.Fatal("different menus share a checksum")
	}
}

func TestFloodWait(t *testing.T) {
	if _, ok := floodWait(errors.New("boom")); ok {
		t.Fatal("plain error reported as flood wait")
	}
	if _, ok := floodWait(nil); ok {
		t.Fatal("nil reported as flood wait")
	}
}
