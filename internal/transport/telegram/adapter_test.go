package telegram

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/DmitryBurnaev/tg-housing/internal/transport"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := splitText("short", 4000); len(got) != 1 || got[0] != "short" {
		t.Fatalf("splitText(short) = %#v", got)
	}

	long := strings.Repeat("line one\nline two\n", 40)
	chunks := splitText(long, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Errorf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
	}
	joined := strings.Join(chunks, "\n") + "\n"
	if strings.ReplaceAll(joined, "\n", "") != strings.ReplaceAll(long, "\n", "") {
		t.Error("splitText lost content")
	}
}

func TestClassifySendErr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"flood", tele.FloodError{RetryAfter: 5}, true},
		{"server error", tele.NewError(502, "Bad Gateway"), true},
		{"blocked", tele.ErrBlockedByUser, false},
		{"bad request", tele.NewError(400, "Bad Request"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifySendErr(42, tc.err)
			var de *transport.DispatchError
			if !errors.As(err, &de) {
				t.Fatalf("classifySendErr returned %T", err)
			}
			if de.Transient != tc.transient {
				t.Errorf("transient = %v, want %v", de.Transient, tc.transient)
			}
			if de.ChatID != 42 {
				t.Errorf("chat id = %d", de.ChatID)
			}
		})
	}
}
