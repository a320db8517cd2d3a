package render

import (
	"strings"
	"testing"
	"time"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
)

func TestLocaleResolution(t *testing.T) {
	t.Parallel()

	r := New()
	cases := []struct {
		locale string
		want   string
	}{
		{"ru", "электричество"},
		{"ru-RU", "электричество"},
		{"en", "electricity"},
		{"en-US", "electricity"},
		{"de", "электричество"}, // unsupported falls back to the default
		{"pt-BR", "электричество"},
		{"", "электричество"},
		{"!!", "электричество"},
	}
	for _, tc := range cases {
		if got := r.ServiceLabel(tc.locale, schedule.KindElectricity); got != tc.want {
			t.Errorf("ServiceLabel(%q) = %q, want %q", tc.locale, got, tc.want)
		}
	}
}

func TestOutageText(t *testing.T) {
	t.Parallel()

	r := New()
	addr := address.Address{City: "СПб", StreetPrefix: "ул", StreetName: "Ленина", House: 5, Raw: "СПб, ул. Ленина, д. 5"}
	iv := schedule.Interval{
		Kind:  schedule.KindColdWater,
		Start: time.Date(2025, 7, 11, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 12, 23, 59, 0, 0, time.UTC),
	}

	got := r.Outage("en", addr, iv, false)
	for _, want := range []string{"cold water", "СПб, ул. Ленина, д. 5", "11.07.2025 10:00", "12.07.2025 23:59"} {
		if !strings.Contains(got, want) {
			t.Errorf("Outage text %q missing %q", got, want)
		}
	}

	cancelled := r.Outage("ru", addr, iv, true)
	if !strings.Contains(cancelled, "отменено") {
		t.Errorf("cancelled text = %q", cancelled)
	}

	iv.End = time.Time{}
	open := r.Outage("en", addr, iv, false)
	if !strings.Contains(open, "not specified") {
		t.Errorf("open-ended text = %q", open)
	}
}

func TestUnknownKeyFallsBackToKey(t *testing.T) {
	t.Parallel()

	r := New()
	if got := r.T("ru", "no.such.key"); got != "no.such.key" {
		t.Errorf("T = %q", got)
	}
}
