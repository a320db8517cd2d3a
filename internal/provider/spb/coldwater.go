package spb

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/provider"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
)

// ColdWater reads the water utility's announcement page. Each announcement is
// a listplan-item block with <strong> labels for the address line and the
// start/end moments, printed as Russian long dates ("11 июля 2025 10:00").
type ColdWater struct {
	opts Options
}

func NewColdWater(opts Options) *ColdWater {
	return &ColdWater{opts: opts.withDefaults(DefaultColdWaterURL)}
}

func (p *ColdWater) Kind() schedule.Kind { return schedule.KindColdWater }

func (p *ColdWater) Fetch(ctx context.Context, addr address.Address) (provider.RawDocument, error) {
	start, finish := p.opts.window()
	return p.opts.Client.Get(ctx, expandURL(p.opts.URL, addr, start, finish))
}

func (p *ColdWater) Parse(doc provider.RawDocument, addr address.Address) (schedule.Snapshot, error) {
	root, err := parseDoc(doc.Body)
	if err != nil {
		return schedule.Snapshot{}, &provider.ParseError{Kind: p.Kind(), Reason: "invalid html", Err: err}
	}

	var snap schedule.Snapshot
	for _, block := range findAllWithClass(root, "div", "listplan-item") {
		iv, ok, err := p.parseBlock(block, addr)
		if err != nil {
			return schedule.Snapshot{}, err
		}
		if ok {
			snap.Intervals = append(snap.Intervals, iv)
		}
	}

	snap.Normalize()
	return snap, nil
}

// parseBlock reads one announcement. The label text sits inside <strong>, the
// value follows it as the node's tail text.
func (p *ColdWater) parseBlock(block *html.Node, addr address.Address) (schedule.Interval, bool, error) {
	var street, startRaw, endRaw string
	for _, s := range findAll(block, "strong") {
		label := strings.ToLower(nodeText(s))
		switch {
		case strings.Contains(label, "адрес"):
			street = textAfter(s)
		case strings.Contains(label, "начало"):
			startRaw = textAfter(s)
		case strings.Contains(label, "окончание"):
			endRaw = textAfter(s)
		}
	}
	if street == "" || startRaw == "" || endRaw == "" {
		return schedule.Interval{}, false, nil
	}

	// The page lists full address lines; a substring check on the street
	// name is how a queried address is recognized here.
	if !strings.Contains(strings.ToLower(street), strings.ToLower(addr.StreetName)) {
		return schedule.Interval{}, false, nil
	}

	start, _, err := parseRuDate(startRaw)
	if err != nil {
		return schedule.Interval{}, false, &provider.ParseError{Kind: p.Kind(), Reason: "unparsable start for matching announcement", Err: err}
	}
	end, hasClock, err := parseRuDate(endRaw)
	if err != nil {
		return schedule.Interval{}, false, &provider.ParseError{Kind: p.Kind(), Reason: "unparsable end for matching announcement", Err: err}
	}
	if !hasClock {
		end = endOfDay(end)
	}

	return schedule.Interval{
		Kind:        p.Kind(),
		Start:       start,
		End:         end,
		Description: cleanString(street),
	}, true, nil
}
