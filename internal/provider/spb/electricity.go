package spb

import (
	"context"

	"golang.org/x/net/html"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/provider"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

// Electricity reads the grid operator's planned-works table. Each row holds
// one or more raw addresses in a "rowStreets" cell and four cells with the
// start/finish date and time of the works.
type Electricity struct {
	opts Options
}

func NewElectricity(opts Options) *Electricity {
	return &Electricity{opts: opts.withDefaults(DefaultElectricityURL)}
}

func (p *Electricity) Kind() schedule.Kind { return schedule.KindElectricity }

func (p *Electricity) Fetch(ctx context.Context, addr address.Address) (provider.RawDocument, error) {
	start, finish := p.opts.window()
	return p.opts.Client.Get(ctx, expandURL(p.opts.URL, addr, start, finish))
}

func (p *Electricity) Parse(doc provider.RawDocument, addr address.Address) (schedule.Snapshot, error) {
	root, err := parseDoc(doc.Body)
	if err != nil {
		return schedule.Snapshot{}, &provider.ParseError{Kind: p.Kind(), Reason: "invalid html", Err: err}
	}

	var snap schedule.Snapshot
	for _, tbody := range findAll(root, "tbody") {
		for _, row := range childElems(tbody, "tr") {
			ivs, err := p.parseRow(row, addr)
			if err != nil {
				return schedule.Snapshot{}, err
			}
			snap.Intervals = append(snap.Intervals, ivs...)
		}
	}

	snap.Normalize()
	return snap, nil
}

// parseRow extracts intervals for addr from one table row. Rows listing only
// other addresses are skipped; a matching row with unusable date cells is a
// parse error — guessing at outage boundaries is worse than failing loudly.
func (p *Electricity) parseRow(row *html.Node, addr address.Address) ([]schedule.Interval, error) {
	cells := childElems(row, "td")

	var streetsCell *html.Node
	for _, td := range cells {
		if hasClass(td, "rowStreets") {
			streetsCell = td
			break
		}
	}
	if streetsCell == nil || len(cells) < 7 {
		p.opts.Log.Debug("skipping electricity row without street/date cells",
			logx.Int("cells", len(cells)))
		return nil, nil
	}

	// Date cells follow the street cell: start date, start time, end date, end time.
	dateStart := nodeText(cells[3])
	timeStart := nodeText(cells[4])
	dateEnd := nodeText(cells[5])
	timeEnd := nodeText(cells[6])

	var out []schedule.Interval
	for _, span := range findAll(streetsCell, "span") {
		rawAddr := nodeText(span)
		if rawAddr == "" {
			continue
		}
		parsed := address.Parse(rawAddr)
		if len(parsed.Houses) == 0 {
			p.opts.Log.Debug("no houses in electricity row address", logx.String("raw", rawAddr))
			continue
		}

		matched := false
		for _, house := range parsed.Houses {
			candidate := address.Address{
				City:         addr.City,
				StreetPrefix: parsed.StreetPrefix,
				StreetName:   parsed.StreetName,
				House:        house,
			}
			if candidate.Matches(addr) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		start, err := parseDateTimePair(dateStart, timeStart)
		if err != nil {
			return nil, &provider.ParseError{Kind: p.Kind(), Reason: "unparsable start for matching row", Err: err}
		}
		iv := schedule.Interval{
			Kind:        p.Kind(),
			Start:       start,
			Description: rawAddr,
		}
		if dateEnd != "" || timeEnd != "" {
			end, err := parseDateTimePair(dateEnd, timeEnd)
			if err != nil {
				return nil, &provider.ParseError{Kind: p.Kind(), Reason: "unparsable end for matching row", Err: err}
			}
			iv.End = end
		}
		out = append(out, iv)
	}
	return out, nil
}
