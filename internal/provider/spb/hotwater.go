package spb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/provider"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

// HotWater reads the heat operator's "graph" table: one row per building with
// district, street, house, building letter and two test periods given as
// "DD.MM.YYYY - DD.MM.YYYY" date ranges.
type HotWater struct {
	opts Options
}

func NewHotWater(opts Options) *HotWater {
	return &HotWater{opts: opts.withDefaults(DefaultHotWaterURL)}
}

func (p *HotWater) Kind() schedule.Kind { return schedule.KindHotWater }

func (p *HotWater) Fetch(ctx context.Context, addr address.Address) (provider.RawDocument, error) {
	start, finish := p.opts.window()
	return p.opts.Client.Get(ctx, expandURL(p.opts.URL, addr, start, finish))
}

func (p *HotWater) Parse(doc provider.RawDocument, addr address.Address) (schedule.Snapshot, error) {
	root, err := parseDoc(doc.Body)
	if err != nil {
		return schedule.Snapshot{}, &provider.ParseError{Kind: p.Kind(), Reason: "invalid html", Err: err}
	}

	var snap schedule.Snapshot
	for _, tbl := range findAllWithClass(root, "table", "graph") {
		for _, row := range findAll(tbl, "tr") {
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

// parseRow handles one graph row. Layout:
// [n, district, street, house, letter..., period1, period2].
func (p *HotWater) parseRow(row *html.Node, addr address.Address) ([]schedule.Interval, error) {
	tds := childElems(row, "td")
	if len(tds) < 6 {
		return nil, nil // header or spacer row
	}
	cells := make([]string, len(tds))
	for i, td := range tds {
		cells[i] = nodeText(td)
	}

	street := cells[2]
	house, err := strconv.Atoi(cells[3])
	if err != nil {
		// Row identity cannot be established, so it cannot affect addr.
		p.opts.Log.Debug("unparsable hot-water row house", logx.String("house", cells[3]))
		return nil, nil
	}
	letter := strings.Join(cells[4:len(cells)-2], "")
	periods := cells[len(cells)-2:]

	parsed := address.Parse(street)
	candidate := address.Address{
		City:         addr.City,
		StreetPrefix: parsed.StreetPrefix,
		StreetName:   parsed.StreetName,
		House:        house,
	}
	if !candidate.Matches(addr) {
		return nil, nil
	}

	desc := street + ", " + strconv.Itoa(house) + letter
	var out []schedule.Interval
	for _, period := range periods {
		if period == "" || period == "-" {
			continue
		}
		start, end, err := p.parsePeriod(period)
		if err != nil {
			return nil, &provider.ParseError{Kind: p.Kind(), Reason: "unparsable period for matching row", Err: err}
		}
		out = append(out, schedule.Interval{
			Kind:        p.Kind(),
			Start:       start,
			End:         end,
			Description: desc,
		})
	}
	return out, nil
}

// parsePeriod splits "21.05.2025 - 03.06.2025" into day boundaries:
// the start at midnight, the end at the last minute of its day.
func (p *HotWater) parsePeriod(period string) (start, end time.Time, err error) {
	first, second, ok := strings.Cut(period, "-")
	if !ok {
		return start, end, fmt.Errorf("period %q has no range separator", period)
	}
	start, err = parseDayDotDate(first)
	if err != nil {
		return start, end, err
	}
	end, err = parseDayDotDate(second)
	if err != nil {
		return start, end, err
	}
	return start, endOfDay(end), nil
}
