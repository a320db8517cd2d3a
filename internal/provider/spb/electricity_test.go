package spb

import (
	"errors"
	"testing"
	"time"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/provider"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
)

var testAddr = address.Address{
	City:         "СПб",
	StreetPrefix: "ул",
	StreetName:   "Варшавская",
	House:        37,
}

const electricityPage = `<html><body><table><tbody>
<tr>
  <td>1</td>
  <td class="rowStreets"><span>Варшавская ул., д. 35-39</span><span>Ленинский пр., д. 101</span></td>
  <td>Московский</td>
  <td>26-07-2025</td><td>10:00</td><td>26-07-2025</td><td>18:00</td>
</tr>
<tr>
  <td>2</td>
  <td class="rowStreets"><span>Бассейная ул., д. 12</span></td>
  <td>Московский</td>
  <td>27-07-2025</td><td>09:00</td><td>27-07-2025</td><td>17:00</td>
</tr>
<tr>
  <td>3</td>
  <td class="rowStreets"><span>Варшавская ул., д. 37</span></td>
  <td>Московский</td>
  <td>30-07-2025</td><td>08:30</td><td></td><td></td>
</tr>
</tbody></table></body></html>`

func TestElectricityParse(t *testing.T) {
	t.Parallel()

	p := NewElectricity(Options{})
	snap, err := p.Parse(provider.RawDocument{Body: []byte(electricityPage)}, testAddr)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(snap.Intervals) != 2 {
		t.Fatalf("got %d intervals, want 2: %+v", len(snap.Intervals), snap.Intervals)
	}

	first := snap.Intervals[0]
	wantStart := time.Date(2025, 7, 26, 10, 0, 0, 0, mskLoc)
	wantEnd := time.Date(2025, 7, 26, 18, 0, 0, 0, mskLoc)
	if !first.Start.Equal(wantStart) || !first.End.Equal(wantEnd) {
		t.Errorf("first interval = %v..%v, want %v..%v", first.Start, first.End, wantStart, wantEnd)
	}
	if first.Kind != schedule.KindElectricity {
		t.Errorf("kind = %q, want %q", first.Kind, schedule.KindElectricity)
	}

	second := snap.Intervals[1]
	if !second.End.IsZero() {
		t.Errorf("row without end cells should yield open-ended interval, got end %v", second.End)
	}
}

func TestElectricityParseNoMatches(t *testing.T) {
	t.Parallel()

	other := address.Address{City: "СПб", StreetPrefix: "ул", StreetName: "Садовая", House: 1}
	p := NewElectricity(Options{})
	snap, err := p.Parse(provider.RawDocument{Body: []byte(electricityPage)}, other)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(snap.Intervals) != 0 {
		t.Fatalf("got %d intervals, want none", len(snap.Intervals))
	}
}

func TestElectricityParseBadDate(t *testing.T) {
	t.Parallel()

	const page = `<table><tbody><tr>
<td>1</td>
<td class="rowStreets"><span>Варшавская ул., д. 37</span></td>
<td>Московский</td>
<td>скоро</td><td>10:00</td><td></td><td></td>
</tr></tbody></table>`

	p := NewElectricity(Options{})
	_, err := p.Parse(provider.RawDocument{Body: []byte(page)}, testAddr)
	var perr *provider.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("want ParseError for matching row with bad date, got %v", err)
	}
	if perr.Kind != schedule.KindElectricity {
		t.Errorf("error kind = %q, want %q", perr.Kind, schedule.KindElectricity)
	}
}
