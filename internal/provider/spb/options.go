package spb

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/provider"
	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

// Default page URLs; overridable per provider in config.
const (
	DefaultElectricityURL = "https://rosseti-lenenergo.ru/planned_work/?city=&date_start={date_start}&date_finish={date_finish}&street={street}"
	DefaultHotWaterURL    = "https://www.gptek.spb.ru/grafik/?street={street}+{prefix}&house={house}"
	DefaultColdWaterURL   = "https://www.vodokanal.spb.ru/presscentr/remontnye_raboty/"
)

// Options configures one provider variant.
type Options struct {
	Client *provider.Client
	URL    string

	// Fetch window relative to "now": how far back and forward the
	// electricity source is queried.
	DaysBefore int
	DaysAfter  int

	Log logx.Logger
	Now func() time.Time
}

func (o Options) withDefaults(defaultURL string) Options {
	if strings.TrimSpace(o.URL) == "" {
		o.URL = defaultURL
	}
	if o.DaysBefore < 0 {
		o.DaysBefore = 0
	}
	if o.DaysAfter <= 0 {
		o.DaysAfter = 30
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log.IsZero() {
		o.Log = logx.Nop()
	}
	return o
}

func (o Options) window() (start, finish time.Time) {
	now := o.Now()
	return now.AddDate(0, 0, -o.DaysBefore), now.AddDate(0, 0, o.DaysAfter)
}

// expandURL substitutes the query placeholders a provider URL may carry:
// {street}, {prefix}, {house}, {date_start}, {date_finish}.
func expandURL(tmpl string, addr address.Address, start, finish time.Time) string {
	house := ""
	if addr.House > 0 {
		house = strconv.Itoa(addr.House)
	}
	r := strings.NewReplacer(
		"{street}", url.QueryEscape(addr.StreetName),
		"{prefix}", url.QueryEscape(addr.StreetPrefix),
		"{house}", url.QueryEscape(house),
		"{date_start}", start.Format("02.01.2006"),
		"{date_finish}", finish.Format("02.01.2006"),
	)
	return r.Replace(tmpl)
}
