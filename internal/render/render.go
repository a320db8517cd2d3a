// Package render formats user-facing notification and command texts in the
// recipient's locale.
package render

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
)

const timeFormat = "02.01.2006 15:04"

var supported = []language.Tag{
	language.Russian, // default
	language.English,
}

var catalogs = map[language.Tag]map[string]string{
	language.Russian: {
		"service.electricity": "электричество",
		"service.cold_water":  "холодная вода",
		"service.hot_water":   "горячая вода",

		"outage.added":     "Новое плановое отключение: %s\nАдрес: %s\nС %s до %s",
		"outage.cancelled": "Отключение отменено: %s\nАдрес: %s\nС %s до %s",
		"outage.open_end":  "не указано",

		"cmd.start":     "Привет! Пришлите адрес командой /add <город> <улица, дом>, и я буду следить за плановыми отключениями.",
		"cmd.usage_add": "Формат: /add <город> <улица, дом>, например /add СПб ул. Ленина, д. 5",
		"cmd.added":     "Слежу за адресом: %s",
		"cmd.list":      "Ваши адреса:\n%s",
		"cmd.list_none": "Адресов пока нет. Добавьте первый: /add <город> <улица, дом>",
		"cmd.removed":   "Адрес удалён.",
		"cmd.error":     "Что-то пошло не так, попробуйте ещё раз.",
	},
	language.English: {
		"service.electricity": "electricity",
		"service.cold_water":  "cold water",
		"service.hot_water":   "hot water",

		"outage.added":     "New planned outage: %s\nAddress: %s\nFrom %s until %s",
		"outage.cancelled": "Outage cancelled: %s\nAddress: %s\nFrom %s until %s",
		"outage.open_end":  "not specified",

		"cmd.start":     "Hi! Send an address with /add <city> <street, house> and I will watch planned utility outages for it.",
		"cmd.usage_add": "Usage: /add <city> <street, house>, e.g. /add СПб ул. Ленина, д. 5",
		"cmd.added":     "Watching address: %s",
		"cmd.list":      "Your addresses:\n%s",
		"cmd.list_none": "No addresses yet. Add one: /add <city> <street, house>",
		"cmd.removed":   "Address removed.",
		"cmd.error":     "Something went wrong, please try again.",
	},
}

// Renderer resolves a recipient locale against the supported catalogs and
// formats message texts.
type Renderer struct {
	matcher language.Matcher
}

func New() *Renderer {
	return &Renderer{matcher: language.NewMatcher(supported)}
}

// resolve maps a free-form locale string ("ru", "en-US", garbage) to the
// closest supported catalog. Unknown or unrelated input falls back to Russian.
func (r *Renderer) resolve(locale string) map[string]string {
	tag, err := language.Parse(locale)
	if err != nil {
		return catalogs[supported[0]]
	}
	_, idx, conf := r.matcher.Match(tag)
	if conf == language.No {
		return catalogs[supported[0]]
	}
	return catalogs[supported[idx]]
}

// T formats a catalog entry for the given locale.
func (r *Renderer) T(locale, key string, args ...any) string {
	cat := r.resolve(locale)
	format, ok := cat[key]
	if !ok {
		format = catalogs[supported[0]][key]
	}
	if format == "" {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// ServiceLabel returns the localized utility name.
func (r *Renderer) ServiceLabel(locale string, kind schedule.Kind) string {
	return r.T(locale, "service."+string(kind))
}

// Outage renders one added or cancelled interval for a monitored address.
func (r *Renderer) Outage(locale string, addr address.Address, iv schedule.Interval, cancelled bool) string {
	key := "outage.added"
	if cancelled {
		key = "outage.cancelled"
	}
	end := r.T(locale, "outage.open_end")
	if !iv.End.IsZero() {
		end = iv.End.Format(timeFormat)
	}
	where := addr.Raw
	if strings.TrimSpace(where) == "" {
		where = addr.Key()
	}
	return r.T(locale, key,
		r.ServiceLabel(locale, iv.Kind),
		where,
		iv.Start.Format(timeFormat),
		end,
	)
}
