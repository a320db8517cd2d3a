// Package address models monitored locations and parses free-text Russian
// street addresses ("ул. Ленина, д.5-7 корп.2") into comparable parts.
package address

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Address is one monitored location. Rows are owned by the registration
// front-end; the check pipeline only reads them.
type Address struct {
	ID    int64
	Label string
	City  string

	StreetPrefix string
	StreetName   string
	House        int // 0 = not specified
	Raw          string
}

// Key returns a short stable identifier for logs.
func (a Address) Key() string {
	h := ""
	if a.House > 0 {
		h = ", " + strconv.Itoa(a.House)
	}
	return fmt.Sprintf("%s/%s. %s%s", a.City, a.StreetPrefix, a.StreetName, h)
}

// Matches reports whether two addresses point at the same building.
// City, street prefix, normalized street name and house must all match.
func (a Address) Matches(other Address) bool {
	return a.City == other.City &&
		a.StreetPrefix == other.StreetPrefix &&
		strings.EqualFold(a.StreetName, other.StreetName) &&
		a.House == other.House
}

// streetPrefixes are the street-type abbreviations found on provider pages,
// longest-match-first so "пр-кт" wins over "пр".
var streetPrefixes = []string{
	"б-р", "взв", "взд", "дор", "ззд", "км", "к-цо", "коса", "лн",
	"мгстр", "наб", "пер", "пл", "пр-д", "пр-кт", "Пр-кт", "пр-ка",
	"пр-лок", "проул", "пр-т", "пр", "рзд", "ряд", "с-р", "с-к", "сзд",
	"тракт", "туп", "ул", "Ул", "ш", "ал",
}

var (
	streetPrefixRe = buildPrefixRe()

	// addressRe splits "Street Name, д.5-7 корп.2" into street and house range.
	addressRe = regexp.MustCompile(
		`^(?P<street_name>[А-Яа-яЁёA-Za-z\s]+?)` +
			`(?:\s*,?\s*(?:д\.?|дом)?\s*(?P<start_house>\d+)` +
			`(?:\s*[-–]\s*(?P<end_house>\d+))?(?:\s*корп\.\d+)?)?$`)
)

func buildPrefixRe() *regexp.Regexp {
	quoted := make([]string, 0, len(streetPrefixes))
	for _, p := range streetPrefixes {
		quoted = append(quoted, regexp.QuoteMeta(p)+`\.?`)
	}
	return regexp.MustCompile(`\s+(?P<street_prefix>` + strings.Join(quoted, "|") + `)`)
}

// replacePrefix normalizes prefix spellings that differ between providers.
var replacePrefix = map[string]string{
	"пр":    "пр-кт",
	"пр-т":  "пр-кт",
	"Пр-кт": "пр-кт",
	"Ул":    "ул",
}

// DefaultStreetPrefix is assumed when the raw address carries none.
const DefaultStreetPrefix = "ул"

// Parsed is the outcome of free-text address parsing. Houses expands house
// ranges ("75-79" -> 75..79); an address without a house yields an empty slice.
type Parsed struct {
	StreetPrefix string
	StreetName   string
	Houses       []int
}

func (p Parsed) String() string {
	if len(p.Houses) == 0 {
		return fmt.Sprintf("%s. %s", p.StreetPrefix, p.StreetName)
	}
	hs := make([]string, len(p.Houses))
	for i, h := range p.Houses {
		hs[i] = strconv.Itoa(h)
	}
	return fmt.Sprintf("%s. %s, д. %s", p.StreetPrefix, p.StreetName, strings.Join(hs, ","))
}

// Completed reports whether prefix, street and at least one house were found.
func (p Parsed) Completed() bool {
	return p.StreetPrefix != "" && p.StreetName != "" && len(p.Houses) > 0
}

// Parse extracts street prefix, street name, and a house range from a raw
// address string. Unrecognizable input degrades to the whole string as street
// name with the default prefix rather than failing: provider pages frequently
// contain half-structured address text.
func Parse(raw string) Parsed {
	addr := strings.TrimSpace(raw)

	prefix := ""
	if m := streetPrefixRe.FindStringSubmatch(" " + addr); m != nil {
		prefix = strings.TrimSuffix(strings.TrimSpace(m[1]), ".")
		addr = strings.TrimSpace(streetPrefixRe.ReplaceAllString(" "+addr, " "))
	}
	if v, ok := replacePrefix[prefix]; ok {
		prefix = v
	}
	if prefix == "" {
		prefix = DefaultStreetPrefix
	}

	m := addressRe.FindStringSubmatch(addr)
	if m == nil {
		return Parsed{StreetPrefix: prefix, StreetName: addr}
	}

	groups := map[string]string{}
	for i, name := range addressRe.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}

	p := Parsed{
		StreetPrefix: prefix,
		StreetName:   strings.TrimSpace(strings.Trim(groups["street_name"], ".,")),
	}
	if groups["start_house"] != "" {
		start, _ := strconv.Atoi(groups["start_house"])
		end := start
		if groups["end_house"] != "" {
			end, _ = strconv.Atoi(groups["end_house"])
		}
		if end < start {
			end = start
		}
		for h := start; h <= end; h++ {
			p.Houses = append(p.Houses, h)
		}
	}
	return p
}

// FromString builds an Address for one concrete house out of raw user input.
func FromString(city, raw string) Address {
	p := Parse(raw)
	house := 0
	if len(p.Houses) > 0 {
		house = p.Houses[0]
	}
	return Address{
		City:         city,
		StreetPrefix: p.StreetPrefix,
		StreetName:   p.StreetName,
		House:        house,
		Raw:          raw,
	}
}
