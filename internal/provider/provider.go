// Package provider defines the utility-source capability pair (fetch + parse)
// and the shared HTTP client behind every variant.
//
// Variants are fixed at build time and selected through a Registry keyed on
// the service kind; adding a source means adding a variant, the orchestrator
// stays untouched.
package provider

import (
	"context"
	"sort"
	"time"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
)

// RawDocument is one fetched provider page plus response metadata.
type RawDocument struct {
	URL       string
	Status    int
	Body      []byte
	FetchedAt time.Time
}

// Provider is one utility source. Fetch performs the network call (with the
// client's retry policy inside, so callers see one terminal outcome); Parse
// is pure and must be deterministic for the same document.
//
// Parse receives the queried address because provider pages list outages for
// many locations at once: the snapshot holds only intervals affecting addr.
// A snapshot with zero intervals is a valid "nothing announced" result.
type Provider interface {
	Kind() schedule.Kind
	Fetch(ctx context.Context, addr address.Address) (RawDocument, error)
	Parse(doc RawDocument, addr address.Address) (schedule.Snapshot, error)
}

// Registry is the static set of enabled provider variants.
type Registry struct {
	byKind map[schedule.Kind]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byKind: make(map[schedule.Kind]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.byKind[p.Kind()] = p
		}
	}
	return r
}

func (r *Registry) Get(kind schedule.Kind) (Provider, bool) {
	p, ok := r.byKind[kind]
	return p, ok
}

// All returns enabled providers sorted by kind for deterministic scheduling.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.byKind))
	for _, p := range r.byKind {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out
}

func (r *Registry) Len() int { return len(r.byKind) }
