package storage

import (
	"context"
	"errors"
	"time"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
)

var ErrNotFound = errors.New("not found")

// Config configures the SQLite database file.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Recipient is a chat that receives outage notifications.
type Recipient struct {
	ChatID   int64
	Username string
	Locale   string
}

// Subscription is one (address, service) pair somebody monitors. The check
// pipeline runs one job per subscription.
type Subscription struct {
	Address address.Address
	Service schedule.Kind
}

// StoredSchedule is the last snapshot fetched for an address/service pair,
// used as the diff baseline on the next run.
type StoredSchedule struct {
	AddressID   int64
	Service     schedule.Kind
	FetchedAt   time.Time
	ContentHash string
	Snapshot    schedule.Snapshot
}

// Store is the persistence API used by the check pipeline and the bot's
// registration commands.
type Store interface {
	// UpsertUser creates or refreshes a chat's registration.
	UpsertUser(ctx context.Context, r Recipient) error
	// AddAddress stores a monitored address for a chat and subscribes it to
	// every known service. Returns the address row id.
	AddAddress(ctx context.Context, chatID int64, a address.Address) (int64, error)
	// RemoveAddress drops an address with its subscriptions and history.
	RemoveAddress(ctx context.Context, chatID, addressID int64) error
	// UserAddresses lists the addresses registered by one chat.
	UserAddresses(ctx context.Context, chatID int64) ([]address.Address, error)

	// ActiveSubscriptions lists every (address, service) pair with at least
	// one subscriber.
	ActiveSubscriptions(ctx context.Context) ([]Subscription, error)
	// SubscribersFor lists the recipients for one address/service pair.
	SubscribersFor(ctx context.Context, addressID int64, service schedule.Kind) ([]Recipient, error)

	// LoadSchedule returns the stored baseline, or (nil, nil) when the pair
	// was never checked before.
	LoadSchedule(ctx context.Context, addressID int64, service schedule.Kind) (*StoredSchedule, error)
	SaveSchedule(ctx context.Context, rec StoredSchedule) error

	// WasNotified / MarkNotified implement send-side deduplication keyed by
	// interval fingerprint per chat.
	WasNotified(ctx context.Context, addressID int64, service schedule.Kind, fingerprint string, chatID int64) (bool, error)
	MarkNotified(ctx context.Context, addressID int64, service schedule.Kind, fingerprint string, chatID int64) error

	Close() error
}
