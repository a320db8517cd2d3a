package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sentRetention bounds the dedup log; entries older than this are pruned
// opportunistically on writes.
const sentRetention = 180 * 24 * time.Hour

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open initializes the SQLite store, creating the file and schema as needed.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertUser(ctx context.Context, r Recipient) error {
	locale := r.Locale
	if locale == "" {
		locale = "ru"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(chat_id, username, locale, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET username=excluded.username, locale=excluded.locale`,
		r.ChatID, nullStr(r.Username), locale, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *sqliteStore) AddAddress(ctx context.Context, chatID int64, a address.Address) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO addresses(chat_id, city, street_prefix, street_name, house, raw)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(chat_id, city, street_prefix, street_name, house) DO UPDATE SET raw=excluded.raw`,
		chatID, a.City, a.StreetPrefix, a.StreetName, a.House, a.Raw,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	// An upsert of an existing row reports its id unreliably; resolve it.
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM addresses WHERE chat_id=? AND city=? AND street_prefix=? AND street_name=? AND house=?`,
		chatID, a.City, a.StreetPrefix, a.StreetName, a.House,
	).Scan(&id); err != nil {
		return 0, err
	}

	for _, kind := range schedule.Kinds() {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO subscriptions(address_id, service) VALUES(?,?)`,
			id, string(kind),
		); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

func (s *sqliteStore) RemoveAddress(ctx context.Context, chatID, addressID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM addresses WHERE id=? AND chat_id=?`, addressID, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, q := range []string{
		`DELETE FROM subscriptions WHERE address_id=?`,
		`DELETE FROM stored_schedules WHERE address_id=?`,
		`DELETE FROM sent_notifications WHERE address_id=?`,
	} {
		if _, err := tx.ExecContext(ctx, q, addressID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) UserAddresses(ctx context.Context, chatID int64) ([]address.Address, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, city, street_prefix, street_name, house, raw
		 FROM addresses WHERE chat_id=? ORDER BY id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []address.Address
	for rows.Next() {
		var a address.Address
		if err := rows.Scan(&a.ID, &a.City, &a.StreetPrefix, &a.StreetName, &a.House, &a.Raw); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.city, a.street_prefix, a.street_name, a.house, a.raw, sub.service
		 FROM subscriptions sub JOIN addresses a ON a.id = sub.address_id
		 ORDER BY a.id, sub.service`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		var service string
		if err := rows.Scan(&sub.Address.ID, &sub.Address.City, &sub.Address.StreetPrefix,
			&sub.Address.StreetName, &sub.Address.House, &sub.Address.Raw, &service); err != nil {
			return nil, err
		}
		sub.Service = schedule.Kind(service)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SubscribersFor(ctx context.Context, addressID int64, service schedule.Kind) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.chat_id, COALESCE(u.username, ''), u.locale
		 FROM subscriptions sub
		 JOIN addresses a ON a.id = sub.address_id
		 JOIN users u ON u.chat_id = a.chat_id
		 WHERE sub.address_id=? AND sub.service=?`,
		addressID, string(service))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.ChatID, &r.Username, &r.Locale); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) LoadSchedule(ctx context.Context, addressID int64, service schedule.Kind) (*StoredSchedule, error) {
	var (
		fetchedAt string
		hash      string
		payload   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at, content_hash, payload FROM stored_schedules WHERE address_id=? AND service=?`,
		addressID, string(service)).Scan(&fetchedAt, &hash, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec := &StoredSchedule{AddressID: addressID, Service: service, ContentHash: hash}
	if rec.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt); err != nil {
		return nil, fmt.Errorf("stored_schedules fetched_at: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &rec.Snapshot.Intervals); err != nil {
		return nil, fmt.Errorf("stored_schedules payload: %w", err)
	}
	return rec, nil
}

func (s *sqliteStore) SaveSchedule(ctx context.Context, rec StoredSchedule) error {
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now()
	}
	payload, err := json.Marshal(rec.Snapshot.Intervals)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stored_schedules(address_id, service, fetched_at, content_hash, payload)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(address_id, service) DO UPDATE SET
		   fetched_at=excluded.fetched_at, content_hash=excluded.content_hash, payload=excluded.payload`,
		rec.AddressID, string(rec.Service), rec.FetchedAt.UTC().Format(time.RFC3339), rec.ContentHash, string(payload),
	)
	return err
}

func (s *sqliteStore) WasNotified(ctx context.Context, addressID int64, service schedule.Kind, fingerprint string, chatID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sent_notifications WHERE address_id=? AND service=? AND fingerprint=? AND chat_id=?`,
		addressID, string(service), fingerprint, chatID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) MarkNotified(ctx context.Context, addressID int64, service schedule.Kind, fingerprint string, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sent_notifications(address_id, service, fingerprint, chat_id, sent_at)
		 VALUES(?,?,?,?,?)`,
		addressID, string(service), fingerprint, chatID, time.Now().UTC().Format(time.RFC3339),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.pruneSent(pctx); perr != nil {
			s.log.Debug("prune sent_notifications", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) pruneSent(ctx context.Context) error {
	cutoff := time.Now().Add(-sentRetention).UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `DELETE FROM sent_notifications WHERE sent_at < ?`, cutoff)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
