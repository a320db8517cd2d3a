package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DmitryBurnaev/tg-housing/internal/address"
	"github.com/DmitryBurnaev/tg-housing/internal/schedule"
	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRegistrationRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if err := st.UpsertUser(ctx, Recipient{ChatID: 42, Username: "resident", Locale: "ru"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	addr := address.FromString("СПб", "ул. Варшавская, д. 37")
	id, err := st.AddAddress(ctx, 42, addr)
	if err != nil {
		t.Fatalf("AddAddress: %v", err)
	}
	if id == 0 {
		t.Fatal("AddAddress returned zero id")
	}

	// Re-adding the same address keeps its id.
	id2, err := st.AddAddress(ctx, 42, addr)
	if err != nil {
		t.Fatalf("AddAddress again: %v", err)
	}
	if id2 != id {
		t.Fatalf("duplicate address got id %d, want %d", id2, id)
	}

	subs, err := st.ActiveSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ActiveSubscriptions: %v", err)
	}
	if len(subs) != len(schedule.Kinds()) {
		t.Fatalf("got %d subscriptions, want %d", len(subs), len(schedule.Kinds()))
	}
	if subs[0].Address.StreetName != "Варшавская" || subs[0].Address.House != 37 {
		t.Errorf("subscription address = %+v", subs[0].Address)
	}

	recips, err := st.SubscribersFor(ctx, id, schedule.KindElectricity)
	if err != nil {
		t.Fatalf("SubscribersFor: %v", err)
	}
	if len(recips) != 1 || recips[0].ChatID != 42 || recips[0].Locale != "ru" {
		t.Fatalf("recipients = %+v", recips)
	}

	list, err := st.UserAddresses(ctx, 42)
	if err != nil {
		t.Fatalf("UserAddresses: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("UserAddresses = %+v", list)
	}

	if err := st.RemoveAddress(ctx, 42, id); err != nil {
		t.Fatalf("RemoveAddress: %v", err)
	}
	if err := st.RemoveAddress(ctx, 42, id); err != ErrNotFound {
		t.Fatalf("RemoveAddress of missing row: %v, want ErrNotFound", err)
	}
	subs, err = st.ActiveSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ActiveSubscriptions after remove: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("subscriptions after remove = %+v", subs)
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	got, err := st.LoadSchedule(ctx, 7, schedule.KindColdWater)
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if got != nil {
		t.Fatalf("fresh pair should have no baseline, got %+v", got)
	}

	snap := schedule.Snapshot{Intervals: []schedule.Interval{{
		Kind:        schedule.KindColdWater,
		Start:       time.Date(2025, 7, 11, 10, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 7, 12, 23, 59, 59, 0, time.UTC),
		Description: "Варшавская ул., д.37",
	}}}
	rec := StoredSchedule{
		AddressID:   7,
		Service:     schedule.KindColdWater,
		FetchedAt:   time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC),
		ContentHash: snap.ContentHash(),
		Snapshot:    snap,
	}
	if err := st.SaveSchedule(ctx, rec); err != nil {
		t.Fatalf("SaveSchedule: %v", err)
	}

	got, err = st.LoadSchedule(ctx, 7, schedule.KindColdWater)
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if got == nil {
		t.Fatal("baseline missing after save")
	}
	if got.ContentHash != rec.ContentHash {
		t.Errorf("hash = %q, want %q", got.ContentHash, rec.ContentHash)
	}
	if len(got.Snapshot.Intervals) != 1 || !got.Snapshot.Intervals[0].Start.Equal(snap.Intervals[0].Start) {
		t.Errorf("snapshot = %+v", got.Snapshot)
	}

	// Saving again replaces the baseline.
	rec.Snapshot.Intervals = nil
	rec.ContentHash = rec.Snapshot.ContentHash()
	if err := st.SaveSchedule(ctx, rec); err != nil {
		t.Fatalf("SaveSchedule update: %v", err)
	}
	got, err = st.LoadSchedule(ctx, 7, schedule.KindColdWater)
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if len(got.Snapshot.Intervals) != 0 {
		t.Errorf("updated snapshot = %+v", got.Snapshot)
	}
}

func TestNotificationDedup(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	ok, err := st.WasNotified(ctx, 1, schedule.KindElectricity, "fp", 42)
	if err != nil {
		t.Fatalf("WasNotified: %v", err)
	}
	if ok {
		t.Fatal("unexpected dedup hit")
	}

	if err := st.MarkNotified(ctx, 1, schedule.KindElectricity, "fp", 42); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	// Marking twice is a no-op.
	if err := st.MarkNotified(ctx, 1, schedule.KindElectricity, "fp", 42); err != nil {
		t.Fatalf("MarkNotified twice: %v", err)
	}

	ok, err = st.WasNotified(ctx, 1, schedule.KindElectricity, "fp", 42)
	if err != nil {
		t.Fatalf("WasNotified: %v", err)
	}
	if !ok {
		t.Fatal("dedup miss after MarkNotified")
	}

	// Other chat and other fingerprint stay independent.
	if ok, _ = st.WasNotified(ctx, 1, schedule.KindElectricity, "fp", 43); ok {
		t.Error("dedup leaked across chats")
	}
	if ok, _ = st.WasNotified(ctx, 1, schedule.KindElectricity, "fp2", 42); ok {
		t.Error("dedup leaked across fingerprints")
	}
}
