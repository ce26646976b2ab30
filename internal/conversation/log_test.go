package conversation

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"carerelay/internal/domain"
	"carerelay/internal/relay"
	"carerelay/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestLog(t *testing.T) (*Log, *relay.Broker) {
	t.Helper()
	broker := relay.NewBroker(store.NewMemory(), testLogger())
	return NewLog(broker.Attach("doctor"), testLogger()), broker
}

func audioEntry(id string, sender domain.Role, ref string, ts int64) domain.ConversationEntry {
	e := NewEntry(sender, domain.AudioContent(ref), time.UnixMilli(ts))
	e.ID = id
	return e
}

func TestAppend_PreservesTimestampOrder(t *testing.T) {
	log, _ := newTestLog(t)

	for i, e := range []domain.ConversationEntry{
		audioEntry("a", domain.RoleDoctor, "ref-a", 1000),
		audioEntry("b", domain.RolePatient, "ref-b", 2000),
		audioEntry("c", domain.RoleDoctor, "ref-c", 3000),
	} {
		if err := log.Append(e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := log.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, id := range want {
		if entries[i].ID != id {
			t.Fatalf("entry %d = %s, want %s", i, entries[i].ID, id)
		}
	}
}

func TestAppend_EqualTimestampsKeepInsertionOrder(t *testing.T) {
	log, _ := newTestLog(t)

	log.Append(audioEntry("first", domain.RoleDoctor, "ref-1", 1000))
	log.Append(audioEntry("second", domain.RolePatient, "ref-2", 1000))
	log.Append(audioEntry("third", domain.RoleDoctor, "ref-3", 1000))

	entries, _ := log.Snapshot()
	want := []string{"first", "second", "third"}
	for i, id := range want {
		if entries[i].ID != id {
			t.Fatalf("entry %d = %s, want %s", i, entries[i].ID, id)
		}
	}
}

func TestAppend_OutOfOrderTimestampInserted(t *testing.T) {
	log, _ := newTestLog(t)

	log.Append(audioEntry("late", domain.RoleDoctor, "ref-late", 5000))
	log.Append(audioEntry("early", domain.RolePatient, "ref-early", 1000))

	entries, _ := log.Snapshot()
	if entries[0].ID != "early" || entries[1].ID != "late" {
		t.Fatalf("unexpected order: %s, %s", entries[0].ID, entries[1].ID)
	}
}

func TestAppend_DuplicateIdentityIgnored(t *testing.T) {
	log, _ := newTestLog(t)

	e := audioEntry("dup", domain.RoleDoctor, "ref", 1000)
	if err := log.Append(e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(e); err != nil {
		t.Fatalf("second append: %v", err)
	}

	entries, _ := log.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("duplicate appended: %d entries", len(entries))
	}

	// Same tuple under a different ID is still the same message.
	tuple := e
	tuple.ID = "other-id"
	log.Append(tuple)
	entries, _ = log.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("tuple duplicate appended: %d entries", len(entries))
	}
}

func TestSubscribe_RemotePublishReplacesWholesale(t *testing.T) {
	broker := relay.NewBroker(store.NewMemory(), testLogger())
	doctorLog := NewLog(broker.Attach("doctor"), testLogger())
	patientCtx := broker.Attach("patient")

	var latest []domain.ConversationEntry
	doctorLog.Subscribe(func(entries []domain.ConversationEntry) { latest = entries })

	doctorLog.Append(audioEntry("mine", domain.RoleDoctor, "ref-mine", 1000))

	// A remote context publishes a completely different sequence.
	remote := []domain.ConversationEntry{audioEntry("theirs", domain.RolePatient, "ref-theirs", 2000)}
	if err := patientCtx.Publish(domain.KeyConversation, remote); err != nil {
		t.Fatalf("remote publish: %v", err)
	}

	if len(latest) != 1 || latest[0].ID != "theirs" {
		t.Fatalf("local copy not replaced wholesale: %+v", latest)
	}
	entries, _ := doctorLog.Snapshot()
	if len(entries) != 1 || entries[0].ID != "theirs" {
		t.Fatalf("store not replaced wholesale: %+v", entries)
	}
}

func TestSubscribe_MalformedPayloadDropped(t *testing.T) {
	broker := relay.NewBroker(store.NewMemory(), testLogger())
	ctx := broker.Attach("doctor")
	log := NewLog(ctx, testLogger())

	fired := 0
	log.Subscribe(func([]domain.ConversationEntry) { fired++ })

	// A foreign writer publishes a shape that is not an entry sequence.
	if err := ctx.Publish(domain.KeyConversation, map[string]int{"bogus": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fired != 0 {
		t.Fatal("handler invoked for malformed payload")
	}
}

// Two contexts appending from a stale read: the documented last-writer-wins
// anomaly. One entry is lost; there must be no duplication, corruption, or
// crash beyond that.
func TestAppend_StaleReadRace(t *testing.T) {
	broker := relay.NewBroker(store.NewMemory(), testLogger())
	doctorCtx := broker.Attach("doctor")
	patientCtx := broker.Attach("patient")
	doctorLog := NewLog(doctorCtx, testLogger())
	patientLog := NewLog(patientCtx, testLogger())

	base := audioEntry("base", domain.RoleDoctor, "ref-base", 1000)
	if err := doctorLog.Append(base); err != nil {
		t.Fatalf("append base: %v", err)
	}

	// Both contexts read the same stale snapshot, then publish their own
	// extension of it, bypassing the re-read Append would perform.
	doctorStale, _ := doctorLog.Snapshot()
	patientStale, _ := patientLog.Snapshot()

	doctorSeq := insertOrdered(doctorStale, audioEntry("doc", domain.RoleDoctor, "ref-doc", 2000))
	patientSeq := insertOrdered(patientStale, audioEntry("pat", domain.RolePatient, "ref-pat", 2001))

	if err := doctorCtx.Publish(domain.KeyConversation, doctorSeq); err != nil {
		t.Fatalf("doctor publish: %v", err)
	}
	if err := patientCtx.Publish(domain.KeyConversation, patientSeq); err != nil {
		t.Fatalf("patient publish: %v", err)
	}

	final, err := doctorLog.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// The doctor's entry is lost: the last publisher's sequence stands.
	if len(final) != 2 {
		t.Fatalf("expected 2 entries after the race, got %d", len(final))
	}
	if final[0].ID != "base" || final[1].ID != "pat" {
		t.Fatalf("unexpected final sequence: %s, %s", final[0].ID, final[1].ID)
	}
	seen := make(map[string]bool)
	for _, e := range final {
		if seen[e.ID] {
			t.Fatalf("entry %s duplicated", e.ID)
		}
		seen[e.ID] = true
	}
}
