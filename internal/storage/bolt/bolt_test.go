package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/goodtune/rollcall/internal/storage"
	"github.com/goodtune/rollcall/internal/storage/storagetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rollcall.bolt")
	store, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTestStore(t)
	})
}

func putRaw(t *testing.T, store *Store, key, value string) {
	t.Helper()
	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Put([]byte(key), []byte(value))
	})
	if err != nil {
		t.Fatalf("put raw record: %v", err)
	}
}

func TestListSkipsMalformedSessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	good := storagetest.SampleSession(storagetest.Base)
	if err := store.Sessions().Save(ctx, good); err != nil {
		t.Fatalf("save: %v", err)
	}
	putRaw(t, store, "session_1700000000000_bad", "{not json")
	putRaw(t, store, "stray", `{"url":"https://zoom.us/j/1"}`)

	list, err := store.Sessions().List(ctx)
	if err != nil {
		t.Fatalf("list should not fail on malformed records: %v", err)
	}
	if len(list) != 1 || list[0].ID != good.ID {
		t.Errorf("expected only the valid session, got %+v", list)
	}

	if _, err := store.Sessions().Load(ctx, "session_1700000000000_bad"); err == nil {
		t.Error("expected load of a malformed record to fail")
	}
}

func TestDeleteBeforeAgesMalformedByKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	cutoff := storagetest.Base
	staleKey := storage.NewSessionID(cutoff.Add(-48 * time.Hour))
	freshKey := storage.NewSessionID(cutoff.Add(time.Hour))
	putRaw(t, store, staleKey, "garbage")
	putRaw(t, store, freshKey, "garbage")
	putRaw(t, store, "stray", "garbage")

	deleted, err := store.Sessions().DeleteBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	remaining := 0
	_ = store.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).ForEach(func(k, _ []byte) error {
			if string(k) == staleKey {
				t.Errorf("stale record %s survived", k)
			}
			remaining++
			return nil
		})
	})
	if remaining != 2 {
		t.Errorf("expected 2 records to remain, got %d", remaining)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollcall.bolt")
	ctx := context.Background()
	session := storagetest.SampleSession(storagetest.Base)

	store, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Sessions().Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Sessions().SetCurrent(ctx, session.ID); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = store.Close() }()

	current, err := store.Sessions().Current(ctx)
	if err != nil || current != session.ID {
		t.Fatalf("expected current %s after reopen, got %q (%v)", session.ID, current, err)
	}
	if _, err := store.Sessions().Load(ctx, session.ID); err != nil {
		t.Errorf("load after reopen: %v", err)
	}
}
