package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vbtlab/trainpipe/internal/models"
	"github.com/vbtlab/trainpipe/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(store.WithSQLiteDSN(filepath.Join(t.TempDir(), "ingest.db")))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s store.Store) *models.User {
	t.Helper()
	u := &models.User{PhoneNumber: "34600111222", Name: "Ana"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return u
}

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := newTestUser(t, s)
	im := NewImporter(s)

	rows, _, err := ParseADR([]byte(sampleCSV))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	res, err := im.Import(ctx, user, rows)
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}
	if !res.NewSession {
		t.Error("expected a new session on first import")
	}
	if res.Inserted != len(rows) || res.Duplicates != 0 {
		t.Errorf("unexpected result: %+v", res)
	}

	hashes, err := s.SessionDetailHashes(ctx, user.ID, res.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hashes) != len(rows) {
		t.Errorf("expected %d persisted hashes, got %d", len(rows), len(hashes))
	}
}

func TestImporter_Import_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := newTestUser(t, s)
	im := NewImporter(s)

	rows, _, err := ParseADR([]byte(sampleCSV))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	first, err := im.Import(ctx, user, rows)
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}
	second, err := im.Import(ctx, user, rows)
	if err != nil {
		t.Fatalf("unexpected re-import error: %v", err)
	}

	if second.SessionID != first.SessionID {
		t.Errorf("expected re-import to join session %d, got %d", first.SessionID, second.SessionID)
	}
	if second.NewSession {
		t.Error("expected re-import to reuse the existing session")
	}
	if second.Inserted != 0 || second.Duplicates != len(rows) {
		t.Errorf("expected full dedup on re-import, got %+v", second)
	}
}

func TestImporter_Import_ExpiredSessionWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := newTestUser(t, s)
	im := NewImporter(s)

	rows, _, err := ParseADR([]byte(sampleCSV))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	first, err := im.Import(ctx, user, rows)
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}

	// Re-import just past the session window: a fresh session opens and the
	// rows are not duplicates of it.
	im.now = func() time.Time { return time.Now().Add(SessionWindow + time.Minute) }
	second, err := im.Import(ctx, user, rows)
	if err != nil {
		t.Fatalf("unexpected re-import error: %v", err)
	}

	if !second.NewSession {
		t.Error("expected a new session after the window expired")
	}
	if second.SessionID == first.SessionID {
		t.Errorf("expected a different session, both imports used %d", first.SessionID)
	}
	if second.Inserted != len(rows) || second.Duplicates != 0 {
		t.Errorf("expected a full insert into the new session, got %+v", second)
	}
}

func TestImporter_Import_InBatchDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := newTestUser(t, s)
	im := NewImporter(s)

	rows, _, err := ParseADR([]byte(sampleCSV))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	doubled := append(append([]Row{}, rows...), rows...)

	res, err := im.Import(ctx, user, doubled)
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}
	if res.Inserted != len(rows) || res.Duplicates != len(rows) {
		t.Errorf("expected in-batch dedup, got %+v", res)
	}
}

func TestImporter_Import_SharedExercise(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := newTestUser(t, s)
	im := NewImporter(s)

	rows, _, err := ParseADR([]byte(sampleCSV))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, err := im.Import(ctx, user, rows); err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}

	// Both Press Banca rows must point at the same exercise id.
	idA, err := s.UpsertExercise(ctx, "Press Banca")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idB, err := s.UpsertExercise(ctx, "Press Banca")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idA != idB {
		t.Errorf("expected stable exercise id, got %d and %d", idA, idB)
	}
}

func TestImporter_Import_RequiresUser(t *testing.T) {
	im := NewImporter(newTestStore(t))
	if _, err := im.Import(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil user")
	}
	if _, err := im.Import(context.Background(), &models.User{}, nil); err == nil {
		t.Fatal("expected error for unpersisted user")
	}
}
