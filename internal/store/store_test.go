package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"vigil/internal/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "vigil.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustEvent(t *testing.T, at time.Time, labels ...string) *event.Event {
	t.Helper()
	dets := make([]event.Detection, 0, len(labels))
	for _, label := range labels {
		dets = append(dets, event.Detection{Label: label, Confidence: 0.9, Box: event.Box{X: 1, Y: 1, W: 5, H: 5}})
	}
	ev, err := event.New(event.Params{
		CreatedAt:   at,
		SourceID:    "porch",
		Score:       0.4,
		Detections:  dets,
		Description: "test event",
	})
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	return ev
}

func TestInsertAndByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 4, 2, 9, 30, 0, 123456789, time.UTC)
	ev := mustEvent(t, at, "person", "package")

	if err := s.Insert(ctx, ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := s.ByID(ctx, ev.ID())
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if !got.CreatedAt().Equal(at) {
		t.Fatalf("created_at round trip: got %s want %s", got.CreatedAt(), at)
	}
	if got.Shard() != "2026-04-02" || got.SourceID() != "porch" || got.Description() != "test event" {
		t.Fatalf("unexpected event: %+v", got.Record())
	}
	if labels := got.Labels().Key(); labels != "package,person" {
		t.Fatalf("unexpected labels %q", labels)
	}

	if err := s.Insert(ctx, ev); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := s.ByID(ctx, event.NewID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 23, 0, 0, 0, time.UTC)
	var ids []string
	for i, labels := range [][]string{{"person"}, {"car"}, {"person", "dog"}, {}} {
		ev := mustEvent(t, base.Add(time.Duration(i)*time.Hour), labels...)
		ids = append(ids, ev.ID())
		if err := s.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	n, err := s.Count(ctx)
	if err != nil || n != 4 {
		t.Fatalf("Count = %d, %v", n, err)
	}

	ranged, err := s.ByTimeRange(ctx, base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("ByTimeRange: %v", err)
	}
	if len(ranged) != 2 || ranged[0].ID() != ids[1] || ranged[1].ID() != ids[2] {
		t.Fatalf("unexpected range result: %d events", len(ranged))
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID() != ids[3] || recent[1].ID() != ids[2] {
		t.Fatal("Recent must return newest first")
	}

	people, err := s.ByLabel(ctx, "person", 10)
	if err != nil {
		t.Fatalf("ByLabel: %v", err)
	}
	if len(people) != 2 || people[0].ID() != ids[2] {
		t.Fatalf("unexpected label result: %d events", len(people))
	}
	if none, _ := s.ByLabel(ctx, "pers", 10); len(none) != 0 {
		t.Fatal("label match must be exact")
	}

	counts, err := s.ShardCounts(ctx)
	if err != nil {
		t.Fatalf("ShardCounts: %v", err)
	}
	if counts["2026-04-01"] != 1 || counts["2026-04-02"] != 3 {
		t.Fatalf("unexpected shard counts %v", counts)
	}

	deleted, err := s.DeleteShard(ctx, "2026-04-02")
	if err != nil || deleted != 3 {
		t.Fatalf("DeleteShard = %d, %v", deleted, err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Fatalf("expected 1 event after shard delete, got %d", n)
	}
}

func TestReopenKeepsEventsAndChecksVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := s.Insert(ctx, mustEvent(t, time.Now(), "cat")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = s.Close()

	if _, err := Open(path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	var closed *Store
	if err := closed.Ping(context.Background()); err == nil {
		t.Fatal("expected error pinging a nil store")
	}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: db, path: "mock.db"}, mock
}

func TestInsertRetriesWhileBusy(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO events").WillReturnError(errors.New("database is locked (5) (SQLITE_BUSY)"))
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Insert(context.Background(), mustEvent(t, time.Now(), "person")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertDoesNotRetryOtherErrors(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO events").WillReturnError(errors.New("disk I/O error"))

	err := s.Insert(context.Background(), mustEvent(t, time.Now(), "person"))
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected plain insert error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryErrorsAreWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM events ORDER BY").WillReturnError(errors.New("no such table: events"))
	mock.ExpectPing().WillReturnError(errors.New("closed"))

	if _, err := s.Recent(context.Background(), 5); err == nil {
		t.Fatal("expected query error")
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestScanRejectsCorruptDetections(t *testing.T) {
	s, mock := newMockStore(t)
	id := event.NewID()
	rows := sqlmock.NewRows([]string{"id", "created_ns", "source_id", "score", "detections", "description", "image_path"}).
		AddRow(id, time.Now().UnixNano(), "porch", 0.5, "{not json", "", "")
	mock.ExpectQuery("SELECT .* FROM events WHERE id").WithArgs(id).WillReturnRows(rows)

	if _, err := s.ByID(context.Background(), id); err == nil {
		t.Fatal("expected decode error")
	}
}
