package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vigil/internal/event"
)

const eventColumns = "id, created_ns, source_id, score, detections, description, image_path"

// Insert appends ev. Inserting an id twice fails with ErrDuplicate.
func (s *Store) Insert(ctx context.Context, ev *event.Event) error {
	if ev == nil {
		return errors.New("insert: nil event")
	}
	dets, err := json.Marshal(ev.Detections())
	if err != nil {
		return fmt.Errorf("insert %s: encode detections: %w", ev.ID(), err)
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO events (id, created_ns, shard, source_id, score, labels, detections, description, image_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID(),
		ev.CreatedAt().UnixNano(),
		ev.Shard(),
		ev.SourceID(),
		ev.Score(),
		labelColumn(ev.Labels()),
		string(dets),
		ev.Description(),
		ev.ImagePath(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert %s: %w", ev.ID(), ErrDuplicate)
		}
		return fmt.Errorf("insert %s: %w", ev.ID(), err)
	}
	return nil
}

// ByID returns the event with id or ErrNotFound.
func (s *Store) ByID(ctx context.Context, id string) (*event.Event, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return ev, err
}

// ByTimeRange returns events created in [from, to), oldest first.
func (s *Store) ByTimeRange(ctx context.Context, from, to time.Time) ([]*event.Event, error) {
	return s.query(ctx,
		"SELECT "+eventColumns+" FROM events WHERE created_ns >= ? AND created_ns < ? ORDER BY created_ns, id",
		from.UnixNano(), to.UnixNano())
}

// Recent returns the newest n events, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]*event.Event, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.query(ctx, "SELECT "+eventColumns+" FROM events ORDER BY created_ns DESC, id DESC LIMIT ?", n)
}

// ByLabel returns the newest n events carrying label, newest first.
func (s *Store) ByLabel(ctx context.Context, label string, n int) ([]*event.Event, error) {
	label = strings.TrimSpace(label)
	if label == "" || n <= 0 {
		return nil, nil
	}
	return s.query(ctx,
		"SELECT "+eventColumns+" FROM events WHERE instr(labels, ?) > 0 ORDER BY created_ns DESC, id DESC LIMIT ?",
		","+label+",", n)
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// ShardCounts returns the number of events per shard.
func (s *Store) ShardCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT shard, COUNT(1) FROM events GROUP BY shard")
	if err != nil {
		return nil, fmt.Errorf("count shards: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			shard string
			n     int64
		)
		if err := rows.Scan(&shard, &n); err != nil {
			return nil, fmt.Errorf("scan shard count: %w", err)
		}
		out[shard] = n
	}
	return out, rows.Err()
}

// DeleteShard removes the rows of one day after its directory was rotated.
func (s *Store) DeleteShard(ctx context.Context, shard string) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM events WHERE shard = ?", shard)
	if err != nil {
		return 0, fmt.Errorf("delete shard %s: %w", shard, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete shard %s: %w", shard, err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*event.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*event.Event, error) {
	var (
		rec       event.Record
		createdNS int64
		dets      string
	)
	if err := row.Scan(&rec.ID, &createdNS, &rec.SourceID, &rec.Score, &dets, &rec.Description, &rec.ImagePath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	rec.CreatedAt = time.Unix(0, createdNS).UTC()
	if err := json.Unmarshal([]byte(dets), &rec.Detections); err != nil {
		return nil, fmt.Errorf("event %s: decode detections: %w", rec.ID, err)
	}
	ev, err := event.FromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", rec.ID, err)
	}
	return ev, nil
}

// labelColumn renders labels as ",a,b," so a single label matches with instr.
func labelColumn(labels event.LabelSet) string {
	if len(labels) == 0 {
		return ","
	}
	return "," + labels.Key() + ","
}
