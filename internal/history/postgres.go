package history

import (
	"context"
	"fmt"
	"time"

	"adspack/internal/format"
	"adspack/internal/infra"
	"adspack/internal/sqlinline"
)

// PGStore persists entries in the history_entries table.
type PGStore struct {
	sql   infra.SQLExecutor
	limit int
}

func NewPGStore(sql infra.SQLExecutor, limit int) *PGStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &PGStore{sql: sql, limit: limit}
}

// Append inserts e and drops everything beyond the newest limit entries. The
// insert and the prune are a single statement, so the cap holds even when
// the call fails.
func (s *PGStore) Append(ctx context.Context, clientID string, e Entry) error {
	clientID, err := normalizeClient(clientID)
	if err != nil {
		return err
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QAppendHistoryEntry,
		e.ID, clientID, e.SessionID, e.Quality,
		keysToStrings(e.Formats), keysToStrings(e.Failed),
		e.Thumbnail, e.CreatedAt, s.limit,
	); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, clientID string) ([]Entry, error) {
	clientID, err := normalizeClient(clientID)
	if err != nil {
		return nil, err
	}
	rows, err := s.sql.Query(ctx, sqlinline.QListHistory, clientID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			formats []string
			failed  []string
			created time.Time
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Quality, &formats, &failed, &e.Thumbnail, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Formats = stringsToKeys(formats)
		e.Failed = stringsToKeys(failed)
		e.CreatedAt = created.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *PGStore) Clear(ctx context.Context, clientID string) error {
	clientID, err := normalizeClient(clientID)
	if err != nil {
		return err
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QClearHistory, clientID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func keysToStrings(keys []format.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// stringsToKeys drops values that are no longer valid format keys.
func stringsToKeys(values []string) []format.Key {
	out := make([]format.Key, 0, len(values))
	for _, v := range values {
		if k, err := format.Parse(v); err == nil {
			out = append(out, k)
		}
	}
	return out
}

var _ Sink = (*PGStore)(nil)
