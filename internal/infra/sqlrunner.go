package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// SQLExecutor is what stores need to run marker-tagged statements. SQLRunner
// implements it over a pool; tests substitute stubs.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// ErrMissingMarker is returned for statements without a leading
// "--sql <uuid>" line.
var ErrMissingMarker = errors.New("sql marker missing or invalid")

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner strips the audit marker from each statement, runs it on DB and
// logs it under the marker id with its latency. *pgxpool.Pool satisfies DB.
type SQLRunner struct {
	DB     SQLExecutor
	Logger zerolog.Logger
	// SlowThreshold promotes statements slower than this to warn level.
	SlowThreshold time.Duration
}

func NewSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{DB: db, Logger: logger, SlowThreshold: 500 * time.Millisecond}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.DB.Exec(ctx, stmt, args...)
	r.done(marker, "exec", start, err).Int64("rows", tag.RowsAffected()).Msg("sql")
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return &loggingRow{runner: r, marker: marker, start: time.Now(), row: r.DB.QueryRow(ctx, stmt, args...)}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.DB.Query(ctx, stmt, args...)
	if err != nil {
		r.done(marker, "query", start, err).Msg("sql")
		return nil, err
	}
	return &loggingRows{Rows: rows, runner: r, marker: marker, start: start}, nil
}

// done picks the log level for a finished statement. pgx.ErrNoRows is an
// expected outcome, not a failure.
func (r *SQLRunner) done(marker, op string, start time.Time, err error) *zerolog.Event {
	took := time.Since(start)
	var ev *zerolog.Event
	switch {
	case err != nil && !IsNoRows(err):
		ev = r.Logger.Error().Err(err)
	case r.SlowThreshold > 0 && took > r.SlowThreshold:
		ev = r.Logger.Warn()
	default:
		ev = r.Logger.Debug()
	}
	return ev.Str("sql", marker).Str("op", op).Dur("took", took)
}

type loggingRow struct {
	runner *SQLRunner
	marker string
	start  time.Time
	row    pgx.Row
}

func (l *loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.runner.done(l.marker, "query_row", l.start, err).Msg("sql")
	return err
}

type loggingRows struct {
	pgx.Rows
	runner *SQLRunner
	marker string
	start  time.Time
	n      int
}

func (l *loggingRows) Next() bool {
	ok := l.Rows.Next()
	if ok {
		l.n++
	}
	return ok
}

func (l *loggingRows) Close() {
	l.Rows.Close()
	l.runner.done(l.marker, "query", l.start, l.Rows.Err()).Int("rows", l.n).Msg("sql")
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error { return e.err }

// extractMarker splits "--sql <uuid>\n<statement>" into the uuid and the
// statement.
func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", "", errors.New("empty query")
	}
	first, rest, _ := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", ErrMissingMarker
	}
	return strings.TrimPrefix(first, "--sql "), strings.TrimSpace(rest), nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
