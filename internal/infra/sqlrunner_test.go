package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestExtractMarker(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		marker    string
		statement string
		wantErr   error
	}{
		{
			name:      "valid",
			query:     "\n--sql 0b6f3c8e-3f0f-4c1d-9f0e-6a2c7f51f001\nSELECT 1\n",
			marker:    "0b6f3c8e-3f0f-4c1d-9f0e-6a2c7f51f001",
			statement: "SELECT 1",
		},
		{
			name:    "missing marker",
			query:   "SELECT 1",
			wantErr: ErrMissingMarker,
		},
		{
			name:    "malformed marker",
			query:   "--sql not-a-uuid\nSELECT 1",
			wantErr: ErrMissingMarker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker, statement, err := extractMarker(tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if marker != tt.marker {
				t.Fatalf("marker mismatch: got %q want %q", marker, tt.marker)
			}
			if statement != tt.statement {
				t.Fatalf("statement mismatch: got %q want %q", statement, tt.statement)
			}
		})
	}
}

func TestExtractMarkerEmpty(t *testing.T) {
	if _, _, err := extractMarker("   "); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

type recordingExecutor struct {
	statements []string
}

func (r *recordingExecutor) Exec(_ context.Context, query string, _ ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, query)
	return pgconn.NewCommandTag("DELETE 2"), nil
}

func (r *recordingExecutor) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	r.statements = append(r.statements, query)
	return errorRow{err: pgx.ErrNoRows}
}

func (r *recordingExecutor) Query(_ context.Context, query string, _ ...any) (pgx.Rows, error) {
	r.statements = append(r.statements, query)
	return nil, errors.New("not implemented")
}

func TestSQLRunnerStripsMarkerBeforeExecuting(t *testing.T) {
	rec := &recordingExecutor{}
	runner := NewSQLRunner(rec, DiscardLogger())

	tag, err := runner.Exec(context.Background(), "--sql 0b6f3c8e-3f0f-4c1d-9f0e-6a2c7f51f001\ndelete from history_entries;")
	if err != nil {
		t.Fatalf("Exec returned error: %v", err)
	}
	if tag.RowsAffected() != 2 {
		t.Fatalf("RowsAffected = %d, want 2", tag.RowsAffected())
	}
	if len(rec.statements) != 1 || rec.statements[0] != "delete from history_entries;" {
		t.Fatalf("unexpected statements: %q", rec.statements)
	}

	var token string
	err = runner.QueryRow(context.Background(), "--sql 0b6f3c8e-3f0f-4c1d-9f0e-6a2c7f51f002\nselect 1").Scan(&token)
	if !IsNoRows(err) {
		t.Fatalf("expected no rows to pass through, got %v", err)
	}
}

func TestSQLRunnerRejectsUnmarkedStatements(t *testing.T) {
	rec := &recordingExecutor{}
	runner := NewSQLRunner(rec, DiscardLogger())

	if _, err := runner.Exec(context.Background(), "delete from history_entries"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("expected ErrMissingMarker, got %v", err)
	}
	if _, err := runner.Query(context.Background(), "select 1"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("expected ErrMissingMarker from Query, got %v", err)
	}
	if err := runner.QueryRow(context.Background(), "select 1").Scan(); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("expected ErrMissingMarker from QueryRow, got %v", err)
	}
	if len(rec.statements) != 0 {
		t.Fatalf("unmarked statements reached the database: %q", rec.statements)
	}
}
