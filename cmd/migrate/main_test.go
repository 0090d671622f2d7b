package main

import (
	"strings"
	"testing"
)

func TestStatementsSplitsEmbeddedSchema(t *testing.T) {
	stmts := statements(schema)
	if len(stmts) != 4 {
		t.Fatalf("expected 4 statements, got %d: %q", len(stmts), stmts)
	}
	for _, table := range []string{"integration_tokens", "history_entries"} {
		found := false
		for _, stmt := range stmts {
			if strings.HasPrefix(stmt, "create table if not exists "+table) {
				found = true
			}
		}
		if !found {
			t.Fatalf("schema does not create %s", table)
		}
	}
}

func TestStatementsTrimsTrailingSemicolon(t *testing.T) {
	stmts := statements("select 1;\n\n  select 2;")
	if len(stmts) != 2 || stmts[0] != "select 1" || stmts[1] != "select 2" {
		t.Fatalf("unexpected statements: %q", stmts)
	}
}
