// Command migrate applies the embedded schema to DATABASE_URL. Every
// statement is idempotent, so it is safe to run on each deploy.
package main

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"adspack/internal/infra"
)

//go:embed schema.sql
var schema string

func main() {
	_ = godotenv.Load()
	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// The database container may still be starting.
	ping := func() error { return db.PingContext(ctx) }
	notify := func(err error, d time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", d).Msg("migrate: database not ready")
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(backoff.NewExponentialBackOff(), ctx), notify); err != nil {
		fmt.Fprintf(os.Stderr, "database unreachable: %v\n", err)
		os.Exit(1)
	}

	stmts := statements(schema)
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			fmt.Fprintf(os.Stderr, "statement %d failed: %v\n", i+1, err)
			os.Exit(1)
		}
	}
	logger.Info().Int("statements", len(stmts)).Msg("migrate: schema applied")
}

// statements splits a schema file on semicolons that end a line. The schema
// has no function bodies, so nothing needs dollar-quote awareness.
func statements(src string) []string {
	var out []string
	for _, part := range strings.Split(src, ";\n") {
		if stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";")); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
