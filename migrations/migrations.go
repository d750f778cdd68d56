/**
 * @description
 * Package migrations embeds the withdrawal_accounts_fiat DDL and applies it at
 * startup. Every statement is written with IF NOT EXISTS so reapplying is a
 * no-op.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgconn: command tag returned by Exec.
 */
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed *.up.sql
var upFiles embed.FS

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Apply runs every embedded up migration in file name order.
func Apply(ctx context.Context, db Execer) error {
	names, err := fs.Glob(upFiles, "*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		ddl, err := upFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, string(ddl)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		log.Printf("level=info component=migrations msg=\"migration applied\" file=%s", name)
	}
	return nil
}
