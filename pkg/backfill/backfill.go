// SPDX-License-Identifier: Apache-2.0

// Package backfill batches the "touch every row" pass an add_column or
// alter_column action needs after wiring its triggers, so that a row
// written before the trigger existed gets its shadow/derived column
// populated too.
package backfill

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/reshapedb/reshape/pkg/db"
)

const (
	DefaultBatchSize = 1000
	DefaultDelay     = 0
)

// Options configures a backfill run.
type Options struct {
	BatchSize int
	Delay     time.Duration
}

// CallbackFn reports backfill progress: done rows out of total.
type CallbackFn func(done, total int64)

// Run touches every row of table (identified by its primary key columns),
// batched at opts.BatchSize rows per statement, by re-assigning the primary
// key columns to themselves — this fires the row's BEFORE UPDATE triggers
// without changing any data, which is how a sync trigger wired by
// add_column/alter_column backfills rows written before the trigger
// existed.
func Run(ctx context.Context, conn db.Connection, table string, primaryKey []string, opts Options, cb CallbackFn) error {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if len(primaryKey) == 0 {
		return fmt.Errorf("backfilling table %q: no primary key columns available", table)
	}

	var total int64
	countStmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", pq.QuoteIdentifier(table))
	rows, err := conn.Query(ctx, countStmt)
	if err != nil {
		return fmt.Errorf("counting rows in %q: %w", table, err)
	}
	if err := db.ScanFirstValue(rows, &total); err != nil {
		return fmt.Errorf("counting rows in %q: %w", table, err)
	}

	pkList := quoteList(primaryKey)
	setList := make([]string, len(primaryKey))
	for i, col := range primaryKey {
		q := pq.QuoteIdentifier(col)
		setList[i] = fmt.Sprintf("%s = %s.%s", q, pq.QuoteIdentifier(table), q)
	}

	var done int64
	for {
		stmt := fmt.Sprintf(`
			UPDATE %[1]s SET %[2]s
			WHERE (%[3]s) IN (
				SELECT %[3]s FROM %[1]s
				ORDER BY %[3]s
				OFFSET %[4]d LIMIT %[5]d
			)`,
			pq.QuoteIdentifier(table),
			strings.Join(setList, ", "),
			pkList,
			done,
			opts.BatchSize,
		)

		if err := conn.Run(ctx, stmt); err != nil {
			return fmt.Errorf("backfilling %q: %w", table, err)
		}

		batchRows := int64(opts.BatchSize)
		if done+batchRows > total {
			batchRows = total - done
		}
		done += batchRows

		if cb != nil {
			cb(done, total)
		}

		if done >= total {
			break
		}

		if opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Delay):
			}
		}
	}

	return nil
}

func quoteList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}
