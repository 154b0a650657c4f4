// SPDX-License-Identifier: Apache-2.0

package db_test

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/reshapedb/reshape/pkg/db"
)

func TestFakeConnectionRecordsStatements(t *testing.T) {
	t.Parallel()

	conn := &db.FakeConnection{}
	ctx := t.Context()

	assert.NoError(t, conn.Run(ctx, "CREATE TABLE foo (id int)"))
	assert.NoError(t, conn.Run(ctx, "DROP TABLE foo"))
	assert.Equal(t, []string{"CREATE TABLE foo (id int)", "DROP TABLE foo"}, conn.Statements)
}

// lockTimeoutError constructs a pq.Error with the lock_not_available
// SQLSTATE, matching what Postgres returns when a DDL statement could not
// acquire its lock within lock_timeout.
func lockTimeoutError() error {
	return &pq.Error{Code: "55P03", Message: "lock timeout"}
}

func TestLockTimeoutIsDistinguishable(t *testing.T) {
	t.Parallel()

	err := lockTimeoutError()
	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr))
	assert.Equal(t, pq.ErrorCode("55P03"), pqErr.Code)
}
