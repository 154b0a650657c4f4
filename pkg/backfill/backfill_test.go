// SPDX-License-Identifier: Apache-2.0

package backfill_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reshapedb/reshape/pkg/backfill"
	"github.com/reshapedb/reshape/pkg/db"
)

func TestRunRequiresPrimaryKey(t *testing.T) {
	t.Parallel()

	conn := &db.FakeConnection{}
	err := backfill.Run(context.Background(), conn, "users", nil, backfill.Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no primary key columns")
}
