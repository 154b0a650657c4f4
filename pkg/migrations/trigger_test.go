// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reshapedb/reshape/pkg/db"
)

// TestCreateCrossTableTriggerForwardAndReverse exercises both directions
// add_column/remove_column wire for an Update{table, value, where}
// transform (the path the bug report flagged as missing its companion
// trigger). Only conn.Run is touched here, not conn.Query/QueryWithParams,
// so FakeConnection is safe to drive without a real database.
func TestCreateCrossTableTriggerForwardAndReverse(t *testing.T) {
	conn := &db.FakeConnection{}
	ctx := context.Background()

	// Forward: installed on "users", mirrors into "profiles".
	err := createCrossTableTrigger(ctx, conn, "__reshape_0000_0000", "email_fwd", "users", "profiles", "email", "users.email", "users.id = profiles.user_id", false)
	require.NoError(t, err)

	// Reverse: installed on "profiles", mirrors back into "users".
	err = createCrossTableTrigger(ctx, conn, "__reshape_0000_0000", "email", "profiles", "users", "email", "profiles.email", "users.id = profiles.user_id", true)
	require.NoError(t, err)

	require.Len(t, conn.Statements, 4)

	funcFwd, triggerFwd := conn.Statements[0], conn.Statements[1]
	assert.Contains(t, funcFwd, `UPDATE "profiles"`)
	assert.Contains(t, funcFwd, "users.email")
	assert.Contains(t, triggerFwd, `ON "users"`)

	funcRev, triggerRev := conn.Statements[2], conn.Statements[3]
	assert.Contains(t, funcRev, `UPDATE "users"`)
	assert.Contains(t, funcRev, "profiles.email")
	assert.Contains(t, triggerRev, `ON "profiles"`)
}

func TestDropSyncTriggerIsIdempotent(t *testing.T) {
	conn := &db.FakeConnection{}
	ctx := context.Background()

	require.NoError(t, dropSyncTrigger(ctx, conn, "profiles", "__reshape_0000_0000", "email"))
	require.NoError(t, dropSyncTrigger(ctx, conn, "profiles", "__reshape_0000_0000", "email"))
	assert.Len(t, conn.Statements, 2)
	for _, stmt := range conn.Statements {
		assert.Contains(t, stmt, "DROP FUNCTION IF EXISTS")
	}
}
