// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reshapedb/reshape/pkg/migrations"
)

func mig(name string, actions ...migrations.Action) *migrations.Migration {
	return &migrations.Migration{Name: name, Actions: actions}
}

func TestCheckPrefixOk(t *testing.T) {
	existing := []*migrations.Migration{mig("001_init", &migrations.OpCustom{Up: "SELECT 1"})}
	provided := []*migrations.Migration{
		mig("001_init", &migrations.OpCustom{Up: "SELECT 1"}),
		mig("002_more", &migrations.OpCustom{Up: "SELECT 2"}),
	}
	assert.NoError(t, checkPrefix(existing, provided))
}

func TestCheckPrefixDivergesOnMismatch(t *testing.T) {
	existing := []*migrations.Migration{mig("001_init", &migrations.OpCustom{Up: "SELECT 1"})}
	provided := []*migrations.Migration{mig("001_init", &migrations.OpCustom{Up: "SELECT 999"})}

	err := checkPrefix(existing, provided)
	require.Error(t, err)
	var diverged DivergentHistoryError
	assert.ErrorAs(t, err, &diverged)
}

func TestCheckPrefixDivergesOnLongerExisting(t *testing.T) {
	existing := []*migrations.Migration{
		mig("001_init", &migrations.OpCustom{Up: "SELECT 1"}),
		mig("002_more", &migrations.OpCustom{Up: "SELECT 2"}),
	}
	provided := []*migrations.Migration{mig("001_init", &migrations.OpCustom{Up: "SELECT 1"})}

	err := checkPrefix(existing, provided)
	require.Error(t, err)
	var diverged DivergentHistoryError
	assert.ErrorAs(t, err, &diverged)
}

func TestMigrationNames(t *testing.T) {
	migs := []*migrations.Migration{mig("a"), mig("b"), mig("c")}
	assert.Equal(t, []string{"a", "b", "c"}, migrationNames(migs))
}

func TestSelectMigrations(t *testing.T) {
	a, b, c := mig("a"), mig("b"), mig("c")
	provided := []*migrations.Migration{a, b, c}

	out := selectMigrations(provided, []string{"c", "a"})
	require.Len(t, out, 2)
	assert.Same(t, c, out[0])
	assert.Same(t, a, out[1])
}

func TestNewEngineDefaultsToNoopLogger(t *testing.T) {
	e := New(nil)
	assert.IsType(t, &noopLogger{}, e.logger)
}

func TestWithLoggerReplacesLogger(t *testing.T) {
	e := New(nil)
	custom := NewNoopLogger()
	withLogger := e.WithLogger(custom)

	assert.Same(t, custom, withLogger.logger)
	assert.Same(t, e.lock, withLogger.lock)
	assert.NotSame(t, e, withLogger)
}
