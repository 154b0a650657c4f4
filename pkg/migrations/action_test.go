// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationContextPrefix(t *testing.T) {
	ctxInfo := MigrationContext{MigrationIndex: 2, ActionIndex: 5}
	assert.Equal(t, "__reshape_0002_0005", ctxInfo.Prefix())
	assert.Equal(t, "__reshape_0998_0995", ctxInfo.PrefixInverse())
}

func TestMigrationContextPrefixZero(t *testing.T) {
	ctxInfo := MigrationContext{}
	assert.Equal(t, "__reshape_0000_0000", ctxInfo.Prefix())
	assert.Equal(t, "__reshape_1000_1000", ctxInfo.PrefixInverse())
}

func TestTransformSpecIsCrossTable(t *testing.T) {
	simple := "NEW.foo"
	assert.False(t, (&TransformSpec{Simple: &simple}).isCrossTable())

	cross := &TransformSpec{Update: &UpdateSpec{Table: "users", Value: "users.email", Where: "users.id = profiles.user_id"}}
	assert.True(t, cross.isCrossTable())

	assert.False(t, (*TransformSpec)(nil).isCrossTable())
}
