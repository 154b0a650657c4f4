// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeApplyAll(t *testing.T) {
	names := []string{"a", "b", "c"}
	out, err := AllRange().apply(names, 1)
	require.NoError(t, err)
	assert.Equal(t, names, out)
}

func TestRangeApplyNumber(t *testing.T) {
	names := []string{"a", "b", "c", "d"}

	out, err := NumberRange(2).apply(names, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)

	out, err = NumberRange(2).apply(names, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, out)

	out, err = NumberRange(10).apply(names, 0)
	require.NoError(t, err)
	assert.Equal(t, names, out)
}

func TestRangeApplyUpTo(t *testing.T) {
	names := []string{"a", "b", "c"}

	out, err := UpToRange("b").apply(names, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)

	_, err = UpToRange("z").apply(names, 0)
	assert.Error(t, err)
}

func TestRangeKeepPrefix(t *testing.T) {
	names := []string{"a", "b", "c"}

	k, err := AllRange().keepPrefix(names)
	require.NoError(t, err)
	assert.Equal(t, 0, k)

	k, err = NumberRange(1).keepPrefix(names)
	require.NoError(t, err)
	assert.Equal(t, 2, k)

	k, err = NumberRange(10).keepPrefix(names)
	require.NoError(t, err)
	assert.Equal(t, 0, k)

	k, err = UpToRange("b").keepPrefix(names)
	require.NoError(t, err)
	assert.Equal(t, 1, k)

	_, err = UpToRange("z").keepPrefix(names)
	assert.Error(t, err)
}
