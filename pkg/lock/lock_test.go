// SPDX-License-Identifier: Apache-2.0

package lock_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reshapedb/reshape/pkg/db"
	"github.com/reshapedb/reshape/pkg/lock"
)

func TestAnotherInstanceRunningErrorMessage(t *testing.T) {
	t.Parallel()

	err := lock.AnotherInstanceRunningError{}
	assert.Contains(t, err.Error(), "already running")
}

func testDBURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("RESHAPE_TEST_DB_URL")
	if url == "" {
		t.Skip("RESHAPE_TEST_DB_URL not set, skipping test against a live database")
	}
	return url
}

func TestWithLockRejectsSecondInstance(t *testing.T) {
	t.Parallel()

	url := testDBURL(t)
	ctx := t.Context()

	first, err := lock.New(ctx, url, "1s")
	require.NoError(t, err)
	defer first.Close()

	second, err := lock.New(ctx, url, "1s")
	require.NoError(t, err)
	defer second.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = first.WithLock(ctx, func(_ context.Context, _ db.Connection) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	time.Sleep(50 * time.Millisecond)

	err = second.WithLock(ctx, func(_ context.Context, _ db.Connection) error { return nil })
	var anotherInstance lock.AnotherInstanceRunningError
	assert.ErrorAs(t, err, &anotherInstance)
	close(release)
}
