// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
)

// FakeConnection is a no-op Connection used by orchestrator unit tests that
// only need to exercise control flow, not real DDL.
type FakeConnection struct {
	Statements []string
}

var _ Connection = (*FakeConnection)(nil)

func (f *FakeConnection) Run(ctx context.Context, query string) error {
	f.Statements = append(f.Statements, query)
	return nil
}

func (f *FakeConnection) Query(ctx context.Context, query string) (*sql.Rows, error) {
	f.Statements = append(f.Statements, query)
	return nil, nil
}

func (f *FakeConnection) QueryWithParams(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	f.Statements = append(f.Statements, query)
	return nil, nil
}

func (f *FakeConnection) Begin(ctx context.Context) (*Transaction, error) {
	return nil, nil
}
