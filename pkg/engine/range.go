// SPDX-License-Identifier: Apache-2.0

package engine

import "fmt"

// Range narrows a migration list for migrate/abort: the whole remaining
// set, a bounded count, or up to (and including) a named migration.
type Range struct {
	all   bool
	n     int
	upTo  string
	hasN  bool
	hasTo bool
}

func AllRange() Range { return Range{all: true} }

func NumberRange(n int) Range { return Range{n: n, hasN: true} }

func UpToRange(name string) Range { return Range{upTo: name, hasTo: true} }

// keepPrefix returns the earliest-to-keep index k when aborting: All → 0,
// Number(n) → len-n, UpTo(name) → position of name (exclusive, since the
// named migration itself is aborted along with everything after it).
func (r Range) keepPrefix(names []string) (int, error) {
	switch {
	case r.hasTo:
		for i, name := range names {
			if name == r.upTo {
				return i, nil
			}
		}
		return 0, fmt.Errorf("migration %q not found in in-progress set", r.upTo)
	case r.hasN:
		k := len(names) - r.n
		if k < 0 {
			k = 0
		}
		return k, nil
	default:
		return 0, nil
	}
}

// apply narrows names to the portion the range selects. alreadyInProgress
// is added to n per spec.md's `Number(n)` semantics: "at most n +
// already_in_progress".
func (r Range) apply(names []string, alreadyInProgress int) ([]string, error) {
	switch {
	case r.hasTo:
		for i, name := range names {
			if name == r.upTo {
				return names[:i+1], nil
			}
		}
		return nil, fmt.Errorf("migration %q not found in supplied plan", r.upTo)
	case r.hasN:
		limit := r.n + alreadyInProgress
		if limit > len(names) {
			limit = len(names)
		}
		return names[:limit], nil
	default:
		return names, nil
	}
}
