package model

import (
	"slices"
	"strings"
)

// System flags. User-defined keywords share the same set; only the backslash
// prefix distinguishes them.
const (
	FlagSeen     = `\Seen`
	FlagAnswered = `\Answered`
	FlagFlagged  = `\Flagged`
	FlagDeleted  = `\Deleted`
	FlagDraft    = `\Draft`
	FlagRecent   = `\Recent`
)

// Flags is a set of message flags with value semantics. The zero value is the
// empty set. All operations return normalized sets (sorted, deduplicated) and
// never mutate their receiver.
type Flags []string

// NewFlags returns a normalized set holding the given flags.
func NewFlags(flags ...string) Flags {
	return normalize(flags)
}

func normalize(in []string) Flags {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// Has reports whether flag is in the set.
func (f Flags) Has(flag string) bool {
	_, ok := slices.BinarySearch(f, flag)
	return ok
}

// With returns a copy of the set with flag added.
func (f Flags) With(flag string) Flags {
	if f.Has(flag) {
		return f
	}
	return normalize(append(slices.Clone(f), flag))
}

// Without returns a copy of the set with flag removed.
func (f Flags) Without(flag string) Flags {
	i, ok := slices.BinarySearch(f, flag)
	if !ok {
		return f
	}
	return slices.Delete(slices.Clone(f), i, i+1)
}

// Union returns the set union of f and other.
func (f Flags) Union(other Flags) Flags {
	if len(other) == 0 {
		return f
	}
	if len(f) == 0 {
		return other
	}
	return normalize(append(slices.Clone(f), other...))
}

// Difference returns the flags of f not present in other.
func (f Flags) Difference(other Flags) Flags {
	if len(other) == 0 {
		return f
	}
	out := make(Flags, 0, len(f))
	for _, flag := range f {
		if !other.Has(flag) {
			out = append(out, flag)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Equal reports whether both sets hold exactly the same flags.
func (f Flags) Equal(other Flags) bool {
	return slices.Equal(f, other)
}

func (f Flags) String() string {
	return "(" + strings.Join(f, " ") + ")"
}
