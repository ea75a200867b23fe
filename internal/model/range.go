package model

import (
	"fmt"
	"slices"
)

// MessageRange selects messages by UID. Bounds are inclusive. A zero To means
// the range is unbounded above.
type MessageRange struct {
	From UID
	To   UID
}

// RangeAll selects every message in a mailbox.
func RangeAll() MessageRange { return MessageRange{From: 1} }

// RangeOne selects a single UID.
func RangeOne(uid UID) MessageRange { return MessageRange{From: uid, To: uid} }

// RangeFrom selects uid and everything above it.
func RangeFrom(uid UID) MessageRange { return MessageRange{From: uid} }

// RangeBetween selects the inclusive interval [from, to].
func RangeBetween(from, to UID) MessageRange { return MessageRange{From: from, To: to} }

// Contains reports whether uid falls inside the range.
func (r MessageRange) Contains(uid UID) bool {
	if uid < r.From {
		return false
	}
	return r.To == 0 || uid <= r.To
}

func (r MessageRange) String() string {
	if r.To == 0 {
		return fmt.Sprintf("%d:*", r.From)
	}
	if r.From == r.To {
		return fmt.Sprintf("%d", r.From)
	}
	return fmt.Sprintf("%d:%d", r.From, r.To)
}

// ToRanges groups uids into the minimal set of ranges covering exactly the
// given uids: consecutive runs collapse into one range. The input does not
// need to be sorted; duplicates are ignored.
func ToRanges(uids []UID) []MessageRange {
	if len(uids) == 0 {
		return nil
	}
	sorted := slices.Clone(uids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := []MessageRange{RangeOne(sorted[0])}
	for _, uid := range sorted[1:] {
		last := &out[len(out)-1]
		if uid == last.To+1 {
			last.To = uid
			continue
		}
		out = append(out, RangeOne(uid))
	}
	return out
}
