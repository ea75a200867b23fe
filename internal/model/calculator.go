package model

// UpdateMode selects how a requested flag set is applied to the current one.
type UpdateMode int

const (
	// UpdateAdd adds the requested flags to the current set.
	UpdateAdd UpdateMode = iota
	// UpdateRemove removes the requested flags from the current set.
	UpdateRemove
	// UpdateReplace replaces the current set with the requested one.
	UpdateReplace
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateAdd:
		return "add"
	case UpdateRemove:
		return "remove"
	case UpdateReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// FlagsUpdateCalculator computes the outcome of a flag mutation. It is a pure
// value: the same calculator can be applied to any number of messages.
type FlagsUpdateCalculator struct {
	mode  UpdateMode
	flags Flags
}

// NewFlagsUpdateCalculator returns a calculator applying flags with mode.
func NewFlagsUpdateCalculator(flags Flags, mode UpdateMode) FlagsUpdateCalculator {
	return FlagsUpdateCalculator{mode: mode, flags: flags}
}

// BuildNewFlags returns the flag set after applying the calculator to old.
func (c FlagsUpdateCalculator) BuildNewFlags(old Flags) Flags {
	switch c.mode {
	case UpdateAdd:
		return old.Union(c.flags)
	case UpdateRemove:
		return old.Difference(c.flags)
	case UpdateReplace:
		return c.flags
	default:
		return old
	}
}

// Mode returns the calculator's update mode.
func (c FlagsUpdateCalculator) Mode() UpdateMode { return c.mode }
