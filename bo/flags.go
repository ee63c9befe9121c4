package bo

import "strings"

// AllocateFlags change how a single buffer object is allocated
type AllocateFlags uint32

const (
	// AllocateWithinBudget charges the object against the domain budget set with
	// Manager.SetBudget and fails with kms.ErrOutOfMemory instead of asking the kernel
	// when the budget would be exceeded
	AllocateWithinBudget AllocateFlags = 1 << iota
	// AllocateMapped maps the object before Allocate returns. The mapping is held by
	// the caller like one obtained from Manager.Map.
	AllocateMapped
)

var allocateFlagsMapping = make(map[AllocateFlags]string)

func init() {
	allocateFlagsMapping[AllocateWithinBudget] = "AllocateWithinBudget"
	allocateFlagsMapping[AllocateMapped] = "AllocateMapped"
}

func (f AllocateFlags) String() string {
	var names []string
	for flag := AllocateWithinBudget; flag <= AllocateMapped; flag <<= 1 {
		if f&flag != 0 {
			names = append(names, allocateFlagsMapping[flag])
		}
	}
	return strings.Join(names, "|")
}
