// Package priority maps target priorities onto OS thread scheduling.
package priority

import "github.com/wayneeseguin/omnitarget/pkg/types"

// Setter applies a priority to the calling thread.
type Setter func(types.Priority) error

// Nice returns the nice value used for p.
func Nice(p types.Priority) int {
	switch p {
	case types.PriorityLowest:
		return 19
	case types.PriorityBelowNormal:
		return 10
	case types.PriorityAboveNormal:
		return -5
	case types.PriorityHighest:
		return -10
	}
	return 0
}
