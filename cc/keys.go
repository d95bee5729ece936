package cc

import "fmt"

// sprintKey renders a row key for use as a map key. Row keys are scalar
// values (int64, float64, string, bool, time.Time) or nil; %v is stable
// and collision-free enough across those types for this purpose.
func sprintKey(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}
