package schedule

import "sort"

// ValidIndices sanitizes a decoded index set before it is applied to the
// store: duplicates are removed, indices outside [0, length) are dropped,
// and the survivors are sorted in descending order.
//
// Descending order is a correctness requirement, not a preference — rows are
// deleted one at a time, and deleting a low index first would shift the
// positions of every row behind it, silently retargeting the remaining
// deletions.  Out-of-range indices are dropped silently: the snapshot the
// model saw may be stale by the time we mutate, and a vanished row is not
// an error.
func ValidIndices(indices []int, length int) []int {
	seen := make(map[int]struct{}, len(indices))
	valid := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= length {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		valid = append(valid, idx)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(valid)))
	return valid
}
