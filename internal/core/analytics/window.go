package analytics

import "time"

// Levels are the chunk split counts tried in order, coarse to fine.
// The last level is 1-hour slices for a 24h day; we never split below that
var Levels = []int{1, 2, 4, 6, 12, 24}

// SplitWindow partitions w into n equal contiguous sub-windows. The last
// sub-window's end is clamped to w.End to absorb duration rounding
func SplitWindow(w TimeWindow, n int) []TimeWindow {
	if n <= 1 || !w.Valid() {
		return []TimeWindow{w}
	}

	step := w.Duration() / time.Duration(n)
	out := make([]TimeWindow, 0, n)
	cursor := w.Start
	for i := 0; i < n; i++ {
		end := cursor.Add(step)
		if i == n-1 || end.After(w.End) {
			end = w.End
		}
		out = append(out, TimeWindow{Start: cursor, End: end})
		cursor = end
	}
	return out
}
