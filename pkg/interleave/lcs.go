package interleave

// lcsCount is the rolling-array fallback for inputs with more distinct lines
// than there are code points. It keeps two DP rows, so memory is
// O(min(n, m)) and only the length of the common subsequence is recovered.
func lcsCount(a, b []string) int {
	if len(b) > len(a) {
		a, b = b, a
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	common := prev[len(b)]
	return len(a) + len(b) - 2*common
}
